// Copyright 2024-2026 Aiku AI

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const namespace = "affiliate_relay"

// PrometheusSink implements Sink with Prometheus collectors.
// Registration failures are logged and never propagated.
type PrometheusSink struct {
	messagesTotal   *prometheus.CounterVec
	linksTotal      *prometheus.CounterVec
	dispatchesTotal *prometheus.CounterVec
	pipelineSeconds prometheus.Histogram

	log zerolog.Logger
}

// NewPrometheusSink creates the collectors and registers them with reg.
func NewPrometheusSink(reg prometheus.Registerer, log zerolog.Logger) *PrometheusSink {
	s := &PrometheusSink{log: log}

	s.messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Inbound messages by policy decision.",
	}, []string{"reason"})
	s.linksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "links_total",
		Help:      "Product links processed by outcome.",
	}, []string{"outcome"})
	s.dispatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatches_total",
		Help:      "Messages sent to the destination channel.",
	}, []string{"kind", "status"})
	s.pipelineSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_duration_seconds",
		Help:      "Time spent rewriting and dispatching an accepted message.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	s.register(reg, s.messagesTotal, "messages_total")
	s.register(reg, s.linksTotal, "links_total")
	s.register(reg, s.dispatchesTotal, "dispatches_total")
	s.register(reg, s.pipelineSeconds, "pipeline_duration_seconds")
	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
	}
}

func (s *PrometheusSink) MessageEvaluated(reason string) {
	s.messagesTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) LinkProcessed(outcome string) {
	s.linksTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) DispatchCompleted(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.dispatchesTotal.WithLabelValues(kind, status).Inc()
}

func (s *PrometheusSink) PipelineDuration(d time.Duration) {
	s.pipelineSeconds.Observe(d.Seconds())
}
