// Copyright 2024-2026 Aiku AI

package metrics

import "time"

// NoopSink discards everything. Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (NoopSink) MessageEvaluated(string)         {}
func (NoopSink) LinkProcessed(string)            {}
func (NoopSink) DispatchCompleted(string, error) {}
func (NoopSink) PipelineDuration(time.Duration)  {}
