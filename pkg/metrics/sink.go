// Copyright 2024-2026 Aiku AI

// Package metrics records relay pipeline counters.
package metrics

import "time"

// Sink receives pipeline measurements.
// All methods are fire-and-forget: implementations must not block or return errors.
type Sink interface {
	// MessageEvaluated counts a policy decision by reason.
	MessageEvaluated(reason string)
	// LinkProcessed counts a link rewrite outcome (converted, duplicate,
	// ineligible, failed_<reason>).
	LinkProcessed(outcome string)
	// DispatchCompleted counts a send to the destination by kind (text or media).
	DispatchCompleted(kind string, err error)
	// PipelineDuration observes the time spent handling one accepted message.
	PipelineDuration(d time.Duration)
}

// Dispatch kinds.
const (
	DispatchText  = "text"
	DispatchMedia = "media"
)
