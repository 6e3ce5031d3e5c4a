// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package relay wires policy, rewriting and a chat transport into the
// message pipeline.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/affiliate-relay/pkg/metrics"
	"github.com/aiku/affiliate-relay/pkg/policy"
	"github.com/aiku/affiliate-relay/pkg/rewrite"
)

// ErrDispatch wraps failures to post to the destination channel.
var ErrDispatch = errors.New("dispatch failed")

// Options configures the channels the relay works with.
type Options struct {
	Sources     []string
	Destination string
}

// Report summarizes what happened to one message.
type Report struct {
	RelayID  string
	Decision policy.Decision
	// Text is the rewritten text. Empty when the message was not accepted.
	Text  string
	Links []rewrite.LinkOutcome
	// Kind is metrics.DispatchText or metrics.DispatchMedia once a send was attempted.
	Kind       string
	Dispatched bool
	Err        error
}

// Relay forwards accepted messages from the source channels to the
// destination channel with their links converted.
type Relay struct {
	transport Transport
	policy    *policy.Policy
	rewriter  *rewrite.Rewriter
	opts      Options
	metrics   metrics.Sink
	log       zerolog.Logger
}

// New creates a Relay. A nil sink disables metrics.
func New(transport Transport, pol *policy.Policy, rw *rewrite.Rewriter, opts Options, sink metrics.Sink, log zerolog.Logger) *Relay {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Relay{
		transport: transport,
		policy:    pol,
		rewriter:  rw,
		opts:      opts,
		metrics:   sink,
		log:       log.With().Str("component", "relay").Logger(),
	}
}

// Run listens on the source channels until ctx is done. Messages are handled
// one at a time. A canceled context is a clean shutdown and returns nil.
func (r *Relay) Run(ctx context.Context) error {
	r.logBanner()
	err := r.transport.Listen(ctx, r.opts.Sources, func(ctx context.Context, msg Message) {
		r.Handle(ctx, msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("listen: %w", err)
	}
	r.log.Info().Msg("Relay stopped")
	return nil
}

func (r *Relay) logBanner() {
	allow, block := r.policy.Keywords()
	subs := zerolog.Arr()
	for _, s := range r.rewriter.Substitutions() {
		subs.Str(s.Original + " -> " + s.Replacement)
	}
	r.log.Info().
		Strs("sources", r.opts.Sources).
		Str("destination", r.opts.Destination).
		Strs("allow_keywords", allow).
		Strs("block_keywords", block).
		Array("substitutions", subs).
		Msg("Relay started")
}

// Preview runs the policy and the rewrite for text without dispatching.
// Link conversion performs real affiliate API calls.
func (r *Relay) Preview(ctx context.Context, text string) Report {
	report := Report{Decision: r.policy.Evaluate(text)}
	if report.Decision.Eligible {
		report.Text, report.Links = r.rewriter.Rewrite(ctx, text)
	}
	return report
}

// Handle runs the full pipeline for msg: policy, rewrite, dispatch.
// Every outcome is logged and counted; nothing is retried.
func (r *Relay) Handle(ctx context.Context, msg Message) Report {
	relayID := uuid.NewString()
	log := r.log.With().
		Str("relay_id", relayID).
		Str("channel_id", msg.ChannelID).
		Str("message_id", msg.ID).
		Logger()

	decision := r.policy.Evaluate(msg.Text)
	r.metrics.MessageEvaluated(string(decision.Reason))
	report := Report{RelayID: relayID, Decision: decision}

	switch decision.Reason {
	case policy.ReasonNoLink:
		log.Debug().Msg("Ignoring message without product links")
		return report
	case policy.ReasonKeywordMiss:
		log.Debug().Msg("Ignoring message without allowed keywords")
		return report
	case policy.ReasonBlocked:
		log.Info().Str("keyword", decision.Keyword).Msg("Blocked message")
		return report
	}

	start := time.Now()
	report.Text, report.Links = r.rewriter.Rewrite(ctx, msg.Text)
	for _, o := range report.Links {
		r.logOutcome(log, o)
		r.metrics.LinkProcessed(o.Status())
	}

	report.Kind = metrics.DispatchText
	var err error
	if msg.HasMedia() {
		report.Kind = metrics.DispatchMedia
		err = r.transport.SendMedia(ctx, r.opts.Destination, msg.Attachment, report.Text)
	} else {
		err = r.transport.SendText(ctx, r.opts.Destination, report.Text)
	}
	r.metrics.DispatchCompleted(report.Kind, err)
	r.metrics.PipelineDuration(time.Since(start))

	if err != nil {
		report.Err = fmt.Errorf("%w: %s to %s: %w", ErrDispatch, report.Kind, r.opts.Destination, err)
		log.Err(err).Str("kind", report.Kind).Msg("Failed to relay message")
		return report
	}
	report.Dispatched = true
	log.Info().
		Str("kind", report.Kind).
		Int("links", len(report.Links)).
		Dur("duration", time.Since(start)).
		Msg("Relayed message")
	return report
}

func (r *Relay) logOutcome(log zerolog.Logger, o rewrite.LinkOutcome) {
	switch {
	case o.Skipped:
		log.Debug().Str("link", o.Original).Msg("Link already replaced")
	case o.Converted:
		log.Info().
			Str("link", o.Original).
			Str("target", o.Target).
			Str("tracked", o.Tracked).
			Msg("Converted link")
	case !o.Eligible:
		log.Warn().
			Str("link", o.Original).
			Str("target", o.Target).
			Msg("Link is not on a supported marketplace domain")
	default:
		log.Warn().
			Err(o.Err).
			Str("link", o.Original).
			Str("target", o.Target).
			Str("reason", o.Reason.String()).
			Msg("Failed to convert link")
	}
}
