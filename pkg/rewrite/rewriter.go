// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package rewrite transforms message text: marketplace links are replaced by
// affiliate-tracked links, then configured word substitutions are applied.
package rewrite

import (
	"context"
	"strings"

	"github.com/aiku/affiliate-relay/pkg/affiliate"
	"github.com/aiku/affiliate-relay/pkg/links"
)

// Expander resolves a shortlink to its canonical URL. It must return the
// input unchanged when resolution fails.
type Expander interface {
	Expand(ctx context.Context, shortURL string) string
}

// Converter mints a tracked link for a canonical product URL.
type Converter interface {
	GenerateTrackedLink(ctx context.Context, originURL string, subIDs ...string) affiliate.Result
}

// LinkOutcome describes what happened to one extracted link.
type LinkOutcome struct {
	// Original is the literal substring found in the message.
	Original string
	// Target is the URL submitted for conversion (the expansion of Original
	// for shortlinks).
	Target string
	// Tracked is the replacement link, empty unless Converted.
	Tracked string

	Expanded  bool
	Eligible  bool
	Converted bool
	// Skipped is set when Original no longer occurs in the text because an
	// earlier identical link was already replaced.
	Skipped bool

	Reason affiliate.Reason
	Err    error
}

// Status returns a short label for logs and metrics.
func (o LinkOutcome) Status() string {
	switch {
	case o.Skipped:
		return "duplicate"
	case o.Converted:
		return "converted"
	case !o.Eligible:
		return "ineligible"
	default:
		return "failed_" + o.Reason.String()
	}
}

// Rewriter applies link conversion followed by word substitution.
type Rewriter struct {
	expander  Expander
	converter Converter
	words     *WordReplacer
}

// New creates a Rewriter. words may be nil when no substitutions are configured.
func New(expander Expander, converter Converter, words *WordReplacer) *Rewriter {
	return &Rewriter{
		expander:  expander,
		converter: converter,
		words:     words,
	}
}

// Rewrite runs Links and then Words. The order matters: substitutions must not
// touch links that have not been converted yet.
func (r *Rewriter) Rewrite(ctx context.Context, text string) (string, []LinkOutcome) {
	out, outcomes := r.Links(ctx, text)
	return r.Words(out), outcomes
}

// Links replaces every convertible product link in text with its tracked
// equivalent. Links that cannot be converted are left untouched; a failure
// never aborts the remaining links.
func (r *Rewriter) Links(ctx context.Context, text string) (string, []LinkOutcome) {
	candidates := links.Candidates(text)
	if len(candidates) == 0 {
		return text, nil
	}

	outcomes := make([]LinkOutcome, 0, len(candidates))
	for _, c := range candidates {
		outcome := LinkOutcome{Original: c.Raw, Target: c.Raw}

		if !strings.Contains(text, c.Raw) {
			outcome.Skipped = true
			outcomes = append(outcomes, outcome)
			continue
		}

		// Shortlinks are converted through their expansion, but the text
		// replacement still targets the shortlink as it appears.
		if c.Short {
			outcome.Target = r.expander.Expand(ctx, c.Raw)
			outcome.Expanded = outcome.Target != c.Raw
		}

		outcome.Eligible = links.IsEligibleDomain(outcome.Target)
		if !outcome.Eligible {
			outcomes = append(outcomes, outcome)
			continue
		}

		res := r.converter.GenerateTrackedLink(ctx, outcome.Target)
		outcome.Reason = res.Reason
		outcome.Err = res.Err
		if res.OK() {
			outcome.Converted = true
			outcome.Tracked = res.TrackedURL
			text = strings.ReplaceAll(text, c.Raw, res.TrackedURL)
		}
		outcomes = append(outcomes, outcome)
	}
	return text, outcomes
}

// Words applies the configured substitutions to text.
func (r *Rewriter) Words(text string) string {
	if r.words == nil {
		return text
	}
	return r.words.Replace(text)
}

// Substitutions returns the configured word substitutions in order.
func (r *Rewriter) Substitutions() []Substitution {
	if r.words == nil {
		return nil
	}
	return r.words.Substitutions()
}
