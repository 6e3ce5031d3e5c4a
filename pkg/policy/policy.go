// Copyright 2024-2026 Aiku AI

// Package policy decides whether an inbound message is relayed.
package policy

import (
	"strings"

	"github.com/aiku/affiliate-relay/pkg/links"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonNoLink      Reason = "no_link"
	ReasonKeywordMiss Reason = "keyword_miss"
	ReasonBlocked     Reason = "blocked"
	ReasonAccepted    Reason = "accepted"
)

// Decision is the outcome of evaluating a message.
type Decision struct {
	Eligible bool
	Reason   Reason
	// Keyword is the block-list entry that matched, for Blocked decisions.
	Keyword string
}

// Policy holds the keyword filters. Keywords are matched case-insensitively
// as substrings of the message text.
type Policy struct {
	allow []string
	block []string
}

// New creates a Policy. Blank keywords are ignored.
func New(allow, block []string) *Policy {
	return &Policy{
		allow: normalize(allow),
		block: normalize(block),
	}
}

func normalize(keywords []string) []string {
	var out []string
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Evaluate applies the rules in fixed order: a message without any product
// link is dropped; then, if an allow-list is configured, at least one allow
// keyword must appear; finally any block keyword drops the message, even if
// an allow keyword also matched.
//
// The link check only looks for the link pattern. Whether each link can
// actually be converted is decided later, during rewriting.
func (p *Policy) Evaluate(text string) Decision {
	if !links.HasLinks(text) {
		return Decision{Reason: ReasonNoLink}
	}

	lower := strings.ToLower(text)

	if len(p.allow) > 0 && !containsAny(lower, p.allow) {
		return Decision{Reason: ReasonKeywordMiss}
	}

	for _, k := range p.block {
		if strings.Contains(lower, k) {
			return Decision{Reason: ReasonBlocked, Keyword: k}
		}
	}

	return Decision{Eligible: true, Reason: ReasonAccepted}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Keywords returns the normalized allow and block lists.
func (p *Policy) Keywords() (allow, block []string) {
	return p.allow, p.block
}
