// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package links finds marketplace product links in free text and resolves
// shortlinks to their canonical form.
package links

import (
	"net/url"
	"regexp"
	"strings"
)

// ShortLinkHost is the host of marketplace shortlinks, which must be expanded
// before they can be converted.
const ShortLinkHost = "s.shopee.com.br"

// linkRe matches product links. The path stops at whitespace and at `) ] "`
// so links wrapped in markdown or quotes are not over-captured.
var linkRe = regexp.MustCompile(`https?://(?:s\.)?shopee\.com(?:\.br)?/[^\s)\]"]+`)

// eligibleDomains are the marketplace domains (all regions) accepted for
// conversion.
var eligibleDomains = []string{
	"shopee.com",
	"shopee.co.id",
	"shopee.com.my",
	"shopee.com.sg",
	"shopee.com.ph",
	"shopee.co.th",
	"shopee.vn",
	"shopee.com.tw",
	"shopee.com.br",
}

// Candidate is a link found in a message.
type Candidate struct {
	Raw   string
	Short bool
}

// FindLinks returns every product link in text in order of appearance.
// Repeated links are returned once per occurrence.
func FindLinks(text string) []string {
	return linkRe.FindAllString(text, -1)
}

// HasLinks reports whether text contains at least one product link.
func HasLinks(text string) bool {
	return linkRe.MatchString(text)
}

// Candidates is FindLinks with each match classified as shortlink or not.
func Candidates(text string) []Candidate {
	found := FindLinks(text)
	if len(found) == 0 {
		return nil
	}
	out := make([]Candidate, len(found))
	for i, raw := range found {
		out[i] = Candidate{Raw: raw, Short: IsShortLink(raw)}
	}
	return out
}

// IsShortLink reports whether rawURL points at the shortlink host.
func IsShortLink(rawURL string) bool {
	return hostOf(rawURL) == ShortLinkHost
}

// IsEligibleDomain reports whether the host of rawURL contains one of the
// known marketplace domains.
func IsEligibleDomain(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	for _, d := range eligibleDomains {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

// hostOf returns the lower-cased host of rawURL without port, or "" if the
// URL cannot be parsed.
func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
