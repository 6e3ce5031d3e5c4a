// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package markup converts message bodies between Matrix HTML and the
// markdown the relay pipeline works on. Product links must survive both
// directions as bare URLs so they can be found and rewritten.
package markup

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

var (
	htmlStrongRe     = regexp.MustCompile(`(?s)<(?:strong|b)>(.*?)</(?:strong|b)>`)
	htmlEmRe         = regexp.MustCompile(`(?s)<(?:em|i)>(.*?)</(?:em|i)>`)
	htmlDelRe        = regexp.MustCompile(`(?s)<(?:del|s|strike)>(.*?)</(?:del|s|strike)>`)
	htmlCodeRe       = regexp.MustCompile(`<code>(.*?)</code>`)
	htmlPreRe        = regexp.MustCompile(`(?s)<pre><code[^>]*>(.*?)</code></pre>`)
	htmlLinkRe       = regexp.MustCompile(`(?s)<a href="([^"]+)"[^>]*>(.*?)</a>`)
	htmlBrRe         = regexp.MustCompile(`<br\s*/?>`)
	htmlBlockquoteRe = regexp.MustCompile(`(?s)<blockquote>(.*?)</blockquote>`)
	htmlHeadingRe    = regexp.MustCompile(`<h([1-6])>(.*?)</h[1-6]>`)
	htmlListRe       = regexp.MustCompile(`(?s)<(ul|ol)>(.*?)</(?:ul|ol)>`)
	htmlItemRe       = regexp.MustCompile(`(?s)<li>(.*?)</li>`)
	htmlParagraphRe  = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	htmlReplyRe      = regexp.MustCompile(`(?s)<mx-reply>.*?</mx-reply>`)
	htmlTagRe        = regexp.MustCompile(`<[^>]+>`)
	blankLinesRe     = regexp.MustCompile(`\n{3,}`)
)

// ToMarkdown returns the text of a Matrix message as markdown. Plain text
// bodies are returned unchanged. Links whose label is the URL itself become
// bare URLs; other links become [label](url).
func ToMarkdown(content *event.MessageEventContent) string {
	if content == nil {
		return ""
	}
	if content.Format != event.FormatHTML || content.FormattedBody == "" {
		return content.Body
	}

	text := htmlReplyRe.ReplaceAllString(content.FormattedBody, "")

	text = htmlPreRe.ReplaceAllString(text, "```\n$1\n```")
	text = htmlCodeRe.ReplaceAllString(text, "`$1`")

	text = htmlStrongRe.ReplaceAllString(text, "**$1**")
	text = htmlEmRe.ReplaceAllString(text, "_${1}_")
	text = htmlDelRe.ReplaceAllString(text, "~~$1~~")

	text = htmlLinkRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := htmlLinkRe.FindStringSubmatch(match)
		href, label := parts[1], htmlTagRe.ReplaceAllString(parts[2], "")
		if label == "" || label == href {
			return href
		}
		return "[" + label + "](" + href + ")"
	})

	text = htmlHeadingRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := htmlHeadingRe.FindStringSubmatch(match)
		level, _ := strconv.Atoi(parts[1])
		return strings.Repeat("#", level) + " " + parts[2]
	})

	text = htmlBlockquoteRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := htmlBlockquoteRe.FindStringSubmatch(match)
		inner := htmlParagraphRe.ReplaceAllString(parts[1], "$1\n")
		inner = htmlBrRe.ReplaceAllString(inner, "\n")
		lines := strings.Split(strings.TrimSpace(inner), "\n")
		for i, line := range lines {
			lines[i] = "> " + strings.TrimSpace(line)
		}
		return strings.Join(lines, "\n") + "\n"
	})

	text = htmlListRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := htmlListRe.FindStringSubmatch(match)
		items := htmlItemRe.FindAllStringSubmatch(parts[2], -1)
		result := make([]string, 0, len(items))
		for i, item := range items {
			marker := "-"
			if parts[1] == "ol" {
				marker = strconv.Itoa(i+1) + "."
			}
			result = append(result, marker+" "+strings.TrimSpace(item[1]))
		}
		return strings.Join(result, "\n") + "\n"
	})

	text = htmlParagraphRe.ReplaceAllString(text, "$1\n\n")
	text = htmlBrRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
