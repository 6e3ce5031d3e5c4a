// Copyright 2024-2026 Aiku AI

package markup

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

// Rendered is a message body ready to send to Matrix.
type Rendered struct {
	Body          string
	Format        event.Format
	FormattedBody string
}

// Content builds message event content of the given type from r.
func (r Rendered) Content(msgType event.MessageType) *event.MessageEventContent {
	return &event.MessageEventContent{
		MsgType:       msgType,
		Body:          r.Body,
		Format:        r.Format,
		FormattedBody: r.FormattedBody,
	}
}

var (
	mdBoldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalicRe     = regexp.MustCompile(`(^|[^\w*])_([^_]+?)_($|[^\w*])`)
	mdStrikeRe     = regexp.MustCompile(`~~(.+?)~~`)
	mdCodeRe       = regexp.MustCompile("`([^`]+)`")
	mdCodeBlockRe  = regexp.MustCompile("(?s)```(\\w+)?\\n?(.*?)```")
	mdLinkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	mdHeadingRe    = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	mdListRe       = regexp.MustCompile(`^[-*]\s+(.+)$`)
	mdOrderedRe    = regexp.MustCompile(`^\d+\.\s+(.+)$`)
	mdBlockquoteRe = regexp.MustCompile(`^>\s?(.*)$`)
	bareURLRe      = regexp.MustCompile(`https?://(?:[^\s<>"&]|&amp;)+`)
	placeholderRe  = regexp.MustCompile("\x00([CLU])(\\d+)\x00")
)

// ToHTML renders markdown text for Matrix. Bare URLs are linked so clients
// show them as clickable even when they do not linkify on their own. Text
// with neither formatting nor URLs is returned as plain body only.
func ToHTML(text string) Rendered {
	if text == "" {
		return Rendered{}
	}
	if !needsHTML(text) {
		return Rendered{Body: text}
	}

	var codeBlocks []string
	processed := mdCodeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := mdCodeBlockRe.FindStringSubmatch(match)
		content := html.EscapeString(parts[2])
		block := `<pre><code>` + content + `</code></pre>`
		if parts[1] != "" {
			block = `<pre><code class="language-` + html.EscapeString(parts[1]) + `">` + content + `</code></pre>`
		}
		codeBlocks = append(codeBlocks, block)
		return "\x00C" + strconv.Itoa(len(codeBlocks)-1) + "\x00"
	})

	// Markdown links are pulled out before escaping so their URLs are not
	// linked a second time.
	var anchors []string
	processed = mdLinkRe.ReplaceAllStringFunc(processed, func(match string) string {
		parts := mdLinkRe.FindStringSubmatch(match)
		label, href := html.EscapeString(parts[1]), parts[2]
		if !isSafeURL(href) {
			anchors = append(anchors, label)
		} else {
			anchors = append(anchors, `<a href="`+html.EscapeString(href)+`">`+label+`</a>`)
		}
		return "\x00L" + strconv.Itoa(len(anchors)-1) + "\x00"
	})

	formatted := renderBlocks(processed)

	// Bare URLs are linked and hidden from the inline rules, which would
	// otherwise treat underscores in paths as emphasis.
	var urls []string
	formatted = bareURLRe.ReplaceAllStringFunc(formatted, func(match string) string {
		urls = append(urls, autolink(match))
		return "\x00U" + strconv.Itoa(len(urls)-1) + "\x00"
	})

	formatted = mdCodeRe.ReplaceAllString(formatted, "<code>$1</code>")
	formatted = mdBoldRe.ReplaceAllString(formatted, "<strong>$1</strong>")
	formatted = mdStrikeRe.ReplaceAllString(formatted, "<del>$1</del>")
	formatted = mdItalicRe.ReplaceAllString(formatted, "$1<em>$2</em>$3")

	formatted = strings.ReplaceAll(formatted, "\n\n", "</p><p>")
	formatted = strings.ReplaceAll(formatted, "\n", "<br/>")
	if strings.Contains(formatted, "</p><p>") {
		formatted = "<p>" + formatted + "</p>"
	}

	// Code blocks go back in last so their newlines are kept verbatim.
	formatted = placeholderRe.ReplaceAllStringFunc(formatted, func(match string) string {
		parts := placeholderRe.FindStringSubmatch(match)
		idx, _ := strconv.Atoi(parts[2])
		switch parts[1] {
		case "C":
			return codeBlocks[idx]
		case "U":
			return urls[idx]
		default:
			return anchors[idx]
		}
	})

	return Rendered{
		Body:          text,
		Format:        event.FormatHTML,
		FormattedBody: formatted,
	}
}

func needsHTML(text string) bool {
	if bareURLRe.MatchString(text) {
		return true
	}
	for _, re := range []*regexp.Regexp{mdBoldRe, mdItalicRe, mdStrikeRe, mdCodeRe, mdCodeBlockRe, mdLinkRe} {
		if re.MatchString(text) {
			return true
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if mdHeadingRe.MatchString(line) || mdListRe.MatchString(line) ||
			mdOrderedRe.MatchString(line) || mdBlockquoteRe.MatchString(line) {
			return true
		}
	}
	return false
}

// renderBlocks escapes text line by line and converts headings, lists and
// blockquotes.
func renderBlocks(text string) string {
	var result, items []string
	var listTag string
	flush := func() {
		if len(items) > 0 {
			result = append(result, "<"+listTag+">"+strings.Join(items, "")+"</"+listTag+">")
			items, listTag = nil, ""
		}
	}
	item := func(tag, body string) {
		if listTag != tag {
			flush()
			listTag = tag
		}
		items = append(items, "<li>"+html.EscapeString(body)+"</li>")
	}

	for _, line := range strings.Split(text, "\n") {
		if m := mdBlockquoteRe.FindStringSubmatch(line); m != nil {
			flush()
			result = append(result, "<blockquote>"+html.EscapeString(m[1])+"</blockquote>")
		} else if m := mdHeadingRe.FindStringSubmatch(line); m != nil {
			flush()
			lvl := strconv.Itoa(len(m[1]))
			result = append(result, "<h"+lvl+">"+html.EscapeString(m[2])+"</h"+lvl+">")
		} else if m := mdListRe.FindStringSubmatch(line); m != nil {
			item("ul", m[1])
		} else if m := mdOrderedRe.FindStringSubmatch(line); m != nil {
			item("ol", m[1])
		} else {
			flush()
			result = append(result, html.EscapeString(line))
		}
	}
	flush()
	return strings.Join(result, "\n")
}

// autolink wraps an escaped bare URL in an anchor. Trailing sentence
// punctuation stays outside the link.
func autolink(escaped string) string {
	trimmed := strings.TrimRight(escaped, ".,;:!?)")
	// Keep "&amp;" intact when the URL ends in an entity.
	if strings.HasSuffix(escaped, ";") && strings.HasSuffix(trimmed, "&amp") {
		trimmed += ";"
	}
	rest := escaped[len(trimmed):]
	return `<a href="` + trimmed + `">` + trimmed + `</a>` + rest
}

func isSafeURL(href string) bool {
	lower := strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "mailto:")
}
