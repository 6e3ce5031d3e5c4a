// Copyright 2024-2026 Aiku AI

package rewrite

import (
	"fmt"
	"regexp"
	"strings"
)

// Substitution replaces every case-insensitive occurrence of Original with
// Replacement. Original is matched literally.
type Substitution struct {
	Original    string
	Replacement string
}

// ParseSubstitution parses an "original:replacement" pair. Only the first
// colon separates the two halves, so the replacement may contain colons.
func ParseSubstitution(pair string) (Substitution, error) {
	original, replacement, ok := strings.Cut(pair, ":")
	if !ok {
		return Substitution{}, fmt.Errorf("substitution %q is missing ':'", pair)
	}
	original = strings.TrimSpace(original)
	if original == "" {
		return Substitution{}, fmt.Errorf("substitution %q has an empty original", pair)
	}
	return Substitution{Original: original, Replacement: strings.TrimSpace(replacement)}, nil
}

type compiledSubstitution struct {
	Substitution
	pattern *regexp.Regexp
}

// WordReplacer applies an ordered list of substitutions. Each substitution
// sees the output of the previous one, so [(A,B),(B,C)] turns "A" into "C".
type WordReplacer struct {
	subs []compiledSubstitution
}

// NewWordReplacer compiles subs in order. Empty originals are rejected since
// they would match between every character; so are originals that are not
// valid UTF-8.
func NewWordReplacer(subs []Substitution) (*WordReplacer, error) {
	w := &WordReplacer{subs: make([]compiledSubstitution, 0, len(subs))}
	for _, s := range subs {
		if s.Original == "" {
			return nil, fmt.Errorf("substitution with empty original")
		}
		pattern, err := regexp.Compile("(?i)" + regexp.QuoteMeta(s.Original))
		if err != nil {
			return nil, fmt.Errorf("substitution %q: %w", s.Original, err)
		}
		w.subs = append(w.subs, compiledSubstitution{Substitution: s, pattern: pattern})
	}
	return w, nil
}

// Substitutions returns the configured pairs in application order.
func (w *WordReplacer) Substitutions() []Substitution {
	out := make([]Substitution, len(w.subs))
	for i, s := range w.subs {
		out[i] = s.Substitution
	}
	return out
}

// Replace applies every substitution to text in order.
func (w *WordReplacer) Replace(text string) string {
	for _, s := range w.subs {
		text = s.pattern.ReplaceAllLiteralString(text, s.Replacement)
	}
	return text
}
