// Copyright 2024-2026 Aiku AI

package links

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultExpandTimeout bounds a single shortlink resolution.
const DefaultExpandTimeout = 10 * time.Second

// Expander resolves shortlinks by following HTTP redirects.
type Expander struct {
	HTTPClient *http.Client
	log        zerolog.Logger
}

// NewExpander creates an Expander with the given per-request timeout. A zero
// timeout selects DefaultExpandTimeout.
func NewExpander(timeout time.Duration, log zerolog.Logger) *Expander {
	if timeout <= 0 {
		timeout = DefaultExpandTimeout
	}
	return &Expander{
		HTTPClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "expander").Logger(),
	}
}

// Expand returns the URL shortURL finally redirects to. Expansion is best
// effort: on any error the input is returned unchanged.
func (e *Expander) Expand(ctx context.Context, shortURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		e.log.Warn().Err(err).Str("url", shortURL).Msg("Failed to build shortlink request")
		return shortURL
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.log.Warn().Err(err).Str("url", shortURL).Msg("Failed to expand shortlink")
		return shortURL
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	final := resp.Request.URL.String()
	e.log.Debug().
		Str("url", shortURL).
		Str("expanded", final).
		Int("status", resp.StatusCode).
		Msg("Expanded shortlink")
	return final
}
