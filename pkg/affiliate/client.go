// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package affiliate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultEndpoint is the Shopee Affiliate Open API GraphQL endpoint.
	DefaultEndpoint = "https://open-api.affiliate.shopee.com.br/graphql"
	// DefaultTimeout bounds a single link generation call.
	DefaultTimeout = 30 * time.Second

	// maxResponseSize caps how much of a response body is read (1 MB).
	maxResponseSize = 1 << 20
)

// DefaultSubIDs are the sub identifiers sent when none are configured.
var DefaultSubIDs = []string{"s1", "s2", "s3", "s4", "s5"}

// Client mints affiliate-tracked links through the generateShortLink mutation.
type Client struct {
	signer   *Signer
	endpoint string
	subIDs   []string

	HTTPClient *http.Client
}

// NewClient creates a Client. An empty endpoint selects DefaultEndpoint and
// empty subIDs select DefaultSubIDs.
func NewClient(creds Credentials, endpoint string, subIDs []string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if len(subIDs) == 0 {
		subIDs = DefaultSubIDs
	}
	return &Client{
		signer:     NewSigner(creds),
		endpoint:   endpoint,
		subIDs:     subIDs,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data *struct {
		GenerateShortLink *struct {
			ShortLink string `json:"shortLink"`
		} `json:"generateShortLink"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// GenerateTrackedLink asks the API for a tracked link pointing at originURL.
// The call is never retried; every failure is returned as a Result with a
// Reason rather than as an error.
func (c *Client) GenerateTrackedLink(ctx context.Context, originURL string, subIDs ...string) Result {
	if len(subIDs) == 0 {
		subIDs = c.subIDs
	}
	body, err := buildRequestBody(originURL, subIDs)
	if err != nil {
		return failure(ReasonTransport, fmt.Errorf("%w: build request: %v", ErrTransport, err))
	}

	signed := c.signer.Sign(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(signed.Body))
	if err != nil {
		return failure(ReasonTransport, fmt.Errorf("%w: create request: %v", ErrTransport, err))
	}
	req.Header.Set("Authorization", signed.Header(c.signer.Credentials.AppID))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return failure(ReasonTransport, fmt.Errorf("%w: %v", ErrTransport, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return failure(ReasonTransport, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return failure(ReasonTransport, fmt.Errorf("%w: read body: %v", ErrTransport, err))
	}

	var parsed graphQLResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return failure(ReasonDecode, fmt.Errorf("%w: %v", ErrDecode, err))
	}

	if len(parsed.Errors) > 0 {
		msgs := make([]string, 0, len(parsed.Errors))
		for _, e := range parsed.Errors {
			msgs = append(msgs, e.Message)
		}
		return failure(ReasonAPIError, fmt.Errorf("%w: %s", ErrAPI, strings.Join(msgs, "; ")))
	}

	if parsed.Data == nil || parsed.Data.GenerateShortLink == nil || parsed.Data.GenerateShortLink.ShortLink == "" {
		return failure(ReasonNotFound, fmt.Errorf("%w: %s", ErrNotFound, truncate(string(raw), 200)))
	}

	return success(parsed.Data.GenerateShortLink.ShortLink)
}

// buildRequestBody renders the JSON request body. The origin URL and sub IDs
// are embedded as JSON literals, which are also valid GraphQL literals.
func buildRequestBody(originURL string, subIDs []string) (string, error) {
	urlLit, err := marshalLiteral(originURL)
	if err != nil {
		return "", err
	}
	idsLit, err := marshalLiteral(subIDs)
	if err != nil {
		return "", err
	}
	query := fmt.Sprintf(
		"mutation { generateShortLink(input: { originUrl: %s, subIds: %s }) { shortLink } }",
		urlLit, idsLit,
	)
	return marshalLiteral(graphQLRequest{Query: query})
}

// marshalLiteral encodes v as compact JSON without HTML escaping.
func marshalLiteral(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
