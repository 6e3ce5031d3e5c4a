// Copyright 2024-2026 Aiku AI

package affiliate

import "errors"

// Reason classifies the outcome of a tracked link request.
type Reason int

const (
	// ReasonNone means the request succeeded.
	ReasonNone Reason = iota
	// ReasonTransport covers connection errors, timeouts and non-2xx statuses.
	ReasonTransport
	// ReasonDecode means the response body was not the expected JSON shape.
	ReasonDecode
	// ReasonAPIError means the response carried a GraphQL errors array.
	ReasonAPIError
	// ReasonNotFound means the response parsed but had no shortLink.
	ReasonNotFound
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "ok"
	case ReasonTransport:
		return "transport"
	case ReasonDecode:
		return "decode"
	case ReasonAPIError:
		return "api_error"
	case ReasonNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

var (
	ErrTransport = errors.New("affiliate api transport error")
	ErrDecode    = errors.New("affiliate api response decode error")
	ErrAPI       = errors.New("affiliate api returned errors")
	ErrNotFound  = errors.New("affiliate api response has no short link")
)

// Result is the outcome of a single GenerateTrackedLink call. Exactly one of
// TrackedURL (on success) or Err (on failure) is set.
type Result struct {
	TrackedURL string
	Reason     Reason
	Err        error
}

// OK reports whether a tracked link was produced.
func (r Result) OK() bool {
	return r.Reason == ReasonNone && r.TrackedURL != ""
}

func success(url string) Result {
	return Result{TrackedURL: url, Reason: ReasonNone}
}

func failure(reason Reason, err error) Result {
	return Result{Reason: reason, Err: err}
}
