// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package affiliate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Credentials identify the affiliate application. They are fixed for the
// lifetime of the process.
type Credentials struct {
	AppID  string
	Secret string
}

// SignedRequest is a request body together with the timestamp and signature
// that authenticate it. A SignedRequest must not be reused: the API rejects
// stale timestamps.
type SignedRequest struct {
	Body      string
	Timestamp int64
	Signature string
}

// Signer computes request signatures for the affiliate API.
type Signer struct {
	Credentials Credentials
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewSigner creates a Signer using the wall clock.
func NewSigner(creds Credentials) *Signer {
	return &Signer{Credentials: creds, Now: time.Now}
}

// Sign signs payload with the current Unix time in whole seconds.
func (s *Signer) Sign(payload string) SignedRequest {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.SignAt(payload, now().Unix())
}

// SignAt signs payload with a fixed timestamp. The signature is the hex
// encoded SHA-256 of appID, timestamp, payload and secret concatenated with
// no delimiters.
func (s *Signer) SignAt(payload string, ts int64) SignedRequest {
	tsStr := strconv.FormatInt(ts, 10)
	h := sha256.New()
	h.Write([]byte(s.Credentials.AppID))
	h.Write([]byte(tsStr))
	h.Write([]byte(payload))
	h.Write([]byte(s.Credentials.Secret))
	return SignedRequest{
		Body:      payload,
		Timestamp: ts,
		Signature: hex.EncodeToString(h.Sum(nil)),
	}
}

// Header renders the Authorization header value for the request.
func (r SignedRequest) Header(appID string) string {
	return fmt.Sprintf("SHA256 Credential=%s, Timestamp=%d, Signature=%s", appID, r.Timestamp, r.Signature)
}
