// Copyright 2024-2026 Aiku AI

package links

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestExpand_FollowsRedirects(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hop", http.StatusFound)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/product/123?sp=1", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/product/123", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e := NewExpander(time.Second, zerolog.Nop())
	got := e.Expand(context.Background(), server.URL+"/short")

	want := server.URL + "/product/123?sp=1"
	if got != want {
		t.Errorf("Expand: got %q, want %q", got, want)
	}
}

func TestExpand_NoRedirectReturnsSameURL(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	e := NewExpander(time.Second, zerolog.Nop())
	in := server.URL + "/x"
	if got := e.Expand(context.Background(), in); got != in {
		t.Errorf("Expand: got %q, want %q", got, in)
	}
}

func TestExpand_ErrorReturnsInput(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL + "/short"
	server.Close()

	e := NewExpander(time.Second, zerolog.Nop())
	if got := e.Expand(context.Background(), url); got != url {
		t.Errorf("Expand on connection error: got %q, want input %q", got, url)
	}
}

func TestExpand_InvalidURLReturnsInput(t *testing.T) {
	t.Parallel()
	e := NewExpander(time.Second, zerolog.Nop())
	in := "http://[::1"
	if got := e.Expand(context.Background(), in); got != in {
		t.Errorf("Expand on invalid URL: got %q, want %q", got, in)
	}
}

func TestExpand_TimeoutReturnsInput(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	e := NewExpander(50*time.Millisecond, zerolog.Nop())
	in := server.URL + "/slow"
	if got := e.Expand(context.Background(), in); got != in {
		t.Errorf("Expand on timeout: got %q, want %q", got, in)
	}
}

func TestNewExpander_DefaultTimeout(t *testing.T) {
	t.Parallel()
	e := NewExpander(0, zerolog.Nop())
	if e.HTTPClient.Timeout != DefaultExpandTimeout {
		t.Errorf("timeout: got %v, want %v", e.HTTPClient.Timeout, DefaultExpandTimeout)
	}
}
