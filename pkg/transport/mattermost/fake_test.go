// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/mattermost/mattermost/server/public/model"
)

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeMM simulates the parts of the Mattermost API the transport uses.
type fakeMM struct {
	Server *httptest.Server

	mu      sync.Mutex
	calls   []endpointCall
	posts   []model.Post
	uploads int

	Me       *model.User
	Token    string
	Channels map[string]*model.Channel
	Files    map[string]*model.FileInfo
	FileData map[string][]byte
	// FailEndpoints causes paths containing a key to return 500.
	FailEndpoints map[string]bool
}

func newFakeMM() *fakeMM {
	f := &fakeMM{
		Me:            &model.User{Id: "relay-user-id", Username: "relay"},
		Token:         "test-token",
		Channels:      make(map[string]*model.Channel),
		Files:         make(map[string]*model.FileInfo),
		FileData:      make(map[string][]byte),
		FailEndpoints: make(map[string]bool),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeMM) Close() {
	f.Server.Close()
}

func (f *fakeMM) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]endpointCall(nil), f.calls...)
}

func (f *fakeMM) Posts() []model.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Post(nil), f.posts...)
}

func (f *fakeMM) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return auth == "BEARER "+f.Token || auth == "Bearer "+f.Token
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"message": msg, "status_code": status})
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, endpointCall{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	f.mu.Unlock()

	for prefix := range f.FailEndpoints {
		if strings.Contains(r.URL.Path, prefix) {
			writeError(w, http.StatusInternalServerError, "fake error")
			return
		}
	}
	if !f.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/api/v4/users/me":
		_ = json.NewEncoder(w).Encode(f.Me)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/channels/"):
		id := strings.TrimPrefix(path, "/api/v4/channels/")
		if ch, ok := f.Channels[id]; ok {
			_ = json.NewEncoder(w).Encode(ch)
			return
		}
		writeError(w, http.StatusNotFound, "channel not found")

	case r.Method == http.MethodPost && path == "/api/v4/posts":
		var post model.Post
		_ = json.Unmarshal(body, &post)
		post.Id = "created-post-id"
		f.mu.Lock()
		f.posts = append(f.posts, post)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(&post)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/files/") && strings.HasSuffix(path, "/info"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v4/files/"), "/info")
		if fi, ok := f.Files[id]; ok {
			_ = json.NewEncoder(w).Encode(fi)
			return
		}
		writeError(w, http.StatusNotFound, "file not found")

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/files/"):
		id := strings.TrimPrefix(path, "/api/v4/files/")
		if data, ok := f.FileData[id]; ok {
			_, _ = w.Write(data)
			return
		}
		writeError(w, http.StatusNotFound, "file not found")

	case r.Method == http.MethodPost && path == "/api/v4/files":
		f.mu.Lock()
		f.uploads++
		id := "uploaded-" + strconv.Itoa(f.uploads)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&model.FileUploadResponse{
			FileInfos: []*model.FileInfo{{Id: id, Name: "upload"}},
		})

	default:
		writeError(w, http.StatusNotFound, "not found: "+path)
	}
}

// newWebSocketEvent creates a model.WebSocketEvent for testing handlers.
func newWebSocketEvent(eventType model.WebsocketEventType, channelID string, data map[string]any) *model.WebSocketEvent {
	evt := model.NewWebSocketEvent(eventType, "", channelID, "", nil, "")
	return evt.SetData(data)
}

// postedEvent builds a posted event carrying post as its JSON payload.
func postedEvent(post *model.Post, senderName string) *model.WebSocketEvent {
	raw, _ := json.Marshal(post)
	return newWebSocketEvent(model.WebsocketEventPosted, post.ChannelId, map[string]any{
		"post":        string(raw),
		"sender_name": senderName,
	})
}
