// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mattermost implements the relay transport over the Mattermost
// REST API and WebSocket event stream.
package mattermost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/affiliate-relay/pkg/relay"
)

// DefaultReconnectDelay is the pause between WebSocket reconnect attempts.
const DefaultReconnectDelay = 5 * time.Second

var errEventStreamClosed = errors.New("websocket event channel closed")

// Transport relays through a single Mattermost account.
type Transport struct {
	client    *model.Client4
	serverURL string
	botPrefix string
	userID    string

	ReconnectDelay time.Duration

	log zerolog.Logger
}

var (
	_ relay.Transport = (*Transport)(nil)
	_ relay.Checker   = (*Transport)(nil)
)

// New creates a Transport authenticated with token. Posts from usernames
// starting with botPrefix are ignored; an empty prefix disables the check.
func New(serverURL, token, botPrefix string, log zerolog.Logger) *Transport {
	serverURL = strings.TrimRight(serverURL, "/")
	client := model.NewAPIv4Client(serverURL)
	client.SetToken(token)
	return &Transport{
		client:         client,
		serverURL:      serverURL,
		botPrefix:      botPrefix,
		ReconnectDelay: DefaultReconnectDelay,
		log:            log.With().Str("component", "mattermost").Logger(),
	}
}

func (t *Transport) authenticate(ctx context.Context) error {
	me, _, err := t.client.GetMe(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to verify Mattermost session: %w", err)
	}
	t.userID = me.Id
	t.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")
	return nil
}

// Check verifies the token and that every channel in channelIDs is readable.
func (t *Transport) Check(ctx context.Context, channelIDs []string) error {
	if err := t.authenticate(ctx); err != nil {
		return err
	}
	var errs []error
	for _, id := range channelIDs {
		ch, _, err := t.client.GetChannel(ctx, id, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", id, err))
			continue
		}
		t.log.Info().Str("channel_id", id).Str("channel_name", ch.Name).Msg("Channel accessible")
	}
	return errors.Join(errs...)
}

// Listen authenticates, then follows the WebSocket event stream and hands
// new posts in sources to handle. The stream is reopened when the server
// drops it. Listen returns ctx.Err() once ctx is done.
func (t *Transport) Listen(ctx context.Context, sources []string, handle relay.Handler) error {
	if err := t.authenticate(ctx); err != nil {
		return err
	}

	allowed := make(map[string]struct{}, len(sources))
	for _, id := range sources {
		allowed[id] = struct{}{}
	}

	wsURL := httpToWS(t.serverURL)
	first := true
	for {
		ws, err := model.NewWebSocketClient4(wsURL, t.client.AuthToken)
		if err != nil {
			if first {
				return fmt.Errorf("failed to create websocket client: %w", err)
			}
			t.log.Err(err).Msg("Failed to reconnect WebSocket")
		} else {
			first = false
			ws.Listen()
			t.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")
			err = t.consume(ctx, ws.EventChannel, allowed, handle)
			ws.Close()
			if errors.Is(err, errEventStreamClosed) {
				t.log.Warn().Msg("WebSocket event channel closed, reconnecting")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.ReconnectDelay):
		}
	}
}

// consume dispatches events until ctx is done or events is closed.
func (t *Transport) consume(ctx context.Context, events <-chan *model.WebSocketEvent, allowed map[string]struct{}, handle relay.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return errEventStreamClosed
			}
			if evt == nil || evt.EventType() != model.WebsocketEventPosted {
				continue
			}
			msg, err := t.parsePostedEvent(evt)
			if err != nil {
				t.log.Err(err).Msg("Failed to parse posted event")
				continue
			}
			if msg == nil {
				continue
			}
			if _, ok := allowed[msg.ChannelID]; !ok {
				continue
			}
			handle(ctx, *msg)
		}
	}
}

// parsePostedEvent converts a posted event into a relay message, applying
// echo prevention. Returns (nil, nil) for posts that must be skipped.
func (t *Transport) parsePostedEvent(evt *model.WebSocketEvent) (*relay.Message, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("posted event missing post data")
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	if post.UserId == t.userID {
		return nil, nil
	}
	// System messages (joins, header changes) have a non-default type.
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, nil
	}

	senderName, _ := evt.GetData()["sender_name"].(string)
	senderName = strings.TrimPrefix(senderName, "@")
	if t.botPrefix != "" && strings.HasPrefix(senderName, t.botPrefix) {
		t.log.Debug().
			Str("post_id", post.Id).
			Str("username", senderName).
			Msg("Skipping bot post (echo prevention)")
		return nil, nil
	}
	if senderName == "" {
		senderName = post.UserId
	}

	msg := &relay.Message{
		ID:        post.Id,
		ChannelID: post.ChannelId,
		Sender:    senderName,
		Text:      post.Message,
	}
	if len(post.FileIds) > 0 {
		msg.Attachment = []string(post.FileIds)
	}
	return msg, nil
}

// SendText creates a post in channelID.
func (t *Transport) SendText(ctx context.Context, channelID, text string) error {
	_, _, err := t.client.CreatePost(ctx, &model.Post{ChannelId: channelID, Message: text})
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// SendMedia re-uploads the files of a source post to channelID and posts
// them with caption. attachment must be the []string of source file IDs.
func (t *Transport) SendMedia(ctx context.Context, channelID string, attachment any, caption string) error {
	fileIDs, ok := attachment.([]string)
	if !ok || len(fileIDs) == 0 {
		return fmt.Errorf("unsupported attachment %T", attachment)
	}

	uploaded := make([]string, 0, len(fileIDs))
	for _, fileID := range fileIDs {
		newID, err := t.copyFile(ctx, fileID, channelID)
		if err != nil {
			return err
		}
		uploaded = append(uploaded, newID)
	}

	post := &model.Post{ChannelId: channelID, Message: caption, FileIds: uploaded}
	if _, _, err := t.client.CreatePost(ctx, post); err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// copyFile downloads a file and uploads it to channelID, returning the new file ID.
func (t *Transport) copyFile(ctx context.Context, fileID, channelID string) (string, error) {
	info, _, err := t.client.GetFileInfo(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("failed to get file info %s: %w", fileID, err)
	}
	data, _, err := t.client.GetFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("failed to download file %s: %w", fileID, err)
	}

	filename := info.Name
	if filename == "" {
		filename = "upload"
	}
	resp, _, err := t.client.UploadFile(ctx, data, channelID, filename)
	if err != nil {
		return "", fmt.Errorf("failed to upload file %s: %w", fileID, err)
	}
	if len(resp.FileInfos) == 0 {
		return "", fmt.Errorf("no file info returned from upload")
	}
	t.log.Debug().
		Str("file_id", fileID).
		Str("new_file_id", resp.FileInfos[0].Id).
		Str("mime_type", info.MimeType).
		Msg("Copied file")
	return resp.FileInfos[0].Id, nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if rest, ok := strings.CutPrefix(url, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(url, "http://"); ok {
		return "ws://" + rest
	}
	return url
}
