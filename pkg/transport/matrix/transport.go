// Copyright 2024-2026 Aiku AI

// Package matrix implements the relay transport as a plain Matrix client:
// rooms are followed over /sync and messages are sent as the relay account.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/affiliate-relay/pkg/markup"
	"github.com/aiku/affiliate-relay/pkg/relay"
)

// Transport relays through a single Matrix account.
type Transport struct {
	client *mautrix.Client
	log    zerolog.Logger
}

var (
	_ relay.Transport = (*Transport)(nil)
	_ relay.Checker   = (*Transport)(nil)
)

// New creates a Transport for userID using an existing access token.
func New(homeserverURL, userID, accessToken string, log zerolog.Logger) (*Transport, error) {
	client, err := mautrix.NewClient(homeserverURL, id.UserID(userID), accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	log = log.With().Str("component", "matrix").Logger()
	client.Log = log
	return &Transport{client: client, log: log}, nil
}

// Check verifies the access token and that the account has joined every room
// in roomIDs.
func (t *Transport) Check(ctx context.Context, roomIDs []string) error {
	who, err := t.client.Whoami(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify Matrix session: %w", err)
	}
	t.log.Info().Stringer("user_id", who.UserID).Msg("Authenticated")

	joined, err := t.client.JoinedRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to list joined rooms: %w", err)
	}
	var errs []error
	for _, roomID := range roomIDs {
		if !slices.Contains(joined.JoinedRooms, id.RoomID(roomID)) {
			errs = append(errs, fmt.Errorf("room %s: not joined", roomID))
			continue
		}
		t.log.Info().Str("room_id", roomID).Msg("Room accessible")
	}
	return errors.Join(errs...)
}

// Listen syncs until ctx is done and hands new messages in the source rooms
// to handle. Events from the initial sync are history and are skipped.
func (t *Transport) Listen(ctx context.Context, sources []string, handle relay.Handler) error {
	allowed := make(map[id.RoomID]struct{}, len(sources))
	for _, roomID := range sources {
		allowed[id.RoomID(roomID)] = struct{}{}
	}

	syncer := mautrix.NewDefaultSyncer()
	syncer.OnSync(t.client.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		if _, ok := allowed[evt.RoomID]; !ok {
			return
		}
		msg, ok := t.toMessage(evt)
		if !ok {
			return
		}
		handle(ctx, msg)
	})
	t.client.Syncer = syncer

	t.log.Info().Int("rooms", len(allowed)).Msg("Starting sync")
	if err := t.client.SyncWithContext(ctx); err != nil {
		return fmt.Errorf("sync stopped: %w", err)
	}
	return nil
}

// toMessage converts a room message event. Own events, edits and
// unsupported message types are skipped.
func (t *Transport) toMessage(evt *event.Event) (relay.Message, bool) {
	if evt.Sender == t.client.UserID {
		return relay.Message{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil || content.RelatesTo.GetReplaceID() != "" {
		return relay.Message{}, false
	}

	msg := relay.Message{
		ID:        evt.ID.String(),
		ChannelID: evt.RoomID.String(),
		Sender:    evt.Sender.String(),
	}
	switch content.MsgType {
	case event.MsgText, event.MsgNotice, event.MsgEmote:
		msg.Text = markup.ToMarkdown(content)
	case event.MsgImage, event.MsgVideo, event.MsgAudio, event.MsgFile:
		// Body only holds a caption when a separate file name is set.
		if content.FileName != "" && content.Body != content.FileName {
			msg.Text = markup.ToMarkdown(content)
		}
		msg.Attachment = content
	default:
		t.log.Debug().
			Stringer("event_id", evt.ID).
			Str("msgtype", string(content.MsgType)).
			Msg("Skipping unsupported message type")
		return relay.Message{}, false
	}
	return msg, true
}

// SendText sends text to roomID, with bare URLs linked in the HTML body.
func (t *Transport) SendText(ctx context.Context, roomID, text string) error {
	content := markup.ToHTML(text).Content(event.MsgText)
	if _, err := t.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendMedia re-sends the media of a source event to roomID with caption.
// The media is referenced by its content URI, not uploaded again.
// attachment must be the *event.MessageEventContent of the source event.
func (t *Transport) SendMedia(ctx context.Context, roomID string, attachment any, caption string) error {
	src, ok := attachment.(*event.MessageEventContent)
	if !ok || src == nil {
		return fmt.Errorf("unsupported attachment %T", attachment)
	}

	fileName := src.GetFileName()
	content := &event.MessageEventContent{
		MsgType: src.MsgType,
		URL:     src.URL,
		File:    src.File,
		Info:    src.Info,
		Body:    fileName,
	}
	if caption != "" {
		rendered := markup.ToHTML(caption)
		content.FileName = fileName
		content.Body = rendered.Body
		content.Format = rendered.Format
		content.FormattedBody = rendered.FormattedBody
	}

	if _, err := t.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content); err != nil {
		return fmt.Errorf("failed to send media: %w", err)
	}
	return nil
}
