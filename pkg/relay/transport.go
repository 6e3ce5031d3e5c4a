// Copyright 2024-2026 Aiku AI

package relay

import "context"

// Message is an inbound chat message from a source channel.
type Message struct {
	ID        string
	ChannelID string
	Sender    string
	// Text is the message body, or the caption of a media message.
	Text string
	// Attachment is a transport-specific media reference, nil for plain text.
	// The relay never inspects it; it is handed back to SendMedia as is.
	Attachment any
}

// HasMedia reports whether the message carries an attachment.
func (m Message) HasMedia() bool {
	return m.Attachment != nil
}

// Handler processes one inbound message.
type Handler func(ctx context.Context, msg Message)

// Transport connects the relay to a chat platform.
type Transport interface {
	// Listen subscribes to the given channels and calls handle for every new
	// message in them, one at a time and in arrival order. It blocks until
	// ctx is done or the subscription fails permanently.
	Listen(ctx context.Context, sources []string, handle Handler) error
	// SendText posts text to channelID.
	SendText(ctx context.Context, channelID, text string) error
	// SendMedia posts attachment to channelID with caption.
	SendMedia(ctx context.Context, channelID string, attachment any, caption string) error
}

// Checker is implemented by transports that can verify their credentials and
// channel access without listening.
type Checker interface {
	Check(ctx context.Context, channelIDs []string) error
}
