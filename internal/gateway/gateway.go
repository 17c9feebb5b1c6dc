// Package gateway connects the service to the chat platform: delivering
// messages through persona endpoints and raising inbound events.
package gateway

import (
	"context"
	"errors"
)

// ErrEndpointGone is returned when a persona's delivery endpoint no longer
// exists on the platform.
var ErrEndpointGone = errors.New("delivery endpoint no longer exists")

// Endpoint identifies a persona's delivery endpoint on the platform.
type Endpoint struct {
	ID     string
	Secret string
}

// MessageEvent is an inbound channel message.
type MessageEvent struct {
	MessageID  string `json:"message_id"`
	ChannelID  string `json:"channel_id"`
	GuildID    string `json:"guild_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	AuthorBot  bool   `json:"author_bot"`
	Content    string `json:"content"`

	// Set when the message replies to an earlier message.
	ReplyToMessageID string `json:"reply_to_message_id,omitempty"`
	ReplyToContent   string `json:"reply_to_content,omitempty"`
}

// ReactionEvent is an inbound reaction add or removal.
type ReactionEvent struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	Removed   bool   `json:"removed"`
}

// ButtonEvent is an inbound component interaction.
type ButtonEvent struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	CustomID  string `json:"custom_id"`
}

// ModalEvent is an inbound modal submission.
type ModalEvent struct {
	ChannelID string            `json:"channel_id"`
	GuildID   string            `json:"guild_id"`
	UserID    string            `json:"user_id"`
	CustomID  string            `json:"custom_id"`
	Values    map[string]string `json:"values"`
}

// Handler receives dispatched platform events. Each event arrives on its own
// goroutine; implementations own their synchronization.
type Handler interface {
	HandleMessage(ctx context.Context, ev MessageEvent)
	HandleReaction(ctx context.Context, ev ReactionEvent)
	HandleButton(ctx context.Context, ev ButtonEvent)
	HandleModal(ctx context.Context, ev ModalEvent)
}

// Messenger delivers and edits messages through the platform.
type Messenger interface {
	// CreateEndpoint provisions a delivery endpoint in a channel.
	CreateEndpoint(ctx context.Context, channelID, name, avatarURL string) (Endpoint, error)

	// SendMessage delivers text through a persona endpoint and returns the
	// platform message id.
	SendMessage(ctx context.Context, ep Endpoint, text string) (string, error)

	// ModifyMessage replaces the text of a previously delivered message.
	ModifyMessage(ctx context.Context, ep Endpoint, messageID, text string) error

	// DeleteEndpoint removes a delivery endpoint.
	DeleteEndpoint(ctx context.Context, ep Endpoint) error

	// SendChannelMessage posts a plain service message (notices, search UI).
	SendChannelMessage(ctx context.Context, channelID, text string) (string, error)

	// ModifyChannelMessage edits a plain service message.
	ModifyChannelMessage(ctx context.Context, channelID, messageID, text string) error

	// AddReaction attaches a reaction to a message.
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error

	// RemoveReactions strips all reactions from a message.
	RemoveReactions(ctx context.Context, channelID, messageID string) error
}
