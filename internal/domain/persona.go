// Package domain contains core domain types for the charcord service.
package domain

import (
	"strings"
	"time"
)

// BackendType identifies the conversational backend family a persona runs on.
type BackendType string

const (
	// BackendOpenAI is an OpenAI-compatible chat-completions endpoint.
	BackendOpenAI BackendType = "openai"
	// BackendKobold is a KoboldAI text-completion endpoint.
	BackendKobold BackendType = "kobold"
	// BackendHorde is the queue-based KoboldAI variant (submit then poll).
	BackendHorde BackendType = "horde"
	// BackendRemote is the legacy stateful backend; history lives server-side.
	BackendRemote BackendType = "remote"
)

// Valid reports whether b names a supported backend.
func (b BackendType) Valid() bool {
	switch b {
	case BackendOpenAI, BackendKobold, BackendHorde, BackendRemote:
		return true
	}
	return false
}

// Stateless reports whether the backend needs a locally built context window
// per call. The remote backend keeps conversation state on its own side.
func (b BackendType) Stateless() bool {
	return b != BackendRemote
}

// Persona is an instantiated chat personality bound to a channel-scoped
// delivery endpoint.
type Persona struct {
	ID        string
	GuildID   string
	ChannelID string
	Name      string

	// Delivery endpoint identity on the chat platform.
	EndpointID     string
	EndpointSecret string

	CallTrigger string
	Backend     BackendType

	// External character identity and card material.
	CharacterID string
	Definition  string
	Greeting    string

	// Response configuration.
	SwipesEnabled bool
	QuotesEnabled bool
	StopEnabled   bool
	ResponseDelay time.Duration
	ReplyChance   float64
	MessageFormat string

	// Provider settings overriding guild and global defaults.
	Overrides *GenerationOverrides

	// Conversation anchor.
	LastMessageID string
	LastCallerID  string
	SwipeIndex    int
	SkipNext      bool

	// Remote-backend conversation handle and branch pointer.
	RemoteChatID   string
	RemoteParentID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MatchTrigger reports whether content addresses this persona by call trigger
// and returns the content with the trigger stripped.
func (p *Persona) MatchTrigger(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if p.CallTrigger == "" || !strings.HasPrefix(trimmed, p.CallTrigger) {
		return "", false
	}
	rest := strings.TrimPrefix(trimmed, p.CallTrigger)
	if rest != "" && !strings.HasPrefix(rest, " ") {
		// "..heyo" must not match trigger "..hey".
		return "", false
	}
	return strings.TrimSpace(rest), true
}
