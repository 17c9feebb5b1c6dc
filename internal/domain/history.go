package domain

import "time"

// Message roles in persisted history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryEntry is one persisted turn of a persona's local conversation history.
// Only stateless backends keep local history; the remote backend stores its
// conversation server-side.
type HistoryEntry struct {
	PersonaID string `json:"-"`
	Seq       int    `json:"seq"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt time.Time
}

// Ban is a durable watchdog ban record.
type Ban struct {
	UserID    string
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the ban has lapsed at the given instant.
func (b *Ban) Expired(now time.Time) bool {
	return now.After(b.ExpiresAt)
}

// CharacterCard is a search result / spawn source from a character catalog or
// the remote backend's character directory.
type CharacterCard struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Tagline    string `json:"tagline,omitempty"`
	Greeting   string `json:"greeting,omitempty"`
	Definition string `json:"definition,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
}
