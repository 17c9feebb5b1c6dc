// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/charcord/internal/domain"
)

// Repository defines the interface for persisting persona and watchdog data.
type Repository interface {
	// GetPersona retrieves a persona by id. Returns nil when not found.
	GetPersona(ctx context.Context, id string) (*domain.Persona, error)

	// ListChannelPersonas retrieves the personas spawned in a channel, oldest first.
	ListChannelPersonas(ctx context.Context, channelID string) ([]*domain.Persona, error)

	// FindPersonaByMessage retrieves the persona whose last delivered message has
	// the given platform message id. Returns nil when no persona matches.
	FindPersonaByMessage(ctx context.Context, messageID string) (*domain.Persona, error)

	// ListPersonas retrieves every persona, newest first.
	ListPersonas(ctx context.Context) ([]*domain.Persona, error)

	// UpsertPersona creates or fully replaces a persona record.
	UpsertPersona(ctx context.Context, p *domain.Persona) error

	// DeletePersona removes a persona and its local history.
	DeletePersona(ctx context.Context, id string) error

	// AppendHistory appends one turn to a persona's local history.
	AppendHistory(ctx context.Context, personaID, role, content string) error

	// GetHistory retrieves a persona's local history in chronological order.
	GetHistory(ctx context.Context, personaID string) ([]domain.HistoryEntry, error)

	// UpdateLastAssistant rewrites the content of the most recent assistant turn,
	// used when swipe navigation changes the displayed response.
	UpdateLastAssistant(ctx context.Context, personaID, content string) error

	// PruneHistory drops the oldest dropCount turns once a persona's history
	// exceeds highWater entries. Returns the number of turns removed.
	PruneHistory(ctx context.Context, personaID string, highWater, dropCount int) (int64, error)

	// GetGuildSettings retrieves guild-level defaults. Returns nil when unset.
	GetGuildSettings(ctx context.Context, guildID string) (*domain.GuildSettings, error)

	// UpsertGuildSettings creates or replaces guild-level defaults.
	UpsertGuildSettings(ctx context.Context, gs *domain.GuildSettings) error

	// GetBan retrieves an active ban for a user. Returns nil when not banned.
	GetBan(ctx context.Context, userID string) (*domain.Ban, error)

	// CreateBan records a durable ban.
	CreateBan(ctx context.Context, ban *domain.Ban) error

	// DeleteBan lifts a ban.
	DeleteBan(ctx context.Context, userID string) error

	// DeleteExpiredBans removes bans that lapsed before now.
	DeleteExpiredBans(ctx context.Context, now time.Time) (int64, error)

	// ListBans retrieves all bans, soonest-expiring first.
	ListBans(ctx context.Context) ([]*domain.Ban, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
