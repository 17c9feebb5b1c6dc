package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/charcord/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	historyMu sync.Mutex // serializes history writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS personas (
		id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		name TEXT NOT NULL,
		endpoint_id TEXT NOT NULL,
		endpoint_secret TEXT NOT NULL,
		call_trigger TEXT NOT NULL,
		backend TEXT NOT NULL,
		character_id TEXT,
		definition TEXT,
		greeting TEXT,
		swipes_enabled INTEGER NOT NULL DEFAULT 1,
		quotes_enabled INTEGER NOT NULL DEFAULT 1,
		stop_enabled INTEGER NOT NULL DEFAULT 1,
		response_delay_ms INTEGER NOT NULL DEFAULT 0,
		reply_chance REAL NOT NULL DEFAULT 1.0,
		message_format TEXT NOT NULL DEFAULT '',
		overrides_json TEXT,
		last_message_id TEXT,
		last_caller_id TEXT,
		swipe_index INTEGER NOT NULL DEFAULT 0,
		skip_next INTEGER NOT NULL DEFAULT 0,
		remote_chat_id TEXT,
		remote_parent_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_personas_channel ON personas(channel_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_personas_last_msg ON personas(last_message_id) WHERE last_message_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS persona_history (
		persona_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (persona_id, seq)
	);

	CREATE TABLE IF NOT EXISTS guild_settings (
		guild_id TEXT PRIMARY KEY,
		overrides_json TEXT,
		message_format TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bans (
		user_id TEXT PRIMARY KEY,
		reason TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bans_expires ON bans(expires_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const personaColumns = `id, guild_id, channel_id, name, endpoint_id, endpoint_secret,
	call_trigger, backend, character_id, definition, greeting,
	swipes_enabled, quotes_enabled, stop_enabled, response_delay_ms, reply_chance,
	message_format, overrides_json, last_message_id, last_caller_id,
	swipe_index, skip_next, remote_chat_id, remote_parent_id, created_at, updated_at`

func scanPersona(row interface{ Scan(...any) error }) (*domain.Persona, error) {
	var p domain.Persona
	var characterID, definition, greeting sql.NullString
	var overridesJSON, lastMessageID, lastCallerID sql.NullString
	var remoteChatID, remoteParentID sql.NullString
	var delayMs, createdAt, updatedAt int64

	err := row.Scan(
		&p.ID, &p.GuildID, &p.ChannelID, &p.Name, &p.EndpointID, &p.EndpointSecret,
		&p.CallTrigger, &p.Backend, &characterID, &definition, &greeting,
		&p.SwipesEnabled, &p.QuotesEnabled, &p.StopEnabled, &delayMs, &p.ReplyChance,
		&p.MessageFormat, &overridesJSON, &lastMessageID, &lastCallerID,
		&p.SwipeIndex, &p.SkipNext, &remoteChatID, &remoteParentID, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan persona row: %w", err)
	}

	p.CharacterID = characterID.String
	p.Definition = definition.String
	p.Greeting = greeting.String
	p.LastMessageID = lastMessageID.String
	p.LastCallerID = lastCallerID.String
	p.RemoteChatID = remoteChatID.String
	p.RemoteParentID = remoteParentID.String
	p.ResponseDelay = time.Duration(delayMs) * time.Millisecond
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)

	if overridesJSON.Valid && overridesJSON.String != "" {
		var ov domain.GenerationOverrides
		if err := json.Unmarshal([]byte(overridesJSON.String), &ov); err != nil {
			return nil, fmt.Errorf("decode persona overrides: %w", err)
		}
		p.Overrides = &ov
	}

	return &p, nil
}

// GetPersona retrieves a persona by id.
func (s *SQLiteStore) GetPersona(ctx context.Context, id string) (*domain.Persona, error) {
	query := `SELECT ` + personaColumns + ` FROM personas WHERE id = ?`
	return scanPersona(s.db.QueryRowContext(ctx, query, id))
}

// FindPersonaByMessage retrieves the persona anchored to a delivered message id.
func (s *SQLiteStore) FindPersonaByMessage(ctx context.Context, messageID string) (*domain.Persona, error) {
	if messageID == "" {
		return nil, nil
	}
	query := `SELECT ` + personaColumns + ` FROM personas WHERE last_message_id = ?`
	return scanPersona(s.db.QueryRowContext(ctx, query, messageID))
}

// ListChannelPersonas retrieves the personas spawned in a channel, oldest first.
func (s *SQLiteStore) ListChannelPersonas(ctx context.Context, channelID string) ([]*domain.Persona, error) {
	query := `SELECT ` + personaColumns + ` FROM personas WHERE channel_id = ? ORDER BY created_at ASC, id ASC`
	return s.queryPersonas(ctx, query, channelID)
}

// ListPersonas retrieves every persona, newest first.
func (s *SQLiteStore) ListPersonas(ctx context.Context) ([]*domain.Persona, error) {
	query := `SELECT ` + personaColumns + ` FROM personas ORDER BY created_at DESC`
	return s.queryPersonas(ctx, query)
}

func (s *SQLiteStore) queryPersonas(ctx context.Context, query string, args ...any) ([]*domain.Persona, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query personas: %w", err)
	}
	defer rows.Close()

	var personas []*domain.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		personas = append(personas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personas: %w", err)
	}
	return personas, nil
}

// UpsertPersona creates or fully replaces a persona record.
func (s *SQLiteStore) UpsertPersona(ctx context.Context, p *domain.Persona) error {
	var overridesJSON any
	if p.Overrides != nil {
		data, err := json.Marshal(p.Overrides)
		if err != nil {
			return fmt.Errorf("encode persona overrides: %w", err)
		}
		overridesJSON = string(data)
	}

	query := `
	INSERT INTO personas (` + personaColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		endpoint_id = excluded.endpoint_id,
		endpoint_secret = excluded.endpoint_secret,
		call_trigger = excluded.call_trigger,
		character_id = excluded.character_id,
		definition = excluded.definition,
		greeting = excluded.greeting,
		swipes_enabled = excluded.swipes_enabled,
		quotes_enabled = excluded.quotes_enabled,
		stop_enabled = excluded.stop_enabled,
		response_delay_ms = excluded.response_delay_ms,
		reply_chance = excluded.reply_chance,
		message_format = excluded.message_format,
		overrides_json = excluded.overrides_json,
		last_message_id = excluded.last_message_id,
		last_caller_id = excluded.last_caller_id,
		swipe_index = excluded.swipe_index,
		skip_next = excluded.skip_next,
		remote_chat_id = excluded.remote_chat_id,
		remote_parent_id = excluded.remote_parent_id,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.GuildID, p.ChannelID, p.Name, p.EndpointID, p.EndpointSecret,
		p.CallTrigger, string(p.Backend), nullable(p.CharacterID), nullable(p.Definition), nullable(p.Greeting),
		p.SwipesEnabled, p.QuotesEnabled, p.StopEnabled, p.ResponseDelay.Milliseconds(), p.ReplyChance,
		p.MessageFormat, overridesJSON, nullable(p.LastMessageID), nullable(p.LastCallerID),
		p.SwipeIndex, p.SkipNext, nullable(p.RemoteChatID), nullable(p.RemoteParentID),
		p.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert persona: %w", err)
	}
	return nil
}

// DeletePersona removes a persona and its local history.
func (s *SQLiteStore) DeletePersona(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM personas WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete persona: %w", err)
	}
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM persona_history WHERE persona_id = ?`, id); err != nil {
		return fmt.Errorf("delete persona history: %w", err)
	}
	return nil
}

// GetGuildSettings retrieves guild-level defaults.
func (s *SQLiteStore) GetGuildSettings(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	query := `SELECT guild_id, overrides_json, message_format, updated_at FROM guild_settings WHERE guild_id = ?`
	row := s.db.QueryRowContext(ctx, query, guildID)

	var gs domain.GuildSettings
	var overridesJSON sql.NullString
	var updatedAt int64

	err := row.Scan(&gs.GuildID, &overridesJSON, &gs.MessageFormat, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan guild settings: %w", err)
	}

	gs.UpdatedAt = time.Unix(updatedAt, 0)
	if overridesJSON.Valid && overridesJSON.String != "" {
		var ov domain.GenerationOverrides
		if err := json.Unmarshal([]byte(overridesJSON.String), &ov); err != nil {
			return nil, fmt.Errorf("decode guild overrides: %w", err)
		}
		gs.Overrides = &ov
	}
	return &gs, nil
}

// UpsertGuildSettings creates or replaces guild-level defaults.
func (s *SQLiteStore) UpsertGuildSettings(ctx context.Context, gs *domain.GuildSettings) error {
	var overridesJSON any
	if gs.Overrides != nil {
		data, err := json.Marshal(gs.Overrides)
		if err != nil {
			return fmt.Errorf("encode guild overrides: %w", err)
		}
		overridesJSON = string(data)
	}

	query := `
	INSERT INTO guild_settings (guild_id, overrides_json, message_format, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(guild_id) DO UPDATE SET
		overrides_json = excluded.overrides_json,
		message_format = excluded.message_format,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query, gs.GuildID, overridesJSON, gs.MessageFormat, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert guild settings: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
