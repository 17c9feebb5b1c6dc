// Package search implements the ephemeral character search and selection flow
// used to spawn new personas.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/charcord/internal/config"
	"github.com/ashureev/charcord/internal/domain"
	"github.com/ashureev/charcord/internal/gateway"
	"github.com/ashureev/charcord/internal/provider"
	"github.com/ashureev/charcord/internal/store"
)

// pageSize is the number of result rows per search page.
const pageSize = 10

// Actions accepted by HandleAction.
const (
	ActionUp     = "up"
	ActionDown   = "down"
	ActionLeft   = "left"
	ActionRight  = "right"
	ActionSelect = "select"
)

// CardFetcher resolves a search result to a full character card.
type CardFetcher interface {
	GetCharacter(ctx context.Context, id string) (*domain.CharacterCard, error)
}

// Session is one live search interaction: a result set plus a cursor.
// Pages and rows are 1-based.
type Session struct {
	ID        string
	ChannelID string
	GuildID   string
	UserID    string
	Backend   domain.BackendType
	Query     string
	Results   []domain.CharacterCard
	Page      int
	Row       int
	MessageID string
	CreatedAt time.Time
}

// Pages returns the number of result pages.
func (s *Session) Pages() int {
	return (len(s.Results) + pageSize - 1) / pageSize
}

// rowsOnPage returns the number of populated rows on a page.
func (s *Session) rowsOnPage(page int) int {
	remaining := len(s.Results) - (page-1)*pageSize
	if remaining > pageSize {
		return pageSize
	}
	return remaining
}

// current resolves the cursor to a result. Reports false when the cursor is
// out of range.
func (s *Session) current() (domain.CharacterCard, bool) {
	idx := (s.Page-1)*pageSize + (s.Row - 1)
	if idx < 0 || idx >= len(s.Results) {
		return domain.CharacterCard{}, false
	}
	return s.Results[idx], true
}

// Manager owns the active search sessions, at most one per channel.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	providers *provider.Set
	repo      store.Repository
	messenger gateway.Messenger
	cfg       *config.Config
	fetcher   CardFetcher
	ttl       time.Duration
	now       func() time.Time
}

// NewManager creates a session manager. fetcher may be nil when no character
// catalog is configured.
func NewManager(providers *provider.Set, repo store.Repository, messenger gateway.Messenger, cfg *config.Config, fetcher CardFetcher) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		providers: providers,
		repo:      repo,
		messenger: messenger,
		cfg:       cfg,
		fetcher:   fetcher,
		ttl:       cfg.SearchTTL,
		now:       time.Now,
	}
}

// Start runs a character search and opens a session over the results. An
// existing session in the channel is silently superseded. Empty or failed
// searches notify the user and create no session.
func (m *Manager) Start(ctx context.Context, channelID, guildID, userID, query string, backend domain.BackendType) error {
	searcher, err := m.providers.SearcherFor(backend)
	if err != nil {
		m.notify(ctx, channelID, fmt.Sprintf("Backend %q does not support character search.", backend))
		return err
	}

	results, err := searcher.SearchCharacters(ctx, query)
	if err != nil {
		slog.Error("Character search failed", "channel_id", channelID, "query", query, "error", err)
		m.notify(ctx, channelID, "Character search failed. Please try again.")
		return err
	}
	if len(results) == 0 {
		m.notify(ctx, channelID, fmt.Sprintf("No characters found for %q.", query))
		return nil
	}

	session := &Session{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		GuildID:   guildID,
		UserID:    userID,
		Backend:   backend,
		Query:     query,
		Results:   results,
		Page:      1,
		Row:       1,
		CreatedAt: m.now(),
	}

	messageID, err := m.messenger.SendChannelMessage(ctx, channelID, renderSession(session))
	if err != nil {
		return fmt.Errorf("deliver search results: %w", err)
	}
	session.MessageID = messageID

	m.mu.Lock()
	m.sessions[channelID] = session
	m.mu.Unlock()

	slog.Info("Search session opened", "channel_id", channelID, "query", query, "results", len(results))
	return nil
}

// HandleAction applies a navigation or selection action to the channel's
// session. Interactions from anyone but the initiating user are ignored.
func (m *Manager) HandleAction(ctx context.Context, channelID, userID, action string) {
	m.mu.Lock()
	session, ok := m.sessions[channelID]
	if !ok || session.UserID != userID {
		m.mu.Unlock()
		return
	}

	if action == ActionSelect {
		delete(m.sessions, channelID)
		snapshot := *session
		m.mu.Unlock()
		m.spawn(ctx, &snapshot)
		return
	}

	// Render while still holding the lock; a concurrent action on the same
	// session must not observe a half-moved cursor.
	m.navigate(session, action)
	messageID := session.MessageID
	rendered := renderSession(session)
	m.mu.Unlock()

	if err := m.messenger.ModifyChannelMessage(ctx, channelID, messageID, rendered); err != nil {
		slog.Warn("Failed to update search message", "channel_id", channelID, "error", err)
	}
}

// navigate moves the cursor. Up and down wrap within the current page's
// populated rows; left and right wrap across pages and reset the row to 1.
// Caller holds the session lock.
func (m *Manager) navigate(s *Session, action string) {
	pages := s.Pages()
	rows := s.rowsOnPage(s.Page)

	switch action {
	case ActionUp:
		s.Row--
		if s.Row < 1 {
			s.Row = rows
		}
	case ActionDown:
		s.Row++
		if s.Row > rows {
			s.Row = 1
		}
	case ActionLeft:
		s.Page--
		if s.Page < 1 {
			s.Page = pages
		}
		s.Row = 1
	case ActionRight:
		s.Page++
		if s.Page > pages {
			s.Page = 1
		}
		s.Row = 1
	}
}

// spawn materializes the selected character as a channel persona.
func (m *Manager) spawn(ctx context.Context, session *Session) {
	card, ok := session.current()
	if !ok {
		return
	}

	// Search results can be shallow; fetch the full card when a catalog is
	// available.
	if m.fetcher != nil && card.Definition == "" {
		full, err := m.fetcher.GetCharacter(ctx, card.ID)
		if err != nil {
			slog.Warn("Failed to fetch character card, using search result", "character_id", card.ID, "error", err)
		} else {
			full.AvatarURL = firstNonEmpty(full.AvatarURL, card.AvatarURL)
			card = *full
		}
	}

	ep, err := m.messenger.CreateEndpoint(ctx, session.ChannelID, card.Name, card.AvatarURL)
	if err != nil {
		slog.Error("Failed to create persona endpoint", "channel_id", session.ChannelID, "error", err)
		m.notify(ctx, session.ChannelID, "Could not create the character's delivery endpoint.")
		return
	}

	now := m.now()
	persona := &domain.Persona{
		ID:             uuid.NewString(),
		GuildID:        session.GuildID,
		ChannelID:      session.ChannelID,
		Name:           card.Name,
		EndpointID:     ep.ID,
		EndpointSecret: ep.Secret,
		CallTrigger:    deriveTrigger(card.Name),
		Backend:        session.Backend,
		CharacterID:    card.ID,
		Definition:     card.Definition,
		Greeting:       card.Greeting,
		SwipesEnabled:  true,
		QuotesEnabled:  true,
		StopEnabled:    true,
		ReplyChance:    1,
		MessageFormat:  m.cfg.MessageFormat,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	greeting := card.Greeting
	if session.Backend == domain.BackendRemote {
		prov, err := m.providers.For(session.Backend)
		if err != nil {
			m.notify(ctx, session.ChannelID, "Could not start the character's conversation.")
			return
		}
		settings := domain.ResolveGeneration(m.cfg.Defaults(session.Backend))
		conv, err := prov.StartNewConversation(ctx, card.ID, settings)
		if err != nil {
			slog.Error("Failed to start remote conversation", "character_id", card.ID, "error", err)
			m.notify(ctx, session.ChannelID, "Could not start the character's conversation.")
			return
		}
		persona.RemoteChatID = conv.ChatID
		if conv.Greeting != nil {
			greeting = conv.Greeting.Text
			persona.RemoteParentID = conv.Greeting.BackendMessageID
		}
	}

	if greeting != "" {
		messageID, err := m.messenger.SendMessage(ctx, ep, greeting)
		if err != nil {
			slog.Warn("Failed to deliver greeting", "persona_id", persona.ID, "error", err)
		} else {
			persona.LastMessageID = messageID
		}
		if session.Backend.Stateless() {
			if err := m.repo.AppendHistory(ctx, persona.ID, domain.RoleAssistant, greeting); err != nil {
				slog.Warn("Failed to seed greeting history", "persona_id", persona.ID, "error", err)
			}
		}
	}

	if err := m.repo.UpsertPersona(ctx, persona); err != nil {
		slog.Error("Failed to persist persona", "persona_id", persona.ID, "error", err)
		m.notify(ctx, session.ChannelID, "Could not save the spawned character.")
		return
	}

	confirmation := fmt.Sprintf("Spawned **%s**. Call them with `%s` or reply to their messages.", card.Name, persona.CallTrigger)
	if err := m.messenger.ModifyChannelMessage(ctx, session.ChannelID, session.MessageID, confirmation); err != nil {
		m.notify(ctx, session.ChannelID, confirmation)
	}

	slog.Info("Persona spawned", "persona_id", persona.ID, "name", card.Name, "backend", session.Backend, "channel_id", session.ChannelID)
}

// Expire drops sessions older than the configured TTL. Invoked by the
// periodic sweep worker.
func (m *Manager) Expire(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for channelID, session := range m.sessions {
		if now.Sub(session.CreatedAt) > m.ttl {
			delete(m.sessions, channelID)
			slog.Info("Search session expired", "channel_id", channelID, "query", session.Query)
		}
	}
}

func (m *Manager) notify(ctx context.Context, channelID, text string) {
	if _, err := m.messenger.SendChannelMessage(ctx, channelID, text); err != nil {
		slog.Warn("Failed to deliver search notice", "channel_id", channelID, "error", err)
	}
}

// deriveTrigger builds a call trigger from the character name: two dots plus
// the lowercased first word.
func deriveTrigger(name string) string {
	first := name
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	return ".." + strings.ToLower(first)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
