// Package provider implements the backend adapters that turn persona input
// into generated responses.
package provider

import (
	"context"
	"fmt"

	"github.com/ashureev/charcord/internal/domain"
	"github.com/ashureev/charcord/internal/prompt"
)

// Input carries everything an adapter needs for one generation. Stateless
// backends read the prebuilt Window; the remote backend reads Text plus the
// conversation handle and parent pointer.
type Input struct {
	Text     string
	Window   []prompt.Message
	Settings domain.GenerationSettings
	CharName string

	ChatID   string
	ParentID string
}

// Candidate is one normalized generation result.
type Candidate struct {
	Text             string
	ImageURL         string
	BackendMessageID string
	UsageTokens      int
}

// Conversation is the remote backend's bootstrap result: an opaque handle
// plus the character's opening message.
type Conversation struct {
	ChatID   string
	Greeting *Candidate
}

// Provider is the uniform capability contract over one backend family.
type Provider interface {
	// GenerateResponse produces one response candidate for the input.
	GenerateResponse(ctx context.Context, input Input) (*Candidate, error)

	// StartNewConversation creates a fresh server-side conversation for the
	// character. Stateless backends return an empty Conversation.
	StartNewConversation(ctx context.Context, characterID string, settings domain.GenerationSettings) (*Conversation, error)
}

// Searcher is the optional character-search capability used by the
// search-and-spawn flow.
type Searcher interface {
	SearchCharacters(ctx context.Context, query string) ([]domain.CharacterCard, error)
}

// Set dispatches to the adapter registered for a backend type.
type Set struct {
	providers map[domain.BackendType]Provider
	searchers map[domain.BackendType]Searcher
}

// NewSet creates an empty adapter set.
func NewSet() *Set {
	return &Set{
		providers: make(map[domain.BackendType]Provider),
		searchers: make(map[domain.BackendType]Searcher),
	}
}

// Register binds an adapter to a backend type. If the adapter also searches,
// it is registered for the search flow too.
func (s *Set) Register(backend domain.BackendType, p Provider) {
	s.providers[backend] = p
	if searcher, ok := p.(Searcher); ok {
		s.searchers[backend] = searcher
	}
}

// RegisterSearcher binds a standalone search capability to a backend type,
// used when stateless backends spawn from an external character catalog.
func (s *Set) RegisterSearcher(backend domain.BackendType, searcher Searcher) {
	s.searchers[backend] = searcher
}

// For returns the adapter for a backend type.
func (s *Set) For(backend domain.BackendType) (Provider, error) {
	p, ok := s.providers[backend]
	if !ok {
		return nil, fmt.Errorf("no provider registered for backend %q", backend)
	}
	return p, nil
}

// SearcherFor returns the search capability for a backend type.
func (s *Set) SearcherFor(backend domain.BackendType) (Searcher, error) {
	searcher, ok := s.searchers[backend]
	if !ok {
		return nil, fmt.Errorf("backend %q has no character search capability", backend)
	}
	return searcher, nil
}
