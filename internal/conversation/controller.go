package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/ashureev/charcord/internal/config"
	"github.com/ashureev/charcord/internal/domain"
	"github.com/ashureev/charcord/internal/gateway"
	"github.com/ashureev/charcord/internal/prompt"
	"github.com/ashureev/charcord/internal/provider"
	"github.com/ashureev/charcord/internal/search"
	"github.com/ashureev/charcord/internal/store"
	"github.com/ashureev/charcord/internal/watchdog"
)

const (
	// maxMessageLen is the platform's per-message character ceiling.
	maxMessageLen = 2000
	// maxChunks bounds how many messages one response may be split into.
	maxChunks        = 3
	truncationSuffix = " [...]"

	historyHighWater = 60
	historyDropCount = 20

	emojiLeft     = "⬅️"
	emojiRight    = "➡️"
	emojiContinue = "\U0001f504"
	emojiStop     = "⏹️"

	searchButtonPrefix = "search:"
	searchModalID      = "character_search"

	generationNotice   = "The character could not come up with a response. Please try again."
	swipeNotice        = "Could not fetch another response. Try swiping again."
	endpointGoneNotice = "The character's delivery endpoint no longer exists. Spawn them again to continue."
	panicNotice      = "Something went wrong handling that interaction."
)

// Direction selects which way a swipe moves through the response candidates.
type Direction int

const (
	// DirectionLeft moves toward older candidates.
	DirectionLeft Direction = iota
	// DirectionRight moves toward newer candidates, generating one when none
	// is cached.
	DirectionRight
)

// Controller is the top-level orchestrator for inbound platform events. It
// owns the response cache and the per-persona locks; none of its state is
// ambient.
type Controller struct {
	repo      store.Repository
	providers *provider.Set
	messenger gateway.Messenger
	guard     *watchdog.Watchdog
	search    *search.Manager
	cfg       *config.Config

	cache *ResponseCache
	locks *personaLocks

	affordanceTTL time.Duration
	// chance rolls the reply-chance gate; swapped out in tests.
	chance func() float64
}

// NewController wires the conversation orchestrator.
func NewController(repo store.Repository, providers *provider.Set, messenger gateway.Messenger, guard *watchdog.Watchdog, searchMgr *search.Manager, cfg *config.Config) *Controller {
	return &Controller{
		repo:          repo,
		providers:     providers,
		messenger:     messenger,
		guard:         guard,
		search:        searchMgr,
		cfg:           cfg,
		cache:         NewResponseCache(),
		locks:         newPersonaLocks(),
		affordanceTTL: 5 * time.Minute,
		chance:        rand.Float64,
	}
}

// HandleMessage resolves an inbound channel message to a persona and runs
// the full guard-generate-deliver sequence.
func (c *Controller) HandleMessage(ctx context.Context, ev gateway.MessageEvent) {
	defer c.recoverEvent(ctx, ev.ChannelID)

	content := strings.TrimSpace(ev.Content)
	if ev.AuthorBot || content == "" {
		return
	}

	persona, text, isReply, err := c.resolve(ctx, ev)
	if err != nil {
		slog.Error("Failed to resolve persona", "channel_id", ev.ChannelID, "error", err)
		return
	}
	if persona == nil {
		return
	}

	unlock := c.locks.acquire(persona.ID)
	defer unlock()

	verdict, err := c.guard.Check(ctx, ev.AuthorID)
	if err != nil {
		slog.Error("Watchdog check failed", "user_id", ev.AuthorID, "error", err)
		return
	}
	switch verdict {
	case watchdog.Block:
		return
	case watchdog.Warn:
		c.notice(ctx, ev.ChannelID, fmt.Sprintf("<@%s> slow down, you are close to the rate limit.", ev.AuthorID))
	}

	if persona.SkipNext {
		persona.SkipNext = false
		if err := c.repo.UpsertPersona(ctx, persona); err != nil {
			slog.Error("Failed to clear skip flag", "persona_id", persona.ID, "error", err)
		}
		return
	}

	if !isReply && persona.ReplyChance < 1 && c.chance() > persona.ReplyChance {
		return
	}

	if persona.ResponseDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(persona.ResponseDelay):
		}
	}

	quoted := ""
	if persona.QuotesEnabled && isReply {
		quoted = ev.ReplyToContent
	}
	format := persona.MessageFormat
	if format == "" || prompt.ValidateTemplate(format) != nil {
		format = c.cfg.MessageFormat
	}
	formatted := prompt.RenderMessage(format, ev.AuthorName, text, quoted)

	settings := c.resolveSettings(ctx, persona)
	parentBefore := persona.RemoteParentID

	cand, err := c.generate(ctx, persona, settings, formatted, parentBefore, prompt.ModeStandard)
	if err != nil {
		slog.Error("Generation failed",
			"persona_id", persona.ID, "backend", persona.Backend,
			"kind", provider.KindOf(err), "error", err)
		c.notice(ctx, ev.ChannelID, generationNotice)
		return
	}

	c.cache.Reset(persona.ID, formatted, parentBefore, *cand)
	persona.SwipeIndex = 0
	persona.LastCallerID = ev.AuthorID

	if persona.Backend.Stateless() {
		c.recordExchange(ctx, persona.ID, formatted, cand.Text)
	} else if cand.BackendMessageID != "" {
		persona.RemoteParentID = cand.BackendMessageID
	}

	messageID, err := c.deliver(ctx, persona, ev.AuthorID, cand.Text)
	if err != nil {
		if errors.Is(err, gateway.ErrEndpointGone) {
			// Conversation state stays intact so the persona can be
			// re-materialized with a fresh endpoint.
			slog.Warn("Persona endpoint gone", "persona_id", persona.ID)
			c.notice(ctx, ev.ChannelID, endpointGoneNotice)
		} else {
			slog.Error("Failed to deliver response", "persona_id", persona.ID, "error", err)
			c.notice(ctx, ev.ChannelID, generationNotice)
		}
	} else {
		persona.LastMessageID = messageID
		c.attachAffordances(persona)
	}

	if err := c.repo.UpsertPersona(ctx, persona); err != nil {
		slog.Error("Failed to persist persona", "persona_id", persona.ID, "error", err)
	}
}

// resolve maps an event to its target persona. Reply anchors win over
// call-trigger scans; the first registered trigger match wins.
func (c *Controller) resolve(ctx context.Context, ev gateway.MessageEvent) (*domain.Persona, string, bool, error) {
	if ev.ReplyToMessageID != "" {
		p, err := c.repo.FindPersonaByMessage(ctx, ev.ReplyToMessageID)
		if err != nil {
			return nil, "", false, err
		}
		if p != nil {
			return p, strings.TrimSpace(ev.Content), true, nil
		}
	}

	personas, err := c.repo.ListChannelPersonas(ctx, ev.ChannelID)
	if err != nil {
		return nil, "", false, err
	}
	for _, p := range personas {
		if stripped, ok := p.MatchTrigger(ev.Content); ok {
			return p, stripped, false, nil
		}
	}
	return nil, "", false, nil
}

// OnSwipe navigates the persona's response candidates. Swiping right past the
// newest candidate issues a fresh generation; every other move is cache-only.
func (c *Controller) OnSwipe(ctx context.Context, personaID string, dir Direction) {
	unlock := c.locks.acquire(personaID)
	defer unlock()

	persona, err := c.repo.GetPersona(ctx, personaID)
	if err != nil || persona == nil {
		return
	}
	if !persona.SwipesEnabled || persona.LastMessageID == "" {
		return
	}
	count := c.cache.Count(persona.ID)
	if count == 0 {
		return
	}

	idx := persona.SwipeIndex
	switch dir {
	case DirectionLeft:
		if idx == 0 {
			return
		}
		idx--
	case DirectionRight:
		if idx+1 < count {
			idx++
			break
		}
		input, parentID, ok := c.cache.Turn(persona.ID)
		if !ok {
			return
		}
		settings := c.resolveSettings(ctx, persona)
		cand, err := c.generate(ctx, persona, settings, input, parentID, prompt.ModeRegenerate)
		if err != nil {
			slog.Error("Swipe generation failed",
				"persona_id", persona.ID, "kind", provider.KindOf(err), "error", err)
			c.notice(ctx, persona.ChannelID, swipeNotice)
			return
		}
		idx = c.cache.Append(persona.ID, *cand)
		if idx < 0 {
			return
		}
	}

	cand, ok := c.cache.Get(persona.ID, idx)
	if !ok {
		return
	}
	if err := c.rerender(ctx, persona, cand.Text); err != nil {
		slog.Warn("Failed to re-render swipe", "persona_id", persona.ID, "error", err)
		c.notice(ctx, persona.ChannelID, swipeNotice)
		return
	}

	persona.SwipeIndex = idx
	if persona.Backend.Stateless() {
		if err := c.repo.UpdateLastAssistant(ctx, persona.ID, cand.Text); err != nil {
			slog.Warn("Failed to update history for swipe", "persona_id", persona.ID, "error", err)
		}
	} else if cand.BackendMessageID != "" {
		persona.RemoteParentID = cand.BackendMessageID
	}
	if err := c.repo.UpsertPersona(ctx, persona); err != nil {
		slog.Error("Failed to persist swipe", "persona_id", persona.ID, "error", err)
	}
}

// continueResponse extends the currently displayed candidate in place.
func (c *Controller) continueResponse(ctx context.Context, personaID string) {
	unlock := c.locks.acquire(personaID)
	defer unlock()

	persona, err := c.repo.GetPersona(ctx, personaID)
	if err != nil || persona == nil {
		return
	}
	current, ok := c.cache.Get(persona.ID, persona.SwipeIndex)
	if !ok {
		return
	}

	settings := c.resolveSettings(ctx, persona)
	cand, err := c.generate(ctx, persona, settings, prompt.ContinueInstruction, persona.RemoteParentID, prompt.ModeContinue)
	if err != nil {
		slog.Error("Continue generation failed",
			"persona_id", persona.ID, "kind", provider.KindOf(err), "error", err)
		c.notice(ctx, persona.ChannelID, swipeNotice)
		return
	}

	more := " " + strings.TrimSpace(cand.Text)
	if !c.cache.Extend(persona.ID, persona.SwipeIndex, more) {
		return
	}
	full := current.Text + more
	if err := c.rerender(ctx, persona, full); err != nil {
		slog.Warn("Failed to re-render continuation", "persona_id", persona.ID, "error", err)
		c.notice(ctx, persona.ChannelID, swipeNotice)
		return
	}

	if persona.Backend.Stateless() {
		if err := c.repo.UpdateLastAssistant(ctx, persona.ID, full); err != nil {
			slog.Warn("Failed to update history for continuation", "persona_id", persona.ID, "error", err)
		}
	} else if cand.BackendMessageID != "" {
		persona.RemoteParentID = cand.BackendMessageID
	}
	if err := c.repo.UpsertPersona(ctx, persona); err != nil {
		slog.Error("Failed to persist continuation", "persona_id", persona.ID, "error", err)
	}
}

// stopTurn ends swipe navigation for the current turn.
func (c *Controller) stopTurn(ctx context.Context, personaID string) {
	unlock := c.locks.acquire(personaID)
	defer unlock()

	persona, err := c.repo.GetPersona(ctx, personaID)
	if err != nil || persona == nil {
		return
	}
	c.cache.Drop(persona.ID)
	if persona.LastMessageID != "" {
		if err := c.messenger.RemoveReactions(ctx, persona.ChannelID, persona.LastMessageID); err != nil {
			slog.Debug("Failed to remove affordances", "persona_id", persona.ID, "error", err)
		}
	}
}

// HandleReaction routes navigation reactions on a persona's latest message.
func (c *Controller) HandleReaction(ctx context.Context, ev gateway.ReactionEvent) {
	defer c.recoverEvent(ctx, ev.ChannelID)

	if ev.Removed {
		return
	}
	persona, err := c.repo.FindPersonaByMessage(ctx, ev.MessageID)
	if err != nil || persona == nil {
		return
	}
	// Only the user who triggered the turn may navigate it.
	if persona.LastCallerID != "" && ev.UserID != persona.LastCallerID {
		return
	}

	switch ev.Emoji {
	case emojiLeft:
		if persona.SwipesEnabled {
			c.OnSwipe(ctx, persona.ID, DirectionLeft)
		}
	case emojiRight:
		if persona.SwipesEnabled {
			c.OnSwipe(ctx, persona.ID, DirectionRight)
		}
	case emojiContinue:
		if persona.SwipesEnabled {
			c.continueResponse(ctx, persona.ID)
		}
	case emojiStop:
		if persona.StopEnabled {
			c.stopTurn(ctx, persona.ID)
		}
	}
}

// HandleButton routes component interactions, currently only the search UI.
func (c *Controller) HandleButton(ctx context.Context, ev gateway.ButtonEvent) {
	defer c.recoverEvent(ctx, ev.ChannelID)

	if action, ok := strings.CutPrefix(ev.CustomID, searchButtonPrefix); ok {
		c.search.HandleAction(ctx, ev.ChannelID, ev.UserID, action)
	}
}

// HandleModal routes modal submissions, currently only the search form.
func (c *Controller) HandleModal(ctx context.Context, ev gateway.ModalEvent) {
	defer c.recoverEvent(ctx, ev.ChannelID)

	if ev.CustomID != searchModalID {
		return
	}
	query := strings.TrimSpace(ev.Values["query"])
	if query == "" {
		return
	}
	backend := domain.BackendType(ev.Values["backend"])
	if !backend.Valid() {
		backend = domain.BackendRemote
	}
	if err := c.search.Start(ctx, ev.ChannelID, ev.GuildID, ev.UserID, query, backend); err != nil {
		slog.Warn("Search start failed", "channel_id", ev.ChannelID, "error", err)
	}
}

// generate invokes the persona's provider adapter: stateless backends get a
// freshly built window, the remote backend gets the utterance plus handles.
func (c *Controller) generate(ctx context.Context, persona *domain.Persona, settings domain.GenerationSettings, text, parentID string, mode prompt.Mode) (*provider.Candidate, error) {
	prov, err := c.providers.For(persona.Backend)
	if err != nil {
		return nil, err
	}

	input := provider.Input{
		Settings: settings,
		CharName: persona.Name,
	}
	if persona.Backend.Stateless() {
		history, err := c.repo.GetHistory(ctx, persona.ID)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		if mode == prompt.ModeStandard && text != "" {
			history = append(history, domain.HistoryEntry{Role: domain.RoleUser, Content: text})
		}
		input.Window = prompt.BuildWindow(
			settings.SystemPrompt, persona.Name, persona.Definition,
			history, settings.ContextBudget, charsPerToken(persona.Backend), mode)
	} else {
		input.Text = text
		input.ChatID = persona.RemoteChatID
		input.ParentID = parentID
	}

	return prov.GenerateResponse(ctx, input)
}

// recordExchange appends the accepted exchange to local history and prunes
// past the high-water mark.
func (c *Controller) recordExchange(ctx context.Context, personaID, userText, assistantText string) {
	if err := c.repo.AppendHistory(ctx, personaID, domain.RoleUser, userText); err != nil {
		slog.Error("Failed to append user turn", "persona_id", personaID, "error", err)
		return
	}
	if err := c.repo.AppendHistory(ctx, personaID, domain.RoleAssistant, assistantText); err != nil {
		slog.Error("Failed to append assistant turn", "persona_id", personaID, "error", err)
		return
	}
	pruned, err := c.repo.PruneHistory(ctx, personaID, historyHighWater, historyDropCount)
	if err != nil {
		slog.Warn("Failed to prune history", "persona_id", personaID, "error", err)
	} else if pruned > 0 {
		slog.Info("History pruned", "persona_id", personaID, "removed", pruned)
	}
}

func (c *Controller) resolveSettings(ctx context.Context, persona *domain.Persona) domain.GenerationSettings {
	global := c.cfg.Defaults(persona.Backend)
	var layers []*domain.GenerationOverrides
	gs, err := c.repo.GetGuildSettings(ctx, persona.GuildID)
	if err != nil {
		slog.Warn("Failed to load guild settings", "guild_id", persona.GuildID, "error", err)
	} else if gs != nil {
		layers = append(layers, gs.Overrides)
	}
	layers = append(layers, persona.Overrides)
	return domain.ResolveGeneration(global, layers...)
}

// deliver sends the response through the persona's endpoint, chunked at the
// platform ceiling, and returns the last delivered message id as the anchor.
func (c *Controller) deliver(ctx context.Context, persona *domain.Persona, callerID, text string) (string, error) {
	ep := gateway.Endpoint{ID: persona.EndpointID, Secret: persona.EndpointSecret}
	chunks := chunkMessage(composeReply(callerID, text), maxMessageLen, maxChunks, truncationSuffix)

	var lastID string
	for _, chunk := range chunks {
		id, err := c.messenger.SendMessage(ctx, ep, chunk)
		if err != nil {
			return "", err
		}
		lastID = id
	}
	return lastID, nil
}

// rerender replaces the anchored message's text, used by swipe navigation.
// Edits cannot grow into extra messages, so overlong text is truncated.
func (c *Controller) rerender(ctx context.Context, persona *domain.Persona, text string) error {
	ep := gateway.Endpoint{ID: persona.EndpointID, Secret: persona.EndpointSecret}
	chunks := chunkMessage(composeReply(persona.LastCallerID, text), maxMessageLen, 1, truncationSuffix)
	return c.messenger.ModifyMessage(ctx, ep, persona.LastMessageID, chunks[0])
}

// attachAffordances adds the navigation reactions after delivery and
// schedules their best-effort removal.
func (c *Controller) attachAffordances(persona *domain.Persona) {
	if !persona.SwipesEnabled && !persona.StopEnabled {
		return
	}

	channelID := persona.ChannelID
	messageID := persona.LastMessageID
	var emojis []string
	if persona.SwipesEnabled {
		emojis = append(emojis, emojiLeft, emojiRight, emojiContinue)
	}
	if persona.StopEnabled {
		emojis = append(emojis, emojiStop)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, emoji := range emojis {
			if err := c.messenger.AddReaction(ctx, channelID, messageID, emoji); err != nil {
				slog.Debug("Failed to add affordance", "message_id", messageID, "error", err)
				return
			}
		}
	}()

	time.AfterFunc(c.affordanceTTL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.messenger.RemoveReactions(ctx, channelID, messageID); err != nil {
			slog.Debug("Failed to remove affordances", "message_id", messageID, "error", err)
		}
	})
}

func (c *Controller) notice(ctx context.Context, channelID, text string) {
	if _, err := c.messenger.SendChannelMessage(ctx, channelID, text); err != nil {
		slog.Warn("Failed to deliver notice", "channel_id", channelID, "error", err)
	}
}

// recoverEvent converts a panicking event into a channel notice so one bad
// event never takes down the dispatch loop.
func (c *Controller) recoverEvent(ctx context.Context, channelID string) {
	if r := recover(); r != nil {
		slog.Error("Event dispatch panicked", "channel_id", channelID, "panic", r)
		c.notice(ctx, channelID, panicNotice)
	}
}

func charsPerToken(backend domain.BackendType) float64 {
	if backend == domain.BackendOpenAI {
		return prompt.CharsPerTokenChat
	}
	return prompt.CharsPerTokenCompletion
}

func composeReply(callerID, text string) string {
	if callerID == "" {
		return text
	}
	return "<@" + callerID + "> " + text
}
