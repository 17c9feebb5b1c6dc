package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/charcord/internal/domain"
)

func testStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func testPersona(id, channelID string) *domain.Persona {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Persona{
		ID:             id,
		GuildID:        "g1",
		ChannelID:      channelID,
		Name:           "Luna",
		EndpointID:     "ep-" + id,
		EndpointSecret: "sec-" + id,
		CallTrigger:    "..luna",
		Backend:        domain.BackendOpenAI,
		CharacterID:    "char-1",
		Definition:     "a moon spirit",
		Greeting:       "hello!",
		SwipesEnabled:  true,
		ReplyChance:    1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestPersonaRoundTrip(t *testing.T) {
	t.Parallel()

	repo := testStore(t)
	ctx := context.Background()

	p := testPersona("p1", "c1")
	temp := 0.5
	p.Overrides = &domain.GenerationOverrides{Temperature: &temp}

	if err := repo.UpsertPersona(ctx, p); err != nil {
		t.Fatalf("UpsertPersona failed: %v", err)
	}

	got, err := repo.GetPersona(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPersona failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a persona")
	}
	if got.Name != "Luna" || got.CallTrigger != "..luna" || got.Backend != domain.BackendOpenAI {
		t.Errorf("persona = %+v", got)
	}
	if got.Overrides == nil || got.Overrides.Temperature == nil || *got.Overrides.Temperature != 0.5 {
		t.Errorf("overrides = %+v", got.Overrides)
	}
	if !got.SwipesEnabled {
		t.Error("expected swipes enabled")
	}

	// Upsert replaces.
	p.SwipeIndex = 2
	p.LastMessageID = "m-1"
	if err := repo.UpsertPersona(ctx, p); err != nil {
		t.Fatalf("UpsertPersona failed: %v", err)
	}
	got, _ = repo.GetPersona(ctx, "p1")
	if got.SwipeIndex != 2 || got.LastMessageID != "m-1" {
		t.Errorf("after upsert: %+v", got)
	}

	missing, err := repo.GetPersona(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing persona = %v, err = %v", missing, err)
	}
}

func TestListChannelPersonasOrdersByCreation(t *testing.T) {
	t.Parallel()

	repo := testStore(t)
	ctx := context.Background()

	first := testPersona("p1", "c1")
	second := testPersona("p2", "c1")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	other := testPersona("p3", "c2")

	for _, p := range []*domain.Persona{second, first, other} {
		if err := repo.UpsertPersona(ctx, p); err != nil {
			t.Fatalf("UpsertPersona failed: %v", err)
		}
	}

	personas, err := repo.ListChannelPersonas(ctx, "c1")
	if err != nil {
		t.Fatalf("ListChannelPersonas failed: %v", err)
	}
	if len(personas) != 2 {
		t.Fatalf("personas = %d, want 2", len(personas))
	}
	if personas[0].ID != "p1" || personas[1].ID != "p2" {
		t.Errorf("order = %s, %s; want p1, p2", personas[0].ID, personas[1].ID)
	}
}

func TestFindPersonaByMessage(t *testing.T) {
	t.Parallel()

	repo := testStore(t)
	ctx := context.Background()

	p := testPersona("p1", "c1")
	p.LastMessageID = "anchor-7"
	if err := repo.UpsertPersona(ctx, p); err != nil {
		t.Fatalf("UpsertPersona failed: %v", err)
	}

	got, err := repo.FindPersonaByMessage(ctx, "anchor-7")
	if err != nil {
		t.Fatalf("FindPersonaByMessage failed: %v", err)
	}
	if got == nil || got.ID != "p1" {
		t.Errorf("persona = %+v", got)
	}

	none, err := repo.FindPersonaByMessage(ctx, "unknown")
	if err != nil || none != nil {
		t.Errorf("unknown anchor = %v, err = %v", none, err)
	}
}

func TestHistoryAppendUpdatePrune(t *testing.T) {
	t.Parallel()

	repo := testStore(t)
	ctx := context.Background()

	p := testPersona("p1", "c1")
	if err := repo.UpsertPersona(ctx, p); err != nil {
		t.Fatalf("UpsertPersona failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := repo.AppendHistory(ctx, "p1", domain.RoleUser, "q"); err != nil {
			t.Fatalf("AppendHistory failed: %v", err)
		}
		if err := repo.AppendHistory(ctx, "p1", domain.RoleAssistant, "a"); err != nil {
			t.Fatalf("AppendHistory failed: %v", err)
		}
	}

	history, err := repo.GetHistory(ctx, "p1")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 10 {
		t.Fatalf("history = %d entries, want 10", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Seq <= history[i-1].Seq {
			t.Fatal("history is not in sequence order")
		}
	}

	if err := repo.UpdateLastAssistant(ctx, "p1", "rewritten"); err != nil {
		t.Fatalf("UpdateLastAssistant failed: %v", err)
	}
	history, _ = repo.GetHistory(ctx, "p1")
	last := history[len(history)-1]
	if last.Role != domain.RoleAssistant || last.Content != "rewritten" {
		t.Errorf("last entry = %+v", last)
	}

	// Below the high-water mark nothing is pruned.
	pruned, err := repo.PruneHistory(ctx, "p1", 60, 20)
	if err != nil {
		t.Fatalf("PruneHistory failed: %v", err)
	}
	if pruned != 0 {
		t.Errorf("pruned = %d, want 0", pruned)
	}

	// Past it, the oldest block goes.
	pruned, err = repo.PruneHistory(ctx, "p1", 8, 4)
	if err != nil {
		t.Fatalf("PruneHistory failed: %v", err)
	}
	if pruned != 4 {
		t.Errorf("pruned = %d, want 4", pruned)
	}
	history, _ = repo.GetHistory(ctx, "p1")
	if len(history) != 6 {
		t.Errorf("history after prune = %d entries, want 6", len(history))
	}
}

func TestBanLifecycle(t *testing.T) {
	t.Parallel()

	repo := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	ban := &domain.Ban{
		UserID:    "u1",
		Reason:    "exceeded rate limit",
		ExpiresAt: now.Add(24 * time.Hour),
		CreatedAt: now,
	}
	if err := repo.CreateBan(ctx, ban); err != nil {
		t.Fatalf("CreateBan failed: %v", err)
	}

	got, err := repo.GetBan(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBan failed: %v", err)
	}
	if got == nil || got.Reason != "exceeded rate limit" {
		t.Errorf("ban = %+v", got)
	}

	expired := &domain.Ban{
		UserID:    "u2",
		Reason:    "old",
		ExpiresAt: now.Add(-time.Hour),
		CreatedAt: now.Add(-25 * time.Hour),
	}
	if err := repo.CreateBan(ctx, expired); err != nil {
		t.Fatalf("CreateBan failed: %v", err)
	}

	deleted, err := repo.DeleteExpiredBans(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredBans failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if gone, _ := repo.GetBan(ctx, "u2"); gone != nil {
		t.Error("expected expired ban to be gone")
	}

	if err := repo.DeleteBan(ctx, "u1"); err != nil {
		t.Fatalf("DeleteBan failed: %v", err)
	}
	if lifted, _ := repo.GetBan(ctx, "u1"); lifted != nil {
		t.Error("expected lifted ban to be gone")
	}
}

func TestGuildSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	repo := testStore(t)
	ctx := context.Background()

	model := "gpt-guild"
	gs := &domain.GuildSettings{
		GuildID:       "g1",
		Overrides:     &domain.GenerationOverrides{Model: &model},
		MessageFormat: "{{user}} -> {{msg}}",
		UpdatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	if err := repo.UpsertGuildSettings(ctx, gs); err != nil {
		t.Fatalf("UpsertGuildSettings failed: %v", err)
	}

	got, err := repo.GetGuildSettings(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGuildSettings failed: %v", err)
	}
	if got == nil || got.MessageFormat != "{{user}} -> {{msg}}" {
		t.Errorf("guild settings = %+v", got)
	}
	if got.Overrides == nil || got.Overrides.Model == nil || *got.Overrides.Model != "gpt-guild" {
		t.Errorf("overrides = %+v", got.Overrides)
	}

	if unset, _ := repo.GetGuildSettings(ctx, "none"); unset != nil {
		t.Error("expected nil for unset guild")
	}
}

func TestDeletePersonaRemovesHistory(t *testing.T) {
	t.Parallel()

	repo := testStore(t)
	ctx := context.Background()

	p := testPersona("p1", "c1")
	if err := repo.UpsertPersona(ctx, p); err != nil {
		t.Fatalf("UpsertPersona failed: %v", err)
	}
	if err := repo.AppendHistory(ctx, "p1", domain.RoleUser, "hi"); err != nil {
		t.Fatalf("AppendHistory failed: %v", err)
	}

	if err := repo.DeletePersona(ctx, "p1"); err != nil {
		t.Fatalf("DeletePersona failed: %v", err)
	}

	if gone, _ := repo.GetPersona(ctx, "p1"); gone != nil {
		t.Error("expected persona to be gone")
	}
	history, _ := repo.GetHistory(ctx, "p1")
	if len(history) != 0 {
		t.Errorf("history after delete = %d entries, want 0", len(history))
	}
}
