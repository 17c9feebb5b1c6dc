package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/charcord/internal/domain"
)

type fakeBanStore struct {
	mu   sync.Mutex
	bans map[string]*domain.Ban
}

func newFakeBanStore() *fakeBanStore {
	return &fakeBanStore{bans: make(map[string]*domain.Ban)}
}

func (s *fakeBanStore) GetBan(_ context.Context, userID string) (*domain.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bans[userID], nil
}

func (s *fakeBanStore) CreateBan(_ context.Context, ban *domain.Ban) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans[ban.UserID] = ban
	return nil
}

func (s *fakeBanStore) DeleteExpiredBans(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, ban := range s.bans {
		if ban.Expired(now) {
			delete(s.bans, id)
			deleted++
		}
	}
	return deleted, nil
}

func TestCheckWarnsNearLimitAndBansPastIt(t *testing.T) {
	t.Parallel()

	store := newFakeBanStore()
	w := New(store, 5, 24*time.Hour)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return base }
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		verdict, err := w.Check(ctx, "user-1")
		if err != nil {
			t.Fatalf("Check %d failed: %v", i, err)
		}
		want := Pass
		if i == 3 {
			// limit-2 interactions within the minute triggers the warning.
			want = Warn
		}
		if verdict != want {
			t.Errorf("interaction %d: verdict = %v, want %v", i, verdict, want)
		}
	}

	// The sixth interaction within the same minute exceeds the limit.
	verdict, err := w.Check(ctx, "user-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != Block {
		t.Fatalf("interaction 6: verdict = %v, want Block", verdict)
	}

	ban, _ := store.GetBan(ctx, "user-1")
	if ban == nil {
		t.Fatal("expected a durable ban to be created")
	}
	if got, want := ban.ExpiresAt, base.Add(24*time.Hour); !got.Equal(want) {
		t.Errorf("ban expiry = %v, want %v", got, want)
	}

	// Once banned, rejection comes from the ban table and the bucket is gone.
	verdict, err = w.Check(ctx, "user-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != Block {
		t.Errorf("banned user verdict = %v, want Block", verdict)
	}
	w.mu.Lock()
	_, hasBucket := w.buckets["user-1"]
	w.mu.Unlock()
	if hasBucket {
		t.Error("expected bucket to be dropped after ban")
	}
}

func TestCheckResetsBucketOnMinuteChange(t *testing.T) {
	t.Parallel()

	w := New(newFakeBanStore(), 5, 24*time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	w.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := w.Check(ctx, "user-1"); err != nil {
			t.Fatalf("Check failed: %v", err)
		}
	}

	now = now.Add(time.Minute)
	verdict, err := w.Check(ctx, "user-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != Pass {
		t.Errorf("verdict after minute change = %v, want Pass", verdict)
	}
	w.mu.Lock()
	count := w.buckets["user-1"].count
	w.mu.Unlock()
	if count != 1 {
		t.Errorf("count after minute change = %d, want 1", count)
	}
}

func TestCheckWarnsOnlyOnce(t *testing.T) {
	t.Parallel()

	store := newFakeBanStore()
	w := New(store, 6, time.Hour)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return base }
	ctx := context.Background()

	var warns int
	for i := 0; i < 6; i++ {
		verdict, err := w.Check(ctx, "user-1")
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if verdict == Warn {
			warns++
		}
	}
	if warns != 1 {
		t.Errorf("warn count = %d, want 1", warns)
	}
}

func TestSweepRemovesExpiredBans(t *testing.T) {
	t.Parallel()

	store := newFakeBanStore()
	w := New(store, 5, time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	ctx := context.Background()

	store.bans["old"] = &domain.Ban{UserID: "old", ExpiresAt: now.Add(-time.Minute)}
	store.bans["live"] = &domain.Ban{UserID: "live", ExpiresAt: now.Add(time.Minute)}

	w.Sweep(ctx)

	if ban, _ := store.GetBan(ctx, "old"); ban != nil {
		t.Error("expected expired ban to be removed")
	}
	if ban, _ := store.GetBan(ctx, "live"); ban == nil {
		t.Error("expected live ban to remain")
	}
}
