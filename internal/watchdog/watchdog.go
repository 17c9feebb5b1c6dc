// Package watchdog implements the per-user abuse rate limiter and ban list.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/charcord/internal/domain"
)

// Verdict is the outcome of a watchdog check.
type Verdict int

const (
	// Pass lets the interaction through.
	Pass Verdict = iota
	// Warn lets the interaction through but asks the caller to emit a
	// one-time near-threshold warning.
	Warn
	// Block drops the interaction.
	Block
)

// BanStore is the durable side of the watchdog.
type BanStore interface {
	GetBan(ctx context.Context, userID string) (*domain.Ban, error)
	CreateBan(ctx context.Context, ban *domain.Ban) error
	DeleteExpiredBans(ctx context.Context, now time.Time) (int64, error)
}

// bucket tracks one user's interactions within the current wall-clock minute.
type bucket struct {
	minute int64
	count  int
	warned bool
}

// Watchdog maintains per-user minute buckets and promotes offenders to
// durable bans. Applies only to persona-call interactions.
type Watchdog struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	store       BanStore
	limit       int
	banDuration time.Duration
	now         func() time.Time
}

// New creates a watchdog with the configured per-minute limit.
func New(store BanStore, limit int, banDuration time.Duration) *Watchdog {
	return &Watchdog{
		buckets:     make(map[string]*bucket),
		store:       store,
		limit:       limit,
		banDuration: banDuration,
		now:         time.Now,
	}
}

// Check records one interaction for the user and returns a verdict.
// Already-banned users are rejected via the ban table without touching the
// in-memory bucket.
func (w *Watchdog) Check(ctx context.Context, userID string) (Verdict, error) {
	ban, err := w.store.GetBan(ctx, userID)
	if err != nil {
		return Block, fmt.Errorf("look up ban: %w", err)
	}
	now := w.now()
	if ban != nil && !ban.Expired(now) {
		return Block, nil
	}

	w.mu.Lock()
	minute := now.Unix() / 60
	b, ok := w.buckets[userID]
	if !ok || b.minute != minute {
		b = &bucket{minute: minute}
		w.buckets[userID] = b
	}
	b.count++
	count := b.count
	warned := b.warned
	if count == w.limit-2 {
		b.warned = true
	}
	if count > w.limit {
		delete(w.buckets, userID)
	}
	w.mu.Unlock()

	if count > w.limit {
		newBan := &domain.Ban{
			UserID:    userID,
			Reason:    fmt.Sprintf("exceeded %d persona calls per minute", w.limit),
			ExpiresAt: now.Add(w.banDuration),
			CreatedAt: now,
		}
		if err := w.store.CreateBan(ctx, newBan); err != nil {
			return Block, fmt.Errorf("create ban: %w", err)
		}
		slog.Warn("Watchdog banned user", "user_id", userID, "until", newBan.ExpiresAt)
		return Block, nil
	}

	if count == w.limit-2 && !warned {
		return Warn, nil
	}
	return Pass, nil
}

// Sweep removes expired ban records.
func (w *Watchdog) Sweep(ctx context.Context) {
	deleted, err := w.store.DeleteExpiredBans(ctx, w.now())
	if err != nil {
		slog.Error("Watchdog failed to delete expired bans", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Watchdog removed expired bans", "count", deleted)
	}
}

// StartSweepWorker runs a background goroutine that periodically removes
// expired bans and invokes the optional extra sweep hook.
func (w *Watchdog) StartSweepWorker(ctx context.Context, interval time.Duration, extra func(now time.Time)) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Sweep worker started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				w.Sweep(ctx)
				if extra != nil {
					extra(w.now())
				}
			case <-ctx.Done():
				slog.Info("Sweep worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
