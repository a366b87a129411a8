// Package ledger keeps day-bucketed usage documents and persists them.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"flowwatch/internal/model"
	"flowwatch/internal/store"
)

// AppRetentionDays is how long per-process history is kept.
const AppRetentionDays = 90

const (
	defaultSaveInterval  = 60 * time.Second
	defaultFlushInterval = 30 * time.Second
)

// Options are shared by both ledgers. Zero values pick defaults.
type Options struct {
	Location      *time.Location
	Interval      time.Duration
	RetentionDays int
	Now           func() time.Time
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o Options) clock() func() time.Time {
	if o.Now == nil {
		return time.Now
	}
	return o.Now
}

// dayKey renders t as the host-local bucket key.
func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(model.DateLayout)
}

// cutoffKey is the oldest date kept when retaining days of history.
func cutoffKey(now time.Time, loc *time.Location, days int) string {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, -days).Format(model.DateLayout)
}

// runEvery calls fn on every tick until ctx ends, then closes done.
func runEvery(ctx context.Context, every time.Duration, name string, fn func(), done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			safeCall(name, fn)
		}
	}
}

func safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Ledger task panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// unreadable reports a load failure that left the file in place. The
// document on disk may still be good, so it must not be overwritten until a
// later read succeeds.
func unreadable(err error) bool {
	return err != nil && !errors.Is(err, store.ErrCorrupt)
}
