package ledger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"flowwatch/internal/model"
	"flowwatch/internal/store"
)

// DeltaSource hands out per-process byte deltas accumulated since the last call.
type DeltaSource interface {
	FlushDeltas() map[string]model.TrafficDelta
}

// AppUsageLedger accumulates per-process deltas into daily records.
type AppUsageLedger struct {
	path string
	src  DeltaSource
	opts Options
	now  func() time.Time
	loc  *time.Location

	mu          sync.Mutex
	history     model.AppTrafficHistory
	currentDate string
	started     bool
	deferred    bool // file was unreadable at Start; saves wait for a good read
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewAppUsageLedger returns a ledger persisting to path. RetentionDays
// defaults to AppRetentionDays.
func NewAppUsageLedger(path string, src DeltaSource, opts Options) *AppUsageLedger {
	if opts.Interval <= 0 {
		opts.Interval = defaultFlushInterval
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = AppRetentionDays
	}
	return &AppUsageLedger{
		path: path,
		src:  src,
		opts: opts,
		now:  opts.clock(),
		loc:  opts.location(),
	}
}

// Start loads and prunes history and begins the periodic flush.
func (a *AppUsageLedger) Start() {
	doc, err := store.Load[model.AppTrafficHistory](a.path)
	if err != nil {
		slog.Error("App history load failed, starting empty", "file", a.path, "err", err)
	}

	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.deferred = unreadable(err)
	a.history = normalizeApps(doc)
	removed := a.pruneLocked()
	a.currentDate = dayKey(a.now(), a.loc)
	slog.Info("App history loaded", "days", len(a.history.Records), "pruned", removed)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	go runEvery(ctx, a.opts.Interval, "app-flush", a.Flush, done)
}

// Stop ends the periodic flush and performs a final one.
func (a *AppUsageLedger) Stop() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.started = false
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	cancel()
	<-done
	a.Flush()
}

// Flush drains the source into today's bucket and saves. Nothing is written
// when the source has no pending bytes.
func (a *AppUsageLedger) Flush() {
	deltas := a.src.FlushDeltas()
	if len(deltas) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	date := dayKey(a.now(), a.loc)
	if date != a.currentDate {
		a.currentDate = date
		if n := a.pruneLocked(); n > 0 {
			slog.Info("Pruned old app history", "days", n)
		}
	}

	day := a.dayLocked(date)
	for name, d := range deltas {
		rec := appInDay(day, name)
		rec.DownloadBytes += clamp(d.Download)
		rec.UploadBytes += clamp(d.Upload)
	}
	a.saveLocked()
}

// ResetAll drops all per-process history and saves.
func (a *AppUsageLedger) ResetAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = model.AppTrafficHistory{Records: []model.DailyAppTrafficRecord{}}
	a.deferred = false
	a.saveLocked()
}

// Save persists the current document.
func (a *AppUsageLedger) Save() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saveLocked()
}

// saveLocked writes the document. While saves are deferred it retries the
// read first and merges this session's days into what it finds.
func (a *AppUsageLedger) saveLocked() {
	if a.deferred {
		doc, err := store.Load[model.AppTrafficHistory](a.path)
		if unreadable(err) {
			slog.Warn("App history still unreadable, not overwriting it", "file", a.path, "err", err)
			return
		}
		merged := model.AppTrafficHistory{Records: append(doc.Records, a.history.Records...)}
		a.history = normalizeApps(merged)
		a.deferred = false
		a.pruneLocked()
		slog.Info("App history readable again, session merged", "file", a.path, "days", len(a.history.Records))
	}
	if err := store.Save(a.path, a.history); err != nil {
		slog.Error("Failed to save app history", "file", a.path, "err", err)
	}
}

// DailyAppRecords returns a deep copy ordered by date.
func (a *AppUsageLedger) DailyAppRecords() []model.DailyAppTrafficRecord {
	a.mu.Lock()
	out := make([]model.DailyAppTrafficRecord, len(a.history.Records))
	for i, r := range a.history.Records {
		apps := make([]model.AppTrafficRecord, len(r.Apps))
		copy(apps, r.Apps)
		out[i] = model.DailyAppTrafficRecord{Date: r.Date, Apps: apps}
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (a *AppUsageLedger) dayLocked(date string) *model.DailyAppTrafficRecord {
	for i := range a.history.Records {
		if a.history.Records[i].Date == date {
			return &a.history.Records[i]
		}
	}
	a.history.Records = append(a.history.Records, model.DailyAppTrafficRecord{Date: date, Apps: []model.AppTrafficRecord{}})
	return &a.history.Records[len(a.history.Records)-1]
}

func appInDay(day *model.DailyAppTrafficRecord, name string) *model.AppTrafficRecord {
	for i := range day.Apps {
		if day.Apps[i].ProcessName == name {
			return &day.Apps[i]
		}
	}
	day.Apps = append(day.Apps, model.AppTrafficRecord{ProcessName: name})
	return &day.Apps[len(day.Apps)-1]
}

// pruneLocked removes days older than the retention window using plain
// string comparison of the date keys, and returns how many were removed.
func (a *AppUsageLedger) pruneLocked() int {
	cutoff := cutoffKey(a.now(), a.loc, a.opts.RetentionDays)
	kept := a.history.Records[:0]
	removed := 0
	for _, r := range a.history.Records {
		if r.Date < cutoff {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	a.history.Records = kept
	return removed
}

// normalizeApps merges duplicate days and duplicate processes within a day.
func normalizeApps(doc model.AppTrafficHistory) model.AppTrafficHistory {
	out := model.AppTrafficHistory{Records: make([]model.DailyAppTrafficRecord, 0, len(doc.Records))}
	index := make(map[string]int, len(doc.Records))
	for _, r := range doc.Records {
		if r.Date == "" {
			continue
		}
		i, ok := index[r.Date]
		if !ok {
			i = len(out.Records)
			index[r.Date] = i
			out.Records = append(out.Records, model.DailyAppTrafficRecord{Date: r.Date, Apps: []model.AppTrafficRecord{}})
		}
		day := &out.Records[i]
		for _, app := range r.Apps {
			if app.ProcessName == "" {
				continue
			}
			rec := appInDay(day, app.ProcessName)
			rec.DownloadBytes += clamp(app.DownloadBytes)
			rec.UploadBytes += clamp(app.UploadBytes)
		}
	}
	sort.SliceStable(out.Records, func(i, j int) bool { return out.Records[i].Date < out.Records[j].Date })
	return out
}
