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

// TrafficSource is the sampler surface the usage ledger drives.
type TrafficSource interface {
	Subscribe(fn func(model.StatsSample)) (unsubscribe func())
	SetOffset(down, up int64)
	ResetTraffic()
}

// UsageLedger accumulates interface totals into daily records.
//
// Totals arrive as running counters; each sample contributes
// max(0, total-previous). The first sample of a session only sets the
// reference point. When a sample lands on a new day its delta is credited to
// the new day and the sampler is rebased so totals equal that day's usage.
type UsageLedger struct {
	path string
	src  TrafficSource
	opts Options
	now  func() time.Time
	loc  *time.Location

	mu          sync.Mutex
	history     model.TrafficHistory
	currentDate string
	lastDown    int64
	lastUp      int64
	hasBaseline bool
	started     bool
	deferred    bool // file was unreadable at Start; saves wait for a good read

	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewUsageLedger returns a ledger persisting to path.
func NewUsageLedger(path string, src TrafficSource, opts Options) *UsageLedger {
	if opts.Interval <= 0 {
		opts.Interval = defaultSaveInterval
	}
	return &UsageLedger{
		path: path,
		src:  src,
		opts: opts,
		now:  opts.clock(),
		loc:  opts.location(),
	}
}

// Start loads history, opens today's bucket, seeds the sampler offset with
// today's totals and begins the periodic save.
func (l *UsageLedger) Start() {
	doc, err := store.Load[model.TrafficHistory](l.path)
	if err != nil {
		slog.Error("Traffic history load failed, starting empty", "file", l.path, "err", err)
	}

	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.deferred = unreadable(err)
	l.history = normalizeTraffic(doc)
	l.pruneLocked()
	l.currentDate = dayKey(l.now(), l.loc)
	today := l.bucketLocked(l.currentDate)
	l.hasBaseline = false
	offDown, offUp := today.DownloadBytes, today.UploadBytes
	slog.Info("Traffic history loaded", "records", len(l.history.Records), "today_down", offDown, "today_up", offUp)

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	l.src.SetOffset(offDown, offUp)
	unsub := l.src.Subscribe(l.onSample)
	l.mu.Lock()
	l.unsubscribe = unsub
	l.mu.Unlock()
	go runEvery(ctx, l.opts.Interval, "traffic-save", l.Save, done)
}

// Stop detaches from the sampler, stops the timer and saves once.
func (l *UsageLedger) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	l.started = false
	cancel, done, unsub := l.cancel, l.done, l.unsubscribe
	l.cancel, l.done, l.unsubscribe = nil, nil, nil
	l.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
		<-done
	}
	l.Save()
}

func (l *UsageLedger) onSample(s model.StatsSample) {
	at := s.Time
	if at.IsZero() {
		at = l.now()
	}
	date := dayKey(at, l.loc)

	l.mu.Lock()
	if date != l.currentDate {
		slog.Info("Day rollover", "from", l.currentDate, "to", date)
		l.currentDate = date
		rec := l.bucketLocked(date)
		if l.hasBaseline {
			rec.DownloadBytes += clamp(s.TotalDownload - l.lastDown)
			rec.UploadBytes += clamp(s.TotalUpload - l.lastUp)
		}
		l.pruneLocked()
		l.saveLocked()
		rec = l.bucketLocked(date)
		l.lastDown, l.lastUp = rec.DownloadBytes, rec.UploadBytes
		l.hasBaseline = true
		offDown, offUp := rec.DownloadBytes, rec.UploadBytes
		l.mu.Unlock()

		l.src.SetOffset(offDown, offUp)
		return
	}

	if !l.hasBaseline {
		l.lastDown, l.lastUp = s.TotalDownload, s.TotalUpload
		l.hasBaseline = true
		l.mu.Unlock()
		return
	}

	rec := l.bucketLocked(date)
	rec.DownloadBytes += clamp(s.TotalDownload - l.lastDown)
	rec.UploadBytes += clamp(s.TotalUpload - l.lastUp)
	l.lastDown, l.lastUp = s.TotalDownload, s.TotalUpload
	l.mu.Unlock()
}

// ResetToday zeroes today's bucket, restarts the sampler totals and saves.
func (l *UsageLedger) ResetToday() {
	l.mu.Lock()
	rec := l.bucketLocked(l.currentDateLocked())
	rec.DownloadBytes, rec.UploadBytes = 0, 0
	l.hasBaseline = false
	l.mu.Unlock()

	slog.Info("Today's traffic reset")
	l.src.ResetTraffic()
	l.Save()
}

// ResetAll replaces the history with an empty today and saves.
func (l *UsageLedger) ResetAll() {
	l.mu.Lock()
	l.history = model.TrafficHistory{Records: []model.DailyTrafficRecord{}}
	l.bucketLocked(l.currentDateLocked())
	l.hasBaseline = false
	l.deferred = false
	l.mu.Unlock()

	slog.Info("All traffic history reset")
	l.src.ResetTraffic()
	l.Save()
}

// Save persists the current document. Failures are logged and retried on
// the next save.
func (l *UsageLedger) Save() {
	l.mu.Lock()
	merged := l.saveLocked()
	down, up := l.lastDown, l.lastUp
	l.mu.Unlock()

	if merged {
		l.src.SetOffset(down, up)
	}
}

// saveLocked writes the document. While saves are deferred it first retries
// the read and, on success, folds this session's counts into the stored
// history. It reports whether that merge happened, in which case today's
// totals changed and the sampler must be rebased by the caller.
func (l *UsageLedger) saveLocked() (merged bool) {
	if l.deferred {
		doc, err := store.Load[model.TrafficHistory](l.path)
		if unreadable(err) {
			slog.Warn("Traffic history still unreadable, not overwriting it", "file", l.path, "err", err)
			return false
		}
		l.history = mergeTraffic(normalizeTraffic(doc), l.history)
		l.deferred = false
		l.pruneLocked()
		today := l.bucketLocked(l.currentDateLocked())
		l.lastDown, l.lastUp = today.DownloadBytes, today.UploadBytes
		l.hasBaseline = true
		merged = true
		slog.Info("Traffic history readable again, session merged", "file", l.path, "records", len(l.history.Records))
	}
	if err := store.Save(l.path, l.history); err != nil {
		slog.Error("Failed to save traffic history", "file", l.path, "err", err)
	}
	return merged
}

// DailyRecords returns a copy of all records ordered by date.
func (l *UsageLedger) DailyRecords() []model.DailyTrafficRecord {
	l.mu.Lock()
	out := make([]model.DailyTrafficRecord, len(l.history.Records))
	copy(out, l.history.Records)
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Today returns today's record.
func (l *UsageLedger) Today() model.DailyTrafficRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	date := l.currentDateLocked()
	for _, r := range l.history.Records {
		if r.Date == date {
			return r
		}
	}
	return model.DailyTrafficRecord{Date: date}
}

func (l *UsageLedger) currentDateLocked() string {
	if l.currentDate == "" {
		l.currentDate = dayKey(l.now(), l.loc)
	}
	return l.currentDate
}

// bucketLocked finds or creates the record for date. The pointer is valid
// until the next append.
func (l *UsageLedger) bucketLocked(date string) *model.DailyTrafficRecord {
	for i := range l.history.Records {
		if l.history.Records[i].Date == date {
			return &l.history.Records[i]
		}
	}
	l.history.Records = append(l.history.Records, model.DailyTrafficRecord{Date: date})
	return &l.history.Records[len(l.history.Records)-1]
}

func (l *UsageLedger) pruneLocked() {
	if l.opts.RetentionDays <= 0 {
		return
	}
	cutoff := cutoffKey(l.now(), l.loc, l.opts.RetentionDays)
	kept := l.history.Records[:0]
	for _, r := range l.history.Records {
		if r.Date >= cutoff {
			kept = append(kept, r)
		}
	}
	l.history.Records = kept
}

// normalizeTraffic merges duplicate dates and clamps negative values.
func normalizeTraffic(doc model.TrafficHistory) model.TrafficHistory {
	out := model.TrafficHistory{Records: make([]model.DailyTrafficRecord, 0, len(doc.Records))}
	index := make(map[string]int, len(doc.Records))
	for _, r := range doc.Records {
		if r.Date == "" {
			continue
		}
		r.DownloadBytes, r.UploadBytes = clamp(r.DownloadBytes), clamp(r.UploadBytes)
		if i, ok := index[r.Date]; ok {
			out.Records[i].DownloadBytes += r.DownloadBytes
			out.Records[i].UploadBytes += r.UploadBytes
			continue
		}
		index[r.Date] = len(out.Records)
		out.Records = append(out.Records, r)
	}
	sort.SliceStable(out.Records, func(i, j int) bool { return out.Records[i].Date < out.Records[j].Date })
	return out
}

// mergeTraffic adds every record of session into stored.
func mergeTraffic(stored, session model.TrafficHistory) model.TrafficHistory {
	return normalizeTraffic(model.TrafficHistory{Records: append(stored.Records, session.Records...)})
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
