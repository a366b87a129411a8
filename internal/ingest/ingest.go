// Package ingest attributes raw network I/O events to process names and
// accumulates them for the app ledger and for realtime speed reads.
package ingest

import (
	"errors"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"flowwatch/internal/model"
)

// stopWait bounds how long Stop waits for the worker after closing the source.
const stopWait = 2 * time.Second

// Source delivers raw events. Next blocks until an event is available and
// returns an error wrapping os.ErrClosed once Close has been called.
type Source interface {
	Next() (model.RawEvent, error)
	Close() error
}

// Resolver maps a pid to a process name and, when available, its executable.
type Resolver interface {
	Resolve(pid uint32) (name, exe string, err error)
}

// ProcessSpeed is a per-process rate in bytes/s.
type ProcessSpeed struct {
	Download float64 `json:"download"`
	Upload   float64 `json:"upload"`
}

// Counters reports ingest totals since start.
type Counters struct {
	Accepted int64 `json:"accepted"`
	Dropped  int64 `json:"dropped"`
}

type cell struct {
	down atomic.Int64
	up   atomic.Int64
}

// Ingestor owns the pid cache and both accumulator sets. Accumulation uses
// per-cell atomics only; no lock is taken on the event path.
type Ingestor struct {
	resolver Resolver
	now      func() time.Time

	pidNames  sync.Map // uint32 -> string, "" for pids that failed to resolve
	exePaths  sync.Map // string -> string
	persisted sync.Map // string -> *cell
	realtime  sync.Map // string -> *cell

	accepted atomic.Int64
	dropped  atomic.Int64

	rtMu         sync.Mutex
	lastRealtime time.Time

	mu   sync.Mutex
	src  Source
	done chan struct{}
}

// New returns an idle ingestor.
func New(resolver Resolver) *Ingestor {
	in := &Ingestor{resolver: resolver, now: time.Now}
	in.lastRealtime = in.now()
	return in
}

// Start runs a worker pulling events from src until Stop.
func (in *Ingestor) Start(src Source) {
	in.mu.Lock()
	if in.src != nil {
		in.mu.Unlock()
		return
	}
	done := make(chan struct{})
	in.src = src
	in.done = done
	in.mu.Unlock()

	in.rtMu.Lock()
	in.lastRealtime = in.now()
	in.rtMu.Unlock()

	go in.worker(src, done)
	slog.Info("Event ingestion started")
}

// Active reports whether a source is attached.
func (in *Ingestor) Active() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.src != nil
}

// Stop closes the source and waits briefly for the worker. Safe to repeat.
func (in *Ingestor) Stop() {
	in.mu.Lock()
	src, done := in.src, in.done
	in.src, in.done = nil, nil
	in.mu.Unlock()

	if src == nil {
		return
	}
	if err := src.Close(); err != nil {
		slog.Warn("Closing event source failed", "err", err)
	}
	select {
	case <-done:
	case <-time.After(stopWait):
		slog.Warn("Event worker did not exit in time")
	}
}

func (in *Ingestor) worker(src Source, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event worker panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	failures := 0
	for {
		ev, err := src.Next()
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				slog.Info("Event source closed")
				return
			}
			failures++
			if failures == 1 || failures%100 == 0 {
				slog.Warn("Event source read failed", "err", err, "failures", failures)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		failures = 0
		in.Ingest(ev)
	}
}

// Ingest attributes one event. Events that cannot be attributed are dropped.
func (in *Ingestor) Ingest(ev model.RawEvent) {
	if ev.Bytes <= 0 || ev.PID == 0 {
		return
	}
	name := in.resolveName(ev)
	if name == "" {
		in.dropped.Inc()
		return
	}
	in.accepted.Inc()

	p := cellFor(&in.persisted, name)
	r := cellFor(&in.realtime, name)
	if ev.IsDownload {
		p.down.Add(ev.Bytes)
		r.down.Add(ev.Bytes)
	} else {
		p.up.Add(ev.Bytes)
		r.up.Add(ev.Bytes)
	}
}

func (in *Ingestor) resolveName(ev model.RawEvent) string {
	if v, ok := in.pidNames.Load(ev.PID); ok {
		if name := v.(string); name != "" {
			return name
		}
		return commName(ev.Comm)
	}

	var name, exe string
	if in.resolver != nil {
		n, e, err := in.resolver.Resolve(ev.PID)
		if err == nil {
			name, exe = n, e
		}
	}
	actual, _ := in.pidNames.LoadOrStore(ev.PID, name)
	name = actual.(string)
	if name != "" && exe != "" {
		in.exePaths.LoadOrStore(name, exe)
	}
	if name == "" {
		return commName(ev.Comm)
	}
	return name
}

// commName cleans a kernel task name; threads such as "Socket Thread" or
// resolver workers are not useful as application names.
func commName(comm string) string {
	comm = strings.TrimSpace(strings.TrimRight(comm, "\x00"))
	if comm == "" || comm == "Socket Thread" || strings.HasPrefix(comm, "DNS Res") {
		return ""
	}
	return comm
}

func cellFor(m *sync.Map, name string) *cell {
	if v, ok := m.Load(name); ok {
		return v.(*cell)
	}
	v, _ := m.LoadOrStore(name, &cell{})
	return v.(*cell)
}

// ExecutablePath returns the executable recorded for name on first resolution.
func (in *Ingestor) ExecutablePath(name string) (string, bool) {
	v, ok := in.exePaths.Load(name)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// FlushDeltas hands out and zeroes the persisted accumulators. Processes with
// nothing pending are omitted; an empty map means there is nothing to write.
func (in *Ingestor) FlushDeltas() map[string]model.TrafficDelta {
	out := make(map[string]model.TrafficDelta)
	in.persisted.Range(func(k, v any) bool {
		c := v.(*cell)
		d := model.TrafficDelta{Download: c.down.Swap(0), Upload: c.up.Swap(0)}
		if !d.IsZero() {
			out[k.(string)] = d
		}
		return true
	})
	return out
}

// RealtimeSpeeds drains the realtime accumulators and divides by the wall
// time since the previous call. The first read after Start covers an
// arbitrary window; callers discard it.
func (in *Ingestor) RealtimeSpeeds() map[string]ProcessSpeed {
	in.rtMu.Lock()
	now := in.now()
	elapsed := now.Sub(in.lastRealtime).Seconds()
	in.lastRealtime = now
	in.rtMu.Unlock()
	if elapsed <= 0 {
		elapsed = 1
	}

	out := make(map[string]ProcessSpeed)
	in.realtime.Range(func(k, v any) bool {
		c := v.(*cell)
		down, up := c.down.Swap(0), c.up.Swap(0)
		if down > 0 || up > 0 {
			out[k.(string)] = ProcessSpeed{
				Download: float64(down) / elapsed,
				Upload:   float64(up) / elapsed,
			}
		}
		return true
	})
	return out
}

// Counters returns accepted and dropped event counts.
func (in *Ingestor) Counters() Counters {
	return Counters{Accepted: in.accepted.Load(), Dropped: in.dropped.Load()}
}
