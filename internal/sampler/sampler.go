// Package sampler polls the active interface's cumulative counters and turns
// them into speed and running-total samples.
package sampler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"flowwatch/internal/model"
	"flowwatch/internal/netif"
)

// MinInterval is the fastest allowed polling period.
const MinInterval = 300 * time.Millisecond

// Sampler tracks one interface at a time. Samples are delivered to
// subscribers on the sampling goroutine, outside the sampler's lock, so a
// subscriber may call SetOffset or ResetTraffic but must not call Stop.
type Sampler struct {
	src netif.Source
	now func() time.Time

	runMu sync.Mutex // serializes Start and Stop

	mu        sync.Mutex
	sel       netif.Selector
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
	tracked   string
	base      model.TrafficBaseline
	firstPoll bool
	lastTick  time.Time
	offDown   int64
	offUp     int64
	startTime time.Time
	latest    model.StatsSample
	hasLatest bool

	subsMu sync.Mutex
	subs   []subscriber
	nextID int
}

type subscriber struct {
	id int
	fn func(model.StatsSample)
}

// New returns a stopped sampler reading from src.
func New(src netif.Source, sel netif.Selector) *Sampler {
	return &Sampler{
		src:       src,
		sel:       sel,
		now:       time.Now,
		startTime: time.Now(),
	}
}

// Subscribe registers fn for every published sample and returns a function
// that removes it.
func (s *Sampler) Subscribe(fn func(model.StatsSample)) (unsubscribe func()) {
	s.subsMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Start begins sampling every interval (clamped to MinInterval). Calling
// Start on a running sampler restarts the timer with the new interval and
// keeps the current baseline.
func (s *Sampler) Start(interval time.Duration) {
	if interval < MinInterval {
		interval = MinInterval
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.stopLocked()

	s.mu.Lock()
	s.interval = interval
	s.firstPoll = true
	needBaseline := s.tracked == ""
	s.mu.Unlock()

	if needBaseline {
		s.reselect("start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.loop(ctx, interval, done)
	slog.Info("Sampler started", "interval", interval.String())
}

// Stop halts sampling. It is safe to call repeatedly.
func (s *Sampler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.stopLocked()
}

func (s *Sampler) stopLocked() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the sampling goroutine is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// SetSelector replaces the interface selection rules. The tracked interface
// is kept until the next reselection.
func (s *Sampler) SetSelector(sel netif.Selector) {
	s.mu.Lock()
	s.sel = sel
	s.mu.Unlock()
}

// ResetTraffic reselects the interface, rebaselines and zeroes the offset.
func (s *Sampler) ResetTraffic() {
	s.mu.Lock()
	s.tracked = ""
	s.offDown, s.offUp = 0, 0
	s.startTime = s.now()
	s.mu.Unlock()
	s.reselect("reset")
}

// SetOffset makes the running totals start from down/up at the current
// counters: the baseline moves to the last read counters so the next sample
// reports offset plus whatever arrives afterwards.
func (s *Sampler) SetOffset(down, up int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if down < 0 {
		down = 0
	}
	if up < 0 {
		up = 0
	}
	s.offDown, s.offUp = down, up
	if s.tracked != "" {
		s.base.BaselineReceived = s.base.LastReceived
		s.base.BaselineSent = s.base.LastSent
	}
}

// TrafficStartTime is when totals were last reset.
func (s *Sampler) TrafficStartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Latest returns the most recent published sample.
func (s *Sampler) Latest() (model.StatsSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasLatest
}

// Interface returns the tracked interface name, empty when none.
func (s *Sampler) Interface() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracked
}

func (s *Sampler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sampler) reselect(reason string) {
	ifaces, err := s.src.Interfaces()
	if err != nil {
		slog.Warn("Interface enumeration failed", "reason", reason, "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ni, ok := s.sel.Select(ifaces); ok {
		s.trackLocked(ni)
	}
}

func (s *Sampler) trackLocked(ni netif.Interface) {
	if s.tracked != ni.Name {
		slog.Info("Tracking interface", "iface", ni.Name, "kind", ni.Kind.String())
	}
	s.tracked = ni.Name
	s.base = model.TrafficBaseline{
		BaselineReceived: ni.RxBytes,
		BaselineSent:     ni.TxBytes,
		LastReceived:     ni.RxBytes,
		LastSent:         ni.TxBytes,
	}
	s.firstPoll = true
}

func (s *Sampler) tick() {
	ifaces, err := s.src.Interfaces()

	s.mu.Lock()
	if err != nil {
		if s.tracked != "" {
			slog.Warn("Interface read failed, dropping", "iface", s.tracked, "err", err)
		}
		s.tracked = ""
		s.mu.Unlock()
		return
	}

	if s.tracked == "" {
		ni, ok := s.sel.Select(ifaces)
		if !ok {
			s.mu.Unlock()
			return
		}
		s.trackLocked(ni)
	}

	cur, ok := netif.Find(ifaces, s.tracked)
	if !ok || !cur.Up {
		ni, found := s.sel.Select(ifaces)
		if !found {
			slog.Warn("Tracked interface went away", "iface", s.tracked)
			s.tracked = ""
			s.mu.Unlock()
			return
		}
		s.trackLocked(ni)
		cur = ni
	}

	now := s.now()
	var downSpeed, upSpeed float64
	if !s.firstPoll {
		elapsed := now.Sub(s.lastTick).Seconds()
		if elapsed <= 0 {
			elapsed = s.interval.Seconds()
		}
		if elapsed <= 0 {
			elapsed = MinInterval.Seconds()
		}
		downSpeed = float64(clampDelta(cur.RxBytes, s.base.LastReceived)) / elapsed
		upSpeed = float64(clampDelta(cur.TxBytes, s.base.LastSent)) / elapsed
	}
	s.firstPoll = false
	s.lastTick = now

	s.base.LastReceived = cur.RxBytes
	s.base.LastSent = cur.TxBytes

	sample := model.StatsSample{
		DownloadSpeed: downSpeed,
		UploadSpeed:   upSpeed,
		TotalDownload: clampDelta(cur.RxBytes, s.base.BaselineReceived) + s.offDown,
		TotalUpload:   clampDelta(cur.TxBytes, s.base.BaselineSent) + s.offUp,
		InterfaceName: cur.Name,
		Time:          now,
	}
	s.latest = sample
	s.hasLatest = true
	s.mu.Unlock()

	s.publish(sample)
}

func (s *Sampler) publish(sample model.StatsSample) {
	s.subsMu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subsMu.Unlock()

	for _, sub := range subs {
		deliver(sub.fn, sample)
	}
}

func deliver(fn func(model.StatsSample), sample model.StatsSample) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Sample subscriber panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn(sample)
}

// clampDelta returns cur-prev, or 0 when the counter went backwards.
func clampDelta(cur, prev int64) int64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}
