package sampler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"flowwatch/internal/model"
	"flowwatch/internal/netif"
)

type fakeSource struct {
	mu     sync.Mutex
	ifaces []netif.Interface
	err    error
}

func (f *fakeSource) Interfaces() ([]netif.Interface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]netif.Interface, len(f.ifaces))
	copy(out, f.ifaces)
	return out, nil
}

func (f *fakeSource) set(name string, rx, tx int64, up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.ifaces {
		if f.ifaces[i].Name == name {
			f.ifaces[i].RxBytes, f.ifaces[i].TxBytes, f.ifaces[i].Up = rx, tx, up
			return
		}
	}
	f.ifaces = append(f.ifaces, netif.Interface{Name: name, Kind: netif.KindEthernet, Up: up, RxBytes: rx, TxBytes: tx})
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type recorder struct {
	mu      sync.Mutex
	samples []model.StatsSample
}

func (r *recorder) add(s model.StatsSample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func (r *recorder) last(t *testing.T) model.StatsSample {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		t.Fatalf("no samples recorded")
	}
	return r.samples[len(r.samples)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func newTestSampler(src *fakeSource) (*Sampler, *fakeClock, *recorder) {
	clk := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)}
	s := New(src, netif.Selector{})
	s.now = clk.now
	s.interval = time.Second
	rec := &recorder{}
	s.Subscribe(rec.add)
	return s, clk, rec
}

func TestFirstTickHasZeroSpeed(t *testing.T) {
	src := &fakeSource{}
	src.set("eth0", 1000, 500, true)
	s, clk, rec := newTestSampler(src)

	s.reselect("test")
	src.set("eth0", 3000, 900, true)
	clk.advance(time.Second)
	s.tick()

	got := rec.last(t)
	if got.DownloadSpeed != 0 || got.UploadSpeed != 0 {
		t.Fatalf("first tick after baseline should report zero speed, got %+v", got)
	}
	if got.TotalDownload != 2000 || got.TotalUpload != 400 {
		t.Fatalf("totals = %d/%d, want 2000/400", got.TotalDownload, got.TotalUpload)
	}

	src.set("eth0", 5000, 1900, true)
	clk.advance(2 * time.Second)
	s.tick()
	got = rec.last(t)
	if got.DownloadSpeed != 1000 || got.UploadSpeed != 500 {
		t.Fatalf("speed = %v/%v, want 1000/500", got.DownloadSpeed, got.UploadSpeed)
	}
	if got.InterfaceName != "eth0" {
		t.Fatalf("interface = %q", got.InterfaceName)
	}
}

func TestCounterRollbackYieldsZero(t *testing.T) {
	src := &fakeSource{}
	src.set("eth0", 10_000, 10_000, true)
	s, clk, rec := newTestSampler(src)
	s.reselect("test")

	clk.advance(time.Second)
	s.tick()
	src.set("eth0", 100, 50, true)
	clk.advance(time.Second)
	s.tick()

	got := rec.last(t)
	if got.DownloadSpeed != 0 || got.UploadSpeed != 0 {
		t.Fatalf("rollback must not produce speed, got %+v", got)
	}
	if got.TotalDownload != 0 || got.TotalUpload != 0 {
		t.Fatalf("rollback must not produce negative totals, got %+v", got)
	}
}

func TestTotalsMonotonicWhileTracking(t *testing.T) {
	src := &fakeSource{}
	src.set("eth0", 0, 0, true)
	s, clk, rec := newTestSampler(src)
	s.reselect("test")

	rx := int64(0)
	var prev int64
	for i := 0; i < 20; i++ {
		rx += int64(i * 37)
		src.set("eth0", rx, rx/2, true)
		clk.advance(500 * time.Millisecond)
		s.tick()
		got := rec.last(t)
		if got.TotalDownload < prev {
			t.Fatalf("total decreased at step %d: %d < %d", i, got.TotalDownload, prev)
		}
		prev = got.TotalDownload
	}
}

func TestReadErrorDropsAndReselects(t *testing.T) {
	src := &fakeSource{}
	src.set("eth0", 100, 100, true)
	s, clk, rec := newTestSampler(src)
	s.reselect("test")

	src.fail(errors.New("boom"))
	clk.advance(time.Second)
	s.tick()
	if s.Interface() != "" {
		t.Fatalf("read error should drop the tracked interface")
	}
	if rec.count() != 0 {
		t.Fatalf("no sample expected on read error")
	}

	src.fail(nil)
	src.set("eth0", 900, 100, true)
	clk.advance(time.Second)
	s.tick()
	if s.Interface() != "eth0" {
		t.Fatalf("next tick should reselect")
	}
	got := rec.last(t)
	if got.DownloadSpeed != 0 || got.TotalDownload != 0 {
		t.Fatalf("reselect must rebaseline, got %+v", got)
	}
}

func TestInterfaceDownSwitchesAndRebaselines(t *testing.T) {
	src := &fakeSource{}
	src.set("eth0", 5000, 5000, true)
	s, clk, rec := newTestSampler(src)
	s.reselect("test")
	clk.advance(time.Second)
	s.tick()

	src.set("eth0", 6000, 6000, false)
	src.set("wlan0", 42, 42, true)
	clk.advance(time.Second)
	s.tick()

	got := rec.last(t)
	if got.InterfaceName != "wlan0" {
		t.Fatalf("expected switch to wlan0, got %q", got.InterfaceName)
	}
	if got.TotalDownload != 0 || got.DownloadSpeed != 0 {
		t.Fatalf("switch should rebaseline, got %+v", got)
	}
}

func TestNoCandidateSkipsTick(t *testing.T) {
	src := &fakeSource{}
	s, clk, rec := newTestSampler(src)
	clk.advance(time.Second)
	s.tick()
	if rec.count() != 0 {
		t.Fatalf("no sample expected without an interface")
	}
}

func TestSetOffsetRebases(t *testing.T) {
	src := &fakeSource{}
	src.set("eth0", 1000, 1000, true)
	s, clk, rec := newTestSampler(src)
	s.reselect("test")
	src.set("eth0", 1500, 1200, true)
	clk.advance(time.Second)
	s.tick()

	s.SetOffset(7000, 3000)
	src.set("eth0", 1600, 1300, true)
	clk.advance(time.Second)
	s.tick()

	got := rec.last(t)
	if got.TotalDownload != 7100 || got.TotalUpload != 3100 {
		t.Fatalf("totals after offset = %d/%d, want 7100/3100", got.TotalDownload, got.TotalUpload)
	}
}

func TestResetTrafficZeroesTotals(t *testing.T) {
	src := &fakeSource{}
	src.set("eth0", 1000, 1000, true)
	s, clk, rec := newTestSampler(src)
	s.SetOffset(50, 50)
	s.reselect("test")
	src.set("eth0", 2000, 2000, true)
	clk.advance(time.Second)
	s.tick()

	clk.advance(time.Minute)
	s.ResetTraffic()
	if !s.TrafficStartTime().Equal(clk.t) {
		t.Fatalf("traffic start time not reset")
	}
	clk.advance(time.Second)
	s.tick()
	got := rec.last(t)
	if got.TotalDownload != 0 || got.TotalUpload != 0 || got.DownloadSpeed != 0 {
		t.Fatalf("after reset want zero totals, got %+v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	src := &fakeSource{}
	src.set("eth0", 1, 1, true)
	s := New(src, netif.Selector{})
	var n int
	unsub := s.Subscribe(func(model.StatsSample) { n++ })
	s.tick()
	unsub()
	unsub()
	s.tick()
	if n != 1 {
		t.Fatalf("subscriber called %d times, want 1", n)
	}
}

func TestSubscriberMayCallBack(t *testing.T) {
	src := &fakeSource{}
	src.set("eth0", 1, 1, true)
	s := New(src, netif.Selector{})
	s.Subscribe(func(model.StatsSample) { s.SetOffset(1, 1) })
	s.Subscribe(func(model.StatsSample) { panic("bad subscriber") })

	done := make(chan struct{})
	go func() {
		s.tick()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("tick deadlocked with a re-entrant subscriber")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	src := &fakeSource{}
	src.set("eth0", 1, 1, true)
	s := New(src, netif.Selector{})
	s.Start(10 * time.Millisecond)
	if !s.Running() {
		t.Fatalf("expected running")
	}
	if s.interval != MinInterval {
		t.Fatalf("interval = %v, want clamp to %v", s.interval, MinInterval)
	}
	s.Stop()
	s.Stop()
	if s.Running() {
		t.Fatalf("expected stopped")
	}
}
