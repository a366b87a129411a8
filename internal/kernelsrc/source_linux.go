//go:build linux

package kernelsrc

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"

	"flowwatch/internal/model"
)

type hook struct {
	symbol   string
	program  string
	ret      bool
	required bool
}

// TCP send and receive paths are mandatory; UDP hooks are best effort since
// udp_recvmsg is inlined on some kernels.
var hooks = []hook{
	{symbol: "tcp_sendmsg", program: "kprobe_tcp_sendmsg", required: true},
	{symbol: "tcp_cleanup_rbuf", program: "kprobe_tcp_cleanup_rbuf", required: true},
	{symbol: "udp_sendmsg", program: "kprobe_udp_sendmsg"},
	{symbol: "udp_recvmsg", program: "kprobe_udp_recvmsg"},
	{symbol: "udp_recvmsg", program: "kretprobe_udp_recvmsg", ret: true},
}

// Source polls the kernel byte-count map.
type Source struct {
	coll   *ebpf.Collection
	links  []link.Link
	stats  *ebpf.Map
	ticker *time.Ticker

	prev    map[procKey]trafficStats
	pending []model.RawEvent

	guard     pollGuard
	closed    chan struct{}
	closeOnce sync.Once
}

// Open loads the object at cfg.ObjectPath and attaches the hooks.
func Open(cfg Config) (*Source, error) {
	cfg = cfg.withDefaults()
	if cfg.ObjectPath == "" {
		return nil, fmt.Errorf("%w: no object path configured", ErrUnavailable)
	}
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("%w: remove memlock: %v", ErrUnavailable, err)
	}

	spec, err := ebpf.LoadCollectionSpec(cfg.ObjectPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrUnavailable, cfg.ObjectPath, err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: create collection: %v", ErrUnavailable, err)
	}

	s := &Source{coll: coll, closed: make(chan struct{}), prev: map[procKey]trafficStats{}}

	stats, ok := coll.Maps[cfg.StatsMap]
	if !ok {
		s.release()
		return nil, fmt.Errorf("%w: map %q not found in object", ErrUnavailable, cfg.StatsMap)
	}
	s.stats = stats

	for _, p := range hooks {
		l, err := attach(coll, p)
		if err != nil {
			if p.required {
				s.release()
				return nil, fmt.Errorf("%w: attach %s: %v", ErrUnavailable, p.program, err)
			}
			slog.Warn("Optional hook not attached", "program", p.program, "err", err)
			continue
		}
		s.links = append(s.links, l)
	}

	// Counters accumulated before we started belong to nobody's session.
	if snap, err := s.snapshot(); err == nil {
		s.prev = snap
	}

	s.ticker = time.NewTicker(cfg.PollInterval)
	slog.Info("Kernel event source attached", "object", cfg.ObjectPath, "hooks", len(s.links))
	return s, nil
}

func attach(coll *ebpf.Collection, p hook) (link.Link, error) {
	prog, ok := coll.Programs[p.program]
	if !ok {
		return nil, fmt.Errorf("program %q not found", p.program)
	}
	if p.ret {
		return link.Kretprobe(p.symbol, prog, nil)
	}
	return link.Kprobe(p.symbol, prog, nil)
}

// Next returns the next event, polling the map when the queue is empty.
// It must be called from a single goroutine.
func (s *Source) Next() (model.RawEvent, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		select {
		case <-s.closed:
			return model.RawEvent{}, fmt.Errorf("kernel source: %w", os.ErrClosed)
		case <-s.ticker.C:
		}

		snap, err := s.snapshot()
		if err != nil {
			select {
			case <-s.closed:
				return model.RawEvent{}, fmt.Errorf("kernel source: %w", os.ErrClosed)
			default:
			}
			return model.RawEvent{}, err
		}
		s.pending = diffSnapshot(s.prev, snap)
		s.prev = snap
	}
}

func (s *Source) snapshot() (map[procKey]trafficStats, error) {
	var snap map[procKey]trafficStats
	err := s.guard.do(func() error {
		var err error
		snap, err = s.readStats()
		return err
	})
	return snap, err
}

func (s *Source) readStats() (map[procKey]trafficStats, error) {
	snap := make(map[procKey]trafficStats, len(s.prev))
	var (
		key procKey
		val trafficStats
	)
	iter := s.stats.Iterate()
	for iter.Next(&key, &val) {
		snap[key] = val
	}
	if err := iter.Err(); err != nil {
		if errors.Is(err, ebpf.ErrIterationAborted) {
			// Map churned under us; the next poll catches up.
			return snap, nil
		}
		return nil, fmt.Errorf("iterate %s: %w", s.stats.String(), err)
	}
	return snap, nil
}

// Close detaches the hooks and unblocks Next. A map read already in
// progress finishes before the collection is closed.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.ticker != nil {
			s.ticker.Stop()
		}
		s.guard.shutdown(s.release)
	})
	return nil
}

func (s *Source) release() {
	for _, l := range s.links {
		_ = l.Close()
	}
	s.links = nil
	if s.coll != nil {
		s.coll.Close()
	}
}
