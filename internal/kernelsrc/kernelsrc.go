// Package kernelsrc turns per-process kernel byte counters into raw events.
//
// The source polls a hash map in an eBPF object and emits the growth of each
// entry since the previous poll. The object is built from bpf/flowwatch.c by
// go generate; any object loaded instead must provide:
//
//   - a hash map (default name "proc_stats") keyed by
//     struct { u32 pid; char comm[16]; } (20 bytes, little endian) with
//     values struct { u64 tx_bytes; u64 rx_bytes; } holding cumulative counts;
//   - kprobe programs kprobe_tcp_sendmsg and kprobe_tcp_cleanup_rbuf;
//   - optionally kprobe_udp_sendmsg, kprobe_udp_recvmsg and
//     kretprobe_udp_recvmsg.
package kernelsrc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"flowwatch/internal/model"
)

// ErrUnavailable means kernel tracing could not be set up on this host
// (unsupported OS, missing privileges, missing object file).
var ErrUnavailable = errors.New("kernelsrc: kernel event source unavailable")

// Config selects the eBPF object and how it is read.
type Config struct {
	ObjectPath   string
	StatsMap     string
	PollInterval time.Duration
}

const (
	defaultStatsMap     = "proc_stats"
	defaultPollInterval = time.Second
)

func (c Config) withDefaults() Config {
	if c.StatsMap == "" {
		c.StatsMap = defaultStatsMap
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}

// procKey mirrors the map key written by the kernel programs.
type procKey struct {
	Pid  uint32
	Comm [16]byte
}

// trafficStats mirrors the map value.
type trafficStats struct {
	TxBytes uint64
	RxBytes uint64
}

func (k procKey) comm() string {
	n := bytes.IndexByte(k.Comm[:], 0)
	if n < 0 {
		n = len(k.Comm)
	}
	return string(k.Comm[:n])
}

// diffSnapshot compares two map snapshots and returns one event per
// direction that grew. A counter lower than before means the entry was
// recreated, so its whole value counts as new traffic.
func diffSnapshot(prev, cur map[procKey]trafficStats) []model.RawEvent {
	var out []model.RawEvent
	for key, now := range cur {
		before := prev[key]
		rx := growth(now.RxBytes, before.RxBytes)
		tx := growth(now.TxBytes, before.TxBytes)
		if rx > 0 {
			out = append(out, model.RawEvent{PID: key.Pid, Bytes: rx, IsDownload: true, Comm: key.comm()})
		}
		if tx > 0 {
			out = append(out, model.RawEvent{PID: key.Pid, Bytes: tx, Comm: key.comm()})
		}
	}
	return out
}

func growth(now, before uint64) int64 {
	if now >= before {
		return int64(now - before)
	}
	return int64(now)
}

// pollGuard orders map reads against teardown. Close runs on a different
// goroutine than Next, and the map descriptor must not be closed while an
// iteration is using it.
type pollGuard struct {
	mu     sync.Mutex
	closed bool
}

// do runs fn unless the guard is shut down.
func (g *pollGuard) do(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("kernel source: %w", os.ErrClosed)
	}
	return fn()
}

// shutdown waits for a running do, then runs release once.
func (g *pollGuard) shutdown(release func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	release()
}
