// Package netif enumerates network interfaces and picks the one worth sampling.
package netif

import (
	"errors"
	"sort"
)

// ErrNoInterface is returned when no candidate interface exists.
var ErrNoInterface = errors.New("netif: no active interface")

// Kind is a coarse interface classification.
type Kind int

const (
	KindOther Kind = iota
	KindEthernet
	KindWireless
	KindLoopback
	KindTunnel
)

func (k Kind) String() string {
	switch k {
	case KindEthernet:
		return "ethernet"
	case KindWireless:
		return "wireless"
	case KindLoopback:
		return "loopback"
	case KindTunnel:
		return "tunnel"
	default:
		return "other"
	}
}

// Interface is a point-in-time view of one interface and its cumulative
// byte counters.
type Interface struct {
	Name    string
	Kind    Kind
	Up      bool
	RxBytes int64
	TxBytes int64
}

// Traffic is rx+tx, used to rank candidates.
func (i Interface) Traffic() int64 {
	return i.RxBytes + i.TxBytes
}

// Source lists interfaces with their counters filled in.
type Source interface {
	Interfaces() ([]Interface, error)
}

// Selector picks the active interface. Pinned forces a name when it is a
// valid candidate; Exclude removes names from consideration.
type Selector struct {
	Pinned  string
	Exclude []string
}

// Select applies the selection rules to a snapshot.
func (s Selector) Select(ifaces []Interface) (Interface, bool) {
	candidates := make([]Interface, 0, len(ifaces))
	for _, ni := range ifaces {
		if !ni.Up || ni.Kind == KindLoopback || ni.Kind == KindTunnel {
			continue
		}
		if s.excluded(ni.Name) {
			continue
		}
		if s.Pinned != "" && ni.Name == s.Pinned {
			return ni, true
		}
		candidates = append(candidates, ni)
	}
	if len(candidates) == 0 {
		return Interface{}, false
	}

	// Stable sort keeps enumeration order on equal traffic.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Traffic() > candidates[j].Traffic()
	})
	for _, ni := range candidates {
		if ni.Kind == KindEthernet || ni.Kind == KindWireless {
			return ni, true
		}
	}
	return candidates[0], true
}

// SelectFrom enumerates src and selects from the result.
func (s Selector) SelectFrom(src Source) (Interface, error) {
	ifaces, err := src.Interfaces()
	if err != nil {
		return Interface{}, err
	}
	ni, ok := s.Select(ifaces)
	if !ok {
		return Interface{}, ErrNoInterface
	}
	return ni, nil
}

func (s Selector) excluded(name string) bool {
	for _, ex := range s.Exclude {
		if ex == name {
			return true
		}
	}
	return false
}

// Find returns the interface called name from a snapshot.
func Find(ifaces []Interface, name string) (Interface, bool) {
	for _, ni := range ifaces {
		if ni.Name == name {
			return ni, true
		}
	}
	return Interface{}, false
}
