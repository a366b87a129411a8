package netif

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// PsutilSource reads interfaces and counters through gopsutil.
type PsutilSource struct {
	// SysClassNet is the sysfs root used to detect wireless devices and
	// read each link's operstate.
	SysClassNet string

	// Running reports IFF_RUNNING for hosts without sysfs. ok is false when
	// the flag cannot be read.
	Running func(name string) (running, ok bool)
}

// NewPsutilSource returns a source backed by the host's interface table.
func NewPsutilSource() *PsutilSource {
	return &PsutilSource{SysClassNet: "/sys/class/net", Running: stdlibRunning}
}

func (p *PsutilSource) Interfaces() ([]Interface, error) {
	stats, err := psnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	counters, err := psnet.IOCounters(true)
	if err != nil {
		return nil, fmt.Errorf("read interface counters: %w", err)
	}

	byName := make(map[string]psnet.IOCountersStat, len(counters))
	for _, c := range counters {
		byName[c.Name] = c
	}

	out := make([]Interface, 0, len(stats))
	for _, st := range stats {
		ni := Interface{
			Name: st.Name,
			Kind: p.classify(st.Name, st.Flags),
			Up:   p.linkUp(st.Name, st.Flags),
		}
		if c, ok := byName[st.Name]; ok {
			ni.RxBytes = int64(c.BytesRecv)
			ni.TxBytes = int64(c.BytesSent)
		}
		out = append(out, ni)
	}
	return out, nil
}

var (
	tunnelPrefixes   = []string{"tun", "tap", "wg", "ppp", "tailscale", "utun", "ipsec", "gif", "stf", "zt", "vti", "gre", "sit", "ip6tnl"}
	wirelessPrefixes = []string{"wl", "wifi", "ath", "ra"}
	ethernetPrefixes = []string{"eth", "en", "em", "bond", "lan"}
)

func (p *PsutilSource) classify(name string, flags []string) Kind {
	if hasFlag(flags, "loopback") || name == "lo" || strings.HasPrefix(name, "lo0") {
		return KindLoopback
	}
	if hasFlag(flags, "pointtopoint") || hasPrefix(name, tunnelPrefixes) {
		return KindTunnel
	}
	if p.SysClassNet != "" {
		if _, err := os.Stat(filepath.Join(p.SysClassNet, name, "wireless")); err == nil {
			return KindWireless
		}
	}
	if hasPrefix(name, wirelessPrefixes) {
		return KindWireless
	}
	if hasPrefix(name, ethernetPrefixes) {
		return KindEthernet
	}
	return KindOther
}

// linkUp reports operational state. gopsutil's "up" flag is the
// administrative IFF_UP, which stays set on an unplugged port or a
// disassociated radio, so it only rules interfaces out.
func (p *PsutilSource) linkUp(name string, flags []string) bool {
	if !hasFlag(flags, "up") {
		return false
	}
	if p.SysClassNet != "" {
		if raw, err := os.ReadFile(filepath.Join(p.SysClassNet, name, "operstate")); err == nil {
			switch strings.TrimSpace(string(raw)) {
			case "up":
				return true
			case "unknown":
				// Tunnels and some drivers never report a state.
			default:
				return false
			}
		}
	}
	if p.Running != nil {
		if running, ok := p.Running(name); ok {
			return running
		}
	}
	return true
}

func stdlibRunning(name string) (bool, bool) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return false, false
	}
	return ifi.Flags&net.FlagRunning != 0, true
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

func hasPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
