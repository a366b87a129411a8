package netif

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSelectPrefersEthernetAndWireless(t *testing.T) {
	ifaces := []Interface{
		{Name: "lo", Kind: KindLoopback, Up: true, RxBytes: 1 << 40},
		{Name: "tun0", Kind: KindTunnel, Up: true, RxBytes: 1 << 39},
		{Name: "docker0", Kind: KindOther, Up: true, RxBytes: 1 << 30},
		{Name: "eth0", Kind: KindEthernet, Up: true, RxBytes: 100, TxBytes: 50},
		{Name: "wlan0", Kind: KindWireless, Up: true, RxBytes: 300},
	}

	got, ok := Selector{}.Select(ifaces)
	if !ok {
		t.Fatalf("expected a selection")
	}
	if got.Name != "wlan0" {
		t.Fatalf("selected %q, want wlan0", got.Name)
	}
}

func TestSelectFallsBackToAnyCandidate(t *testing.T) {
	ifaces := []Interface{
		{Name: "lo", Kind: KindLoopback, Up: true},
		{Name: "br0", Kind: KindOther, Up: true, RxBytes: 10},
		{Name: "veth1", Kind: KindOther, Up: true, RxBytes: 20},
		{Name: "eth0", Kind: KindEthernet, Up: false, RxBytes: 1000},
	}

	got, ok := Selector{}.Select(ifaces)
	if !ok || got.Name != "veth1" {
		t.Fatalf("selected %q ok=%v, want veth1", got.Name, ok)
	}
}

func TestSelectNone(t *testing.T) {
	ifaces := []Interface{
		{Name: "lo", Kind: KindLoopback, Up: true},
		{Name: "wg0", Kind: KindTunnel, Up: true},
		{Name: "eth0", Kind: KindEthernet, Up: false},
	}
	if _, ok := (Selector{}).Select(ifaces); ok {
		t.Fatalf("expected no selection")
	}
	if _, ok := (Selector{}).Select(nil); ok {
		t.Fatalf("expected no selection for empty list")
	}
}

func TestSelectPinnedAndExcluded(t *testing.T) {
	ifaces := []Interface{
		{Name: "eth0", Kind: KindEthernet, Up: true, RxBytes: 1000},
		{Name: "eth1", Kind: KindEthernet, Up: true, RxBytes: 10},
	}

	got, _ := Selector{Pinned: "eth1"}.Select(ifaces)
	if got.Name != "eth1" {
		t.Fatalf("pinned selection = %q, want eth1", got.Name)
	}
	got, _ = Selector{Exclude: []string{"eth0"}}.Select(ifaces)
	if got.Name != "eth1" {
		t.Fatalf("exclusion ignored, got %q", got.Name)
	}
	// A pinned interface that is down does not win.
	ifaces[1].Up = false
	got, _ = Selector{Pinned: "eth1"}.Select(ifaces)
	if got.Name != "eth0" {
		t.Fatalf("down pinned interface selected")
	}
}

type errSource struct{ err error }

func (e errSource) Interfaces() ([]Interface, error) { return nil, e.err }

type listSource []Interface

func (l listSource) Interfaces() ([]Interface, error) { return l, nil }

func TestSelectFrom(t *testing.T) {
	if _, err := (Selector{}).SelectFrom(listSource{}); err != ErrNoInterface {
		t.Fatalf("expected ErrNoInterface, got %v", err)
	}
	boom := os.ErrPermission
	if _, err := (Selector{}).SelectFrom(errSource{boom}); err != boom {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	sys := t.TempDir()
	if err := os.MkdirAll(filepath.Join(sys, "wlp2s0", "wireless"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	p := &PsutilSource{SysClassNet: sys}

	cases := []struct {
		name  string
		flags []string
		want  Kind
	}{
		{"lo", []string{"up", "loopback"}, KindLoopback},
		{"ppp0", []string{"up", "pointtopoint"}, KindTunnel},
		{"wg0", []string{"up"}, KindTunnel},
		{"tailscale0", []string{"up"}, KindTunnel},
		{"wlp2s0", []string{"up"}, KindWireless},
		{"wlan0", []string{"up"}, KindWireless},
		{"enp3s0", []string{"up", "broadcast"}, KindEthernet},
		{"eth0", nil, KindEthernet},
		{"docker0", []string{"up"}, KindOther},
	}
	for _, tc := range cases {
		if got := p.classify(tc.name, tc.flags); got != tc.want {
			t.Fatalf("classify(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func writeOperstate(t *testing.T, root, name, state string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "operstate"), []byte(state+"\n"), 0o644); err != nil {
		t.Fatalf("write operstate: %v", err)
	}
}

func TestLinkUpUsesOperstate(t *testing.T) {
	sys := t.TempDir()
	writeOperstate(t, sys, "eth0", "down")
	writeOperstate(t, sys, "wlan0", "up")
	writeOperstate(t, sys, "wlan1", "dormant")
	writeOperstate(t, sys, "tun0", "unknown")

	running := map[string]bool{"tun0": true, "eth1": false, "eth2": true}
	p := &PsutilSource{SysClassNet: sys, Running: func(name string) (bool, bool) {
		r, ok := running[name]
		return r, ok
	}}

	cases := []struct {
		name  string
		flags []string
		want  bool
	}{
		{"eth0", []string{"up", "broadcast"}, false}, // cable unplugged, still IFF_UP
		{"wlan0", []string{"up"}, true},
		{"wlan1", []string{"up"}, false},
		{"wlan0", nil, false}, // administratively down wins
		{"tun0", []string{"up", "pointtopoint"}, true},
		{"eth1", []string{"up"}, false}, // no sysfs entry, not running
		{"eth2", []string{"up"}, true},
		{"eth3", []string{"up"}, true}, // nothing known beyond IFF_UP
	}
	for _, tc := range cases {
		if got := p.linkUp(tc.name, tc.flags); got != tc.want {
			t.Fatalf("linkUp(%q, %v) = %v, want %v", tc.name, tc.flags, got, tc.want)
		}
	}
}

func TestSelectSkipsCarrierLessEthernet(t *testing.T) {
	sys := t.TempDir()
	writeOperstate(t, sys, "eth0", "down")
	writeOperstate(t, sys, "wlan0", "up")
	p := &PsutilSource{SysClassNet: sys}

	ifaces := []Interface{
		{Name: "eth0", Kind: KindEthernet, Up: p.linkUp("eth0", []string{"up"}), RxBytes: 1 << 30},
		{Name: "wlan0", Kind: KindWireless, Up: p.linkUp("wlan0", []string{"up"}), RxBytes: 10},
	}
	got, ok := Selector{}.Select(ifaces)
	if !ok || got.Name != "wlan0" {
		t.Fatalf("Select = %+v %v, want wlan0", got, ok)
	}
}
