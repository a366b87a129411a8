package main

import "testing"

func TestOverlayModePrecedence(t *testing.T) {
	cases := []struct {
		name     string
		s        Settings
		mode     OverlayMode
		autoHide bool
	}{
		{"none", Settings{}, OverlayFloating, false},
		{"locked", Settings{LockOnTop: true, AutoHide: true}, OverlayLockedOnTop, true},
		{"pinned", Settings{PinToDesktop: true}, OverlayPinnedToDesktop, false},
		{"both", Settings{LockOnTop: true, PinToDesktop: true, AutoHide: true}, OverlayPinnedToDesktop, false},
		{"autohide only", Settings{AutoHide: true}, OverlayFloating, true},
	}
	for _, tc := range cases {
		if got := tc.s.OverlayMode(); got != tc.mode {
			t.Fatalf("%s: mode = %s, want %s", tc.name, got, tc.mode)
		}
		if got := tc.s.EffectiveAutoHide(); got != tc.autoHide {
			t.Fatalf("%s: auto-hide = %v, want %v", tc.name, got, tc.autoHide)
		}
	}
}

func TestSettingsFromConfigIsDetached(t *testing.T) {
	cfg := defaultConfigTemplate()
	cfg.Interfaces.Exclude = []string{"docker0"}
	s := settingsFromConfig(&cfg)
	cfg.Interfaces.Exclude[0] = "changed"

	if s.Excluded[0] != "docker0" {
		t.Fatalf("snapshot shares config slice")
	}
	sel := s.Selector()
	sel.Exclude[0] = "other"
	if s.Excluded[0] != "docker0" {
		t.Fatalf("selector shares snapshot slice")
	}
}

func TestSameSelection(t *testing.T) {
	a := Settings{PinnedInterface: "eth0", Excluded: []string{"veth"}}
	b := a
	b.AutoHide = true
	if !a.sameSelection(b) {
		t.Fatalf("overlay-only change should keep selection")
	}
	b.Excluded = []string{"veth", "br0"}
	if a.sameSelection(b) {
		t.Fatalf("exclude change should differ")
	}
}
