package main

import (
	"slices"
	"time"

	"flowwatch/internal/netif"
)

// Settings is an immutable snapshot of the user-tunable values. Readers get
// a copy; updates replace the whole value through AppContext.SetSettings.
type Settings struct {
	SampleInterval  time.Duration
	PinnedInterface string
	Excluded        []string
	LockOnTop       bool
	PinToDesktop    bool
	AutoHide        bool
}

func settingsFromConfig(cfg *Config) Settings {
	return Settings{
		SampleInterval:  cfg.SampleInterval(),
		PinnedInterface: cfg.Interfaces.Pinned,
		Excluded:        slices.Clone(cfg.Interfaces.Exclude),
		LockOnTop:       cfg.Overlay.LockOnTop,
		PinToDesktop:    cfg.Overlay.PinToDesktop,
		AutoHide:        cfg.Overlay.AutoHide,
	}
}

func (s Settings) Selector() netif.Selector {
	return netif.Selector{Pinned: s.PinnedInterface, Exclude: slices.Clone(s.Excluded)}
}

// sameSelection reports whether two snapshots pick interfaces the same way.
func (s Settings) sameSelection(o Settings) bool {
	return s.PinnedInterface == o.PinnedInterface && slices.Equal(s.Excluded, o.Excluded)
}

type OverlayMode int

const (
	OverlayFloating OverlayMode = iota
	OverlayLockedOnTop
	OverlayPinnedToDesktop
)

func (m OverlayMode) String() string {
	switch m {
	case OverlayLockedOnTop:
		return "locked_on_top"
	case OverlayPinnedToDesktop:
		return "pinned_to_desktop"
	default:
		return "floating"
	}
}

// OverlayMode resolves the window flags into one mode. Pin to desktop wins
// over lock on top when both are set.
func (s Settings) OverlayMode() OverlayMode {
	switch {
	case s.PinToDesktop:
		return OverlayPinnedToDesktop
	case s.LockOnTop:
		return OverlayLockedOnTop
	default:
		return OverlayFloating
	}
}

// EffectiveAutoHide is false for a window pinned to the desktop, which never
// competes with other windows for the top edge.
func (s Settings) EffectiveAutoHide() bool {
	return s.AutoHide && s.OverlayMode() != OverlayPinnedToDesktop
}
