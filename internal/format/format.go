package format

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	speedUnits = []string{"B/s", "KB/s", "MB/s", "GB/s"}
	usageUnits = []string{"B", "KB", "MB", "GB", "TB"}
)

// scale divides v by 1024 until it fits the unit table and renders it with
// no decimals for values >= 10 (or plain bytes) and one decimal otherwise.
func scale(v float64, units []string) string {
	if v < 0 {
		v = 0
	}
	idx := 0
	for v >= 1024 && idx < len(units)-1 {
		v /= 1024
		idx++
	}
	if idx == 0 || v >= 10 {
		return fmt.Sprintf("%.0f %s", v, units[idx])
	}
	return fmt.Sprintf("%.1f %s", v, units[idx])
}

// FormatSpeed formats a byte rate.
func FormatSpeed(bytesPerSec float64) string {
	return scale(bytesPerSec, speedUnits)
}

// FormatUsage formats a byte count.
func FormatUsage(bytes int64) string {
	return scale(float64(bytes), usageUnits)
}

// FormatDuration formats a duration readably.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s > 0 {
			return fmt.Sprintf("%dm%ds", m, s)
		}
		return fmt.Sprintf("%dm", m)
	}
	if d < 48*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh%dm", h, m)
	}
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	return fmt.Sprintf("%dd%dh", days, h)
}

// Truncate shortens s to max characters, counting runes so multi-byte
// names are never cut mid-character.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "~"
}

// ShareBar renders part/whole as a 10-step bar.
func ShareBar(part, whole int64) string {
	if whole <= 0 || part <= 0 {
		return strings.Repeat("░", 10)
	}
	filled := int((part*10 + whole/2) / whole)
	if filled > 10 {
		filled = 10
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}
