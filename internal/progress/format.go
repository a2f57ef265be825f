package progress

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var byteUnits = []struct {
	suffix string
	size   int64
}{
	// IEC before SI so "KiB" is not read as "B".
	{"TiB", 1 << 40},
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
	{"TB", 1e12},
	{"GB", 1e9},
	{"MB", 1e6},
	{"KB", 1e3},
	{"B", 1},
}

// FormatBytes formats bytes as a human-readable string using IEC units.
func FormatBytes(b int64) string {
	for _, u := range byteUnits[:4] {
		if b >= u.size {
			return formatScaled(float64(b)/float64(u.size), u.suffix)
		}
	}
	return fmt.Sprintf("%d B", b)
}

func formatScaled(v float64, suffix string) string {
	if v >= 100 {
		return fmt.Sprintf("%.0f %s", v, suffix)
	}
	return fmt.Sprintf("%.1f %s", v, suffix)
}

// ParseBytes parses a human-readable byte string such as "256MiB", "1.5 GB"
// or "4096". IEC units are powers of 1024, SI units powers of 1000.
func ParseBytes(s string) (int64, error) {
	orig := s
	s = strings.TrimSpace(s)

	var multiplier int64 = 1
	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.size
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %q", orig)
	}
	return int64(value * float64(multiplier)), nil
}

// FormatCount formats a count with an SI suffix, e.g. 1.25M.
func FormatCount(n int64) string {
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.2fG", float64(n)/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.2fM", float64(n)/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.2fk", float64(n)/1e3)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// FormatDuration formats a duration as a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
