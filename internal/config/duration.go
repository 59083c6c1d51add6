package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written in config files as "<n>h", "<n>m",
// "<n>s", "<n>ms", a Go duration string, or a bare integer of milliseconds.
type Duration time.Duration

// ParseDuration parses the config-file duration forms.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	split := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if split == -1 {
		return scaled(s, time.Millisecond)
	}
	if split > 0 {
		switch s[split:] {
		case "ms":
			return scaled(s[:split], time.Millisecond)
		case "s":
			return scaled(s[:split], time.Second)
		case "m":
			return scaled(s[:split], time.Minute)
		case "h":
			return scaled(s[:split], time.Hour)
		}
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: want <integer>[h|m|s|ms]", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	return d, nil
}

func scaled(digits string, unit time.Duration) (time.Duration, error) {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", digits, err)
	}
	if n > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("duration %s%s overflows", digits, unitSuffix(unit))
	}
	return time.Duration(n) * unit, nil
}

func unitSuffix(unit time.Duration) string {
	switch unit {
	case time.Hour:
		return "h"
	case time.Minute:
		return "m"
	case time.Second:
		return "s"
	default:
		return "ms"
	}
}

// FormatDuration renders d in the largest unit that represents it exactly.
// Sub-millisecond precision is dropped.
func FormatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "0s"
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%ds", d/time.Second)
	default:
		return fmt.Sprintf("%dms", d/time.Millisecond)
	}
}

// durationValue converts a raw decoded value (string or number) to a duration.
func durationValue(v any) (time.Duration, error) {
	switch x := v.(type) {
	case string:
		return ParseDuration(x)
	case int:
		return nonNegativeMillis(int64(x))
	case int64:
		return nonNegativeMillis(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("duration %d ms overflows", x)
		}
		return nonNegativeMillis(int64(x))
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("duration %v ms is not an integer", x)
		}
		return nonNegativeMillis(int64(x))
	case time.Duration:
		return x, nil
	default:
		return 0, fmt.Errorf("unsupported duration value %v (%T)", v, v)
	}
}

func nonNegativeMillis(ms int64) (time.Duration, error) {
	if ms < 0 {
		return 0, fmt.Errorf("duration %d ms must not be negative", ms)
	}
	if ms > math.MaxInt64/int64(time.Millisecond) {
		return 0, fmt.Errorf("duration %d ms overflows", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return FormatDuration(time.Duration(d))
}

// MarshalYAML writes the compact form.
func (d Duration) MarshalYAML() (any, error) {
	return FormatDuration(time.Duration(d)), nil
}

// UnmarshalYAML accepts every form ParseDuration does, plus integer nodes.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	var parsed time.Duration
	var err error
	if node.Tag == "!!int" {
		var ms int64
		if err := node.Decode(&ms); err != nil {
			return err
		}
		parsed, err = nonNegativeMillis(ms)
	} else {
		parsed, err = ParseDuration(node.Value)
	}
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}
