package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Duration is a duration written as a Go duration string ("30s", "2m").
type Duration time.Duration

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Interval is the auto pull period. The config file accepts either integer
// minutes or a duration string; both normalize to a time.Duration here and
// nowhere else.
type Interval time.Duration

// Duration returns the normalized interval.
func (i Interval) Duration() time.Duration {
	return time.Duration(i)
}

// MarshalText implements encoding.TextMarshaler.
func (i Interval) MarshalText() ([]byte, error) {
	return []byte(time.Duration(i).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Bare digits are minutes.
func (i *Interval) UnmarshalText(text []byte) error {
	v, err := parseInterval(string(text))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// parseInterval converts a raw TOML value to an Interval.
// Accepts integers (minutes), floats (minutes) and duration strings.
func parseInterval(val any) (Interval, error) {
	switch v := val.(type) {
	case nil:
		return 0, nil
	case int64:
		return minutes(float64(v))
	case int:
		return minutes(float64(v))
	case float64:
		return minutes(v)
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return minutes(n)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid interval %q: %w", v, err)
		}
		if d < 0 {
			return 0, fmt.Errorf("invalid interval %q: must not be negative", v)
		}
		return Interval(d), nil
	default:
		return 0, fmt.Errorf("invalid interval type: %T", val)
	}
}

func minutes(n float64) (Interval, error) {
	if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("invalid interval %v: must be a non-negative number of minutes", n)
	}
	return Interval(time.Duration(n * float64(time.Minute))), nil
}
