package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ttlUnitMultipliers = map[string]time.Duration{
	"s":       time.Second,
	"sec":     time.Second,
	"secs":    time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"m":       time.Minute,
	"min":     time.Minute,
	"mins":    time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"hr":      time.Hour,
	"hrs":     time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"d":       24 * time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
}

// parseTTL accepts a Go duration, a bare number of seconds, or <number><unit> with the
// units above. Zero and keywords such as "never" mean no age limit and yield 0.
func parseTTL(raw string) (time.Duration, error) {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	switch s {
	case "", "0", "inf", "infinite", "never", "none", "noexpiry":
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return checkTTL(raw, d)
	}
	if secs, err := strconv.ParseUint(s, 10, 32); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	idx := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if idx <= 0 {
		return 0, fmt.Errorf("unable to parse ttl %q", raw)
	}
	unit, ok := ttlUnitMultipliers[s[idx:]]
	if !ok {
		return 0, fmt.Errorf("unsupported ttl unit %q", s[idx:])
	}
	n, err := strconv.ParseUint(s[:idx], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl magnitude %q: %w", s[:idx], err)
	}
	return time.Duration(n) * unit, nil
}

func checkTTL(raw string, d time.Duration) (time.Duration, error) {
	if d < 0 {
		return 0, fmt.Errorf("ttl must not be negative, got %s", raw)
	}
	return d, nil
}
