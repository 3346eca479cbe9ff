package token

import "time"

// Clock supplies the current time. Engines read it only when the caller does not pass an
// explicit timestamp.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// RealClock returns a Clock backed by time.Now.
func RealClock() Clock { return ClockFunc(defaultNow) }

// FixedClock returns a Clock frozen at t (useful for tests).
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

func defaultNow() time.Time { return time.Now().UTC() }

// unixSeconds converts t to the unsigned wire timestamp. Instants before the epoch clamp to 0.
func unixSeconds(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}

// ttlSeconds truncates ttl to whole seconds.
func ttlSeconds(ttl time.Duration) uint64 {
	return uint64(ttl / time.Second)
}
