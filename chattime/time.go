// Package chattime provides a millisecond-precision time wrapper used for
// message ordering and wire timestamps.
//
// Wire envelopes carry Unix-millisecond timestamps, so every Time produced
// here is truncated to millisecond precision up front; a value survives an
// encode/decode round trip unchanged.
package chattime

import "time"

// Time is an absolute instant with millisecond precision.
// The zero value means "not set".
type Time struct {
	t time.Time
}

// Now returns the current instant truncated to millisecond precision.
func Now() Time {
	return Time{t: time.Now().UTC().Truncate(time.Millisecond)}
}

// FromUnixMilli converts a wire timestamp to a Time. It reports false for
// timestamps that cannot have been produced by a well-behaved peer
// (non-positive values), mirroring the fail-closed decode path.
func FromUnixMilli(ms int64) (Time, bool) {
	if ms <= 0 {
		return Time{}, false
	}
	return Time{t: time.UnixMilli(ms).UTC()}, true
}

// FromSeconds converts a fractional Unix timestamp, as produced by the
// routing oracle, to a Time.
func FromSeconds(seconds float64) Time {
	ms := int64(seconds * 1000.0)
	return Time{t: time.UnixMilli(ms).UTC()}
}

// UnixMilli returns the instant as a wire timestamp.
func (t Time) UnixMilli() int64 {
	return t.t.UnixMilli()
}

// Unix returns the instant as fractional seconds for the routing oracle.
func (t Time) Unix() float64 {
	return float64(t.t.UnixMilli()) / 1000.0
}

// IsZero reports whether the instant is unset.
func (t Time) IsZero() bool {
	return t.t.IsZero()
}

// Before reports whether t is strictly earlier than u.
func (t Time) Before(u Time) bool {
	return t.t.Before(u.t)
}

// Equal reports whether t and u denote the same instant.
func (t Time) Equal(u Time) bool {
	return t.t.Equal(u.t)
}

// Compare returns -1, 0 or +1 depending on whether t is earlier than,
// equal to, or later than u.
func (t Time) Compare(u Time) int {
	return t.t.Compare(u.t)
}

// Add returns the instant shifted by d, truncated to millisecond precision.
func (t Time) Add(d time.Duration) Time {
	return Time{t: t.t.Add(d).Truncate(time.Millisecond)}
}

// Std returns the underlying time.Time.
func (t Time) Std() time.Time {
	return t.t
}

// Format renders the instant in the given location. Either the date part,
// the time part, or both may be requested; sep separates the two when both
// are present (a single space if empty).
func (t Time) Format(showDate, showTime bool, sep string, loc *time.Location) string {
	local := t.t.In(loc)
	switch {
	case showDate && showTime:
		if sep == "" {
			sep = " "
		}
		return local.Format("2006-01-02") + sep + local.Format("15:04:05")
	case showDate:
		return local.Format("2006-01-02")
	case showTime:
		return local.Format("15:04:05")
	default:
		return ""
	}
}

// Provider abstracts the clock for deterministic tests.
type Provider interface {
	Now() Time
}

// SystemProvider is the default Provider backed by the system clock.
type SystemProvider struct{}

// Now implements Provider.
func (SystemProvider) Now() Time { return Now() }
