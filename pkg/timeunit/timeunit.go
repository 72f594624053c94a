// Package timeunit converts between time.Duration and named larger units.
//
// The functions are pure and exist mostly for human-readable log messages
// ("next run in about 2.50 minutes") and for configuring intervals in the
// units operators think in:
//
//	maint := timeunit.FromMinutes(1)
//	backup := timeunit.FromHours(3)
//	fmt.Printf("%.2f hours\n", timeunit.ToHours(backup))
package timeunit

import "time"

// Units per base duration.
const (
	PerMillisecond = time.Millisecond
	PerSecond      = time.Second
	PerMinute      = 60 * PerSecond
	PerHour        = 60 * PerMinute
	PerDay         = 24 * PerHour
)

// FromMilliseconds converts a millisecond count into a duration.
func FromMilliseconds(ms int64) time.Duration { return time.Duration(ms) * PerMillisecond }

// ToMilliseconds returns d as whole milliseconds, truncating.
func ToMilliseconds(d time.Duration) int64 { return int64(d / PerMillisecond) }

func FromSeconds(n float64) time.Duration { return from(n, PerSecond) }
func FromMinutes(n float64) time.Duration { return from(n, PerMinute) }
func FromHours(n float64) time.Duration   { return from(n, PerHour) }
func FromDays(n float64) time.Duration    { return from(n, PerDay) }

func ToSeconds(d time.Duration) float64 { return to(d, PerSecond) }
func ToMinutes(d time.Duration) float64 { return to(d, PerMinute) }
func ToHours(d time.Duration) float64   { return to(d, PerHour) }
func ToDays(d time.Duration) float64    { return to(d, PerDay) }

func from(n float64, unit time.Duration) time.Duration {
	return time.Duration(n * float64(unit))
}

func to(d, unit time.Duration) float64 {
	return float64(d) / float64(unit)
}
