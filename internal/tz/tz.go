// Package tz converts between floating wall-clock times and absolute
// instants. A floating time carries local clock fields in a UTC-tagged
// time.Time so that recurrence rules can do their arithmetic in the zone's
// wall-clock frame.
package tz

import (
	"time"

	appLog "github.com/jasonhett/digitial-calendar/internal/log"
)

// Location resolves an IANA zone name, degrading to UTC when the name is
// empty or unknown. A bad zone must never fail a whole sync.
func Location(zone string) *time.Location {
	if zone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		appLog.Error("unresolvable timezone, falling back to UTC", err, "zone", zone)
		return time.UTC
	}
	return loc
}

// ToAbsolute interprets the wall-clock fields of a floating time as local
// time in the named zone and returns the corresponding instant in UTC. The
// zone's offset is computed at that specific wall-clock moment, so DST
// transitions resolve correctly.
func ToAbsolute(floating time.Time, zone string) time.Time {
	loc := Location(zone)
	f := floating.UTC()
	return time.Date(f.Year(), f.Month(), f.Day(), f.Hour(), f.Minute(), f.Second(), f.Nanosecond(), loc).UTC()
}

// ToFloating converts an absolute instant into the floating frame of the
// named zone: the returned value carries the zone-local clock fields but is
// tagged UTC, ready for rule arithmetic.
func ToFloating(abs time.Time, zone string) time.Time {
	l := abs.In(Location(zone))
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}
