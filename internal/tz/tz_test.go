package tz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToAbsoluteWinterOffset(t *testing.T) {
	// 11:00 wall clock in New York during standard time is 16:00 UTC.
	floating := time.Date(2026, 1, 2, 11, 0, 0, 0, time.UTC)
	abs := ToAbsolute(floating, "America/New_York")
	assert.Equal(t, time.Date(2026, 1, 2, 16, 0, 0, 0, time.UTC), abs)
}

func TestToAbsoluteSummerOffset(t *testing.T) {
	// Same wall clock during DST is 15:00 UTC.
	floating := time.Date(2026, 7, 2, 11, 0, 0, 0, time.UTC)
	abs := ToAbsolute(floating, "America/New_York")
	assert.Equal(t, time.Date(2026, 7, 2, 15, 0, 0, 0, time.UTC), abs)
}

func TestToFloatingRoundTrip(t *testing.T) {
	abs := time.Date(2026, 1, 2, 16, 0, 0, 0, time.UTC)
	floating := ToFloating(abs, "America/New_York")
	assert.Equal(t, time.Date(2026, 1, 2, 11, 0, 0, 0, time.UTC), floating)
	assert.Equal(t, abs, ToAbsolute(floating, "America/New_York"))
}

func TestUnresolvableZoneDegradesToUTC(t *testing.T) {
	v := time.Date(2026, 1, 2, 11, 0, 0, 0, time.UTC)
	assert.Equal(t, v, ToAbsolute(v, "Not/AZone"))
	assert.Equal(t, v, ToFloating(v, "Not/AZone"))
	assert.Equal(t, v, ToAbsolute(v, ""))
}
