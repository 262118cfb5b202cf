package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var kst = time.FixedZone("KST", 9*60*60)

func TestDayStart(t *testing.T) {
	cal := InZone(kst)

	// 14:59 UTC is still the same KST day; 15:00 UTC rolls over to the next.
	beforeMidnight := time.Date(2025, 3, 10, 14, 59, 0, 0, time.UTC)
	afterMidnight := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

	require.Equal(t, time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC), cal.DayStart(beforeMidnight))
	require.Equal(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC), cal.DayStart(afterMidnight))
}

func TestDayStartIsUTC(t *testing.T) {
	cal := InZone(kst)

	got := cal.DayStart(time.Date(2025, 1, 1, 12, 0, 0, 0, kst))
	require.Equal(t, time.UTC, got.Location())
}

func TestSameDay(t *testing.T) {
	cal := InZone(kst)

	a := time.Date(2025, 3, 10, 14, 59, 0, 0, time.UTC)
	b := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	c := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

	require.True(t, cal.SameDay(a, b))
	require.False(t, cal.SameDay(a, c))
}

func TestNewRejectsUnknownZone(t *testing.T) {
	_, err := New("Not/AZone")
	require.Error(t, err)
}
