package calendar

import (
	"time"

	"promo-controlplane/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("calendar",
	fx.Provide(Provide),
)

// Calendar answers "which civil day is this instant" for a fixed zone.
// Storage stays in UTC; the zone only matters for day-boundary decisions.
type Calendar struct {
	loc *time.Location
}

func Provide(cfg *config.Config) (*Calendar, error) {
	return New(cfg.Platform.Timezone)
}

func New(name string) (*Calendar, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	return &Calendar{loc: loc}, nil
}

// InZone builds a Calendar from an explicit location. Tests use this with
// time.FixedZone so day boundaries don't depend on the host tz database.
func InZone(loc *time.Location) *Calendar {
	return &Calendar{loc: loc}
}

// DayStart returns the UTC instant of local midnight for the civil day
// containing now.
func (c *Calendar) DayStart(now time.Time) time.Time {
	t := now.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc).UTC()
}

// SameDay reports whether two instants fall on the same civil day.
func (c *Calendar) SameDay(a, b time.Time) bool {
	return c.DayStart(a).Equal(c.DayStart(b))
}
