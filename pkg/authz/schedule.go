package authz

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts standard five-field cron expressions
// (minute, hour, day-of-month, month, day-of-week) plus the usual
// descriptors (@hourly etc.).
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule is a pure recurring-time predicate evaluated alongside an
// assignment's valid_from/valid_until window. An absent schedule
// always matches; that case is handled by the caller, not here.
type Schedule struct {
	expr string
	spec cron.Schedule
}

// ParseSchedule validates and compiles a cron expression.
func ParseSchedule(expr string) (Schedule, error) {
	spec, err := scheduleParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("schedule %q: %v: %w", expr, err, ErrInvalidInput)
	}
	return Schedule{expr: expr, spec: spec}, nil
}

// Matches reports whether the schedule is active at the given instant.
// A schedule is active when it has an occurrence in the minute leading
// up to now, so recurring windows are written with a wildcard minute
// field: "* 9-17 * * 1-5" is active throughout weekday business hours.
func (s Schedule) Matches(now time.Time) bool {
	next := s.spec.Next(now.Add(-time.Minute))
	return !next.After(now)
}

// String returns the original expression.
func (s Schedule) String() string { return s.expr }

// SchedulePreset is a named, ready-to-use schedule expression offered
// to administrators.
type SchedulePreset struct {
	Name        string `json:"name"`
	Cron        string `json:"cron"`
	Description string `json:"description"`
}

// SchedulePresets returns the built-in schedule catalog.
func SchedulePresets() []SchedulePreset {
	return []SchedulePreset{
		{
			Name:        "Business Hours (Mon-Fri 9am-6pm)",
			Cron:        "* 9-17 * * 1-5",
			Description: "Active during weekday business hours",
		},
		{
			Name:        "Weekends Only",
			Cron:        "* * * * 0,6",
			Description: "Active on Saturday and Sunday",
		},
		{
			Name:        "After Hours (6pm-8am)",
			Cron:        "* 18-23,0-7 * * *",
			Description: "Active outside business hours",
		},
		{
			Name:        "Monthly First Week",
			Cron:        "* * 1-7 * *",
			Description: "Active during the first week of each month",
		},
	}
}
