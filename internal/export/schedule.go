package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/solarvest/platform/internal/model"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronSpec translates an export's cadence into a 5-field cron expression.
func CronSpec(e *model.ScheduledExport) (string, error) {
	if e.Frequency == model.FrequencyCron {
		return strings.TrimSpace(e.CronExpression), nil
	}

	hour, minute, err := parseTimeOfDay(e.TimeOfDay)
	if err != nil {
		return "", err
	}
	switch e.Frequency {
	case model.FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case model.FrequencyWeekly:
		return fmt.Sprintf("%d %d * * %d", minute, hour, e.DayOfWeek), nil
	case model.FrequencyMonthly:
		return fmt.Sprintf("%d %d %d * *", minute, hour, e.DayOfMonth), nil
	default:
		return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidSchedule, e.Frequency)
	}
}

func parseTimeOfDay(s string) (int, int, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: time_of_day %q", ErrInvalidSchedule, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: time_of_day %q", ErrInvalidSchedule, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: time_of_day %q", ErrInvalidSchedule, s)
	}
	return hour, minute, nil
}

// ParseSchedule returns the cron schedule of an export.
func ParseSchedule(e *model.ScheduledExport) (cron.Schedule, error) {
	spec, err := CronSpec(e)
	if err != nil {
		return nil, err
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return sched, nil
}

// NextRun returns the first run strictly after the given time, evaluated in
// the export's timezone and returned in UTC.
func NextRun(e *model.ScheduledExport, after time.Time) (time.Time, error) {
	sched, err := ParseSchedule(e)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(after.In(e.Location()))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: schedule never fires", ErrInvalidSchedule)
	}
	return next.UTC(), nil
}
