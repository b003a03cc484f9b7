package export

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarvest/platform/internal/model"
)

func TestNextRun(t *testing.T) {
	t.Parallel()
	// Wednesday.
	base := time.Date(2026, 3, 11, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		exp  model.ScheduledExport
		want time.Time
	}{
		{
			name: "daily_later_today",
			exp:  model.ScheduledExport{Frequency: model.FrequencyDaily, TimeOfDay: "18:00", Timezone: "UTC"},
			want: time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC),
		},
		{
			name: "daily_tomorrow",
			exp:  model.ScheduledExport{Frequency: model.FrequencyDaily, TimeOfDay: "06:00", Timezone: "UTC"},
			want: time.Date(2026, 3, 12, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "weekly_monday",
			exp:  model.ScheduledExport{Frequency: model.FrequencyWeekly, TimeOfDay: "09:15", DayOfWeek: 1, Timezone: "UTC"},
			want: time.Date(2026, 3, 16, 9, 15, 0, 0, time.UTC),
		},
		{
			name: "monthly_first",
			exp:  model.ScheduledExport{Frequency: model.FrequencyMonthly, TimeOfDay: "00:00", DayOfMonth: 1, Timezone: "UTC"},
			want: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "cron_every_15m",
			exp:  model.ScheduledExport{Frequency: model.FrequencyCron, CronExpression: "*/15 * * * *", Timezone: "UTC"},
			want: time.Date(2026, 3, 11, 10, 45, 0, 0, time.UTC),
		},
		{
			name: "timezone_applied",
			exp:  model.ScheduledExport{Frequency: model.FrequencyDaily, TimeOfDay: "06:00", Timezone: "Africa/Lagos"},
			want: time.Date(2026, 3, 12, 5, 0, 0, 0, time.UTC),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := NextRun(&test.exp, base)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestNextRunInvalid(t *testing.T) {
	t.Parallel()
	tests := []model.ScheduledExport{
		{Frequency: model.FrequencyCron, CronExpression: "not a cron"},
		{Frequency: model.FrequencyCron, CronExpression: "* * * * * *"},
		{Frequency: model.FrequencyDaily, TimeOfDay: "25:00"},
		{Frequency: "hourly", TimeOfDay: "06:00"},
	}
	for _, e := range tests {
		_, err := NextRun(&e, time.Now())
		assert.True(t, errors.Is(err, ErrInvalidSchedule), "%+v: got %v", e, err)
	}
}

func TestCronSpec(t *testing.T) {
	t.Parallel()
	spec, err := CronSpec(&model.ScheduledExport{Frequency: model.FrequencyWeekly, TimeOfDay: "07:05", DayOfWeek: 5})
	require.NoError(t, err)
	assert.Equal(t, "5 7 * * 5", spec)
}
