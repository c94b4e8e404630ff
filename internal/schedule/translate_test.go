package schedule

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotly/falcon/internal/domain"
)

func TestRefreshToCron_Buckets(t *testing.T) {
	t.Parallel()

	// 14:37:23 on a Wednesday.
	now := time.Date(2024, 5, 15, 14, 37, 23, 0, time.UTC)

	tests := []struct {
		name     string
		interval int64
		want     string
	}{
		{name: "one minute", interval: 60, want: "* * * * *"},
		{name: "below one minute clamps to minutely", interval: 5, want: "* * * * *"},
		{name: "five minutes", interval: 300, want: "23 2,7,12,17,22,27,32,37,42,47,52,57 * * * *"},
		{name: "between buckets rounds up", interval: 301, want: "37 * * * *"},
		{name: "one hour", interval: 3600, want: "37 * * * *"},
		{name: "one day", interval: 86400, want: "37 14 * * *"},
		{name: "one week", interval: 604800, want: "37 14 * * 3"},
		{name: "beyond a week stays weekly", interval: 2629746, want: "37 14 * * 3"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := RefreshToCron(tt.interval, now)
			assert.Equal(t, tt.want, got)

			_, err := Parser.Parse(got)
			require.NoError(t, err, "emitted expression must parse")
		})
	}
}

func TestRefreshToCron_FiveMinuteMarksAnchor(t *testing.T) {
	t.Parallel()

	// Minute 4: offset within the five-minute block is 4. The mark list
	// stops below minute 59, so this anchor ends at 54.
	now := time.Date(2024, 5, 15, 9, 4, 59, 0, time.UTC)
	got := RefreshToCron(120, now)
	assert.Equal(t, "59 4,9,14,19,24,29,34,39,44,49,54 * * * *", got)
}

func TestCronToRefresh_RoundTripsEmittedShapes(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 15, 14, 37, 23, 0, time.UTC)
	for _, interval := range []int64{OneMinute, FiveMinutes, OneHour, OneDay, OneWeek} {
		interval := interval
		t.Run(fmt.Sprintf("%d", interval), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, interval, CronToRefresh(RefreshToCron(interval, now)))
		})
	}
}

func TestCronToRefresh_UnrecognizedDefaultsToWeekly(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(OneWeek), CronToRefresh("whatever"))
	assert.Equal(t, int64(OneWeek), CronToRefresh("1 2 3"))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		def     domain.QueryDefinition
		want    string
		wantErr bool
	}{
		{
			name: "cron wins over interval",
			def:  domain.QueryDefinition{CronInterval: "5 * * * *", RefreshInterval: 86400},
			want: "5 * * * *",
		},
		{
			name: "six field cron accepted",
			def:  domain.QueryDefinition{CronInterval: "30 2,7 * * * *"},
			want: "30 2,7 * * * *",
		},
		{
			name:    "invalid cron rejected even with valid interval",
			def:     domain.QueryDefinition{CronInterval: "61 * * * *", RefreshInterval: 3600},
			wantErr: true,
		},
		{
			name:    "interval below minimum",
			def:     domain.QueryDefinition{RefreshInterval: 10},
			wantErr: true,
		},
		{
			name:    "neither cron nor interval",
			def:     domain.QueryDefinition{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(&tt.def, 60)
			if tt.wantErr {
				require.Error(t, err)
				var schedErr *domain.InvalidScheduleError
				assert.ErrorAs(t, err, &schedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_IntervalProducesParseableCron(t *testing.T) {
	t.Parallel()

	def := domain.QueryDefinition{RefreshInterval: 300}
	got, err := Resolve(&def, 60)
	require.NoError(t, err)
	_, err = Parser.Parse(got)
	require.NoError(t, err)
}

func TestNextAfter(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 15, 14, 37, 23, 0, time.UTC)
	next, err := NextAfter("0 15 * * *", at)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 15, 15, 0, 0, 0, time.UTC), next)

	_, err = NextAfter("junk", at)
	require.Error(t, err)
}
