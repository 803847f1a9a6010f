package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
)

// seedAnalytics leaves E late on the 15th, E present on the 16th and N absent on the 15th
func seedAnalytics(t *testing.T) (*fixture, *Analytics) {
	t.Helper()
	f := newFixture(t)
	ctx := context.Background()

	for _, ev := range []*models.MatchEvent{
		event("ev-1", "cam1", at(9, 25)),
		event("ev-2", "cam1", at(24+9, 0)),
	} {
		_, err := f.reconciler.Apply(ctx, ev)
		require.NoError(t, err)
	}
	_, _, err := f.reconciler.ForceAbsent(ctx, &models.ShiftWindow{
		EmployeeID: "N", ShiftDate: "2024-01-15", Start: at(22, 0), End: at(24+6, 0),
	})
	require.NoError(t, err)

	return f, NewAnalytics(f.ledger, f.directory, f.policy)
}

func TestAnalyticsWindow(t *testing.T) {
	_, a := seedAnalytics(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		query     AnalyticsQuery
		wantID    string
		total     int
		present   int
		late      int
		absent    int
		wantDelta time.Duration
	}{
		{
			name:      "All employees over both days",
			query:     AnalyticsQuery{From: shiftDay, To: shiftDay.AddDate(0, 0, 1)},
			wantID:    models.AllEmployees,
			total:     3,
			present:   1,
			late:      1,
			absent:    1,
			wantDelta: 12*time.Minute + 30*time.Second,
		},
		{
			name:      "Explicit all",
			query:     AnalyticsQuery{EmployeeID: models.AllEmployees, From: shiftDay, To: shiftDay},
			wantID:    models.AllEmployees,
			total:     2,
			late:      1,
			absent:    1,
			wantDelta: 25 * time.Minute,
		},
		{
			name:      "Single employee",
			query:     AnalyticsQuery{EmployeeID: "E", From: shiftDay, To: shiftDay.AddDate(0, 0, 1)},
			wantID:    "E",
			total:     2,
			present:   1,
			late:      1,
			wantDelta: 12*time.Minute + 30*time.Second,
		},
		{
			name:   "Empty range",
			query:  AnalyticsQuery{EmployeeID: "E", From: shiftDay.AddDate(0, 0, 5), To: shiftDay.AddDate(0, 0, 6)},
			wantID: "E",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := a.Window(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, w.EmployeeID)
			assert.Equal(t, tt.total, w.TotalRecords)
			assert.Equal(t, tt.present, w.PresentCount)
			assert.Equal(t, tt.late, w.LateCount)
			assert.Equal(t, tt.absent, w.AbsentCount)
			assert.Equal(t, tt.wantDelta, w.AvgArrivalDelta)
			assert.Equal(t, w.TotalRecords,
				w.PresentCount+w.LateCount+w.AbsentCount+w.PartialCount+w.UnverifiedCount)
		})
	}
}

func TestAnalyticsRejectsInvalidRange(t *testing.T) {
	_, a := seedAnalytics(t)
	ctx := context.Background()

	_, err := a.Window(ctx, AnalyticsQuery{From: shiftDay.AddDate(0, 0, 1), To: shiftDay})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = a.Window(ctx, AnalyticsQuery{To: shiftDay})
	assert.Error(t, err)

	_, err = a.Trend(ctx, AnalyticsQuery{From: shiftDay, To: shiftDay}, 0)
	assert.Error(t, err)
}

func TestAnalyticsTrend(t *testing.T) {
	_, a := seedAnalytics(t)

	windows, err := a.Trend(context.Background(), AnalyticsQuery{From: shiftDay, To: shiftDay.AddDate(0, 0, 2)}, 1)
	require.NoError(t, err)
	require.Len(t, windows, 3)

	assert.Equal(t, "2024-01-15", windows[0].StartDate)
	assert.Equal(t, 2, windows[0].TotalRecords)
	assert.Equal(t, "2024-01-16", windows[1].StartDate)
	assert.Equal(t, 1, windows[1].PresentCount)
	assert.Zero(t, windows[2].TotalRecords)

	weekly, err := a.Trend(context.Background(), AnalyticsQuery{From: shiftDay, To: shiftDay.AddDate(0, 0, 9)}, 7)
	require.NoError(t, err)
	require.Len(t, weekly, 2)
	assert.Equal(t, "2024-01-21", weekly[0].EndDate)
	assert.Equal(t, 3, weekly[0].TotalRecords)
	assert.Equal(t, "2024-01-24", weekly[1].EndDate, "last bucket is clipped to the range")
}

func TestDailyRoster(t *testing.T) {
	_, a := seedAnalytics(t)

	roster, err := a.DailyRoster(context.Background(), shiftDay)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", roster.Date)

	require.Len(t, roster.Present, 1)
	assert.Equal(t, "E", roster.Present[0].EmployeeID)
	assert.Equal(t, models.StatusLate, roster.Present[0].Status)

	// F has no schedule and S is suspended, so only N is missing
	require.Len(t, roster.Absent, 1)
	assert.Equal(t, "N", roster.Absent[0].EmployeeID)

	weekend, err := a.DailyRoster(context.Background(), shiftDay.AddDate(0, 0, -2))
	require.NoError(t, err)
	assert.Empty(t, weekend.Present)
	assert.Empty(t, weekend.Absent)
}
