package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "face-attendance/internal/errors"
	"face-attendance/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "attendance.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseSQLite(db) })
	return db
}

func ptr(t time.Time) *time.Time { return &t }

func TestEventLogAppendIsIdempotent(t *testing.T) {
	log := NewEventLog(openTestDB(t))
	ctx := context.Background()
	ts := time.Date(2024, 1, 15, 9, 5, 0, 0, time.FixedZone("ICT", 7*3600))

	event := &models.MatchEvent{ID: "ev-1", EmployeeID: "emp1", CameraID: "cam1", Timestamp: ts, Confidence: 0.9}

	created, err := log.Append(ctx, event)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = log.Append(ctx, event)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := log.Get(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(ts))

	_, err = log.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventLogListByEmployee(t *testing.T) {
	log := NewEventLog(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{3 * time.Hour, 0, time.Hour, 48 * time.Hour} {
		_, err := log.Append(ctx, &models.MatchEvent{
			ID:         string(rune('a' + i)),
			EmployeeID: "emp1",
			CameraID:   "cam1",
			Timestamp:  base.Add(offset),
		})
		require.NoError(t, err)
	}
	_, err := log.Append(ctx, &models.MatchEvent{ID: "other", EmployeeID: "emp2", CameraID: "cam1", Timestamp: base})
	require.NoError(t, err)

	events, err := log.ListByEmployee(ctx, "emp1", base.Add(-time.Hour), base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{events[0].ID, events[1].ID, events[2].ID})
}

func TestLedgerAppendAndLatest(t *testing.T) {
	ledger := NewLedger(openTestDB(t))
	ctx := context.Background()
	key := models.ShiftKey{EmployeeID: "emp1", ShiftDate: "2024-01-15"}
	first := time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC)

	_, err := ledger.Latest(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	rec := &models.AttendanceRecord{
		EmployeeID:       "emp1",
		ShiftDate:        "2024-01-15",
		Revision:         1,
		FirstSeenAt:      ptr(first),
		LastSeenAt:       ptr(first),
		Status:           models.StatusPresent,
		SupportingEvents: models.EventRefs{{ID: "ev-1", CameraID: "cam1", Timestamp: first}},
		Reason:           models.ReasonFirstSeen,
	}
	require.NoError(t, ledger.Append(ctx, rec))

	next := rec.Next(models.ReasonEvent)
	next.LastSeenAt = ptr(first.Add(time.Minute))
	next.SupportingEvents = next.SupportingEvents.Insert(models.EventRef{ID: "ev-2", CameraID: "cam2", Timestamp: first.Add(time.Minute)})
	require.NoError(t, ledger.Append(ctx, next))

	latest, err := ledger.Latest(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Revision)
	assert.Equal(t, []string{"ev-1", "ev-2"}, latest.SupportingEventIDs())

	history, err := ledger.History(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.ReasonFirstSeen, history[0].Reason)
	assert.Len(t, history[0].SupportingEvents, 1)
}

func TestLedgerRevisionConflict(t *testing.T) {
	ledger := NewLedger(openTestDB(t))
	ctx := context.Background()

	rec := &models.AttendanceRecord{EmployeeID: "emp1", ShiftDate: "2024-01-15", Revision: 1, Status: models.StatusAbsent}
	require.NoError(t, ledger.Append(ctx, rec))

	dup := &models.AttendanceRecord{EmployeeID: "emp1", ShiftDate: "2024-01-15", Revision: 1, Status: models.StatusPresent}
	err := ledger.Append(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRevisionConflict))
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInvariant))

	skip := &models.AttendanceRecord{EmployeeID: "emp1", ShiftDate: "2024-01-15", Revision: 3, Status: models.StatusPresent}
	assert.ErrorIs(t, ledger.Append(ctx, skip), ErrRevisionConflict)

	assert.Error(t, ledger.Append(ctx, &models.AttendanceRecord{EmployeeID: "emp1", ShiftDate: "2024-01-16"}))
}

func TestLedgerListLatest(t *testing.T) {
	ledger := NewLedger(openTestDB(t))
	ctx := context.Background()

	appendRevs := func(emp, date string, statuses ...models.AttendanceStatus) {
		for i, s := range statuses {
			require.NoError(t, ledger.Append(ctx, &models.AttendanceRecord{
				EmployeeID: emp, ShiftDate: date, Revision: i + 1, Status: s,
				Closed: i == len(statuses)-1 && s == models.StatusAbsent,
			}))
		}
	}
	appendRevs("emp1", "2024-01-15", models.StatusPresent, models.StatusLate)
	appendRevs("emp1", "2024-01-16", models.StatusAbsent)
	appendRevs("emp2", "2024-01-15", models.StatusPresent)
	appendRevs("emp2", "2024-01-20", models.StatusPresent)

	tests := []struct {
		name  string
		query LedgerQuery
		want  []string
	}{
		{"all", LedgerQuery{}, []string{"emp1/2024-01-15:late", "emp2/2024-01-15:present", "emp1/2024-01-16:absent", "emp2/2024-01-20:present"}},
		{"employee", LedgerQuery{EmployeeID: "emp1"}, []string{"emp1/2024-01-15:late", "emp1/2024-01-16:absent"}},
		{"date range", LedgerQuery{FromDate: "2024-01-16", ToDate: "2024-01-19"}, []string{"emp1/2024-01-16:absent"}},
		{"open only", LedgerQuery{OpenOnly: true, ToDate: "2024-01-16"}, []string{"emp1/2024-01-15:late", "emp2/2024-01-15:present"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := ledger.ListLatest(ctx, tt.query)
			require.NoError(t, err)
			var got []string
			for _, r := range records {
				got = append(got, r.Key().String()+":"+string(r.Status))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlertStore(t *testing.T) {
	store := NewAlertStore(openTestDB(t))
	ctx := context.Background()

	alert := &models.AbsenceAlert{EmployeeID: "emp1", ShiftDate: "2024-01-15", Kind: models.AlertLate}
	raised, err := store.Raise(ctx, alert)
	require.NoError(t, err)
	assert.True(t, raised)

	raised, err = store.Raise(ctx, &models.AbsenceAlert{EmployeeID: "emp1", ShiftDate: "2024-01-15", Kind: models.AlertLate})
	require.NoError(t, err)
	assert.False(t, raised, "second raise for the same key must be ignored")

	raised, err = store.Raise(ctx, &models.AbsenceAlert{EmployeeID: "emp1", ShiftDate: "2024-01-15", Kind: models.AlertEarlyDeparture})
	require.NoError(t, err)
	assert.True(t, raised)

	pending, err := store.Undelivered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, store.RecordDeliveryFailure(ctx, pending[0].ID, errors.New("telegram down")))
	require.NoError(t, store.MarkDelivered(ctx, pending[1].ID))

	pending, err = store.Undelivered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].DeliveryAttempts)
	assert.Equal(t, "telegram down", pending[0].LastDeliveryError)

	acked, err := store.Acknowledge(ctx, alert.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, acked.Acknowledged)
	require.NotNil(t, acked.AcknowledgedAt)

	// Acknowledged alerts still block re-raising.
	raised, err = store.Raise(ctx, &models.AbsenceAlert{EmployeeID: "emp1", ShiftDate: "2024-01-15", Kind: models.AlertLate})
	require.NoError(t, err)
	assert.False(t, raised)

	open, err := store.List(ctx, AlertQuery{Unacknowledged: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.AlertEarlyDeparture, open[0].Kind)

	_, err = store.Acknowledge(ctx, 9999, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeadLetterStore(t *testing.T) {
	store := NewDeadLetterStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &models.DeadLetter{Reason: models.RejectDirectoryUnavailable, Stage: "ingest", Payload: `{"employee_id":"emp1"}`, Attempts: 8}))
	require.NoError(t, store.Put(ctx, &models.DeadLetter{Reason: models.RejectDirectoryUnavailable, Stage: "reconcile", Payload: `{}`}))

	letters, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "reconcile", letters[0].Stage)
	assert.False(t, letters[0].CreatedAt.IsZero())
}
