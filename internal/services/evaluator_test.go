package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"face-attendance/internal/models"
	"face-attendance/internal/repository"
)

func alertsFor(t *testing.T, f *fixture, employee string) []*models.AbsenceAlert {
	t.Helper()
	alerts, err := f.alerts.List(context.Background(), repository.AlertQuery{EmployeeID: employee})
	require.NoError(t, err)
	return alerts
}

func TestSweepForcesAbsence(t *testing.T) {
	f := newFixture(t, &models.Employee{ID: "E", Status: models.EnrollmentActive, Schedule: weekdays("09:00", "17:00")})
	ctx := context.Background()

	// Before end + grace nothing happens.
	res, err := f.evaluator.Sweep(ctx, at(17, 5))
	require.NoError(t, err)
	assert.Zero(t, res.ForcedAbsent)
	_, err = f.ledger.Latest(ctx, keyE)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	res, err = f.evaluator.Sweep(ctx, at(17, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ForcedAbsent)
	assert.Equal(t, 1, res.AlertsRaised)

	rec, err := f.ledger.Latest(ctx, keyE)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAbsent, rec.Status)
	assert.True(t, rec.Closed)

	alerts := alertsFor(t, f, "E")
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertAbsent, alerts[0].Kind)
	assert.Equal(t, "2024-01-15", alerts[0].ShiftDate)
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reconciler.Apply(ctx, event("ev-1", "cam1", at(9, 25)))
	require.NoError(t, err)

	asOf := at(24+1, 0)
	first, err := f.evaluator.Sweep(ctx, asOf)
	require.NoError(t, err)
	assert.Positive(t, first.AlertsRaised)

	recordsBefore, err := f.ledger.ListLatest(ctx, repository.LedgerQuery{})
	require.NoError(t, err)
	alertsBefore, err := f.alerts.List(ctx, repository.AlertQuery{})
	require.NoError(t, err)

	second, err := f.evaluator.Sweep(ctx, asOf)
	require.NoError(t, err)
	assert.Zero(t, second.AlertsRaised)
	assert.Zero(t, second.ForcedAbsent)
	assert.Zero(t, second.Closed)

	recordsAfter, err := f.ledger.ListLatest(ctx, repository.LedgerQuery{})
	require.NoError(t, err)
	alertsAfter, err := f.alerts.List(ctx, repository.AlertQuery{})
	require.NoError(t, err)

	assert.Len(t, alertsAfter, len(alertsBefore))
	require.Len(t, recordsAfter, len(recordsBefore))
	for i := range recordsBefore {
		assert.Equal(t, recordsBefore[i].Revision, recordsAfter[i].Revision)
	}
}

func TestSweepRaisesOneLateAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.reconciler.Apply(ctx, event("ev-1", "cam1", at(9, 25)))
	require.NoError(t, err)
	require.Equal(t, models.StatusLate, rec.Status)

	for _, asOf := range []time.Time{at(10, 0), at(11, 0), at(12, 0)} {
		_, err := f.evaluator.Sweep(ctx, asOf)
		require.NoError(t, err)
	}

	alerts := alertsFor(t, f, "E")
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertLate, alerts[0].Kind)

	// Acknowledging does not let the same alert be raised again.
	_, err = f.alerts.Acknowledge(ctx, alerts[0].ID, at(12, 30))
	require.NoError(t, err)
	_, err = f.evaluator.Sweep(ctx, at(13, 0))
	require.NoError(t, err)
	assert.Len(t, alertsFor(t, f, "E"), 1)
}

func TestSweepEarlyDepartureAndClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, ev := range []*models.MatchEvent{event("ev-1", "cam1", at(8, 55)), event("ev-2", "cam1", at(12, 0))} {
		_, err := f.reconciler.Apply(ctx, ev)
		require.NoError(t, err)
	}

	// Mid-shift the employee may still come back.
	_, err := f.evaluator.Sweep(ctx, at(13, 0))
	require.NoError(t, err)
	assert.Empty(t, alertsFor(t, f, "E"))

	res, err := f.evaluator.Sweep(ctx, at(17, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, res.AlertsRaised)
	assert.Zero(t, res.Closed)

	res, err = f.evaluator.Sweep(ctx, at(19, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Closed)

	rec, err := f.ledger.Latest(ctx, keyE)
	require.NoError(t, err)
	assert.True(t, rec.Closed)
	assert.Equal(t, models.StatusPartial, rec.Status)
	assert.Equal(t, models.ReasonClosed, rec.Reason)

	alerts := alertsFor(t, f, "E")
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertEarlyDeparture, alerts[0].Kind)
}

func TestSweepClosesUnverifiedAfterMidnight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reconciler.Apply(ctx, event("ev-1", "cam1", at(3, 0)))
	require.NoError(t, err)

	_, err = f.evaluator.Sweep(ctx, at(23, 0))
	require.NoError(t, err)
	rec, err := f.ledger.Latest(ctx, keyE)
	require.NoError(t, err)
	assert.False(t, rec.Closed)

	_, err = f.evaluator.Sweep(ctx, at(24+2, 0))
	require.NoError(t, err)
	rec, err = f.ledger.Latest(ctx, keyE)
	require.NoError(t, err)
	assert.True(t, rec.Closed)
	assert.Equal(t, models.StatusUnverified, rec.Status)
}

func TestSweepSkipsSuspendedAndUnscheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.evaluator.Sweep(ctx, at(24+12, 0))
	require.NoError(t, err)

	for _, emp := range []string{"S", "F"} {
		records, err := f.ledger.ListLatest(ctx, repository.LedgerQuery{EmployeeID: emp})
		require.NoError(t, err)
		assert.Empty(t, records, emp)
		assert.Empty(t, alertsFor(t, f, emp), emp)
	}
}

func TestSweepCancelledMidPass(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.evaluator.Sweep(ctx, at(24+12, 0))
	assert.Error(t, err)

	// A later full pass completes the work.
	res, err := f.evaluator.Sweep(context.Background(), at(24+12, 0))
	require.NoError(t, err)
	assert.Positive(t, res.ForcedAbsent)
}

func TestSweepDoesNotRaceReconciler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 10 {
			_, err := f.reconciler.Apply(ctx, event("ev-"+string(rune('a'+i)), "cam1", at(9, i)))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for range 5 {
			_, err := f.evaluator.Sweep(ctx, at(10, 0))
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	history, err := f.ledger.History(ctx, keyE)
	require.NoError(t, err)
	for i, rec := range history {
		assert.Equal(t, i+1, rec.Revision)
	}
	assert.Len(t, history[len(history)-1].SupportingEvents, 10)
}

func TestFinalizeDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reconciler.Apply(ctx, event("ev-1", "cam1", at(9, 0)))
	require.NoError(t, err)
	_, err = f.reconciler.Apply(ctx, event("ev-2", "cam1", at(17, 0)))
	require.NoError(t, err)

	res, err := f.evaluator.Finalize(ctx, shiftDay, at(24+9, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Closed)
	// N had a night shift on the 15th and never showed up.
	assert.Equal(t, 1, res.ForcedAbsent)

	rec, err := f.ledger.Latest(ctx, keyE)
	require.NoError(t, err)
	assert.True(t, rec.Closed)
	assert.Equal(t, models.StatusPresent, rec.Status)
}

func TestEvaluatorRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.evaluator.interval = 10 * time.Millisecond
	f.evaluator.now = func() time.Time { return at(12, 0) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.evaluator.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestEvaluatorRunWakesDispatcherAfterRaise(t *testing.T) {
	f := newFixture(t, &models.Employee{ID: "E", Status: models.EnrollmentActive, Schedule: weekdays("09:00", "17:00")})
	f.evaluator.now = func() time.Time { return at(17, 10) }

	sink := &fakeSink{name: "test"}
	d := NewDispatcher(f.alerts, f.directory, []AlertSink{sink}, time.Hour, 10, nil, nil)
	f.evaluator.OnAlertsRaised(d.Wake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 2)
	go func() { done <- d.Run(ctx) }()
	go func() { done <- f.evaluator.Run(ctx) }()

	// The dispatcher ticks hourly, so only the wake can deliver the alert.
	require.Eventually(t, func() bool { return sink.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, <-done)
}
