package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
	"face-attendance/internal/observability"
	"face-attendance/internal/repository"
)

type fakeSink struct {
	name     string
	mu       sync.Mutex
	failing  bool
	failFor  string
	received []*models.AbsenceAlert
	names    []string
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Deliver(_ context.Context, alert *models.AbsenceAlert, emp *models.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing || alert.EmployeeID == s.failFor {
		return errors.NewStd("sink unavailable")
	}
	s.received = append(s.received, alert)
	if emp != nil {
		s.names = append(s.names, emp.Name)
	} else {
		s.names = append(s.names, "")
	}
	return nil
}

func (s *fakeSink) setFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func raiseAlert(t *testing.T, f *fixture, employee string, kind models.AlertKind) {
	t.Helper()
	_, err := f.alerts.Raise(context.Background(), &models.AbsenceAlert{
		EmployeeID: employee, ShiftDate: "2024-01-15", Kind: kind, RaisedAt: at(17, 10),
	})
	require.NoError(t, err)
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raiseAlert(t, f, "E", models.AlertAbsent)
	raiseAlert(t, f, "X", models.AlertLate)

	telegram, mqtt := &fakeSink{name: "telegram"}, &fakeSink{name: "mqtt"}
	d := NewDispatcher(f.alerts, f.directory, []AlertSink{telegram, mqtt}, time.Hour, 10, nil, nil)

	n, err := d.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, telegram.count())
	assert.Equal(t, 2, mqtt.count())
	assert.Equal(t, []string{"Employee E", ""}, telegram.names, "unknown employees are delivered without details")

	pending, err := f.alerts.Undelivered(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err = d.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcherRetriesFailedDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raiseAlert(t, f, "E", models.AlertAbsent)

	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	good, flaky := &fakeSink{name: "good"}, &fakeSink{name: "flaky", failing: true}
	d := NewDispatcher(f.alerts, f.directory, []AlertSink{good, flaky}, time.Hour, 10, metrics, nil)

	n, err := d.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	alerts, err := f.alerts.List(ctx, repository.AlertQuery{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.False(t, alerts[0].Delivered)
	assert.Equal(t, 1, alerts[0].DeliveryAttempts)
	assert.Contains(t, alerts[0].LastDeliveryError, "sink unavailable")

	flaky.setFailing(false)
	n, err = d.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// At-least-once: the healthy sink saw the alert on both passes.
	assert.Equal(t, 2, good.count())
	assert.Equal(t, 1, flaky.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AlertDeliveryErrs.WithLabelValues("flaky")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.AlertsDelivered.WithLabelValues("good")))
}

func TestDispatcherFailingAlertDoesNotBlockNewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raiseAlert(t, f, "E", models.AlertAbsent)
	raiseAlert(t, f, "N", models.AlertAbsent)

	sink := &fakeSink{name: "telegram", failFor: "E"}
	d := NewDispatcher(f.alerts, f.directory, []AlertSink{sink}, time.Hour, 1, nil, nil)

	for range 3 {
		_, err := d.Flush(ctx)
		require.NoError(t, err)
	}

	require.Equal(t, 1, sink.count())
	assert.Equal(t, "N", sink.received[0].EmployeeID)

	pending, err := f.alerts.Undelivered(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "E", pending[0].EmployeeID)
	assert.Equal(t, 2, pending[0].DeliveryAttempts)
}

func TestDispatcherWithoutSinksKeepsOutbox(t *testing.T) {
	f := newFixture(t)
	raiseAlert(t, f, "E", models.AlertAbsent)

	d := NewDispatcher(f.alerts, f.directory, nil, time.Hour, 10, nil, nil)
	n, err := d.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := f.alerts.Undelivered(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDispatcherRunWakes(t *testing.T) {
	f := newFixture(t)
	sink := &fakeSink{name: "test"}
	d := NewDispatcher(f.alerts, f.directory, []AlertSink{sink}, time.Hour, 10, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	raiseAlert(t, f, "E", models.AlertLate)
	require.Eventually(t, func() bool {
		d.Wake()
		return sink.count() == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
