package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"face-attendance/config"
	"face-attendance/internal/models"
	"face-attendance/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

// 2024-01-15 is a Monday
var shiftDay = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return shiftDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func weekdays(start, end string) []models.ShiftSchedule {
	var s []models.ShiftSchedule
	for d := time.Monday; d <= time.Friday; d++ {
		s = append(s, models.ShiftSchedule{Weekday: d, Start: start, End: end})
	}
	return s
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.Location = time.UTC
	return p
}

type fixture struct {
	db         *gorm.DB
	policy     Policy
	directory  *repository.StaticDirectory
	events     *repository.SQLiteEventLog
	ledger     *repository.SQLiteLedger
	alerts     *repository.SQLiteAlertStore
	deadLetter *repository.SQLiteDeadLetters
	feed       *Feed
	reconciler *Reconciler
	evaluator  *Evaluator
}

func defaultEmployees() []*models.Employee {
	return []*models.Employee{
		{ID: "E", Name: "Employee E", TelegramChatID: 100, Status: models.EnrollmentActive, Schedule: weekdays("09:00", "17:00")},
		{ID: "N", Name: "Night N", Status: models.EnrollmentActive, Schedule: weekdays("22:00", "06:00")},
		{ID: "S", Name: "Suspended S", Status: models.EnrollmentSuspended, Schedule: weekdays("09:00", "17:00")},
		{ID: "F", Name: "Flexible F", Status: models.EnrollmentActive},
	}
}

func newFixture(t *testing.T, employees ...*models.Employee) *fixture {
	t.Helper()
	if len(employees) == 0 {
		employees = defaultEmployees()
	}

	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "attendance.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.CloseSQLite(db) })

	f := &fixture{
		db:         db,
		policy:     testPolicy(),
		directory:  repository.NewStaticDirectory(employees, time.UTC),
		events:     repository.NewEventLog(db),
		ledger:     repository.NewLedger(db),
		alerts:     repository.NewAlertStore(db),
		deadLetter: repository.NewDeadLetterStore(db),
		feed:       NewFeed(nil),
	}
	t.Cleanup(f.feed.Close)
	f.reconciler = NewReconciler(f.ledger, f.events, f.directory, f.policy, f.feed, nil, nil)
	f.evaluator = NewEvaluator(f.directory, f.ledger, f.alerts, f.reconciler, f.policy, 2, time.Hour, nil, nil)
	return f
}

func (f *fixture) retryConfig() config.RetryConfig {
	return config.RetryConfig{
		QueueSize:       4,
		Workers:         1,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxAttempts:     3,
	}
}

func event(id, camera string, ts time.Time) *models.MatchEvent {
	return &models.MatchEvent{ID: id, EmployeeID: "E", CameraID: camera, Timestamp: ts, Confidence: 0.9, ReceivedAt: ts}
}
