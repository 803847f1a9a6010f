// Package repository defines repository interfaces for data access
package repository

import (
	"context"
	"time"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
)

// ErrNotFound is returned when a lookup has no result
var ErrNotFound = errors.NewStd("not found")

// ErrRevisionConflict is returned by Ledger.Append when the revision already exists
var ErrRevisionConflict = errors.NewStd("revision conflict")

// Directory defines read-only access to enrolled employees and their schedules
type Directory interface {
	// Lookup retrieves an employee by id. Suspended employees are returned as well.
	Lookup(ctx context.Context, employeeID string) (*models.Employee, error)
	// ScheduleFor returns the shift window of the employee on date, or nil when none is scheduled
	ScheduleFor(ctx context.Context, employeeID string, date time.Time) (*models.ShiftWindow, error)
	// ListActive returns every active employee with their schedules
	ListActive(ctx context.Context) ([]*models.Employee, error)
	// LookupByTelegramChat finds the employee linked to a Telegram chat
	LookupByTelegramChat(ctx context.Context, chatID int64) (*models.Employee, error)
}

// EventLog is the append-only store of accepted match events
type EventLog interface {
	// Append stores the event unless its id exists. created is false for a duplicate.
	Append(ctx context.Context, event *models.MatchEvent) (created bool, err error)
	// Get retrieves an event by id
	Get(ctx context.Context, id string) (*models.MatchEvent, error)
	// ListByEmployee returns the events of an employee within [from, to] ordered by timestamp
	ListByEmployee(ctx context.Context, employeeID string, from, to time.Time) ([]*models.MatchEvent, error)
}

// LedgerQuery selects latest record revisions
type LedgerQuery struct {
	EmployeeID string // empty selects every employee
	FromDate   string // inclusive, empty for unbounded
	ToDate     string // inclusive, empty for unbounded
	OpenOnly   bool
}

// Ledger is the append-only store of attendance record revisions
type Ledger interface {
	// Latest returns the current revision for key
	Latest(ctx context.Context, key models.ShiftKey) (*models.AttendanceRecord, error)
	// History returns every revision for key in ascending order
	History(ctx context.Context, key models.ShiftKey) ([]*models.AttendanceRecord, error)
	// Append commits a new revision. It returns ErrRevisionConflict when the revision was taken.
	Append(ctx context.Context, record *models.AttendanceRecord) error
	// ListLatest returns the latest revision of every key matched by query
	ListLatest(ctx context.Context, query LedgerQuery) ([]*models.AttendanceRecord, error)
}

// AlertQuery filters alerts
type AlertQuery struct {
	EmployeeID     string
	FromDate       string
	ToDate         string
	Unacknowledged bool
	Limit          int
}

// AlertStore persists absence alerts and doubles as the delivery outbox
type AlertStore interface {
	// Raise stores the alert unless one exists for its (employee, date, kind). raised is false otherwise.
	Raise(ctx context.Context, alert *models.AbsenceAlert) (raised bool, err error)
	// Acknowledge marks an alert as handled
	Acknowledge(ctx context.Context, id uint, at time.Time) (*models.AbsenceAlert, error)
	// List returns alerts matched by query, newest first
	List(ctx context.Context, query AlertQuery) ([]*models.AbsenceAlert, error)
	// Undelivered returns alerts still waiting in the outbox, fewest delivery attempts first
	Undelivered(ctx context.Context, limit int) ([]*models.AbsenceAlert, error)
	// MarkDelivered removes an alert from the outbox
	MarkDelivered(ctx context.Context, id uint) error
	// RecordDeliveryFailure counts a failed delivery attempt
	RecordDeliveryFailure(ctx context.Context, id uint, deliveryErr error) error
}

// DeadLetterStore preserves work that could not be completed
type DeadLetterStore interface {
	Put(ctx context.Context, letter *models.DeadLetter) error
	List(ctx context.Context, limit int) ([]*models.DeadLetter, error)
}
