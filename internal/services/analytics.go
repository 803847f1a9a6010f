package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
	"face-attendance/internal/repository"
)

// AnalyticsQuery selects the records an analytics window covers
type AnalyticsQuery struct {
	EmployeeID string // empty or models.AllEmployees for everyone
	From       time.Time
	To         time.Time
}

// Analytics derives statistics from the latest record revisions. It keeps no state
// of its own, so every answer can be recomputed from the ledger at any time.
type Analytics struct {
	ledger    repository.Ledger
	directory repository.Directory
	loc       *time.Location
}

func NewAnalytics(ledger repository.Ledger, directory repository.Directory, policy Policy) *Analytics {
	return &Analytics{ledger: ledger, directory: directory, loc: policy.loc()}
}

func (q AnalyticsQuery) validate() error {
	if q.From.IsZero() || q.To.IsZero() {
		return errors.ValidationError(models.RejectMalformed, "from and to dates are required")
	}
	if q.To.Before(q.From) {
		return errors.ValidationError(models.RejectMalformed, "to date %s is before from date %s",
			q.To.Format(models.DateLayout), q.From.Format(models.DateLayout))
	}
	return nil
}

func (q AnalyticsQuery) employee() string {
	if q.EmployeeID == models.AllEmployees {
		return ""
	}
	return q.EmployeeID
}

// Window aggregates the latest revisions in [From, To] by date
func (a *Analytics) Window(ctx context.Context, q AnalyticsQuery) (*models.AnalyticsWindow, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	from := q.From.In(a.loc).Format(models.DateLayout)
	to := q.To.In(a.loc).Format(models.DateLayout)

	records, err := a.ledger.ListLatest(ctx, repository.LedgerQuery{EmployeeID: q.employee(), FromDate: from, ToDate: to})
	if err != nil {
		return nil, err
	}
	return summarize(records, q.EmployeeID, from, to), nil
}

// summarize counts records by status and averages arrival against expected start
func summarize(records []*models.AttendanceRecord, employeeID, from, to string) *models.AnalyticsWindow {
	if employeeID == "" {
		employeeID = models.AllEmployees
	}
	w := &models.AnalyticsWindow{EmployeeID: employeeID, StartDate: from, EndDate: to}

	var deltaSum time.Duration
	var deltaCount int
	for _, rec := range records {
		w.TotalRecords++
		switch rec.Status {
		case models.StatusPresent:
			w.PresentCount++
		case models.StatusLate:
			w.LateCount++
		case models.StatusAbsent:
			w.AbsentCount++
		case models.StatusPartial:
			w.PartialCount++
		case models.StatusUnverified:
			w.UnverifiedCount++
		}
		if rec.FirstSeenAt != nil && rec.ExpectedStart != nil {
			deltaSum += rec.FirstSeenAt.Sub(*rec.ExpectedStart)
			deltaCount++
		}
	}
	if deltaCount > 0 {
		w.AvgArrivalDelta = deltaSum / time.Duration(deltaCount)
	}
	return w
}

// Trend splits the query range into consecutive windows of bucketDays days
func (a *Analytics) Trend(ctx context.Context, q AnalyticsQuery, bucketDays int) ([]*models.AnalyticsWindow, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if bucketDays <= 0 {
		return nil, errors.ValidationError(models.RejectMalformed, "bucket size must be positive, got %d", bucketDays)
	}

	first := models.StartOfDay(q.From, a.loc)
	last := models.StartOfDay(q.To, a.loc)
	records, err := a.ledger.ListLatest(ctx, repository.LedgerQuery{
		EmployeeID: q.employee(),
		FromDate:   first.Format(models.DateLayout),
		ToDate:     last.Format(models.DateLayout),
	})
	if err != nil {
		return nil, err
	}

	var windows []*models.AnalyticsWindow
	for start := first; !start.After(last); start = start.AddDate(0, 0, bucketDays) {
		end := start.AddDate(0, 0, bucketDays-1)
		if end.After(last) {
			end = last
		}
		from, to := start.Format(models.DateLayout), end.Format(models.DateLayout)

		bucket := slices.DeleteFunc(slices.Clone(records), func(r *models.AttendanceRecord) bool {
			return r.ShiftDate < from || r.ShiftDate > to
		})
		windows = append(windows, summarize(bucket, q.EmployeeID, from, to))
	}
	return windows, nil
}

// DailyRoster lists who attended date and who was expected but has no attendance
func (a *Analytics) DailyRoster(ctx context.Context, date time.Time) (*models.DailyRoster, error) {
	day := models.StartOfDay(date, a.loc)
	dateStr := day.Format(models.DateLayout)

	employees, err := a.directory.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	records, err := a.ledger.ListLatest(ctx, repository.LedgerQuery{FromDate: dateStr, ToDate: dateStr})
	if err != nil {
		return nil, err
	}

	byEmployee := make(map[string]*models.AttendanceRecord, len(records))
	for _, rec := range records {
		byEmployee[rec.EmployeeID] = rec
	}

	roster := &models.DailyRoster{Date: dateStr, Present: []models.RosterEntry{}, Absent: []models.RosterEntry{}}
	for _, emp := range employees {
		entry := models.RosterEntry{EmployeeID: emp.ID, Name: emp.Name}
		rec, ok := byEmployee[emp.ID]
		if ok {
			entry.Status = rec.Status
			entry.FirstSeenAt = rec.FirstSeenAt
		}
		if ok && rec.FirstSeenAt != nil {
			roster.Present = append(roster.Present, entry)
			continue
		}
		if ok || models.WindowFor(emp, day, a.loc) != nil {
			roster.Absent = append(roster.Absent, entry)
		}
	}
	return roster, nil
}
