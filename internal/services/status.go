// Package services implements business logic for the application
package services

import (
	"context"
	"time"

	"face-attendance/config"
	"face-attendance/internal/errors"
	"face-attendance/internal/models"
	"face-attendance/internal/repository"
)

// Policy holds the attendance rules. Every value is configuration.
type Policy struct {
	ConfidenceThreshold     float64
	ClockSkewTolerance      time.Duration
	GracePeriod             time.Duration
	ShiftMatchTolerance     time.Duration
	EarlyDepartureThreshold time.Duration
	ClosingDelay            time.Duration
	Location                *time.Location
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		ConfidenceThreshold:     0.75,
		ClockSkewTolerance:      5 * time.Minute,
		GracePeriod:             10 * time.Minute,
		ShiftMatchTolerance:     2 * time.Hour,
		EarlyDepartureThreshold: 30 * time.Minute,
		ClosingDelay:            2 * time.Hour,
		Location:                time.Local,
	}
}

// PolicyFromConfig builds the policy from the pipeline settings
func PolicyFromConfig(cfg config.PipelineConfig) (Policy, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Policy{}, err
	}
	return Policy{
		ConfidenceThreshold:     cfg.ConfidenceThreshold,
		ClockSkewTolerance:      cfg.ClockSkewTolerance,
		GracePeriod:             cfg.GracePeriod,
		ShiftMatchTolerance:     cfg.ShiftMatchTolerance,
		EarlyDepartureThreshold: cfg.EarlyDepartureThreshold,
		ClosingDelay:            cfg.ClosingDelay,
		Location:                loc,
	}, nil
}

func (p Policy) loc() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// DeriveStatus computes the status of a record from its observations. It is the only
// place status is decided; records are never toggled incrementally.
//
//	no window                                   -> unverified
//	no observation                              -> absent
//	first seen after start + grace              -> late
//	closed and last seen before end - threshold -> partial
//	otherwise                                   -> present
func DeriveStatus(first, last *time.Time, window *models.ShiftWindow, closed bool, p Policy) models.AttendanceStatus {
	if window == nil {
		return models.StatusUnverified
	}
	if first == nil {
		return models.StatusAbsent
	}
	if first.After(window.Start.Add(p.GracePeriod)) {
		return models.StatusLate
	}
	if closed && last != nil && last.Before(window.End.Add(-p.EarlyDepartureThreshold)) {
		return models.StatusPartial
	}
	return models.StatusPresent
}

// statusOf derives the status of a whole record. A record forced absent by the
// evaluator stays absent until evidence arrives, then becomes partial.
func (p Policy) statusOf(rec *models.AttendanceRecord) models.AttendanceStatus {
	if rec.ForcedAbsent {
		if len(rec.SupportingEvents) == 0 {
			return models.StatusAbsent
		}
		return models.StatusPartial
	}
	return DeriveStatus(rec.FirstSeenAt, rec.LastSeenAt, rec.Window(), rec.Closed, p)
}

// isLate reports whether the record's arrival breaches the grace period
func (p Policy) isLate(rec *models.AttendanceRecord) bool {
	w := rec.Window()
	return w != nil && rec.FirstSeenAt != nil && rec.FirstSeenAt.After(w.Start.Add(p.GracePeriod))
}

// leftEarly reports whether the last sighting is materially before the expected end
func (p Policy) leftEarly(rec *models.AttendanceRecord) bool {
	w := rec.Window()
	return w != nil && rec.LastSeenAt != nil && rec.LastSeenAt.Before(w.End.Add(-p.EarlyDepartureThreshold))
}

// LateBy returns how far after the expected start the employee arrived
func LateBy(rec *models.AttendanceRecord) time.Duration {
	if rec.FirstSeenAt == nil || rec.ExpectedStart == nil {
		return 0
	}
	if d := rec.FirstSeenAt.Sub(*rec.ExpectedStart); d > 0 {
		return d
	}
	return 0
}

// ResolveShift finds the shift window an observation at ts belongs to. Candidates are
// the employee's windows on the previous, same and next local date; a window matches
// when ts lies within it widened by the shift match tolerance. The nearest start wins
// and ties go to the earliest start. A nil window means no shift matched.
func ResolveShift(ctx context.Context, dir repository.Directory, employeeID string, ts time.Time, p Policy) (*models.ShiftWindow, error) {
	day := models.StartOfDay(ts, p.loc())

	var best *models.ShiftWindow
	var bestDist time.Duration
	for _, offset := range []int{-1, 0, 1} {
		w, err := dir.ScheduleFor(ctx, employeeID, day.AddDate(0, 0, offset))
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if w == nil {
			continue
		}
		if ts.Before(w.Start.Add(-p.ShiftMatchTolerance)) || ts.After(w.End.Add(p.ShiftMatchTolerance)) {
			continue
		}

		dist := ts.Sub(w.Start).Abs()
		if best == nil || dist < bestDist || (dist == bestDist && w.Start.Before(best.Start)) {
			best, bestDist = w, dist
		}
	}
	return best, nil
}

// keyFor returns the ledger key of an observation
func keyFor(employeeID string, ts time.Time, window *models.ShiftWindow, p Policy) models.ShiftKey {
	if window != nil {
		return window.Key()
	}
	return models.ShiftKey{EmployeeID: employeeID, ShiftDate: ts.In(p.loc()).Format(models.DateLayout)}
}
