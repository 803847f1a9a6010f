package services

import (
	"context"
	"slices"
	"time"

	"face-attendance/internal/errors"
	"face-attendance/internal/logger"
	"face-attendance/internal/models"
	"face-attendance/internal/observability"
	"face-attendance/internal/repository"
)

// SweepResult summarizes one evaluator pass
type SweepResult struct {
	Examined     int `json:"examined"`
	ForcedAbsent int `json:"forced_absent"`
	Closed       int `json:"closed"`
	AlertsRaised int `json:"alerts_raised"`
}

// Evaluator scans expected shifts against the ledger, closes finished records,
// forces absences and raises alerts. Every per-key decision is idempotent, so a
// pass may stop at any point and be run again.
type Evaluator struct {
	directory    repository.Directory
	ledger       repository.Ledger
	alerts       repository.AlertStore
	reconciler   *Reconciler
	policy       Policy
	lookbackDays int
	interval     time.Duration
	metrics      *observability.Metrics
	log          *logger.Logger
	now          func() time.Time
	onRaised     func()
}

func NewEvaluator(
	directory repository.Directory,
	ledger repository.Ledger,
	alerts repository.AlertStore,
	reconciler *Reconciler,
	policy Policy,
	lookbackDays int,
	interval time.Duration,
	metrics *observability.Metrics,
	log *logger.Logger,
) *Evaluator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Evaluator{
		directory:    directory,
		ledger:       ledger,
		alerts:       alerts,
		reconciler:   reconciler,
		policy:       policy,
		lookbackDays: lookbackDays,
		interval:     interval,
		metrics:      metrics,
		log:          log.Named("evaluator"),
		now:          time.Now,
	}
}

// OnAlertsRaised registers fn to run after a background sweep raised alerts
func (e *Evaluator) OnAlertsRaised(fn func()) {
	e.onRaised = fn
}

// Run sweeps immediately and then on every interval until ctx is cancelled
func (e *Evaluator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		result, err := e.Sweep(ctx, e.now())
		if err != nil && ctx.Err() == nil {
			e.log.Error("sweep failed", "error", err)
		}
		if result.AlertsRaised > 0 && e.onRaised != nil {
			e.onRaised()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep evaluates every scheduled shift and open record from asOf minus the lookback
// period up to asOf.
func (e *Evaluator) Sweep(ctx context.Context, asOf time.Time) (SweepResult, error) {
	loc := e.policy.loc()
	today := models.StartOfDay(asOf, loc)
	return e.sweepRange(ctx, today.AddDate(0, 0, -e.lookbackDays), today, asOf)
}

// Finalize evaluates the shifts of one date as they stand at asOf. It is the
// end-of-day pass: with asOf past every shift end it closes, forces and alerts the whole day.
func (e *Evaluator) Finalize(ctx context.Context, date time.Time, asOf time.Time) (SweepResult, error) {
	day := models.StartOfDay(date, e.policy.loc())
	return e.sweepRange(ctx, day, day, asOf)
}

func (e *Evaluator) sweepRange(ctx context.Context, from, to time.Time, asOf time.Time) (SweepResult, error) {
	var result SweepResult
	start := time.Now()
	defer func() { e.metrics.ObserveSweep(time.Since(start)) }()

	windows, err := e.expectedShifts(ctx, from, to)
	if err != nil {
		return result, err
	}

	open, err := e.ledger.ListLatest(ctx, repository.LedgerQuery{
		FromDate: from.Format(models.DateLayout),
		ToDate:   to.Format(models.DateLayout),
		OpenOnly: true,
	})
	if err != nil {
		return result, err
	}
	for _, rec := range open {
		if _, ok := windows[rec.Key()]; !ok {
			windows[rec.Key()] = rec.Window()
		}
	}

	keys := make([]models.ShiftKey, 0, len(windows))
	for k := range windows {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b models.ShiftKey) int {
		if a.ShiftDate != b.ShiftDate {
			if a.ShiftDate < b.ShiftDate {
				return -1
			}
			return 1
		}
		if a.EmployeeID < b.EmployeeID {
			return -1
		}
		if a.EmployeeID > b.EmployeeID {
			return 1
		}
		return 0
	})

	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Examined++
		if err := e.evaluate(ctx, key, windows[key], asOf, &result); err != nil {
			e.log.Warn("shift evaluation failed", "key", key.String(), "error", err)
			errs = append(errs, err)
		}
	}

	e.log.Info("sweep finished",
		"from", from.Format(models.DateLayout),
		"to", to.Format(models.DateLayout),
		"examined", result.Examined,
		"forced_absent", result.ForcedAbsent,
		"closed", result.Closed,
		"alerts_raised", result.AlertsRaised,
		"duration", time.Since(start))
	return result, errors.Join(errs...)
}

// expectedShifts materializes the scheduled windows of active employees per date
func (e *Evaluator) expectedShifts(ctx context.Context, from, to time.Time) (map[models.ShiftKey]*models.ShiftWindow, error) {
	employees, err := e.directory.ListActive(ctx)
	if err != nil {
		return nil, transient("directory", err)
	}

	windows := make(map[models.ShiftKey]*models.ShiftWindow)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, emp := range employees {
			if w := models.WindowFor(emp, day, e.policy.loc()); w != nil {
				windows[w.Key()] = w
			}
		}
	}
	return windows, nil
}

// evaluate applies every rule to one shift key. Record changes go through the
// reconciler, which takes the key lock.
func (e *Evaluator) evaluate(ctx context.Context, key models.ShiftKey, window *models.ShiftWindow, asOf time.Time, result *SweepResult) error {
	rec, err := e.reconciler.latest(ctx, key)
	if err != nil {
		return err
	}

	if rec == nil {
		if window == nil || asOf.Before(window.End.Add(e.policy.GracePeriod)) {
			return nil
		}
		forced, created, err := e.reconciler.ForceAbsent(ctx, window)
		if err != nil {
			return err
		}
		if created {
			result.ForcedAbsent++
			e.log.Info("shift forced absent", "key", key.String())
		}
		rec = forced
	}

	if rec.ForcedAbsent && len(rec.SupportingEvents) == 0 {
		return e.raise(ctx, key, models.AlertAbsent, asOf, result)
	}

	if e.policy.isLate(rec) {
		if err := e.raise(ctx, key, models.AlertLate, asOf, result); err != nil {
			return err
		}
	}

	if w := rec.Window(); w != nil && !asOf.Before(w.End) && e.policy.leftEarly(rec) {
		if err := e.raise(ctx, key, models.AlertEarlyDeparture, asOf, result); err != nil {
			return err
		}
	}

	if !rec.Closed && !asOf.Before(e.closesAt(rec)) {
		_, closed, err := e.reconciler.Close(ctx, key)
		if err != nil {
			return err
		}
		if closed {
			result.Closed++
		}
	}
	return nil
}

// closesAt returns when an open record may be closed
func (e *Evaluator) closesAt(rec *models.AttendanceRecord) time.Time {
	if rec.ExpectedEnd != nil {
		return rec.ExpectedEnd.Add(e.policy.ClosingDelay)
	}
	day, err := models.ParseDate(rec.ShiftDate, e.policy.loc())
	if err != nil {
		return time.Time{}
	}
	return day.AddDate(0, 0, 1).Add(e.policy.ClosingDelay)
}

func (e *Evaluator) raise(ctx context.Context, key models.ShiftKey, kind models.AlertKind, asOf time.Time, result *SweepResult) error {
	alert := &models.AbsenceAlert{
		EmployeeID: key.EmployeeID,
		ShiftDate:  key.ShiftDate,
		Kind:       kind,
		RaisedAt:   asOf,
	}
	raised, err := e.alerts.Raise(ctx, alert)
	if err != nil {
		return transient("alerts", err)
	}
	if raised {
		result.AlertsRaised++
		e.metrics.RecordAlertRaised(kind)
		e.log.Info("alert raised", "key", key.String(), "kind", kind)
	}
	return nil
}
