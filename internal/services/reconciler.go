package services

import (
	"context"
	"time"

	"face-attendance/internal/errors"
	"face-attendance/internal/logger"
	"face-attendance/internal/models"
	"face-attendance/internal/observability"
	"face-attendance/internal/repository"
)

const defaultMergeAttempts = 5

// Reconciler owns every attendance record write. Updates to one shift key are
// serialized; each committed change is a new revision in the ledger.
type Reconciler struct {
	ledger        repository.Ledger
	events        repository.EventLog
	directory     repository.Directory
	policy        Policy
	locks         *KeyedMutex
	feed          *Feed
	metrics       *observability.Metrics
	log           *logger.Logger
	mergeAttempts int
	now           func() time.Time
}

// NewReconciler creates a reconciler. feed and metrics may be nil.
func NewReconciler(
	ledger repository.Ledger,
	events repository.EventLog,
	directory repository.Directory,
	policy Policy,
	feed *Feed,
	metrics *observability.Metrics,
	log *logger.Logger,
) *Reconciler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Reconciler{
		ledger:        ledger,
		events:        events,
		directory:     directory,
		policy:        policy,
		locks:         NewKeyedMutex(),
		feed:          feed,
		metrics:       metrics,
		log:           log.Named("reconciler"),
		mergeAttempts: defaultMergeAttempts,
		now:           time.Now,
	}
}

// Locks exposes the per-key serialization shared with the evaluator
func (r *Reconciler) Locks() *KeyedMutex {
	return r.locks
}

// Apply folds an accepted event into the record of its shift. Applying an event that
// is already part of the record returns the record unchanged.
func (r *Reconciler) Apply(ctx context.Context, event *models.MatchEvent) (*models.AttendanceRecord, error) {
	window, err := ResolveShift(ctx, r.directory, event.EmployeeID, event.Timestamp, r.policy)
	if err != nil {
		return nil, transient("reconciler", err)
	}
	key := keyFor(event.EmployeeID, event.Timestamp, window, r.policy)

	unlock := r.locks.Lock(key.String())
	defer unlock()

	return r.commit(ctx, key, func(cur *models.AttendanceRecord) (*models.AttendanceRecord, bool) {
		return r.merge(cur, key, window, event)
	})
}

// Close moves an open record to closed. Missing or already closed records are left alone.
func (r *Reconciler) Close(ctx context.Context, key models.ShiftKey) (*models.AttendanceRecord, bool, error) {
	unlock := r.locks.Lock(key.String())
	defer unlock()

	var changed bool
	rec, err := r.commit(ctx, key, func(cur *models.AttendanceRecord) (*models.AttendanceRecord, bool) {
		if cur == nil || cur.Closed {
			changed = false
			return cur, false
		}
		next := cur.Next(models.ReasonClosed)
		next.Closed = true
		next.Status = r.policy.statusOf(next)
		changed = true
		return next, true
	})
	return rec, changed, err
}

// ForceAbsent creates a closed absent record for a shift nobody attended.
// It does nothing when any record exists for the key.
func (r *Reconciler) ForceAbsent(ctx context.Context, window *models.ShiftWindow) (*models.AttendanceRecord, bool, error) {
	key := window.Key()
	unlock := r.locks.Lock(key.String())
	defer unlock()

	var created bool
	rec, err := r.commit(ctx, key, func(cur *models.AttendanceRecord) (*models.AttendanceRecord, bool) {
		if cur != nil {
			created = false
			return cur, false
		}
		start, end := window.Start, window.End
		rec := &models.AttendanceRecord{
			EmployeeID:    key.EmployeeID,
			ShiftDate:     key.ShiftDate,
			Revision:      1,
			ExpectedStart: &start,
			ExpectedEnd:   &end,
			Closed:        true,
			ForcedAbsent:  true,
			Reason:        models.ReasonForcedAbsent,
		}
		rec.Status = r.policy.statusOf(rec)
		created = true
		return rec, true
	})
	return rec, created, err
}

// Rebuild recomputes the record of key from the event log and appends a rebuild
// revision when the stored state differs.
func (r *Reconciler) Rebuild(ctx context.Context, key models.ShiftKey) (*models.AttendanceRecord, bool, error) {
	unlock := r.locks.Lock(key.String())
	defer unlock()

	cur, err := r.latest(ctx, key)
	if err != nil {
		return nil, false, err
	}

	day, err := models.ParseDate(key.ShiftDate, r.policy.loc())
	if err != nil {
		return nil, false, errors.ValidationError(models.RejectMalformed, "invalid shift date %q", key.ShiftDate)
	}
	from := day.AddDate(0, 0, -1)
	to := day.AddDate(0, 0, 3)
	events, err := r.events.ListByEmployee(ctx, key.EmployeeID, from, to)
	if err != nil {
		return nil, false, transient("reconciler", err)
	}

	var rebuilt *models.AttendanceRecord
	for _, event := range events {
		window, err := ResolveShift(ctx, r.directory, event.EmployeeID, event.Timestamp, r.policy)
		if err != nil {
			return nil, false, transient("reconciler", err)
		}
		// Unmatched events belong to their local date, like in Apply.
		if keyFor(event.EmployeeID, event.Timestamp, window, r.policy) != key {
			continue
		}
		if window == nil && cur != nil {
			window = cur.Window()
		}
		if next, ok := r.merge(rebuilt, key, window, event); ok {
			rebuilt = next
		}
	}

	if rebuilt == nil {
		return cur, false, nil
	}

	var changed bool
	rec, err := r.commit(ctx, key, func(cur *models.AttendanceRecord) (*models.AttendanceRecord, bool) {
		if cur == nil {
			rebuilt.Revision = 1
			rebuilt.Reason = models.ReasonRebuild
			changed = true
			return rebuilt, true
		}
		next := cur.Next(models.ReasonRebuild)
		next.FirstSeenAt = rebuilt.FirstSeenAt
		next.LastSeenAt = rebuilt.LastSeenAt
		next.SupportingEvents = rebuilt.SupportingEvents
		if rebuilt.ExpectedStart != nil {
			next.ExpectedStart, next.ExpectedEnd = rebuilt.ExpectedStart, rebuilt.ExpectedEnd
		}
		next.Status = r.policy.statusOf(next)
		if next.SameState(cur) {
			changed = false
			return cur, false
		}
		changed = true
		return next, true
	})
	return rec, changed, err
}

// merge returns the record that results from adding event to cur
func (r *Reconciler) merge(cur *models.AttendanceRecord, key models.ShiftKey, window *models.ShiftWindow, event *models.MatchEvent) (*models.AttendanceRecord, bool) {
	ref := event.Ref()
	ts := event.Timestamp

	if cur == nil {
		first, last := ts, ts
		rec := &models.AttendanceRecord{
			EmployeeID:       key.EmployeeID,
			ShiftDate:        key.ShiftDate,
			Revision:         1,
			FirstSeenAt:      &first,
			LastSeenAt:       &last,
			SupportingEvents: models.EventRefs{ref},
			Reason:           models.ReasonFirstSeen,
		}
		setWindow(rec, window)
		rec.Status = r.policy.statusOf(rec)
		return rec, true
	}

	if cur.SupportingEvents.Contains(ref.ID) {
		return cur, false
	}

	reason := models.ReasonEvent
	if cur.Closed {
		reason = models.ReasonLateEvent
	}
	next := cur.Next(reason)
	if next.ExpectedStart == nil {
		setWindow(next, window)
	}
	next.SupportingEvents = next.SupportingEvents.Insert(ref)
	if next.FirstSeenAt == nil || ts.Before(*next.FirstSeenAt) {
		first := ts
		next.FirstSeenAt = &first
	}
	if next.LastSeenAt == nil || ts.After(*next.LastSeenAt) {
		last := ts
		next.LastSeenAt = &last
	}
	next.Status = r.policy.statusOf(next)
	return next, true
}

func setWindow(rec *models.AttendanceRecord, window *models.ShiftWindow) {
	if window == nil {
		return
	}
	start, end := window.Start, window.End
	rec.ExpectedStart = &start
	rec.ExpectedEnd = &end
}

// commit runs mutate against the latest revision and appends the result. A revision
// conflict means another writer got there first; the change is re-derived on top of
// the new latest revision instead of being rejected.
func (r *Reconciler) commit(ctx context.Context, key models.ShiftKey, mutate func(*models.AttendanceRecord) (*models.AttendanceRecord, bool)) (*models.AttendanceRecord, error) {
	var lastErr error
	for attempt := 0; attempt < r.mergeAttempts; attempt++ {
		cur, err := r.latest(ctx, key)
		if err != nil {
			return nil, err
		}

		next, changed := mutate(cur)
		if !changed {
			return cur, nil
		}
		if next.CreatedAt.IsZero() {
			next.CreatedAt = r.now()
		}

		err = r.ledger.Append(ctx, next)
		if err == nil {
			r.metrics.RecordRevision(next.Reason)
			r.log.Debug("record revision committed",
				"key", key.String(),
				"revision", next.Revision,
				"status", next.Status,
				"reason", next.Reason)
			r.feed.Publish(RecordChange{Record: next, Previous: cur})
			return next, nil
		}
		if !errors.Is(err, repository.ErrRevisionConflict) {
			return nil, transient("ledger", err)
		}

		lastErr = err
		r.metrics.RecordRevisionConflict()
		r.log.Warn("revision conflict, merging", "key", key.String(), "attempt", attempt+1)
	}
	return nil, transient("ledger", lastErr)
}

func (r *Reconciler) latest(ctx context.Context, key models.ShiftKey) (*models.AttendanceRecord, error) {
	cur, err := r.ledger.Latest(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, transient("ledger", err)
	}
	return cur, nil
}

// transient marks dependency failures for retry, keeping existing categories
func transient(component string, err error) error {
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) && enhanced.Category == errors.CategoryTransient {
		return err
	}
	return errors.TransientError(component, err)
}
