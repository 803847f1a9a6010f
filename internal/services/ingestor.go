package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"face-attendance/internal/errors"
	"face-attendance/internal/logger"
	"face-attendance/internal/models"
	"face-attendance/internal/observability"
	"face-attendance/internal/repository"
)

// ErrQueued is returned when a detection was parked for retry after a dependency failure
var ErrQueued = errors.NewStd("detection queued for retry")

// ErrDeadLettered is returned when a detection could not be queued and was dead-lettered
var ErrDeadLettered = errors.NewStd("detection dead-lettered")

// eventNamespace scopes deterministic match event ids
var eventNamespace = uuid.MustParse("5b0e7d8c-4f0a-4c57-9a43-0c1f3d6e2a91")

// DetectionIngestor defines the interface the transports feed detections into
type DetectionIngestor interface {
	Ingest(ctx context.Context, detection *models.RawDetection) (*models.MatchEvent, error)
}

// EventApplier folds accepted events into the ledger
type EventApplier interface {
	Apply(ctx context.Context, event *models.MatchEvent) (*models.AttendanceRecord, error)
}

// Ingestor validates raw detections and turns them into immutable match events
type Ingestor struct {
	directory        repository.Directory
	events           repository.EventLog
	reconciler       EventApplier
	retry            *RetryQueue
	policy           Policy
	directoryTimeout time.Duration
	metrics          *observability.Metrics
	log              *logger.Logger
	now              func() time.Time
}

// NewIngestor creates the ingestor and installs itself as the retry handler
func NewIngestor(
	directory repository.Directory,
	events repository.EventLog,
	reconciler EventApplier,
	retry *RetryQueue,
	policy Policy,
	directoryTimeout time.Duration,
	metrics *observability.Metrics,
	log *logger.Logger,
) *Ingestor {
	if log == nil {
		log = logger.NewNop()
	}
	in := &Ingestor{
		directory:        directory,
		events:           events,
		reconciler:       reconciler,
		retry:            retry,
		policy:           policy,
		directoryTimeout: directoryTimeout,
		metrics:          metrics,
		log:              log.Named("ingestor"),
		now:              time.Now,
	}
	if retry != nil {
		retry.SetHandler(in.handleRetry)
	}
	return in
}

// EventID derives the id of the event a detection produces. Redelivered payloads
// map to the same id.
func EventID(d *models.RawDetection) string {
	name := fmt.Sprintf("%s|%s|%d|%s", d.EmployeeID, d.CameraID, d.Timestamp.UnixNano(), d.FrameRef)
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

// Ingest validates a detection. Accepted detections are appended to the event log and
// forwarded to the reconciler. Rejections carry their reason as a validation error;
// dependency failures park the detection and return ErrQueued.
func (in *Ingestor) Ingest(ctx context.Context, d *models.RawDetection) (*models.MatchEvent, error) {
	receivedAt := in.now()

	event, err := in.accept(ctx, d, receivedAt)
	if err != nil {
		if errors.IsTransient(err) {
			return nil, in.park(ctx, &RetryItem{Stage: StageIngest, Detection: d, ReceivedAt: receivedAt}, err)
		}
		in.reject(d, err)
		return nil, err
	}

	if err := in.forward(ctx, event); err != nil {
		return event, in.park(ctx, &RetryItem{Stage: StageReconcile, Event: event, ReceivedAt: receivedAt}, err)
	}
	return event, nil
}

// accept runs validation and stores the event
func (in *Ingestor) accept(ctx context.Context, d *models.RawDetection, receivedAt time.Time) (*models.MatchEvent, error) {
	if err := in.validate(d, receivedAt); err != nil {
		return nil, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, in.directoryTimeout)
	defer cancel()

	start := time.Now()
	emp, err := in.directory.Lookup(lookupCtx, d.EmployeeID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, errors.ValidationError(models.RejectUnknownIdentity, "employee %q is not enrolled", d.EmployeeID)
	case err != nil:
		return nil, errors.New(fmt.Errorf("directory lookup failed: %w", err)).
			Component("ingestor").
			Category(errors.CategoryTransient).
			Reason(models.RejectDirectoryUnavailable).
			Timing("directory_lookup", time.Since(start)).
			Build()
	case !emp.IsActive():
		return nil, errors.ValidationError(models.RejectUnknownIdentity, "employee %q is %s", d.EmployeeID, emp.Status)
	}

	event := &models.MatchEvent{
		ID:         EventID(d),
		EmployeeID: d.EmployeeID,
		CameraID:   d.CameraID,
		Timestamp:  d.Timestamp,
		Confidence: d.Confidence,
		FrameRef:   d.FrameRef,
		ReceivedAt: receivedAt,
	}

	created, err := in.events.Append(ctx, event)
	if err != nil {
		return nil, transient("event-log", err)
	}
	if created {
		in.metrics.RecordAccepted()
		in.log.Info("match event accepted",
			"event_id", event.ID,
			"employee_id", event.EmployeeID,
			"camera_id", event.CameraID,
			"confidence", event.Confidence)
	} else {
		in.log.Debug("duplicate detection", "event_id", event.ID)
	}
	return event, nil
}

func (in *Ingestor) validate(d *models.RawDetection, receivedAt time.Time) error {
	switch {
	case d == nil:
		return errors.ValidationError(models.RejectMalformed, "empty detection")
	case strings.TrimSpace(d.EmployeeID) == "":
		return errors.ValidationError(models.RejectMalformed, "employee_id is required")
	case strings.TrimSpace(d.CameraID) == "":
		return errors.ValidationError(models.RejectMalformed, "camera_id is required")
	case d.Timestamp.IsZero():
		return errors.ValidationError(models.RejectMalformed, "timestamp is required")
	case d.Confidence < 0 || d.Confidence > 1:
		return errors.ValidationError(models.RejectMalformed, "confidence %v outside [0,1]", d.Confidence)
	case d.Confidence < in.policy.ConfidenceThreshold:
		return errors.ValidationError(models.RejectLowConfidence, "confidence %.2f below threshold %.2f", d.Confidence, in.policy.ConfidenceThreshold)
	}
	if skew := receivedAt.Sub(d.Timestamp).Abs(); skew > in.policy.ClockSkewTolerance {
		return errors.ValidationError(models.RejectStaleTimestamp, "timestamp skew %s exceeds %s", skew.Round(time.Second), in.policy.ClockSkewTolerance)
	}
	return nil
}

func (in *Ingestor) forward(ctx context.Context, event *models.MatchEvent) error {
	if _, err := in.reconciler.Apply(ctx, event); err != nil {
		return transient("reconciler", err)
	}
	return nil
}

func (in *Ingestor) reject(d *models.RawDetection, err error) {
	reason, ok := errors.RejectReasonOf(err)
	if !ok {
		reason = models.RejectMalformed
	}
	in.metrics.RecordRejected(reason)

	fields := []any{"reason", reason, "error", err.Error()}
	if d != nil {
		fields = append(fields, "employee_id", d.EmployeeID, "camera_id", d.CameraID, "confidence", d.Confidence)
	}
	in.log.Info("detection rejected", fields...)
}

func (in *Ingestor) park(ctx context.Context, item *RetryItem, cause error) error {
	if in.retry == nil {
		return cause
	}
	if in.retry.Enqueue(ctx, item, cause) {
		return ErrQueued
	}
	return ErrDeadLettered
}

// handleRetry reprocesses a parked item. Validation uses the original receipt time.
func (in *Ingestor) handleRetry(ctx context.Context, item *RetryItem) error {
	event := item.Event
	if item.Stage == StageIngest {
		var err error
		event, err = in.accept(ctx, item.Detection, item.ReceivedAt)
		if err != nil {
			if !errors.IsTransient(err) {
				in.reject(item.Detection, err)
			}
			return err
		}
		// The event is stored; later failures only need the reconcile step.
		item.Stage = StageReconcile
		item.Event = event
		item.Detection = nil
	}
	return in.forward(ctx, event)
}
