package services

import (
	"context"
	"fmt"
	"time"

	"face-attendance/internal/errors"
	"face-attendance/internal/logger"
	"face-attendance/internal/models"
	"face-attendance/internal/observability"
	"face-attendance/internal/repository"
)

// AlertSink receives alerts from the outbox. Delivery is at-least-once; sinks
// identify duplicates by (employee, shift date, kind).
type AlertSink interface {
	Name() string
	Deliver(ctx context.Context, alert *models.AbsenceAlert, employee *models.Employee) error
}

// Dispatcher drains the alert outbox into the configured sinks. An alert leaves the
// outbox only after every sink accepted it.
type Dispatcher struct {
	alerts    repository.AlertStore
	directory repository.Directory
	sinks     []AlertSink
	interval  time.Duration
	batchSize int
	metrics   *observability.Metrics
	log       *logger.Logger
	wake      chan struct{}
}

func NewDispatcher(
	alerts repository.AlertStore,
	directory repository.Directory,
	sinks []AlertSink,
	interval time.Duration,
	batchSize int,
	metrics *observability.Metrics,
	log *logger.Logger,
) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{
		alerts:    alerts,
		directory: directory,
		sinks:     sinks,
		interval:  interval,
		batchSize: batchSize,
		metrics:   metrics,
		log:       log.Named("dispatcher"),
		wake:      make(chan struct{}, 1),
	}
}

// Wake requests a delivery pass without waiting for the next tick
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run delivers pending alerts on every interval until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.Flush(ctx); err != nil && ctx.Err() == nil {
			d.log.Error("alert delivery pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// Flush performs one delivery pass and returns the number of alerts delivered
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	if len(d.sinks) == 0 {
		return 0, nil
	}
	pending, err := d.alerts.Undelivered(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, alert := range pending {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if d.deliver(ctx, alert) {
			delivered++
		}
	}
	return delivered, nil
}

func (d *Dispatcher) deliver(ctx context.Context, alert *models.AbsenceAlert) bool {
	emp, err := d.directory.Lookup(ctx, alert.EmployeeID)
	if err != nil {
		d.log.Debug("employee lookup for alert failed", "employee_id", alert.EmployeeID, "error", err)
		emp = nil
	}

	var errs []error
	for _, sink := range d.sinks {
		err := sink.Deliver(ctx, alert, emp)
		d.metrics.RecordDelivery(sink.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}

	if len(errs) > 0 {
		deliveryErr := errors.New(errors.Join(errs...)).
			Component("dispatcher").
			Category(errors.CategoryDelivery).
			Context("alert_id", alert.ID).
			Build()
		d.log.Warn("alert delivery failed", "alert_id", alert.ID, "kind", alert.Kind, "error", deliveryErr)
		if err := d.alerts.RecordDeliveryFailure(ctx, alert.ID, deliveryErr); err != nil {
			d.log.Error("failed to record delivery failure", "alert_id", alert.ID, "error", err)
		}
		return false
	}

	if err := d.alerts.MarkDelivered(ctx, alert.ID); err != nil {
		d.log.Error("failed to mark alert delivered", "alert_id", alert.ID, "error", err)
		return false
	}
	d.log.Info("alert delivered", "alert_id", alert.ID, "employee_id", alert.EmployeeID, "kind", alert.Kind)
	return true
}
