package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
	"face-attendance/internal/services"
)

// Publisher publishes alerts and ledger changes
type Publisher struct {
	client *Client
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

type alertMessage struct {
	*models.AbsenceAlert
	EmployeeName string `json:"employee_name,omitempty"`
	Title        string `json:"title"`
}

func (p *Publisher) Name() string { return "mqtt" }

// Deliver publishes the alert to the alert topic
func (p *Publisher) Deliver(_ context.Context, alert *models.AbsenceAlert, emp *models.Employee) error {
	msg := alertMessage{AbsenceAlert: alert, Title: services.AlertTitle(alert)}
	if emp != nil {
		msg.EmployeeName = emp.Name
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := p.client.publish(p.client.cfg.AlertTopic, payload); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryDelivery).
			Context("alert_id", alert.ID).
			Build()
	}
	return nil
}

// RunFeed publishes every committed record change to <feed_topic>/<employee_id> until
// changes is closed or ctx is cancelled
func (p *Publisher) RunFeed(ctx context.Context, changes <-chan services.RecordChange) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			p.publishRecord(change.Record)
		}
	}
}

func (p *Publisher) publishRecord(rec *models.AttendanceRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		p.client.log.Error("failed to marshal record", "key", rec.Key().String(), "error", err)
		return
	}
	topic := p.client.cfg.FeedTopic + "/" + rec.EmployeeID
	if err := p.client.publish(topic, payload); err != nil {
		p.client.log.Warn("failed to publish record change", "topic", topic, "revision", rec.Revision, "error", err)
	}
}
