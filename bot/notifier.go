package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
	"face-attendance/internal/services"
)

// SendNotification sends message to the admin chat
func (b *Bot) SendNotification(message string) error {
	if b.adminChatID == 0 {
		return fmt.Errorf("no authorized chat configured")
	}
	return b.SendPersonalNotification(b.adminChatID, message)
}

// SendPersonalNotification sends message to a specific user
func (b *Bot) SendPersonalNotification(chatID int64, message string) error {
	msg := tgbotapi.NewMessage(chatID, message)
	msg.ParseMode = "Markdown"
	if _, err := b.send.Send(msg); err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) Name() string { return "telegram" }

// Deliver sends an alert to the admin chat
func (b *Bot) Deliver(_ context.Context, alert *models.AbsenceAlert, emp *models.Employee) error {
	if err := b.SendNotification(services.FormatAlert(alert, emp)); err != nil {
		return errors.New(err).
			Component("telegram").
			Category(errors.CategoryDelivery).
			Context("alert_id", alert.ID).
			Build()
	}
	return nil
}

// RunFeed greets employees on their first sighting of a shift and tells the admin
// about late arrivals. Notices are best effort; alerts go through Deliver.
func (b *Bot) RunFeed(ctx context.Context, changes <-chan services.RecordChange) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if change.FirstSighting() {
				b.checkInNotice(ctx, change.Record)
			}
		}
	}
}

func (b *Bot) checkInNotice(ctx context.Context, rec *models.AttendanceRecord) {
	emp, err := b.deps.Directory.Lookup(ctx, rec.EmployeeID)
	if err != nil {
		b.log.Debug("no employee for check-in notice", "employee_id", rec.EmployeeID, "error", err)
		return
	}

	camera := "-"
	if len(rec.SupportingEvents) > 0 {
		camera = rec.SupportingEvents[0].CameraID
	}

	if emp.TelegramChatID != 0 {
		if err := b.SendPersonalNotification(emp.TelegramChatID, services.FormatCheckIn(rec, emp, camera, b.deps.Location)); err != nil {
			b.log.Warn("check-in notice failed", "employee_id", emp.ID, "error", err)
		}
	}

	if rec.Status == models.StatusLate && b.adminChatID != 0 {
		if err := b.SendNotification(services.FormatLateNotice(rec, emp, b.deps.Location)); err != nil {
			b.log.Warn("late notice failed", "employee_id", emp.ID, "error", err)
		}
	}
}
