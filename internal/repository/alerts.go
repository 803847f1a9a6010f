package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
)

// SQLiteAlertStore implements AlertStore. Undelivered rows form the delivery outbox.
type SQLiteAlertStore struct {
	db *gorm.DB
}

func NewAlertStore(db *gorm.DB) *SQLiteAlertStore {
	return &SQLiteAlertStore{db: db}
}

func (s *SQLiteAlertStore) Raise(ctx context.Context, alert *models.AbsenceAlert) (bool, error) {
	if alert.RaisedAt.IsZero() {
		alert.RaisedAt = time.Now()
	}
	alert.ID = 0
	alert.Delivered = false

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(alert)
	if result.Error != nil {
		return false, dbError("raise alert", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *SQLiteAlertStore) Acknowledge(ctx context.Context, id uint, at time.Time) (*models.AbsenceAlert, error) {
	var alert models.AbsenceAlert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&alert, id).Error; err != nil {
			return err
		}
		if alert.Acknowledged {
			return nil
		}
		alert.Acknowledged = true
		alert.AcknowledgedAt = &at
		return tx.Model(&alert).Updates(map[string]any{
			"acknowledged":    true,
			"acknowledged_at": at,
		}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dbError("acknowledge alert", err)
	}
	return &alert, nil
}

func (s *SQLiteAlertStore) List(ctx context.Context, query AlertQuery) ([]*models.AbsenceAlert, error) {
	q := s.db.WithContext(ctx).Model(&models.AbsenceAlert{})
	if query.EmployeeID != "" {
		q = q.Where("employee_id = ?", query.EmployeeID)
	}
	if query.FromDate != "" {
		q = q.Where("shift_date >= ?", query.FromDate)
	}
	if query.ToDate != "" {
		q = q.Where("shift_date <= ?", query.ToDate)
	}
	if query.Unacknowledged {
		q = q.Where("acknowledged = ?", false)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var alerts []*models.AbsenceAlert
	if err := q.Order("raised_at DESC, id DESC").Find(&alerts).Error; err != nil {
		return nil, dbError("list alerts", err)
	}
	return alerts, nil
}

// Undelivered returns the outbox least-attempted first, so alerts that keep failing
// do not hold back newer ones.
func (s *SQLiteAlertStore) Undelivered(ctx context.Context, limit int) ([]*models.AbsenceAlert, error) {
	q := s.db.WithContext(ctx).Where("delivered = ?", false).Order("delivery_attempts ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var alerts []*models.AbsenceAlert
	if err := q.Find(&alerts).Error; err != nil {
		return nil, dbError("list undelivered alerts", err)
	}
	return alerts, nil
}

func (s *SQLiteAlertStore) MarkDelivered(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Model(&models.AbsenceAlert{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"delivered":           true,
			"delivery_attempts":   gorm.Expr("delivery_attempts + 1"),
			"last_delivery_error": "",
		}).Error
	if err != nil {
		return dbError("mark alert delivered", err)
	}
	return nil
}

func (s *SQLiteAlertStore) RecordDeliveryFailure(ctx context.Context, id uint, deliveryErr error) error {
	msg := ""
	if deliveryErr != nil {
		msg = deliveryErr.Error()
	}
	err := s.db.WithContext(ctx).Model(&models.AbsenceAlert{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"delivery_attempts":   gorm.Expr("delivery_attempts + 1"),
			"last_delivery_error": msg,
		}).Error
	if err != nil {
		return dbError("record alert delivery failure", err)
	}
	return nil
}
