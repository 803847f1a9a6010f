package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
)

// SQLiteEventLog implements EventLog. Rows are inserted once and never updated.
type SQLiteEventLog struct {
	db *gorm.DB
}

func NewEventLog(db *gorm.DB) *SQLiteEventLog {
	return &SQLiteEventLog{db: db}
}

func (l *SQLiteEventLog) Append(ctx context.Context, event *models.MatchEvent) (bool, error) {
	row := *event
	row.Timestamp = row.Timestamp.UTC()
	row.ReceivedAt = row.ReceivedAt.UTC()

	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return false, dbError("append match event", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (l *SQLiteEventLog) Get(ctx context.Context, id string) (*models.MatchEvent, error) {
	var event models.MatchEvent
	err := l.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dbError("get match event", err)
	}
	return &event, nil
}

func (l *SQLiteEventLog) ListByEmployee(ctx context.Context, employeeID string, from, to time.Time) ([]*models.MatchEvent, error) {
	var events []*models.MatchEvent
	err := l.db.WithContext(ctx).
		Where("employee_id = ? AND timestamp >= ? AND timestamp <= ?", employeeID, from.UTC(), to.UTC()).
		Order("timestamp ASC, camera_id ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, dbError("list match events", err)
	}
	return events, nil
}
