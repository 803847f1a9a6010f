package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"face-attendance/internal/models"
)

// SQLiteDeadLetters implements DeadLetterStore
type SQLiteDeadLetters struct {
	db *gorm.DB
}

func NewDeadLetterStore(db *gorm.DB) *SQLiteDeadLetters {
	return &SQLiteDeadLetters{db: db}
}

func (s *SQLiteDeadLetters) Put(ctx context.Context, letter *models.DeadLetter) error {
	if letter.CreatedAt.IsZero() {
		letter.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(letter).Error; err != nil {
		return dbError("store dead letter", err)
	}
	return nil
}

func (s *SQLiteDeadLetters) List(ctx context.Context, limit int) ([]*models.DeadLetter, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var letters []*models.DeadLetter
	if err := q.Find(&letters).Error; err != nil {
		return nil, dbError("list dead letters", err)
	}
	return letters, nil
}
