package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
)

// latestRevision restricts a query on attendance_records to the newest row of each key
const latestRevision = `revision = (SELECT MAX(m.revision) FROM attendance_records m
	WHERE m.employee_id = attendance_records.employee_id AND m.shift_date = attendance_records.shift_date)`

// SQLiteLedger implements Ledger as an append-only revision table
type SQLiteLedger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

func (l *SQLiteLedger) Latest(ctx context.Context, key models.ShiftKey) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	err := l.db.WithContext(ctx).
		Where("employee_id = ? AND shift_date = ?", key.EmployeeID, key.ShiftDate).
		Order("revision DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dbError("get latest record", err)
	}
	return &record, nil
}

func (l *SQLiteLedger) History(ctx context.Context, key models.ShiftKey) ([]*models.AttendanceRecord, error) {
	var records []*models.AttendanceRecord
	err := l.db.WithContext(ctx).
		Where("employee_id = ? AND shift_date = ?", key.EmployeeID, key.ShiftDate).
		Order("revision ASC").
		Find(&records).Error
	if err != nil {
		return nil, dbError("list record history", err)
	}
	return records, nil
}

// Append inserts record as the next revision of its key. The expected previous
// revision is checked inside the transaction; the unique index backs it up.
func (l *SQLiteLedger) Append(ctx context.Context, record *models.AttendanceRecord) error {
	if record.Revision < 1 {
		return errors.Newf("invalid revision %d for %s", record.Revision, record.Key()).
			Component("ledger").
			Category(errors.CategoryInvariant).
			Build()
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current int
		err := tx.Model(&models.AttendanceRecord{}).
			Where("employee_id = ? AND shift_date = ?", record.EmployeeID, record.ShiftDate).
			Select("COALESCE(MAX(revision), 0)").
			Scan(&current).Error
		if err != nil {
			return err
		}
		if current != record.Revision-1 {
			return ErrRevisionConflict
		}

		record.ID = 0
		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now()
		}
		return tx.Create(record).Error
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRevisionConflict), errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.New(ErrRevisionConflict).
			Component("ledger").
			Category(errors.CategoryInvariant).
			Context("key", record.Key().String()).
			Context("revision", record.Revision).
			Build()
	default:
		return dbError("append record", err)
	}
}

func (l *SQLiteLedger) ListLatest(ctx context.Context, query LedgerQuery) ([]*models.AttendanceRecord, error) {
	q := l.db.WithContext(ctx).Model(&models.AttendanceRecord{}).Where(latestRevision)
	if query.EmployeeID != "" {
		q = q.Where("employee_id = ?", query.EmployeeID)
	}
	if query.FromDate != "" {
		q = q.Where("shift_date >= ?", query.FromDate)
	}
	if query.ToDate != "" {
		q = q.Where("shift_date <= ?", query.ToDate)
	}
	if query.OpenOnly {
		q = q.Where("closed = ?", false)
	}

	var records []*models.AttendanceRecord
	if err := q.Order("shift_date ASC, employee_id ASC").Find(&records).Error; err != nil {
		return nil, dbError("list latest records", err)
	}
	return records, nil
}
