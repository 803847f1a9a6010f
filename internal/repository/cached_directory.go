package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"face-attendance/internal/models"
)

const activeEmployeesKey = "active"

// CachedDirectory memoizes successful directory answers. Failures are never cached,
// so a transient outage does not outlive itself.
type CachedDirectory struct {
	next  Directory
	cache *cache.Cache
	loc   *time.Location
}

// NewCachedDirectory wraps next with an expiring cache
func NewCachedDirectory(next Directory, ttl time.Duration, loc *time.Location) *CachedDirectory {
	return &CachedDirectory{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
		loc:   loc,
	}
}

func employeeKey(id string) string { return "emp:" + id }

func (d *CachedDirectory) Lookup(ctx context.Context, employeeID string) (*models.Employee, error) {
	if v, ok := d.cache.Get(employeeKey(employeeID)); ok {
		return v.(*models.Employee), nil
	}
	emp, err := d.next.Lookup(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(employeeKey(employeeID), emp)
	return emp, nil
}

// ScheduleFor resolves through the cached employee so that shift candidates for
// neighbouring dates cost a single directory round trip.
func (d *CachedDirectory) ScheduleFor(ctx context.Context, employeeID string, date time.Time) (*models.ShiftWindow, error) {
	emp, err := d.Lookup(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return models.WindowFor(emp, date, d.loc), nil
}

func (d *CachedDirectory) ListActive(ctx context.Context) ([]*models.Employee, error) {
	if v, ok := d.cache.Get(activeEmployeesKey); ok {
		return v.([]*models.Employee), nil
	}
	employees, err := d.next.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(activeEmployeesKey, employees)
	for _, emp := range employees {
		d.cache.SetDefault(employeeKey(emp.ID), emp)
	}
	return employees, nil
}

func (d *CachedDirectory) LookupByTelegramChat(ctx context.Context, chatID int64) (*models.Employee, error) {
	key := fmt.Sprintf("chat:%d", chatID)
	if v, ok := d.cache.Get(key); ok {
		return v.(*models.Employee), nil
	}
	emp, err := d.next.LookupByTelegramChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(key, emp)
	return emp, nil
}

// Invalidate drops every cached entry
func (d *CachedDirectory) Invalidate() {
	d.cache.Flush()
}
