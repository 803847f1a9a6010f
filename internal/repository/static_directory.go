package repository

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"face-attendance/internal/models"
)

// DirectoryFile is the YAML layout of an offline directory export
type DirectoryFile struct {
	Employees []DirectoryEntry `yaml:"employees"`
}

// DirectoryEntry is one employee of a DirectoryFile
type DirectoryEntry struct {
	ID             string                 `yaml:"id"`
	Name           string                 `yaml:"name"`
	TelegramChatID int64                  `yaml:"telegram_chat_id"`
	Status         string                 `yaml:"status"`
	Schedule       []models.ShiftSchedule `yaml:"schedule"`
}

// LoadDirectoryFile reads and validates a YAML directory export
func LoadDirectoryFile(path string) (*DirectoryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	var file DirectoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse directory file: %w", err)
	}

	seen := make(map[string]bool, len(file.Employees))
	for i, e := range file.Employees {
		if e.ID == "" {
			return nil, fmt.Errorf("employee #%d has no id", i+1)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate employee id %q", e.ID)
		}
		seen[e.ID] = true
		for _, s := range e.Schedule {
			if _, err := models.ParseClock(s.Start); err != nil {
				return nil, fmt.Errorf("employee %s: %w", e.ID, err)
			}
			if _, err := models.ParseClock(s.End); err != nil {
				return nil, fmt.Errorf("employee %s: %w", e.ID, err)
			}
		}
	}
	return &file, nil
}

// Directory converts the file entries to directory models
func (f *DirectoryFile) Directory() []*models.Employee {
	out := make([]*models.Employee, 0, len(f.Employees))
	for _, e := range f.Employees {
		status := models.EnrollmentStatus(e.Status)
		if status == "" {
			status = models.EnrollmentActive
		}
		out = append(out, &models.Employee{
			ID:             e.ID,
			Name:           e.Name,
			TelegramChatID: e.TelegramChatID,
			Status:         status,
			Schedule:       slices.Clone(e.Schedule),
		})
	}
	return out
}

// StaticDirectory serves a fixed employee list. It backs offline replays and tests.
type StaticDirectory struct {
	employees map[string]*models.Employee
	order     []string
	loc       *time.Location
}

func NewStaticDirectory(employees []*models.Employee, loc *time.Location) *StaticDirectory {
	d := &StaticDirectory{employees: make(map[string]*models.Employee, len(employees)), loc: loc}
	for _, e := range employees {
		if _, ok := d.employees[e.ID]; !ok {
			d.order = append(d.order, e.ID)
		}
		d.employees[e.ID] = e
	}
	return d
}

func (d *StaticDirectory) Lookup(_ context.Context, employeeID string) (*models.Employee, error) {
	emp, ok := d.employees[employeeID]
	if !ok {
		return nil, ErrNotFound
	}
	return emp, nil
}

func (d *StaticDirectory) ScheduleFor(ctx context.Context, employeeID string, date time.Time) (*models.ShiftWindow, error) {
	emp, err := d.Lookup(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return models.WindowFor(emp, date, d.loc), nil
}

func (d *StaticDirectory) ListActive(context.Context) ([]*models.Employee, error) {
	var out []*models.Employee
	for _, id := range d.order {
		if emp := d.employees[id]; emp.IsActive() {
			out = append(out, emp)
		}
	}
	return out, nil
}

func (d *StaticDirectory) LookupByTelegramChat(_ context.Context, chatID int64) (*models.Employee, error) {
	for _, id := range d.order {
		if emp := d.employees[id]; emp.TelegramChatID == chatID && chatID != 0 {
			return emp, nil
		}
	}
	return nil, ErrNotFound
}
