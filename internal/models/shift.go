package models

import (
	"fmt"
	"time"
)

// ShiftSchedule is one weekly schedule entry. Start and End use the "15:04" layout;
// an End at or before Start means the shift ends on the following day.
type ShiftSchedule struct {
	Weekday time.Weekday `json:"weekday" yaml:"weekday"`
	Start   string       `json:"start" yaml:"start"`
	End     string       `json:"end" yaml:"end"`
}

// ShiftWindow is a schedule entry materialized on a concrete date
type ShiftWindow struct {
	EmployeeID string    `json:"employee_id"`
	ShiftDate  string    `json:"shift_date"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Key returns the shift key of the window
func (w *ShiftWindow) Key() ShiftKey {
	return ShiftKey{EmployeeID: w.EmployeeID, ShiftDate: w.ShiftDate}
}

// ShiftKey identifies the single attendance record of an employee for a shift date
type ShiftKey struct {
	EmployeeID string
	ShiftDate  string
}

func (k ShiftKey) String() string {
	return k.EmployeeID + "/" + k.ShiftDate
}

// ParseClock parses an "HH:MM" or "HH:MM:SS" clock value into an offset from midnight
func ParseClock(value string) (time.Duration, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, err := time.Parse(layout, value)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid clock value %q", value)
}

// Window materializes the entry on date in loc. It returns false when the weekday does
// not match or the clock values cannot be parsed.
func (s ShiftSchedule) Window(employeeID string, date time.Time, loc *time.Location) (*ShiftWindow, bool) {
	day := StartOfDay(date, loc)
	if day.Weekday() != s.Weekday {
		return nil, false
	}
	start, err := ParseClock(s.Start)
	if err != nil {
		return nil, false
	}
	end, err := ParseClock(s.End)
	if err != nil {
		return nil, false
	}

	startAt := clockOn(day, start)
	endAt := clockOn(day, end)
	if !endAt.After(startAt) {
		endAt = clockOn(day.AddDate(0, 0, 1), end)
	}

	return &ShiftWindow{
		EmployeeID: employeeID,
		ShiftDate:  day.Format(DateLayout),
		Start:      startAt,
		End:        endAt,
	}, true
}

// WindowFor returns the shift window of the employee on date, or nil when none is
// scheduled. Multiple entries on one weekday resolve to the earliest start.
func WindowFor(emp *Employee, date time.Time, loc *time.Location) *ShiftWindow {
	var best *ShiftWindow
	for _, entry := range emp.Schedule {
		w, ok := entry.Window(emp.ID, date, loc)
		if !ok {
			continue
		}
		if best == nil || w.Start.Before(best.Start) {
			best = w
		}
	}
	return best
}

// StartOfDay returns local midnight of t in loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ParseDate parses a shift date in loc
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, loc)
}

// clockOn resolves a wall clock offset on day, staying correct across DST changes
func clockOn(day time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	s := int(offset % time.Minute / time.Second)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, 0, day.Location())
}
