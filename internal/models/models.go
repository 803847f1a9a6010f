// Package models contains data structures for the application
package models

import (
	"slices"
	"time"
)

// DateLayout is the wire and storage format of shift dates
const DateLayout = "2006-01-02"

// AllEmployees is the EmployeeID of an analytics window spanning every employee
const AllEmployees = "all"

// EnrollmentStatus is the directory state of an employee
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentSuspended EnrollmentStatus = "suspended"
)

// Employee represents an enrolled employee in the identity directory
type Employee struct {
	ID             string
	Name           string
	TelegramChatID int64
	Status         EnrollmentStatus
	Schedule       []ShiftSchedule
}

// IsActive reports whether detections for the employee may be accepted
func (e *Employee) IsActive() bool {
	return e != nil && e.Status == EnrollmentActive
}

// RawDetection is the payload a camera collaborator sends for one recognized face
type RawDetection struct {
	EmployeeID string    `json:"employee_id"`
	CameraID   string    `json:"camera_id"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	FrameRef   string    `json:"frame_ref"`
}

// MatchEvent is an accepted detection. It is written once and never modified.
type MatchEvent struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	EmployeeID string    `gorm:"index:idx_event_employee_time;not null" json:"employee_id"`
	CameraID   string    `gorm:"not null" json:"camera_id"`
	Timestamp  time.Time `gorm:"index:idx_event_employee_time;not null" json:"timestamp"`
	Confidence float64   `json:"confidence"`
	FrameRef   string    `json:"frame_ref"`
	ReceivedAt time.Time `json:"received_at"`
}

// Ref returns the reference stored on attendance records
func (e *MatchEvent) Ref() EventRef {
	return EventRef{ID: e.ID, CameraID: e.CameraID, Timestamp: e.Timestamp}
}

// AttendanceStatus is the derived state of an attendance record
type AttendanceStatus string

const (
	StatusPresent    AttendanceStatus = "present"
	StatusLate       AttendanceStatus = "late"
	StatusAbsent     AttendanceStatus = "absent"
	StatusPartial    AttendanceStatus = "partial"
	StatusUnverified AttendanceStatus = "unverified"
)

// RevisionReason records why a record revision was appended
type RevisionReason string

const (
	ReasonFirstSeen    RevisionReason = "first-seen"
	ReasonEvent        RevisionReason = "event"
	ReasonClosed       RevisionReason = "closed"
	ReasonForcedAbsent RevisionReason = "forced-absent"
	ReasonLateEvent    RevisionReason = "late-event"
	ReasonRebuild      RevisionReason = "rebuild"
)

// EventRef points at a MatchEvent from an attendance record
type EventRef struct {
	ID        string    `json:"id"`
	CameraID  string    `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`
}

// compareRefs orders by timestamp, then camera id, then event id
func compareRefs(a, b EventRef) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if a.CameraID != b.CameraID {
		if a.CameraID < b.CameraID {
			return -1
		}
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// EventRefs is an ordered set of event references
type EventRefs []EventRef

// Contains reports whether an event id is already referenced
func (r EventRefs) Contains(id string) bool {
	return slices.ContainsFunc(r, func(ref EventRef) bool { return ref.ID == id })
}

// Insert returns a copy with ref placed at its sorted position
func (r EventRefs) Insert(ref EventRef) EventRefs {
	out := slices.Clone(r)
	i, _ := slices.BinarySearchFunc(out, ref, compareRefs)
	return slices.Insert(out, i, ref)
}

// Sorted returns a sorted copy
func (r EventRefs) Sorted() EventRefs {
	out := slices.Clone(r)
	slices.SortFunc(out, compareRefs)
	return out
}

// AttendanceRecord is one revision of the attendance state of an employee for a shift.
// The row with the highest Revision for (EmployeeID, ShiftDate) is the current record.
type AttendanceRecord struct {
	ID               uint             `gorm:"primaryKey" json:"-"`
	EmployeeID       string           `gorm:"uniqueIndex:idx_record_revision;not null" json:"employee_id"`
	ShiftDate        string           `gorm:"uniqueIndex:idx_record_revision;size:10;not null" json:"shift_date"`
	Revision         int              `gorm:"uniqueIndex:idx_record_revision;not null" json:"revision"`
	FirstSeenAt      *time.Time       `json:"first_seen_at,omitempty"`
	LastSeenAt       *time.Time       `json:"last_seen_at,omitempty"`
	Status           AttendanceStatus `gorm:"size:16;not null" json:"status"`
	ExpectedStart    *time.Time       `json:"expected_start,omitempty"`
	ExpectedEnd      *time.Time       `json:"expected_end,omitempty"`
	SupportingEvents EventRefs        `gorm:"serializer:json" json:"supporting_events"`
	Closed           bool             `json:"closed"`
	ForcedAbsent     bool             `json:"forced_absent"`
	Reason           RevisionReason   `gorm:"size:16" json:"reason"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Key returns the shift key of the record
func (r *AttendanceRecord) Key() ShiftKey {
	return ShiftKey{EmployeeID: r.EmployeeID, ShiftDate: r.ShiftDate}
}

// SupportingEventIDs returns the ordered ids of the events backing the record
func (r *AttendanceRecord) SupportingEventIDs() []string {
	ids := make([]string, 0, len(r.SupportingEvents))
	for _, ref := range r.SupportingEvents {
		ids = append(ids, ref.ID)
	}
	return ids
}

// Window returns the shift window the record was evaluated against, if any
func (r *AttendanceRecord) Window() *ShiftWindow {
	if r.ExpectedStart == nil || r.ExpectedEnd == nil {
		return nil
	}
	return &ShiftWindow{
		EmployeeID: r.EmployeeID,
		ShiftDate:  r.ShiftDate,
		Start:      *r.ExpectedStart,
		End:        *r.ExpectedEnd,
	}
}

// Next returns a copy prepared as the following revision
func (r *AttendanceRecord) Next(reason RevisionReason) *AttendanceRecord {
	next := *r
	next.ID = 0
	next.Revision = r.Revision + 1
	next.Reason = reason
	next.CreatedAt = time.Time{}
	next.SupportingEvents = slices.Clone(r.SupportingEvents)
	return &next
}

// SameState reports whether two revisions carry identical attendance state
func (r *AttendanceRecord) SameState(o *AttendanceRecord) bool {
	return r.Status == o.Status &&
		r.Closed == o.Closed &&
		r.ForcedAbsent == o.ForcedAbsent &&
		timePtrEqual(r.FirstSeenAt, o.FirstSeenAt) &&
		timePtrEqual(r.LastSeenAt, o.LastSeenAt) &&
		slices.Equal(r.SupportingEventIDs(), o.SupportingEventIDs())
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// AlertKind is the type of an absence alert
type AlertKind string

const (
	AlertAbsent         AlertKind = "absent"
	AlertLate           AlertKind = "late"
	AlertEarlyDeparture AlertKind = "early-departure"
)

// AbsenceAlert is raised by the evaluator. It is unique per (employee, shift date, kind).
type AbsenceAlert struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	EmployeeID        string     `gorm:"uniqueIndex:idx_alert_key;not null" json:"employee_id"`
	ShiftDate         string     `gorm:"uniqueIndex:idx_alert_key;size:10;not null" json:"shift_date"`
	Kind              AlertKind  `gorm:"uniqueIndex:idx_alert_key;size:16;not null" json:"kind"`
	RaisedAt          time.Time  `json:"raised_at"`
	Acknowledged      bool       `gorm:"index" json:"acknowledged"`
	AcknowledgedAt    *time.Time `json:"acknowledged_at,omitempty"`
	Delivered         bool       `gorm:"index" json:"delivered"`
	DeliveryAttempts  int        `json:"delivery_attempts"`
	LastDeliveryError string     `json:"last_delivery_error,omitempty"`
}

// AnalyticsWindow aggregates latest record revisions over a date range
type AnalyticsWindow struct {
	EmployeeID      string        `json:"employee_id"`
	StartDate       string        `json:"start_date"`
	EndDate         string        `json:"end_date"`
	PresentCount    int           `json:"present_count"`
	LateCount       int           `json:"late_count"`
	AbsentCount     int           `json:"absent_count"`
	PartialCount    int           `json:"partial_count"`
	UnverifiedCount int           `json:"unverified_count"`
	TotalRecords    int           `json:"total_records"`
	AvgArrivalDelta time.Duration `json:"avg_arrival_delta"`
}

// RosterEntry is one employee line of a daily attendance roster
type RosterEntry struct {
	EmployeeID  string           `json:"employee_id"`
	Name        string           `json:"name"`
	Status      AttendanceStatus `json:"status,omitempty"`
	FirstSeenAt *time.Time       `json:"first_seen_at,omitempty"`
}

// DailyRoster lists who attended a date and who did not
type DailyRoster struct {
	Date    string        `json:"date"`
	Present []RosterEntry `json:"present"`
	Absent  []RosterEntry `json:"absent"`
}

// RejectReason explains why a detection was not accepted
type RejectReason string

const (
	RejectLowConfidence        RejectReason = "low-confidence"
	RejectUnknownIdentity      RejectReason = "unknown-identity"
	RejectStaleTimestamp       RejectReason = "stale-timestamp"
	RejectMalformed            RejectReason = "malformed"
	RejectDirectoryUnavailable RejectReason = "directory-unavailable"
)

// DeadLetter preserves work that could not be completed for manual inspection
type DeadLetter struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	Reason    RejectReason `gorm:"size:32;index" json:"reason"`
	Stage     string       `gorm:"size:16" json:"stage"`
	Payload   string       `json:"payload"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"last_error"`
	CreatedAt time.Time    `json:"created_at"`
}
