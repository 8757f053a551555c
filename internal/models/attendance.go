package models

import "time"

// AttendanceStatus is the check-in state of a shift. It only ever moves
// forward: not_started -> checked_in -> checked_out.
type AttendanceStatus string

const (
	AttendanceNotStarted AttendanceStatus = "not_started"
	AttendanceCheckedIn  AttendanceStatus = "checked_in"
	AttendanceCheckedOut AttendanceStatus = "checked_out"
)

// AttendanceRecord is the authoritative check-in/out record for a shift.
// Derived views read Status from here, never from clock comparisons.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	StaffID      string           `db:"staff_id" json:"staff_id"`
	EventID      string           `db:"event_id" json:"event_id"`
	WorkLogID    string           `db:"work_log_id" json:"work_log_id,omitempty"`
	Status       AttendanceStatus `db:"status" json:"status"`
	CheckInTime  *time.Time       `db:"check_in_time" json:"check_in_time,omitempty"`
	CheckOutTime *time.Time       `db:"check_out_time" json:"check_out_time,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}
