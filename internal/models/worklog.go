package models

import "time"

// WorkLogStatus tracks a shift's attendance lifecycle. Transitions are
// monotonic: scheduled -> checked_in -> checked_out; cancelled is terminal.
type WorkLogStatus string

const (
	WorkLogScheduled  WorkLogStatus = "scheduled"
	WorkLogCheckedIn  WorkLogStatus = "checked_in"
	WorkLogCheckedOut WorkLogStatus = "checked_out"
	WorkLogCancelled  WorkLogStatus = "cancelled"
)

// WorkLog is a confirmed shift for a staff member on a specific event date.
// Date is "YYYY-MM-DD"; times are "HH:MM" local strings.
type WorkLog struct {
	ID             string        `db:"id" json:"id"`
	StaffID        string        `db:"staff_id" json:"staff_id"`
	EventID        string        `db:"event_id" json:"event_id"`
	Date           string        `db:"date" json:"date"`
	ScheduledStart string        `db:"scheduled_start" json:"scheduled_start,omitempty"`
	ScheduledEnd   string        `db:"scheduled_end" json:"scheduled_end,omitempty"`
	ActualStart    string        `db:"actual_start" json:"actual_start,omitempty"`
	ActualEnd      string        `db:"actual_end" json:"actual_end,omitempty"`
	Role           string        `db:"role" json:"role"`
	Status         WorkLogStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}
