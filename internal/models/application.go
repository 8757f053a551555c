package models

import "time"

// ApplicationStatus tracks an application's review state.
type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationConfirmed ApplicationStatus = "confirmed"
	ApplicationRejected  ApplicationStatus = "rejected"
)

// Application is a staff member's request to work a posted shift.
// AssignedDate is "YYYY-MM-DD"; AssignedTime is "HH:MM".
type Application struct {
	ID           string            `db:"id" json:"id"`
	ApplicantID  string            `db:"applicant_id" json:"applicant_id"`
	EventID      string            `db:"event_id" json:"event_id"`
	PostTitle    string            `db:"post_title" json:"post_title"`
	Role         string            `db:"role" json:"role"`
	AssignedDate string            `db:"assigned_date" json:"assigned_date"`
	AssignedTime string            `db:"assigned_time" json:"assigned_time,omitempty"`
	Status       ApplicationStatus `db:"status" json:"status"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}
