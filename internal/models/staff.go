package models

import "time"

// StaffStatus tracks a staff member's lifecycle within an organization.
type StaffStatus string

const (
	StaffStatusActive   StaffStatus = "active"
	StaffStatusInactive StaffStatus = "inactive"
)

// Staff represents a worker profile. The Assigned* fields make a staff row a
// direct schedule source: an employer can assign a shift without the worker
// having applied for it.
type Staff struct {
	ID           string      `db:"id" json:"id"`
	Name         string      `db:"name" json:"name"`
	Role         string      `db:"role" json:"role"`
	Status       StaffStatus `db:"status" json:"status"`
	PostingID    string      `db:"posting_id" json:"posting_id,omitempty"`
	AssignedRole string      `db:"assigned_role" json:"assigned_role,omitempty"`
	AssignedDate string      `db:"assigned_date" json:"assigned_date,omitempty"`
	AssignedTime string      `db:"assigned_time" json:"assigned_time,omitempty"`
	ManagerID    string      `db:"manager_id" json:"manager_id,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}
