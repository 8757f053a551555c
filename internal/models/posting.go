package models

import "time"

// PostingStatus marks whether a posting still accepts applications.
type PostingStatus string

const (
	PostingOpen   PostingStatus = "open"
	PostingClosed PostingStatus = "closed"
)

// JobPosting is an event a staffing organization recruits for.
// StartDate/EndDate are "YYYY-MM-DD".
type JobPosting struct {
	ID            string        `db:"id" json:"id"`
	Title         string        `db:"title" json:"title"`
	Location      string        `db:"location" json:"location"`
	Status        PostingStatus `db:"status" json:"status"`
	RequiredRoles []string      `db:"required_roles" json:"required_roles,omitempty"`
	StartDate     string        `db:"start_date" json:"start_date"`
	EndDate       string        `db:"end_date" json:"end_date,omitempty"`
	CreatedBy     string        `db:"created_by" json:"created_by"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}
