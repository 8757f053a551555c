package models

import "time"

// AnnouncementPriority defines ordering for system announcements.
type AnnouncementPriority string

const (
	AnnouncementPriorityLow    AnnouncementPriority = "low"
	AnnouncementPriorityNormal AnnouncementPriority = "normal"
	AnnouncementPriorityHigh   AnnouncementPriority = "high"
)

// SystemAnnouncement is an operator-authored broadcast message. Visibility
// is a function of the stored window, never a stored flag of its own.
type SystemAnnouncement struct {
	ID            string               `db:"id" json:"id"`
	Title         string               `db:"title" json:"title"`
	Content       string               `db:"content" json:"content"`
	Priority      AnnouncementPriority `db:"priority" json:"priority"`
	StartDate     time.Time            `db:"start_date" json:"start_date"`
	EndDate       *time.Time           `db:"end_date" json:"end_date,omitempty"`
	IsActive      bool                 `db:"is_active" json:"is_active"`
	ViewCount     int                  `db:"view_count" json:"view_count"`
	CreatedBy     string               `db:"created_by" json:"created_by"`
	CreatedByName string               `db:"created_by_name" json:"created_by_name,omitempty"`
	CreatedAt     time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time            `db:"updated_at" json:"updated_at"`
}

// VisibleAt reports whether the announcement should be shown at the given
// instant: active, started, and not yet past its optional end date.
func (a SystemAnnouncement) VisibleAt(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if now.Before(a.StartDate) {
		return false
	}
	if a.EndDate != nil && now.After(*a.EndDate) {
		return false
	}
	return true
}

// AnnouncementFilters narrows an announcement feed.
type AnnouncementFilters struct {
	ActiveOnly bool
	Priority   *AnnouncementPriority
}
