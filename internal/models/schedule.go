package models

// ScheduleEventType classifies a projected schedule entry.
type ScheduleEventType string

const (
	ScheduleApplied   ScheduleEventType = "applied"
	ScheduleConfirmed ScheduleEventType = "confirmed"
	ScheduleCompleted ScheduleEventType = "completed"
	ScheduleCancelled ScheduleEventType = "cancelled"
)

// SourceCollection names which synchronized collection produced an event.
type SourceCollection string

const (
	SourceWorkLogs     SourceCollection = "work_logs"
	SourceApplications SourceCollection = "applications"
	SourceStaff        SourceCollection = "staff"
)

// ScheduleEvent is a derived view row, never persisted. Exactly one event
// exists per (event, date) pair for a subject; a work log supersedes an
// application or direct assignment for the same pair.
type ScheduleEvent struct {
	ID               string            `json:"id"`
	Type             ScheduleEventType `json:"type"`
	Date             string            `json:"date"`
	StartTime        string            `json:"start_time,omitempty"`
	EndTime          string            `json:"end_time,omitempty"`
	EventID          string            `json:"event_id"`
	EventName        string            `json:"event_name,omitempty"`
	Location         string            `json:"location,omitempty"`
	Role             string            `json:"role,omitempty"`
	Status           AttendanceStatus  `json:"status"`
	SourceCollection SourceCollection  `json:"source_collection"`
	SourceID         string            `json:"source_id"`
}

// DateRange bounds a schedule query, inclusive on both ends.
// Empty strings mean unbounded.
type DateRange struct {
	Start string `json:"start" form:"start"`
	End   string `json:"end" form:"end"`
}

// ScheduleFilters narrows a projected schedule.
type ScheduleFilters struct {
	DateRange  DateRange          `json:"date_range"`
	SearchTerm string             `json:"search_term" form:"q"`
	Type       *ScheduleEventType `json:"type,omitempty" form:"type"`
	EventID    string             `json:"event_id" form:"event_id"`
}

// ScheduleStats summarizes a projection for dashboards.
type ScheduleStats struct {
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Confirmed   int     `json:"confirmed"`
	Upcoming    int     `json:"upcoming"`
	HoursWorked float64 `json:"hours_worked"`
}
