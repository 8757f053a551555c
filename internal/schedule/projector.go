// Package schedule derives a per-subject schedule view from the normalized
// store by merging work logs, applications and direct staff assignments.
package schedule

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uniqn-app/staffsync/internal/models"
	"github.com/uniqn-app/staffsync/internal/store"
)

// MetricsRecorder receives projection observations; nil disables recording.
type MetricsRecorder interface {
	ObserveProjection(events int, duration time.Duration)
	ObserveDataQuality(entity string, reason string)
}

const dateLayout = "2006-01-02"

// Projector folds the subject's three schedule sources into one list of
// ScheduleEvents. Exactly one event survives per (event, date) pair: a
// work log supersedes a direct assignment, which supersedes an
// application. Supersession is sticky: once a work log has displaced an
// application for a pair, removing the work log leaves the pair empty
// rather than resurrecting the application.
type Projector struct {
	store   *store.Store
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time

	mu         sync.Mutex
	memo       map[string]*projection
	superseded map[string]map[mergeKey]struct{}
}

type projection struct {
	revisions [4]uint64
	events    []models.ScheduleEvent
}

// NewProjector wires the projector. logger and metrics may be nil.
func NewProjector(st *store.Store, logger *zap.Logger, metrics MetricsRecorder) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		store:      st,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
		memo:       make(map[string]*projection),
		superseded: make(map[string]map[mergeKey]struct{}),
	}
}

type mergeKey struct {
	eventID string
	date    string
}

// Project returns the subject's schedule with filters applied. The
// unfiltered projection is memoized against the revision vector of its
// contributing tables; any contributing change triggers a full relist.
func (p *Projector) Project(subjectID string, filters models.ScheduleFilters) []models.ScheduleEvent {
	events := p.project(subjectID)
	return applyFilters(events, filters)
}

func (p *Projector) revisionVector() [4]uint64 {
	return [4]uint64{
		p.store.Revision(models.EntityWorkLogs),
		p.store.Revision(models.EntityApplications),
		p.store.Revision(models.EntityStaff),
		p.store.Revision(models.EntityAttendanceRecords),
	}
}

func (p *Projector) project(subjectID string) []models.ScheduleEvent {
	vector := p.revisionVector()

	p.mu.Lock()
	if cached, ok := p.memo[subjectID]; ok && cached.revisions == vector {
		events := cached.events
		p.mu.Unlock()
		return events
	}
	p.mu.Unlock()

	start := p.now()
	events := p.build(subjectID)

	p.mu.Lock()
	p.memo[subjectID] = &projection{revisions: vector, events: events}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.ObserveProjection(len(events), p.now().Sub(start))
	}
	return events
}

func (p *Projector) build(subjectID string) []models.ScheduleEvent {
	merged := make(map[mergeKey]models.ScheduleEvent)

	// Work logs are collected first: every key they claim tombstones the
	// application for the same (event, date) pair, and the tombstones
	// persist across relists so removing a work log later leaves the pair
	// empty instead of resurrecting the application it displaced.
	attendance := p.attendanceFor(subjectID)
	workLogs := make(map[mergeKey]models.ScheduleEvent)
	for _, raw := range p.store.ByForeignKey(models.EntityWorkLogs, "staff_id", subjectID) {
		wl, ok := raw.(models.WorkLog)
		if !ok {
			continue
		}
		event, ok := p.fromWorkLog(wl, attendance)
		if !ok {
			continue
		}
		workLogs[mergeKey{eventID: event.EventID, date: event.Date}] = event
	}
	tombstones := p.supersede(subjectID, workLogs)

	// Applications first, then direct assignments, then work logs: later
	// writes to the same (event, date) key win, which encodes the
	// precedence order.
	for _, raw := range p.store.ByForeignKey(models.EntityApplications, "applicant_id", subjectID) {
		app, ok := raw.(models.Application)
		if !ok {
			continue
		}
		event, ok := p.fromApplication(app)
		if !ok {
			continue
		}
		key := mergeKey{eventID: event.EventID, date: event.Date}
		if _, gone := tombstones[key]; gone {
			continue
		}
		merged[key] = event
	}

	if raw, ok := p.store.ByID(models.EntityStaff, subjectID); ok {
		if staff, ok := raw.(models.Staff); ok && staff.PostingID != "" && staff.AssignedDate != "" {
			if event, ok := p.fromAssignment(staff); ok {
				merged[mergeKey{eventID: event.EventID, date: event.Date}] = event
			}
		}
	}

	for key, event := range workLogs {
		merged[key] = event
	}

	events := make([]models.ScheduleEvent, 0, len(merged))
	for _, event := range merged {
		events = append(events, event)
	}
	sortEvents(events)
	return events
}

// supersede merges the keys the subject's work logs currently claim into
// the subject's tombstone set and returns a snapshot of the whole set.
func (p *Projector) supersede(subjectID string, workLogs map[mergeKey]models.ScheduleEvent) map[mergeKey]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	set := p.superseded[subjectID]
	if set == nil {
		set = make(map[mergeKey]struct{})
		p.superseded[subjectID] = set
	}
	for key := range workLogs {
		set[key] = struct{}{}
	}
	snapshot := make(map[mergeKey]struct{}, len(set))
	for key := range set {
		snapshot[key] = struct{}{}
	}
	return snapshot
}

// Reset drops memoized projections and supersession state. Called when a
// session subscribes so one identity's history never bleeds into the next.
func (p *Projector) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.memo = make(map[string]*projection)
	p.superseded = make(map[string]map[mergeKey]struct{})
}

// attendanceFor indexes the subject's attendance records by work log id
// and, as a fallback, by event id.
func (p *Projector) attendanceFor(subjectID string) map[string]models.AttendanceRecord {
	byKey := make(map[string]models.AttendanceRecord)
	for _, raw := range p.store.ByForeignKey(models.EntityAttendanceRecords, "staff_id", subjectID) {
		rec, ok := raw.(models.AttendanceRecord)
		if !ok {
			continue
		}
		if rec.WorkLogID != "" {
			byKey["wl:"+rec.WorkLogID] = rec
		}
		byKey["ev:"+rec.EventID] = rec
	}
	return byKey
}

func (p *Projector) validDate(entity models.EntityType, id, date string) bool {
	if _, err := time.Parse(dateLayout, date); err != nil {
		p.logger.Warn("excluding record with unparseable date",
			zap.String("entity", string(entity)),
			zap.String("id", id),
			zap.String("date", date))
		if p.metrics != nil {
			p.metrics.ObserveDataQuality(string(entity), "unparseable_date")
		}
		return false
	}
	return true
}

func (p *Projector) fromWorkLog(wl models.WorkLog, attendance map[string]models.AttendanceRecord) (models.ScheduleEvent, bool) {
	if !p.validDate(models.EntityWorkLogs, wl.ID, wl.Date) {
		return models.ScheduleEvent{}, false
	}

	eventType := models.ScheduleConfirmed
	switch {
	case wl.Status == models.WorkLogCancelled:
		eventType = models.ScheduleCancelled
	case wl.Status == models.WorkLogCheckedOut && p.windowPast(wl.Date, wl.ScheduledEnd):
		eventType = models.ScheduleCompleted
	}

	status := attendanceStatus(wl, attendance)
	event := models.ScheduleEvent{
		ID:               "work_log-" + wl.ID,
		Type:             eventType,
		Date:             wl.Date,
		StartTime:        wl.ScheduledStart,
		EndTime:          wl.ScheduledEnd,
		EventID:          wl.EventID,
		Role:             wl.Role,
		Status:           status,
		SourceCollection: models.SourceWorkLogs,
		SourceID:         wl.ID,
	}
	p.decorate(&event)
	return event, true
}

// attendanceStatus prefers the linked attendance record; without one, the
// work log's own lifecycle stands in. Never derived from the clock.
func attendanceStatus(wl models.WorkLog, attendance map[string]models.AttendanceRecord) models.AttendanceStatus {
	if rec, ok := attendance["wl:"+wl.ID]; ok {
		return rec.Status
	}
	if rec, ok := attendance["ev:"+wl.EventID]; ok && rec.WorkLogID == "" {
		return rec.Status
	}
	switch wl.Status {
	case models.WorkLogCheckedIn:
		return models.AttendanceCheckedIn
	case models.WorkLogCheckedOut:
		return models.AttendanceCheckedOut
	default:
		return models.AttendanceNotStarted
	}
}

func (p *Projector) fromApplication(app models.Application) (models.ScheduleEvent, bool) {
	if !p.validDate(models.EntityApplications, app.ID, app.AssignedDate) {
		return models.ScheduleEvent{}, false
	}

	var eventType models.ScheduleEventType
	switch app.Status {
	case models.ApplicationPending:
		eventType = models.ScheduleApplied
	case models.ApplicationRejected:
		eventType = models.ScheduleCancelled
	default:
		eventType = models.ScheduleConfirmed
	}

	event := models.ScheduleEvent{
		ID:               "application-" + app.ID,
		Type:             eventType,
		Date:             app.AssignedDate,
		StartTime:        app.AssignedTime,
		EventID:          app.EventID,
		EventName:        app.PostTitle,
		Role:             app.Role,
		Status:           models.AttendanceNotStarted,
		SourceCollection: models.SourceApplications,
		SourceID:         app.ID,
	}
	p.decorate(&event)
	return event, true
}

func (p *Projector) fromAssignment(staff models.Staff) (models.ScheduleEvent, bool) {
	if !p.validDate(models.EntityStaff, staff.ID, staff.AssignedDate) {
		return models.ScheduleEvent{}, false
	}

	event := models.ScheduleEvent{
		ID:               "staff-" + staff.ID + "-" + staff.AssignedDate,
		Type:             models.ScheduleConfirmed,
		Date:             staff.AssignedDate,
		StartTime:        staff.AssignedTime,
		EventID:          staff.PostingID,
		Role:             staff.AssignedRole,
		Status:           models.AttendanceNotStarted,
		SourceCollection: models.SourceStaff,
		SourceID:         staff.ID,
	}
	p.decorate(&event)
	return event, true
}

// decorate fills event name and location from the posting when known.
func (p *Projector) decorate(event *models.ScheduleEvent) {
	raw, ok := p.store.ByID(models.EntityJobPostings, event.EventID)
	if !ok {
		return
	}
	posting, ok := raw.(models.JobPosting)
	if !ok {
		return
	}
	if event.EventName == "" {
		event.EventName = posting.Title
	}
	event.Location = posting.Location
}

// windowPast reports whether the shift's scheduled window has already
// ended. A missing end time falls back to end of day.
func (p *Projector) windowPast(date, endTime string) bool {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return false
	}
	end := day.Add(24 * time.Hour)
	if endTime != "" {
		if t, err := time.Parse("15:04", endTime); err == nil {
			end = day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
		}
	}
	return p.now().UTC().After(end)
}

// sortEvents orders by date asc, then start time asc with missing times
// last, then id for stability.
func sortEvents(events []models.ScheduleEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		si, sj := events[i].StartTime, events[j].StartTime
		if si != sj {
			if si == "" {
				return false
			}
			if sj == "" {
				return true
			}
			return si < sj
		}
		return events[i].ID < events[j].ID
	})
}

func applyFilters(events []models.ScheduleEvent, filters models.ScheduleFilters) []models.ScheduleEvent {
	if filters == (models.ScheduleFilters{}) {
		return events
	}
	term := strings.ToLower(filters.SearchTerm)
	out := make([]models.ScheduleEvent, 0, len(events))
	for _, event := range events {
		if filters.DateRange.Start != "" && event.Date < filters.DateRange.Start {
			continue
		}
		if filters.DateRange.End != "" && event.Date > filters.DateRange.End {
			continue
		}
		if filters.Type != nil && event.Type != *filters.Type {
			continue
		}
		if filters.EventID != "" && event.EventID != filters.EventID {
			continue
		}
		if term != "" && !matchesTerm(event, term) {
			continue
		}
		out = append(out, event)
	}
	return out
}

func matchesTerm(event models.ScheduleEvent, term string) bool {
	for _, field := range []string{event.EventName, event.Location, event.Role} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// Stats summarizes the subject's filtered projection. Hours come from
// attendance check-in/out pairs, not scheduled windows.
func (p *Projector) Stats(subjectID string, filters models.ScheduleFilters) models.ScheduleStats {
	events := p.Project(subjectID, filters)
	today := p.now().UTC().Format(dateLayout)

	stats := models.ScheduleStats{Total: len(events)}
	for _, event := range events {
		switch event.Type {
		case models.ScheduleCompleted:
			stats.Completed++
		case models.ScheduleConfirmed:
			stats.Confirmed++
		}
		if event.Date >= today && (event.Type == models.ScheduleConfirmed || event.Type == models.ScheduleApplied) {
			stats.Upcoming++
		}
	}

	for _, raw := range p.store.ByForeignKey(models.EntityAttendanceRecords, "staff_id", subjectID) {
		rec, ok := raw.(models.AttendanceRecord)
		if !ok || rec.CheckInTime == nil || rec.CheckOutTime == nil {
			continue
		}
		if d := rec.CheckOutTime.Sub(*rec.CheckInTime); d > 0 {
			stats.HoursWorked += d.Hours()
		}
	}
	return stats
}
