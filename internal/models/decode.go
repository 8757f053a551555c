package models

import (
	"encoding/json"
	"fmt"
)

// DecodeRecord converts a raw document into the typed model for its entity
// type. Unknown document fields are ignored; unknown entity types are an
// error.
func DecodeRecord(entity EntityType, doc map[string]any) (any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s document: %w", entity, err)
	}

	var target any
	switch entity {
	case EntityStaff:
		target = &Staff{}
	case EntityWorkLogs:
		target = &WorkLog{}
	case EntityApplications:
		target = &Application{}
	case EntityAttendanceRecords:
		target = &AttendanceRecord{}
	case EntityJobPostings:
		target = &JobPosting{}
	case EntityAnnouncements:
		target = &SystemAnnouncement{}
	default:
		return nil, fmt.Errorf("unknown entity type %q", entity)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", entity, err)
	}

	switch v := target.(type) {
	case *Staff:
		return *v, nil
	case *WorkLog:
		return *v, nil
	case *Application:
		return *v, nil
	case *AttendanceRecord:
		return *v, nil
	case *JobPosting:
		return *v, nil
	case *SystemAnnouncement:
		return *v, nil
	}
	return nil, fmt.Errorf("unknown entity type %q", entity)
}
