package store

import "github.com/uniqn-app/staffsync/internal/models"

// foreignKey extracts an indexed field's value from a typed record.
// Unknown record shapes or fields yield "", which is never indexed.
func foreignKey(record any, field string) string {
	switch r := record.(type) {
	case models.WorkLog:
		switch field {
		case "staff_id":
			return r.StaffID
		case "event_id":
			return r.EventID
		}
	case models.Application:
		switch field {
		case "applicant_id":
			return r.ApplicantID
		case "event_id":
			return r.EventID
		}
	case models.AttendanceRecord:
		switch field {
		case "staff_id":
			return r.StaffID
		case "event_id":
			return r.EventID
		}
	case models.Staff:
		if field == "posting_id" {
			return r.PostingID
		}
	}
	return ""
}
