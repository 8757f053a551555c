package models

// EntityType names one synchronized collection in the backing store.
type EntityType string

const (
	EntityStaff             EntityType = "staff"
	EntityWorkLogs          EntityType = "work_logs"
	EntityApplications      EntityType = "applications"
	EntityAttendanceRecords EntityType = "attendance_records"
	EntityJobPostings       EntityType = "job_postings"
	EntityAnnouncements     EntityType = "system_announcements"
)

// EntityTypes lists every synchronized collection in a stable order.
var EntityTypes = []EntityType{
	EntityStaff,
	EntityWorkLogs,
	EntityApplications,
	EntityAttendanceRecords,
	EntityJobPostings,
	EntityAnnouncements,
}

// ChangeOp is the kind of mutation carried by a ChangeEvent.
type ChangeOp string

const (
	OpAdd    ChangeOp = "add"
	OpModify ChangeOp = "modify"
	OpRemove ChangeOp = "remove"

	// OpSnapshot marks the end of a watch's initial snapshot. It carries
	// no record; consumers use it to tell "empty collection" apart from
	// "snapshot still in flight".
	OpSnapshot ChangeOp = "snapshot"
)

// ChangeEvent is the wire unit between a source watch and the sync manager.
// Record is nil for removes. Seq is monotonically increasing per stream.
type ChangeEvent struct {
	Op     ChangeOp   `json:"op"`
	Entity EntityType `json:"entity"`
	ID     string     `json:"id"`
	Record any        `json:"record,omitempty"`
	Seq    uint64     `json:"seq"`
}
