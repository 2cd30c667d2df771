package models

// SessionRecord is one completed (or open) record inside a day aggregate,
// with its display duration precomputed.
type SessionRecord struct {
	AttendanceEntry
	Duration string `json:"duration,omitempty"`
}

// DaySessionAggregate groups one calendar day's records into session buckets.
// Derived at read time, never persisted.
type DaySessionAggregate struct {
	Date             string          `json:"date"`
	Session1         []SessionRecord `json:"session1"`
	Session2         []SessionRecord `json:"session2"`
	Present          []SessionRecord `json:"present"`
	Session1Count    int             `json:"session1_count"`
	Session2Count    int             `json:"session2_count"`
	PresentCount     int             `json:"present_count"`
	TotalStudents    int             `json:"total_students"`
	CompletedRecords int             `json:"completed_records"`
}
