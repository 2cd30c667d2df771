package models

import "time"

// Session is the half-day bucket assigned at checkout time.
type Session string

const (
	SessionOne Session = "session1"
	SessionTwo Session = "session2"
)

// Valid returns true when the session is a supported value.
func (s Session) Valid() bool {
	return s == SessionOne || s == SessionTwo
}

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
)

// CheckState is the evaluation result for a register-number submission.
type CheckState string

const (
	// CheckStateNoRecord means the student has no record for the day.
	CheckStateNoRecord CheckState = "NO_RECORD"
	// CheckStateOpenPresent means an open record exists; a second check-in is rejected.
	CheckStateOpenPresent CheckState = "OPEN_PRESENT"
	// CheckStateClosedReopenable means the latest record is closed; a fresh
	// check-in creates a new row (re-registration).
	CheckStateClosedReopenable CheckState = "CLOSED_REOPENABLE"
)

// AttendanceRecord is one check-in event. A NULL CheckOutTime marks the
// student as currently present; the session is assigned only at checkout.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	Date         time.Time        `db:"date" json:"date"`
	CheckInTime  time.Time        `db:"check_in_time" json:"check_in_time"`
	CheckOutTime *time.Time       `db:"check_out_time" json:"check_out_time,omitempty"`
	Session      *Session         `db:"session" json:"session,omitempty"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	Status       AttendanceStatus `db:"status" json:"status"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// Open reports whether the record has no checkout yet.
func (r AttendanceRecord) Open() bool {
	return r.CheckOutTime == nil
}

// AttendanceEntry joins a record with its student's identity for listings.
type AttendanceEntry struct {
	AttendanceRecord
	StudentName    string `db:"student_name" json:"student_name"`
	RegisterNumber string `db:"register_number" json:"register_number"`
	Department     string `db:"department" json:"department"`
}

// AttendanceFilter scopes record listings.
type AttendanceFilter struct {
	Date      *time.Time
	DateFrom  *time.Time
	DateTo    *time.Time
	StudentID string
	OpenOnly  bool
	Page      int
	PageSize  int
}
