package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/attendhq/attendance-api/internal/models"
)

// OpenRecordConstraint names the partial unique index that allows at most one
// open record per student per day. A 23505 on this constraint means a
// concurrent writer already checked the student in.
const OpenRecordConstraint = "attendance_records_open_per_day"

// AttendanceRepository handles persistence for attendance records. Every
// query runs under the configured timeout.
type AttendanceRepository struct {
	db           *sqlx.DB
	queryTimeout time.Duration
}

// NewAttendanceRepository constructs the repository. A non-positive timeout
// falls back to the package default.
func NewAttendanceRepository(db *sqlx.DB, queryTimeout time.Duration) *AttendanceRepository {
	return &AttendanceRepository{db: db, queryTimeout: queryTimeout}
}

const entryColumns = `a.id, a.student_id, a.date, a.check_in_time, a.check_out_time, a.session, a.notes, a.status, a.created_at, a.updated_at,
        s.name AS student_name, s.register_number, s.department`

// List returns attendance entries joined with student identity.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceEntry, int, error) {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	base := "FROM attendance_records a JOIN students s ON s.id = a.student_id"
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("a.date = $%d", len(args)+1))
		args = append(args, filter.Date.Format("2006-01-02"))
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, filter.DateFrom.Format("2006-01-02"))
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, filter.DateTo.Format("2006-01-02"))
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.OpenOnly {
		conditions = append(conditions, "a.check_out_time IS NULL")
	}

	whereClause := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 100
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY a.check_in_time DESC LIMIT %d OFFSET %d`,
		entryColumns, base, whereClause, size, offset)

	var entries []models.AttendanceEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return entries, total, nil
}

// FindByStudentAndDate returns all of a student's records for one day,
// newest check-in first.
func (r *AttendanceRepository) FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) ([]models.AttendanceRecord, error) {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	const query = `SELECT id, student_id, date, check_in_time, check_out_time, session, notes, status, created_at, updated_at
        FROM attendance_records WHERE student_id = $1 AND date = $2 ORDER BY check_in_time DESC`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID, date.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("find attendance by student and date: %w", err)
	}
	return records, nil
}

// Insert writes a new open record. The partial unique index on
// (student_id, date) WHERE check_out_time IS NULL is the concurrency guard:
// the insert itself fails with a unique violation when an open record already
// exists, so no prior existence check is needed.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	const query = `INSERT INTO attendance_records (id, student_id, date, check_in_time, check_out_time, session, notes, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		record.ID, record.StudentID, record.Date.Format("2006-01-02"), record.CheckInTime,
		record.CheckOutTime, record.Session, record.Notes, record.Status,
		record.CreatedAt, record.UpdatedAt); err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// Close sets the checkout fields on an open record and returns the stored
// row. sql.ErrNoRows signals that no open record matched.
func (r *AttendanceRepository) Close(ctx context.Context, recordID string, checkOut time.Time, session models.Session, notes *string) (*models.AttendanceRecord, error) {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	const query = `UPDATE attendance_records
        SET check_out_time = $2, session = $3, notes = COALESCE($4, notes), updated_at = $5
        WHERE id = $1 AND check_out_time IS NULL
        RETURNING id, student_id, date, check_in_time, check_out_time, session, notes, status, created_at, updated_at`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, recordID, checkOut, session, notes, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &record, nil
}

// CloseAllOpen checks out every open record in one set-based update and
// returns how many were closed. A nil date closes open records on any day.
func (r *AttendanceRepository) CloseAllOpen(ctx context.Context, date *time.Time, checkOut time.Time, session models.Session) (int, error) {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	query := `UPDATE attendance_records SET check_out_time = $1, session = $2, updated_at = $3 WHERE check_out_time IS NULL`
	args := []interface{}{checkOut, session, time.Now().UTC()}
	if date != nil {
		query += fmt.Sprintf(" AND date = $%d", len(args)+1)
		args = append(args, date.Format("2006-01-02"))
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("close all open attendance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("close all open attendance: %w", err)
	}
	return int(affected), nil
}

// DeleteAll purges every attendance record and reports the count removed.
func (r *AttendanceRepository) DeleteAll(ctx context.Context) (int, error) {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, "DELETE FROM attendance_records")
	if err != nil {
		return 0, fmt.Errorf("delete all attendance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete all attendance: %w", err)
	}
	return int(affected), nil
}
