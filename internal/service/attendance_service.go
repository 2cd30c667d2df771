package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/attendhq/attendance-api/internal/models"
	"github.com/attendhq/attendance-api/internal/repository"
	appErrors "github.com/attendhq/attendance-api/pkg/errors"
	"github.com/attendhq/attendance-api/pkg/events"
)

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceEntry, int, error)
	FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) ([]models.AttendanceRecord, error)
	Insert(ctx context.Context, record *models.AttendanceRecord) error
	Close(ctx context.Context, recordID string, checkOut time.Time, session models.Session, notes *string) (*models.AttendanceRecord, error)
	CloseAllOpen(ctx context.Context, date *time.Time, checkOut time.Time, session models.Session) (int, error)
	DeleteAll(ctx context.Context) (int, error)
}

type studentDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByRegisterNumber(ctx context.Context, registerNumber string) (*models.Student, error)
}

// DedupStore absorbs rapid duplicate submissions before they reach the
// database. Exported so the caller can pick the redis or in-memory flavour.
type DedupStore interface {
	Reserve(ctx context.Context, key string, window time.Duration) (bool, error)
}

type eventPublisher interface {
	Publish(evt events.Event)
}

// CheckInRequest identifies the student either by ID or by the register
// number scanned at the desk.
type CheckInRequest struct {
	StudentID      string     `json:"student_id"`
	RegisterNumber string     `json:"register_number"`
	CheckInTime    *time.Time `json:"check_in_time"`
}

// CheckOutRequest closes one open record.
type CheckOutRequest struct {
	CheckOutTime *time.Time     `json:"check_out_time"`
	Session      models.Session `json:"session" validate:"required"`
	Notes        *string        `json:"notes"`
}

// CheckOutAllRequest closes every open record, optionally scoped to a day.
type CheckOutAllRequest struct {
	Date    *time.Time     `json:"date"`
	Session models.Session `json:"session" validate:"required"`
}

// AttendanceService decides the effect of desk submissions: check-in,
// rejection while present, and re-registration after checkout.
type AttendanceService struct {
	repo        attendanceRepository
	students    studentDirectory
	dedup       DedupStore
	bus         eventPublisher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	dedupWindow time.Duration
	now         func() time.Time
}

// NewAttendanceService constructs the service. dedup, bus and metrics may be
// nil; the corresponding side effects are then skipped.
func NewAttendanceService(repo attendanceRepository, students studentDirectory, dedup DedupStore, bus eventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, dedupWindow time.Duration) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:        repo,
		students:    students,
		dedup:       dedup,
		bus:         bus,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		dedupWindow: dedupWindow,
		now:         time.Now,
	}
}

// List returns attendance entries with pagination metadata.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceEntry, *models.Pagination, error) {
	start := time.Now()
	entries, total, err := s.repo.List(ctx, filter)
	s.observeQuery("attendance_list", start)
	if err != nil {
		return nil, nil, wrapStoreErr(err, "failed to list attendance")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 100
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Evaluate reports the state of a register-number submission for the date.
// It is advisory only; CheckIn re-validates atomically at insert time.
func (s *AttendanceService) Evaluate(ctx context.Context, studentID string, date time.Time) (models.CheckState, error) {
	start := time.Now()
	records, err := s.repo.FindByStudentAndDate(ctx, studentID, dateOnly(date))
	s.observeQuery("attendance_find_by_student_date", start)
	if err != nil {
		return "", wrapStoreErr(err, "failed to evaluate attendance state")
	}
	if len(records) == 0 {
		return models.CheckStateNoRecord, nil
	}
	for _, record := range records {
		if record.Open() {
			return models.CheckStateOpenPresent, nil
		}
	}
	return models.CheckStateClosedReopenable, nil
}

// CheckIn creates a new open record for the student. A second submission
// while an open record exists fails with the already-present error; after a
// checkout it creates a fresh row, never reopening the closed one.
func (s *AttendanceService) CheckIn(ctx context.Context, req CheckInRequest) (*models.AttendanceRecord, *models.Student, error) {
	student, err := s.resolveStudent(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if !student.Active {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "student is deactivated")
	}

	at := s.now().UTC()
	if req.CheckInTime != nil {
		at = req.CheckInTime.UTC()
	}
	day := dateOnly(at)

	if s.dedup != nil && s.dedupWindow > 0 {
		key := fmt.Sprintf("%s:%s", student.RegisterNumber, day.Format("2006-01-02"))
		ok, err := s.dedup.Reserve(ctx, key, s.dedupWindow)
		if err != nil {
			// The guard is best-effort; the unique index still protects the store.
			s.logger.Warn("dedup reserve failed", zap.Error(err))
		} else if !ok {
			if s.metrics != nil {
				s.metrics.RecordCheckInRejected()
			}
			return nil, nil, appErrors.Clone(appErrors.ErrAlreadyPresent, "duplicate submission within debounce window")
		}
	}

	record := &models.AttendanceRecord{
		StudentID:   student.ID,
		Date:        day,
		CheckInTime: at,
		Status:      models.AttendanceStatusPresent,
	}
	start := time.Now()
	err = s.repo.Insert(ctx, record)
	s.observeQuery("attendance_insert", start)
	if err != nil {
		if repository.IsUniqueViolation(err, repository.OpenRecordConstraint) {
			if s.metrics != nil {
				s.metrics.RecordCheckInRejected()
			}
			return nil, nil, appErrors.Clone(appErrors.ErrAlreadyPresent, "")
		}
		return nil, nil, wrapStoreErr(err, "failed to record check-in")
	}

	if s.metrics != nil {
		s.metrics.RecordCheckIn()
	}
	s.publish(events.Event{
		Type:           events.TypeCheckedIn,
		StudentID:      student.ID,
		RegisterNumber: student.RegisterNumber,
		RecordID:       record.ID,
		At:             at,
	})
	return record, student, nil
}

// CheckOut closes the open record, assigning the session bucket.
func (s *AttendanceService) CheckOut(ctx context.Context, recordID string, req CheckOutRequest) (*models.AttendanceRecord, error) {
	if !req.Session.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidSession, "")
	}
	at := s.now().UTC()
	if req.CheckOutTime != nil {
		at = req.CheckOutTime.UTC()
	}

	start := time.Now()
	record, err := s.repo.Close(ctx, recordID, at, req.Session, req.Notes)
	s.observeQuery("attendance_close", start)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrRecordNotFound, "")
		}
		return nil, wrapStoreErr(err, "failed to record check-out")
	}

	if s.metrics != nil {
		s.metrics.RecordCheckOut(1)
	}
	s.publish(events.Event{
		Type:      events.TypeCheckedOut,
		StudentID: record.StudentID,
		RecordID:  record.ID,
		At:        at,
	})
	return record, nil
}

// CheckOutAll closes every open record in one set-based update and reports
// the count, so readers never observe a partially applied bulk checkout.
func (s *AttendanceService) CheckOutAll(ctx context.Context, req CheckOutAllRequest) (int, error) {
	if !req.Session.Valid() {
		return 0, appErrors.Clone(appErrors.ErrInvalidSession, "")
	}
	var day *time.Time
	if req.Date != nil {
		d := dateOnly(*req.Date)
		day = &d
	}
	at := s.now().UTC()

	start := time.Now()
	count, err := s.repo.CloseAllOpen(ctx, day, at, req.Session)
	s.observeQuery("attendance_close_all", start)
	if err != nil {
		return 0, wrapStoreErr(err, "failed to check out open records")
	}

	if count > 0 {
		if s.metrics != nil {
			s.metrics.RecordCheckOut(count)
		}
		s.publish(events.Event{Type: events.TypeCheckedOutAll, Count: count, At: at})
	}
	return count, nil
}

// DeleteAll purges the attendance history. Destructive and irreversible.
func (s *AttendanceService) DeleteAll(ctx context.Context) (int, error) {
	start := time.Now()
	count, err := s.repo.DeleteAll(ctx)
	s.observeQuery("attendance_delete_all", start)
	if err != nil {
		return 0, wrapStoreErr(err, "failed to delete attendance history")
	}
	s.logger.Warn("attendance history purged", zap.Int("deleted", count))
	s.publish(events.Event{Type: events.TypeDeleted, Count: count})
	return count, nil
}

func (s *AttendanceService) resolveStudent(ctx context.Context, req CheckInRequest) (*models.Student, error) {
	var (
		student *models.Student
		err     error
	)
	switch {
	case req.StudentID != "":
		student, err = s.students.FindByID(ctx, req.StudentID)
	case req.RegisterNumber != "":
		student, err = s.students.FindByRegisterNumber(ctx, req.RegisterNumber)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id or register_number is required")
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, wrapStoreErr(err, "failed to resolve student")
	}
	return student, nil
}

func (s *AttendanceService) publish(evt events.Event) {
	if s.bus != nil {
		s.bus.Publish(evt)
	}
}

func (s *AttendanceService) observeQuery(label string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveDBQuery(label, time.Since(start))
	}
}

// dateOnly truncates a timestamp to its UTC calendar day.
func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// wrapStoreErr distinguishes connectivity failures from application errors so
// the client can show a reconnecting state.
func wrapStoreErr(err error, message string) *appErrors.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn) {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
