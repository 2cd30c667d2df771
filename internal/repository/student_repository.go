package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/attendhq/attendance-api/internal/models"
)

// StudentRepository manages persistence for student records. Every query
// runs under the configured timeout.
type StudentRepository struct {
	db           *sqlx.DB
	queryTimeout time.Duration
}

// NewStudentRepository constructs a StudentRepository. A non-positive timeout
// falls back to the package default.
func NewStudentRepository(db *sqlx.DB, queryTimeout time.Duration) *StudentRepository {
	return &StudentRepository{db: db, queryTimeout: queryTimeout}
}

// IsUniqueViolation reports whether the error is a Postgres unique-constraint
// violation, optionally matching a constraint name substring.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || strings.Contains(pqErr.Constraint, constraint)
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Year != "" {
		conditions = append(conditions, fmt.Sprintf("class_year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Search != "" {
		if isRegisterNumber(filter.Search) {
			conditions = append(conditions, fmt.Sprintf("register_number = $%d", len(args)+1))
			args = append(args, filter.Search)
		} else {
			conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(register_number) LIKE $%d)", len(args)+1, len(args)+1))
			args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		}
	}

	whereClause := strings.Join(conditions, " AND ")

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":            "name",
		"register_number": "register_number",
		"created_at":      "created_at",
	}
	if sortBy == "" {
		sortBy = "register_number"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "register_number"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, name, register_number, class_year, department, aadhar_number, phone_number, email, active, created_at, updated_at
        FROM students WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, whereClause, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	const query = `SELECT id, name, register_number, class_year, department, aadhar_number, phone_number, email, active, created_at, updated_at
        FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByRegisterNumber resolves a student from the desk's scanned key.
func (r *StudentRepository) FindByRegisterNumber(ctx context.Context, registerNumber string) (*models.Student, error) {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	const query = `SELECT id, name, register_number, class_year, department, aadhar_number, phone_number, email, active, created_at, updated_at
        FROM students WHERE register_number = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, registerNumber); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByRegisterNumber checks uniqueness optionally excluding an ID.
func (r *StudentRepository) ExistsByRegisterNumber(ctx context.Context, registerNumber string, excludeID string) (bool, error) {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	query := "SELECT 1 FROM students WHERE register_number = $1"
	args := []interface{}{registerNumber}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check register number: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, name, register_number, class_year, department, aadhar_number, phone_number, email, active, created_at, updated_at)
        VALUES (:id, :name, :register_number, :class_year, :department, :aadhar_number, :phone_number, :email, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student. The register number is the immutable
// business key and is not part of the update set.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET name = :name, class_year = :class_year, department = :department,
        aadhar_number = :aadhar_number, phone_number = :phone_number, email = :email, active = :active, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Deactivate marks a student as inactive.
func (r *StudentRepository) Deactivate(ctx context.Context, id string) error {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	const query = `UPDATE students SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}

// ReplaceAll truncates the directory and repopulates it in one transaction.
// Used by the CSV importer only.
func (r *StudentRepository) ReplaceAll(ctx context.Context, students []models.Student) (int, error) {
	ctx, cancel := queryContext(ctx, r.queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "TRUNCATE students CASCADE"); err != nil {
		return 0, fmt.Errorf("truncate students: %w", err)
	}

	const query = `INSERT INTO students (id, name, register_number, class_year, department, aadhar_number, phone_number, email, active, created_at, updated_at)
        VALUES (:id, :name, :register_number, :class_year, :department, :aadhar_number, :phone_number, :email, :active, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range students {
		s := &students[i]
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.Active = true
		s.CreatedAt = now
		s.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, s); err != nil {
			return 0, fmt.Errorf("import student %s: %w", s.RegisterNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	committed = true
	return len(students), nil
}

func isRegisterNumber(s string) bool {
	if len(s) < 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
