package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/attendhq/attendance-api/internal/models"
	"github.com/attendhq/attendance-api/internal/repository"
	appErrors "github.com/attendhq/attendance-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByRegisterNumber(ctx context.Context, registerNumber string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

// CreateStudentRequest holds payload for registering students.
type CreateStudentRequest struct {
	Name           string  `json:"name" validate:"required"`
	RegisterNumber string  `json:"register_number" validate:"required"`
	ClassYear      string  `json:"class_year"`
	Department     string  `json:"department" validate:"required"`
	AadharNumber   *string `json:"aadhar_number"`
	PhoneNumber    *string `json:"phone_number"`
	Email          *string `json:"email" validate:"omitempty,email"`
}

// UpdateStudentRequest holds payload for editing students. The register
// number is immutable and deliberately absent.
type UpdateStudentRequest struct {
	Name         string  `json:"name" validate:"required"`
	ClassYear    string  `json:"class_year"`
	Department   string  `json:"department" validate:"required"`
	AadharNumber *string `json:"aadhar_number"`
	PhoneNumber  *string `json:"phone_number"`
	Email        *string `json:"email" validate:"omitempty,email"`
	Active       bool    `json:"active"`
}

// StudentService handles directory use-cases.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, wrapStoreErr(err, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, wrapStoreErr(err, "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	exists, err := s.repo.ExistsByRegisterNumber(ctx, req.RegisterNumber, "")
	if err != nil {
		return nil, wrapStoreErr(err, "failed to validate register number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "")
	}
	student := &models.Student{
		Name:           req.Name,
		RegisterNumber: req.RegisterNumber,
		ClassYear:      classYearFor(req.ClassYear, req.RegisterNumber),
		Department:     req.Department,
		AadharNumber:   req.AadharNumber,
		PhoneNumber:    req.PhoneNumber,
		Email:          req.Email,
		Active:         true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		// The unique index is the authority; the pre-check above only covers
		// the common path.
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "")
		}
		return nil, wrapStoreErr(err, "failed to create student")
	}
	return student, nil
}

// Update modifies an existing student record.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, wrapStoreErr(err, "failed to load student")
	}
	student.Name = req.Name
	if req.ClassYear != "" {
		student.ClassYear = req.ClassYear
	}
	student.Department = req.Department
	student.AadharNumber = req.AadharNumber
	student.PhoneNumber = req.PhoneNumber
	student.Email = req.Email
	student.Active = req.Active
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, wrapStoreErr(err, "failed to update student")
	}
	return student, nil
}

// Deactivate marks a student inactive; records stay for reporting.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return wrapStoreErr(err, "failed to load student")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return wrapStoreErr(err, "failed to deactivate student")
	}
	return nil
}

// classYearFor falls back to the first two digits of the register number,
// matching the CSV import convention.
func classYearFor(explicit, registerNumber string) string {
	if explicit != "" {
		return explicit
	}
	if len(registerNumber) >= 2 {
		return registerNumber[:2]
	}
	return ""
}
