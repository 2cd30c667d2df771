package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/attendhq/attendance-api/internal/models"
)

func newStudentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func studentRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "name", "register_number", "class_year", "department", "aadhar_number", "phone_number", "email", "active", "created_at", "updated_at"}).
		AddRow("stu-1", "Priya R", "23127001", "23", "CSE", nil, nil, nil, true, now, now)
}

func TestStudentRepositoryListExactRegisterNumber(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, 0)

	mock.ExpectQuery(regexp.QuoteMeta("register_number = $1")).
		WithArgs("23127001").
		WillReturnRows(studentRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students")).
		WithArgs("23127001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{Search: "23127001"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	require.Equal(t, 1, total)
	require.Equal(t, "23127001", students[0].RegisterNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListFuzzySearch(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, 0)

	mock.ExpectQuery(regexp.QuoteMeta("LOWER(name) LIKE $1")).
		WithArgs("%priya%").
		WillReturnRows(studentRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students")).
		WithArgs("%priya%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{Search: "Priya"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByRegisterNumber(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, 0)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE register_number = $1")).
		WithArgs("23127001").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByRegisterNumber(context.Background(), "23127001", "")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE register_number = $1")).
		WithArgs("99999999").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.ExistsByRegisterNumber(context.Background(), "99999999", "")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, 0)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO students")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	student := &models.Student{Name: "Priya R", RegisterNumber: "23127001", ClassYear: "23", Department: "CSE", Active: true}
	require.NoError(t, repo.Create(context.Background(), student))
	require.NotEmpty(t, student.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryReplaceAll(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, 0)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("TRUNCATE students CASCADE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO students")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO students")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	count, err := repo.ReplaceAll(context.Background(), []models.Student{
		{Name: "Priya R", RegisterNumber: "23127001", ClassYear: "23", Department: "CSE"},
		{Name: "Arun K", RegisterNumber: "23127002", ClassYear: "23", Department: "CSE"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryDedupStoreReserve(t *testing.T) {
	store := NewMemoryDedupStore()
	base := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	ok, err := store.Reserve(context.Background(), "23127001:2025-07-14", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Reserve(context.Background(), "23127001:2025-07-14", 10*time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	store.now = func() time.Time { return base.Add(11 * time.Second) }
	ok, err = store.Reserve(context.Background(), "23127001:2025-07-14", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}
