package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendhq/attendance-api/internal/models"
	"github.com/attendhq/attendance-api/internal/repository"
	"github.com/attendhq/attendance-api/internal/service"
)

type fakeAttendanceRepo struct {
	records map[string]models.AttendanceRecord
}

func newFakeAttendanceRepo() *fakeAttendanceRepo {
	return &fakeAttendanceRepo{records: make(map[string]models.AttendanceRecord)}
}

func (f *fakeAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceEntry, int, error) {
	out := make([]models.AttendanceEntry, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, models.AttendanceEntry{AttendanceRecord: r})
	}
	return out, len(out), nil
}

func (f *fakeAttendanceRepo) FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) ([]models.AttendanceRecord, error) {
	var out []models.AttendanceRecord
	for _, r := range f.records {
		if r.StudentID == studentID && r.Date.Equal(date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAttendanceRepo) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	for _, r := range f.records {
		if r.StudentID == record.StudentID && r.Date.Equal(record.Date) && r.CheckOutTime == nil {
			return &pq.Error{Code: "23505", Constraint: repository.OpenRecordConstraint}
		}
	}
	if record.ID == "" {
		record.ID = "rec-1"
	}
	f.records[record.ID] = *record
	return nil
}

func (f *fakeAttendanceRepo) Close(ctx context.Context, recordID string, checkOut time.Time, session models.Session, notes *string) (*models.AttendanceRecord, error) {
	r, ok := f.records[recordID]
	if !ok || r.CheckOutTime != nil {
		return nil, sql.ErrNoRows
	}
	r.CheckOutTime = &checkOut
	r.Session = &session
	f.records[recordID] = r
	return &r, nil
}

func (f *fakeAttendanceRepo) CloseAllOpen(ctx context.Context, date *time.Time, checkOut time.Time, session models.Session) (int, error) {
	count := 0
	for id, r := range f.records {
		if r.CheckOutTime == nil {
			r.CheckOutTime = &checkOut
			r.Session = &session
			f.records[id] = r
			count++
		}
	}
	return count, nil
}

func (f *fakeAttendanceRepo) DeleteAll(ctx context.Context) (int, error) {
	count := len(f.records)
	f.records = make(map[string]models.AttendanceRecord)
	return count, nil
}

type fakeDirectory struct{}

func (fakeDirectory) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if id == "stu-1" {
		return &models.Student{ID: "stu-1", Name: "Priya R", RegisterNumber: "23127001", Active: true}, nil
	}
	return nil, sql.ErrNoRows
}

func (fakeDirectory) FindByRegisterNumber(ctx context.Context, rn string) (*models.Student, error) {
	if rn == "23127001" {
		return &models.Student{ID: "stu-1", Name: "Priya R", RegisterNumber: "23127001", Active: true}, nil
	}
	return nil, sql.ErrNoRows
}

func newTestHandler() (*AttendanceHandler, *fakeAttendanceRepo) {
	repo := newFakeAttendanceRepo()
	attendance := service.NewAttendanceService(repo, fakeDirectory{}, nil, nil, nil, nil, nil, 0)
	reports := service.NewReportService(repo, nil, nil, nil)
	return NewAttendanceHandler(attendance, reports), repo
}

func performJSON(t *testing.T, handler gin.HandlerFunc, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	handler(c)
	return w
}

func TestAttendanceHandlerCheckRequiresStudentID(t *testing.T) {
	h, _ := newTestHandler()
	w := performJSON(t, h.Check, http.MethodGet, "/attendance/check", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerListInvalidDate(t *testing.T) {
	h, _ := newTestHandler()
	w := performJSON(t, h.List, http.MethodGet, "/attendance?date=14-07-2025", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerCheckInAndDuplicate(t *testing.T) {
	h, _ := newTestHandler()

	w := performJSON(t, h.CheckIn, http.MethodPost, "/attendance", map[string]string{"register_number": "23127001"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = performJSON(t, h.CheckIn, http.MethodPost, "/attendance", map[string]string{"register_number": "23127001"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ALREADY_PRESENT")
}

func TestAttendanceHandlerCheckOutInvalidSession(t *testing.T) {
	h, repo := newTestHandler()
	require.NoError(t, repo.Insert(context.Background(), &models.AttendanceRecord{
		ID: "rec-1", StudentID: "stu-1", Date: time.Now().UTC().Truncate(24 * time.Hour), CheckInTime: time.Now().UTC(),
	}))

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	payload, _ := json.Marshal(map[string]string{"session": "session9"})
	req, _ := http.NewRequest(http.MethodPut, "/attendance/rec-1/checkout", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}

	h.CheckOut(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_SESSION")
}

func TestAttendanceHandlerDeleteAll(t *testing.T) {
	h, repo := newTestHandler()
	for i := 0; i < 3; i++ {
		rec := models.AttendanceRecord{StudentID: "stu-1", Date: time.Now().UTC(), CheckInTime: time.Now().UTC()}
		rec.ID = "rec-" + string(rune('a'+i))
		repo.records[rec.ID] = rec
	}

	w := performJSON(t, h.DeleteAll, http.MethodDelete, "/attendance/all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":3`)
}

func TestAttendanceHandlerExportRequiresDate(t *testing.T) {
	h, _ := newTestHandler()
	w := performJSON(t, h.Export, http.MethodGet, "/attendance/report/export", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
