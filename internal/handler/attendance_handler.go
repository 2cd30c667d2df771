package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/attendhq/attendance-api/internal/models"
	"github.com/attendhq/attendance-api/internal/service"
	appErrors "github.com/attendhq/attendance-api/pkg/errors"
	"github.com/attendhq/attendance-api/pkg/response"
)

const dateLayout = "2006-01-02"

// AttendanceHandler exposes the check-in/out workflow.
type AttendanceHandler struct {
	attendance *service.AttendanceService
	reports    *service.ReportService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService, reports *service.ReportService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, reports: reports}
}

// List handles GET /attendance?date=&student_id=&open=.
func (h *AttendanceHandler) List(c *gin.Context) {
	var filter models.AttendanceFilter
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse(dateLayout, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		filter.Date = &date
	}
	filter.StudentID = c.Query("student_id")
	if open := c.Query("open"); open != "" {
		if v, err := strconv.ParseBool(open); err == nil {
			filter.OpenOnly = v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "100")); err == nil {
		filter.PageSize = size
	}

	entries, pagination, err := h.attendance.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Check handles GET /attendance/check?student_id=&date= and returns the
// evaluation state for the day.
func (h *AttendanceHandler) Check(c *gin.Context) {
	studentID := c.Query("student_id")
	if studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id is required"))
		return
	}
	date := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	state, err := h.attendance.Evaluate(c.Request.Context(), studentID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"state": state}, nil)
}

// CheckIn handles POST /attendance.
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	var req service.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	record, student, err := h.attendance.CheckIn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"record": record, "student": student})
}

// CheckOut handles PUT /attendance/:id/checkout.
func (h *AttendanceHandler) CheckOut(c *gin.Context) {
	var req service.CheckOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	record, err := h.attendance.CheckOut(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// CheckOutAll handles POST /attendance/checkout-all.
func (h *AttendanceHandler) CheckOutAll(c *gin.Context) {
	var req service.CheckOutAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	count, err := h.attendance.CheckOutAll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"checked_out": count}, nil)
}

// DeleteAll handles DELETE /attendance/all.
func (h *AttendanceHandler) DeleteAll(c *gin.Context) {
	count, err := h.attendance.DeleteAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": count}, nil)
}

// Report handles GET /attendance/report?date=&from=&to=.
func (h *AttendanceHandler) Report(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse(dateLayout, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		from, to = &date, &date
	} else {
		if raw := c.Query("from"); raw != "" {
			date, err := time.Parse(dateLayout, raw)
			if err != nil {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD"))
				return
			}
			from = &date
		}
		if raw := c.Query("to"); raw != "" {
			date, err := time.Parse(dateLayout, raw)
			if err != nil {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD"))
				return
			}
			to = &date
		}
	}

	aggregates, err := h.reports.DayReport(c.Request.Context(), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, aggregates, nil)
}

// Export handles GET /attendance/report/export?date=&format=.
func (h *AttendanceHandler) Export(c *gin.Context) {
	raw := c.Query("date")
	if raw == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date is required"))
		return
	}
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	format := service.ReportFormat(c.DefaultQuery("format", "csv"))

	payload, contentType, filename, err := h.reports.Export(c.Request.Context(), date, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, payload)
}
