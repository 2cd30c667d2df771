package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/attendhq/attendance-api/internal/models"
	appErrors "github.com/attendhq/attendance-api/pkg/errors"
	"github.com/attendhq/attendance-api/pkg/export"
)

type reportAttendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceEntry, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ReportFormat selects the export rendering.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportService turns flat attendance rows into day/session groupings and
// renders them for export.
type ReportService struct {
	repo   reportAttendanceRepository
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewReportService constructs the service.
func NewReportService(repo reportAttendanceRepository, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ReportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{repo: repo, csv: csv, pdf: pdf, logger: logger}
}

// DayReport loads and aggregates records for the given date range. A nil
// range aggregates the full history.
func (s *ReportService) DayReport(ctx context.Context, from, to *time.Time) ([]models.DaySessionAggregate, error) {
	filter := models.AttendanceFilter{DateFrom: from, DateTo: to, PageSize: 500}
	var all []models.AttendanceEntry
	for page := 1; ; page++ {
		filter.Page = page
		entries, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, wrapStoreErr(err, "failed to load attendance for report")
		}
		all = append(all, entries...)
		if len(all) >= total || len(entries) == 0 {
			break
		}
	}
	return Aggregate(all), nil
}

// Aggregate groups records into per-day session buckets, newest date first.
// The day comes from the check-in time so a session stays attributed to the
// day it started. Open records are listed as currently present rather than
// in a session bucket.
func Aggregate(entries []models.AttendanceEntry) []models.DaySessionAggregate {
	byDay := make(map[string]*models.DaySessionAggregate)
	studentsByDay := make(map[string]map[string]struct{})

	for _, entry := range entries {
		day := entry.CheckInTime.UTC().Format("2006-01-02")
		agg, ok := byDay[day]
		if !ok {
			agg = &models.DaySessionAggregate{Date: day}
			byDay[day] = agg
			studentsByDay[day] = make(map[string]struct{})
		}

		record := models.SessionRecord{AttendanceEntry: entry, Duration: FormatDuration(entry.AttendanceRecord)}
		if entry.Open() {
			agg.Present = append(agg.Present, record)
			continue
		}

		// A closed row with no session only arises from out-of-band writes;
		// it belongs to neither bucket.
		if entry.Session == nil {
			continue
		}

		studentsByDay[day][entry.StudentID] = struct{}{}
		agg.CompletedRecords++
		if *entry.Session == models.SessionTwo {
			agg.Session2 = append(agg.Session2, record)
		} else {
			agg.Session1 = append(agg.Session1, record)
		}
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))

	result := make([]models.DaySessionAggregate, 0, len(days))
	for _, day := range days {
		agg := byDay[day]
		agg.Session1Count = len(agg.Session1)
		agg.Session2Count = len(agg.Session2)
		agg.PresentCount = len(agg.Present)
		agg.TotalStudents = len(studentsByDay[day])
		sortByCheckIn(agg.Session1)
		sortByCheckIn(agg.Session2)
		sortByCheckIn(agg.Present)
		result = append(result, *agg)
	}
	return result
}

// FormatDuration renders checkout minus check-in as whole hours and minutes,
// e.g. "2h 30m". Open records yield an empty string.
func FormatDuration(record models.AttendanceRecord) string {
	if record.CheckOutTime == nil {
		return ""
	}
	d := record.CheckOutTime.Sub(record.CheckInTime)
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// Export renders one day's aggregate in the requested format and returns the
// payload with its content type and suggested filename.
func (s *ReportService) Export(ctx context.Context, date time.Time, format ReportFormat) ([]byte, string, string, error) {
	day := dateOnly(date)
	aggregates, err := s.DayReport(ctx, &day, &day)
	if err != nil {
		return nil, "", "", err
	}

	dataset := buildDayDataset(aggregates)
	name := fmt.Sprintf("attendance-%s", day.Format("2006-01-02"))

	switch format {
	case ReportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", name + ".csv", nil
	case ReportFormatPDF:
		title := fmt.Sprintf("Attendance %s", day.Format("02 Jan 2006"))
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", name + ".pdf", nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func buildDayDataset(aggregates []models.DaySessionAggregate) export.Dataset {
	headers := []string{"Date", "Name", "Register Number", "Department", "Session", "Check In", "Check Out", "Duration"}
	rows := make([]map[string]string, 0)

	addRows := func(agg models.DaySessionAggregate, records []models.SessionRecord, session string) {
		for _, record := range records {
			checkOut := ""
			if record.CheckOutTime != nil {
				checkOut = record.CheckOutTime.UTC().Format("15:04:05")
			}
			rows = append(rows, map[string]string{
				"Date":            agg.Date,
				"Name":            record.StudentName,
				"Register Number": record.RegisterNumber,
				"Department":      record.Department,
				"Session":         session,
				"Check In":        record.CheckInTime.UTC().Format("15:04:05"),
				"Check Out":       checkOut,
				"Duration":        record.Duration,
			})
		}
	}

	for _, agg := range aggregates {
		addRows(agg, agg.Session1, string(models.SessionOne))
		addRows(agg, agg.Session2, string(models.SessionTwo))
		addRows(agg, agg.Present, "open")
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func sortByCheckIn(records []models.SessionRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CheckInTime.Before(records[j].CheckInTime)
	})
}
