package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/attendhq/attendance-api/internal/models"
	"github.com/attendhq/attendance-api/internal/repository"
	"github.com/attendhq/attendance-api/pkg/config"
	"github.com/attendhq/attendance-api/pkg/database"
	"github.com/attendhq/attendance-api/pkg/logger"
)

// import-students replaces the whole student directory from a roster CSV.
// Expected columns: name, register_number, department (header row optional,
// detected by a non-numeric register_number field).

func main() {
	var (
		file    = flag.String("file", "", "path to the roster CSV")
		timeout = flag.Duration("timeout", 2*time.Minute, "import timeout")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: import-students -file roster.csv")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	students, err := readRoster(*file)
	if err != nil {
		logr.Fatal("failed to read roster", zap.Error(err))
	}
	if len(students) == 0 {
		logr.Fatal("roster is empty", zap.String("file", *file))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// the import runs under the -timeout budget, not the per-query default
	repo := repository.NewStudentRepository(db, *timeout)
	count, err := repo.ReplaceAll(ctx, students)
	if err != nil {
		logr.Fatal("import failed", zap.Error(err))
	}

	logr.Info("roster imported",
		zap.String("file", *file),
		zap.Int("students", count),
	)
}

func readRoster(path string) ([]models.Student, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var students []models.Student
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		if len(record) < 3 {
			return nil, fmt.Errorf("line %d: expected name, register_number, department", line)
		}

		name := strings.TrimSpace(record[0])
		registerNumber := strings.TrimSpace(record[1])
		department := strings.TrimSpace(record[2])

		if line == 1 && !isDigits(registerNumber) {
			// Header row.
			continue
		}
		if name == "" || registerNumber == "" {
			return nil, fmt.Errorf("line %d: name and register_number are required", line)
		}
		if !isDigits(registerNumber) {
			return nil, fmt.Errorf("line %d: register_number %q must be numeric", line, registerNumber)
		}

		students = append(students, models.Student{
			Name:           name,
			RegisterNumber: registerNumber,
			Department:     department,
			ClassYear:      classYearFrom(registerNumber),
		})
	}

	return students, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// classYearFrom derives the admission year from the register number prefix,
// matching how the numbers are issued ("23127001" joined in 2023).
func classYearFrom(registerNumber string) string {
	if len(registerNumber) < 2 {
		return ""
	}
	return registerNumber[:2]
}
