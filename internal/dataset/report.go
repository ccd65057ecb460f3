package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
)

const (
	StatusWritten = "written"
	StatusFailed  = "failed"
)

// ReportRow is one line of assembly_report.csv.
type ReportRow struct {
	RunID     string    `csv:"run_id"`
	Group     string    `csv:"group"`
	Folder    string    `csv:"folder"`
	T1        string    `csv:"t1"`
	T2        string    `csv:"t2"`
	Files     int       `csv:"files"`
	Status    string    `csv:"status"`
	Error     string    `csv:"error"`
	CreatedAt time.Time `csv:"created_at"`
}

// WriteReport writes rows as CSV, replacing any previous report.
func WriteReport(path string, rows []ReportRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("failed to write CSV using gocsv: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) ([]ReportRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []ReportRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("failed to read CSV using gocsv: %w", err)
	}
	return rows, nil
}
