package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"sql-rag-platform/models"
)

type fakeLogReader struct {
	entries []models.QueryLog
}

func (f *fakeLogReader) List(ctx context.Context, limit int64) ([]models.QueryLog, error) {
	return f.entries, nil
}

func TestExportCSV(t *testing.T) {
	reader := &fakeLogReader{entries: []models.QueryLog{
		{
			UserID:       "admin",
			Question:     "how many orders?",
			GeneratedSQL: "SELECT COUNT(*) FROM orders",
			Answer:       "There are 42 orders.",
			Status:       "success",
			DurationMS:   812,
			Timestamp:    time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		},
		{
			UserID:    "admin",
			Question:  "broken one",
			Status:    "success",
			Warnings:  map[string]string{"sql_error": "syntax error"},
			Timestamp: time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC),
		},
	}}

	data, err := NewExportService(reader).ExportCSV(context.Background(), 100)
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "Timestamp" || rows[0][5] != "Status" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][2] != "how many orders?" || rows[1][7] != "812" {
		t.Errorf("row = %v", rows[1])
	}
	if rows[2][6] != "sql_error: syntax error" {
		t.Errorf("warnings column = %q", rows[2][6])
	}
}

func TestExportExcelProducesWorkbook(t *testing.T) {
	reader := &fakeLogReader{entries: []models.QueryLog{
		{UserID: "admin", Question: "q", Status: "success", Timestamp: time.Now()},
	}}

	data, err := NewExportService(reader).ExportExcel(context.Background(), 100)
	if err != nil {
		t.Fatalf("ExportExcel: %v", err)
	}
	// xlsx files are zip archives.
	if len(data) < 4 || data[0] != 'P' || data[1] != 'K' {
		t.Fatalf("output does not look like a workbook (%d bytes)", len(data))
	}
}
