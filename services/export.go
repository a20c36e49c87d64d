package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"sql-rag-platform/models"
)

// QueryLogReader lists persisted query logs, newest first.
// *models.QueryLogStore satisfies it.
type QueryLogReader interface {
	List(ctx context.Context, limit int64) ([]models.QueryLog, error)
}

// ExportService renders query logs as downloadable files for offline
// review of what was asked and how the pipeline held up.
type ExportService struct {
	logs QueryLogReader
}

func NewExportService(logs QueryLogReader) *ExportService {
	return &ExportService{logs: logs}
}

var exportHeaders = []string{
	"Timestamp", "User", "Question", "Generated SQL", "Answer", "Status", "Warnings", "Duration (ms)",
}

func exportRow(entry models.QueryLog) []string {
	var warnings []string
	for key, msg := range entry.Warnings {
		warnings = append(warnings, key+": "+msg)
	}
	return []string{
		entry.Timestamp.Format(time.RFC3339),
		entry.UserID,
		entry.Question,
		entry.GeneratedSQL,
		entry.Answer,
		entry.Status,
		strings.Join(warnings, "; "),
		strconv.FormatInt(entry.DurationMS, 10),
	}
}

// ExportCSV returns the newest limit query logs as a CSV document.
func (es *ExportService) ExportCSV(ctx context.Context, limit int64) ([]byte, error) {
	entries, err := es.logs.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch query logs: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeaders); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if err := w.Write(exportRow(entry)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportExcel returns the newest limit query logs as an xlsx workbook.
func (es *ExportService) ExportExcel(ctx context.Context, limit int64) ([]byte, error) {
	entries, err := es.logs.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch query logs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Query Logs"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}
	for rowIdx, entry := range entries {
		for colIdx, value := range exportRow(entry) {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
