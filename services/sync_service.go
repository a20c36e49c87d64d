package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"sql-rag-platform/internal/config"
	"sql-rag-platform/internal/rag"
	"sql-rag-platform/internal/sqlsource"
)

// SyncStatus summarizes a synchronizer run.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncWarning SyncStatus = "warning"
	SyncError   SyncStatus = "error"
)

// UnitError is one isolated per-table or per-batch failure. Failures are
// collected into the final report instead of aborting the run.
type UnitError struct {
	Table string `json:"table"`
	Stage string `json:"stage"` // count, read, chunk, index
	Error string `json:"error"`
}

// SyncProgress is the outcome of one Sync invocation. It is returned to the
// caller and not persisted.
type SyncProgress struct {
	TotalRecords     int64       `json:"total_records"`
	ProcessedRecords int64       `json:"processed_records"`
	IndexedChunks    int64       `json:"indexed_chunks"`
	Status           SyncStatus  `json:"status"`
	Message          string      `json:"message"`
	UnitErrors       []UnitError `json:"unit_errors,omitempty"`
}

// SyncSource is the slice of the relational capability the synchronizer
// needs. *sqlsource.Source satisfies it.
type SyncSource interface {
	Tables(ctx context.Context) ([]string, error)
	CountRows(ctx context.Context, table string) (int64, error)
	Page(ctx context.Context, table string, offset, limit int) (*sqlsource.QueryResult, error)
}

// ChunkIndexer is the write side of a vector index.
type ChunkIndexer interface {
	Add(ctx context.Context, chunks []rag.Chunk) error
}

// SyncService mirrors every table of a relational source into the
// relational vector index: rows are formatted as "Table: name" plus
// "field: value" lines, split under the token budget, and flushed in
// fixed-size sub-batches so progress persists incrementally.
type SyncService struct {
	index    ChunkIndexer
	splitter *rag.RecordSplitter
	cfg      config.SyncConfig
}

func NewSyncService(index ChunkIndexer, counter rag.TokenCounter, cfg config.SyncConfig) *SyncService {
	return &SyncService{
		index:    index,
		splitter: rag.NewRecordSplitter(cfg.PerChunkTokenBudget, counter),
		cfg:      cfg,
	}
}

// Sync walks all tables of source, paging in windows of batchSize rows
// (the configured default when batchSize <= 0). A failure on one table or
// sub-batch is recorded and the run continues; only a connection-level
// failure (the table listing itself) yields SyncError.
func (s *SyncService) Sync(ctx context.Context, source SyncSource, batchSize int) (*SyncProgress, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}
	progress := &SyncProgress{Status: SyncWarning}

	tables, err := source.Tables(ctx)
	if err != nil {
		progress.Status = SyncError
		progress.Message = fmt.Sprintf("could not enumerate tables: %v", err)
		return progress, err
	}

	// First pass: total row count, the denominator for progress reporting.
	// A table whose count fails is skipped, not fatal.
	countable := make(map[string]bool, len(tables))
	for _, table := range tables {
		count, err := source.CountRows(ctx, table)
		if err != nil {
			slog.Warn("skipping table: count failed", "table", table, "error", err)
			progress.UnitErrors = append(progress.UnitErrors, UnitError{Table: table, Stage: "count", Error: err.Error()})
			continue
		}
		countable[table] = true
		progress.TotalRecords += count
	}

	// Second pass: page through each countable table and index its rows.
	for _, table := range tables {
		if !countable[table] {
			continue
		}
		if err := s.syncTable(ctx, source, table, batchSize, progress); err != nil {
			slog.Warn("table sync failed, continuing", "table", table, "error", err)
			progress.UnitErrors = append(progress.UnitErrors, UnitError{Table: table, Stage: "read", Error: err.Error()})
		}
	}

	switch {
	case progress.IndexedChunks > 0:
		progress.Status = SyncSuccess
		progress.Message = fmt.Sprintf("indexed %d chunks for %d of %d records from %d tables",
			progress.IndexedChunks, progress.ProcessedRecords, progress.TotalRecords, len(tables))
	default:
		progress.Status = SyncWarning
		progress.Message = "no records found to process"
	}
	return progress, nil
}

func (s *SyncService) syncTable(ctx context.Context, source SyncSource, table string, batchSize int, progress *SyncProgress) error {
	var pending []rag.Chunk

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := s.index.Add(ctx, pending); err != nil {
			slog.Warn("sub-batch indexing failed, continuing", "table", table, "chunks", len(pending), "error", err)
			progress.UnitErrors = append(progress.UnitErrors, UnitError{Table: table, Stage: "index", Error: err.Error()})
		} else {
			progress.IndexedChunks += int64(len(pending))
		}
		pending = pending[:0]
	}

	for offset := 0; ; offset += batchSize {
		page, err := source.Page(ctx, table, offset, batchSize)
		if err != nil {
			flush()
			return err
		}
		if len(page.Rows) == 0 {
			break
		}

		for _, row := range page.Rows {
			text := formatRecord(table, page.Columns, row, s.cfg.PerFieldMaxChars)
			// The row was read successfully; chunking failures past this
			// point still count it as processed.
			progress.ProcessedRecords++

			parts := s.splitter.Split(text)
			recordID := recordID(row)
			now := time.Now().UTC()
			for i, part := range parts {
				chunk := rag.Chunk{
					Text:       part,
					TokenCount: s.splitter.Counter.CountTokens(part),
					SourceKind: rag.SourceTable,
					SourceID:   table,
					RecordID:   recordID,
					CreatedAt:  now,
				}
				if len(parts) > 1 {
					chunk.Ordinal = i + 1
					chunk.TotalInGroup = len(parts)
				} else {
					chunk.TotalInGroup = 1
				}
				pending = append(pending, chunk)
				if len(pending) >= s.cfg.IndexSubBatch {
					flush()
				}
			}
		}

		if len(page.Rows) < batchSize {
			break
		}
	}

	flush()
	return nil
}

// formatRecord renders one row as the header-plus-fields text the record
// splitter expects. Field values are capped so a single huge column cannot
// blow up memory or the embedding call.
func formatRecord(table string, columns []string, row map[string]any, maxFieldChars int) string {
	b := new(strings.Builder)
	fmt.Fprintf(b, "Table: %s", table)

	cols := columns
	if len(cols) == 0 {
		cols = make([]string, 0, len(row))
		for col := range row {
			cols = append(cols, col)
		}
		sort.Strings(cols)
	}

	for _, col := range cols {
		value, ok := row[col]
		if !ok || value == nil {
			continue
		}
		str := fmt.Sprintf("%v", value)
		if maxFieldChars > 0 && len(str) > maxFieldChars {
			// The cap counts characters, not bytes; slicing bytes could cut
			// a rune in half and feed invalid UTF-8 to the embedding call.
			if runes := []rune(str); len(runes) > maxFieldChars {
				str = string(runes[:maxFieldChars]) + "..."
			}
		}
		fmt.Fprintf(b, "\n%s: %s", col, str)
	}
	return b.String()
}

func recordID(row map[string]any) string {
	if id, ok := row["id"]; ok && id != nil {
		return fmt.Sprintf("%v", id)
	}
	return "unknown"
}
