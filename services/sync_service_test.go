package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"sql-rag-platform/internal/config"
	"sql-rag-platform/internal/rag"
	"sql-rag-platform/internal/sqlsource"
)

type fakeSyncSource struct {
	tables    []string
	rows      map[string][]map[string]any
	columns   map[string][]string
	countFail map[string]bool
	pageFail  map[string]bool
}

func (f *fakeSyncSource) Tables(ctx context.Context) ([]string, error) {
	if f.tables == nil {
		return nil, errors.New("connection refused")
	}
	return f.tables, nil
}

func (f *fakeSyncSource) CountRows(ctx context.Context, table string) (int64, error) {
	if f.countFail[table] {
		return 0, errors.New("count failed")
	}
	return int64(len(f.rows[table])), nil
}

func (f *fakeSyncSource) Page(ctx context.Context, table string, offset, limit int) (*sqlsource.QueryResult, error) {
	if f.pageFail[table] {
		return nil, errors.New("read failed")
	}
	all := f.rows[table]
	if offset >= len(all) {
		return &sqlsource.QueryResult{Columns: f.columns[table]}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return &sqlsource.QueryResult{Columns: f.columns[table], Rows: all[offset:end]}, nil
}

type collectingIndexer struct {
	chunks []rag.Chunk
	fail   bool
}

func (c *collectingIndexer) Add(ctx context.Context, chunks []rag.Chunk) error {
	if c.fail {
		return errors.New("index unavailable")
	}
	c.chunks = append(c.chunks, chunks...)
	return nil
}

func syncConfig() config.SyncConfig {
	return config.SyncConfig{
		BatchSize:           1000,
		PerFieldMaxChars:    1000,
		PerChunkTokenBudget: 200_000,
		IndexSubBatch:       50,
	}
}

func TestSyncIndexesAllRows(t *testing.T) {
	source := &fakeSyncSource{
		tables:  []string{"customers"},
		columns: map[string][]string{"customers": {"id", "name", "city"}},
		rows: map[string][]map[string]any{
			"customers": {
				{"id": 1, "name": "Ana", "city": "Lima"},
				{"id": 2, "name": "Mei", "city": nil},
				{"id": 3, "name": "Omar", "city": "Cairo"},
			},
		},
	}
	index := &collectingIndexer{}
	svc := NewSyncService(index, rag.Estimator{}, syncConfig())

	progress, err := svc.Sync(context.Background(), source, 0)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if progress.Status != SyncSuccess {
		t.Fatalf("status = %q, want success (message: %s)", progress.Status, progress.Message)
	}
	if progress.TotalRecords != 3 || progress.ProcessedRecords != 3 {
		t.Fatalf("total=%d processed=%d, want 3/3", progress.TotalRecords, progress.ProcessedRecords)
	}
	if len(index.chunks) != 3 {
		t.Fatalf("indexed %d chunks, want 3", len(index.chunks))
	}

	first := index.chunks[0]
	if !strings.HasPrefix(first.Text, "Table: customers\n") {
		t.Errorf("chunk missing table header: %q", first.Text)
	}
	if !strings.Contains(first.Text, "name: Ana") {
		t.Errorf("chunk missing field line: %q", first.Text)
	}
	if first.SourceKind != rag.SourceTable || first.SourceID != "customers" || first.RecordID != "1" {
		t.Errorf("chunk metadata = %s/%s/%s", first.SourceKind, first.SourceID, first.RecordID)
	}

	// Null fields are omitted entirely, not rendered as a literal.
	second := index.chunks[1]
	if strings.Contains(second.Text, "city") {
		t.Errorf("null field should be skipped: %q", second.Text)
	}
}

func TestSyncTableFailureIsIsolated(t *testing.T) {
	source := &fakeSyncSource{
		tables:  []string{"broken", "orders"},
		columns: map[string][]string{"orders": {"id", "total"}},
		rows: map[string][]map[string]any{
			"broken": {{"id": 1}},
			"orders": {{"id": 10, "total": 99.5}},
		},
		pageFail: map[string]bool{"broken": true},
	}
	index := &collectingIndexer{}
	svc := NewSyncService(index, rag.Estimator{}, syncConfig())

	progress, err := svc.Sync(context.Background(), source, 0)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if progress.Status != SyncSuccess {
		t.Fatalf("status = %q, want success despite one broken table", progress.Status)
	}
	if len(index.chunks) != 1 || index.chunks[0].SourceID != "orders" {
		t.Fatalf("expected only orders to be indexed, got %d chunks", len(index.chunks))
	}
	if len(progress.UnitErrors) != 1 || progress.UnitErrors[0].Table != "broken" {
		t.Fatalf("unit errors = %+v, want one entry for broken", progress.UnitErrors)
	}
}

func TestSyncCountFailureSkipsTable(t *testing.T) {
	source := &fakeSyncSource{
		tables:    []string{"ghost", "orders"},
		columns:   map[string][]string{"orders": {"id"}},
		rows:      map[string][]map[string]any{"orders": {{"id": 1}}},
		countFail: map[string]bool{"ghost": true},
	}
	index := &collectingIndexer{}
	svc := NewSyncService(index, rag.Estimator{}, syncConfig())

	progress, err := svc.Sync(context.Background(), source, 0)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if progress.TotalRecords != 1 {
		t.Fatalf("total = %d, want 1 (ghost skipped)", progress.TotalRecords)
	}
	if progress.Status != SyncSuccess {
		t.Fatalf("status = %q, want success", progress.Status)
	}
}

func TestSyncEmptySourceIsWarning(t *testing.T) {
	source := &fakeSyncSource{tables: []string{"empty"}, rows: map[string][]map[string]any{}}
	index := &collectingIndexer{}
	svc := NewSyncService(index, rag.Estimator{}, syncConfig())

	progress, err := svc.Sync(context.Background(), source, 0)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if progress.Status != SyncWarning {
		t.Fatalf("status = %q, want warning for empty source", progress.Status)
	}
}

func TestSyncConnectionFailureIsError(t *testing.T) {
	source := &fakeSyncSource{tables: nil}
	svc := NewSyncService(&collectingIndexer{}, rag.Estimator{}, syncConfig())

	progress, err := svc.Sync(context.Background(), source, 0)
	if err == nil {
		t.Fatal("expected error when table listing fails")
	}
	if progress.Status != SyncError {
		t.Fatalf("status = %q, want error", progress.Status)
	}
}

func TestSyncLongFieldIsCapped(t *testing.T) {
	long := strings.Repeat("x", 5000)
	source := &fakeSyncSource{
		tables:  []string{"notes"},
		columns: map[string][]string{"notes": {"id", "body"}},
		rows:    map[string][]map[string]any{"notes": {{"id": 1, "body": long}}},
	}
	index := &collectingIndexer{}
	svc := NewSyncService(index, rag.Estimator{}, syncConfig())

	if _, err := svc.Sync(context.Background(), source, 0); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	text := index.chunks[0].Text
	if strings.Contains(text, long) {
		t.Fatal("field value was not capped")
	}
	if !strings.Contains(text, strings.Repeat("x", 1000)+"...") {
		t.Fatal("capped field should end with ellipsis marker")
	}
}

func TestSyncMultiByteFieldStaysValidUTF8(t *testing.T) {
	source := &fakeSyncSource{
		tables:  []string{"notes"},
		columns: map[string][]string{"notes": {"id", "body", "memo"}},
		rows: map[string][]map[string]any{"notes": {{
			"id": 1,
			// 400 characters but 1200 bytes: under the cap, must survive whole.
			"body": strings.Repeat("€", 400),
			// 1500 characters: capped at 1000 on a rune boundary.
			"memo": strings.Repeat("é", 1500),
		}}},
	}
	index := &collectingIndexer{}
	svc := NewSyncService(index, rag.Estimator{}, syncConfig())

	if _, err := svc.Sync(context.Background(), source, 0); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	text := index.chunks[0].Text
	if !utf8.ValidString(text) {
		t.Fatal("chunk text is not valid UTF-8")
	}
	if !strings.Contains(text, "body: "+strings.Repeat("€", 400)) {
		t.Error("multi-byte field under the cap was truncated")
	}
	if !strings.Contains(text, strings.Repeat("é", 1000)+"...") {
		t.Error("over-cap field should keep exactly 1000 characters plus the ellipsis marker")
	}
}
