package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"sql-rag-platform/internal/rag"
)

func openTestSource(t *testing.T) *Source {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT, city TEXT)`,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER, total REAL)`,
		`INSERT INTO customers VALUES (1, 'Ana', 'Madrid'), (2, 'Luis', 'Bogota'), (3, 'Mei', 'Taipei')`,
		`INSERT INTO orders VALUES (10, 1, 99.5)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return FromDB(db, "sqlite")
}

func TestTablesSortedByName(t *testing.T) {
	s := openTestSource(t)
	tables, err := s.Tables(context.Background())
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	want := []string{"customers", "orders"}
	if len(tables) != len(want) {
		t.Fatalf("got %v, want %v", tables, want)
	}
	for i := range want {
		if tables[i] != want[i] {
			t.Fatalf("got %v, want %v", tables, want)
		}
	}
}

func TestCountRows(t *testing.T) {
	s := openTestSource(t)
	n, err := s.CountRows(context.Background(), "customers")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("got %d rows, want 3", n)
	}
}

func TestCountRowsRejectsBadIdentifier(t *testing.T) {
	s := openTestSource(t)
	_, err := s.CountRows(context.Background(), "customers; DROP TABLE orders")
	if !errors.Is(err, rag.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPageIsStable(t *testing.T) {
	s := openTestSource(t)
	first, err := s.Page(context.Background(), "customers", 0, 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(first.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(first.Rows))
	}
	second, err := s.Page(context.Background(), "customers", 2, 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(second.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(second.Rows))
	}
	if first.Rows[0]["name"] != "Ana" || second.Rows[0]["name"] != "Mei" {
		t.Fatalf("paging order unstable: %v / %v", first.Rows, second.Rows)
	}
}

func TestRunReturnsColumnsAndRows(t *testing.T) {
	s := openTestSource(t)
	res, err := s.Run(context.Background(), `SELECT name, city FROM customers WHERE id = 1`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Columns) != 2 || res.Columns[0] != "name" {
		t.Fatalf("unexpected columns %v", res.Columns)
	}
	if len(res.Rows) != 1 || res.Rows[0]["city"] != "Madrid" {
		t.Fatalf("unexpected rows %v", res.Rows)
	}
}

func TestRunBadSQLIsExecutionError(t *testing.T) {
	s := openTestSource(t)
	_, err := s.Run(context.Background(), `SELECT * FROM missing_table`)
	if !errors.Is(err, rag.ErrExecution) {
		t.Fatalf("expected execution error, got %v", err)
	}
}
