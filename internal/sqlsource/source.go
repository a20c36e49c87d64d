// Package sqlsource wraps a database/sql connection as the relational
// capability consumed by the synchronizer and the query pipeline: table
// enumeration, row counting, stable paging and ad-hoc query execution.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"sql-rag-platform/internal/rag"
)

// QueryResult is the structured form of an executed query: ordered column
// names plus one map per row.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// Source exposes the relational database behind the sync and SQL-execution
// paths. One Source maps to one connection pool.
type Source struct {
	db     *sql.DB
	driver string
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open connects with the given driver ("sqlite", "mysql", "postgres") and
// verifies connectivity before returning.
func Open(driver, dsn string) (*Source, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s source: %v", rag.ErrExecution, driver, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging %s source: %v", rag.ErrExecution, driver, err)
	}
	return &Source{db: db, driver: driver}, nil
}

// FromDB wraps an already-open handle. Used by tests and by callers that
// manage the pool themselves.
func FromDB(db *sql.DB, driver string) *Source {
	return &Source{db: db, driver: driver}
}

func (s *Source) Close() error { return s.db.Close() }

// Tables enumerates user tables, sorted by name so sync runs walk them in a
// stable order.
func (s *Source) Tables(ctx context.Context) ([]string, error) {
	var query string
	switch s.driver {
	case "sqlite", "sqlite3":
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case "postgres", "pgx":
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`
	default:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: listing tables: %v", rag.ErrExecution, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scanning table name: %v", rag.ErrExecution, err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// CountRows returns the row count of table.
func (s *Source) CountRows(ctx context.Context, table string) (int64, error) {
	if !identPattern.MatchString(table) {
		return 0, fmt.Errorf("%w: invalid table name %q", rag.ErrValidation, table)
	}
	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting rows in %s: %v", rag.ErrExecution, table, err)
	}
	return count, nil
}

// Page reads one offset/limit window of table, ordered by the first column
// as a stable tiebreak so repeated runs see rows in the same order.
func (s *Source) Page(ctx context.Context, table string, offset, limit int) (*QueryResult, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", rag.ErrValidation, table)
	}
	query := fmt.Sprintf(`SELECT * FROM %q ORDER BY 1 LIMIT %d OFFSET %d`, table, limit, offset)
	return s.Run(ctx, query)
}

// Run executes an arbitrary SQL query and returns its result set. This is
// the SQLExecutor capability behind the query orchestrator's fallback path.
func (s *Source) Run(ctx context.Context, query string) (*QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrExecution, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: reading columns: %v", rag.ErrExecution, err)
	}

	result := &QueryResult{Columns: cols}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", rag.ErrExecution, err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalize(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %v", rag.ErrExecution, err)
	}
	return result, nil
}

// normalize converts driver-specific scan values into plain Go types.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	default:
		return v
	}
}
