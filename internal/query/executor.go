package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/datasage-io/datasage/internal/dataset"
)

// ErrEngineUnavailable wraps failures to create or load the embedded engine
// instance, distinct from errors in the submitted query itself.
var ErrEngineUnavailable = errors.New("embedded engine unavailable")

// ExecError carries the engine's message for a malformed or failing query.
type ExecError struct {
	Query string
	Err   error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Result is a completed query's output.
type Result struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// Executor runs query text against a frame loaded into a fresh, process-local
// in-memory engine instance. The instance lives for exactly one call and is
// torn down unconditionally before returning, so concurrent executions never
// share state.
type Executor struct {
	table string
}

// NewExecutor creates an Executor loading frames into the given table name.
func NewExecutor(table string) *Executor {
	if table == "" {
		table = "user_data"
	}
	return &Executor{table: table}
}

// Execute loads the frame and runs queryText against it. The query text is
// passed to the engine unmodified; only the loaded schema has its column
// names sanitized.
func (e *Executor) Execute(ctx context.Context, frame *dataset.Frame, queryText string) (*Result, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer db.Close()

	// A pooled second connection would see a different empty :memory: database.
	db.SetMaxOpenConns(1)

	if err := e.load(ctx, db, frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	rows, err := db.QueryContext(ctx, queryText)
	if err != nil {
		return nil, &ExecError{Query: queryText, Err: err}
	}
	defer rows.Close()

	result, err := collect(rows)
	if err != nil {
		return nil, &ExecError{Query: queryText, Err: err}
	}
	return result, nil
}

// load creates the table and inserts every record. Columns whose sanitized
// names collide are resolved last-write-wins.
func (e *Executor) load(ctx context.Context, db *sql.DB, frame *dataset.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}

	schema := frame.Schema()
	keep := dedupeColumns(schema)

	var defs []string
	for _, idx := range keep {
		defs = append(defs, fmt.Sprintf("%q %s", schema[idx].Name, schema[idx].Type.SQLType()))
	}
	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", e.table, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
	insertStmt, err := db.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", e.table, placeholders))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer insertStmt.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	stmt := tx.Stmt(insertStmt)
	for i, rec := range frame.Records {
		args := make([]any, len(keep))
		for j, idx := range keep {
			args[j] = bindValue(rec[idx], schema[idx].Type)
		}
		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting record %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load: %w", err)
	}
	return nil
}

// dedupeColumns returns the original indexes of columns to load, dropping
// earlier occurrences of a sanitized name in favor of the last one.
func dedupeColumns(schema []dataset.Column) []int {
	last := make(map[string]int, len(schema))
	for i, c := range schema {
		last[c.Name] = i
	}
	var keep []int
	for i, c := range schema {
		if last[c.Name] == i {
			keep = append(keep, i)
		}
	}
	return keep
}

// bindValue converts a raw cell to the driver value for its declared column
// type. Empty cells become NULL; cells that fail to parse are bound as raw
// text so the engine still sees them.
func bindValue(cell string, typ dataset.ColumnType) any {
	v := strings.TrimSpace(cell)
	if v == "" {
		return nil
	}
	switch typ {
	case dataset.TypeInteger:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case dataset.TypeReal:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case dataset.TypeBoolean:
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	case dataset.TypeTimestamp:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC().Format(time.RFC3339)
			}
		}
	}
	return v
}

// collect converts the engine's result set to a column list and ordered row
// mappings.
func collect(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}

	result := &Result{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// normalizeValue maps driver byte slices to strings for JSON-friendly rows.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
