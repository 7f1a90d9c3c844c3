// Package sqlite implements the query backend on an embedded SQLite database.
//
// The database holds one connection: statements from every session share its
// tables, matching the one-shared-backend model.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/nodom/internal/query"
)

// Adapter executes statements against SQLite.
type Adapter struct {
	db *sql.DB
}

var _ query.Adapter = (*Adapter)(nil)

// Open creates or opens a SQLite database at path. Use ":memory:" for a
// process-local database.
//
// The database is configured with:
//   - WAL mode for file-backed databases
//   - a 5-second busy timeout for lock contention
//   - a single open connection so in-memory tables persist across statements
func Open(path string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db, path); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &Adapter{db: db}, nil
}

// Execute runs a statement that produces no result set. Multiple
// semicolon-separated statements are allowed. When one of them fails, a
// transaction the earlier ones opened is rolled back so the shared
// connection is usable again.
func (a *Adapter) Execute(ctx context.Context, statement string) (query.Ack, error) {
	res, err := a.db.ExecContext(ctx, statement)
	if err != nil {
		a.rollbackOpen()
		return query.Ack{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return query.Ack{}, nil
	}
	return query.Ack{RowsAffected: n}, nil
}

// Query runs a statement and materializes every row.
func (a *Adapter) Query(ctx context.Context, statement string) (*query.ResultSet, error) {
	rows, err := a.db.QueryContext(ctx, statement)
	if err != nil {
		a.rollbackOpen()
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}
	types := make([]string, len(colTypes))
	for i, ct := range colTypes {
		types[i] = strings.ToLower(ct.DatabaseTypeName())
	}

	b := query.NewBuilder(names, types)
	for rows.Next() {
		cells := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		b.Append(cells)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b.Result(), nil
}

// rollbackOpen ends a transaction left open by a failed statement. With no
// transaction active SQLite reports an error, which is expected and ignored.
func (a *Adapter) rollbackOpen() {
	_, _ = a.db.Exec("ROLLBACK")
}

// Close closes the database connection.
func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func applyPragmas(db *sql.DB, path string) error {
	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if path != ":memory:" && !strings.Contains(path, "mode=memory") {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (a *Adapter) pragma(name string) (string, error) {
	var v string
	if err := a.db.QueryRow("PRAGMA " + name).Scan(&v); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	return v, nil
}
