// Package postgres implements the query backend on a PostgreSQL connection
// using pgx.
package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/roach88/nodom/internal/query"
)

// DB is the subset of *pgx.Conn the adapter uses.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	TypeMap() *pgtype.Map
	Close(ctx context.Context) error
}

// Adapter executes statements on one PostgreSQL connection.
type Adapter struct {
	db DB
}

var _ query.Adapter = (*Adapter)(nil)

// Open connects to the database named by dsn.
func Open(ctx context.Context, dsn string) (*Adapter, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &Adapter{db: conn}, nil
}

// New wraps an existing connection.
func New(db DB) *Adapter {
	return &Adapter{db: db}
}

// Execute runs a statement that produces no result set. Without arguments
// pgx uses the simple protocol, so several statements may be sent at once.
func (a *Adapter) Execute(ctx context.Context, statement string) (query.Ack, error) {
	tag, err := a.db.Exec(ctx, statement)
	if err != nil {
		return query.Ack{}, err
	}
	return query.Ack{RowsAffected: tag.RowsAffected()}, nil
}

// Query runs a statement and materializes every row.
func (a *Adapter) Query(ctx context.Context, statement string) (*query.ResultSet, error) {
	rows, err := a.db.Query(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	types := make([]string, len(fields))
	tm := a.db.TypeMap()
	for i, fd := range fields {
		names[i] = fd.Name
		types[i] = typeName(tm, fd.DataTypeOID)
	}

	b := query.NewBuilder(names, types)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		b.Append(vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b.Result(), nil
}

// Close closes the connection.
func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close(context.Background())
}

func typeName(tm *pgtype.Map, oid uint32) string {
	if tm != nil {
		if t, ok := tm.TypeForOID(oid); ok {
			return t.Name
		}
	}
	return "oid:" + strconv.FormatUint(uint64(oid), 10)
}
