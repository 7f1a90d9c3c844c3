package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodom/internal/value"
)

// openTestDB connects to NODOM_TEST_POSTGRES_DSN or skips.
func openTestDB(t *testing.T) *Adapter {
	t.Helper()
	dsn := os.Getenv("NODOM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NODOM_TEST_POSTGRES_DSN not set")
	}
	a, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestTypeName(t *testing.T) {
	tm := pgtype.NewMap()
	assert.Equal(t, "int4", typeName(tm, pgtype.Int4OID))
	assert.Equal(t, "text", typeName(tm, pgtype.TextOID))
	assert.Equal(t, "oid:999999", typeName(tm, 999999))
	assert.Equal(t, "oid:25", typeName(nil, pgtype.TextOID))
}

func TestQuery_SelectOne(t *testing.T) {
	a := openTestDB(t)

	rs, err := a.Query(context.Background(), "SELECT 1 AS one")
	require.NoError(t, err)
	require.Len(t, rs.Columns, 1)
	assert.Equal(t, "one", rs.Columns[0].Name)
	assert.Equal(t, "int4", rs.Columns[0].Type)
	assert.Equal(t, []value.Value{value.Int(1)}, rs.Columns[0].Values)
}

func TestExecute_MultiStatementScan(t *testing.T) {
	a := openTestDB(t)
	ctx := context.Background()

	_, err := a.Execute(ctx, `BEGIN;
		DROP TABLE IF EXISTS nodom_depth_test;
		CREATE TABLE nodom_depth_test AS SELECT g AS seq_no FROM generate_series(0, 4) g;
		COMMIT;`)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = a.Execute(ctx, "DROP TABLE IF EXISTS nodom_depth_test") })

	rs, err := a.Query(ctx, "SELECT seq_no FROM nodom_depth_test WHERE seq_no > 0 ORDER BY seq_no LIMIT 2")
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Rows)
	assert.Equal(t, []value.Value{value.Int(1), value.Int(2)}, rs.Columns[0].Values)
}
