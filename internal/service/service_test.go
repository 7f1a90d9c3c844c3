package service

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodom/internal/cache"
	"github.com/roach88/nodom/internal/value"
)

func additionCache() *cache.Cache {
	return cache.New(nil, value.NewObject(
		value.O("op1", value.Int(2)),
		value.O("op2", value.Int(3)),
		value.O("op1_plus_op2", value.Int(5)),
	))
}

func TestNew(t *testing.T) {
	d, err := New("", Options{})
	require.NoError(t, err)
	assert.IsType(t, None{}, d)

	d, err = New(NameAddition, Options{})
	require.NoError(t, err)
	assert.IsType(t, Addition{}, d)

	d, err = New(NameDepth, Options{})
	require.NoError(t, err)
	assert.IsType(t, &Depth{}, d)

	_, err = New("nope", Options{})
	assert.EqualError(t, err, `unknown service "nope"`)

	assert.Equal(t, []string{"addition", "depth"}, Names())
}

func TestAddition_RecomputesSum(t *testing.T) {
	c := additionCache()
	ch, err := c.Set("op1", value.Int(7))
	require.NoError(t, err)

	updates, err := Addition{}.Derive(ch, c.Data())
	require.NoError(t, err)
	assert.Equal(t, []Update{{Key: "op1_plus_op2", Value: value.Int(10)}}, updates)
}

func TestAddition_FloatOperand(t *testing.T) {
	c := additionCache()
	ch, err := c.Set("op2", value.Float(0.5))
	require.NoError(t, err)

	updates, err := Addition{}.Derive(ch, c.Data())
	require.NoError(t, err)
	assert.Equal(t, []Update{{Key: "op1_plus_op2", Value: value.Float(2.5)}}, updates)
}

func TestAddition_IgnoresOtherKeys(t *testing.T) {
	c := additionCache()
	updates, err := Addition{}.Derive(cache.Change{Key: "op1_plus_op2"}, c.Data())
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestAddition_NonNumeric(t *testing.T) {
	c := additionCache()
	ch, err := c.Set("op1", value.String("two"))
	require.NoError(t, err)

	_, err = Addition{}.Derive(ch, c.Data())
	assert.EqualError(t, err, "op1 is string, want number")
}

func date(y, m, d int) value.Array {
	return value.NewArray(value.Int(y), value.Int(m), value.Int(d))
}

func depthCache() *cache.Cache {
	return cache.New(nil, value.NewObject(
		value.O("instruments", value.NewArray(value.String("FGBMU8"), value.String("FGBLZ8"))),
		value.O("selected_instrument", value.Int(0)),
		value.O("start_date", date(2008, 9, 1)),
		value.O("end_date", date(2008, 9, 1)),
		value.O("scan_urls", value.Array{}),
		value.O("scan_sql", value.String("")),
		value.O("depth_offset", value.Int(0)),
		value.O("depth_sql", value.String("")),
	))
}

func parquetFS() fstest.MapFS {
	return fstest.MapFS{
		"FGBMU8_20080901.parquet": {},
		"FGBMU8_20080902.parquet": {},
		"FGBMU8_20080904.parquet": {},
		"FGBLZ8_20080902.parquet": {},
		"notes.txt":               {},
	}
}

func TestDepth_RescanOnDateChange(t *testing.T) {
	c := depthCache()
	d := NewDepth(parquetFS(), "https://localhost/api/parquet")

	ch, err := c.Set("end_date", date(2008, 9, 3))
	require.NoError(t, err)
	updates, err := d.Derive(ch, c.Data())
	require.NoError(t, err)

	require.Len(t, updates, 2)
	assert.Equal(t, "scan_urls", updates[0].Key)
	assert.Equal(t, value.NewArray(
		value.String("https://localhost/api/parquet/FGBMU8_20080901.parquet"),
		value.String("https://localhost/api/parquet/FGBMU8_20080902.parquet"),
	), updates[0].Value)
	assert.Equal(t, "scan_sql", updates[1].Key)
	assert.Equal(t, value.String("BEGIN; DROP TABLE IF EXISTS depth; CREATE TABLE depth as select * from parquet_scan("+
		"['https://localhost/api/parquet/FGBMU8_20080901.parquet', 'https://localhost/api/parquet/FGBMU8_20080902.parquet']); COMMIT;"),
		updates[1].Value)
}

func TestDepth_RescanOnInstrumentChange(t *testing.T) {
	c := depthCache()
	d := NewDepth(parquetFS(), "")
	_, err := c.Set("end_date", date(2008, 9, 30))
	require.NoError(t, err)

	ch, err := c.Set("selected_instrument", value.Int(1))
	require.NoError(t, err)
	updates, err := d.Derive(ch, c.Data())
	require.NoError(t, err)
	assert.Equal(t, value.NewArray(value.String(DefaultParquetURL+"FGBLZ8_20080902.parquet")), updates[0].Value)
}

func TestDepth_InstrumentOutOfRange(t *testing.T) {
	c := depthCache()
	ch, err := c.Set("selected_instrument", value.Int(9))
	require.NoError(t, err)

	_, err = NewDepth(parquetFS(), "").Derive(ch, c.Data())
	assert.EqualError(t, err, "selected_instrument 9 out of range")
}

func TestDepth_BadDate(t *testing.T) {
	c := depthCache()
	ch, err := c.Set("start_date", value.String("2008-09-01"))
	require.NoError(t, err)

	_, err = NewDepth(parquetFS(), "").Derive(ch, c.Data())
	assert.EqualError(t, err, "start_date is not a [year, month, day] array")
}

func TestDepth_RejectsLongRange(t *testing.T) {
	c := depthCache()
	_, err := c.Set("start_date", date(1, 1, 1))
	require.NoError(t, err)
	ch, err := c.Set("end_date", date(9999, 12, 31))
	require.NoError(t, err)

	updates, err := NewDepth(parquetFS(), "").Derive(ch, c.Data())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001-01-01 to 9999-12-31")
	assert.Empty(t, updates)
}

func TestDepth_PageQuery(t *testing.T) {
	c := depthCache()
	ch, err := c.Set("depth_offset", value.Int(30))
	require.NoError(t, err)

	updates, err := NewDepth(nil, "").Derive(ch, c.Data())
	require.NoError(t, err)
	assert.Equal(t, []Update{{
		Key:   "depth_sql",
		Value: value.String("select * from depth where SeqNo > 0 order by CaptureTS limit 10 offset 30;"),
	}}, updates)
}

func TestDepth_NoFilesStillScans(t *testing.T) {
	c := depthCache()
	ch, err := c.Set("start_date", date(2001, 1, 1))
	require.NoError(t, err)

	updates, err := NewDepth(nil, "").Derive(ch, c.Data())
	require.NoError(t, err)
	assert.Equal(t, value.Array{}, updates[0].Value)
	assert.Contains(t, string(updates[1].Value.(value.String)), "parquet_scan([])")
}

func TestDateRangedMatches(t *testing.T) {
	files := []string{"X_20080901.parquet", "X_20080903.parquet", "Y_20080902.parquet"}
	d1 := time.Date(2008, 9, 1, 0, 0, 0, 0, time.UTC)
	d3 := time.Date(2008, 9, 3, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		start, end time.Time
		instrument string
		want       []string
	}{
		{"forward", d1, d3, "X", []string{"X_20080901.parquet", "X_20080903.parquet"}},
		{"reversed", d3, d1, "X", []string{"X_20080901.parquet", "X_20080903.parquet"}},
		{"one day", d1, d1, "X", []string{"X_20080901.parquet"}},
		{"other instrument", d1, d3, "Z", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DateRangedMatches(files, tt.start, tt.end, tt.instrument)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateRangedMatches_SpanLimit(t *testing.T) {
	start := time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := DateRangedMatches(nil, start, start.AddDate(0, 0, MaxScanDays-1), "X")
	require.NoError(t, err)

	_, err = DateRangedMatches(nil, start, start.AddDate(0, 0, MaxScanDays), "X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than 366")

	_, err = DateRangedMatches(nil, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC), "X")
	require.Error(t, err)
}
