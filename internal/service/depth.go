package service

import (
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/roach88/nodom/internal/cache"
	"github.com/roach88/nodom/internal/rules"
	"github.com/roach88/nodom/internal/value"
)

// NameDepth selects Depth.
const NameDepth = "depth"

// Statement templates the depth service keeps current.
const (
	DepthScanTemplate  = "BEGIN; DROP TABLE IF EXISTS depth; CREATE TABLE depth as select * from parquet_scan(${data.scan_urls}); COMMIT;"
	DepthQueryTemplate = "select * from depth where SeqNo > 0 order by CaptureTS limit 10 offset ${data.depth_offset};"
)

// DefaultParquetURL is where the server mounts parquet files.
const DefaultParquetURL = "https://localhost/api/parquet/"

// Depth rebuilds the market-depth scan when the instrument or date range
// changes, and the page query when the offset changes.
//
// Dates are [year, month, day] arrays. Files are named
// <instrument>_YYYYMMDD.parquet; a reversed range is swapped.
type Depth struct {
	files fs.FS
	base  string
}

// NewDepth lists parquet files in files and addresses them under base.
func NewDepth(files fs.FS, base string) *Depth {
	if base == "" {
		base = DefaultParquetURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Depth{files: files, base: base}
}

func (d *Depth) Derive(change cache.Change, data Data) ([]Update, error) {
	switch change.Key {
	case "start_date", "end_date", "selected_instrument":
		return d.rescan(data)
	case "depth_offset":
		sql, err := rules.Render(DepthQueryTemplate, data.Get)
		if err != nil {
			return nil, err
		}
		return []Update{{Key: "depth_sql", Value: value.String(sql)}}, nil
	}
	return nil, nil
}

func (d *Depth) rescan(data Data) ([]Update, error) {
	instrument, err := selectedInstrument(data)
	if err != nil {
		return nil, err
	}
	start, err := dateValue(data, "start_date")
	if err != nil {
		return nil, err
	}
	end, err := dateValue(data, "end_date")
	if err != nil {
		return nil, err
	}

	names, err := d.list(instrument)
	if err != nil {
		return nil, err
	}
	matches, err := DateRangedMatches(names, start, end, instrument)
	if err != nil {
		return nil, err
	}
	urls := value.Array{}
	for _, name := range matches {
		urls = append(urls, value.String(d.base+name))
	}

	// Render against the new URL list before it is applied.
	lookup := func(key string) (value.Value, bool) {
		if key == "scan_urls" {
			return urls, true
		}
		return data.Get(key)
	}
	sql, err := rules.Render(DepthScanTemplate, lookup)
	if err != nil {
		return nil, err
	}
	return []Update{
		{Key: "scan_urls", Value: urls},
		{Key: "scan_sql", Value: value.String(sql)},
	}, nil
}

func (d *Depth) list(instrument string) ([]string, error) {
	if d.files == nil {
		return nil, nil
	}
	names, err := fs.Glob(d.files, instrument+"_*.parquet")
	if err != nil {
		return nil, fmt.Errorf("list parquet files for %s: %w", instrument, err)
	}
	return names, nil
}

// MaxScanDays is the longest date range, in days, one rescan may cover.
const MaxScanDays = 366

// DateRangedMatches returns the names among files matching
// <instrument>_YYYYMMDD.parquet for each day from start to end inclusive, in
// date order. Reversed bounds are swapped. Ranges longer than MaxScanDays
// are rejected.
func DateRangedMatches(files []string, start, end time.Time, instrument string) ([]string, error) {
	if end.Before(start) {
		start, end = end, start
	}
	// Sub saturates for far-apart dates, which still exceeds the cap.
	if days := int64(end.Sub(start)/(24*time.Hour)) + 1; days > MaxScanDays {
		return nil, fmt.Errorf("date range %s to %s spans %d days, more than %d",
			start.Format(time.DateOnly), end.Format(time.DateOnly), days, MaxScanDays)
	}
	var matches []string
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		name := instrument + "_" + day.Format("20060102") + ".parquet"
		if slices.Contains(files, name) {
			matches = append(matches, name)
		}
	}
	return matches, nil
}

func selectedInstrument(data Data) (string, error) {
	list, ok := data.Get("instruments")
	if !ok {
		return "", fmt.Errorf("data has no instruments")
	}
	instruments, ok := list.(value.Array)
	if !ok {
		return "", fmt.Errorf("instruments is %s, want array", value.Kind(list))
	}
	idx, ok := data.Get("selected_instrument")
	if !ok {
		return "", fmt.Errorf("data has no selected_instrument")
	}
	i, ok := idx.(value.Int)
	if !ok || i < 0 || int(i) >= len(instruments) {
		return "", fmt.Errorf("selected_instrument %v out of range", idx)
	}
	name, ok := instruments[i].(value.String)
	if !ok {
		return "", fmt.Errorf("instrument %d is %s, want string", i, value.Kind(instruments[i]))
	}
	return string(name), nil
}

func dateValue(data Data, key string) (time.Time, error) {
	v, ok := data.Get(key)
	if !ok {
		return time.Time{}, fmt.Errorf("data has no %s", key)
	}
	arr, ok := v.(value.Array)
	if !ok || len(arr) != 3 {
		return time.Time{}, fmt.Errorf("%s is not a [year, month, day] array", key)
	}
	var ymd [3]int
	for i, part := range arr {
		n, ok := part.(value.Int)
		if !ok {
			return time.Time{}, fmt.Errorf("%s[%d] is %s, want int", key, i, value.Kind(part))
		}
		ymd[i] = int(n)
	}
	return time.Date(ymd[0], time.Month(ymd[1]), ymd[2], 0, 0, 0, 0, time.UTC), nil
}
