package market

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
)

// LoadParquet reads a flat wide table from a Parquet file. The timestamp
// column may be an INT64 TIMESTAMP (milliseconds unless the logical type says
// micros or nanos), an INT32 count of days since the epoch, or a date string.
func LoadParquet(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load parquet: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("load parquet: %w", err)
	}

	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("load parquet %s: %w", path, err)
	}

	paths := pf.Schema().Columns()
	names := make([]string, len(paths))
	tsIdx := -1
	var columns []string
	for i, p := range paths {
		names[i] = p[len(p)-1]
		if names[i] == TimestampColumn {
			tsIdx = i
			continue
		}
		columns = append(columns, names[i])
	}
	if tsIdx < 0 {
		return nil, fmt.Errorf("load parquet %s: missing %q column", path, TimestampColumn)
	}
	unit := time.Millisecond
	if leaf, ok := pf.Schema().Lookup(TimestampColumn); ok {
		unit = timestampUnit(leaf.Node)
	}

	var rows []Row
	buf := make([]parquet.Row, 128)
	for _, rg := range pf.RowGroups() {
		rr := rg.Rows()
		for {
			n, err := rr.ReadRows(buf)
			for _, pr := range buf[:n] {
				row, err := decodeParquetRow(pr, names, tsIdx, unit)
				if err != nil {
					rr.Close()
					return nil, fmt.Errorf("load parquet %s: %w", path, err)
				}
				rows = append(rows, row)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rr.Close()
				return nil, fmt.Errorf("load parquet %s: %w", path, err)
			}
		}
		if err := rr.Close(); err != nil {
			return nil, fmt.Errorf("load parquet %s: %w", path, err)
		}
	}

	return NewFrame(columns, rows)
}

func decodeParquetRow(pr parquet.Row, names []string, tsIdx int, unit time.Duration) (Row, error) {
	row := Row{Values: make(map[string]float64, len(names)-1)}
	haveTime := false

	for _, v := range pr {
		col := v.Column()
		if col < 0 || col >= len(names) {
			continue
		}
		if col == tsIdx {
			t, err := parquetTime(v, unit)
			if err != nil {
				return Row{}, err
			}
			row.Time = t
			haveTime = true
			continue
		}
		row.Values[names[col]] = parquetFloat(v)
	}

	if !haveTime {
		return Row{}, fmt.Errorf("row without %s", TimestampColumn)
	}
	return row, nil
}

// timestampUnit returns the tick of an INT64 timestamp leaf.
func timestampUnit(n parquet.Node) time.Duration {
	lt := n.Type().LogicalType()
	if lt == nil || lt.Timestamp == nil {
		return time.Millisecond
	}
	switch u := lt.Timestamp.Unit; {
	case u.Micros != nil:
		return time.Microsecond
	case u.Nanos != nil:
		return time.Nanosecond
	default:
		return time.Millisecond
	}
}

func parquetTime(v parquet.Value, unit time.Duration) (time.Time, error) {
	if v.IsNull() {
		return time.Time{}, fmt.Errorf("null %s", TimestampColumn)
	}
	switch v.Kind() {
	case parquet.Int64:
		return Day(time.Unix(0, v.Int64()*int64(unit))), nil
	case parquet.Int32:
		return time.Unix(0, 0).UTC().AddDate(0, 0, int(v.Int32())), nil
	case parquet.ByteArray:
		return ParseDate(string(v.ByteArray()))
	default:
		return time.Time{}, fmt.Errorf("unsupported %s kind %v", TimestampColumn, v.Kind())
	}
}

func parquetFloat(v parquet.Value) float64 {
	if v.IsNull() {
		return math.NaN()
	}
	switch v.Kind() {
	case parquet.Double:
		return v.Double()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Int64:
		return float64(v.Int64())
	case parquet.Int32:
		return float64(v.Int32())
	case parquet.Boolean:
		if v.Boolean() {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}
