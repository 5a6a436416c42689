package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Load reads a wide table from path, choosing the decoder by extension.
func Load(path string) (*Frame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return LoadParquet(path)
	default:
		return LoadCSV(path)
	}
}

// LoadCSV reads a wide table whose header contains a timestamp column.
func LoadCSV(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load csv: %w", err)
	}
	defer f.Close()

	fr, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("load csv %s: %w", path, err)
	}
	return fr, nil
}

// ReadCSV decodes a wide table from r.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	tsIdx := -1
	var columns []string
	colIdx := make([]int, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == TimestampColumn {
			tsIdx = i
			continue
		}
		// pandas writes an unnamed index column
		if h == "" || strings.HasPrefix(h, "Unnamed:") {
			continue
		}
		columns = append(columns, h)
		colIdx = append(colIdx, i)
	}
	if tsIdx < 0 {
		return nil, fmt.Errorf("missing %q column", TimestampColumn)
	}

	var rows []Row
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(rec) == 0 {
			continue
		}
		if len(rec) <= tsIdx {
			return nil, fmt.Errorf("line %d: short row", line)
		}

		t, err := ParseDate(rec[tsIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		vals := make(map[string]float64, len(columns))
		for k, i := range colIdx {
			if i >= len(rec) {
				continue
			}
			v, err := parseCell(rec[i])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, columns[k], err)
			}
			vals[columns[k]] = v
		}
		rows = append(rows, Row{Time: t, Values: vals})
	}

	return NewFrame(columns, rows)
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na", "null", "none":
		return math.NaN(), nil
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
