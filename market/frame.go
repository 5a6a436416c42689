package market

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Frame is a wide daily table: one row per trading date, one float64 column
// per series. Missing cells are NaN.
//
// Rows are sorted ascending by date and dates are unique. A Frame returned by
// Before shares storage with its parent and must be treated as read-only.
type Frame struct {
	dates   []time.Time
	columns []string
	index   map[string]int
	data    [][]float64 // data[col][row]
}

// Row is one input record used to build a Frame.
type Row struct {
	Time   time.Time
	Values map[string]float64
}

// NewFrame builds a Frame from rows. Columns not present in a row are NaN.
// Rows are sorted by date; duplicate dates are rejected.
func NewFrame(columns []string, rows []Row) (*Frame, error) {
	f := &Frame{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range f.columns {
		if _, dup := f.index[c]; dup {
			return nil, fmt.Errorf("frame: duplicate column %q", c)
		}
		f.index[c] = i
	}

	sorted := append([]Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	f.dates = make([]time.Time, len(sorted))
	f.data = make([][]float64, len(f.columns))
	for c := range f.data {
		f.data[c] = make([]float64, len(sorted))
	}

	for r, row := range sorted {
		d := Day(row.Time)
		if r > 0 && !f.dates[r-1].Before(d) {
			return nil, fmt.Errorf("frame: duplicate timestamp %s", d.Format(DateLayout))
		}
		f.dates[r] = d
		for c, name := range f.columns {
			v, ok := row.Values[name]
			if !ok {
				v = math.NaN()
			}
			f.data[c][r] = v
		}
	}

	return f, nil
}

func (f *Frame) Len() int { return len(f.dates) }

func (f *Frame) Columns() []string { return f.columns }

func (f *Frame) Dates() []time.Time { return f.dates }

// Date returns the date of row i.
func (f *Frame) Date(i int) time.Time { return f.dates[i] }

// Last returns the date of the final row, or the zero time for an empty frame.
func (f *Frame) Last() time.Time {
	if len(f.dates) == 0 {
		return time.Time{}
	}
	return f.dates[len(f.dates)-1]
}

func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the values of the named column. The slice must not be
// modified.
func (f *Frame) Column(name string) ([]float64, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.data[i], true
}

// Value returns the cell at row i of the named column.
func (f *Frame) Value(name string, i int) (float64, bool) {
	col, ok := f.Column(name)
	if !ok || i < 0 || i >= len(col) {
		return math.NaN(), false
	}
	return col[i], !math.IsNaN(col[i])
}

// Before returns the rows strictly before t.
func (f *Frame) Before(t time.Time) *Frame {
	t = Day(t)
	n := sort.Search(len(f.dates), func(i int) bool {
		return !f.dates[i].Before(t)
	})
	return f.head(n)
}

// Tail returns the last n rows.
func (f *Frame) Tail(n int) *Frame {
	if n >= len(f.dates) {
		return f
	}
	if n < 0 {
		n = 0
	}
	start := len(f.dates) - n
	out := &Frame{
		dates:   f.dates[start:],
		columns: f.columns,
		index:   f.index,
		data:    make([][]float64, len(f.data)),
	}
	for c := range f.data {
		out.data[c] = f.data[c][start:]
	}
	return out
}

func (f *Frame) head(n int) *Frame {
	out := &Frame{
		dates:   f.dates[:n:n],
		columns: f.columns,
		index:   f.index,
		data:    make([][]float64, len(f.data)),
	}
	for c := range f.data {
		out.data[c] = f.data[c][:n:n]
	}
	return out
}

// rowAtOrBefore returns the index of the latest row dated at or before t.
func (f *Frame) rowAtOrBefore(t time.Time) (int, bool) {
	t = Day(t)
	n := sort.Search(len(f.dates), func(i int) bool {
		return f.dates[i].After(t)
	})
	if n == 0 {
		return 0, false
	}
	return n - 1, true
}

// PriceAt returns the asset's value on t, falling back to the most recent
// prior date. It never looks ahead.
func (f *Frame) PriceAt(asset string, t time.Time) (float64, bool) {
	i, ok := f.rowAtOrBefore(t)
	if !ok {
		return 0, false
	}
	v, ok := f.Value(ValueColumn(asset), i)
	if !ok {
		return 0, false
	}
	return v, true
}

// Assets lists the asset codes that have a value column, in column order.
func (f *Frame) Assets() []string {
	var out []string
	for _, c := range f.columns {
		if IsMacro(c) {
			continue
		}
		if a, ok := AssetFromValueColumn(c); ok {
			out = append(out, a)
		}
	}
	return out
}
