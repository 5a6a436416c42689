package market

import (
	"fmt"
	"math"
)

// MovingAveragePeriod is the window of the <asset>_feature_ma_10 column.
const MovingAveragePeriod = 10

// SimpleMA is a streaming simple moving average.
type SimpleMA struct {
	period int
	window []float64
	sum    float64
}

func NewSimpleMA(period int) *SimpleMA {
	return &SimpleMA{period: period, window: make([]float64, 0, period)}
}

func (m *SimpleMA) Name() string {
	return fmt.Sprintf("MA(%d)", m.period)
}

func (m *SimpleMA) Reset() {
	m.window = m.window[:0]
	m.sum = 0
}

func (m *SimpleMA) Update(v float64) {
	m.window = append(m.window, v)
	m.sum += v
	// Keep only the last 'period' values
	if len(m.window) > m.period {
		m.sum -= m.window[0]
		m.window = m.window[1:]
	}
}

func (m *SimpleMA) Ready() bool {
	return len(m.window) >= m.period
}

// Value returns NaN until period values have been seen.
func (m *SimpleMA) Value() float64 {
	if !m.Ready() {
		return math.NaN()
	}
	return m.sum / float64(len(m.window))
}

// WithMovingAverages returns f extended by a MovingAverageColumn for every
// asset that lacks one. Missing prices are skipped and leave the cell NaN.
// f is returned unchanged when nothing is missing.
func (f *Frame) WithMovingAverages(period int) *Frame {
	var missing []string
	for _, a := range f.Assets() {
		if !f.HasColumn(MovingAverageColumn(a)) {
			missing = append(missing, a)
		}
	}
	if len(missing) == 0 || period <= 0 {
		return f
	}

	out := &Frame{
		dates:   f.dates,
		columns: append([]string(nil), f.columns...),
		index:   make(map[string]int, len(f.columns)+len(missing)),
		data:    append([][]float64(nil), f.data...),
	}
	for i, c := range out.columns {
		out.index[c] = i
	}

	ma := NewSimpleMA(period)
	for _, a := range missing {
		values, _ := f.Column(ValueColumn(a))
		col := make([]float64, len(values))
		ma.Reset()
		for i, v := range values {
			if math.IsNaN(v) {
				col[i] = math.NaN()
				continue
			}
			ma.Update(v)
			col[i] = ma.Value()
		}
		out.index[MovingAverageColumn(a)] = len(out.columns)
		out.columns = append(out.columns, MovingAverageColumn(a))
		out.data = append(out.data, col)
	}
	return out
}
