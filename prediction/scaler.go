package prediction

import "math"

// minMaxScaler maps each column linearly onto [0, 1]. A constant column is
// only shifted.
type minMaxScaler struct {
	min   []float64
	scale []float64 // max - min, or 1 for a constant column
}

func fitMinMax(rows [][]float64) *minMaxScaler {
	if len(rows) == 0 {
		return &minMaxScaler{}
	}
	k := len(rows[0])
	s := &minMaxScaler{min: make([]float64, k), scale: make([]float64, k)}
	for j := 0; j < k; j++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, r := range rows {
			lo = math.Min(lo, r[j])
			hi = math.Max(hi, r[j])
		}
		s.min[j] = lo
		s.scale[j] = hi - lo
		if s.scale[j] == 0 {
			s.scale[j] = 1
		}
	}
	return s
}

// transform scales the first len(row) columns.
func (s *minMaxScaler) transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.min[j]) / s.scale[j]
	}
	return out
}

func (s *minMaxScaler) inverse(j int, v float64) float64 {
	return v*s.scale[j] + s.min[j]
}
