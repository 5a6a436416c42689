package prediction

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/predictsim/market"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var errNoRows = errors.New("no rows to fit")

// observed returns the non-missing points of a column.
func observed(history *market.Frame, col string) ([]time.Time, []float64, error) {
	values, ok := history.Column(col)
	if !ok {
		return nil, nil, fmt.Errorf("column %s not found", col)
	}
	var dates []time.Time
	var vals []float64
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		dates = append(dates, history.Date(i))
		vals = append(vals, v)
	}
	return dates, vals, nil
}

// resampleDaily fills calendar gaps by carrying the previous value forward.
func resampleDaily(dates []time.Time, vals []float64) []float64 {
	if len(dates) == 0 {
		return nil
	}
	out := []float64{vals[0]}
	for i := 1; i < len(dates); i++ {
		gap := int(dates[i].Sub(dates[i-1]).Hours() / 24)
		for g := 1; g < gap; g++ {
			out = append(out, vals[i-1])
		}
		out = append(out, vals[i])
	}
	return out
}

func diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

// completeRows returns the indices of rows where every listed column is
// present.
func completeRows(history *market.Frame, cols []string) []int {
	data := make([][]float64, len(cols))
	for c, name := range cols {
		data[c], _ = history.Column(name)
	}
	var out []int
	for i := 0; i < history.Len(); i++ {
		ok := true
		for _, col := range data {
			if col == nil || math.IsNaN(col[i]) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// leastSquares returns the minimum-norm solution of rows * x = y.
func leastSquares(rows [][]float64, y []float64) ([]float64, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errNoRows
	}
	n, k := len(rows), len(rows[0])

	a := mat.NewDense(n, k, nil)
	for i, r := range rows {
		a.SetRow(i, r)
	}
	b := mat.NewVecDense(n, append([]float64(nil), y...))

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("svd factorization failed")
	}
	out := make([]float64, k)
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return out, nil
	}

	var x mat.VecDense
	svd.SolveVecTo(&x, b, rank)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

// linearModel is an ordinary least squares fit with intercept.
type linearModel struct {
	coef      []float64
	intercept float64
}

// fitLinear centres the data so the intercept is not penalised by the
// minimum-norm solve.
func fitLinear(rows [][]float64, y []float64) (*linearModel, error) {
	if len(rows) == 0 {
		return nil, errNoRows
	}
	k := len(rows[0])

	means := make([]float64, k)
	col := make([]float64, len(rows))
	for j := 0; j < k; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		means[j] = stat.Mean(col, nil)
	}
	ymean := stat.Mean(y, nil)

	if k == 0 {
		return &linearModel{intercept: ymean}, nil
	}

	centred := make([][]float64, len(rows))
	yc := make([]float64, len(y))
	for i, r := range rows {
		centred[i] = make([]float64, k)
		for j := range r {
			centred[i][j] = r[j] - means[j]
		}
		yc[i] = y[i] - ymean
	}

	coef, err := leastSquares(centred, yc)
	if err != nil {
		return nil, err
	}
	m := &linearModel{coef: coef, intercept: ymean}
	for j, c := range coef {
		m.intercept -= c * means[j]
	}
	return m, nil
}

func (m *linearModel) predict(x []float64) float64 {
	out := m.intercept
	for j, c := range m.coef {
		out += c * x[j]
	}
	return out
}
