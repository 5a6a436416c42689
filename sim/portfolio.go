package sim

import (
	"sort"
	"time"

	"github.com/rustyeddy/predictsim/decision"
)

// Position is a long holding. It only exists while Quantity > 0.
type Position struct {
	Quantity int
	AvgPrice float64
}

// Portfolio maps asset codes to open positions.
type Portfolio struct {
	positions map[string]Position
}

func NewPortfolio() *Portfolio {
	return &Portfolio{positions: make(map[string]Position)}
}

func (p *Portfolio) Get(asset string) (Position, bool) {
	pos, ok := p.positions[asset]
	return pos, ok
}

// Holding implements decision.Portfolio.
func (p *Portfolio) Holding(asset string) (int, float64, bool) {
	pos, ok := p.positions[asset]
	return pos.Quantity, pos.AvgPrice, ok
}

func (p *Portfolio) Len() int { return len(p.positions) }

// Assets returns the held asset codes in sorted order.
func (p *Portfolio) Assets() []string {
	out := make([]string, 0, len(p.positions))
	for a := range p.positions {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of the positions.
func (p *Portfolio) Snapshot() map[string]Position {
	out := make(map[string]Position, len(p.positions))
	for a, pos := range p.positions {
		out[a] = pos
	}
	return out
}

// add buys qty at price, recomputing the volume-weighted average cost.
func (p *Portfolio) add(asset string, qty int, price float64) {
	pos, ok := p.positions[asset]
	if !ok {
		p.positions[asset] = Position{Quantity: qty, AvgPrice: price}
		return
	}
	total := pos.Quantity + qty
	avg := (float64(pos.Quantity)*pos.AvgPrice + float64(qty)*price) / float64(total)
	p.positions[asset] = Position{Quantity: total, AvgPrice: avg}
}

// remove liquidates the whole position.
func (p *Portfolio) remove(asset string) (Position, bool) {
	pos, ok := p.positions[asset]
	if ok {
		delete(p.positions, asset)
	}
	return pos, ok
}

var _ decision.Portfolio = (*Portfolio)(nil)

// Transaction is one executed ledger row.
type Transaction struct {
	Timestamp time.Time
	Asset     string
	Price     float64
	Quantity  int
	Type      decision.Kind // decision.Buy or decision.Sell
	GainPct   float64       // realised gain in percent; 0 on buys
}

// Accuracy counts directional hits of the forecasts.
type Accuracy struct {
	Hits  int
	Total int
}

// Record scores one forecast against the realised move from prior. Only a
// strictly positive product of the two moves is a hit.
func (a *Accuracy) Record(real, prior, predicted float64) bool {
	a.Total++
	if (real-prior)*(predicted-prior) > 0 {
		a.Hits++
		return true
	}
	return false
}

// Percent returns 100*Hits/Total; ok is false when nothing was recorded.
func (a Accuracy) Percent() (float64, bool) {
	if a.Total == 0 {
		return 0, false
	}
	return 100 * float64(a.Hits) / float64(a.Total), true
}
