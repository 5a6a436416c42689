// Package report values the final portfolio of a run and renders the result.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/predictsim/decision"
	"github.com/rustyeddy/predictsim/journal"
	"github.com/rustyeddy/predictsim/market"
	"github.com/rustyeddy/predictsim/sim"
)

// Holding is one open position valued at the end of the run.
type Holding struct {
	Asset    string
	Quantity int
	AvgPrice float64
	Price    float64
	Value    float64
	// Priced is false when no price at or before the end date exists; the
	// position is then valued at cost.
	Priced bool
}

type Summary struct {
	RunID      string
	Start, End time.Time
	Assets     []string

	InitialLiquidity float64
	FinalLiquidity   float64
	Holdings         []Holding
	FinalValue       float64
	NetPL            float64
	ReturnPct        float64

	Buys   int
	Sells  int
	Wins   int
	Losses int

	Hits  int
	Total int

	Skips map[sim.SkipReason]int
}

// Summarize values the open positions at the latest price on or before the
// end date and tallies the ledger.
func Summarize(res *sim.Result, frame *market.Frame) Summary {
	s := Summary{
		RunID:            res.RunID,
		Start:            res.Start,
		End:              res.End,
		Assets:           res.Assets,
		InitialLiquidity: res.InitialLiquidity,
		FinalLiquidity:   res.Liquidity,
		Hits:             res.Accuracy.Hits,
		Total:            res.Accuracy.Total,
		Skips:            res.Skips,
	}

	assets := make([]string, 0, len(res.Portfolio))
	for a := range res.Portfolio {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	value := res.Liquidity
	for _, a := range assets {
		pos := res.Portfolio[a]
		h := Holding{Asset: a, Quantity: pos.Quantity, AvgPrice: pos.AvgPrice, Price: pos.AvgPrice}
		if frame != nil {
			if p, ok := frame.PriceAt(a, res.End); ok {
				h.Price, h.Priced = p, true
			}
		}
		h.Value = h.Price * float64(h.Quantity)
		value += h.Value
		s.Holdings = append(s.Holdings, h)
	}

	s.FinalValue = value
	s.NetPL = value - res.InitialLiquidity
	if res.InitialLiquidity != 0 {
		s.ReturnPct = s.NetPL / res.InitialLiquidity * 100
	}

	for _, tx := range res.Transactions {
		switch tx.Type {
		case decision.Buy:
			s.Buys++
		case decision.Sell:
			s.Sells++
			switch {
			case tx.GainPct > 0:
				s.Wins++
			case tx.GainPct < 0:
				s.Losses++
			}
		}
	}
	return s
}

// Accuracy returns the directional hit rate in percent; ok is false when no
// forecast was scored.
func (s Summary) Accuracy() (float64, bool) {
	if s.Total == 0 {
		return 0, false
	}
	return 100 * float64(s.Hits) / float64(s.Total), true
}

func (s Summary) Skipped() int {
	var n int
	for _, c := range s.Skips {
		n += c
	}
	return n
}

// RunSummary converts s into the journal record of the run.
func (s Summary) RunSummary(algorithm, strategy, dataset string) journal.RunSummary {
	return journal.RunSummary{
		RunID:            s.RunID,
		Created:          time.Now().UTC(),
		Algorithm:        algorithm,
		Strategy:         strategy,
		Dataset:          dataset,
		Assets:           s.Assets,
		Start:            s.Start,
		End:              s.End,
		InitialLiquidity: s.InitialLiquidity,
		FinalLiquidity:   s.FinalLiquidity,
		FinalValue:       s.FinalValue,
		NetPL:            s.NetPL,
		ReturnPct:        s.ReturnPct,
		Buys:             s.Buys,
		Sells:            s.Sells,
		Wins:             s.Wins,
		Losses:           s.Losses,
		Hits:             s.Hits,
		Total:            s.Total,
		Skipped:          s.Skipped(),
	}
}

// Money formats v with two decimals.
func Money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Print renders s. Colours are only emitted when w is a terminal.
func Print(w io.Writer, s Summary) error {
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	header := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6"))
	box := r.NewStyle().BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).Padding(0, 1)
	gain := r.NewStyle().Foreground(lipgloss.Color("#10B981"))
	loss := r.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	pl := gain
	if s.NetPL < 0 {
		pl = loss
	}

	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "%-16s %s\n", label+":", value)
	}

	b.WriteString(header.Render("Period") + "\n")
	line("Run ID", s.RunID)
	line("Start", s.Start.Format(market.DateLayout))
	line("End", s.End.Format(market.DateLayout))
	line("Assets", strings.Join(s.Assets, ", "))

	b.WriteString("\n" + header.Render("Account") + "\n")
	line("Start Liquidity", Money(s.InitialLiquidity))
	line("End Liquidity", Money(s.FinalLiquidity))
	line("Final Value", Money(s.FinalValue))
	line("Net P/L", pl.Render(Money(s.NetPL)))
	line("Return", pl.Render(decimal.NewFromFloat(s.ReturnPct).StringFixed(2)+"%"))

	if len(s.Holdings) > 0 {
		b.WriteString("\n" + header.Render("Open Positions") + "\n")
		for _, h := range s.Holdings {
			note := ""
			if !h.Priced {
				note = " (at cost)"
			}
			fmt.Fprintf(&b, "%-10s %6d @ %s = %s%s\n",
				h.Asset, h.Quantity, Money(h.Price), Money(h.Value), note)
		}
	}

	b.WriteString("\n" + header.Render("Trades") + "\n")
	line("Buys", fmt.Sprint(s.Buys))
	line("Sells", fmt.Sprint(s.Sells))
	line("Wins", fmt.Sprint(s.Wins))
	line("Losses", fmt.Sprint(s.Losses))
	line("Skipped Steps", fmt.Sprint(s.Skipped()))

	if acc, ok := s.Accuracy(); ok {
		line("Accuracy", fmt.Sprintf("%.2f%% (%d/%d)", acc, s.Hits, s.Total))
	}

	out := title.Render("Simulation Result") + "\n" +
		box.Render(strings.TrimRight(b.String(), "\n")) + "\n"
	_, err := io.WriteString(w, out)
	return err
}
