package journal

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
	"time"
)

var runOrgFuncs = template.FuncMap{
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
	"join": strings.Join,
	"accuracy": func(r RunSummary) string {
		a, ok := r.Accuracy()
		if !ok {
			return "(n/a)"
		}
		return fmt.Sprintf("%.2f%%", a)
	},
}

var runOrgTemplate = template.Must(template.New("run").Funcs(runOrgFuncs).Parse(RunOrgTemplate))

// WriteRunOrg renders r as an Org-mode block, followed by the ledger.
func WriteRunOrg(w io.Writer, r RunSummary, txns []TransactionRecord) error {
	if err := runOrgTemplate.Execute(w, r); err != nil {
		return err
	}
	if len(txns) == 0 {
		return nil
	}
	_, err := io.WriteString(w, "\n** Ledger\n"+FormatTransactionsOrg(txns)+"\n")
	return err
}

// WriteRunOrgFile writes the report to r.OrgPath.
func WriteRunOrgFile(r RunSummary, txns []TransactionRecord) error {
	if r.OrgPath == "" {
		return fmt.Errorf("write org report: no path")
	}
	buf := new(bytes.Buffer)
	if err := WriteRunOrg(buf, r, txns); err != nil {
		return fmt.Errorf("write org report: %w", err)
	}
	return os.WriteFile(r.OrgPath, buf.Bytes(), 0644)
}

const RunOrgTemplate = `
* SIMULATION: {{.Algorithm}} / {{.Strategy}} {{.Start.Format "2006-01-02"}} .. {{.End.Format "2006-01-02"}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:ALGORITHM:   {{.Algorithm}}
:STRATEGY:    {{.Strategy}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:ASSETS:      {{join .Assets ", "}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_LIQ:   {{printf "%.2f" .InitialLiquidity}}
:END_LIQ:     {{printf "%.2f" .FinalLiquidity}}
:END_VALUE:   {{printf "%.2f" .FinalValue}}
:NET_PL:      {{printf "%.2f" .NetPL}}
:RETURN_PCT:  {{printf "%.2f" .ReturnPct}}
:BUYS:        {{.Buys}}
:SELLS:       {{.Sells}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:ACCURACY:    {{accuracy .}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Final value:      *{{printf "%.2f" .FinalValue}}*
- Net P/L:          *{{printf "%.2f" .NetPL}}*
- Return:           *{{printf "%.2f" .ReturnPct}}%*
- Direction hits:   *{{.Hits}} / {{.Total}}* ({{accuracy .}})
- Skipped steps:    *{{.Skipped}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Buys    | {{.Buys}} |
| Sells   | {{.Sells}} |
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |

{{- if .Notes }}
** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`

// FormatTransactionOrg renders one ledger row as an Org-mode heading with a
// PROPERTIES drawer.
func FormatTransactionOrg(t TransactionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*** %s %s x%d @ %.2f (%s)\n", strings.ToUpper(t.Type), t.Asset, t.Quantity, t.Price, shortID(t.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":DATE: %s\n", t.Time.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, ":ASSET: %s\n", t.Asset)
	fmt.Fprintf(&b, ":TYPE: %s\n", t.Type)
	fmt.Fprintf(&b, ":QUANTITY: %d\n", t.Quantity)
	fmt.Fprintf(&b, ":PRICE: %.5f\n", t.Price)
	if t.Type == "sell" {
		fmt.Fprintf(&b, ":GAIN_PCT: %.2f\n", t.GainPct)
	}
	b.WriteString(":END:\n")
	return b.String()
}

func FormatTransactionsOrg(txns []TransactionRecord) string {
	var b strings.Builder
	for i, t := range txns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTransactionOrg(t))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
