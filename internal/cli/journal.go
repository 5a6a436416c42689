package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/predictsim/journal"
	"github.com/rustyeddy/predictsim/market"
	"github.com/rustyeddy/predictsim/report"
)

func newJournalCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect a SQLite journal",
	}
	cmd.AddCommand(newJournalListCmd(rc), newJournalOrgCmd(rc))
	return cmd
}

func openSQLite(rc *RootConfig) (*journal.SQLiteJournal, error) {
	if rc.DBPath == "" {
		return nil, fmt.Errorf("--db is required")
	}
	return journal.NewSQLite(rc.DBPath)
}

func newJournalListCmd(rc *RootConfig) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, or the transactions of one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openSQLite(rc)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx := cmd.Context()
			if runID == "" {
				runs, err := j.ListRuns(ctx)
				if err != nil {
					return err
				}
				return printRuns(cmd.OutOrStdout(), runs)
			}

			txns, err := j.ListTransactions(ctx, runID)
			if err != nil {
				return err
			}
			return printTransactions(cmd.OutOrStdout(), txns)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Run ID whose transactions to list")
	return cmd
}

func newJournalOrgCmd(rc *RootConfig) *cobra.Command {
	var runID, out string

	cmd := &cobra.Command{
		Use:   "org",
		Short: "Render a recorded run as an Org-mode report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return fmt.Errorf("--run is required")
			}
			j, err := openSQLite(rc)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx := cmd.Context()
			run, err := j.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			txns, err := j.ListTransactions(ctx, runID)
			if err != nil {
				return err
			}
			if out == "" {
				return journal.WriteRunOrg(cmd.OutOrStdout(), run, txns)
			}
			run.OrgPath = out
			return journal.WriteRunOrgFile(run, txns)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Run ID to render")
	cmd.Flags().StringVar(&out, "out", "", "Output file (default stdout)")
	return cmd
}

func printRuns(w io.Writer, runs []journal.RunSummary) error {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		acc := "n/a"
		if a, ok := r.Accuracy(); ok {
			acc = fmt.Sprintf("%.2f%%", a)
		}
		rows = append(rows, []string{
			r.RunID, r.Algorithm, r.Strategy,
			r.Start.Format(market.DateLayout), r.End.Format(market.DateLayout),
			report.Money(r.FinalValue), report.Money(r.ReturnPct), acc,
		})
	}
	return writeTable(w, []string{"RUN", "ALGORITHM", "STRATEGY", "START", "END", "FINAL VALUE", "RETURN %", "ACCURACY"}, rows)
}

func printTransactions(w io.Writer, txns []journal.TransactionRecord) error {
	rows := make([][]string, 0, len(txns))
	for _, t := range txns {
		gain := ""
		if t.Type == "sell" {
			gain = report.Money(t.GainPct)
		}
		rows = append(rows, []string{
			t.ID, t.Time.Format(market.DateLayout), t.Asset, t.Type,
			strconv.Itoa(t.Quantity), report.Money(t.Price), gain,
		})
	}
	return writeTable(w, []string{"ID", "DATE", "ASSET", "TYPE", "QTY", "PRICE", "GAIN %"}, rows)
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
