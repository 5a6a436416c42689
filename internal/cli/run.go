package cli

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/predictsim/config"
	"github.com/rustyeddy/predictsim/decision"
	"github.com/rustyeddy/predictsim/internal/logging"
	"github.com/rustyeddy/predictsim/journal"
	"github.com/rustyeddy/predictsim/market"
	"github.com/rustyeddy/predictsim/prediction"
	"github.com/rustyeddy/predictsim/report"
	"github.com/rustyeddy/predictsim/sim"
)

// runFlags are the command line overrides of the config file.
type runFlags struct {
	dataPath  string
	algorithm string
	strategy  string
	start     string
	end       string
	workers   int
	seed      uint64
	journal   string
	orgPath   string
	verbose   bool
	weekends  bool
}

func newRunCmd(rc *RootConfig) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation over a date range",
		Long: `Run replays every date in the configured range. For each asset the
model is retrained on the rows strictly before the date, the forecast is
handed to the decision policy and the resulting trades are journaled.

Algorithms: ARIMA, RANDOM, SHIFT, LSTM
Strategies: PROPORTIONAL, FIXED_PERCENT, FIXED, RANDOM

Example:
  predictsim run --config sim.yaml --algorithm shift --start 2019-01-01 --end 2019-01-30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rc)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runSimulation(ctx, cmd, rc, cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.dataPath, "data", "", "Wide time-series table (.csv or .parquet)")
	fl.StringVar(&f.algorithm, "algorithm", "", "Forecasting algorithm")
	fl.StringVar(&f.strategy, "strategy", "", "Buy sizing strategy")
	fl.StringVar(&f.start, "start", "", "First simulated date (2006-01-02)")
	fl.StringVar(&f.end, "end", "", "Last simulated date (2006-01-02)")
	fl.IntVar(&f.workers, "workers", 0, "Assets forecast concurrently per date")
	fl.Uint64Var(&f.seed, "seed", 0, "Seed for every random number generator")
	fl.StringVar(&f.journal, "journal", "", "Journal type: csv|sqlite|postgres|none")
	fl.StringVar(&f.orgPath, "org", "", "Write an Org-mode run report to this path")
	fl.BoolVar(&f.verbose, "verbose", false, "Log model failures and missing prices as warnings")
	fl.BoolVar(&f.weekends, "weekends", false, "Also simulate Saturdays and Sundays")

	return cmd
}

func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if f.dataPath != "" {
		cfg.Data.Path = f.dataPath
	}
	if f.algorithm != "" {
		cfg.Model.Algorithm = f.algorithm
	}
	if f.strategy != "" {
		cfg.Decision.Strategy = f.strategy
	}
	if f.start != "" {
		cfg.Simulation.Start = f.start
	}
	if f.end != "" {
		cfg.Simulation.End = f.end
	}
	if fl.Changed("workers") {
		cfg.Simulation.Workers = f.workers
	}
	if fl.Changed("seed") {
		seed := f.seed
		cfg.Simulation.Seed = &seed
	}
	if f.journal != "" {
		cfg.Journal.Type = f.journal
	}
	if f.orgPath != "" {
		cfg.Journal.OrgPath = f.orgPath
	}
	if fl.Changed("verbose") {
		cfg.Logging.Verbose = f.verbose
	}
	if fl.Changed("weekends") {
		cfg.Simulation.OperateInWeekends = f.weekends
	}
}

func loadConfig(rc *RootConfig) (*config.Config, error) {
	cfg, err := config.Read(rc.ConfigPath)
	if err != nil {
		return nil, err
	}
	if rc.DBPath != "" {
		cfg.Journal.DBPath = rc.DBPath
	}
	if rc.LogLevel != "" {
		cfg.Logging.Level = rc.LogLevel
	}
	return cfg, nil
}

func runSimulation(ctx context.Context, cmd *cobra.Command, rc *RootConfig, cfg *config.Config) error {
	format := cfg.Logging.Format
	if cmd.Flags().Changed("log-format") {
		format = rc.LogFormat
	}
	log, err := logging.New(cfg.Logging.Level, format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	start, end, err := cfg.Range()
	if err != nil {
		return err
	}

	frame, err := market.Load(cfg.Data.Path)
	if err != nil {
		return err
	}
	frame = frame.WithMovingAverages(market.MovingAveragePeriod)
	log.Info("dataset loaded", "path", cfg.Data.Path, "rows", frame.Len(), "assets", len(frame.Assets()))

	kind, pcfg, err := cfg.ToPrediction()
	if err != nil {
		return err
	}
	dcfg, err := cfg.ToDecision()
	if err != nil {
		return err
	}
	dm, err := decision.NewManager(dcfg, decisionRand(cfg.Simulation.Seed))
	if err != nil {
		return err
	}

	// Each asset forecasts on its own stream whatever the worker count, so
	// --workers never changes a seeded ledger.
	factory, err := prediction.NewFactory(kind, pcfg)
	if err != nil {
		return err
	}
	opts := []sim.Option{sim.WithLogger(log), sim.WithFactory(factory)}

	j, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer j.Close()
	rec := &recorder{Journal: j}
	opts = append(opts, sim.WithJournal(rec))

	s, err := sim.New(cfg.ToSim(), frame, nil, dm, opts...)
	if err != nil {
		return err
	}

	res, err := s.Run(ctx, start, end)
	if err != nil {
		return err
	}

	summary := report.Summarize(res, frame)
	run := summary.RunSummary(string(kind), string(dcfg.Strategy), cfg.Data.Path)
	run.OrgPath = cfg.Journal.OrgPath
	if err := j.RecordRun(ctx, run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if run.OrgPath != "" {
		if err := journal.WriteRunOrgFile(run, rec.txns); err != nil {
			return err
		}
		log.Info("org report written", "path", run.OrgPath)
	}

	return report.Print(cmd.OutOrStdout(), summary)
}

// decisionRand seeds the decision RNG on its own stream so it does not
// replay the draws of the models.
func decisionRand(seed *uint64) *rand.Rand {
	if seed == nil {
		return prediction.NewRand(nil)
	}
	s := *seed ^ 0xA5A5A5A5A5A5A5A5
	return prediction.NewRand(&s)
}

func openJournal(ctx context.Context, jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "csv":
		return journal.NewCSV(jc.TransactionsFile, jc.EquityFile)
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	case "postgres":
		return journal.NewPostgres(ctx, jc.DSN)
	case "none", "":
		return journal.Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown journal type %q", jc.Type)
	}
}

// recorder keeps a copy of the transactions for the Org report.
type recorder struct {
	journal.Journal
	txns []journal.TransactionRecord
}

func (r *recorder) RecordTransaction(ctx context.Context, t journal.TransactionRecord) error {
	if err := r.Journal.RecordTransaction(ctx, t); err != nil {
		return err
	}
	r.txns = append(r.txns, t)
	return nil
}
