package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AntonStoeckl/library-lending-go/example/shared/config"
	"github.com/AntonStoeckl/library-lending-go/example/simulation"
	"github.com/AntonStoeckl/library-lending-go/lending"
)

type flagBinding struct {
	key  string
	flag string
}

var flagBindings = []flagBinding{
	{"store.kind", "store"},
	{"store.dir", "dir"},
	{"store.postgres.dsn", "dsn"},
	{"store.postgres.adapter", "adapter"},
	{"lending.strict_borrow_limit", "strict"},
	{"lending.backup_interval", "backup-interval"},
	{"observability.enabled", "observability"},
	{"simulation.students", "students"},
	{"simulation.works", "works"},
	{"simulation.copies_per_work", "copies"},
	{"simulation.workers", "workers"},
	{"simulation.operations", "ops"},
	{"simulation.seed", "seed"},
	{"log.level", "log-level"},
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	var configPath string

	cmd := &cobra.Command{
		Use:   "lending-simulation",
		Short: "Run concurrent borrow and return traffic against a library",
		Long: `lending-simulation seeds a library with works, copies and students,
then lets the students borrow and return random available copies through a bounded
worker pool while snapshots are saved in the background.

Settings come from flags, LENDING_* environment variables and an optional YAML file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "config file path (YAML)")
	flags.String("store", config.StoreFile, "snapshot store: file or postgres")
	flags.String("dir", "./data", "directory of the file snapshot store")
	flags.String("dsn", "", "postgres connection string")
	flags.String("adapter", config.AdapterPGX, "postgres adapter: pgx, sql or sqlx")
	flags.Bool("strict", false, "enforce the student borrow limit atomically")
	flags.Duration("backup-interval", 0, "interval between background snapshots")
	flags.Bool("observability", false, "record metrics and spans with OpenTelemetry")
	flags.Int("students", 0, "number of students")
	flags.Int("works", 0, "number of works")
	flags.Int("copies", 0, "copies per work")
	flags.Int("workers", 0, "maximum concurrent requests")
	flags.Int("ops", 0, "number of requests")
	flags.Int64("seed", 0, "random seed")
	flags.String("log-level", "info", "log level: debug, info, warn or error")

	bindFlags(v, cmd)

	return cmd
}

// bindFlags binds only flags set on the command line so unset flags do not shadow file and env values.
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		for _, binding := range flagBindings {
			flag := cmd.Flags().Lookup(binding.flag)
			if flag == nil || !flag.Changed {
				continue
			}

			if err := v.BindPFlag(binding.key, flag); err != nil {
				return err
			}
		}

		return nil
	}
}

func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	serviceName := cfg.Observability.ServiceName
	logger := config.NewLogger(cfg.Log, serviceName, os.Stderr)

	store, closeStore, err := config.OpenSnapshotStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	options := []lending.Option{lending.WithLogger(logger)}
	if cfg.Lending.StrictBorrowLimit {
		options = append(options, lending.WithStrictBorrowLimit())
	}

	var providers *config.Providers
	if cfg.Observability.Enabled {
		providers = config.NewProviders(serviceName)
		defer func() { _ = providers.Shutdown(context.Background()) }()

		options = append(options, providers.LibraryOptions(serviceName, logger)...)
	}

	library, err := lending.NewLibrary(store, options...)
	if err != nil {
		return err
	}

	if err := library.Reload(ctx); err != nil {
		logger.Warn("starting with an empty library", "error", err.Error())
	}

	sim, err := simulation.New(library, simulation.Settings{
		Students:      cfg.Simulation.Students,
		Works:         cfg.Simulation.Works,
		CopiesPerWork: cfg.Simulation.CopiesPerWork,
		Workers:       cfg.Simulation.Workers,
		Operations:    cfg.Simulation.Operations,
		Seed:          cfg.Simulation.Seed,
	})
	if err != nil {
		return err
	}

	if err := sim.Seed(ctx); err != nil {
		return err
	}

	if err := library.StartBackups(ctx, cfg.Lending.BackupInterval); err != nil {
		return err
	}

	summary, runErr := sim.Run(ctx)

	closeErr := library.Close(context.Background())
	verifyErr := simulation.Verify(context.Background(), library, cfg.Lending.StrictBorrowLimit)

	printSummary(out, summary, library, verifyErr)

	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	return errors.Join(runErr, closeErr, verifyErr)
}

func printSummary(out io.Writer, summary simulation.Summary, library *lending.Library, verifyErr error) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	_, _ = bold.Fprintf(out, "\n%d operations in %s\n", summary.Operations, summary.Duration.Round(time.Millisecond))

	printOutcomes(out, "borrow", summary.Borrows, green, yellow)
	printOutcomes(out, "return", summary.Returns, green, yellow)

	_, _ = fmt.Fprintf(out, "  nothing available: %s\n", yellow.Sprint(summary.NoneAvailable))
	_, _ = fmt.Fprintf(out, "  digital: %s granted, %s denied\n",
		green.Sprint(summary.DigitalGranted), yellow.Sprint(summary.DigitalDenied))

	held := 0
	for _, borrower := range library.Borrowers() {
		held += len(borrower.HeldCopyIDs)
	}

	_, _ = fmt.Fprintf(out, "  copies held at the end: %d\n", held)

	if verifyErr != nil {
		_, _ = fmt.Fprintln(out, color.RedString("  invariants: %v", verifyErr))
		return
	}

	_, _ = fmt.Fprintln(out, green.Sprint("  invariants: ok"))
}

func printOutcomes(out io.Writer, label string, counts map[lending.Outcome]int, ok, rejected *color.Color) {
	outcomes := make([]lending.Outcome, 0, len(counts))
	for outcome := range counts {
		outcomes = append(outcomes, outcome)
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i] < outcomes[j] })

	for _, outcome := range outcomes {
		c := rejected
		if outcome == lending.Success {
			c = ok
		}

		_, _ = fmt.Fprintf(out, "  %s %-14s %s\n", label, outcome.String()+":", c.Sprint(counts[outcome]))
	}
}
