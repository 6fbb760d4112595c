package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/dfpfetch/internal/config"
	"github.com/kalambet/dfpfetch/internal/input"
	"github.com/kalambet/dfpfetch/internal/pipeline"
	"github.com/kalambet/dfpfetch/internal/portal"
	"github.com/kalambet/dfpfetch/internal/publish"
	"github.com/kalambet/dfpfetch/internal/storage"
)

// Date flags use the portal's own format.
const dateLayout = "02/01/2006"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "dfpfetch",
	Short:   "Fetch DFP filings from the CVM portal and extract financial indicators",
	Version: version,
	Long: `dfpfetch retrieves annual DFP filings from the CVM RAD/ENET portal for a
list of B3 tickers, extracts the statement documents, parses the indicator
vocabulary, and writes one auditable result.json per ticker.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every ticker in the input CSV",
	Long: `Process every ticker in the input CSV: search the portal, download the
most recent DFP filing in the date window, extract and parse its statements,
and write the audit record.

Examples:
  dfpfetch run --input tickers.csv --start-date 01/01/2024 --end-date 31/12/2024
  dfpfetch run --input tickers.csv --start-date 01/01/2024 --end-date 31/12/2024 \
      --concurrency 4 --skip-publish`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputPath, _ := cmd.Flags().GetString("input")
		startStr, _ := cmd.Flags().GetString("start-date")
		endStr, _ := cmd.Flags().GetString("end-date")

		start, err := parsePortalDate(startStr)
		if err != nil {
			return fmt.Errorf("invalid --start-date: %w", err)
		}
		end, err := parsePortalDate(endStr)
		if err != nil {
			return fmt.Errorf("invalid --end-date: %w", err)
		}
		if end.Before(start) {
			return fmt.Errorf("--end-date %s precedes --start-date %s", endStr, startStr)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyRunFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		tickers, err := input.ReadTickers(inputPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var ledger pipeline.Ledger
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			printWarning("run history disabled: %v", err)
		} else {
			defer store.Close()
			ledger = store
		}

		skipPublish, _ := cmd.Flags().GetBool("skip-publish")
		var pub pipeline.Publisher
		switch {
		case skipPublish:
			slog.Info("publishing skipped by flag")
		case !cfg.Publish.Enabled():
			slog.Info("publishing disabled: no ingest URL configured")
		default:
			pub = publish.NewClient(cfg.Publish.IngestURL, cfg.Publish.APIKey)
		}

		newNav := func() portal.Navigator {
			return portal.NewENET(portal.Options{
				BaseURL:  cfg.Portal.BaseURL,
				Headless: cfg.Portal.Headless,
			})
		}
		runner := pipeline.NewRunner(cfg, newNav, pub, ledger)

		printStep("Processing %d tickers (%s to %s)", len(tickers), startStr, endStr)
		sum, batchErr := runner.RunBatch(ctx, tickers, start, end)

		printStatus("Succeeded", "%d", sum.Succeeded)
		printStatus("Partial", "%d", sum.Partial)
		printStatus("Failed", "%d", sum.Failed)

		if batchErr != nil {
			printError("batch interrupted: %v", batchErr)
			return batchErr
		}
		if sum.Failed > 0 {
			return fmt.Errorf("%d of %d tickers failed", sum.Failed, sum.Total())
		}
		printSuccess("Batch complete: %d tickers", sum.Total())
		return nil
	},
}

func init() {
	runCmd.Flags().String("input", "", "ticker CSV (columns: ticker, cod_cvm, asset_class)")
	runCmd.Flags().String("start-date", "", "filing window start, dd/mm/yyyy")
	runCmd.Flags().String("end-date", "", "filing window end, dd/mm/yyyy")
	runCmd.Flags().String("output", "", "output root directory")
	runCmd.Flags().Bool("headless", true, "run the portal session headless")
	runCmd.Flags().Int("timeout-ms", 0, "per-attempt timeout in milliseconds")
	runCmd.Flags().Int("max-retries", 0, "maximum attempts per retriable step")
	runCmd.Flags().Int("concurrency", 0, "tickers processed in parallel")
	runCmd.Flags().Bool("skip-publish", false, "do not publish indicators to the ingest endpoint")
	runCmd.MarkFlagRequired("input")
	runCmd.MarkFlagRequired("start-date")
	runCmd.MarkFlagRequired("end-date")
}

func parsePortalDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a dd/mm/yyyy date", s)
	}
	return t, nil
}

// applyRunFlags layers explicitly set flags over loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("output") {
		cfg.Output.Root, _ = cmd.Flags().GetString("output")
	}
	if cmd.Flags().Changed("headless") {
		cfg.Portal.Headless, _ = cmd.Flags().GetBool("headless")
	}
	if cmd.Flags().Changed("timeout-ms") {
		cfg.Retry.TimeoutMS, _ = cmd.Flags().GetInt("timeout-ms")
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.Retry.MaxAttempts, _ = cmd.Flags().GetInt("max-retries")
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Batch.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch {
	case strings.EqualFold(level, "debug"):
		logLevel = slog.LevelDebug
	case strings.EqualFold(level, "warn"):
		logLevel = slog.LevelWarn
	case strings.EqualFold(level, "error"):
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ticker, _ := cmd.Flags().GetString("ticker")

		store, err := openLedger()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(strings.ToUpper(strings.TrimSpace(ticker)), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, run := range runs {
			fmt.Printf("%s  %s  %-8s  %s  %s\n",
				colorize(colorCyan, run.ID[:8]),
				run.FinishedAt.Local().Format("2006-01-02 15:04"),
				run.Ticker,
				statusLabel(run.Status),
				runSummary(run),
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its attempt trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger()
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.GetRun(args[0])
		if err != nil {
			return err
		}
		attempts, err := store.ListAttempts(run.ID)
		if err != nil {
			return err
		}

		printStatus("Run", "%s", run.ID)
		printStatus("Ticker", "%s", run.Ticker)
		printStatus("Window", "%s to %s", run.StartDate, run.EndDate)
		printStatus("Status", "%s", statusLabel(run.Status))
		printStatus("Artifacts", "%d", run.ArtifactCount)
		if run.ErrorSummary != "" {
			printStatus("Error", "%s", run.ErrorSummary)
		}
		for _, a := range attempts {
			line := fmt.Sprintf("%-9s #%d %s", a.Step, a.Number, a.Outcome)
			if a.Error != "" {
				line += "  " + a.Error
			}
			fmt.Printf("  %s  %s\n", a.At.Local().Format("15:04:05"), line)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	historyCmd.Flags().String("ticker", "", "only show runs for this ticker")
	historyCmd.AddCommand(historyShowCmd)
}

func openLedger() (*storage.Store, error) {
	cfg, err := config.LoadForDisplay()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening run ledger: %w", err)
	}
	return store, nil
}

func statusLabel(status string) string {
	switch status {
	case "succeeded":
		return colorize(colorGreen, status)
	case "partially-succeeded":
		return colorize(colorYellow, status)
	default:
		return colorize(colorRed, status)
	}
}

func runSummary(run storage.Run) string {
	s := fmt.Sprintf("%d attempts, %d artifacts", run.AttemptCount, run.ArtifactCount)
	if run.ErrorSummary != "" {
		msg := run.ErrorSummary
		if len(msg) > 60 {
			msg = msg[:60] + "..."
		}
		s += "  " + msg
	}
	return s
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration keys and current values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadForDisplay()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadForDisplay()
		if err != nil {
			return err
		}
		v, err := config.GetKey(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}
