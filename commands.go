package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"iphone-scraper/config"
	"iphone-scraper/models"
	"iphone-scraper/pipeline"
	"iphone-scraper/scraper/hasznaltalma"
	"iphone-scraper/storage"
	"iphone-scraper/utils"
)

var (
	cfg    *config.Config
	logger *utils.Logger

	driverFlag   string
	maxPagesFlag int
	noColor      bool
	listID       int64
)

var rootCmd = &cobra.Command{
	Use:           "iphone-scraper",
	Short:         "Scrape used iPhone listings into a deduplicated catalog",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var envFound bool
		cfg, envFound = config.Load()
		if cmd.Flags().Changed("driver") {
			cfg.StoreDriver = driverFlag
		}
		if cmd.Flags().Changed("max-pages") {
			cfg.MaxPages = maxPagesFlag
		}
		if noColor {
			color.NoColor = true
		}

		logger = utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
		if !envFound {
			logger.Debug("No .env file found, using environment variables")
		}
		return cfg.Validate()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape all listing pages and update the catalog",
	RunE:  runScrape,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <csv-file>",
	Short: "Replay a saved raw CSV snapshot through the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print catalog records as JSON",
	RunE:  runList,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&driverFlag, "driver", "", "catalog store driver (sqlite|postgres|memory)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	runCmd.Flags().IntVar(&maxPagesFlag, "max-pages", 0, "stop after this many pages (0 = all)")
	listCmd.Flags().Int64Var(&listID, "id", 0, "print only the record with this identifier")

	rootCmd.AddCommand(runCmd, ingestCmd, listCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	logger.Info("=== iPhone scraper starting ===")
	logger.Info("Config: store=%s | max pages: %d | rate: %dms | workers: %d",
		cfg.StoreDriver, cfg.MaxPages, cfg.RateLimitMs, cfg.NormalizeWorkers)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	raws, err := hasznaltalma.New(cfg, logger).Scrape(ctx)
	if err != nil && len(raws) == 0 {
		return fmt.Errorf("scrape: %w", err)
	}
	if err != nil {
		logger.Warn("Scrape interrupted, processing %d listings collected so far: %v", len(raws), err)
	}

	if err := writeSnapshot(cfg.CSVOutputPath, raws); err != nil {
		logger.Error("CSV write failed: %v", err)
	} else {
		logger.Info("Raw listings saved to %s", cfg.CSVOutputPath)
	}

	return process(ctx, store, raws)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	raws, err := storage.ReadRawCSVFile(args[0])
	if err != nil {
		return err
	}
	logger.Info("Loaded %d raw listings from %s", len(raws), args[0])

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return process(ctx, store, raws)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if listID != 0 {
		rec, err := store.Get(ctx, listID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no catalog record with identifier %d", listID)
		}
		if err != nil {
			return err
		}
		return enc.Encode(rec)
	}

	records, err := store.ListAll(ctx)
	if err != nil {
		return err
	}
	return enc.Encode(records)
}

// process runs a batch through the pipeline, prints the report and
// publishes it when a Redis address is configured.
func process(ctx context.Context, store storage.CatalogStore, raws []*models.RawListing) error {
	orch := pipeline.New(store, logger, pipeline.WithWorkers(cfg.NormalizeWorkers))

	summary, runErr := orch.Run(ctx, raws)
	if summary != nil {
		orch.Aggregator().Print(os.Stdout, summary)
	}
	if runErr != nil {
		return runErr
	}

	if cfg.RedisAddr == "" {
		return nil
	}
	publisher, err := storage.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLen)
	if err != nil {
		logger.Error("Report not published: %v", err)
		return nil
	}
	publishReport(ctx, publisher, summary)
	return nil
}

// publishReport hands the summary to p and closes it. Failures are logged
// only; the catalog is already up to date.
func publishReport(ctx context.Context, p storage.ReportPublisher, summary *models.BatchSummary) {
	defer p.Close()

	if err := p.Publish(ctx, summary); err != nil {
		logger.Error("Report not published: %v", err)
		return
	}
	logger.Info("Report %s published", summary.RunID)
}

func writeSnapshot(path string, raws []*models.RawListing) error {
	w, err := storage.NewCSVWriter(path)
	if err != nil {
		return err
	}
	if err := w.WriteRaw(raws); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// openStore builds the catalog store selected by cfg.StoreDriver.
func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.CatalogStore, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		logger.Info("Using SQLite catalog at %s", cfg.SQLitePath)
		s, err := storage.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		logger.Info("Using PostgreSQL catalog at %s:%s/%s", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
		s, err := storage.NewPostgresStore(ctx, cfg.DSN(), logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverMemory:
		logger.Warn("Using in-memory catalog, records are discarded on exit")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
