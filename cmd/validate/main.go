package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/branchops/csv-validator/internal/config"
	"github.com/branchops/csv-validator/internal/database"
	"github.com/branchops/csv-validator/internal/logging"
	"github.com/branchops/csv-validator/internal/models"
	"github.com/branchops/csv-validator/internal/orchestrator"
	"github.com/branchops/csv-validator/pkg/checksum"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: could not load .env file: %v", err)
	}
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dateStr      string
		dryRun       bool
		workers      int
		branchFilter string
	)

	cmd := &cobra.Command{
		Use:          "validate [path]",
		Short:        "Validate branch CSV uploads and persist per-file summaries",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], dateStr, dryRun, workers, branchFilter)
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "validation date (YYYY-MM-DD, default: yesterday)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report only, skip the durable store write")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker count (overrides NUM_WORKERS)")
	cmd.Flags().StringVar(&branchFilter, "branch-id", "", "only validate files of this branch")

	return cmd
}

func run(path, dateStr string, dryRun bool, workers int, branchFilter string) error {
	startTime := time.Now()

	targetDate, err := resolveTargetDate(dateStr)
	if err != nil {
		return err
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if workers > 0 {
		cfg.NumWorkers = workers
	}
	if dryRun {
		cfg.DryRun = true
	}

	var store database.Store
	if !cfg.DryRun {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is not set (use --dry-run to skip the database)")
		}
		dbpool, err := database.ConnectDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("unable to connect to database: %w", err)
		}
		defer dbpool.Close()

		pg := database.NewPostgresStore(context.Background(), dbpool)
		if err := pg.CreateValidationSummariesTable(); err != nil {
			return err
		}
		store = pg
	}

	sessionID := uuid.NewString()
	logger, err := logging.NewValidationLogger(cfg.LogDir, sessionID)
	if err != nil {
		return err
	}
	defer logger.Close()

	log.Printf("Session %s: validating files under %s for %s (workers=%d, dry-run=%v)",
		sessionID, path, targetDate.Format("2006-01-02"), cfg.NumWorkers, cfg.DryRun)

	tasks, skipped, err := findTasks(path, branchFilter, targetDate, store)
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Printf("%d unchanged files skipped", skipped)
	}
	if len(tasks) == 0 {
		log.Printf("No CSV files to validate under %s", path)
		return nil
	}
	log.Printf("Found %d CSV files, starting validation...", len(tasks))

	var sink orchestrator.Sink
	if store != nil {
		sink = logging.NewDualSink(store, logger, cfg.DryRun)
	} else {
		sink = logging.NewDualSink(nil, logger, cfg.DryRun)
	}

	service := orchestrator.NewService(sink, orchestrator.Config{
		Workers:             cfg.NumWorkers,
		QueueCapacity:       cfg.QueueCapacity,
		ChunkSize:           cfg.ChunkSizeBytes,
		WatchdogTimeout:     time.Duration(cfg.WatchdogTimeoutSeconds) * time.Second,
		RawRowCaptureLimit:  cfg.RawRowCaptureLimit,
		DetailTruncateLimit: cfg.DetailTruncateLimit,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := service.Run(ctx, sessionID, tasks)

	if err := logger.LogSessionSummary(&report.Stats); err != nil {
		log.Printf("Failed to write session summary: %v", err)
	}

	printReport(report, logger.Path(), cfg.DryRun, time.Since(startTime))
	return nil
}

func resolveTargetDate(dateStr string) (time.Time, error) {
	if dateStr == "" {
		yesterday := time.Now().AddDate(0, 0, -1)
		return time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date format, expected YYYY-MM-DD: %q", dateStr)
	}
	return date, nil
}

// findTasks walks the upload root for CSV files. The expected layout is
// <root>/<branchID>/<file>.csv; files already validated with an identical
// checksum for the target date are skipped.
func findTasks(root, branchFilter string, targetDate time.Time, store database.Store) ([]models.FileTask, int, error) {
	var tasks []models.FileTask
	skipped := 0

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		branchID := branchFromPath(rel)
		if branchFilter != "" && branchID != branchFilter {
			return nil
		}

		if store != nil {
			sum, err := checksum.File(path)
			if err != nil {
				log.Printf("WARN: could not checksum %s: %v", path, err)
			} else if unchanged, err := store.IsFileUnchanged(branchID, info.Name(), targetDate, sum); err != nil {
				log.Printf("WARN: could not check prior record for %s: %v", path, err)
			} else if unchanged {
				skipped++
				return nil
			}
		}

		filePath := path
		tasks = append(tasks, models.FileTask{
			BranchID:       branchID,
			Filename:       info.Name(),
			ValidationDate: targetDate,
			Open: func() (io.ReadCloser, error) {
				return os.Open(filePath)
			},
		})
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("error walking directory %s: %w", root, err)
	}

	return tasks, skipped, nil
}

// branchFromPath takes the first directory component of the relative path as
// the branch identifier; files sitting directly in the root have none.
func branchFromPath(rel string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

func printReport(report *orchestrator.SessionReport, logPath string, dryRun bool, elapsed time.Duration) {
	stats := report.Stats

	fmt.Println()
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("VALIDATION RESULTS")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Session:         %s\n", report.SessionID)
	fmt.Printf("Files:           %d scanned, %d processed, %d failed\n",
		stats.FilesScanned, stats.FilesProcessed, stats.FilesFailed)
	fmt.Printf("Rows:            %d total, %d with errors\n", stats.TotalRows, stats.TotalErrors)
	fmt.Printf("Categories:      Perfect=%d Good=%d Medium=%d Critical=%d\n",
		stats.PerCategory[models.CategoryPerfect], stats.PerCategory[models.CategoryGood],
		stats.PerCategory[models.CategoryMedium], stats.PerCategory[models.CategoryCritical])
	fmt.Printf("Elapsed:         %.1fs (%.1f rows/s)\n", stats.Elapsed(), stats.RowsPerSecond())
	fmt.Printf("Wall clock:      %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Log file:        %s\n", logPath)
	if dryRun {
		fmt.Println("Dry run:         durable store writes were skipped")
	}

	var failures []models.FileResult
	for _, file := range report.Files {
		if file.Status != models.StatusLogged {
			failures = append(failures, file)
		}
	}
	if len(failures) > 0 {
		fmt.Println()
		fmt.Println("FAILED FILES:")
		for _, file := range failures {
			fmt.Printf("  - %s (%s): %s\n", file.Filename, file.BranchID, file.Reason)
		}
	}
	fmt.Println(strings.Repeat("=", 70))
}
