// Package main drives one dataset file through the import pipeline end to
// end: it creates a session, runs batches until completion, and reports
// progress on stdout. Exits non-zero when failures remain.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonesrussell/post-importer/internal/assets"
	"github.com/jonesrussell/post-importer/internal/batch"
	"github.com/jonesrussell/post-importer/internal/config"
	"github.com/jonesrussell/post-importer/internal/content"
	"github.com/jonesrussell/post-importer/internal/dataset"
	"github.com/jonesrussell/post-importer/internal/engine"
	"github.com/jonesrussell/post-importer/internal/httpclient"
	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/metrics"
	"github.com/jonesrussell/post-importer/internal/models"
	"github.com/jonesrussell/post-importer/internal/session"
	"github.com/jonesrussell/post-importer/internal/store"
	"github.com/jonesrussell/post-importer/internal/store/cms"
	"github.com/jonesrussell/post-importer/internal/store/memory"
)

func main() {
	var (
		configPath string
		filePath   string
		modeFlag   string
		batchSize  int
		resumeID   string
	)
	flag.StringVar(&configPath, "config", "config.yml", "Path to configuration file")
	flag.StringVar(&filePath, "file", "", "Path to the dataset file to import")
	flag.StringVar(&modeFlag, "mode", "import", "Processing mode: import or reimport")
	flag.IntVar(&batchSize, "batch-size", 0, "Records per batch (0 uses the configured default)")
	flag.StringVar(&resumeID, "session", "", "Resume an existing session instead of creating one")
	flag.Parse()

	if err := run(configPath, filePath, modeFlag, batchSize, resumeID); err != nil {
		fmt.Fprintf(os.Stderr, "runner: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, filePath, modeFlag string, batchSize int, resumeID string) error {
	if filePath == "" && resumeID == "" {
		return fmt.Errorf("either -file or -session is required")
	}
	mode := models.Mode(modeFlag)
	if !mode.Valid() {
		return models.ErrInvalidMode
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := session.NewPostgresConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = session.Close(db) }()

	sessions := session.NewStore(db, log)
	if err := sessions.EnsureSchema(ctx); err != nil {
		return err
	}

	var stores store.Stores
	if cfg.ContentStore.URL == "" {
		log.Warn("no content store configured, using in-memory store")
		stores = memory.New().Stores()
	} else {
		client, clientErr := cms.NewClient(cfg.ContentStore, log)
		if clientErr != nil {
			return fmt.Errorf("create content store client: %w", clientErr)
		}
		stores = client.Stores()
	}

	m := metrics.New(prometheus.NewRegistry())
	resolver := assets.NewResolver(stores.Assets, stores.Documents,
		httpclient.New(cfg.Importer.AssetTimeout), m, log)
	rewriter := content.NewRewriter(resolver, cfg.ContentStore.URL, log)
	importer := engine.NewImportEngine(stores, resolver, rewriter, sessions, log)
	reimporter := engine.NewReimportEngine(importer)
	coordinator := batch.NewCoordinator(sessions, importer, reimporter, m, log)

	sess, err := openSession(ctx, sessions, filePath, resumeID)
	if err != nil {
		return err
	}
	fmt.Printf("session %s: %d records in %s\n", sess.SessionID, sess.TotalRecords, sess.FilePath)

	size := cfg.Importer.ClampBatchSize(batchSize)
	totalImported, totalSkipped, totalFailed := 0, 0, 0
	for {
		if err := ctx.Err(); err != nil {
			fmt.Printf("interrupted; resume with -session %s\n", sess.SessionID)
			return err
		}

		result, runErr := coordinator.Run(ctx, sess.SessionID, size, mode)
		if runErr != nil {
			return fmt.Errorf("batch run: %w", runErr)
		}

		totalImported += result.Imported
		totalSkipped += result.Skipped
		totalFailed += result.Failed
		fmt.Printf("progress %6.2f%%  processed %d/%d  imported %d  skipped %d  failed %d\n",
			result.Percentage, result.TotalProcessed, result.TotalRecords,
			totalImported, totalSkipped, totalFailed)

		if result.Status == models.StatusCompleted {
			break
		}
	}

	if totalFailed > 0 {
		failures, listErr := sessions.ListFailures(ctx, sess.SessionID)
		if listErr == nil {
			for _, f := range failures {
				fmt.Printf("failure: %s\n", f.ErrorMessage)
			}
		}
		return fmt.Errorf("%d records failed", totalFailed)
	}

	fmt.Println("import completed without failures")
	return nil
}

// openSession resumes the named session or analyzes the file and creates
// a fresh one.
func openSession(ctx context.Context, sessions *session.Store, filePath, resumeID string) (*models.ImportSession, error) {
	if resumeID != "" {
		return sessions.Get(ctx, resumeID)
	}

	total, err := dataset.Analyze(filePath)
	if err != nil {
		return nil, fmt.Errorf("analyze dataset: %w", err)
	}
	return sessions.Create(ctx, filePath, total)
}
