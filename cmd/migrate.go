package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"boardmigrate/internal/assets"
	"boardmigrate/internal/config"
	"boardmigrate/internal/docexport"
	"boardmigrate/internal/ledger"
	"boardmigrate/internal/logging"
	"boardmigrate/internal/metrics"
	"boardmigrate/internal/monday"
	"boardmigrate/internal/notify"
	"boardmigrate/internal/pipeline"
	"boardmigrate/internal/state"
	"boardmigrate/internal/storage"
)

func newMigrateCmd() *cobra.Command {
	var (
		filesOnly   bool
		docsOnly    bool
		collectURLs bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Runs the board migration",
		Long: `Streams board items from the configured offset, uploads their file
attachments and optional documents, and records each migrated item in
the ledger spreadsheet. Interrupting the run is safe; the next run
resumes from the last flushed batch.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if filesOnly && docsOnly {
				return fmt.Errorf("--files-only and --docs-only are mutually exclusive")
			}
			return runMigrate(cmd.Context(), migrateMode{
				filesOnly:   filesOnly,
				docsOnly:    docsOnly,
				collectURLs: collectURLs,
			})
		},
	}

	cmd.Flags().BoolVar(&filesOnly, "files-only", false, "migrate file attachments only")
	cmd.Flags().BoolVar(&docsOnly, "docs-only", false, "migrate documents only")
	cmd.Flags().BoolVar(&collectURLs, "collect-urls", false,
		"record source document URLs in the ledger instead of exporting them")

	return cmd
}

type migrateMode struct {
	filesOnly   bool
	docsOnly    bool
	collectURLs bool
}

func runMigrate(parent context.Context, mode migrateMode) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	runID := uuid.NewString()
	logger = logging.ForRun(logger, runID)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		startMetricsListener(cfg.Metrics.Port, logger)
	}

	store, err := storage.NewGCSStore(ctx, storage.GCSConfig{
		Bucket:          cfg.Google.Bucket,
		Prefix:          cfg.Google.Prefix,
		CredentialsFile: cfg.Google.CredentialsFile,
	})
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}
	defer func() { _ = store.Close() }()

	sheet, err := ledger.New(ctx, ledger.Config{
		SpreadsheetID:   cfg.Google.SpreadsheetID,
		SheetName:       cfg.Google.SheetName,
		CredentialsFile: cfg.Google.CredentialsFile,
	}, logger)
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}

	source := monday.NewClient(monday.Config{
		APIURL:            cfg.Monday.APIURL,
		APIKey:            cfg.Monday.APIKey,
		BoardID:           cfg.Monday.BoardID,
		PageSize:          cfg.Monday.PageSize,
		DocColumnID:       cfg.Monday.DocColumnID,
		RequestsPerSecond: cfg.Monday.RequestsPerSecond,
		Timeout:           cfg.Monday.RequestTimeout(),
	}, logger)

	var assetProc pipeline.AssetProcessor
	if !mode.docsOnly {
		assetProc = assets.New(store, assets.Config{
			SizeThreshold:   cfg.Pipeline.SizeThresholdBytes,
			DownloadTimeout: cfg.Pipeline.DownloadTimeout(),
		}, logger)
	}

	docProc, closeDocs, err := buildDocProcessor(cfg, mode, store, logger)
	if err != nil {
		return err
	}
	defer closeDocs()

	notifier, closeNotify, err := buildNotifier(ctx, cfg, runID, logger)
	if err != nil {
		return err
	}
	defer closeNotify()

	orchestrator := pipeline.New(
		source,
		state.New(cfg.Pipeline.StateFile, logger),
		assetProc,
		docProc,
		sheet,
		notifier,
		nil,
		pipeline.Config{
			BatchSize:   cfg.Pipeline.BatchSize,
			PoolWidth:   cfg.Pipeline.PoolWidth,
			ExpiryDelay: cfg.Pipeline.ExpiryDelay(),
		},
		logger,
	)

	if err := orchestrator.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("migration interrupted; progress saved")
			return nil
		}
		return fmt.Errorf("run migration: %w", err)
	}
	return nil
}

// buildDocProcessor picks the document stage for the requested mode:
// disabled, URL collection, or full browser export.
func buildDocProcessor(
	cfg config.Config,
	mode migrateMode,
	store storage.ObjectStore,
	logger *zap.Logger,
) (pipeline.DocProcessor, func(), error) {
	noop := func() {}
	switch {
	case mode.filesOnly || cfg.Monday.DocColumnID == "":
		return nil, noop, nil
	case mode.collectURLs:
		return pipeline.URLCollector{}, noop, nil
	}

	exporter, err := docexport.New(docexport.Config{
		AuthFile:      cfg.Export.AuthFile,
		DownloadDir:   cfg.Export.DownloadDir,
		BoardURL:      cfg.Export.BoardURL,
		NavTimeout:    cfg.Export.NavTimeout(),
		ExportTimeout: cfg.Export.ExportTimeout(),
		MaxParallel:   cfg.Export.MaxParallel,
	}, true, logger)
	if err != nil {
		return nil, noop, fmt.Errorf("init document exporter: %w", err)
	}
	return docexport.NewUploader(exporter, store, logger), exporter.Close, nil
}

func buildNotifier(ctx context.Context, cfg config.Config, runID string, logger *zap.Logger) (pipeline.Notifier, func(), error) {
	slack := notify.NewSlack(notify.SlackConfig{
		Token:   cfg.Slack.Token,
		Channel: cfg.Slack.Channel,
	}, logger)

	events, err := notify.NewPubSub(ctx, notify.PubSubConfig{
		ProjectID: cfg.PubSub.ProjectID,
		Topic:     cfg.PubSub.Topic,
	}, runID, logger)
	if err != nil {
		return nil, func() {}, fmt.Errorf("init pubsub notifier: %w", err)
	}

	closeFn := func() {
		if events != nil {
			_ = events.Close()
		}
	}

	// Typed nils must not reach the interface slice.
	var children []pipeline.Notifier
	if slack != nil {
		children = append(children, slack)
	}
	if events != nil {
		children = append(children, events)
	}
	if len(children) == 0 {
		return notify.Noop{}, closeFn, nil
	}
	return notify.NewMulti(children...), closeFn, nil
}

func startMetricsListener(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		addr := fmt.Sprintf(":%d", port)
		logger.Info("metrics listener starting", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}()
}
