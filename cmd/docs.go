package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"boardmigrate/internal/config"
	"boardmigrate/internal/docexport"
	"boardmigrate/internal/monday"
)

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Browser-driven document tooling",
	}
	cmd.AddCommand(newDocsAuthCmd())
	cmd.AddCommand(newDocsExportCmd())
	return cmd
}

func newDocsAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Captures a browser session for document export",
		Long: `Opens a visible browser window on the board so you can log in
manually. Once the login completes the session cookies are saved and
later export runs reuse them headlessly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			exporter, err := docexport.New(exportConfig(cfg), false, logger)
			if err != nil {
				return fmt.Errorf("launch browser: %w", err)
			}
			defer exporter.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return exporter.Authenticate(ctx)
		},
	}
}

func newDocsExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [doc-url...]",
		Short: "Exports documents to Markdown files",
		Long: `Exports the given document URLs to Markdown in the download
directory. Without arguments the whole board is streamed and every item
carrying a document is exported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			urls := args
			if len(urls) == 0 {
				urls, err = collectDocURLs(ctx, cfg, logger)
				if err != nil {
					return err
				}
			}
			if len(urls) == 0 {
				logger.Info("no documents to export")
				return nil
			}

			exporter, err := docexport.New(exportConfig(cfg), true, logger)
			if err != nil {
				return fmt.Errorf("launch browser: %w", err)
			}
			defer exporter.Close()

			var failed int
			for _, url := range urls {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				path, err := exporter.Export(ctx, url)
				if err != nil {
					logger.Error("export failed", zap.String("url", url), zap.Error(err))
					failed++
					continue
				}
				fmt.Println(path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d exports failed", failed, len(urls))
			}
			return nil
		},
	}
}

func exportConfig(cfg config.Config) docexport.Config {
	return docexport.Config{
		AuthFile:      cfg.Export.AuthFile,
		DownloadDir:   cfg.Export.DownloadDir,
		BoardURL:      cfg.Export.BoardURL,
		NavTimeout:    cfg.Export.NavTimeout(),
		ExportTimeout: cfg.Export.ExportTimeout(),
		MaxParallel:   cfg.Export.MaxParallel,
	}
}

// collectDocURLs streams the whole board and gathers every document URL.
func collectDocURLs(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]string, error) {
	client := monday.NewClient(monday.Config{
		APIURL:            cfg.Monday.APIURL,
		APIKey:            cfg.Monday.APIKey,
		BoardID:           cfg.Monday.BoardID,
		PageSize:          cfg.Monday.PageSize,
		DocColumnID:       cfg.Monday.DocColumnID,
		RequestsPerSecond: cfg.Monday.RequestsPerSecond,
		Timeout:           cfg.Monday.RequestTimeout(),
	}, logger)

	var urls []string
	stream := client.Stream(1)
	for {
		item, ok, err := stream.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("stream board: %w", err)
		}
		if !ok {
			return urls, nil
		}
		if item.DocURL != "" {
			urls = append(urls, item.DocURL)
		}
	}
}
