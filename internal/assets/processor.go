// Package assets migrates item attachments: download, size-bounded
// recompression, and upload to the destination object store.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"boardmigrate/internal/metrics"
	"boardmigrate/internal/pipeline"
	"boardmigrate/internal/storage"
)

// Config controls Processor behavior.
type Config struct {
	// SizeThreshold is the byte size above which raster images get
	// re-encoded. Defaults to 1 MiB.
	SizeThreshold int64
	// DownloadTimeout bounds a single asset download. Defaults to 60s.
	DownloadTimeout time.Duration
}

// Processor implements pipeline.AssetProcessor. The HTTP client and the
// object store it holds are safe for concurrent use, so one Processor
// serves all pool workers without per-worker client construction.
type Processor struct {
	store      storage.ObjectStore
	httpClient *http.Client
	backoff    pipeline.BackoffPolicy
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Processor writing to the given store.
func New(store storage.ObjectStore, cfg Config, logger *zap.Logger) *Processor {
	if cfg.SizeThreshold <= 0 {
		cfg.SizeThreshold = 1 << 20
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:      store,
		httpClient: &http.Client{Timeout: cfg.DownloadTimeout},
		backoff:    pipeline.NewBackoffPolicy(3, time.Second),
		cfg:        cfg,
		logger:     logger,
	}
}

// Process migrates one attachment and returns its destination link.
// Failures at any stage resolve to ok=false; nothing here aborts the run.
func (p *Processor) Process(ctx context.Context, asset pipeline.AssetRef, itemName string) (string, bool) {
	if asset.PublicURL == "" || asset.Name == "" {
		return "", false
	}

	content, err := p.download(ctx, asset.PublicURL)
	if err != nil {
		p.logger.Error("asset download failed",
			zap.String("asset", asset.Name),
			zap.String("item", itemName),
			zap.Error(err),
		)
		metrics.ObserveAsset(metrics.AssetDownloadFailed)
		return "", false
	}

	content, finalName := Recompress(content, asset.Name, p.cfg.SizeThreshold, p.logger)
	objectName := fmt.Sprintf("%s_%s", SanitizeFilename(itemName), finalName)

	// Re-run safety: an identically named object from a previous pass
	// short-circuits the upload.
	link, found, err := p.store.Find(ctx, objectName)
	if err != nil {
		p.logger.Warn("duplicate check failed",
			zap.String("object", objectName), zap.Error(err))
	} else if found {
		p.logger.Info("object already exists; skipping upload",
			zap.String("object", objectName))
		metrics.ObserveAsset(metrics.AssetDeduplicated)
		return link, true
	}

	return p.upload(ctx, objectName, content)
}

func (p *Processor) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download asset: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.Warn("close download body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read asset body: %w", err)
	}
	return content, nil
}

func (p *Processor) upload(ctx context.Context, objectName string, content []byte) (string, bool) {
	contentType := http.DetectContentType(content)
	for attempt := 0; attempt < p.backoff.MaxAttempts(); attempt++ {
		if attempt > 0 {
			metrics.ObserveRetry("upload")
			if err := p.backoff.Sleep(ctx, attempt-1); err != nil {
				return "", false
			}
		}
		link, err := p.store.Create(ctx, objectName, contentType, content)
		if err == nil {
			p.logger.Info("asset uploaded",
				zap.String("object", objectName),
				zap.Int("bytes", len(content)),
			)
			metrics.ObserveAsset(metrics.AssetUploaded)
			return link, true
		}
		if ctx.Err() != nil {
			return "", false
		}
		p.logger.Warn("upload attempt failed",
			zap.String("object", objectName),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	p.logger.Error("upload failed after retries",
		zap.String("object", objectName),
		zap.Int("attempts", p.backoff.MaxAttempts()),
	)
	metrics.ObserveAsset(metrics.AssetUploadFailed)
	return "", false
}
