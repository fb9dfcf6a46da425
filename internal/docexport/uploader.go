package docexport

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"boardmigrate/internal/assets"
	"boardmigrate/internal/pipeline"
	"boardmigrate/internal/storage"
)

// Uploader implements pipeline.DocProcessor by exporting an item's
// document to Markdown and pushing the file to the object store.
type Uploader struct {
	exporter *Exporter
	store    storage.ObjectStore
	logger   *zap.Logger
}

// NewUploader wires the exporter to a destination store.
func NewUploader(exporter *Exporter, store storage.ObjectStore, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{exporter: exporter, store: store, logger: logger}
}

// Process exports the item's document and uploads it named after the
// item. Failures resolve to ok=false so the rest of the item still lands.
func (u *Uploader) Process(ctx context.Context, item pipeline.Item) (string, bool) {
	if item.DocURL == "" {
		return "", false
	}

	objectName := fmt.Sprintf("%s.md", assets.SanitizeFilename(item.Name))
	link, found, err := u.store.Find(ctx, objectName)
	if err != nil {
		u.logger.Warn("doc duplicate check failed",
			zap.String("object", objectName), zap.Error(err))
	} else if found {
		u.logger.Info("document already uploaded; skipping export",
			zap.String("object", objectName))
		return link, true
	}

	path, err := u.exporter.Export(ctx, item.DocURL)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			u.logger.Error("document export requires authentication; run the auth command first",
				zap.String("item", item.Name))
		} else {
			u.logger.Error("document export failed",
				zap.String("item", item.Name), zap.Error(err))
		}
		return "", false
	}

	content, err := os.ReadFile(path)
	if err != nil {
		u.logger.Error("read exported document",
			zap.String("path", path), zap.Error(err))
		return "", false
	}

	link, err = u.store.Create(ctx, objectName, "text/markdown", content)
	if err != nil {
		u.logger.Error("upload exported document",
			zap.String("object", objectName), zap.Error(err))
		return "", false
	}
	u.logger.Info("document uploaded",
		zap.String("item", item.Name), zap.String("object", objectName))
	return link, true
}
