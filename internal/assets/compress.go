package assets

import (
	"bytes"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"boardmigrate/internal/metrics"
)

// Re-encoding quality schedule: start high, step down until the output
// fits or the floor is reached.
const (
	startQuality = 85
	qualityStep  = 10
	floorQuality = 20
)

// Recompress shrinks oversized raster images by re-encoding them as JPEG
// with decreasing quality. Content at or under the threshold, and anything
// that is not a JPEG or PNG, passes through byte-identical. EXIF
// orientation is applied before encoding so rotated photos stay upright.
// Returns the (possibly new) content and filename; re-encoded files get a
// .jpg extension.
func Recompress(content []byte, filename string, threshold int64, logger *zap.Logger) ([]byte, string) {
	if int64(len(content)) <= threshold {
		return content, filename
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil || (format != "jpeg" && format != "png") {
		return content, filename
	}

	img, err := imaging.Decode(bytes.NewReader(content), imaging.AutoOrientation(true))
	if err != nil {
		logger.Warn("image decode failed; keeping original",
			zap.String("file", filename), zap.Error(err))
		return content, filename
	}

	var buf bytes.Buffer
	quality := startQuality
	if err := encodeJPEG(&buf, img, quality); err != nil {
		logger.Warn("image encode failed; keeping original",
			zap.String("file", filename), zap.Error(err))
		return content, filename
	}
	for int64(buf.Len()) > threshold && quality > floorQuality {
		quality -= qualityStep
		buf.Reset()
		if err := encodeJPEG(&buf, img, quality); err != nil {
			logger.Warn("image encode failed; keeping original",
				zap.String("file", filename), zap.Error(err))
			return content, filename
		}
	}

	newName := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jpg"
	logger.Info("image re-encoded",
		zap.String("from", filename),
		zap.String("to", newName),
		zap.Int("original_bytes", len(content)),
		zap.Int("encoded_bytes", buf.Len()),
		zap.Int("quality", quality),
	)
	metrics.ObserveCompression(len(content) - buf.Len())
	return buf.Bytes(), newName
}

func encodeJPEG(buf *bytes.Buffer, img image.Image, quality int) error {
	return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
}
