package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"edge-analyzer/internal/config"
	"edge-analyzer/internal/domain/analysis"
	"edge-analyzer/internal/utils"
)

// OutputWriter persists analyzed images under
// <outputFolder>/<factoryId>/<cameraId>/<flagged|safe>/.
type OutputWriter struct {
	namer   Namer
	archive Uploader
	log     zerolog.Logger
}

// NewOutputWriter builds a writer. archive may be nil, in which case files are
// only written locally.
func NewOutputWriter(namer Namer, archive Uploader, log zerolog.Logger) *OutputWriter {
	return &OutputWriter{namer: namer, archive: archive, log: log}
}

// Write stores <base>.jpg and <base>.json, the latter holding the raw prediction
// list, and returns the blob URI of the image.
func (w *OutputWriter) Write(
	ctx context.Context,
	cam config.Camera,
	dest analysis.Destination,
	base string,
	image []byte,
	predictions []analysis.Prediction,
) (string, error) {
	if predictions == nil {
		predictions = []analysis.Prediction{}
	}
	payload, err := json.Marshal(predictions)
	if err != nil {
		return "", fmt.Errorf("marshal predictions: %w", err)
	}

	dir := filepath.Join(cam.OutputFolder, cam.FactoryID, cam.ID, string(dest))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir %q: %w", dir, err)
	}

	imageName := base + ".jpg"
	jsonName := base + ".json"
	if err := utils.AtomicWrite(filepath.Join(dir, imageName), image); err != nil {
		return "", fmt.Errorf("write output image: %w", err)
	}
	if err := utils.AtomicWrite(filepath.Join(dir, jsonName), payload); err != nil {
		return "", fmt.Errorf("write output predictions: %w", err)
	}

	if w.archive != nil {
		w.upload(ctx, ObjectKey(cam.FactoryID, cam.ID, dest, imageName), image, "image/jpeg")
		w.upload(ctx, ObjectKey(cam.FactoryID, cam.ID, dest, jsonName), payload, "application/json")
	}

	return w.namer.URI(cam.FactoryID, cam.ID, dest, imageName), nil
}

// upload failures are logged only; the local output tree is the source of truth.
func (w *OutputWriter) upload(ctx context.Context, key string, data []byte, contentType string) {
	if _, err := w.archive.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		w.log.Warn().Err(err).Str("key", key).Msg("failed to archive output file")
	}
}
