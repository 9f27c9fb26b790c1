package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-analyzer/internal/config"
	"edge-analyzer/internal/domain/analysis"
)

func TestBlobURI(t *testing.T) {
	namer := NewNamer(config.StorageConfig{AccountName: "plantstore", ContainerName: "images"})

	got := namer.URI("plant-a", "cam-1", analysis.Flagged, "20240301T111530123_ppe_helmet.jpg")
	assert.Equal(t, "https://plantstore.blob.core.windows.net/images/plant-a/cam-1/flagged/20240301T111530123_ppe_helmet.jpg", got)

	sovereign := NewNamer(config.StorageConfig{AccountName: "acc", ContainerName: "c", Domain: "core.chinacloudapi.cn"})
	assert.Equal(t, "https://acc.blob.core.chinacloudapi.cn/c/f/cam/safe/x.jpg", sovereign.URI("f", "cam", analysis.Safe, "x.jpg"))
}

func TestOutputBaseName(t *testing.T) {
	tests := []struct {
		staged, module, tag string
		want                string
	}{
		{"20240301T111530123.jpg", "ppe", "helmet", "20240301T111530123_ppe_helmet"},
		{"20240301T111530123.jpg", "PPE model", "hard hat", "20240301T111530123_PPE-model_hard-hat"},
		{"20240301T111530123", "fire/smoke", "smoke", "20240301T111530123_fire-smoke_smoke"},
		{"20240301T111530123.JPG", "ppe", "helmet", "20240301T111530123_ppe_helmet"},
	}
	for _, tt := range tests {
		if got := OutputBaseName(tt.staged, tt.module, tt.tag); got != tt.want {
			t.Errorf("OutputBaseName(%q, %q, %q) = %q, want %q", tt.staged, tt.module, tt.tag, got, tt.want)
		}
	}

	_, err := analysis.ParseImageTimestamp(OutputBaseName("20240301T111530123.jpg", "ppe", "helmet")[:18], nil)
	require.NoError(t, err, "output names keep the parsable timestamp prefix")
}

type recordingUploader struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (u *recordingUploader) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	_, _ = io.Copy(io.Discard, body)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, key)
	return "https://archive/" + key, u.err
}

func testCamera(t *testing.T) config.Camera {
	return config.Camera{ID: "cam-1", FactoryID: "plant-a", OutputFolder: t.TempDir()}
}

func TestOutputWriterWrite(t *testing.T) {
	cam := testCamera(t)
	uploader := &recordingUploader{}
	w := NewOutputWriter(NewNamer(config.StorageConfig{AccountName: "acc", ContainerName: "c"}), uploader, zerolog.Nop())

	preds := []analysis.Prediction{
		{TagName: "helmet", Probability: 0.92},
		{TagName: "vest", Probability: 0.40},
	}
	uri, err := w.Write(context.Background(), cam, analysis.Flagged, "20240301T111530123_ppe_helmet", []byte("img"), preds)
	require.NoError(t, err)
	assert.Equal(t, "https://acc.blob.core.windows.net/c/plant-a/cam-1/flagged/20240301T111530123_ppe_helmet.jpg", uri)

	dir := filepath.Join(cam.OutputFolder, "plant-a", "cam-1", "flagged")
	img, err := os.ReadFile(filepath.Join(dir, "20240301T111530123_ppe_helmet.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), img)

	raw, err := os.ReadFile(filepath.Join(dir, "20240301T111530123_ppe_helmet.json"))
	require.NoError(t, err)
	var stored []analysis.Prediction
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, preds, stored, "the full raw prediction list is stored")

	assert.ElementsMatch(t, []string{
		"plant-a/cam-1/flagged/20240301T111530123_ppe_helmet.jpg",
		"plant-a/cam-1/flagged/20240301T111530123_ppe_helmet.json",
	}, uploader.keys)
}

func TestOutputWriterEmptyPredictions(t *testing.T) {
	cam := testCamera(t)
	w := NewOutputWriter(NewNamer(config.StorageConfig{AccountName: "acc", ContainerName: "c"}), nil, zerolog.Nop())

	_, err := w.Write(context.Background(), cam, analysis.Safe, "base", []byte("img"), nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(cam.OutputFolder, "plant-a", "cam-1", "safe", "base.json"))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))
}

func TestOutputWriterIgnoresArchiveFailure(t *testing.T) {
	cam := testCamera(t)
	uploader := &recordingUploader{err: errors.New("bucket unavailable")}
	w := NewOutputWriter(NewNamer(config.StorageConfig{AccountName: "acc", ContainerName: "c"}), uploader, zerolog.Nop())

	_, err := w.Write(context.Background(), cam, analysis.Safe, "base", []byte("img"), nil)
	require.NoError(t, err)
	assert.Len(t, uploader.keys, 2)
}

func TestOutputWriterFailsOnUnwritableRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(root, []byte("not a dir"), 0o600))
	cam := config.Camera{ID: "cam-1", FactoryID: "plant-a", OutputFolder: root}
	w := NewOutputWriter(NewNamer(config.StorageConfig{AccountName: "acc", ContainerName: "c"}), nil, zerolog.Nop())

	_, err := w.Write(context.Background(), cam, analysis.Safe, "base", []byte("img"), nil)
	require.Error(t, err)
}

func TestNewArchiveRequiresSettings(t *testing.T) {
	_, err := newArchive(archiveConfig{Endpoint: "https://r2.example.com"})
	require.ErrorIs(t, err, ErrNotConfigured)

	a, err := newArchive(archiveConfig{
		Endpoint:  "https://r2.example.com/",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "edge",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://r2.example.com/edge/plant-a/cam-1/flagged/x.jpg", a.objectURL("/plant-a/cam-1/flagged/x.jpg"))

	a.publicBaseURL = "https://cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/edge/x.jpg", a.objectURL("x.jpg"))
}

func TestArchiveNilUpload(t *testing.T) {
	var a *Archive
	_, err := a.Upload(context.Background(), "k", nil, 1, "image/jpeg")
	require.ErrorIs(t, err, ErrNotConfigured)
}
