package capture_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-analyzer/internal/capture"
	"edge-analyzer/internal/config"
	"edge-analyzer/internal/staging"
)

func newCamera(t *testing.T, endpoint string) config.Camera {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Almaty")
	require.NoError(t, err)
	return config.Camera{
		ID:                  "cam-1",
		FactoryID:           "plant-a",
		ImageEndpoint:       endpoint,
		Username:            "admin",
		Password:            "secret",
		CaptureTimeInterval: 1,
		LocalFolder:         "/staging",
		OutputFolder:        "/output",
		Location:            loc,
		AIModules: []config.AIModule{
			{Name: "ppe", ScoringEndpoint: "http://ppe", Tags: []config.Tag{{Name: "helmet"}, {Name: "vest"}}},
			{Name: "fire", ScoringEndpoint: "http://fire", Tags: []config.Tag{{Name: "smoke"}}},
		},
	}
}

func TestHTTPSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	src := capture.NewHTTPSource(srv.Client())

	data, err := src.Fetch(context.Background(), srv.URL, capture.Credentials{Username: "admin", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	_, err = src.Fetch(context.Background(), srv.URL, capture.Credentials{Username: "admin", Password: "wrong"})
	require.ErrorIs(t, err, capture.ErrCaptureFailed)
}

func TestHTTPSourceTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := capture.NewHTTPSource(nil).Fetch(context.Background(), url, capture.Credentials{})
	require.ErrorIs(t, err, capture.ErrCaptureFailed)
}

type fakeSource struct {
	data []byte
	err  error
}

func (f fakeSource) Fetch(context.Context, string, capture.Credentials) ([]byte, error) {
	return f.data, f.err
}

func TestCaptureFansOutToEveryTag(t *testing.T) {
	ctx := context.Background()
	queue := staging.NewMemQueue()
	cam := newCamera(t, "http://camera")
	fixed := time.Date(2024, 3, 1, 6, 15, 30, 123*int(time.Millisecond), time.UTC)

	stage := capture.NewStage(fakeSource{data: []byte("img")}, queue, nil, zerolog.Nop()).
		WithClock(func() time.Time { return fixed })

	name, err := stage.Capture(ctx, cam)
	require.NoError(t, err)
	assert.Equal(t, "20240301T111530123.jpg", name, "named in the camera's zone (UTC+5)")

	for _, mod := range cam.AIModules {
		for _, tag := range mod.Tags {
			key := staging.Key{Root: cam.LocalFolder, FactoryID: cam.FactoryID, ModuleName: mod.Name, TagName: tag.Name}
			data, err := queue.Read(ctx, key, name)
			require.NoError(t, err, "copy for %s/%s", mod.Name, tag.Name)
			assert.Equal(t, []byte("img"), data)
		}
	}
}

func TestCaptureFailureStagesNothing(t *testing.T) {
	ctx := context.Background()
	queue := staging.NewMemQueue()
	cam := newCamera(t, "http://camera")

	stage := capture.NewStage(fakeSource{err: capture.ErrCaptureFailed}, queue, nil, zerolog.Nop())

	_, err := stage.Capture(ctx, cam)
	require.ErrorIs(t, err, capture.ErrCaptureFailed)

	key := staging.Key{Root: cam.LocalFolder, FactoryID: cam.FactoryID, ModuleName: "ppe", TagName: "helmet"}
	assert.Equal(t, 0, queue.Len(key))
}

type failingQueue struct {
	*staging.MemQueue
	failTag string
}

func (q failingQueue) Put(ctx context.Context, key staging.Key, name string, data []byte) error {
	if key.TagName == q.failTag {
		return errors.New("disk full")
	}
	return q.MemQueue.Put(ctx, key, name, data)
}

func TestCaptureContinuesPastStagingFailure(t *testing.T) {
	ctx := context.Background()
	queue := failingQueue{MemQueue: staging.NewMemQueue(), failTag: "helmet"}
	cam := newCamera(t, "http://camera")

	name, err := capture.NewStage(fakeSource{data: []byte("img")}, queue, nil, zerolog.Nop()).Capture(ctx, cam)
	require.Error(t, err)

	vest := staging.Key{Root: cam.LocalFolder, FactoryID: cam.FactoryID, ModuleName: "ppe", TagName: "vest"}
	_, readErr := queue.Read(ctx, vest, name)
	require.NoError(t, readErr, "other tags still receive their copy")
}
