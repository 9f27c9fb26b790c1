package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validFleet = `
cameraDevices:
  - id: cam-1
    factoryId: plant-a
    imageEndpoint: http://10.0.0.5/ISAPI/Streaming/channels/101/picture
    username: admin
    password: secret
    timeZoneId: Europe/Berlin
    captureTimeInterval: 5
    localFolder: /data/staging
    outputFolder: /data/output
    aiModules:
      - name: ppe
        scoringEndpoint: http://ppe-model/score
        tags:
          - name: helmet
            probability: 0.9
            analyzeTimeInterval: 5
          - name: vest
            probability: 0.6
            analyzeTimeInterval: 10
`

func TestParseFleet(t *testing.T) {
	fleet, err := ParseFleet([]byte(validFleet))
	require.NoError(t, err)
	require.Len(t, fleet.Cameras, 1)

	cam := fleet.Cameras[0]
	assert.Equal(t, "plant-a", cam.FactoryID)
	assert.Equal(t, 5, cam.CaptureTimeInterval)
	require.NotNil(t, cam.Location)
	assert.Equal(t, "Europe/Berlin", cam.Location.String())
	require.Len(t, cam.AIModules[0].Tags, 2)
	assert.InDelta(t, 0.9, cam.AIModules[0].Tags[0].Probability, 1e-9)
	assert.Equal(t, 2, fleet.Triples())
}

func TestParseFleetAcceptsJSON(t *testing.T) {
	doc := `{"cameraDevices":[{"id":"cam-1","factoryId":"f","imageEndpoint":"http://cam","captureTimeInterval":1,
"localFolder":"/s","outputFolder":"/o","aiModules":[{"name":"m","scoringEndpoint":"http://m",
"tags":[{"name":"t","probability":0.5,"analyzeTimeInterval":1}]}]}]}`

	fleet, err := ParseFleet([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, fleet.Cameras[0].Location, "empty time zone defaults to UTC")
}

func TestParseFleetRejectsInvalid(t *testing.T) {
	tests := map[string]struct {
		mutate func(f *Fleet)
	}{
		"zero capture interval": {
			mutate: func(f *Fleet) { f.Cameras[0].CaptureTimeInterval = 0 },
		},
		"zero analyze interval": {
			mutate: func(f *Fleet) { f.Cameras[0].AIModules[0].Tags[0].AnalyzeTimeInterval = 0 },
		},
		"negative analyze interval": {
			mutate: func(f *Fleet) { f.Cameras[0].AIModules[0].Tags[1].AnalyzeTimeInterval = -3 },
		},
		"duplicate tag name": {
			mutate: func(f *Fleet) { f.Cameras[0].AIModules[0].Tags[1].Name = "helmet" },
		},
		"duplicate module name": {
			mutate: func(f *Fleet) {
				f.Cameras[0].AIModules = append(f.Cameras[0].AIModules, f.Cameras[0].AIModules[0])
			},
		},
		"threshold above one": {
			mutate: func(f *Fleet) { f.Cameras[0].AIModules[0].Tags[0].Probability = 1.5 },
		},
		"unknown time zone": {
			mutate: func(f *Fleet) { f.Cameras[0].TimeZoneID = "Mars/Olympus" },
		},
		"missing scoring endpoint": {
			mutate: func(f *Fleet) { f.Cameras[0].AIModules[0].ScoringEndpoint = "" },
		},
		"no cameras": {
			mutate: func(f *Fleet) { f.Cameras = nil },
		},
		"tag names collide in file names": {
			mutate: func(f *Fleet) {
				f.Cameras[0].AIModules[0].Tags[0].Name = "hard hat"
				f.Cameras[0].AIModules[0].Tags[1].Name = "hard-hat"
			},
		},
		"module names collide in file names": {
			mutate: func(f *Fleet) {
				other := f.Cameras[0].AIModules[0]
				other.Name = "ppe "
				f.Cameras[0].AIModules = append(f.Cameras[0].AIModules, other)
			},
		},
		"tag name without file name safe characters": {
			mutate: func(f *Fleet) { f.Cameras[0].AIModules[0].Tags[0].Name = "***" },
		},
		"shared staging folder": {
			mutate: func(f *Fleet) {
				other := f.Cameras[0]
				other.ID = "cam-2"
				f.Cameras = append(f.Cameras, other)
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			fleet, err := ParseFleet([]byte(validFleet))
			require.NoError(t, err, "Setup: valid fleet must parse")

			tc.mutate(fleet)
			err = fleet.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseFleetRejectsUnknownFields(t *testing.T) {
	_, err := ParseFleet([]byte("cameraDevices: []\nunexpected: true\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadFleet(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fleet.yaml")
		require.NoError(t, os.WriteFile(path, []byte(validFleet), 0o600))

		fleet, err := LoadFleet(context.Background(), FleetSource{Path: path}, nil)
		require.NoError(t, err)
		assert.Len(t, fleet.Cameras, 1)
	})

	t.Run("from url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(validFleet))
		}))
		defer srv.Close()

		fleet, err := LoadFleet(context.Background(), FleetSource{URL: srv.URL}, srv.Client())
		require.NoError(t, err)
		assert.Equal(t, "cam-1", fleet.Cameras[0].ID)
	})

	t.Run("url failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := LoadFleet(context.Background(), FleetSource{URL: srv.URL}, srv.Client())
		require.Error(t, err)
	})

	t.Run("no source", func(t *testing.T) {
		_, err := LoadFleet(context.Background(), FleetSource{}, nil)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestFromViper(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		v := viper.New()
		v.Set("STORAGE_ACCOUNT_NAME", "plantstore")
		v.Set("STORAGE_CONTAINER_NAME", "images")
		v.Set("FLEET_CONFIG", "/etc/edge/fleet.yaml")

		cfg, err := fromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "development", cfg.Environment)
		assert.Equal(t, 8080, cfg.HTTP.Port)
		assert.Equal(t, time.Second, cfg.Scheduler.TimerInterval)
		assert.Equal(t, "core.windows.net", cfg.Storage.Domain)
		assert.Equal(t, 16, cfg.Scheduler.MaxConcurrentScoring)
		assert.Equal(t, 30*time.Second, cfg.HTTPClientTimeout)
	})

	t.Run("missing storage and fleet", func(t *testing.T) {
		_, err := fromViper(viper.New())
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("sub second timer", func(t *testing.T) {
		v := viper.New()
		v.Set("STORAGE_ACCOUNT_NAME", "plantstore")
		v.Set("STORAGE_CONTAINER_NAME", "images")
		v.Set("FLEET_CONFIG", "/etc/edge/fleet.yaml")
		v.Set("TIMER_INTERVAL", "200ms")

		_, err := fromViper(v)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("zero concurrency", func(t *testing.T) {
		v := viper.New()
		v.Set("STORAGE_ACCOUNT_NAME", "plantstore")
		v.Set("STORAGE_CONTAINER_NAME", "images")
		v.Set("FLEET_CONFIG", "/etc/edge/fleet.yaml")
		v.Set("MAX_CONCURRENT_IMAGES", 0)

		_, err := fromViper(v)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}
