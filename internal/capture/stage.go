// Package capture fetches camera snapshots and fans them out into staging.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"edge-analyzer/internal/config"
	"edge-analyzer/internal/domain/analysis"
	"edge-analyzer/internal/metrics"
	"edge-analyzer/internal/staging"
)

type Stage struct {
	source  ImageSource
	queue   staging.Queue
	metrics *metrics.Metrics
	now     func() time.Time
	log     zerolog.Logger
}

func NewStage(source ImageSource, queue staging.Queue, m *metrics.Metrics, log zerolog.Logger) *Stage {
	return &Stage{
		source:  source,
		queue:   queue,
		metrics: m,
		now:     time.Now,
		log:     log,
	}
}

// WithClock replaces the wall clock used to name captured images.
func (s *Stage) WithClock(now func() time.Time) *Stage {
	s.now = now
	return s
}

// Capture fetches one image from cam and writes a copy into every (module, tag)
// staging folder. It returns the staged image name. A failure abandons the
// camera for this tick; the next due tick is the retry.
func (s *Stage) Capture(ctx context.Context, cam config.Camera) (string, error) {
	log := s.log.With().
		Str("camera_id", cam.ID).
		Str("factory_id", cam.FactoryID).
		Logger()

	data, err := s.source.Fetch(ctx, cam.ImageEndpoint, Credentials{Username: cam.Username, Password: cam.Password})
	s.metrics.Capture(cam.ID, err)
	if err != nil {
		log.Error().Err(err).Str("endpoint", cam.ImageEndpoint).Msg("failed to capture image")
		return "", err
	}

	loc := cam.Location
	if loc == nil {
		loc = time.UTC
	}
	name := analysis.FormatImageName(s.now().In(loc)) + staging.ImageExt

	var errs []error
	for _, mod := range cam.AIModules {
		for _, tag := range mod.Tags {
			key := staging.Key{
				Root:       cam.LocalFolder,
				FactoryID:  cam.FactoryID,
				ModuleName: mod.Name,
				TagName:    tag.Name,
			}
			if err := s.queue.Put(ctx, key, name, data); err != nil {
				log.Error().
					Err(err).
					Str("module", mod.Name).
					Str("tag", tag.Name).
					Msg("failed to stage image")
				errs = append(errs, fmt.Errorf("stage %s/%s: %w", mod.Name, tag.Name, err))
				continue
			}
			log.Debug().
				Str("module", mod.Name).
				Str("tag", tag.Name).
				Str("image", name).
				Msg("staged image")
		}
	}

	log.Debug().Str("image", name).Int("bytes", len(data)).Msg("captured image")
	return name, errors.Join(errs...)
}
