package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"edge-analyzer/internal/config"
	"edge-analyzer/internal/domain/analysis"
	"edge-analyzer/internal/metrics"
	"edge-analyzer/internal/scoring"
	"edge-analyzer/internal/staging"
	"edge-analyzer/internal/storage"
)

// OutputStore persists an analyzed image and its predictions and returns the
// image URI.
type OutputStore interface {
	Write(ctx context.Context, cam config.Camera, dest analysis.Destination, base string, image []byte, predictions []analysis.Prediction) (string, error)
}

type Analyzer struct {
	queue     staging.Queue
	scorer    scoring.Scorer
	output    OutputStore
	metrics   *metrics.Metrics
	maxImages int
	log       zerolog.Logger
}

func NewAnalyzer(queue staging.Queue, scorer scoring.Scorer, output OutputStore, m *metrics.Metrics, maxImages int, log zerolog.Logger) *Analyzer {
	if maxImages <= 0 {
		maxImages = 1
	}
	return &Analyzer{
		queue:     queue,
		scorer:    scorer,
		output:    output,
		metrics:   m,
		maxImages: maxImages,
		log:       log,
	}
}

// AnalyzeTriple processes every image staged for (cam, mod, tag), one task per
// image. The returned slice has one slot per staged image; the slot is nil when
// the image failed or did not flag tag.
func (a *Analyzer) AnalyzeTriple(ctx context.Context, cam config.Camera, mod config.AIModule, tag config.Tag) []*analysis.ImageAnalysisResult {
	log := a.log.With().
		Str("camera_id", cam.ID).
		Str("factory_id", cam.FactoryID).
		Str("module", mod.Name).
		Str("tag", tag.Name).
		Logger()

	key := staging.Key{Root: cam.LocalFolder, FactoryID: cam.FactoryID, ModuleName: mod.Name, TagName: tag.Name}
	names, err := a.queue.List(ctx, key)
	if err != nil {
		log.Error().Err(err).Msg("failed to list staged images")
		return nil
	}
	if len(names) == 0 {
		return nil
	}

	thresholds := moduleThresholds(mod)
	results := make([]*analysis.ImageAnalysisResult, len(names))

	var g errgroup.Group
	g.SetLimit(a.maxImages)
	for i, name := range names {
		g.Go(func() error {
			res, err := a.analyzeImage(ctx, cam, mod, tag, thresholds, key, name)
			if err != nil {
				a.metrics.Image(cam.ID, metrics.Failed)
				log.Error().Err(err).Str("image", name).Msg("failed to analyze image")
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	log.Debug().Int("images", len(names)).Msg("tag sweep finished")
	return results
}

func (a *Analyzer) analyzeImage(
	ctx context.Context,
	cam config.Camera,
	mod config.AIModule,
	tag config.Tag,
	thresholds []analysis.Threshold,
	key staging.Key,
	name string,
) (*analysis.ImageAnalysisResult, error) {
	// The staged copy goes away whatever the outcome, so a bad file cannot
	// block later sweeps. Only an image whose read or scoring was cut short by
	// shutdown stays staged for the next run.
	keep := false
	defer func() {
		if keep {
			return
		}
		if err := a.queue.Remove(context.WithoutCancel(ctx), key, name); err != nil && !errors.Is(err, staging.ErrNotFound) {
			a.log.Error().Err(err).Str("camera_id", cam.ID).Str("image", name).Msg("failed to remove staged image")
		}
	}()

	ts, err := analysis.ParseImageTimestamp(name, cam.Location)
	if err != nil {
		return nil, err
	}

	data, err := a.queue.Read(ctx, key, name)
	if err != nil {
		keep = interrupted(ctx, err)
		return nil, fmt.Errorf("read staged image: %w", err)
	}

	predictions, err := a.scorer.Score(ctx, mod.ScoringEndpoint, data)
	if err != nil {
		keep = interrupted(ctx, err)
		return nil, err
	}

	// Scored images are finished even if shutdown starts now.
	ctx = context.WithoutCancel(ctx)

	c := analysis.Classify(predictions, analysis.Threshold{Name: tag.Name, Probability: tag.Probability}, thresholds)

	base := storage.OutputBaseName(name, mod.Name, tag.Name)
	uri, err := a.output.Write(ctx, cam, c.Destination, base, data, predictions)
	if err != nil {
		return nil, err
	}
	a.metrics.Image(cam.ID, string(c.Destination))

	if len(c.CurrentTagFlagged) == 0 {
		return nil, nil
	}
	return &analysis.ImageAnalysisResult{
		ImageURI:       uri,
		Timestamp:      ts,
		Results:        analysis.NewResults(c.CurrentTagFlagged),
		ModuleName:     mod.Name,
		ModuleEndpoint: mod.ScoringEndpoint,
		TagName:        tag.Name,
	}, nil
}

func moduleThresholds(mod config.AIModule) []analysis.Threshold {
	out := make([]analysis.Threshold, 0, len(mod.Tags))
	for _, t := range mod.Tags {
		out = append(out, analysis.Threshold{Name: t.Name, Probability: t.Probability})
	}
	return out
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
