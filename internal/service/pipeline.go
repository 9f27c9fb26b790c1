// Package service runs the capture, analysis and routing stages for every
// scheduler tick.
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"edge-analyzer/internal/config"
	"edge-analyzer/internal/domain/analysis"
	"edge-analyzer/internal/metrics"
	"edge-analyzer/internal/scheduler"
)

const routeTimeout = 30 * time.Second

type Capturer interface {
	Capture(ctx context.Context, cam config.Camera) (string, error)
}

// Status is a point-in-time view of the pipeline for the operational API.
type Status struct {
	Cameras           int       `json:"cameras"`
	Triples           int       `json:"triples"`
	Sweeps            int64     `json:"sweeps"`
	LastTick          int64     `json:"last_tick"`
	LastSweepAt       time.Time `json:"last_sweep_at"`
	LastSweepDuration string    `json:"last_sweep_duration"`
	CapturesOK        int64     `json:"captures_ok"`
	CapturesFailed    int64     `json:"captures_failed"`
	TriplesAnalyzed   int64     `json:"triples_analyzed"`
	Notifications     int64     `json:"notifications"`
}

type Pipeline struct {
	fleet    *config.Fleet
	capturer Capturer
	analyzer *Analyzer
	router   *Router
	limits   config.SchedulerConfig
	metrics  *metrics.Metrics
	log      zerolog.Logger

	sweeps          atomic.Int64
	capturesOK      atomic.Int64
	capturesFailed  atomic.Int64
	triplesAnalyzed atomic.Int64
	notifications   atomic.Int64

	mu        sync.RWMutex
	lastTick  int64
	lastStart time.Time
	lastTook  time.Duration
}

func NewPipeline(
	fleet *config.Fleet,
	capturer Capturer,
	analyzer *Analyzer,
	router *Router,
	limits config.SchedulerConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Pipeline {
	limits.MaxConcurrentCameras = atLeastOne(limits.MaxConcurrentCameras)
	limits.MaxConcurrentAnalyses = atLeastOne(limits.MaxConcurrentAnalyses)
	return &Pipeline{
		fleet:    fleet,
		capturer: capturer,
		analyzer: analyzer,
		router:   router,
		limits:   limits,
		metrics:  m,
		log:      log,
	}
}

// Sweep runs the capture phase and the analysis phase for tick. The phases use
// independent gates and run side by side; failures stay inside the camera or
// triple that produced them.
func (p *Pipeline) Sweep(ctx context.Context, tick int64) {
	start := time.Now()
	log := p.log.With().Int64("tick", tick).Logger()

	var g errgroup.Group
	g.Go(func() error {
		p.capturePhase(ctx, tick)
		return nil
	})
	g.Go(func() error {
		p.analysisPhase(ctx, tick)
		return nil
	})
	_ = g.Wait()

	took := time.Since(start)
	p.sweeps.Add(1)
	p.metrics.Sweep(tick, took)

	p.mu.Lock()
	p.lastTick = tick
	p.lastStart = start
	p.lastTook = took
	p.mu.Unlock()

	log.Debug().Dur("took", took).Msg("sweep finished")
}

func (p *Pipeline) capturePhase(ctx context.Context, tick int64) {
	var g errgroup.Group
	g.SetLimit(p.limits.MaxConcurrentCameras)
	for _, cam := range p.fleet.Cameras {
		if !scheduler.IsDue(tick, cam.CaptureTimeInterval) {
			continue
		}
		g.Go(func() error {
			if _, err := p.capturer.Capture(ctx, cam); err != nil {
				p.capturesFailed.Add(1)
				return nil
			}
			p.capturesOK.Add(1)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) analysisPhase(ctx context.Context, tick int64) {
	var g errgroup.Group
	g.SetLimit(p.limits.MaxConcurrentCameras)
	for _, cam := range p.fleet.Cameras {
		g.Go(func() error {
			p.analyzeCamera(ctx, cam, tick)
			return nil
		})
	}
	_ = g.Wait()
}

// analyzeCamera runs every due triple of cam and routes once all of them are done.
func (p *Pipeline) analyzeCamera(ctx context.Context, cam config.Camera, tick int64) {
	var (
		mu      sync.Mutex
		results []*analysis.ImageAnalysisResult
		due     int
	)

	var g errgroup.Group
	g.SetLimit(p.limits.MaxConcurrentAnalyses)
	for _, mod := range cam.AIModules {
		for _, tag := range mod.Tags {
			if !scheduler.IsDue(tick, tag.AnalyzeTimeInterval) {
				continue
			}
			due++
			g.Go(func() error {
				out := p.analyzer.AnalyzeTriple(ctx, cam, mod, tag)
				mu.Lock()
				results = append(results, out...)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	if due == 0 {
		return
	}
	p.triplesAnalyzed.Add(int64(due))

	// Images consumed before a shutdown are already gone from staging, so their
	// messages are still delivered.
	routeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), routeTimeout)
	defer cancel()
	if p.router.Route(routeCtx, cam, results) {
		p.notifications.Add(1)
	}
}

func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Status{
		Cameras:         len(p.fleet.Cameras),
		Triples:         p.fleet.Triples(),
		Sweeps:          p.sweeps.Load(),
		LastTick:        p.lastTick,
		LastSweepAt:     p.lastStart,
		CapturesOK:      p.capturesOK.Load(),
		CapturesFailed:  p.capturesFailed.Load(),
		TriplesAnalyzed: p.triplesAnalyzed.Load(),
		Notifications:   p.notifications.Load(),
	}
	if !p.lastStart.IsZero() {
		s.LastSweepDuration = p.lastTook.String()
	}
	return s
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
