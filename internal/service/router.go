package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"edge-analyzer/internal/config"
	"edge-analyzer/internal/domain/analysis"
	"edge-analyzer/internal/metrics"
	"edge-analyzer/internal/sink"
)

const reportingConcurrency = 8

type outbound interface {
	Type() analysis.MessageType
	Payload() any
	Properties() map[string]string
}

// Router turns a camera's sweep results into one notification message and one
// reporting message per flagged prediction.
type Router struct {
	sink    sink.Sink
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
	log     zerolog.Logger
}

func NewRouter(s sink.Sink, m *metrics.Metrics, log zerolog.Logger) *Router {
	return &Router{
		sink:    s,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     log,
	}
}

// Route reports whether a notification was emitted. Send failures are logged
// and counted; none of them stops the remaining messages.
func (r *Router) Route(ctx context.Context, cam config.Camera, results []*analysis.ImageAnalysisResult) bool {
	images := make([]analysis.ImageAnalysisResult, 0, len(results))
	for _, res := range results {
		if res != nil {
			images = append(images, *res)
		}
	}
	if len(images) == 0 {
		return false
	}

	log := r.log.With().Str("camera_id", cam.ID).Str("factory_id", cam.FactoryID).Logger()

	aggregate := analysis.NewCameraAnalysisResult(cam.FactoryID, cam.ID, images)
	if len(aggregate.ImageAnalysisResults) == 0 {
		return false
	}

	loc := cam.Location
	if loc == nil {
		loc = time.UTC
	}
	r.emit(ctx, log, analysis.NotificationMessage{Result: aggregate, SentAt: r.now().In(loc)})

	flat := analysis.Flatten(aggregate)
	var g errgroup.Group
	g.SetLimit(reportingConcurrency)
	for _, row := range flat {
		g.Go(func() error {
			r.emit(ctx, log, analysis.ReportingMessage{Result: row})
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int("images", len(aggregate.ImageAnalysisResults)).
		Int("detections", len(flat)).
		Msg("routed analysis results")
	return true
}

func (r *Router) emit(ctx context.Context, log zerolog.Logger, m outbound) {
	msg, err := r.build(m)
	if err != nil {
		r.metrics.Message(string(m.Type()), err)
		log.Error().Err(err).Str("message_type", string(m.Type())).Msg("failed to build message")
		return
	}

	err = r.send(ctx, msg)
	r.metrics.Message(string(msg.Type), err)
	switch {
	case err == nil:
	case errors.Is(err, sink.ErrNotInitialized):
		log.Error().Bool("critical", true).Err(err).Str("message_type", string(msg.Type)).Msg("message skipped")
	default:
		log.Error().Err(err).Str("message_type", string(msg.Type)).Str("message_id", msg.ID).Msg("failed to send message")
	}
}

func (r *Router) send(ctx context.Context, msg sink.Message) error {
	if r.sink == nil {
		return sink.ErrNotInitialized
	}
	return r.sink.Send(ctx, msg)
}

func (r *Router) build(m outbound) (sink.Message, error) {
	body, err := json.Marshal(m.Payload())
	if err != nil {
		return sink.Message{}, fmt.Errorf("marshal %s payload: %w", m.Type(), err)
	}
	id := r.newID()
	props := m.Properties()
	props[analysis.PropMessageID] = id
	return sink.Message{ID: id, Type: m.Type(), Body: body, Properties: props}, nil
}
