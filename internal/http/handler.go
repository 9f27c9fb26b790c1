package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"edge-analyzer/internal/config"
	"edge-analyzer/internal/http/middleware"
	"edge-analyzer/internal/repository"
	"edge-analyzer/internal/service"
	"edge-analyzer/internal/utils"
)

var ErrInvalidInput = errors.New("invalid input")

type StatusProvider interface {
	Status() service.Status
}

type DetectionStore interface {
	FindDetections(ctx context.Context, filter repository.DetectionFilter) ([]repository.Detection, error)
	DeleteOldDetections(ctx context.Context, days int) (int64, error)
}

type Handler struct {
	status     StatusProvider
	fleet      *config.Fleet
	detections DetectionStore
	feed       http.Handler
	log        zerolog.Logger
}

// NewHandler wires the API. detections and feed may be nil when the detection
// store or the live feed are disabled.
func NewHandler(
	status StatusProvider,
	fleet *config.Fleet,
	detections DetectionStore,
	feed http.Handler,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		status:     status,
		fleet:      fleet,
		detections: detections,
		feed:       feed,
		log:        log,
	}
}

// Register mounts the routes. A nil authMiddleware disables the detection
// endpoints and leaves the fleet view and live feed open.
func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/api/v1/status", h.getStatus)

	if authMiddleware == nil {
		h.log.Warn().Msg("JWT_ACCESS_SECRET not set, detection endpoints are disabled and camera data is public")
		r.GET("/api/v1/cameras", h.listCameras)
		if h.feed != nil {
			r.GET("/ws/notifications", gin.WrapH(h.feed))
		}
		return
	}

	if h.feed != nil {
		r.GET("/ws/notifications", authMiddleware, gin.WrapH(h.feed))
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/cameras", h.listCameras)
		protected.GET("/detections", h.listDetections)
		protected.GET("/detections/export", h.exportDetections)
		protected.DELETE("/detections", middleware.RequireOperator(), h.deleteOldDetections)
	}
}

func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.status.Status()))
}

type cameraView struct {
	ID                  string       `json:"id"`
	FactoryID           string       `json:"factory_id"`
	ImageEndpoint       string       `json:"image_endpoint"`
	Username            string       `json:"username,omitempty"`
	Password            string       `json:"password,omitempty"`
	TimeZone            string       `json:"time_zone"`
	CaptureTimeInterval int          `json:"capture_time_interval"`
	Modules             []moduleView `json:"modules"`
}

type moduleView struct {
	Name            string    `json:"name"`
	ScoringEndpoint string    `json:"scoring_endpoint"`
	Tags            []tagView `json:"tags"`
}

type tagView struct {
	Name                string  `json:"name"`
	Probability         float64 `json:"probability"`
	AnalyzeTimeInterval int     `json:"analyze_time_interval"`
}

func (h *Handler) listCameras(c *gin.Context) {
	cameras := make([]cameraView, 0, len(h.fleet.Cameras))
	for _, cam := range h.fleet.Cameras {
		view := cameraView{
			ID:                  cam.ID,
			FactoryID:           cam.FactoryID,
			ImageEndpoint:       cam.ImageEndpoint,
			Username:            cam.Username,
			Password:            utils.MaskSecret(cam.Password),
			CaptureTimeInterval: cam.CaptureTimeInterval,
		}
		if cam.Location != nil {
			view.TimeZone = cam.Location.String()
		}
		for _, mod := range cam.AIModules {
			mv := moduleView{Name: mod.Name, ScoringEndpoint: mod.ScoringEndpoint}
			for _, tag := range mod.Tags {
				mv.Tags = append(mv.Tags, tagView{
					Name:                tag.Name,
					Probability:         tag.Probability,
					AnalyzeTimeInterval: tag.AnalyzeTimeInterval,
				})
			}
			view.Modules = append(view.Modules, mv)
		}
		cameras = append(cameras, view)
	}
	c.JSON(http.StatusOK, successResponse(cameras))
}

func (h *Handler) listDetections(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	filter, err := parseDetectionFilter(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	detections, err := h.detections.FindDetections(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(detections))
}

func (h *Handler) exportDetections(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	filter, err := parseDetectionFilter(c)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if c.Query("limit") == "" {
		filter.Limit = repository.MaxPageSize
	}

	detections, err := h.detections.FindDetections(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	book, err := buildDetectionsWorkbook(detections)
	if err != nil {
		h.handleError(c, err)
		return
	}
	defer func() {
		_ = book.Close()
	}()

	filename := "detections-" + time.Now().UTC().Format("20060102T150405") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", xlsxContentType)
	c.Status(http.StatusOK)
	if err := book.Write(c.Writer); err != nil {
		h.log.Error().Err(err).Msg("failed to write detections export")
	}
}

func (h *Handler) deleteOldDetections(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	days, err := strconv.Atoi(c.Query("older_than_days"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse("older_than_days must be a positive integer"))
		return
	}

	deleted, err := h.detections.DeleteOldDetections(c.Request.Context(), days)
	if err != nil {
		h.handleError(c, err)
		return
	}

	principal, _ := middleware.GetPrincipal(c)
	h.log.Info().
		Str("subject", principal.Subject).
		Int("older_than_days", days).
		Int64("deleted", deleted).
		Msg("old detections deleted")

	c.JSON(http.StatusOK, gin.H{"status": "ok", "deleted": deleted})
}

func (h *Handler) requireStore(c *gin.Context) bool {
	if h.detections == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("detection store is not configured"))
		return false
	}
	return true
}

func parseDetectionFilter(c *gin.Context) (repository.DetectionFilter, error) {
	filter := repository.DetectionFilter{
		FactoryID: strings.TrimSpace(c.Query("factory_id")),
		CameraID:  strings.TrimSpace(c.Query("camera_id")),
		TagName:   strings.TrimSpace(c.Query("tag")),
		Limit:     50,
	}

	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("%w: %s must be RFC3339", ErrInvalidInput, name)
		}
		*dst = &t
	}

	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}
	return filter, nil
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
