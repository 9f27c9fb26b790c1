package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"edge-analyzer/internal/domain/analysis"
)

// MaxPageSize caps a single detections query.
const MaxPageSize = 1000

type AnalysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (Notification) TableName() string {
	return "analysis_notifications"
}

func (Detection) TableName() string {
	return "analysis_detections"
}

type Notification struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	FactoryID  string         `gorm:"not null" json:"factory_id"`
	CameraID   string         `gorm:"not null" json:"camera_id"`
	ImageCount int            `gorm:"not null" json:"image_count"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	CreatedAt  time.Time      `json:"created_at"`
}

type Detection struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FactoryID      string    `gorm:"not null" json:"factory_id"`
	CameraID       string    `gorm:"not null" json:"camera_id"`
	ImageURI       string    `gorm:"not null" json:"image_uri"`
	TagName        string    `gorm:"not null" json:"tag_name"`
	Probability    float64   `gorm:"not null" json:"probability"`
	ModuleEndpoint *string   `json:"module_endpoint,omitempty"`
	CapturedAt     time.Time `gorm:"not null" json:"captured_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// DetectionFilter narrows FindDetections. Zero values mean no constraint.
type DetectionFilter struct {
	FactoryID string
	CameraID  string
	TagName   string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// messageUUID reuses the message id as the primary key so a redelivered message
// cannot be stored twice.
func messageUUID(id string) uuid.UUID {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed
	}
	return uuid.New()
}

func (r *AnalysisRepository) SaveNotification(ctx context.Context, messageID string, result analysis.CameraAnalysisResult, raw []byte) error {
	row := Notification{
		ID:         messageUUID(messageID),
		FactoryID:  result.FactoryID,
		CameraID:   result.CameraID,
		ImageCount: len(result.ImageAnalysisResults),
		Payload:    datatypes.JSON(raw),
		CreatedAt:  time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create notification in database: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) SaveDetection(ctx context.Context, messageID string, flat analysis.FlatImageAnalysisResult) error {
	row := Detection{
		ID:          messageUUID(messageID),
		FactoryID:   flat.FactoryID,
		CameraID:    flat.CameraID,
		ImageURI:    flat.ImageURI,
		TagName:     flat.TagName,
		Probability: flat.Probability,
		CapturedAt:  flat.Timestamp,
		CreatedAt:   time.Now(),
	}
	if flat.ModuleEndpoint != "" {
		row.ModuleEndpoint = &flat.ModuleEndpoint
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create detection in database: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) FindDetections(ctx context.Context, filter DetectionFilter) ([]Detection, error) {
	var detections []Detection
	err := r.detectionsQuery(r.db.WithContext(ctx), filter).Find(&detections).Error
	return detections, err
}

func (r *AnalysisRepository) detectionsQuery(tx *gorm.DB, filter DetectionFilter) *gorm.DB {
	query := tx.Model(&Detection{})

	if filter.FactoryID != "" {
		query = query.Where("factory_id = ?", filter.FactoryID)
	}
	if filter.CameraID != "" {
		query = query.Where("camera_id = ?", filter.CameraID)
	}
	if filter.TagName != "" {
		query = query.Where("tag_name = ?", filter.TagName)
	}
	if filter.From != nil {
		query = query.Where("captured_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("captured_at <= ?", *filter.To)
	}

	query = query.Order("captured_at DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	query = query.Limit(limit)
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	return query
}

// DeleteOldDetections removes detections and notifications stored more than
// days ago and returns the number of detection rows removed.
func (r *AnalysisRepository) DeleteOldDetections(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %d days", days)
	}
	cutoffTime := time.Now().AddDate(0, 0, -days)

	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("created_at < ?", cutoffTime).Delete(&Detection{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return tx.Where("created_at < ?", cutoffTime).Delete(&Notification{}).Error
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
