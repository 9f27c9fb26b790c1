package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// dryRunDB builds SQL against the postgres dialect without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(postgres.Open("host=127.0.0.1 user=edge dbname=edge sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	return database
}

func TestDetectionsQuery(t *testing.T) {
	repo := NewAnalysisRepository(dryRunDB(t))
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filter   DetectionFilter
		contains []string
		absent   []string
	}{
		{
			name:     "no filter uses default page",
			filter:   DetectionFilter{},
			contains: []string{`FROM "analysis_detections"`, "ORDER BY captured_at DESC", "LIMIT 50"},
			absent:   []string{"WHERE", "OFFSET"},
		},
		{
			name:     "camera tag and range",
			filter:   DetectionFilter{CameraID: "cam-1", TagName: "helmet", From: &from, Limit: 10, Offset: 20},
			contains: []string{"camera_id = 'cam-1'", "tag_name = 'helmet'", "captured_at >=", "LIMIT 10", "OFFSET 20"},
			absent:   []string{"factory_id"},
		},
		{
			name:     "page size is capped",
			filter:   DetectionFilter{Limit: 50000},
			contains: []string{"LIMIT 1000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql := repo.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
				var rows []Detection
				return repo.detectionsQuery(tx, tt.filter).Find(&rows)
			})
			for _, want := range tt.contains {
				if !strings.Contains(sql, want) {
					t.Errorf("query %q does not contain %q", sql, want)
				}
			}
			for _, unwanted := range tt.absent {
				if strings.Contains(sql, unwanted) {
					t.Errorf("query %q unexpectedly contains %q", sql, unwanted)
				}
			}
		})
	}
}

func TestMessageUUID(t *testing.T) {
	id := uuid.New()
	if got := messageUUID(id.String()); got != id {
		t.Errorf("messageUUID(%q) = %s, want the same id", id, got)
	}
	if got := messageUUID("not-a-uuid"); got == uuid.Nil {
		t.Error("messageUUID() must generate an id for non-uuid input")
	}
}

func TestDeleteOldDetectionsRejectsNonPositive(t *testing.T) {
	repo := NewAnalysisRepository(dryRunDB(t))
	if _, err := repo.DeleteOldDetections(context.Background(), 0); err == nil {
		t.Error("DeleteOldDetections(0) should fail")
	}
}
