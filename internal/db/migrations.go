package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,

	// One row per notification message: a camera's flagged images for one sweep.
	`CREATE TABLE IF NOT EXISTS analysis_notifications (
		id              UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		factory_id      TEXT NOT NULL,
		camera_id       TEXT NOT NULL,
		image_count     INT NOT NULL DEFAULT 0,
		payload         JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_notifications_camera ON analysis_notifications(factory_id, camera_id);`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_notifications_created_at ON analysis_notifications(created_at);`,

	// One row per reporting message: a single flagged prediction.
	`CREATE TABLE IF NOT EXISTS analysis_detections (
		id              UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		factory_id      TEXT NOT NULL,
		camera_id       TEXT NOT NULL,
		image_uri       TEXT NOT NULL,
		tag_name        TEXT NOT NULL,
		probability     DOUBLE PRECISION NOT NULL,
		module_endpoint TEXT,
		captured_at     TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_detections_camera_time ON analysis_detections(camera_id, captured_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_detections_tag ON analysis_detections(tag_name);`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_detections_created_at ON analysis_detections(created_at);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
