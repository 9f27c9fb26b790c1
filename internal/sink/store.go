package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"edge-analyzer/internal/domain/analysis"
)

// DetectionStore persists delivered messages for the query API.
type DetectionStore interface {
	SaveNotification(ctx context.Context, messageID string, result analysis.CameraAnalysisResult, raw []byte) error
	SaveDetection(ctx context.Context, messageID string, row analysis.FlatImageAnalysisResult) error
}

type RepositorySink struct {
	store DetectionStore
}

func NewRepositorySink(store DetectionStore) *RepositorySink {
	return &RepositorySink{store: store}
}

func (s *RepositorySink) Send(ctx context.Context, msg Message) error {
	if s == nil || s.store == nil {
		return ErrNotInitialized
	}

	switch msg.Type {
	case analysis.MessageTypeNotification:
		var result analysis.CameraAnalysisResult
		if err := json.Unmarshal(msg.Body, &result); err != nil {
			return fmt.Errorf("decode notification: %w", err)
		}
		return s.store.SaveNotification(ctx, msg.ID, result, msg.Body)
	case analysis.MessageTypeReporting:
		var row analysis.FlatImageAnalysisResult
		if err := json.Unmarshal(msg.Body, &row); err != nil {
			return fmt.Errorf("decode reporting row: %w", err)
		}
		row.ModuleEndpoint = msg.Properties[analysis.PropModuleEndpoint]
		return s.store.SaveDetection(ctx, msg.ID, row)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}
