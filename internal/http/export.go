package http

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"edge-analyzer/internal/repository"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	detectionsSheet = "Detections"
)

var detectionColumns = []interface{}{
	"Captured at", "Factory", "Camera", "Tag", "Probability", "Image URI", "Module endpoint",
}

func buildDetectionsWorkbook(detections []repository.Detection) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", detectionsSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(detectionsSheet, "A1", &detectionColumns); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, d := range detections {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		endpoint := ""
		if d.ModuleEndpoint != nil {
			endpoint = *d.ModuleEndpoint
		}
		row := []interface{}{
			d.CapturedAt.Format("2006-01-02 15:04:05.000"),
			d.FactoryID,
			d.CameraID,
			d.TagName,
			d.Probability,
			d.ImageURI,
			endpoint,
		}
		if err := f.SetSheetRow(detectionsSheet, cell, &row); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(detectionsSheet, "A", "A", 24); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.SetColWidth(detectionsSheet, "F", "G", 60); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}
