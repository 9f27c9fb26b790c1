package analysis

import (
	"time"
)

type BoundingBox struct {
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
}

// Prediction is one scored label returned by a scoring endpoint.
type Prediction struct {
	BoundingBox BoundingBox `json:"boundingBox"`
	Probability float64     `json:"probability"`
	TagID       string      `json:"tagId"`
	TagName     string      `json:"tagName"`
}

// RecognitionResults is the body returned by a scoring endpoint.
type RecognitionResults struct {
	ID          string       `json:"id"`
	Iteration   string       `json:"iteration"`
	Project     string       `json:"project"`
	Predictions []Prediction `json:"predictions"`
}

type Result struct {
	TagName     string      `json:"tagName"`
	Probability float64     `json:"probability"`
	BoundingBox BoundingBox `json:"boundingBox"`
}

// NewResults converts predictions to results, keeping the first prediction seen
// for every tag name.
func NewResults(predictions []Prediction) []Result {
	seen := make(map[string]struct{}, len(predictions))
	results := make([]Result, 0, len(predictions))
	for _, p := range predictions {
		if _, dup := seen[p.TagName]; dup {
			continue
		}
		seen[p.TagName] = struct{}{}
		results = append(results, Result{
			TagName:     p.TagName,
			Probability: p.Probability,
			BoundingBox: p.BoundingBox,
		})
	}
	return results
}

// ImageAnalysisResult is the outcome of one staged image. The routing fields are
// carried for message metadata and are not part of the payload.
type ImageAnalysisResult struct {
	ImageURI  string    `json:"imageUri"`
	Timestamp time.Time `json:"timestamp"`
	Results   []Result  `json:"results"`

	ModuleName     string `json:"-"`
	ModuleEndpoint string `json:"-"`
	TagName        string `json:"-"`
}

// CameraAnalysisResult aggregates one camera's flagged images for a sweep.
type CameraAnalysisResult struct {
	FactoryID            string                `json:"factoryId"`
	CameraID             string                `json:"cameraId"`
	ImageAnalysisResults []ImageAnalysisResult `json:"imageAnalysisResults"`
}

// NewCameraAnalysisResult keeps only images that carry at least one result.
func NewCameraAnalysisResult(factoryID, cameraID string, images []ImageAnalysisResult) CameraAnalysisResult {
	kept := make([]ImageAnalysisResult, 0, len(images))
	for _, img := range images {
		if len(img.Results) > 0 {
			kept = append(kept, img)
		}
	}
	return CameraAnalysisResult{
		FactoryID:            factoryID,
		CameraID:             cameraID,
		ImageAnalysisResults: kept,
	}
}

// FlatImageAnalysisResult is one (camera, image, result) row.
type FlatImageAnalysisResult struct {
	FactoryID   string    `json:"factoryId"`
	CameraID    string    `json:"cameraId"`
	ImageURI    string    `json:"imageUri"`
	Timestamp   time.Time `json:"timestamp"`
	TagName     string    `json:"tagName"`
	Probability float64   `json:"probability"`

	ModuleEndpoint string `json:"-"`
}

// Flatten yields one entry per result of every image in the aggregate.
func Flatten(c CameraAnalysisResult) []FlatImageAnalysisResult {
	n := 0
	for _, img := range c.ImageAnalysisResults {
		n += len(img.Results)
	}
	flat := make([]FlatImageAnalysisResult, 0, n)
	for _, img := range c.ImageAnalysisResults {
		for _, r := range img.Results {
			flat = append(flat, FlatImageAnalysisResult{
				FactoryID:      c.FactoryID,
				CameraID:       c.CameraID,
				ImageURI:       img.ImageURI,
				Timestamp:      img.Timestamp,
				TagName:        r.TagName,
				Probability:    r.Probability,
				ModuleEndpoint: img.ModuleEndpoint,
			})
		}
	}
	return flat
}
