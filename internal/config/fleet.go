package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"edge-analyzer/internal/utils"
)

// Fleet is the static camera inventory. It is loaded once at startup and never
// mutated afterwards.
type Fleet struct {
	Cameras []Camera `yaml:"cameraDevices"`
}

type Camera struct {
	ID                  string     `yaml:"id"`
	FactoryID           string     `yaml:"factoryId"`
	ImageEndpoint       string     `yaml:"imageEndpoint"`
	Username            string     `yaml:"username"`
	Password            string     `yaml:"password"`
	TimeZoneID          string     `yaml:"timeZoneId"`
	CaptureTimeInterval int        `yaml:"captureTimeInterval"`
	LocalFolder         string     `yaml:"localFolder"`
	OutputFolder        string     `yaml:"outputFolder"`
	AIModules           []AIModule `yaml:"aiModules"`

	// Location is resolved from TimeZoneID during validation.
	Location *time.Location `yaml:"-"`
}

type AIModule struct {
	Name            string `yaml:"name"`
	ScoringEndpoint string `yaml:"scoringEndpoint"`
	Tags            []Tag  `yaml:"tags"`
}

type Tag struct {
	Name                string  `yaml:"name"`
	Probability         float64 `yaml:"probability"`
	AnalyzeTimeInterval int     `yaml:"analyzeTimeInterval"`
}

// LoadFleet reads the fleet document from a local file or, when only a URL is
// configured, over HTTP. JSON documents are accepted since JSON is valid YAML.
func LoadFleet(ctx context.Context, src FleetSource, client *http.Client) (*Fleet, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case src.Path != "":
		data, err = os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("read fleet config %q: %w", src.Path, err)
		}
	case src.URL != "":
		data, err = fetchFleet(ctx, src.URL, client)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: no fleet source configured", ErrInvalidConfig)
	}

	return ParseFleet(data)
}

// ParseFleet decodes and validates a fleet document.
func ParseFleet(data []byte) (*Fleet, error) {
	var fleet Fleet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fleet); err != nil {
		return nil, fmt.Errorf("%w: decode fleet config: %w", ErrInvalidConfig, err)
	}
	if err := fleet.Validate(); err != nil {
		return nil, err
	}
	return &fleet, nil
}

func fetchFleet(ctx context.Context, url string, client *http.Client) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fleet config request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch fleet config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch fleet config: unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Validate checks the fleet invariants and resolves camera time zones. Any
// violation is fatal: the scheduler must not start on a broken fleet.
func (f *Fleet) Validate() error {
	var errs []error
	if len(f.Cameras) == 0 {
		errs = append(errs, errors.New("at least one camera is required"))
	}

	cameraIDs := make(map[string]struct{}, len(f.Cameras))
	stagingDirs := make(map[string]string)

	for i := range f.Cameras {
		cam := &f.Cameras[i]
		where := fmt.Sprintf("camera[%d] %q", i, cam.ID)

		if cam.ID == "" {
			errs = append(errs, fmt.Errorf("%s: id is required", where))
		} else if _, dup := cameraIDs[cam.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate camera id", where))
		}
		cameraIDs[cam.ID] = struct{}{}

		if cam.FactoryID == "" {
			errs = append(errs, fmt.Errorf("%s: factoryId is required", where))
		}
		if cam.ImageEndpoint == "" {
			errs = append(errs, fmt.Errorf("%s: imageEndpoint is required", where))
		}
		if cam.LocalFolder == "" {
			errs = append(errs, fmt.Errorf("%s: localFolder is required", where))
		}
		if cam.OutputFolder == "" {
			errs = append(errs, fmt.Errorf("%s: outputFolder is required", where))
		}
		if cam.CaptureTimeInterval <= 0 {
			errs = append(errs, fmt.Errorf("%s: captureTimeInterval must be positive, got %d", where, cam.CaptureTimeInterval))
		}

		tz := cam.TimeZoneID
		if tz == "" {
			tz = "UTC"
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: unknown timeZoneId %q: %w", where, cam.TimeZoneID, err))
		} else {
			cam.Location = loc
		}

		if len(cam.AIModules) == 0 {
			errs = append(errs, fmt.Errorf("%s: at least one aiModule is required", where))
		}
		moduleNames := make(map[string]struct{}, len(cam.AIModules))
		moduleSegments := make(map[string]string, len(cam.AIModules))
		for j, mod := range cam.AIModules {
			modWhere := fmt.Sprintf("%s module[%d] %q", where, j, mod.Name)
			if strings.TrimSpace(mod.Name) == "" {
				errs = append(errs, fmt.Errorf("%s: name is required", modWhere))
			} else if _, dup := moduleNames[mod.Name]; dup {
				errs = append(errs, fmt.Errorf("%s: duplicate module name", modWhere))
			}
			moduleNames[mod.Name] = struct{}{}
			errs = append(errs, checkSegment(modWhere, mod.Name, moduleSegments)...)

			if mod.ScoringEndpoint == "" {
				errs = append(errs, fmt.Errorf("%s: scoringEndpoint is required", modWhere))
			}
			if len(mod.Tags) == 0 {
				errs = append(errs, fmt.Errorf("%s: at least one tag is required", modWhere))
			}

			tagNames := make(map[string]struct{}, len(mod.Tags))
			tagSegments := make(map[string]string, len(mod.Tags))
			for k, tag := range mod.Tags {
				tagWhere := fmt.Sprintf("%s tag[%d] %q", modWhere, k, tag.Name)
				if strings.TrimSpace(tag.Name) == "" {
					errs = append(errs, fmt.Errorf("%s: name is required", tagWhere))
				} else if _, dup := tagNames[tag.Name]; dup {
					errs = append(errs, fmt.Errorf("%s: duplicate tag name", tagWhere))
				}
				tagNames[tag.Name] = struct{}{}
				errs = append(errs, checkSegment(tagWhere, tag.Name, tagSegments)...)

				if tag.AnalyzeTimeInterval <= 0 {
					errs = append(errs, fmt.Errorf("%s: analyzeTimeInterval must be positive, got %d", tagWhere, tag.AnalyzeTimeInterval))
				}
				if tag.Probability < 0 || tag.Probability > 1 {
					errs = append(errs, fmt.Errorf("%s: probability must be within [0,1], got %v", tagWhere, tag.Probability))
				}

				// Two cameras sharing a staging folder would consume each other's images.
				dir := filepath.Join(cam.LocalFolder, cam.FactoryID, mod.Name, tag.Name)
				if owner, taken := stagingDirs[dir]; taken && owner != cam.ID {
					errs = append(errs, fmt.Errorf("%s: staging folder %q already used by camera %q", tagWhere, dir, owner))
				}
				stagingDirs[dir] = cam.ID
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// checkSegment rejects names whose file name form is empty or equal to the form
// of a sibling name, since output files are named after it.
func checkSegment(where, name string, seen map[string]string) []error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	seg := utils.SanitizeSegment(name)
	if seg == "" {
		return []error{fmt.Errorf("%s: name has no file name safe characters", where)}
	}
	owner, taken := seen[seg]
	if taken && owner != name {
		return []error{fmt.Errorf("%s: name collides with %q in output file names", where, owner)}
	}
	seen[seg] = name
	return nil
}

// Triples returns the number of schedulable (camera, module, tag) units.
func (f *Fleet) Triples() int {
	n := 0
	for _, cam := range f.Cameras {
		for _, mod := range cam.AIModules {
			n += len(mod.Tags)
		}
	}
	return n
}
