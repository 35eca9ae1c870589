package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/translate"
)

// Run outcomes, used as the "result" label and in reports.
const (
	ResultUploaded = "uploaded"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
)

// Report describes one synchronization run.
type Report struct {
	RunID       string            `yaml:"run_id"`
	Source      string            `yaml:"source"`
	Destination string            `yaml:"destination,omitempty"`
	StartedAt   time.Time         `yaml:"started_at"`
	Duration    time.Duration     `yaml:"duration"`
	FirstRun    bool              `yaml:"first_run"`
	Metrics     translate.Metrics `yaml:"metrics"`
	Uploaded    bool              `yaml:"uploaded"`
	Error       string            `yaml:"error,omitempty"`
}

// Result classifies the run.
func (r *Report) Result() string {
	switch {
	case r.Error != "":
		return ResultFailed
	case r.Uploaded:
		return ResultUploaded
	default:
		return ResultSkipped
	}
}

// Save writes the report as YAML, creating parent directories.
func (r *Report) Save(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
