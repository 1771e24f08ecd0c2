package analysis

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"phantomqa/pkg/roi"
	"phantomqa/pkg/slicewidth"
)

// SliceReport is the outcome of one task on one slice. Exactly one of the
// result fields or Error is set.
type SliceReport struct {
	Index    int     `yaml:"index"`
	File     string  `yaml:"file,omitempty"`
	Position float64 `yaml:"position"`

	Uniformity *roi.UniformityResult `yaml:"uniformity,omitempty"`
	Ghosting   *roi.GhostingResult   `yaml:"ghosting,omitempty"`
	SliceWidth *slicewidth.Result    `yaml:"sliceWidth,omitempty"`

	Overlay   string `yaml:"overlay,omitempty"`
	Error     string `yaml:"error,omitempty"`
	ErrorKind string `yaml:"errorKind,omitempty"`
}

// Failed reports whether the measurement failed.
func (r SliceReport) Failed() bool { return r.Error != "" }

// Report collects the slice outcomes of one task.
type Report struct {
	Task   Task          `yaml:"task"`
	Series string        `yaml:"series,omitempty"`
	Slices []SliceReport `yaml:"slices"`
}

// Failures counts the failed slices.
func (r *Report) Failures() int {
	n := 0
	for _, s := range r.Slices {
		if s.Failed() {
			n++
		}
	}
	return n
}

// YAML marshals the report.
func (r *Report) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// Save writes the report as YAML, creating parent directories.
func (r *Report) Save(path string) error {
	return saveYAML(r, path)
}

func saveYAML(v interface{}, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating report directory: %w", err)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("error marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing report: %w", err)
	}
	return nil
}
