package analysis

import (
	"math"
	"path/filepath"

	"phantomqa/internal/logging"
	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/overlay"
	"phantomqa/pkg/registration"
	"phantomqa/pkg/roi"
)

// RegistrationReport is the alignment of a target slice to a template and
// the template landmarks carried over into the target.
type RegistrationReport struct {
	Correlation float64            `yaml:"correlation"`
	Iterations  int                `yaml:"iterations"`
	Transform   geometry.Transform `yaml:"transform"`
	RotationDeg float64            `yaml:"rotationDeg"`
	Translation geometry.Point     `yaml:"translation"`

	// Landmarks are the mapped points in the convention they were given in
	Landmarks  []geometry.Point `yaml:"landmarks"`
	Convention string           `yaml:"convention"`
	Snapped    []landmark.Match `yaml:"snapped,omitempty"`
	Samples    []float64        `yaml:"samples"`
	Overlay    string           `yaml:"overlay,omitempty"`
}

// Save writes the report as YAML.
func (r *RegistrationReport) Save(path string) error {
	return saveYAML(r, path)
}

// Register aligns target to template on their 8-bit renditions, maps points
// from the template into the target and averages a small square of target
// pixels around each mapped point. When snap is non-nil its landmarks,
// detected in the target, replace mapped points lying within
// detection.snapDistancePx of them.
func (a *Analyzer) Register(template, target *models.Slice, points landmark.Set, snap landmark.Detector) (*RegistrationReport, error) {
	log := logging.Component(a.log, "registration")
	opts, err := registrationOptions(a.cfg, log)
	if err != nil {
		return nil, err
	}
	res, err := registration.Fit(registration.Normalize8Bit(template), registration.Normalize8Bit(target), opts)
	if err != nil {
		return nil, err
	}

	mapped := registration.MapLandmarks(points, res.Transform)
	report := &RegistrationReport{
		Correlation: res.Correlation,
		Iterations:  res.Iterations,
		Transform:   res.Transform,
		RotationDeg: res.Transform.Rotation() * 180 / math.Pi,
		Translation: res.Transform.Translation(),
		Convention:  mapped.Convention.String(),
	}

	if snap != nil && a.cfg.Detection.SnapDistancePx > 0 {
		detected, err := snap.Detect(target)
		if err != nil {
			return nil, err
		}
		mapped, report.Snapped = landmark.Snap(mapped, detected.Landmarks, a.cfg.Detection.SnapDistancePx)
	}
	report.Landmarks = mapped.Points

	if report.Samples, err = roi.SamplePoints(target, mapped, a.cfg.Registration.SampleSize); err != nil {
		return nil, err
	}

	log.Info().
		Float64("correlation", res.Correlation).
		Int("iterations", res.Iterations).
		Int("landmarks", mapped.Len()).
		Msg("target registered")

	if a.cfg.Output.SaveOverlays {
		warped, err := registration.Warp(template, res.Transform, target.Rows, target.Cols)
		if err != nil {
			return nil, err
		}
		cv, err := overlay.Registration(target, warped, mapped, a.cfg.Detection.BodyThresholdFraction)
		if err != nil {
			return nil, err
		}
		ext := a.cfg.Output.OverlayFormat
		if ext == "jpeg" {
			ext = "jpg"
		}
		path := filepath.Join(a.outputDir(), "registration."+ext)
		if err := overlay.Save(cv.Scaled(2), path, a.cfg.Output.OverlayFormat); err != nil {
			return nil, err
		}
		report.Overlay = path
	}
	return report, nil
}
