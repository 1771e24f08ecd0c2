package analysis

import (
	"github.com/rs/zerolog"

	"phantomqa/pkg/config"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/profile"
	"phantomqa/pkg/registration"
	"phantomqa/pkg/roi"
	"phantomqa/pkg/slicewidth"
)

// The helpers below turn configuration sections into the option structs of
// the measurement packages. Each measurement gets its own component logger.

func rodDetector(cfg *config.Config, log zerolog.Logger) *landmark.RodDetector {
	return &landmark.RodDetector{
		Count:     cfg.Phantom.RodCount,
		Rows:      cfg.Phantom.RodRows,
		MaxLevels: cfg.Detection.MaxLevels,
		Log:       log,
	}
}

func bodyDetector(cfg *config.Config, log zerolog.Logger) *landmark.BodyDetector {
	return &landmark.BodyDetector{
		ThresholdFraction: cfg.Detection.BodyThresholdFraction,
		MinArea:           cfg.Detection.BodyMinArea,
		Log:               log,
	}
}

func uniformityOptions(cfg *config.Config, log zerolog.Logger) roi.UniformityOptions {
	radius := cfg.Uniformity.LargeRadiusMM
	if radius <= 0 {
		radius = roi.LargeROIRadiusMM(cfg.Phantom.Size == config.PhantomMedium)
	}
	return roi.UniformityOptions{
		LargeRadiusMM: radius,
		SmallAreaMM2:  cfg.Uniformity.SmallAreaMM2,
		VoidOffsetMM:  cfg.Uniformity.VoidOffsetMM,
		Log:           log,
	}
}

func ghostingOptions(cfg *config.Config, log zerolog.Logger) roi.GhostingOptions {
	return roi.GhostingOptions{
		LargeRadiusMM:  cfg.Ghosting.LargeRadiusMM,
		VoidOffsetMM:   cfg.Ghosting.VoidOffsetMM,
		EllipseAreaMM2: cfg.Ghosting.EllipseAreaMM2,
		TolerancePx:    cfg.Ghosting.TolerancePx,
		Log:            log,
	}
}

func sliceWidthOptions(cfg *config.Config, log zerolog.Logger) slicewidth.Options {
	lookup := profile.Lookup{}
	for thickness, shape := range cfg.SliceWidth.Ramps {
		lookup[thickness] = profile.RampPlateau{Ramp: shape.Ramp, Plateau: shape.Plateau}
	}
	return slicewidth.Options{
		Rods:                rodDetector(cfg, log),
		BandHalfWidth:       cfg.SliceWidth.BandHalfWidth,
		SampleSpacing:       cfg.SliceWidth.SampleSpacing,
		BaselinePadding:     cfg.SliceWidth.BaselinePadding,
		RampAngleDeg:        cfg.SliceWidth.RampAngleDeg,
		NominalSeparationMM: cfg.Phantom.RodSeparationMM,
		Fit: profile.FitOptions{
			MaxPasses: cfg.SliceWidth.MaxPasses,
			Lookup:    lookup,
			Log:       log,
		},
		Log: log,
	}
}

func registrationOptions(cfg *config.Config, log zerolog.Logger) (registration.Options, error) {
	motion, err := registration.ParseMotion(cfg.Registration.Motion)
	if err != nil {
		return registration.Options{}, err
	}
	return registration.Options{
		Motion:        motion,
		MaxIterations: cfg.Registration.MaxIterations,
		Epsilon:       cfg.Registration.Epsilon,
		GaussianSize:  cfg.Registration.GaussianSize,
		Log:           log,
	}, nil
}
