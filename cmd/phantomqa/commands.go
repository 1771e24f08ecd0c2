package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"phantomqa/internal/logging"
	"phantomqa/pkg/analysis"
	"phantomqa/pkg/config"
	"phantomqa/pkg/dicomio"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/qaerr"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	outputDir  string
	numCores   int
	overlays   bool
}

// env is the configuration and logger resolved from the flags.
type env struct {
	cfg *config.Config
	log zerolog.Logger
}

func (g *globalFlags) resolve(cmd *cobra.Command) (*env, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}
	if g.outputDir != "" {
		cfg.Output.Dir = g.outputDir
	}
	if g.numCores > 0 {
		cfg.Processing.NumCores = g.numCores
	}
	if cmd.Flags().Changed("overlays") {
		cfg.Output.SaveOverlays = g.overlays
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log}, nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "phantomqa",
		Short: "phantomqa measures MRI image quality on ACR phantom series",
		Long: `phantomqa runs the ACR phantom quality checks on a DICOM series:
integral uniformity, percent signal ghosting, slice width with in-plane
geometric linearity, and landmark transfer between registered slices.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "phantomqa.yaml", "configuration file (defaults are used if it does not exist)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "", "log format (console or json)")
	pf.StringVarP(&g.outputDir, "output", "o", "", "directory for reports and overlays")
	pf.IntVar(&g.numCores, "cores", 0, "slices analysed concurrently")
	pf.BoolVar(&g.overlays, "overlays", false, "save diagnostic overlay images")

	for _, task := range analysis.Tasks {
		rootCmd.AddCommand(newTaskCmd(g, task))
	}
	rootCmd.AddCommand(newRegisterCmd(g))
	rootCmd.AddCommand(newConfigCmd(g))
	return rootCmd
}

var taskDescriptions = map[analysis.Task]string{
	analysis.TaskUniformity: "Percent integral uniformity of the large phantom ROI",
	analysis.TaskGhosting:   "Percent signal ghosting from the four background ellipses",
	analysis.TaskSliceWidth: "Slice width from the ramp insert, with rod linearity and distortion",
}

func newTaskCmd(g *globalFlags, task analysis.Task) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   string(task) + " <series_directory>",
		Short: taskDescriptions[task],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.resolve(cmd)
			if err != nil {
				return err
			}
			a := analysis.NewAnalyzer(&analysis.Params{InputDir: args[0]}, e.cfg, e.log)
			if err := a.Load(dicomio.NewLoader(logging.Component(e.log, "dicomio"))); err != nil {
				return err
			}

			start := time.Now()
			var report *analysis.Report
			if all {
				report, err = a.Each(task)
			} else {
				report, err = a.Run(task)
			}
			if err != nil {
				return err
			}

			path := filepath.Join(e.cfg.Output.Dir, string(task)+"_report.yaml")
			if err := report.Save(path); err != nil {
				return err
			}
			printReport(report)
			fmt.Printf("\nReport saved to %s (%.2f s)\n", path, time.Since(start).Seconds())

			if n := report.Failures(); n == len(report.Slices) {
				return fmt.Errorf("%s failed on every slice", task)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "measure every slice of the series instead of the configured one")
	return cmd
}

func printReport(r *analysis.Report) {
	fmt.Printf("%s", r.Task)
	if r.Series != "" {
		fmt.Printf(" - %s", r.Series)
	}
	fmt.Println()
	for _, s := range r.Slices {
		fmt.Printf("  slice %3d (%.1f mm): ", s.Index, s.Position)
		switch {
		case s.Failed():
			fmt.Printf("%s: %s\n", s.ErrorKind, s.Error)
		case s.Uniformity != nil:
			fmt.Printf("PIU %.2f%% (max %.1f, min %.1f)\n", s.Uniformity.PIU, s.Uniformity.Max, s.Uniformity.Min)
		case s.Ghosting != nil:
			fmt.Printf("PSG %.3f%%\n", s.Ghosting.PSG)
		case s.SliceWidth != nil:
			w := s.SliceWidth
			fmt.Printf("width %.2f mm (top %.2f, bottom %.2f), AAPM %.2f mm, tilt %.2f deg, linearity %.1f/%.1f mm\n",
				w.Combined.Default, w.Top.Default, w.Bottom.Default, w.Combined.AAPMTilt,
				w.PhantomTiltDeg, w.HorizontalLinearity, w.VerticalLinearity)
		}
	}
}

// pointsFile is the landmark file accepted by the register command.
type pointsFile struct {
	Convention string       `yaml:"convention"`
	Points     [][2]float64 `yaml:"points"`
}

func loadPoints(path string) (landmark.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return landmark.Set{}, fmt.Errorf("error reading landmarks: %w", err)
	}
	var pf pointsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return landmark.Set{}, fmt.Errorf("error parsing landmarks: %w", err)
	}
	conv := geometry.XY
	switch pf.Convention {
	case "", "XY", "xy":
	case "RowCol", "rowcol":
		conv = geometry.RowCol
	default:
		return landmark.Set{}, qaerr.InvalidInput("unknown point convention %q", pf.Convention)
	}
	set := landmark.Set{Convention: conv}
	for _, p := range pf.Points {
		set.Points = append(set.Points, geometry.Point(p))
	}
	return set, nil
}

func newRegisterCmd(g *globalFlags) *cobra.Command {
	var (
		pointsPath string
		snapRods   bool
	)

	cmd := &cobra.Command{
		Use:   "register <template.dcm> <target.dcm>",
		Short: "Align a target slice to a template and carry template landmarks over",
		Long: `Register a target slice to a template with ECC alignment, map the
template landmarks into the target and sample the target around each one.

Landmarks are read from a YAML file:

  convention: XY
  points:
    - [120.5, 80]
    - [136, 80]`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.resolve(cmd)
			if err != nil {
				return err
			}
			points, err := loadPoints(pointsPath)
			if err != nil {
				return err
			}
			loader := dicomio.NewLoader(logging.Component(e.log, "dicomio"))
			template, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			target, err := loader.Load(args[1])
			if err != nil {
				return err
			}

			var snap landmark.Detector
			if snapRods {
				rods := landmark.NewRodDetector()
				rods.Count, rods.Rows = e.cfg.Phantom.RodCount, e.cfg.Phantom.RodRows
				rods.MaxLevels = e.cfg.Detection.MaxLevels
				rods.Log = logging.Component(e.log, "landmark")
				snap = rods
			}

			a := analysis.NewAnalyzer(&analysis.Params{}, e.cfg, e.log)
			report, err := a.Register(template, target, points, snap)
			if err != nil {
				return err
			}
			path := filepath.Join(e.cfg.Output.Dir, "registration_report.yaml")
			if err := report.Save(path); err != nil {
				return err
			}

			fmt.Printf("correlation %.4f after %d iterations, rotation %.3f deg, shift (%.2f, %.2f) px\n",
				report.Correlation, report.Iterations, report.RotationDeg, report.Translation[0], report.Translation[1])
			for i, p := range report.Landmarks {
				fmt.Printf("  %2d: (%.1f, %.1f) mean %.1f\n", i, p[0], p[1], report.Samples[i])
			}
			fmt.Printf("\nReport saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&pointsPath, "points", "", "YAML file with template landmarks")
	cmd.Flags().BoolVar(&snapRods, "snap-rods", false, "snap mapped landmarks onto rods detected in the target")
	_ = cmd.MarkFlagRequired("points")
	return cmd
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Printf("Default configuration written to %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.resolve(cmd)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(e.cfg)
			if err != nil {
				return err
			}
			fmt.Printf("# config file: %s\n%s", g.configPath, data)
			return nil
		},
	})
	return cmd
}
