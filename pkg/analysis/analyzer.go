// Package analysis runs the phantom QA tasks over a loaded series. It picks
// the slice a task needs, maps configuration onto the measurement packages,
// fans per-slice work out over goroutines and collects the outcomes into a
// report. A failed measurement is recorded with its error kind; no default
// value is ever substituted for it.
package analysis

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"phantomqa/internal/logging"
	"phantomqa/internal/models"
	"phantomqa/pkg/config"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/overlay"
	"phantomqa/pkg/qaerr"
	"phantomqa/pkg/roi"
	"phantomqa/pkg/slicewidth"
)

// Task names a single-slice measurement.
type Task string

const (
	TaskUniformity Task = "uniformity"
	TaskGhosting   Task = "ghosting"
	TaskSliceWidth Task = "slicewidth"
)

// Tasks lists the single-slice measurements in report order.
var Tasks = []Task{TaskUniformity, TaskGhosting, TaskSliceWidth}

// ParseTask accepts a task name in any case.
func ParseTask(name string) (Task, error) {
	t := Task(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Tasks {
		if t == known {
			return t, nil
		}
	}
	return "", qaerr.InvalidInput("unknown task %q", name)
}

// Params holds the run parameters that do not come from the config file.
type Params struct {
	// InputDir is the series directory handed to the Loader
	InputDir string

	// OutputDir receives overlays; empty falls back to the config
	OutputDir string

	// NumCores bounds concurrent slices; zero falls back to the config
	NumCores int
}

// Loader reads a series directory.
type Loader interface {
	LoadDir(dir string) (models.Stack, error)
}

// Analyzer runs tasks over one series.
type Analyzer struct {
	params *Params
	cfg    *config.Config
	log    zerolog.Logger
	stack  models.Stack
}

// NewAnalyzer creates an analyzer. A nil cfg uses the defaults.
func NewAnalyzer(params *Params, cfg *config.Config, log zerolog.Logger) *Analyzer {
	if params == nil {
		params = &Params{}
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Analyzer{params: params, cfg: cfg, log: log}
}

// Load reads InputDir with l and keeps the stack sorted by position.
func (a *Analyzer) Load(l Loader) error {
	stack, err := l.LoadDir(a.params.InputDir)
	if err != nil {
		return fmt.Errorf("failed to load series: %w", err)
	}
	a.SetStack(stack)
	return nil
}

// SetStack replaces the series, sorting it by position.
func (a *Analyzer) SetStack(stack models.Stack) {
	stack.SortByPosition()
	a.stack = stack
}

// Stack returns the loaded series.
func (a *Analyzer) Stack() models.Stack { return a.stack }

func (a *Analyzer) numCores() int {
	n := a.params.NumCores
	if n <= 0 {
		n = a.cfg.Processing.NumCores
	}
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return n
}

func (a *Analyzer) outputDir() string {
	if a.params.OutputDir != "" {
		return a.params.OutputDir
	}
	return a.cfg.Output.Dir
}

// Run measures task on the configured slice of the series.
func (a *Analyzer) Run(task Task) (*Report, error) {
	idx := a.cfg.Processing.SliceIndex
	if len(a.stack) == 1 {
		idx = 0
	}
	s, err := a.stack.At(idx)
	if err != nil {
		return nil, err
	}
	report := a.newReport(task)
	report.Slices = []SliceReport{a.measure(task, idx, s)}
	return report, nil
}

// Each measures task on every slice of the series concurrently, at most
// NumCores at a time. Slices are reported in stack order.
func (a *Analyzer) Each(task Task) (*Report, error) {
	if len(a.stack) == 0 {
		return nil, qaerr.InvalidInput("no slices loaded")
	}

	type sliceResult struct {
		idx    int
		report SliceReport
	}
	resultChan := make(chan sliceResult)
	sem := make(chan struct{}, a.numCores())

	for i, s := range a.stack {
		go func(idx int, s *models.Slice) {
			sem <- struct{}{}
			defer func() { <-sem }()
			resultChan <- sliceResult{idx: idx, report: a.measure(task, idx, s)}
		}(i, s)
	}

	report := a.newReport(task)
	report.Slices = make([]SliceReport, len(a.stack))
	for completed := 0; completed < len(a.stack); completed++ {
		res := <-resultChan
		report.Slices[res.idx] = res.report
		a.log.Debug().
			Int("slice", res.idx).
			Int("completed", completed+1).
			Int("total", len(a.stack)).
			Msg("slice analysed")
	}
	return report, nil
}

func (a *Analyzer) newReport(task Task) *Report {
	r := &Report{Task: task}
	if len(a.stack) > 0 {
		r.Series = a.stack[0].Metadata.SeriesDescription
	}
	return r
}

// measure runs one task on one slice and never fails: errors end up in the
// slice report.
func (a *Analyzer) measure(task Task, idx int, s *models.Slice) SliceReport {
	sr := SliceReport{Index: idx, File: s.Filename, Position: s.Position}
	log := logging.Component(a.log, string(task)).With().Int("slice", idx).Logger()

	var (
		cv  *overlay.Canvas
		err error
	)
	switch task {
	case TaskUniformity:
		var body landmark.Body
		if body, err = a.detectBody(s, log); err == nil {
			var res roi.UniformityResult
			if res, err = roi.Uniformity(s, body, uniformityOptions(a.cfg, log)); err == nil {
				sr.Uniformity = &res
				cv, err = a.render(func() (*overlay.Canvas, error) { return overlay.Uniformity(s, res) })
			}
		}
	case TaskGhosting:
		var body landmark.Body
		if body, err = a.detectBody(s, log); err == nil {
			var res roi.GhostingResult
			if res, err = roi.Ghosting(s, body, ghostingOptions(a.cfg, log)); err == nil {
				sr.Ghosting = &res
				cv, err = a.render(func() (*overlay.Canvas, error) { return overlay.Ghosting(s, res) })
			}
		}
	case TaskSliceWidth:
		var res slicewidth.Result
		if res, err = slicewidth.Measure(s, sliceWidthOptions(a.cfg, log)); err == nil {
			sr.SliceWidth = &res
			cv, err = a.render(func() (*overlay.Canvas, error) { return overlay.SliceWidth(s, res) })
		}
	default:
		err = qaerr.InvalidInput("unknown task %q", task)
	}

	if err == nil && cv != nil {
		sr.Overlay, err = a.saveOverlay(task, idx, cv)
	}
	if err != nil {
		sr.Error = err.Error()
		sr.ErrorKind = qaerr.Kind(err)
		log.Warn().Err(err).Str("kind", sr.ErrorKind).Msg("measurement failed")
	}
	return sr
}

func (a *Analyzer) detectBody(s *models.Slice, log zerolog.Logger) (landmark.Body, error) {
	return bodyDetector(a.cfg, log).DetectBody(s)
}

// render builds an overlay only when overlays are enabled.
func (a *Analyzer) render(build func() (*overlay.Canvas, error)) (*overlay.Canvas, error) {
	if !a.cfg.Output.SaveOverlays {
		return nil, nil
	}
	return build()
}

func (a *Analyzer) saveOverlay(task Task, idx int, cv *overlay.Canvas) (string, error) {
	ext := a.cfg.Output.OverlayFormat
	if ext == "jpeg" {
		ext = "jpg"
	}
	path := filepath.Join(a.outputDir(), fmt.Sprintf("%s_slice_%03d.%s", task, idx, ext))
	if err := overlay.Save(cv.Scaled(2), path, a.cfg.Output.OverlayFormat); err != nil {
		return "", fmt.Errorf("failed to save overlay: %w", err)
	}
	return path, nil
}
