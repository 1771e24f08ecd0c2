package analysis

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phantomqa/internal/models"
	"phantomqa/pkg/config"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/qaerr"
)

// createDiskSlice renders a uniform disk of radius 110 on a 256x256 zero
// background.
func createDiskSlice(position float64) *models.Slice {
	const size = 256
	m := geometry.Circular(geometry.Pt(128, 128), 110, geometry.Shape{Rows: size, Cols: size})
	px := make([]float64, size*size)
	for i, in := range m.Bits {
		if in {
			px[i] = 1000
		}
	}
	s := models.NewSlice(px, size, size, models.Spacing{Row: 1, Col: 1})
	s.Position = position
	return s
}

type stackLoader struct {
	stack models.Stack
	dir   string
}

func (l *stackLoader) LoadDir(dir string) (models.Stack, error) {
	l.dir = dir
	if l.stack == nil {
		return nil, qaerr.InvalidInput("empty")
	}
	return l.stack, nil
}

func newTestAnalyzer(cfg *config.Config) *Analyzer {
	return NewAnalyzer(&Params{InputDir: "series", NumCores: 2}, cfg, zerolog.Nop())
}

func TestParseTask(t *testing.T) {
	task, err := ParseTask(" Ghosting ")
	require.NoError(t, err)
	assert.Equal(t, TaskGhosting, task)

	_, err = ParseTask("relaxometry")
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)
}

func TestLoadSortsByPosition(t *testing.T) {
	loader := &stackLoader{stack: models.Stack{createDiskSlice(5), createDiskSlice(-5), createDiskSlice(0)}}
	a := newTestAnalyzer(nil)
	require.NoError(t, a.Load(loader))
	assert.Equal(t, "series", loader.dir)

	var positions []float64
	for _, s := range a.Stack() {
		positions = append(positions, s.Position)
	}
	assert.Equal(t, []float64{-5, 0, 5}, positions)

	assert.ErrorIs(t, newTestAnalyzer(nil).Load(&stackLoader{}), qaerr.ErrInvalidInput)
}

func TestRunUniformity(t *testing.T) {
	a := newTestAnalyzer(nil)
	a.SetStack(models.Stack{createDiskSlice(0)})

	report, err := a.Run(TaskUniformity)
	require.NoError(t, err)
	require.Len(t, report.Slices, 1)
	sr := report.Slices[0]
	require.False(t, sr.Failed(), sr.Error)
	assert.Equal(t, 100.0, sr.Uniformity.PIU)
	assert.Equal(t, geometry.Pt(133, 128), sr.Uniformity.LargeCentre)

	out, err := report.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "piu: 100")
	assert.Contains(t, string(out), "task: uniformity")
}

func TestRunUniformityPhantomFillsImage(t *testing.T) {
	const size = 256
	px := make([]float64, size*size)
	for i := range px {
		px[i] = 900 + float64(i%size)
	}
	a := newTestAnalyzer(nil)
	a.SetStack(models.Stack{models.NewSlice(px, size, size, models.Spacing{Row: 1, Col: 1})})

	report, err := a.Run(TaskUniformity)
	require.NoError(t, err)
	sr := report.Slices[0]
	assert.True(t, sr.Failed())
	assert.Equal(t, "InsufficientGeometryError", sr.ErrorKind)
	assert.Nil(t, sr.Uniformity)
}

func TestRunSliceIndexOutOfRange(t *testing.T) {
	a := newTestAnalyzer(nil)
	a.SetStack(models.Stack{createDiskSlice(0), createDiskSlice(1)})
	_, err := a.Run(TaskGhosting)
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)
}

func TestEachRecordsFailures(t *testing.T) {
	blank := models.NewSlice(make([]float64, 256*256), 256, 256, models.Spacing{Row: 1, Col: 1})
	blank.Position = 1
	blank.Filename = "blank.dcm"

	a := newTestAnalyzer(nil)
	a.SetStack(models.Stack{createDiskSlice(2), blank, createDiskSlice(0)})

	report, err := a.Each(TaskGhosting)
	require.NoError(t, err)
	require.Len(t, report.Slices, 3)
	assert.Equal(t, 1, report.Failures())

	for i, sr := range report.Slices {
		assert.Equal(t, i, sr.Index)
		assert.Equal(t, float64(i), sr.Position)
	}
	failed := report.Slices[1]
	assert.Equal(t, "blank.dcm", failed.File)
	assert.Equal(t, "DetectionError", failed.ErrorKind)
	assert.Nil(t, failed.Ghosting)

	for _, i := range []int{0, 2} {
		require.NotNil(t, report.Slices[i].Ghosting)
		assert.Equal(t, 0.0, report.Slices[i].Ghosting.PSG)
	}

	_, err = newTestAnalyzer(nil).Each(TaskGhosting)
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)
}

func TestOverlaysAndReportSaved(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Output.SaveOverlays = true
	a := NewAnalyzer(&Params{OutputDir: dir}, cfg, zerolog.Nop())
	a.SetStack(models.Stack{createDiskSlice(0)})

	report, err := a.Run(TaskGhosting)
	require.NoError(t, err)
	sr := report.Slices[0]
	require.False(t, sr.Failed(), sr.Error)
	assert.Equal(t, filepath.Join(dir, "ghosting_slice_000.png"), sr.Overlay)
	_, err = os.Stat(sr.Overlay)
	require.NoError(t, err)

	path := filepath.Join(dir, "reports", "ghosting.yaml")
	require.NoError(t, report.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "task: ghosting"))
}

// blobs renders two Gaussian blobs shifted by (dx, dy) in XY.
func blobs(dx, dy float64) *models.Slice {
	const size = 64
	g := func(x, y, cx, cy, sigma, amp float64) float64 {
		ddx, ddy := x-cx, y-cy
		return amp * math.Exp(-(ddx*ddx+ddy*ddy)/(2*sigma*sigma))
	}
	px := make([]float64, size*size)
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			x, y := float64(c)-dx, float64(r)-dy
			px[r*size+c] = g(x, y, 20, 24, 5, 1000) + g(x, y, 44, 40, 4, 600)
		}
	}
	return models.NewSlice(px, size, size, models.Spacing{Row: 1, Col: 1})
}

type fixedDetector struct{ set landmark.Set }

func (d fixedDetector) Detect(*models.Slice) (landmark.Result, error) {
	return landmark.Result{Landmarks: d.set}, nil
}

func TestRegister(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Registration.Motion = "translation"
	a := newTestAnalyzer(cfg)

	points := landmark.Set{Points: []geometry.Point{{20, 24}, {44, 40}}, Convention: geometry.XY}
	target := blobs(3, 2)
	report, err := a.Register(blobs(0, 0), target, points, nil)
	require.NoError(t, err)

	assert.Greater(t, report.Correlation, 0.99)
	assert.InDelta(t, 3, report.Translation[0], 0.1)
	assert.InDelta(t, 2, report.Translation[1], 0.1)
	assert.Equal(t, "XY", report.Convention)
	require.Len(t, report.Landmarks, 2)
	assert.InDelta(t, 23, report.Landmarks[0][0], 0.1)
	assert.InDelta(t, 26, report.Landmarks[0][1], 0.1)
	require.Len(t, report.Samples, 2)
	assert.Greater(t, report.Samples[0], 900.0)
	assert.Greater(t, report.Samples[0], report.Samples[1])

	// a detection next to the mapped point pulls it onto the exact position
	snap := fixedDetector{set: landmark.Set{Points: []geometry.Point{{26, 23}}, Convention: geometry.RowCol}}
	report, err = a.Register(blobs(0, 0), target, points, snap)
	require.NoError(t, err)
	require.Len(t, report.Snapped, 1)
	assert.Equal(t, geometry.Pt(23, 26), report.Landmarks[0])
}

func TestRegisterSavesOverlay(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Registration.Motion = "translation"
	cfg.Output.SaveOverlays = true
	a := NewAnalyzer(&Params{OutputDir: dir}, cfg, zerolog.Nop())

	points := landmark.Set{Points: []geometry.Point{{20, 24}}, Convention: geometry.XY}
	report, err := a.Register(blobs(0, 0), blobs(3, 2), points, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "registration.png"), report.Overlay)
	_, err = os.Stat(report.Overlay)
	assert.NoError(t, err)
}

func TestRegisterRejectsUnknownMotion(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Registration.Motion = "elastic"
	_, err := newTestAnalyzer(cfg).Register(blobs(0, 0), blobs(1, 1), landmark.Set{}, nil)
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)
}
