// Package dicomio decodes DICOM files into models.Slice values. It reads
// the attributes the QA tasks need once, up front, so nothing downstream
// looks up tags by name.
package dicomio

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"phantomqa/internal/models"
	"phantomqa/pkg/qaerr"
)

// Loader reads single files or whole series directories.
type Loader struct {
	Log zerolog.Logger
}

// NewLoader returns a loader that logs to log.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{Log: log}
}

// Load parses one DICOM file.
func (l *Loader) Load(path string) (*models.Slice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, qaerr.InvalidInput("parse %s: %v", path, err)
	}
	s, err := FromDataset(ds)
	if err != nil {
		return nil, err
	}
	s.Filename = path
	return s, nil
}

// LoadDir parses every regular file in dir that decodes as DICOM and
// returns the slices ordered by position. Files that do not parse are
// skipped; a directory without any DICOM file is an error.
func (l *Loader) LoadDir(dir string) (models.Stack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, qaerr.InvalidInput("read %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var stack models.Stack
	for _, name := range names {
		s, err := l.Load(filepath.Join(dir, name))
		if err != nil {
			l.Log.Debug().Err(err).Str("file", name).Msg("skipping file")
			continue
		}
		stack = append(stack, s)
	}
	if len(stack) == 0 {
		return nil, qaerr.InvalidInput("no DICOM slices in %s", dir)
	}
	stack.SortByPosition()

	l.Log.Info().
		Int("slices", len(stack)).
		Int("rows", stack[0].Rows).
		Int("cols", stack[0].Cols).
		Str("series", stack[0].Metadata.SeriesDescription).
		Msg("series loaded")
	return stack, nil
}

// FromDataset converts the first frame of ds, with rescale slope and
// intercept applied, and its geometry and acquisition attributes.
func FromDataset(ds dicom.Dataset) (*models.Slice, error) {
	e, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, qaerr.InvalidInput("no pixel data")
	}
	info := dicom.MustGetPixelDataInfo(e.Value)
	if len(info.Frames) == 0 || info.Frames[0] == nil {
		return nil, qaerr.InvalidInput("pixel data holds no frames")
	}
	f := info.Frames[0]
	if f.Encapsulated {
		return nil, qaerr.InvalidInput("encapsulated (compressed) pixel data is not supported")
	}
	nf := f.NativeData
	if nf.SamplesPerPixel() != 1 {
		return nil, qaerr.InvalidInput("expected grayscale pixels, got %d samples per pixel", nf.SamplesPerPixel())
	}
	pixels, err := nativePixels(nf)
	if err != nil {
		return nil, err
	}

	slope, intercept := 1.0, 0.0
	if v, ok := floats(ds, tag.RescaleSlope); ok && len(v) > 0 && v[0] != 0 {
		slope = v[0]
	}
	if v, ok := floats(ds, tag.RescaleIntercept); ok && len(v) > 0 {
		intercept = v[0]
	}
	if slope != 1 || intercept != 0 {
		for i, p := range pixels {
			pixels[i] = p*slope + intercept
		}
	}

	spacing, ok := floats(ds, tag.PixelSpacing)
	if !ok || len(spacing) != 2 {
		return nil, qaerr.InvalidInput("missing or malformed PixelSpacing")
	}
	s := models.NewSlice(pixels, nf.Rows(), nf.Cols(), models.Spacing{Row: spacing[0], Col: spacing[1]})
	if v, ok := floats(ds, tag.SliceThickness); ok && len(v) > 0 {
		s.Thickness = v[0]
	}
	s.Position = position(ds)

	s.Metadata.SeriesDescription = str(ds, tag.SeriesDescription)
	s.Metadata.Manufacturer = str(ds, tag.Manufacturer)
	s.Metadata.SeriesNumber = integer(ds, tag.SeriesNumber)
	s.Metadata.InstanceNumber = integer(ds, tag.InstanceNumber)
	s.Metadata.EchoTime = first(ds, tag.EchoTime)
	s.Metadata.RepetitionTime = first(ds, tag.RepetitionTime)
	s.Metadata.InversionTime = first(ds, tag.InversionTime)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// position prefers the z of ImagePositionPatient, then SliceLocation, then
// the instance number.
func position(ds dicom.Dataset) float64 {
	if v, ok := floats(ds, tag.ImagePositionPatient); ok && len(v) == 3 {
		return v[2]
	}
	if v, ok := floats(ds, tag.SliceLocation); ok && len(v) > 0 {
		return v[0]
	}
	return float64(integer(ds, tag.InstanceNumber))
}

func nativePixels(nf frame.INativeFrame) ([]float64, error) {
	switch f := nf.(type) {
	case *frame.NativeFrame[uint8]:
		return convert(f.RawData), nil
	case *frame.NativeFrame[uint16]:
		return convert(f.RawData), nil
	case *frame.NativeFrame[uint32]:
		return convert(f.RawData), nil
	case *frame.NativeFrame[int8]:
		return convert(f.RawData), nil
	case *frame.NativeFrame[int16]:
		return convert(f.RawData), nil
	case *frame.NativeFrame[int32]:
		return convert(f.RawData), nil
	default:
		return nil, qaerr.InvalidInput("unsupported native pixel type %T", nf)
	}
}

func convert[T uint8 | uint16 | uint32 | int8 | int16 | int32](raw []T) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out
}

// strs returns the string values of t; DS and IS attributes are stored as
// strings.
func strs(ds dicom.Dataset, t tag.Tag) ([]string, bool) {
	e, err := ds.FindElementByTag(t)
	if err != nil || e.Value == nil || e.Value.ValueType() != dicom.Strings {
		return nil, false
	}
	return dicom.MustGetStrings(e.Value), true
}

func str(ds dicom.Dataset, t tag.Tag) string {
	v, ok := strs(ds, t)
	if !ok || len(v) == 0 {
		return ""
	}
	return strings.TrimSpace(v[0])
}

func floats(ds dicom.Dataset, t tag.Tag) ([]float64, bool) {
	v, ok := strs(ds, t)
	if !ok {
		return nil, false
	}
	return ParseDecimals(v)
}

func first(ds dicom.Dataset, t tag.Tag) float64 {
	v, ok := floats(ds, t)
	if !ok || len(v) == 0 {
		return 0
	}
	return v[0]
}

func integer(ds dicom.Dataset, t tag.Tag) int {
	n, err := strconv.Atoi(str(ds, t))
	if err != nil {
		return 0
	}
	return n
}

// ParseDecimals parses DS values, splitting any backslash-joined
// multi-values the parser left in one string.
func ParseDecimals(values []string) ([]float64, bool) {
	var out []float64
	for _, v := range values {
		for _, part := range strings.Split(v, `\`) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			f, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return nil, false
			}
			out = append(out, f)
		}
	}
	return out, len(out) > 0
}
