// Package registration aligns a phantom slice to a reference template by
// maximising the enhanced correlation coefficient (ECC) between them, and
// maps template landmarks into the aligned image.
package registration

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/qaerr"
)

// Motion selects the family of transforms searched.
type Motion int

const (
	// Translation searches (tx, ty).
	Translation Motion = iota
	// Euclidean searches a rotation and a translation.
	Euclidean
	// Affine searches the full 2x3 matrix.
	Affine
)

func (m Motion) String() string {
	switch m {
	case Translation:
		return "translation"
	case Euclidean:
		return "euclidean"
	case Affine:
		return "affine"
	default:
		return fmt.Sprintf("Motion(%d)", int(m))
	}
}

// ParseMotion converts a configuration name into a Motion.
func ParseMotion(name string) (Motion, error) {
	switch name {
	case "translation":
		return Translation, nil
	case "euclidean", "":
		return Euclidean, nil
	case "affine":
		return Affine, nil
	}
	return 0, qaerr.InvalidInput("unknown motion model %q", name)
}

func (m Motion) params() int {
	switch m {
	case Translation:
		return 2
	case Affine:
		return 6
	default:
		return 3
	}
}

// Options controls the alignment.
type Options struct {
	Motion        Motion
	MaxIterations int
	Epsilon       float64
	// GaussianSize is the odd kernel size of the pre-smoothing; below 3 disables it
	GaussianSize int
	// Initial seeds the search; nil starts from the identity
	Initial *geometry.Transform
	Log     zerolog.Logger
}

// DefaultOptions returns a Euclidean search with 500 iterations, a 1e-10
// correlation tolerance and 5x5 smoothing.
func DefaultOptions() Options {
	return Options{
		Motion:        Euclidean,
		MaxIterations: 500,
		Epsilon:       1e-10,
		GaussianSize:  5,
		Log:           zerolog.Nop(),
	}
}

// Result is a converged alignment.
type Result struct {
	// Correlation is the final ECC value in (0, 1]
	Correlation float64

	// Transform maps template XY coordinates to target XY coordinates
	Transform geometry.Transform

	Iterations int
}

// warpParams holds the search parameters of one motion model.
type warpParams struct {
	motion Motion
	p      []float64
}

func newWarpParams(m Motion, t geometry.Transform) warpParams {
	switch m {
	case Translation:
		return warpParams{m, []float64{t[0][2], t[1][2]}}
	case Affine:
		return warpParams{m, []float64{t[0][0], t[1][0], t[0][1], t[1][1], t[0][2], t[1][2]}}
	default:
		return warpParams{m, []float64{t.Rotation(), t[0][2], t[1][2]}}
	}
}

func (w warpParams) transform() geometry.Transform {
	switch w.motion {
	case Translation:
		return geometry.Transform{{1, 0, w.p[0]}, {0, 1, w.p[1]}}
	case Affine:
		return geometry.Transform{{w.p[0], w.p[2], w.p[4]}, {w.p[1], w.p[3], w.p[5]}}
	default:
		return geometry.Euclidean(w.p[0], w.p[1], w.p[2])
	}
}

// jacobian fills row with the derivative of the warped intensity with
// respect to each parameter at template position (x, y).
func (w warpParams) jacobian(row []float64, x, y, gx, gy float64) {
	switch w.motion {
	case Translation:
		row[0], row[1] = gx, gy
	case Affine:
		row[0], row[1], row[2], row[3], row[4], row[5] = gx*x, gy*x, gx*y, gy*y, gx, gy
	default:
		s, c := math.Sincos(w.p[0])
		row[0] = gx*(-x*s-y*c) + gy*(x*c-y*s)
		row[1], row[2] = gx, gy
	}
}

// Fit finds the transform that best aligns target to template. Both images
// must share a shape. The search stops once the correlation changes by less
// than Epsilon between iterations; running out of iterations first, a
// non-positive correlation or a degenerate update is a RegistrationError.
func Fit(template, target *models.Slice, opts Options) (Result, error) {
	if err := template.Validate(); err != nil {
		return Result{}, err
	}
	if err := target.Validate(); err != nil {
		return Result{}, err
	}
	if template.Rows != target.Rows || template.Cols != target.Cols {
		return Result{}, qaerr.InvalidInput("template is %dx%d but target is %dx%d",
			template.Rows, template.Cols, target.Rows, target.Cols)
	}
	if opts.MaxIterations <= 0 {
		return Result{}, qaerr.InvalidInput("iteration budget must be positive, got %d", opts.MaxIterations)
	}

	tmpl := blur(gridOf(template), opts.GaussianSize)
	img := blur(gridOf(target), opts.GaussianSize)
	gradX, gradY := gradients(img)

	init := geometry.Identity()
	if opts.Initial != nil {
		init = *opts.Initial
	}
	warp := newWarpParams(opts.Motion, init)

	n := tmpl.rows * tmpl.cols
	np := opts.Motion.params()
	jac := make([]float64, n*np)
	valid := make([]bool, n)
	warped := make([]float64, n)
	tzm := make([]float64, n)
	izm := make([]float64, n)

	rho, lastRho := -1.0, -2.0
	iter := 0
	for ; iter < opts.MaxIterations && math.Abs(rho-lastRho) >= opts.Epsilon; iter++ {
		t := warp.transform()

		count := 0
		var tSum, iSum float64
		for r := 0; r < tmpl.rows; r++ {
			for c := 0; c < tmpl.cols; c++ {
				idx := r*tmpl.cols + c
				row := jac[idx*np : (idx+1)*np]
				p := t.ApplyXY(geometry.Point{float64(c), float64(r)})
				v, ok := img.sample(p)
				valid[idx] = ok
				if !ok {
					for k := range row {
						row[k] = 0
					}
					continue
				}
				gx, _ := gradX.sample(p)
				gy, _ := gradY.sample(p)
				warp.jacobian(row, float64(c), float64(r), gx, gy)
				warped[idx] = v
				tSum += tmpl.px[idx]
				iSum += v
				count++
			}
		}
		if count == 0 {
			return Result{}, qaerr.Registration("images do not overlap after %d iterations", iter)
		}
		tMean, iMean := tSum/float64(count), iSum/float64(count)

		var tNorm2, iNorm2, corr float64
		for idx := range valid {
			if !valid[idx] {
				tzm[idx], izm[idx] = 0, 0
				continue
			}
			tzm[idx] = tmpl.px[idx] - tMean
			izm[idx] = warped[idx] - iMean
			tNorm2 += tzm[idx] * tzm[idx]
			iNorm2 += izm[idx] * izm[idx]
			corr += tzm[idx] * izm[idx]
		}

		lastRho = rho
		rho = corr / math.Sqrt(tNorm2*iNorm2)
		if math.IsNaN(rho) || math.IsInf(rho, 0) {
			return Result{}, qaerr.Registration("correlation is undefined (flat image?)")
		}

		h := make([]float64, np*np)
		iProj := make([]float64, np)
		tProj := make([]float64, np)
		for idx := range valid {
			if !valid[idx] {
				continue
			}
			row := jac[idx*np : (idx+1)*np]
			for a := 0; a < np; a++ {
				iProj[a] += row[a] * izm[idx]
				tProj[a] += row[a] * tzm[idx]
				for b := a; b < np; b++ {
					h[a*np+b] += row[a] * row[b]
				}
			}
		}
		for a := 0; a < np; a++ {
			for b := 0; b < a; b++ {
				h[a*np+b] = h[b*np+a]
			}
		}
		hessian := mat.NewDense(np, np, h)
		var hInv mat.Dense
		if err := hInv.Inverse(hessian); err != nil {
			return Result{}, qaerr.Registration("singular Hessian at iteration %d: %v", iter, err)
		}

		iProjVec := mat.NewVecDense(np, iProj)
		tProjVec := mat.NewVecDense(np, tProj)
		var iProjH mat.VecDense
		iProjH.MulVec(&hInv, iProjVec)

		lambdaN := iNorm2 - mat.Dot(iProjVec, &iProjH)
		lambdaD := corr - mat.Dot(tProjVec, &iProjH)
		if lambdaD <= 0 {
			return Result{}, qaerr.Registration(
				"update would minimise the correlation at iteration %d; images may be uncorrelated or non-overlapping", iter)
		}
		lambda := lambdaN / lambdaD

		errProj := make([]float64, np)
		for idx := range valid {
			if !valid[idx] {
				continue
			}
			e := lambda*tzm[idx] - izm[idx]
			row := jac[idx*np : (idx+1)*np]
			for a := range errProj {
				errProj[a] += row[a] * e
			}
		}
		var delta mat.VecDense
		delta.MulVec(&hInv, mat.NewVecDense(np, errProj))
		for a := range warp.p {
			warp.p[a] += delta.AtVec(a)
		}

		opts.Log.Debug().Int("iteration", iter).Float64("rho", rho).Msg("ecc step")
	}

	if math.Abs(rho-lastRho) >= opts.Epsilon {
		return Result{}, qaerr.Registration("no convergence within %d iterations (rho=%.6f, last change %.3g)",
			opts.MaxIterations, rho, math.Abs(rho-lastRho))
	}
	if rho <= 0 {
		return Result{}, qaerr.Registration("non-positive correlation %.6f", rho)
	}

	res := Result{Correlation: rho, Transform: warp.transform(), Iterations: iter}
	opts.Log.Debug().
		Str("motion", opts.Motion.String()).
		Int("iterations", iter).
		Float64("rho", rho).
		Msg("registration converged")
	return res, nil
}

// MapLandmarks moves template landmarks into the target image using a Fit
// transform. The result keeps the convention of points.
func MapLandmarks(points landmark.Set, t geometry.Transform) landmark.Set {
	return landmark.Set{
		Points:     geometry.Apply(points.Points, t, points.Convention, points.Convention),
		Convention: points.Convention,
	}
}
