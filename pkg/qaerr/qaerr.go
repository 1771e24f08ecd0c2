// Package qaerr defines the failure kinds reported by the phantom QA engine.
// Every error returned by the measurement packages wraps exactly one of the
// sentinels below, so callers can branch with errors.Is.
package qaerr

import (
	"errors"
	"fmt"
)

var (
	// ErrDetection means a landmark or centroid could not be located.
	ErrDetection = errors.New("detection failed")

	// ErrRegistration means image alignment did not converge or is degenerate.
	ErrRegistration = errors.New("registration failed")

	// ErrFitDivergence means the trapezoid search hit its pass cap.
	ErrFitDivergence = errors.New("fit diverged")

	// ErrInsufficientGeometry means an ROI could not be placed in the image.
	ErrInsufficientGeometry = errors.New("insufficient geometry")

	// ErrInvalidInput means the image or its metadata is malformed.
	ErrInvalidInput = errors.New("invalid input")
)

// Detection returns an ErrDetection with a formatted reason.
func Detection(format string, args ...interface{}) error {
	return wrap(ErrDetection, format, args...)
}

// Registration returns an ErrRegistration with a formatted reason.
func Registration(format string, args ...interface{}) error {
	return wrap(ErrRegistration, format, args...)
}

// FitDivergence returns an ErrFitDivergence with a formatted reason.
func FitDivergence(format string, args ...interface{}) error {
	return wrap(ErrFitDivergence, format, args...)
}

// InsufficientGeometry returns an ErrInsufficientGeometry with a formatted reason.
func InsufficientGeometry(format string, args ...interface{}) error {
	return wrap(ErrInsufficientGeometry, format, args...)
}

// InvalidInput returns an ErrInvalidInput with a formatted reason.
func InvalidInput(format string, args ...interface{}) error {
	return wrap(ErrInvalidInput, format, args...)
}

func wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Kind names the failure kind of err, or "unknown" when err wraps none of the
// sentinels. It is used when errors are written into reports.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDetection):
		return "DetectionError"
	case errors.Is(err, ErrRegistration):
		return "RegistrationError"
	case errors.Is(err, ErrFitDivergence):
		return "FitDivergenceError"
	case errors.Is(err, ErrInsufficientGeometry):
		return "InsufficientGeometryError"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInputError"
	default:
		return "unknown"
	}
}
