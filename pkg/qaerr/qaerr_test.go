package qaerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestKindsSurviveWrapping verifies that each constructor can be matched with
// errors.Is even after callers add their own context.
func TestKindsSurviveWrapping(t *testing.T) {
	cases := []struct {
		err  error
		kind error
		name string
	}{
		{Detection("found %d rods", 8), ErrDetection, "DetectionError"},
		{Registration("no convergence"), ErrRegistration, "RegistrationError"},
		{FitDivergence("%d passes", 10000), ErrFitDivergence, "FitDivergenceError"},
		{InsufficientGeometry("empty mask"), ErrInsufficientGeometry, "InsufficientGeometryError"},
		{InvalidInput("spacing %v", -1.0), ErrInvalidInput, "InvalidInputError"},
	}

	for _, c := range cases {
		wrapped := fmt.Errorf("slice 7: %w", c.err)
		assert.ErrorIs(t, wrapped, c.kind)
		assert.Equal(t, c.name, Kind(wrapped))
	}
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, "unknown", Kind(errors.New("disk full")))
	assert.Equal(t, "", Kind(nil))
}

func TestMessageCarriesReason(t *testing.T) {
	err := Detection("found %d rods, expected %d", 8, 9)
	assert.Equal(t, "detection failed: found 8 rods, expected 9", err.Error())
}
