// SPDX-License-Identifier: GPL-3.0-only

// Package brightness provides utilities for converting between Apple Studio Display
// brightness values (in nits) and user-friendly percentages.
package brightness

import (
	"errors"
	"math"
)

const (
	// MinBrightness is the minimum brightness value in nits supported by the Apple Studio Display.
	MinBrightness uint32 = 400

	// MaxBrightness is the maximum brightness value in nits supported by the Apple Studio Display.
	MaxBrightness uint32 = 60000

	// BrightnessRange is the difference between maximum and minimum brightness.
	BrightnessRange uint32 = MaxBrightness - MinBrightness
)

// ErrInvalidPercent is returned when a brightness percentage is outside 0-100.
var ErrInvalidPercent = errors.New("percent must be between 0 and 100")

// ErrInvalidStep is returned when a brightness step is outside 1-100.
var ErrInvalidStep = errors.New("step must be between 1 and 100")

// NitsToPercent converts a brightness value in nits to a percentage (0-100).
// Values outside the valid range are clamped before conversion.
// The result is rounded, not floored: the division can land a float fraction
// below an exact percent boundary, and flooring there would break the
// round-trip with PercentToNits by a whole percent.
func NitsToPercent(nits uint32) uint8 {
	nits = ClampNits(nits)
	percent := float64(nits-MinBrightness) / float64(BrightnessRange) * 100
	return uint8(math.Round(percent))
}

// PercentToNits converts a percentage (0-100) to a brightness value in nits.
// Percentages above 100 are treated as 100%.
func PercentToNits(percent uint8) uint32 {
	if percent > 100 {
		percent = 100
	}
	nits := uint32(float64(percent)*float64(BrightnessRange)/100) + MinBrightness
	return ClampNits(nits)
}

// ClampNits ensures the brightness value is within the valid range.
func ClampNits(nits uint32) uint32 {
	if nits < MinBrightness {
		return MinBrightness
	}
	if nits > MaxBrightness {
		return MaxBrightness
	}
	return nits
}

// StepUp returns current increased by step, saturated at 100%.
func StepUp(current, step uint8) uint8 {
	next := uint16(current) + uint16(step)
	if next > 100 {
		return 100
	}
	return uint8(next)
}

// StepDown returns current decreased by step, saturated at 0%.
func StepDown(current, step uint8) uint8 {
	if step >= current {
		return 0
	}
	return current - step
}

// ValidatePercent checks that a user-supplied percentage is within 0-100.
func ValidatePercent(percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidPercent
	}
	return nil
}

// ValidateStep checks that a user-supplied step is within 1-100.
func ValidateStep(step int) error {
	if step < 1 || step > 100 {
		return ErrInvalidStep
	}
	return nil
}
