package vad

import (
	"fmt"
	"math"
)

// Default energy bounds for normalized float32 PCM. RMS below MinEnergy is
// certain silence, above MaxEnergy certain speech.
const (
	DefaultMinEnergy = 0.0001
	DefaultMaxEnergy = 0.1
)

// Energy is a stateless detector mapping frame RMS linearly from
// [MinEnergy, MaxEnergy] to [0, 1], clamped outside the range.
type Energy struct {
	minEnergy float64
	maxEnergy float64
}

// NewEnergy creates an energy detector. Zero bounds take the defaults.
func NewEnergy(minEnergy, maxEnergy float64) (*Energy, error) {
	if minEnergy == 0 {
		minEnergy = DefaultMinEnergy
	}
	if maxEnergy == 0 {
		maxEnergy = DefaultMaxEnergy
	}
	if minEnergy < 0 || maxEnergy <= minEnergy {
		return nil, fmt.Errorf("energy bounds must satisfy 0 <= min < max, got min=%f max=%f",
			minEnergy, maxEnergy)
	}
	return &Energy{minEnergy: minEnergy, maxEnergy: maxEnergy}, nil
}

// Probability returns the clamped linear mapping of the frame's RMS energy.
func (e *Energy) Probability(frame []float32) float32 {
	if len(frame) == 0 {
		return 0
	}

	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(frame)))

	switch {
	case rms < e.minEnergy:
		return 0
	case rms > e.maxEnergy:
		return 1
	default:
		return float32((rms - e.minEnergy) / (e.maxEnergy - e.minEnergy))
	}
}

// Reset is a no-op; the energy detector keeps no state.
func (e *Energy) Reset() {}
