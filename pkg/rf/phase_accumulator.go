package rf

import (
	"fmt"
	"math"
)

// PhaseAccumulator models the DDS phase accumulator: the programmed
// increment is truncated to Bits bits of a full turn, so the generated
// frequency differs from the requested one.
type PhaseAccumulator struct {
	SampleRate float64
	Bits       uint
}

func (p PhaseAccumulator) fullScale() float64 {
	return math.Ldexp(1, int(p.Bits))
}

// Increment returns the phase increment ("pinc") for the requested frequency.
func (p PhaseAccumulator) Increment(hz float64) (uint32, error) {
	if p.SampleRate <= 0 {
		return 0, fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalidParameter, p.SampleRate)
	}
	if p.Bits == 0 || p.Bits > 32 {
		return 0, fmt.Errorf("%w: phase accumulator width must be within 1..32 bits, got %d", ErrInvalidParameter, p.Bits)
	}
	if math.IsNaN(hz) || hz < 0 || hz >= p.SampleRate {
		return 0, fmt.Errorf("%w: frequency %v Hz is outside [0, %v)", ErrInvalidParameter, hz, p.SampleRate)
	}
	return uint32(math.Trunc(hz / p.SampleRate * p.fullScale())), nil
}

// Frequency returns the frequency actually generated for an increment.
func (p PhaseAccumulator) Frequency(pinc uint32) float64 {
	return float64(pinc) * p.SampleRate / p.fullScale()
}

// Quantize returns the frequency the DDS really produces when asked for hz.
func (p PhaseAccumulator) Quantize(hz float64) (float64, error) {
	pinc, err := p.Increment(hz)
	if err != nil {
		return 0, err
	}
	return p.Frequency(pinc), nil
}
