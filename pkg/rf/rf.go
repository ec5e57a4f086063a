// Package rf contains the types shared by every stage of the DDS loopback
// calibration: tone pairs, channel identities, the phase-accumulator model
// and the error kinds the pipeline reports.
package rf

import (
	"fmt"
	"math"
)

type Channel int

const (
	// ChannelAnalog is the DAC->ADC loopback path. Its samples arrive with
	// inverted polarity and are read through AnalogPolarity everywhere.
	ChannelAnalog = Channel(0)

	// ChannelDigital is the DDS output captured before the DAC.
	ChannelDigital = Channel(1)

	NumChannels = 2
)

func (ch Channel) String() string {
	switch ch {
	case ChannelAnalog:
		return "analog"
	case ChannelDigital:
		return "digital"
	default:
		return fmt.Sprintf("channel<%d>", int(ch))
	}
}

func ParseChannel(s string) (Channel, error) {
	for ch := Channel(0); ch < NumChannels; ch++ {
		if ch.String() == s {
			return ch, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown channel '%s'", ErrInvalidParameter, s)
}

// Polarity returns the sign the channel samples have to be multiplied by.
func (ch Channel) Polarity() float64 {
	if ch == ChannelAnalog {
		return AnalogPolarity
	}
	return 1
}

const (
	// AnalogPolarity: the analog front-end inverts the signal, so raw
	// analog samples are negated before any comparison with the digital
	// channel. Hardware property, do not change without re-validating.
	AnalogPolarity = -1.0

	// DACSampleHoldOffset is the lag (in input samples) the DAC
	// sample-and-hold adds on top of the real path delay. It is removed
	// from every fine delay estimate.
	DACSampleHoldOffset = 1
)

// ToneSpec is the pair of tones present across the trigger transition:
// the reference tone before it and the test tone after it.
type ToneSpec struct {
	ReferenceHz float64
	TestHz      float64
}

func (t ToneSpec) Validate(sampleRate float64) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalidParameter, sampleRate)
	}
	for _, f := range []float64{t.ReferenceHz, t.TestHz} {
		if !(f > 0) || f >= sampleRate/2 {
			return fmt.Errorf("%w: tone %v Hz is outside (0, %v)", ErrInvalidParameter, f, sampleRate/2)
		}
	}
	if t.ReferenceHz == t.TestHz {
		return fmt.Errorf("%w: reference and test tones are equal (%v Hz)", ErrInvalidParameter, t.TestHz)
	}
	return nil
}

func (t ToneSpec) String() string {
	return fmt.Sprintf("%.3fMHz->%.3fMHz", t.ReferenceHz/1e6, t.TestHz/1e6)
}

// PeriodSamples returns the period of a tone in samples at the given
// oversampling ratio (osr == 1 means input samples).
func PeriodSamples(sampleRate, freq float64, osr int) float64 {
	return float64(osr) * sampleRate / freq
}

// FloorDiv is integer division rounding towards negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FloorMod is the remainder matching FloorDiv; the result has the sign of b.
func FloorMod(a, b int) int {
	return a - FloorDiv(a, b)*b
}

// WrapPhase reduces an angle into [0, 2π).
func WrapPhase(phi float64) float64 {
	phi = math.Mod(phi, 2*math.Pi)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	if phi >= 2*math.Pi {
		phi = 0
	}
	return phi
}
