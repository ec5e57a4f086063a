// Package aligner defines the coarse alignment stage: finding, in each
// channel, the sample where the reference tone gives way to the test tone.
package aligner

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// Result is the coarse alignment of a capture.
type Result struct {
	// Intersect is the transition position (in samples) per channel,
	// indexed by rf.Channel.
	Intersect [rf.NumChannels]float64

	// Uncertainty is the ambiguity radius of Intersect in samples.
	Uncertainty int
}

// CoarseDelay is how many samples the analog transition comes after the
// digital one.
func (r Result) CoarseDelay() float64 {
	return r.Intersect[rf.ChannelAnalog] - r.Intersect[rf.ChannelDigital]
}

func (r Result) String() string {
	return fmt.Sprintf("intersect=%v uncertainty=%d coarse_delay=%.3f", r.Intersect, r.Uncertainty, r.CoarseDelay())
}

type Aligner interface {
	// Align locates the tone transition in both channels. The analog
	// channel is read with inverted polarity; frame is not modified.
	Align(
		ctx context.Context,
		frame *capture.Frame,
		tones rf.ToneSpec,
	) (Result, error)
}

// Params is what every coarse alignment policy is configured from.
type Params struct {
	SampleRate float64

	// PrefixSamples is how much of the start of the capture is searched.
	PrefixSamples int

	// WindowSize and Overlap configure short-time spectral policies.
	WindowSize int
	Overlap    int
}

func DefaultParams(sampleRate float64) Params {
	return Params{
		SampleRate:    sampleRate,
		PrefixSamples: 4096,
		WindowSize:    64,
		Overlap:       32,
	}
}

func (p Params) Validate() error {
	if !(p.SampleRate > 0) {
		return fmt.Errorf("%w: sample rate must be positive, got %v", rf.ErrInvalidParameter, p.SampleRate)
	}
	if p.PrefixSamples < 3 {
		return fmt.Errorf("%w: the search prefix is too short: %d", rf.ErrInvalidParameter, p.PrefixSamples)
	}
	return nil
}

type Factory interface {
	NewAligner(params Params) (Aligner, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(params Params) (Aligner, error)

func (f FactoryFunc) NewAligner(params Params) (Aligner, error) {
	return f(params)
}
