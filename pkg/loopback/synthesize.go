// Package loopback simulates the DDS loopback hardware: a DDS that plays
// a reference tone and switches phase-continuously to a test tone, fed both
// straight into the digital capture channel and through an analog path
// (DAC, cable, ADC) into the analog capture channel.
package loopback

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// SynthParams describes one simulated capture.
type SynthParams struct {
	SampleRate float64
	Samples    int
	Tones      rf.ToneSpec

	// SwitchAt is the (fractional) sample where the digital channel
	// switches from the reference to the test tone.
	SwitchAt float64

	// Delay is the analog path delay in samples. The DAC sample-and-hold
	// adds rf.DACSampleHoldOffset on top of it.
	Delay float64

	// TestPhase is an extra phase lag (radians) the analog path adds to
	// the test tone only.
	TestPhase float64

	DigitalAmplitude float64
	AnalogAmplitude  float64
	DigitalOffset    float64
	AnalogOffset     float64

	// NoiseStdDev is the standard deviation of gaussian noise added to
	// both channels, in LSB.
	NoiseStdDev float64
	Seed        int64
}

func DefaultSynthParams(sampleRate float64, tones rf.ToneSpec) SynthParams {
	return SynthParams{
		SampleRate:       sampleRate,
		Samples:          8192,
		Tones:            tones,
		SwitchAt:         1500,
		DigitalAmplitude: 8000,
		AnalogAmplitude:  6000,
	}
}

func (p SynthParams) Validate() error {
	if err := p.Tones.Validate(p.SampleRate); err != nil {
		return err
	}
	if p.Samples <= 0 {
		return fmt.Errorf("%w: the amount of samples must be positive, got %d", rf.ErrInvalidParameter, p.Samples)
	}
	for _, amp := range []float64{p.DigitalAmplitude, p.AnalogAmplitude} {
		if amp < 0 || amp > math.MaxInt16 {
			return fmt.Errorf("%w: amplitude %v is out of the int16 range", rf.ErrInvalidParameter, amp)
		}
	}
	return nil
}

// phaseAt is the DDS phase (radians) at the given time (in samples).
// The accumulator keeps running across the switch, so the phase is continuous.
func (p SynthParams) phaseAt(t float64) float64 {
	wRef := 2 * math.Pi * p.Tones.ReferenceHz / p.SampleRate
	if t < p.SwitchAt {
		return wRef * t
	}
	wTest := 2 * math.Pi * p.Tones.TestHz / p.SampleRate
	return wRef*p.SwitchAt + wTest*(t-p.SwitchAt)
}

func clampInt16(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// Synthesize renders a two-channel capture. The analog channel is stored
// with the front-end polarity, so capture.Frame.Read returns it upright.
func Synthesize(p SynthParams) (*capture.Frame, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return render(p), nil
}

func render(p SynthParams) *capture.Frame {
	rng := rand.New(rand.NewSource(p.Seed))
	frame := capture.NewFrame(p.Samples)
	analogDelay := p.Delay + rf.DACSampleHoldOffset
	for i := 0; i < p.Samples; i++ {
		t := float64(i)
		digital := p.DigitalOffset + p.DigitalAmplitude*math.Sin(p.phaseAt(t))

		ta := t - analogDelay
		phase := p.phaseAt(ta)
		if ta >= p.SwitchAt {
			phase -= p.TestPhase
		}
		analog := p.AnalogOffset + p.AnalogAmplitude*math.Sin(phase)

		if p.NoiseStdDev > 0 {
			digital += rng.NormFloat64() * p.NoiseStdDev
			analog += rng.NormFloat64() * p.NoiseStdDev
		}
		frame.Set(i, rf.ChannelDigital, clampInt16(digital))
		frame.Set(i, rf.ChannelAnalog, clampInt16(rf.AnalogPolarity*analog))
	}
	return frame
}
