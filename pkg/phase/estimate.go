package phase

import (
	"context"
	"fmt"
	"math"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/rfcal/pkg/aligner"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/rf"
	"github.com/xaionaro-go/rfcal/pkg/xcorr"
	"github.com/xaionaro-go/rfcal/pkg/zerocrossing"
)

// zeroCrossingSpacing is the minimal distance between accepted zero
// crossings in periods of the tone being analyzed.
const zeroCrossingSpacing = 0.4

// Estimate is the phase of the analog channel relative to the digital
// one at the test tone, after the estimated delay is compensated.
type Estimate struct {
	// Phase is in radians, within [0, 2π).
	Phase float64

	// Lag is the residual lag (in 1/OSR samples) the phase is derived from.
	Lag int
	OSR int

	// TestHzActual is the test frequency the DDS really plays.
	TestHzActual float64
}

func (e Estimate) Degrees() float64 {
	return e.Phase * 180 / math.Pi
}

func (e Estimate) String() string {
	return fmt.Sprintf("%.4f rad (%.2f°) at %.6f MHz", e.Phase, e.Degrees(), e.TestHzActual/1e6)
}

// EstimatePhase measures the phase difference at the test tone:
//
// 1. A window of SegmentPeriods test periods (plus the cropped edges) is
// taken well after the transition; the analog one is shifted by the whole
// part of the delay.
//
// 2. Both are upsampled and the fractional part of the delay is removed by
// dropping samples; then the filter edges are cropped.
//
// 3. The windows are trimmed to a whole amount of periods between zero
// crossings of the analog channel, so the circular cross-correlation has
// no edge bias.
//
// 4. The lag of the correlation maximum is converted to a phase at the
// frequency the DDS really plays.
func (p *Pipeline) EstimatePhase(
	ctx context.Context,
	frame *capture.Frame,
	tones rf.ToneSpec,
	coarse aligner.Result,
	delay DelayEstimate,
) (Estimate, error) {
	cfg := p.Config
	result := Estimate{OSR: cfg.OSR}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if delay.OSR != cfg.OSR {
		return result, fmt.Errorf("%w: the delay is estimated with OSR %d, but the pipeline uses %d", rf.ErrInvalidParameter, delay.OSR, cfg.OSR)
	}

	testHz, err := cfg.accumulator().Quantize(tones.TestHz)
	if err != nil {
		return result, err
	}
	result.TestHzActual = testHz

	start := int(math.Round(coarse.Intersect[rf.ChannelDigital])) +
		5*coarse.Uncertainty +
		int(math.Round(2*cfg.SampleRate/tones.ReferenceHz))
	testPeriod := rf.PeriodSamples(cfg.SampleRate, tones.TestHz, 1)
	length := int(math.Ceil(cfg.SegmentPeriods*testPeriod)) + 2*cfg.cropInputSamples()

	digital, err := frame.Read(rf.ChannelDigital, start, length)
	if err != nil {
		return result, fmt.Errorf("unable to read the test window: %w", err)
	}
	analog, err := frame.Read(rf.ChannelAnalog, start+delay.Whole(), length)
	if err != nil {
		return result, fmt.Errorf("unable to read the test window: %w", err)
	}

	rem := delay.Residual()
	analog = p.upsampler.Upsample(analog)
	digital = p.upsampler.Upsample(digital)
	analog = analog[rem:]
	digital = digital[:len(digital)-rem]

	crop := cfg.cropSamples()
	analog = cropTails(analog, crop)
	digital = cropTails(digital, crop)

	if err := xcorr.Normalize(analog); err != nil {
		return result, fmt.Errorf("analog: %w", err)
	}
	if err := xcorr.Normalize(digital); err != nil {
		return result, fmt.Errorf("digital: %w", err)
	}
	crossings := zerocrossing.Find(analog, zeroCrossingSpacing*testPeriod*float64(cfg.OSR))
	if len(crossings) < 3 {
		return result, fmt.Errorf("%w: the analog test window has %d zero crossings", rf.ErrInsufficientSignal, len(crossings))
	}
	last := len(crossings) - 1
	last -= last % 2
	analog = append([]float64(nil), analog[crossings[0]:crossings[last]]...)
	digital = append([]float64(nil), digital[crossings[0]:crossings[last]]...)
	p.fire(ctx, StagePhaseWindow, map[string][]float64{
		rf.ChannelAnalog.String():  analog,
		rf.ChannelDigital.String(): digital,
	})

	if err := xcorr.Normalize(analog); err != nil {
		return result, fmt.Errorf("analog: %w", err)
	}
	if err := xcorr.Normalize(digital); err != nil {
		return result, fmt.Errorf("digital: %w", err)
	}
	r, err := xcorr.Circular(analog, digital)
	if err != nil {
		return result, err
	}
	p.fire(ctx, StagePhaseXCorr, map[string][]float64{
		"xcorr": r,
	})

	result.Lag = xcorr.ArgMaxCircular(r)
	result.Phase = rf.WrapPhase(2 * math.Pi * float64(result.Lag) * testHz / (cfg.SampleRate * float64(cfg.OSR)))
	logger.Debugf(ctx, "phase: window %d samples (%d periods), lag %d, result %s", len(analog), last/2, result.Lag, result)
	return result, nil
}
