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

// DelayEstimate is the analog path delay relative to the digital channel
// in 1/OSR fractions of an input sample. The DAC sample-and-hold offset is
// already removed.
type DelayEstimate struct {
	Lag int
	OSR int
}

// Samples is the delay in input samples.
func (d DelayEstimate) Samples() float64 {
	return float64(d.Lag) / float64(d.OSR)
}

// Whole is the delay rounded down to whole input samples.
func (d DelayEstimate) Whole() int {
	return rf.FloorDiv(d.Lag, d.OSR)
}

// Residual is the remainder of Whole, in upsampled samples; always in [0, OSR).
func (d DelayEstimate) Residual() int {
	return rf.FloorMod(d.Lag, d.OSR)
}

func (d DelayEstimate) String() string {
	return fmt.Sprintf("%.4f samples (%d/%d)", d.Samples(), d.Lag, d.OSR)
}

// FineDelay refines the coarse delay using the reference tone preceding
// the transition:
//
// 1. Two reference periods are taken from each channel, offset against
// each other by the rounded coarse delay.
//
// 2. Both are upsampled by OSR and the filter edges are cropped.
//
// 3. The lag of the maximum of the cross-correlation of the normalized
// and Hann-tapered windows is found. The taper envelopes are misaligned by
// that lag which biases the peak, so the analog window is shifted by the
// found lag and the correlation is repeated for the residual.
func (p *Pipeline) FineDelay(
	ctx context.Context,
	frame *capture.Frame,
	tones rf.ToneSpec,
	coarse aligner.Result,
) (DelayEstimate, error) {
	cfg := p.Config
	result := DelayEstimate{OSR: cfg.OSR}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	c := int(math.Round(coarse.CoarseDelay()))
	analogStart := max(c, 0)
	digitalStart := max(-c, 0)
	// FineWindowPeriods of 2·OSR spans the whole pre-transition region.
	length := min(
		int(math.Round(cfg.FineWindowPeriods*rf.PeriodSamples(cfg.SampleRate, tones.ReferenceHz, 1))),
		int(coarse.Intersect[rf.ChannelDigital])-digitalStart,
	)
	if length <= 0 {
		return result, fmt.Errorf("%w: there is no reference tone before the transition at %v", rf.ErrInsufficientSignal, coarse.Intersect[rf.ChannelDigital])
	}

	analog, err := frame.Read(rf.ChannelAnalog, analogStart, length)
	if err != nil {
		return result, fmt.Errorf("unable to read the reference window: %w", err)
	}
	digital, err := frame.Read(rf.ChannelDigital, digitalStart, length)
	if err != nil {
		return result, fmt.Errorf("unable to read the reference window: %w", err)
	}

	crop := cfg.cropSamples()
	analog = cropTails(p.upsampler.Upsample(analog), crop)
	digital = cropTails(p.upsampler.Upsample(digital), crop)
	if len(analog) == 0 {
		return result, fmt.Errorf("%w: the reference window of %d samples is shorter than the cropped edges", rf.ErrInsufficientSignal, length)
	}
	minSpacing := zeroCrossingSpacing * rf.PeriodSamples(cfg.SampleRate, tones.ReferenceHz, cfg.OSR)
	for ch, samples := range map[rf.Channel][]float64{rf.ChannelAnalog: analog, rf.ChannelDigital: digital} {
		if err := xcorr.Normalize(samples); err != nil {
			return result, fmt.Errorf("the %s reference window: %w", ch, err)
		}
		if n := len(zerocrossing.Find(samples, minSpacing)); n < 2 {
			return result, fmt.Errorf("%w: the %s reference window has %d zero crossings", rf.ErrInsufficientSignal, ch, n)
		}
	}
	p.fire(ctx, StageFineWindow, map[string][]float64{
		rf.ChannelAnalog.String():  analog,
		rf.ChannelDigital.String(): digital,
	})

	lag1, corr1, err := taperedLag(analog, digital)
	if err != nil {
		return result, err
	}
	analogAligned, digitalAligned := overlap(analog, digital, lag1)
	if len(analogAligned) == 0 {
		return result, fmt.Errorf("%w: the lag %d leaves no overlap", rf.ErrInsufficientSignal, lag1)
	}
	lag2, corr2, err := taperedLag(analogAligned, digitalAligned)
	if err != nil {
		return result, err
	}
	p.fire(ctx, StageFineXCorr, map[string][]float64{
		"first":    corr1,
		"residual": corr2,
	})

	result.Lag = c*cfg.OSR + lag1 + lag2 - rf.DACSampleHoldOffset*cfg.OSR
	logger.Debugf(ctx, "fine delay: coarse %d, lags %d%+d, result %s", c, lag1, lag2, result)
	return result, nil
}

// taperedLag returns the lag of d in a after normalizing and tapering
// copies of both.
func taperedLag(a, d []float64) (int, []float64, error) {
	a = append([]float64(nil), a...)
	d = append([]float64(nil), d...)
	if err := xcorr.Normalize(a); err != nil {
		return 0, nil, fmt.Errorf("analog: %w", err)
	}
	if err := xcorr.Normalize(d); err != nil {
		return 0, nil, fmt.Errorf("digital: %w", err)
	}
	xcorr.HannTaper(a)
	xcorr.HannTaper(d)
	r := xcorr.Linear(a, d)
	return xcorr.ArgMaxLinear(r, len(d)), r, nil
}

// overlap returns the parts of a and d which coincide once a is moved
// lag samples earlier.
func overlap(a, d []float64, lag int) ([]float64, []float64) {
	n := min(len(a), len(d))
	if lag >= n || -lag >= n {
		return nil, nil
	}
	if lag >= 0 {
		return a[lag:n], d[:n-lag]
	}
	return a[:n+lag], d[-lag : n]
}
