// Package spectrogram finds the tone transition as the moment the
// short-time energy of the test tone overtakes the one of the reference tone.
package spectrogram

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/brettbuddin/fourier"
	"github.com/facebookincubator/go-belt/tool/logger"
	dspwindow "github.com/mjibson/go-dsp/window"
	"github.com/xaionaro-go/rfcal/pkg/aligner"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

type Aligner struct {
	SampleRate    float64
	PrefixSamples int
	WindowSize    int
	Overlap       int

	taper []float64
}

var _ aligner.Aligner = (*Aligner)(nil)

func New(params aligner.Params) (*Aligner, error) {
	if params.WindowSize < 4 || params.WindowSize&(params.WindowSize-1) != 0 {
		return nil, fmt.Errorf("%w: the window size must be a power of two of at least 4, got %d", rf.ErrInvalidParameter, params.WindowSize)
	}
	if params.Overlap < 0 || params.Overlap >= params.WindowSize {
		return nil, fmt.Errorf("%w: the overlap %d must be in [0, %d)", rf.ErrInvalidParameter, params.Overlap, params.WindowSize)
	}
	return &Aligner{
		SampleRate:    params.SampleRate,
		PrefixSamples: params.PrefixSamples,
		WindowSize:    params.WindowSize,
		Overlap:       params.Overlap,
		taper:         dspwindow.Hann(params.WindowSize),
	}, nil
}

func (a *Aligner) hop() int {
	return a.WindowSize - a.Overlap
}

// bin returns the index of the FFT bin nearest to the frequency.
func (a *Aligner) bin(hz float64) int {
	return int(math.Round(hz / a.SampleRate * float64(a.WindowSize)))
}

// Align locates the transition in each channel:
//
// 1. The capture prefix is cut into Hann-tapered segments of WindowSize
// samples advancing by WindowSize-Overlap; the mean of each segment is removed.
//
// 2. For each segment the energies in the bins nearest to the reference
// and the test tones are taken from a radix-2 FFT.
//
// 3. The transition is the first segment where the test tone energy exceeds
// the reference tone energy. The position is linearly interpolated between
// the centers of this and the previous segment at the point where the
// energy difference crosses zero; if it is the very first segment, its
// center is the position.
func (a *Aligner) Align(
	ctx context.Context,
	frame *capture.Frame,
	tones rf.ToneSpec,
) (aligner.Result, error) {
	var result aligner.Result
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err := tones.Validate(a.SampleRate); err != nil {
		return result, err
	}
	refBin, testBin := a.bin(tones.ReferenceHz), a.bin(tones.TestHz)
	if refBin == testBin || refBin == 0 || testBin == 0 {
		return result, fmt.Errorf(
			"%w: tones %s are not resolvable with a %d-sample window (bins %d and %d)",
			rf.ErrInvalidParameter, tones, a.WindowSize, refBin, testBin,
		)
	}

	n := min(a.PrefixSamples, frame.Len())
	for _, ch := range []rf.Channel{rf.ChannelAnalog, rf.ChannelDigital} {
		samples, err := frame.Read(ch, 0, n)
		if err != nil {
			return result, fmt.Errorf("unable to read the %s channel: %w", ch, err)
		}
		pos, err := a.crossover(samples, refBin, testBin)
		if err != nil {
			return result, fmt.Errorf("the %s channel: %w", ch, err)
		}
		result.Intersect[ch] = pos
		logger.Tracef(ctx, "%s: spectral crossover at %.3f", ch, pos)
	}

	logger.Debugf(ctx, "spectrogram coarse alignment: %s", result)
	return result, nil
}

func (a *Aligner) energyDifference(segment []float64, buf []complex128, refBin, testBin int) (float64, error) {
	var mean float64
	for _, v := range segment {
		mean += v
	}
	mean /= float64(len(segment))
	for i, v := range segment {
		buf[i] = complex((v-mean)*a.taper[i], 0)
	}
	if err := fourier.Forward(buf); err != nil {
		return 0, fmt.Errorf("unable to compute the FFT: %w", err)
	}
	ref := cmplx.Abs(buf[refBin])
	test := cmplx.Abs(buf[testBin])
	return test*test - ref*ref, nil
}

func (a *Aligner) crossover(samples []float64, refBin, testBin int) (float64, error) {
	hop := a.hop()
	if len(samples) < a.WindowSize+hop {
		return 0, fmt.Errorf("%w: %d samples is not enough for two segments", rf.ErrInsufficientSignal, len(samples))
	}
	buf := make([]complex128, a.WindowSize)
	center := float64(a.WindowSize) / 2

	prev, err := a.energyDifference(samples[:a.WindowSize], buf, refBin, testBin)
	if err != nil {
		return 0, err
	}
	if prev > 0 {
		// the transition precedes the first segment center, nothing to interpolate with
		return center, nil
	}
	for seg := 1; seg*hop+a.WindowSize <= len(samples); seg++ {
		start := seg * hop
		cur, err := a.energyDifference(samples[start:start+a.WindowSize], buf, refBin, testBin)
		if err != nil {
			return 0, err
		}
		if cur > 0 {
			prevCenter := float64(start-hop) + center
			return prevCenter + float64(hop)*(-prev)/(cur-prev), nil
		}
		prev = cur
	}
	return 0, fmt.Errorf("%w: the test tone never overtakes the reference tone", rf.ErrInsufficientSignal)
}
