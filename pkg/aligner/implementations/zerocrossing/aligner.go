// Package zerocrossing finds the tone transition as the place where the
// spacing between consecutive zero crossings changes the most abruptly.
package zerocrossing

import (
	"context"
	"fmt"
	"math"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/rfcal/pkg/aligner"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/rf"
	zc "github.com/xaionaro-go/rfcal/pkg/zerocrossing"
)

// MinSpacingPeriods is the minimal accepted distance between crossings,
// in test tone periods. Crossings closer than that are noise.
const MinSpacingPeriods = 0.4

type Aligner struct {
	SampleRate    float64
	PrefixSamples int
}

var _ aligner.Aligner = (*Aligner)(nil)

func New(params aligner.Params) *Aligner {
	return &Aligner{
		SampleRate:    params.SampleRate,
		PrefixSamples: params.PrefixSamples,
	}
}

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
	n := min(a.PrefixSamples, frame.Len())
	minSpacing := MinSpacingPeriods * rf.PeriodSamples(a.SampleRate, tones.TestHz, 1)

	for _, ch := range []rf.Channel{rf.ChannelAnalog, rf.ChannelDigital} {
		samples, err := frame.Read(ch, 0, n)
		if err != nil {
			return result, fmt.Errorf("unable to read the %s channel: %w", ch, err)
		}
		crossings := zc.Find(samples, minSpacing)
		idx, err := sharpestSpacingChange(crossings)
		if err != nil {
			return result, fmt.Errorf("the %s channel: %w", ch, err)
		}
		result.Intersect[ch] = float64(crossings[idx])
		logger.Tracef(ctx, "%s: %d crossings, transition at %d", ch, len(crossings), crossings[idx])
	}

	result.Uncertainty = int(math.Round(rf.PeriodSamples(a.SampleRate, tones.ReferenceHz, 1)))
	logger.Debugf(ctx, "zero-crossing coarse alignment: %s", result)
	return result, nil
}

// sharpestSpacingChange returns the index of the crossing that closes the
// most negative second difference of the crossing positions.
func sharpestSpacingChange(crossings []int) (int, error) {
	if len(crossings) < 3 {
		return 0, fmt.Errorf("%w: only %d zero crossings found", rf.ErrInsufficientSignal, len(crossings))
	}
	best := 0
	bestValue := math.MaxInt
	for i := 0; i+2 < len(crossings); i++ {
		d2 := (crossings[i+2] - crossings[i+1]) - (crossings[i+1] - crossings[i])
		if d2 < bestValue {
			bestValue = d2
			best = i
		}
	}
	return best + 2, nil
}
