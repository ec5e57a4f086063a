package phase

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/rfcal/pkg/aligner"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/resampler"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// Pipeline turns a capture into a phase measurement: coarse alignment,
// fine delay, then phase. It is stateless between calls and safe for
// concurrent use as long as Hook is.
type Pipeline struct {
	Config  Config
	Aligner aligner.Aligner
	Hook    Hook

	upsampler *resampler.Upsampler
}

func NewPipeline(cfg Config, a aligner.Aligner) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: no coarse aligner", rf.ErrInvalidParameter)
	}
	up, err := resampler.NewUpsampler(cfg.OSR)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Config:    cfg,
		Aligner:   a,
		upsampler: up,
	}, nil
}

// Measurement is everything the pipeline found out about one capture.
type Measurement struct {
	Tones  rf.ToneSpec
	Coarse aligner.Result
	Delay  DelayEstimate
	Phase  Estimate
}

func (m Measurement) String() string {
	return fmt.Sprintf("%s: phase %s, delay %s", m.Tones, m.Phase, m.Delay)
}

func (p *Pipeline) MeasurePhase(
	ctx context.Context,
	frame *capture.Frame,
	tones rf.ToneSpec,
) (_ret Measurement, _err error) {
	logger.Tracef(ctx, "MeasurePhase(%s)", tones)
	defer func() { logger.Tracef(ctx, "/MeasurePhase(%s): %v %v", tones, _ret, _err) }()

	result := Measurement{Tones: tones}
	if err := tones.Validate(p.Config.SampleRate); err != nil {
		return result, err
	}

	coarse, err := p.Aligner.Align(ctx, frame, tones)
	if err != nil {
		return result, fmt.Errorf("unable to coarsely align the channels: %w", err)
	}
	result.Coarse = coarse
	p.fire(ctx, StageCoarse, map[string][]float64{
		"intersect":   coarse.Intersect[:],
		"uncertainty": {float64(coarse.Uncertainty)},
	})

	delay, err := p.FineDelay(ctx, frame, tones, coarse)
	if err != nil {
		return result, fmt.Errorf("unable to estimate the fine delay: %w", err)
	}
	result.Delay = delay

	estimate, err := p.EstimatePhase(ctx, frame, tones, coarse, delay)
	if err != nil {
		return result, fmt.Errorf("unable to estimate the phase: %w", err)
	}
	result.Phase = estimate
	return result, nil
}
