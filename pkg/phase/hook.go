package phase

import (
	"context"
)

type Stage string

const (
	StageCoarse      = Stage("coarse")
	StageFineWindow  = Stage("fine_window")
	StageFineXCorr   = Stage("fine_xcorr")
	StagePhaseWindow = Stage("phase_window")
	StagePhaseXCorr  = Stage("phase_xcorr")
)

// Hook receives intermediate arrays of the pipeline for inspection.
// The arrays must not be modified or retained after the call.
type Hook func(ctx context.Context, stage Stage, arrays map[string][]float64)

func (p *Pipeline) fire(ctx context.Context, stage Stage, arrays map[string][]float64) {
	if p.Hook == nil {
		return
	}
	p.Hook(ctx, stage, arrays)
}
