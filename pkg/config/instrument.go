package config

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/rfcal/pkg/aligner"
	"github.com/xaionaro-go/rfcal/pkg/instrument"
	"github.com/xaionaro-go/rfcal/pkg/loopback"
	"github.com/xaionaro-go/rfcal/pkg/phase"
)

// NewPipeline builds the estimation pipeline with the configured coarse
// alignment policy; the policy implementations have to be imported by
// the caller.
func (cfg Config) NewPipeline() (*phase.Pipeline, error) {
	a, err := aligner.New(cfg.Pipeline.CoarsePolicy, cfg.AlignerParams())
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the coarse aligner: %w", err)
	}
	return phase.NewPipeline(cfg.PipelineConfig(), a)
}

// OpenInstrument assembles the instrument with the given number of
// capture buffers. If sim is not nil it is used instead of the real
// peripherals.
func (cfg Config) OpenInstrument(
	ctx context.Context,
	sim *loopback.Simulator,
	buffers int,
) (*instrument.Instrument, error) {
	pipeline, err := cfg.NewPipeline()
	if err != nil {
		return nil, err
	}

	var hw instrument.Hardware
	if sim != nil {
		logger.Infof(ctx, "using the simulated loopback")
		hw = instrument.SimulatedHardware(sim, cfg.InstrumentConfig().NoiseShape)
	} else {
		hw, err = instrument.OpenHardware(ctx, cfg.HardwareConfig())
		if err != nil {
			return nil, fmt.Errorf("unable to open the hardware: %w", err)
		}
	}

	ins, err := instrument.New(cfg.InstrumentConfig(), hw, pipeline, buffers)
	if err != nil {
		if closeErr := hw.Close(); closeErr != nil {
			logger.Errorf(ctx, "unable to close the hardware: %v", closeErr)
		}
		return nil, err
	}
	return ins, nil
}
