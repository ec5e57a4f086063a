// Package instrument runs the DDS loopback measurements: it programs the
// peripherals, takes captures and feeds them to the estimation pipeline.
package instrument

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/export"
	"github.com/xaionaro-go/rfcal/pkg/phase"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// Measurement settings of MeasurePhase.
const (
	MeasureVGAAttenuationDB = 18
	MeasureDACAttenuationDB = 12
)

// Instrument is not safe for concurrent use: the peripherals hold a
// single configuration.
type Instrument struct {
	Config   Config
	Hardware Hardware
	Pipeline *phase.Pipeline

	locker  sync.Mutex
	buffers []*capture.Frame
	noise   *capture.NoiseFrame
}

func New(
	cfg Config,
	hw Hardware,
	pipeline *phase.Pipeline,
	buffers int,
) (*Instrument, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := hw.Validate(); err != nil {
		return nil, err
	}
	if pipeline == nil {
		return nil, fmt.Errorf("%w: no estimation pipeline", rf.ErrInvalidParameter)
	}
	ins := &Instrument{
		Config:   cfg,
		Hardware: hw,
		Pipeline: pipeline,
		noise:    capture.NewNoiseFrame(cfg.NoiseShape),
	}
	if err := ins.Reallocate(buffers); err != nil {
		return nil, err
	}
	return ins, nil
}

func (ins *Instrument) settle(ctx context.Context) error {
	if ins.Config.SettleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(ins.Config.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reallocate makes n capture buffers available, refusing to exceed the
// buffer budget. Existing buffers are kept when the count does not change.
func (ins *Instrument) Reallocate(n int) error {
	ins.locker.Lock()
	defer ins.locker.Unlock()
	if n < 1 {
		return fmt.Errorf("%w: at least one buffer is required, got %d", rf.ErrInvalidParameter, n)
	}
	if len(ins.buffers) == n {
		return nil
	}
	total := int64(n) * ins.Config.frameBytes()
	if total > ins.Config.BufferBudgetBytes {
		return fmt.Errorf("%w: refusing to allocate %dMiB of DMA buffers (the budget is %dMiB), try again with fewer buffers", rf.ErrInvalidParameter, total>>20, ins.Config.BufferBudgetBytes>>20)
	}
	ins.buffers = make([]*capture.Frame, n)
	for i := range ins.buffers {
		ins.buffers[i] = capture.NewFrame(ins.Config.FrameSamples)
	}
	return nil
}

// Buffers returns the capture buffers; they are overwritten by Acquire.
func (ins *Instrument) Buffers() []*capture.Frame {
	ins.locker.Lock()
	defer ins.locker.Unlock()
	return ins.buffers
}

func (ins *Instrument) buffer(idx int) (*capture.Frame, error) {
	ins.locker.Lock()
	defer ins.locker.Unlock()
	if idx < 0 || idx >= len(ins.buffers) {
		return nil, fmt.Errorf("%w: buffer #%d does not exist, have %d", rf.ErrInvalidParameter, idx, len(ins.buffers))
	}
	return ins.buffers[idx], nil
}

// Acquire takes a capture into buffer #idx.
func (ins *Instrument) Acquire(ctx context.Context, idx int) (*capture.Frame, error) {
	frame, err := ins.buffer(idx)
	if err != nil {
		return nil, err
	}
	if err := ins.settle(ctx); err != nil {
		return nil, err
	}
	if err := capture.AcquireFrame(ctx, ins.Hardware.Acquirer, frame); err != nil {
		return nil, fmt.Errorf("unable to capture into buffer #%d: %w", idx, err)
	}
	if err := ins.settle(ctx); err != nil {
		return nil, err
	}
	return frame, nil
}

// ConfigureNoiseBuffer sends configuration words to the noise tracker.
func (ins *Instrument) ConfigureNoiseBuffer(ctx context.Context, words ...uint32) error {
	if ins.Hardware.NoiseBufferConfig == nil {
		return fmt.Errorf("%w: the hardware has no noise tracker", rf.ErrInvalidParameter)
	}
	logger.Debugf(ctx, "configuring the noise buffer: %X", words)
	if err := ins.Hardware.NoiseBufferConfig.SendConfigWords(ctx, words...); err != nil {
		return fmt.Errorf("unable to configure the noise buffer: %w", err)
	}
	return ins.settle(ctx)
}

// AcquireNoise takes a noise-accumulator capture. The returned frame is
// overwritten by the next call.
func (ins *Instrument) AcquireNoise(ctx context.Context) (*capture.NoiseFrame, error) {
	ins.locker.Lock()
	frame := ins.noise
	ins.locker.Unlock()
	if frame == nil {
		return nil, fmt.Errorf("%w: the instrument is closed", rf.ErrInvalidParameter)
	}
	if err := ins.settle(ctx); err != nil {
		return nil, err
	}
	if err := capture.AcquireNoiseFrame(ctx, ins.Hardware.noiseAcquirer(), frame); err != nil {
		return nil, fmt.Errorf("unable to capture the noise buffer: %w", err)
	}
	if err := ins.settle(ctx); err != nil {
		return nil, err
	}
	return frame, nil
}

// MeasurePhase plays the reference tone, arms the capture to trigger on
// the switch to the test tone, captures the transition and estimates the
// phase of the analog path at the test tone.
func (ins *Instrument) MeasurePhase(
	ctx context.Context,
	tones rf.ToneSpec,
) (_ret phase.Measurement, _err error) {
	logger.Debugf(ctx, "measuring phase delay of frequency %.0fMHz with reference %.0fMHz", tones.TestHz/1e6, tones.ReferenceHz/1e6)
	defer func() { logger.Debugf(ctx, "/MeasurePhase: %v %v", _ret, _err) }()

	if err := tones.Validate(ins.Config.SampleRate); err != nil {
		return phase.Measurement{}, err
	}
	for _, step := range []func() error{
		func() error { return ins.SetVGAAttenuation(ctx, 0, MeasureVGAAttenuationDB) },
		func() error { return ins.SetDACAttenuation(ctx, 0, MeasureDACAttenuationDB) },
		func() error { return ins.SetADCSource(ctx, ADCSourceAFE) },
		func() error { return ins.SetTriggerSource(ctx, TriggerSourceManual) },
		func() error { _, err := ins.SetFrequency(ctx, 0, tones.ReferenceHz); return err },
		func() error { return ins.SetTriggerSource(ctx, TriggerSourceDDSAuto) },
		func() error { _, err := ins.SetFrequency(ctx, 0, tones.TestHz); return err },
	} {
		if err := step(); err != nil {
			return phase.Measurement{}, err
		}
	}
	frame, err := ins.Acquire(ctx, 0)
	if err != nil {
		return phase.Measurement{}, err
	}
	return ins.Pipeline.MeasurePhase(ctx, frame, tones)
}

// FrequencySweep captures one buffer per frequency with the DDS left
// free-running (no trigger on the frequency switch).
func (ins *Instrument) FrequencySweep(
	ctx context.Context,
	dacAttenDB float64,
	vgaAttenDB float64,
	freqsHz []float64,
) (*export.Record, error) {
	if len(freqsHz) == 0 {
		return nil, fmt.Errorf("%w: no frequencies to sweep", rf.ErrInvalidParameter)
	}
	if err := ins.SetDACAttenuation(ctx, 0, dacAttenDB); err != nil {
		return nil, err
	}
	if err := ins.SetVGAAttenuation(ctx, 0, vgaAttenDB); err != nil {
		return nil, err
	}
	if err := ins.Reallocate(len(freqsHz)); err != nil {
		return nil, err
	}

	rec := &export.Record{
		FreqsHz:    append([]float64(nil), freqsHz...),
		DMAShape:   [2]int{ins.Config.FrameSamples, rf.NumChannels},
		DACAttenDB: dacAttenDB,
		VGAAttenDB: vgaAttenDB,
	}
	for idx, freq := range freqsHz {
		if _, err := ins.SetFrequency(ctx, 0, freq); err != nil {
			return nil, fmt.Errorf("unable to set frequency #%d: %w", idx, err)
		}
		frame, err := ins.Acquire(ctx, idx)
		if err != nil {
			return nil, err
		}
		rec.TData = append(rec.TData, append([]int16(nil), frame.Samples...))
		logger.Debugf(ctx, "captured %d/%d at %.3fMHz", idx+1, len(freqsHz), freq/1e6)
	}
	return rec, nil
}

func (ins *Instrument) Close() error {
	var result *multierror.Error
	if err := ins.Hardware.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	ins.locker.Lock()
	ins.buffers = nil
	ins.noise = nil
	ins.locker.Unlock()
	return result.ErrorOrNil()
}
