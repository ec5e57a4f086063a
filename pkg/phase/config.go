// Package phase estimates the delay and the phase difference between the
// analog and the digital channels of a DDS loopback capture.
package phase

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

type Config struct {
	SampleRate float64

	// PhaseBits is the width of the DDS phase accumulator; it defines
	// which test frequency the DDS really plays.
	PhaseBits uint

	// OSR is the oversampling ratio used for sub-sample resolution.
	OSR int

	// CropPeriods is how many Nyquist periods are dropped from each end of
	// every upsampled window, where the filter sees the zero padding.
	CropPeriods float64

	// SegmentPeriods is the length of the phase estimation window in test
	// tone periods.
	SegmentPeriods float64

	// FineWindowPeriods is the length of the reference-only window the fine
	// delay is correlated over, in reference tone periods. It is clamped to
	// the samples preceding the transition; 2·OSR covers all of them.
	FineWindowPeriods float64
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        4.096e9,
		PhaseBits:         24,
		OSR:               1024,
		CropPeriods:       5,
		SegmentPeriods:    8,
		FineWindowPeriods: 2,
	}
}

func (cfg Config) Validate() error {
	var result *multierror.Error
	if !(cfg.SampleRate > 0) {
		result = multierror.Append(result, fmt.Errorf("%w: sample rate must be positive, got %v", rf.ErrInvalidParameter, cfg.SampleRate))
	}
	if cfg.PhaseBits == 0 || cfg.PhaseBits > 32 {
		result = multierror.Append(result, fmt.Errorf("%w: phase accumulator width must be in [1, 32], got %d", rf.ErrInvalidParameter, cfg.PhaseBits))
	}
	if cfg.OSR < 1 {
		result = multierror.Append(result, fmt.Errorf("%w: OSR must be at least 1, got %d", rf.ErrInvalidParameter, cfg.OSR))
	}
	if cfg.CropPeriods < 0 {
		result = multierror.Append(result, fmt.Errorf("%w: crop periods must not be negative, got %v", rf.ErrInvalidParameter, cfg.CropPeriods))
	}
	if cfg.SegmentPeriods < 2 {
		result = multierror.Append(result, fmt.Errorf("%w: the phase window must span at least 2 periods, got %v", rf.ErrInvalidParameter, cfg.SegmentPeriods))
	}
	if !(cfg.FineWindowPeriods > 0) {
		result = multierror.Append(result, fmt.Errorf("%w: the fine delay window must be positive, got %v", rf.ErrInvalidParameter, cfg.FineWindowPeriods))
	}
	return result.ErrorOrNil()
}

func (cfg Config) accumulator() rf.PhaseAccumulator {
	return rf.PhaseAccumulator{
		SampleRate: cfg.SampleRate,
		Bits:       cfg.PhaseBits,
	}
}

// cropSamples is how many upsampled samples are dropped from each tail.
func (cfg Config) cropSamples() int {
	return int(math.Round(cfg.CropPeriods * rf.PeriodSamples(cfg.SampleRate, cfg.SampleRate/2, cfg.OSR)))
}

// cropInputSamples is cropSamples in input samples, rounded up.
func (cfg Config) cropInputSamples() int {
	return int(math.Ceil(cfg.CropPeriods * rf.PeriodSamples(cfg.SampleRate, cfg.SampleRate/2, 1)))
}

func cropTails(x []float64, crop int) []float64 {
	if len(x) <= 2*crop {
		return nil
	}
	return x[crop : len(x)-crop]
}
