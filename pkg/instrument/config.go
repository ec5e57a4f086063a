package instrument

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

type Config struct {
	SampleRate float64
	PhaseBits  uint

	// FrameSamples is the length of a capture per channel.
	FrameSamples int

	// SettleDelay is waited after every setting and around every capture:
	// the peripherals are separate AXI slaves and their transactions may
	// be reordered.
	SettleDelay time.Duration

	// BufferBudgetBytes limits the memory of all capture buffers together.
	BufferBudgetBytes int64

	// NoiseShape is the layout of a noise-accumulator capture.
	NoiseShape capture.NoiseFrameShape
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        4.096e9,
		PhaseBits:         24,
		FrameSamples:      32 * 32768,
		SettleDelay:       5 * time.Millisecond,
		BufferBudgetBytes: 1e9,
		NoiseShape:        capture.DefaultNoiseFrameShape(),
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
	if cfg.FrameSamples <= 0 {
		result = multierror.Append(result, fmt.Errorf("%w: frame length must be positive, got %d", rf.ErrInvalidParameter, cfg.FrameSamples))
	}
	if cfg.SettleDelay < 0 {
		result = multierror.Append(result, fmt.Errorf("%w: negative settle delay %v", rf.ErrInvalidParameter, cfg.SettleDelay))
	}
	if cfg.BufferBudgetBytes <= 0 {
		result = multierror.Append(result, fmt.Errorf("%w: buffer budget must be positive, got %d", rf.ErrInvalidParameter, cfg.BufferBudgetBytes))
	}
	if cfg.NoiseShape.SampleDepth <= 0 || cfg.NoiseShape.TimestampDepth < 0 || cfg.NoiseShape.WordsPerBeat <= 0 {
		result = multierror.Append(result, fmt.Errorf("%w: invalid noise capture shape %+v", rf.ErrInvalidParameter, cfg.NoiseShape))
	}
	return result.ErrorOrNil()
}

func (cfg Config) frameBytes() int64 {
	return int64(cfg.FrameSamples) * rf.NumChannels * 2
}
