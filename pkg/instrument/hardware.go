package instrument

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// ConfigSender delivers configuration words to a peripheral, blocking
// until it has room for them. Sending zero words is forbidden.
type ConfigSender interface {
	SendConfigWords(ctx context.Context, words ...uint32) error
}

// Switch is a single-bit GPIO output.
type Switch interface {
	Set(ctx context.Context, on bool) error
}

// Hardware is the set of peripherals of the loopback design. The
// per-channel senders are indexed by the DDS channel.
type Hardware struct {
	PhaseIncrement []ConfigSender
	DACAttenuation []ConfigSender
	DACScale       []ConfigSender
	VGA            ConfigSender

	// NoiseBufferConfig configures the noise tracker; optional.
	NoiseBufferConfig ConfigSender

	CaptureTrigger Switch
	TriggerMode    Switch
	ADCSelect      Switch

	Acquirer capture.Acquirer

	// NoiseAcquirer takes noise-accumulator captures; Acquirer is used if nil.
	NoiseAcquirer capture.Acquirer
}

func (hw Hardware) noiseAcquirer() capture.Acquirer {
	if hw.NoiseAcquirer != nil {
		return hw.NoiseAcquirer
	}
	return hw.Acquirer
}

func (hw Hardware) Validate() error {
	var result *multierror.Error
	if len(hw.PhaseIncrement) == 0 {
		result = multierror.Append(result, fmt.Errorf("%w: no phase increment FIFO", rf.ErrInvalidParameter))
	}
	if len(hw.DACAttenuation) == 0 {
		result = multierror.Append(result, fmt.Errorf("%w: no DAC attenuation FIFO", rf.ErrInvalidParameter))
	}
	if hw.VGA == nil {
		result = multierror.Append(result, fmt.Errorf("%w: no VGA FIFO", rf.ErrInvalidParameter))
	}
	if hw.CaptureTrigger == nil || hw.TriggerMode == nil || hw.ADCSelect == nil {
		result = multierror.Append(result, fmt.Errorf("%w: a GPIO switch is missing", rf.ErrInvalidParameter))
	}
	if hw.Acquirer == nil {
		result = multierror.Append(result, fmt.Errorf("%w: no DMA acquirer", rf.ErrInvalidParameter))
	}
	return result.ErrorOrNil()
}

func (hw Hardware) components() []any {
	var result []any
	for _, s := range hw.PhaseIncrement {
		result = append(result, s)
	}
	for _, s := range hw.DACAttenuation {
		result = append(result, s)
	}
	for _, s := range hw.DACScale {
		result = append(result, s)
	}
	return append(result, hw.VGA, hw.NoiseBufferConfig, hw.CaptureTrigger, hw.TriggerMode, hw.ADCSelect, hw.Acquirer, hw.NoiseAcquirer)
}

// Close closes every component which is an io.Closer, each one only once.
func (hw Hardware) Close() error {
	var result *multierror.Error
	closed := map[io.Closer]struct{}{}
	for _, c := range hw.components() {
		closer, ok := c.(io.Closer)
		if !ok {
			continue
		}
		if _, ok := closed[closer]; ok {
			continue
		}
		closed[closer] = struct{}{}
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to close %T: %w", c, err))
		}
	}
	return result.ErrorOrNil()
}
