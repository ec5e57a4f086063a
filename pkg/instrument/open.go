package instrument

import (
	"context"
	"fmt"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/rfcal/pkg/axififo"
	"github.com/xaionaro-go/rfcal/pkg/axigpio"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/mmio"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

const DefaultRegisterWindowSize = 0x10000

// HardwareConfig locates the peripherals of the overlay in the physical
// address space. Per-channel bases are indexed by the DDS channel.
type HardwareConfig struct {
	MemDevice  string
	DMADevice  string
	WindowSize int

	PhaseIncrementBases []int64
	DACAttenuationBases []int64
	DACScaleBases       []int64
	VGABase             int64

	// NoiseBufferBase is the noise tracker configuration FIFO; zero if
	// the design has none.
	NoiseBufferBase int64

	CaptureTriggerBase int64
	TriggerModeBase    int64
	ADCSelectBase      int64
}

func DefaultHardwareConfig() HardwareConfig {
	return HardwareConfig{
		MemDevice:  mmio.DefaultDevice,
		DMADevice:  "/dev/axidma",
		WindowSize: DefaultRegisterWindowSize,
	}
}

func (cfg HardwareConfig) Validate() error {
	var result *multierror.Error
	if cfg.MemDevice == "" {
		result = multierror.Append(result, fmt.Errorf("%w: no memory device", rf.ErrInvalidParameter))
	}
	if cfg.DMADevice == "" {
		result = multierror.Append(result, fmt.Errorf("%w: no DMA device", rf.ErrInvalidParameter))
	}
	if cfg.NoiseBufferBase < 0 {
		result = multierror.Append(result, fmt.Errorf("%w: invalid noise buffer FIFO address %d", rf.ErrInvalidParameter, cfg.NoiseBufferBase))
	}
	if cfg.WindowSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("%w: register window size must be positive, got %d", rf.ErrInvalidParameter, cfg.WindowSize))
	}
	if len(cfg.PhaseIncrementBases) == 0 {
		result = multierror.Append(result, fmt.Errorf("%w: no phase increment FIFO address", rf.ErrInvalidParameter))
	}
	if len(cfg.DACAttenuationBases) == 0 {
		result = multierror.Append(result, fmt.Errorf("%w: no DAC attenuation FIFO address", rf.ErrInvalidParameter))
	}
	for name, base := range map[string]int64{
		"VGA FIFO":        cfg.VGABase,
		"capture trigger": cfg.CaptureTriggerBase,
		"trigger mode":    cfg.TriggerModeBase,
		"ADC select":      cfg.ADCSelectBase,
	} {
		if base <= 0 {
			result = multierror.Append(result, fmt.Errorf("%w: no %s address", rf.ErrInvalidParameter, name))
		}
	}
	return result.ErrorOrNil()
}

type hardwareOpener struct {
	cfg     HardwareConfig
	opened  Hardware
	closers []interface{ Close() error }
}

func (o *hardwareOpener) fifo(ctx context.Context, name string, base int64) (*axififo.TxFIFO, error) {
	w, err := mmio.Open(o.cfg.MemDevice, base, o.cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("unable to open FIFO '%s': %w", name, err)
	}
	f := axififo.New(name, w)
	o.closers = append(o.closers, f)
	if err := f.Reset(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func (o *hardwareOpener) fifos(ctx context.Context, name string, bases []int64) ([]ConfigSender, error) {
	var result []ConfigSender
	for ch, base := range bases {
		f, err := o.fifo(ctx, fmt.Sprintf("%s%d", name, ch), base)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, nil
}

func (o *hardwareOpener) gpio(ctx context.Context, name string, base int64) (*axigpio.Switch, error) {
	w, err := mmio.Open(o.cfg.MemDevice, base, o.cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("unable to open GPIO '%s': %w", name, err)
	}
	s, err := axigpio.New(name, w, 0)
	if err != nil {
		w.Close()
		return nil, err
	}
	o.closers = append(o.closers, s)
	if err := s.MakeOutput(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (o *hardwareOpener) open(ctx context.Context) error {
	var err error
	hw := &o.opened
	if hw.PhaseIncrement, err = o.fifos(ctx, "pinc", o.cfg.PhaseIncrementBases); err != nil {
		return err
	}
	if hw.DACAttenuation, err = o.fifos(ctx, "dac_atten", o.cfg.DACAttenuationBases); err != nil {
		return err
	}
	if hw.DACScale, err = o.fifos(ctx, "dac_scale", o.cfg.DACScaleBases); err != nil {
		return err
	}
	if hw.VGA, err = o.fifo(ctx, "vga", o.cfg.VGABase); err != nil {
		return err
	}
	if o.cfg.NoiseBufferBase > 0 {
		if hw.NoiseBufferConfig, err = o.fifo(ctx, "noise_buf_cfg", o.cfg.NoiseBufferBase); err != nil {
			return err
		}
	}
	if hw.CaptureTrigger, err = o.gpio(ctx, "capture_trigger", o.cfg.CaptureTriggerBase); err != nil {
		return err
	}
	if hw.TriggerMode, err = o.gpio(ctx, "trigger_mode", o.cfg.TriggerModeBase); err != nil {
		return err
	}
	if hw.ADCSelect, err = o.gpio(ctx, "adc_select", o.cfg.ADCSelectBase); err != nil {
		return err
	}
	dma, err := os.Open(o.cfg.DMADevice)
	if err != nil {
		return fmt.Errorf("unable to open the DMA device '%s': %w", o.cfg.DMADevice, err)
	}
	a := capture.NewReaderAcquirer(dma)
	o.closers = append(o.closers, a)
	hw.Acquirer = a
	return nil
}

// OpenHardware maps the register windows of the peripherals, resets the
// FIFOs, configures the GPIO bits as outputs and opens the DMA device.
// Everything opened so far is closed on failure.
func OpenHardware(ctx context.Context, cfg HardwareConfig) (_ Hardware, _err error) {
	logger.Debugf(ctx, "OpenHardware: %#+v", cfg)
	defer func() { logger.Debugf(ctx, "/OpenHardware: %v", _err) }()

	if err := cfg.Validate(); err != nil {
		return Hardware{}, err
	}
	o := &hardwareOpener{cfg: cfg}
	if err := o.open(ctx); err != nil {
		result := multierror.Append(nil, err)
		for _, c := range o.closers {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return Hardware{}, result.ErrorOrNil()
	}
	return o.opened, nil
}
