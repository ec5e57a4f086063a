package instrument

import (
	"context"
	"fmt"
	"math"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

type ADCSource string

const (
	ADCSourceAFE   = ADCSource("afe")
	ADCSourceBalun = ADCSource("balun")
)

type TriggerSource string

const (
	TriggerSourceManual  = TriggerSource("manual")
	TriggerSourceDDSAuto = TriggerSource("dds_auto")
)

const (
	// VGA packets: register address 0x02, 6-bit attenuation, the VGA
	// channel above the 16-bit address+data.
	vgaAttenuationRegister = 0x0200
	vgaDataMask            = 0x3f
	vgaChannelShift        = 16

	MaxVGAAttenuationDB = 32
	DACAttenuationStep  = 6
	MaxDACAttenuation   = 15
)

func channelSender[T any](senders []T, ch int, what string) (T, error) {
	var zero T
	if ch < 0 || ch >= len(senders) {
		return zero, fmt.Errorf("%w: there is no %s for channel %d (have %d)", rf.ErrInvalidParameter, what, ch, len(senders))
	}
	return senders[ch], nil
}

// SetFrequency programs the DDS and returns the frequency it really plays.
func (ins *Instrument) SetFrequency(ctx context.Context, ch int, hz float64) (float64, error) {
	acc := rf.PhaseAccumulator{SampleRate: ins.Config.SampleRate, Bits: ins.Config.PhaseBits}
	pinc, err := acc.Increment(hz)
	if err != nil {
		return 0, err
	}
	sender, err := channelSender(ins.Hardware.PhaseIncrement, ch, "phase increment FIFO")
	if err != nil {
		return 0, err
	}
	logger.Debugf(ctx, "setting pinc of channel %d to %d (%.3e Hz)", ch, pinc, hz)
	if err := sender.SendConfigWords(ctx, pinc); err != nil {
		return 0, fmt.Errorf("unable to set the phase increment: %w", err)
	}
	return acc.Frequency(pinc), ins.settle(ctx)
}

// SetDACAttenuation sets the coarse DAC attenuation in 6 dB steps (0..90 dB).
func (ins *Instrument) SetDACAttenuation(ctx context.Context, ch int, dB float64) error {
	scale := math.Round(dB / DACAttenuationStep)
	if math.IsNaN(scale) || scale < 0 || scale > MaxDACAttenuation {
		return fmt.Errorf("%w: cannot set attenuation less than 0dB or more than %ddB, got %v", rf.ErrInvalidParameter, DACAttenuationStep*MaxDACAttenuation, dB)
	}
	sender, err := channelSender(ins.Hardware.DACAttenuation, ch, "DAC attenuation FIFO")
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "setting cos_scale of channel %d to %d (%ddB attenuation)", ch, int(scale), DACAttenuationStep*int(scale))
	if err := sender.SendConfigWords(ctx, uint32(scale)); err != nil {
		return fmt.Errorf("unable to set the DAC attenuation: %w", err)
	}
	return ins.settle(ctx)
}

// DACScaleWord quantizes a scale factor to the 2Q16 format of the DAC
// prescaler (two's complement in 18 bits).
func DACScaleWord(scale float64) (uint32, error) {
	if math.IsNaN(scale) || math.IsInf(scale, 0) {
		return 0, fmt.Errorf("%w: cannot quantize %v to 2Q16", rf.ErrInvalidParameter, scale)
	}
	quant := int64(scale * (1 << 16))
	if quant>>16 > 1 || quant>>16 < -2 {
		return 0, fmt.Errorf("%w: cannot quantize %v to 2Q16", rf.ErrInvalidParameter, scale)
	}
	if quant < 0 {
		quant += 1 << 18
	}
	return uint32(quant), nil
}

func (ins *Instrument) SetDACScaleFactor(ctx context.Context, ch int, scale float64) error {
	word, err := DACScaleWord(scale)
	if err != nil {
		return err
	}
	sender, err := channelSender(ins.Hardware.DACScale, ch, "DAC scale FIFO")
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "setting dac_prescale scale_factor of channel %d to %v (%05x)", ch, scale, word)
	if err := sender.SendConfigWords(ctx, word); err != nil {
		return fmt.Errorf("unable to set the DAC scale factor: %w", err)
	}
	return ins.settle(ctx)
}

// VGAPacket builds the configuration word of the variable gain amplifier.
func VGAPacket(ch int, dB float64) (uint32, error) {
	atten := math.Round(dB)
	if math.IsNaN(atten) || atten < 0 || atten > MaxVGAAttenuationDB {
		return 0, fmt.Errorf("%w: attenuation %v is out of range, pick a number between 0 and %ddB", rf.ErrInvalidParameter, dB, MaxVGAAttenuationDB)
	}
	if ch < 0 || ch > 0xffff {
		return 0, fmt.Errorf("%w: invalid VGA channel %d", rf.ErrInvalidParameter, ch)
	}
	return vgaAttenuationRegister | uint32(atten)&vgaDataMask | uint32(ch)<<vgaChannelShift, nil
}

func (ins *Instrument) SetVGAAttenuation(ctx context.Context, ch int, dB float64) error {
	packet, err := VGAPacket(ch, dB)
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "setting vga attenuation of channel %d to %vdB (packet 0x%x)", ch, math.Round(dB), packet)
	if err := ins.Hardware.VGA.SendConfigWords(ctx, packet); err != nil {
		return fmt.Errorf("unable to set the VGA attenuation: %w", err)
	}
	return ins.settle(ctx)
}

func (ins *Instrument) SetADCSource(ctx context.Context, src ADCSource) error {
	var on bool
	switch src {
	case ADCSourceAFE:
	case ADCSourceBalun:
		on = true
	default:
		return fmt.Errorf("%w: invalid choice of ADC source '%s', please choose one of '%s' or '%s'", rf.ErrInvalidParameter, src, ADCSourceAFE, ADCSourceBalun)
	}
	logger.Debugf(ctx, "setting the ADC source to '%s'", src)
	if err := ins.Hardware.ADCSelect.Set(ctx, on); err != nil {
		return fmt.Errorf("unable to select the ADC source: %w", err)
	}
	return ins.settle(ctx)
}

func (ins *Instrument) SetTriggerSource(ctx context.Context, src TriggerSource) error {
	var on bool
	switch src {
	case TriggerSourceManual:
	case TriggerSourceDDSAuto:
		on = true
	default:
		return fmt.Errorf("%w: invalid choice of trigger source '%s', please choose one of '%s' or '%s'", rf.ErrInvalidParameter, src, TriggerSourceDDSAuto, TriggerSourceManual)
	}
	logger.Debugf(ctx, "setting the sample buffer trigger source to '%s'", src)
	if err := ins.Hardware.TriggerMode.Set(ctx, on); err != nil {
		return fmt.Errorf("unable to select the trigger source: %w", err)
	}
	return ins.settle(ctx)
}

// ManualTrigger pulses the capture trigger.
func (ins *Instrument) ManualTrigger(ctx context.Context) error {
	logger.Debugf(ctx, "triggering the sample buffer")
	if err := ins.Hardware.CaptureTrigger.Set(ctx, true); err != nil {
		return fmt.Errorf("unable to raise the capture trigger: %w", err)
	}
	if err := ins.Hardware.CaptureTrigger.Set(ctx, false); err != nil {
		return fmt.Errorf("unable to lower the capture trigger: %w", err)
	}
	return ins.settle(ctx)
}
