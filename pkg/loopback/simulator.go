package loopback

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// Role is the peripheral a configuration FIFO feeds.
type Role int

const (
	RolePhaseIncrement = Role(iota)
	RoleDACAttenuation
	RoleDACScale
	RoleVGA
	RoleNoiseBufferConfig
)

func (r Role) String() string {
	switch r {
	case RolePhaseIncrement:
		return "pinc"
	case RoleDACAttenuation:
		return "cos_scale"
	case RoleDACScale:
		return "dac_scale"
	case RoleVGA:
		return "lmh6401"
	case RoleNoiseBufferConfig:
		return "noise_buf_cfg"
	}
	return fmt.Sprintf("unknown_role_%d", int(r))
}

// SwitchRole is the function of a GPIO output.
type SwitchRole int

const (
	SwitchCaptureTrigger = SwitchRole(iota)
	SwitchTriggerMode
	SwitchADCSelect
)

const (
	dacScaleOne       = 1 << 16
	vgaRegisterAtten  = 0x02
	maxDACAttenuation = 15
)

// Simulator behaves like the loopback design: a single-channel DDS whose
// output is captured both digitally and through the analog path.
type Simulator struct {
	SampleRate float64
	PhaseBits  uint

	// FullScale is the DDS amplitude at 0 dB of attenuation.
	FullScale float64

	// AnalogGainDB is the gain of the analog front-end before the VGA.
	AnalogGainDB float64

	// SwitchAt is where the captured frequency switch happens when the
	// capture is triggered by the DDS.
	SwitchAt float64

	Delay       float64
	TestPhase   float64
	NoiseStdDev float64
	Seed        int64

	locker      sync.Mutex
	prevPinc    uint32
	pinc        uint32
	dacAtten    uint32
	dacScale    uint32
	vgaAtten    uint32
	triggerAuto bool
	balun       bool
	trigger     bool
	triggers    int
	captures    int64

	noiseConfig    []uint32
	noiseTimestamp uint16
}

func NewSimulator(sampleRate float64, phaseBits uint) *Simulator {
	return &Simulator{
		SampleRate:   sampleRate,
		PhaseBits:    phaseBits,
		FullScale:    16000,
		AnalogGainDB: 18,
		SwitchAt:     1500,
		dacScale:     dacScaleOne,
	}
}

func (s *Simulator) accumulator() rf.PhaseAccumulator {
	return rf.PhaseAccumulator{SampleRate: s.SampleRate, Bits: s.PhaseBits}
}

// Sender is the configuration FIFO of one peripheral of the simulator.
type Sender struct {
	*Simulator
	Role Role
}

func (s *Simulator) Sender(role Role) *Sender {
	return &Sender{Simulator: s, Role: role}
}

func (s *Sender) SendConfigWords(ctx context.Context, words ...uint32) error {
	if len(words) == 0 {
		return fmt.Errorf("%w: refusing to send an empty packet to '%s'", rf.ErrInvalidParameter, s.Role)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", rf.ErrHardwareTimeout, err)
	}
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.Role == RoleNoiseBufferConfig {
		logger.Tracef(ctx, "'%s' <- %X", s.Role, words)
		s.noiseConfig = append([]uint32(nil), words...)
		return nil
	}
	for _, word := range words {
		logger.Tracef(ctx, "'%s' <- 0x%08X", s.Role, word)
		switch s.Role {
		case RolePhaseIncrement:
			s.prevPinc, s.pinc = s.pinc, word
		case RoleDACAttenuation:
			if word > maxDACAttenuation {
				return fmt.Errorf("%w: DAC attenuation code %d", rf.ErrInvalidParameter, word)
			}
			s.dacAtten = word
		case RoleDACScale:
			s.dacScale = word
		case RoleVGA:
			if (word>>8)&0xff != vgaRegisterAtten {
				return fmt.Errorf("%w: unknown VGA register in packet 0x%X", rf.ErrInvalidParameter, word)
			}
			s.vgaAtten = word & 0x3f
		default:
			return fmt.Errorf("%w: unknown role %s", rf.ErrInvalidParameter, s.Role)
		}
	}
	return nil
}

// GPIO is a switch of the simulator.
type GPIO struct {
	*Simulator
	Role SwitchRole
}

func (s *Simulator) Switch(role SwitchRole) *GPIO {
	return &GPIO{Simulator: s, Role: role}
}

func (g *GPIO) Set(ctx context.Context, on bool) error {
	g.locker.Lock()
	defer g.locker.Unlock()
	switch g.Role {
	case SwitchCaptureTrigger:
		if on && !g.trigger {
			g.triggers++
		}
		g.trigger = on
	case SwitchTriggerMode:
		g.triggerAuto = on
	case SwitchADCSelect:
		g.balun = on
	default:
		return fmt.Errorf("%w: unknown switch %d", rf.ErrInvalidParameter, g.Role)
	}
	return nil
}

// ManualTriggers returns how many times the capture was triggered manually.
func (s *Simulator) ManualTriggers() int {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.triggers
}

// NoiseBufferConfig returns the last packet sent to the noise tracker.
func (s *Simulator) NoiseBufferConfig() []uint32 {
	s.locker.Lock()
	defer s.locker.Unlock()
	return append([]uint32(nil), s.noiseConfig...)
}

func dacScaleValue(word uint32) float64 {
	v := float64(word) / dacScaleOne
	if word >= 1<<17 {
		v -= 4
	}
	return v
}

// Acquire renders a capture of the current state into dst as the DMA
// engine would deliver it.
func (s *Simulator) Acquire(ctx context.Context, dst []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", rf.ErrHardwareTimeout, err)
	}
	frameBytes := rf.NumChannels * int(capture.SampleFormatS16LE.Size())
	if len(dst) == 0 || len(dst)%frameBytes != 0 {
		return fmt.Errorf("%w: the buffer of %d bytes is not a whole amount of frames", rf.ErrTransferFailure, len(dst))
	}

	s.locker.Lock()
	acc := s.accumulator()
	params := SynthParams{
		SampleRate: s.SampleRate,
		Samples:    len(dst) / frameBytes,
		Tones: rf.ToneSpec{
			ReferenceHz: acc.Frequency(s.pinc),
			TestHz:      acc.Frequency(s.pinc),
		},
		Delay:       s.Delay,
		TestPhase:   s.TestPhase,
		NoiseStdDev: s.NoiseStdDev,
		Seed:        s.Seed + s.captures,
	}
	triggerAuto := s.triggerAuto
	if triggerAuto {
		params.Tones.ReferenceHz = acc.Frequency(s.prevPinc)
		params.SwitchAt = s.SwitchAt
	}
	params.DigitalAmplitude = s.FullScale * math.Ldexp(1, -int(s.dacAtten)) * dacScaleValue(s.dacScale)
	params.AnalogAmplitude = params.DigitalAmplitude
	if !s.balun {
		params.AnalogAmplitude *= math.Pow(10, (s.AnalogGainDB-float64(s.vgaAtten))/20)
	}
	s.captures++
	s.locker.Unlock()

	logger.Debugf(ctx, "simulating a capture of %d samples: %s, trigger_auto:%v", params.Samples, params.Tones, triggerAuto)
	copy(dst, render(params).Encode(capture.SampleFormatS16LE))
	return nil
}
