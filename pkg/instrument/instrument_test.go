package instrument_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/rfcal/pkg/aligner"
	"github.com/xaionaro-go/rfcal/pkg/aligner/implementations/zerocrossing"
	"github.com/xaionaro-go/rfcal/pkg/instrument"
	"github.com/xaionaro-go/rfcal/pkg/loopback"
	"github.com/xaionaro-go/rfcal/pkg/phase"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

type recordingSender struct {
	words    []uint32
	closeErr error
	closed   int
}

func (s *recordingSender) SendConfigWords(_ context.Context, words ...uint32) error {
	s.words = append(s.words, words...)
	return nil
}

func (s *recordingSender) Close() error {
	s.closed++
	return s.closeErr
}

func newSimulatedHardware(sim *loopback.Simulator) instrument.Hardware {
	return instrument.SimulatedHardware(sim, testConfig().NoiseShape)
}

func testConfig() instrument.Config {
	cfg := instrument.DefaultConfig()
	cfg.FrameSamples = 8192
	cfg.SettleDelay = 0
	return cfg
}

func newTestInstrument(t *testing.T, hw instrument.Hardware, osr int) *instrument.Instrument {
	pcfg := phase.DefaultConfig()
	pcfg.OSR = osr
	pipeline, err := phase.NewPipeline(pcfg, zerocrossing.New(aligner.DefaultParams(pcfg.SampleRate)))
	require.NoError(t, err)
	ins, err := instrument.New(testConfig(), hw, pipeline, 1)
	require.NoError(t, err)
	return ins
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	hw := newSimulatedHardware(loopback.NewSimulator(4.096e9, 24))
	pinc := &recordingSender{}
	dacAtten := &recordingSender{}
	dacScale := &recordingSender{}
	vga := &recordingSender{}
	hw.PhaseIncrement = []instrument.ConfigSender{pinc}
	hw.DACAttenuation = []instrument.ConfigSender{dacAtten}
	hw.DACScale = []instrument.ConfigSender{dacScale, dacScale}
	hw.VGA = vga
	ins := newTestInstrument(t, hw, 4)

	t.Run("frequency", func(t *testing.T) {
		actual, err := ins.SetFrequency(ctx, 0, 100e6)
		require.NoError(t, err)
		assert.Equal(t, 100e6, actual)
		actual, err = ins.SetFrequency(ctx, 0, 100e6+100)
		require.NoError(t, err)
		assert.Equal(t, 100e6, actual)
		assert.Equal(t, []uint32{409600, 409600}, pinc.words)

		_, err = ins.SetFrequency(ctx, 1, 100e6)
		assert.ErrorIs(t, err, rf.ErrInvalidParameter)
		_, err = ins.SetFrequency(ctx, 0, -1)
		assert.ErrorIs(t, err, rf.ErrInvalidParameter)
	})

	t.Run("dac_attenuation", func(t *testing.T) {
		require.NoError(t, ins.SetDACAttenuation(ctx, 0, 12))
		require.NoError(t, ins.SetDACAttenuation(ctx, 0, 89))
		require.NoError(t, ins.SetDACAttenuation(ctx, 0, 0))
		assert.Equal(t, []uint32{2, 15, 0}, dacAtten.words)
		assert.ErrorIs(t, ins.SetDACAttenuation(ctx, 0, 94), rf.ErrInvalidParameter)
		assert.ErrorIs(t, ins.SetDACAttenuation(ctx, 0, -4), rf.ErrInvalidParameter)
	})

	t.Run("vga_attenuation", func(t *testing.T) {
		require.NoError(t, ins.SetVGAAttenuation(ctx, 0, 18))
		require.NoError(t, ins.SetVGAAttenuation(ctx, 1, 32.4))
		assert.Equal(t, []uint32{0x0212, 0x10220}, vga.words)
		assert.ErrorIs(t, ins.SetVGAAttenuation(ctx, 0, 33), rf.ErrInvalidParameter)
		assert.ErrorIs(t, ins.SetVGAAttenuation(ctx, 0, -1), rf.ErrInvalidParameter)
	})

	t.Run("dac_scale", func(t *testing.T) {
		require.NoError(t, ins.SetDACScaleFactor(ctx, 1, 0.5))
		require.NoError(t, ins.SetDACScaleFactor(ctx, 1, -1))
		require.NoError(t, ins.SetDACScaleFactor(ctx, 0, 1.99))
		assert.Equal(t, []uint32{0x08000, 0x30000, 130416}, dacScale.words)
		assert.ErrorIs(t, ins.SetDACScaleFactor(ctx, 0, 2), rf.ErrInvalidParameter)
		assert.ErrorIs(t, ins.SetDACScaleFactor(ctx, 0, -2.5), rf.ErrInvalidParameter)
		assert.ErrorIs(t, ins.SetDACScaleFactor(ctx, 2, 1), rf.ErrInvalidParameter)
	})

	t.Run("sources", func(t *testing.T) {
		require.NoError(t, ins.SetADCSource(ctx, instrument.ADCSourceBalun))
		require.NoError(t, ins.SetTriggerSource(ctx, instrument.TriggerSourceDDSAuto))
		require.NoError(t, ins.ManualTrigger(ctx))
		assert.ErrorIs(t, ins.SetADCSource(ctx, "dac"), rf.ErrInvalidParameter)
		assert.ErrorIs(t, ins.SetTriggerSource(ctx, "auto"), rf.ErrInvalidParameter)
	})
}

func TestDACScaleWord(t *testing.T) {
	for _, tc := range []struct {
		scale float64
		word  uint32
	}{
		{1, 0x10000},
		{-2, 0x20000},
		{-0.5, 0x38000},
		{0, 0},
	} {
		word, err := instrument.DACScaleWord(tc.scale)
		require.NoError(t, err)
		assert.Equal(t, tc.word, word, "%v", tc.scale)
	}
	_, err := instrument.DACScaleWord(math.NaN())
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)
}

func TestSettleIsCancelable(t *testing.T) {
	hw := newSimulatedHardware(loopback.NewSimulator(4.096e9, 24))
	ins := newTestInstrument(t, hw, 4)
	ins.Config.SettleDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := ins.SetVGAAttenuation(ctx, 0, 18)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReallocate(t *testing.T) {
	ins := newTestInstrument(t, newSimulatedHardware(loopback.NewSimulator(4.096e9, 24)), 4)
	require.NoError(t, ins.Reallocate(3))
	require.Len(t, ins.Buffers(), 3)
	for _, buf := range ins.Buffers() {
		assert.Equal(t, 8192, buf.Len())
	}

	ins.Config.BufferBudgetBytes = 4 * 8192 * 4
	require.NoError(t, ins.Reallocate(4))
	assert.ErrorIs(t, ins.Reallocate(5), rf.ErrInvalidParameter)
	assert.ErrorIs(t, ins.Reallocate(0), rf.ErrInvalidParameter)
	assert.Len(t, ins.Buffers(), 4)

	_, err := ins.Acquire(context.Background(), 4)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)
}

func TestMeasurePhase(t *testing.T) {
	sim := loopback.NewSimulator(4.096e9, 24)
	sim.Delay = 2.5
	sim.SwitchAt = 1505
	ins := newTestInstrument(t, newSimulatedHardware(sim), 64)

	tones := rf.ToneSpec{ReferenceHz: 64e6, TestHz: 768e6}
	m, err := ins.MeasurePhase(context.Background(), tones)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, m.Delay.Samples(), 0.05, spew.Sdump(m))

	expected := 2 * math.Pi * tones.TestHz / 4.096e9 * (3.5 - m.Delay.Samples())
	assert.InDelta(t, expected, m.Phase.Phase, 0.03, spew.Sdump(m))
}

func TestFrequencySweep(t *testing.T) {
	ctx := context.Background()
	ins := newTestInstrument(t, newSimulatedHardware(loopback.NewSimulator(4.096e9, 24)), 4)

	freqs := []float64{100e6, 200e6, 300e6}
	rec, err := ins.FrequencySweep(ctx, 12, 18, freqs)
	require.NoError(t, err)
	require.NoError(t, rec.Validate())
	assert.Equal(t, freqs, rec.FreqsHz)
	assert.Equal(t, [2]int{8192, 2}, rec.DMAShape)
	assert.Equal(t, 12.0, rec.DACAttenDB)
	assert.Len(t, ins.Buffers(), 3)
	for idx := range freqs {
		frame, err := rec.Frame(idx)
		require.NoError(t, err)
		assert.NotZero(t, frame.At(100, rf.ChannelDigital)|frame.At(101, rf.ChannelDigital))
	}

	_, err = ins.FrequencySweep(ctx, 12, 18, nil)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)
	_, err = ins.FrequencySweep(ctx, 120, 18, freqs)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)
}

func TestClose(t *testing.T) {
	hw := newSimulatedHardware(loopback.NewSimulator(4.096e9, 24))
	failing := &recordingSender{closeErr: errors.New("boom")}
	shared := &recordingSender{}
	hw.PhaseIncrement = []instrument.ConfigSender{failing}
	hw.DACAttenuation = []instrument.ConfigSender{shared}
	hw.VGA = shared
	ins := newTestInstrument(t, hw, 4)

	err := ins.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, shared.closed)
	assert.Equal(t, 1, failing.closed)
}

func TestNewInvalid(t *testing.T) {
	pipeline, err := phase.NewPipeline(phase.DefaultConfig(), zerocrossing.New(aligner.DefaultParams(4.096e9)))
	require.NoError(t, err)

	_, err = instrument.New(testConfig(), instrument.Hardware{}, pipeline, 1)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)

	_, err = instrument.New(testConfig(), newSimulatedHardware(loopback.NewSimulator(4.096e9, 24)), nil, 1)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)
}

func TestOpenHardware(t *testing.T) {
	ctx := context.Background()

	t.Run("unconfigured", func(t *testing.T) {
		_, err := instrument.OpenHardware(ctx, instrument.DefaultHardwareConfig())
		assert.ErrorIs(t, err, rf.ErrInvalidParameter)
	})

	t.Run("missing_device", func(t *testing.T) {
		cfg := instrument.DefaultHardwareConfig()
		cfg.MemDevice = filepath.Join(t.TempDir(), "mem")
		cfg.PhaseIncrementBases = []int64{0x80000000}
		cfg.DACAttenuationBases = []int64{0x80010000}
		cfg.VGABase = 0x80020000
		cfg.CaptureTriggerBase = 0x80030000
		cfg.TriggerModeBase = 0x80040000
		cfg.ADCSelectBase = 0x80050000
		require.NoError(t, cfg.Validate())
		_, err := instrument.OpenHardware(ctx, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pinc0")
	})
}

func TestAcquireNoise(t *testing.T) {
	ctx := context.Background()
	sim := loopback.NewSimulator(4.096e9, 24)
	sim.NoiseStdDev = 10
	ins := newTestInstrument(t, newSimulatedHardware(sim), 4)

	require.NoError(t, ins.ConfigureNoiseBuffer(ctx, 0x10, 0x20))
	assert.Equal(t, []uint32{0x10, 0x20}, sim.NoiseBufferConfig())

	frame, err := ins.AcquireNoise(ctx)
	require.NoError(t, err)
	shape := testConfig().NoiseShape
	require.Len(t, frame.Words, (shape.SampleDepth+shape.TimestampDepth)*shape.WordsPerBeat)
	var sum float64
	for _, e := range frame.Energies() {
		sum += float64(e)
	}
	assert.InDelta(t, 100, sum/float64(len(frame.Energies())), 5)
	assert.Equal(t, uint16(1), frame.Timestamps()[1])

	t.Run("without_noise_tracker", func(t *testing.T) {
		hw := newSimulatedHardware(loopback.NewSimulator(4.096e9, 24))
		hw.NoiseBufferConfig = nil
		ins := newTestInstrument(t, hw, 4)
		assert.ErrorIs(t, ins.ConfigureNoiseBuffer(ctx, 1), rf.ErrInvalidParameter)
	})

	t.Run("closed", func(t *testing.T) {
		require.NoError(t, ins.Close())
		_, err := ins.AcquireNoise(ctx)
		assert.ErrorIs(t, err, rf.ErrInvalidParameter)
	})
}
