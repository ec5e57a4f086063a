package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "github.com/xaionaro-go/rfcal/pkg/aligner/implementations/zerocrossing"
	"github.com/xaionaro-go/rfcal/pkg/export"
	"github.com/xaionaro-go/rfcal/pkg/instrument"
	"github.com/xaionaro-go/rfcal/pkg/loopback"
	"github.com/xaionaro-go/rfcal/pkg/phase"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

const testConfigFile = `
[instrument]
sample_rate = 2.048e9
settle_delay = "1ms"

[registers]
phase_increment = [2147483648, 2147549184]
dac_attenuation = [2147614720]
vga = 2147680256

[pipeline]
osr = 256
coarse_policy = "spectrogram"
`

func writeConfig(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "rfcal.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigFile), 0600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, phase.DefaultConfig(), cfg.PipelineConfig())
	assert.Equal(t, instrument.DefaultConfig(), cfg.InstrumentConfig())
	assert.Equal(t, instrument.DefaultHardwareConfig(), cfg.HardwareConfig())

	format, err := cfg.ExportFormat()
	require.NoError(t, err)
	assert.Equal(t, export.FormatParquet, format)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(ctx, nil)
		require.NoError(t, err)
		d := Defaults()
		assert.Equal(t, d.PipelineConfig(), cfg.PipelineConfig(), spew.Sdump(cfg))
		assert.Equal(t, d.InstrumentConfig(), cfg.InstrumentConfig(), spew.Sdump(cfg))
		assert.Equal(t, d.AlignerParams(), cfg.AlignerParams())
		assert.Equal(t, d.Spectral, cfg.Spectral)
		assert.Equal(t, d.Export, cfg.Export)
		assert.Empty(t, cfg.Registers.PhaseIncrement)
	})

	t.Run("file", func(t *testing.T) {
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		RegisterFlags(flags)
		require.NoError(t, flags.Parse([]string{"--config", writeConfig(t)}))

		cfg, err := Load(ctx, flags)
		require.NoError(t, err)
		assert.Equal(t, 2.048e9, cfg.Instrument.SampleRate)
		assert.Equal(t, time.Millisecond, cfg.Instrument.SettleDelay)
		assert.Equal(t, 256, cfg.Pipeline.OSR)
		assert.Equal(t, "spectrogram", cfg.Pipeline.CoarsePolicy)
		assert.Equal(t, []int64{0x80000000, 0x80010000}, cfg.Registers.PhaseIncrement)
		assert.Equal(t, int64(0x80030000), cfg.Registers.VGA)
		assert.Equal(t, Defaults().Instrument.FrameSamples, cfg.Instrument.FrameSamples)
		assert.Equal(t, 2.048e9, cfg.AlignerParams().SampleRate)
	})

	t.Run("priority", func(t *testing.T) {
		t.Setenv("RFCAL_PIPELINE_OSR", "512")
		t.Setenv("RFCAL_INSTRUMENT_PHASE_BITS", "20")

		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		RegisterFlags(flags)
		require.NoError(t, flags.Parse([]string{"--config", writeConfig(t), "--osr", "128"}))

		cfg, err := Load(ctx, flags)
		require.NoError(t, err)
		assert.Equal(t, 128, cfg.Pipeline.OSR)
		assert.Equal(t, uint(20), cfg.Instrument.PhaseBits)
		assert.Equal(t, 2.048e9, cfg.Instrument.SampleRate)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("RFCAL_PIPELINE_OSR", "0")
		_, err := Load(ctx, nil)
		assert.ErrorIs(t, err, rf.ErrInvalidParameter)
	})

	t.Run("missing_file", func(t *testing.T) {
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		RegisterFlags(flags)
		require.NoError(t, flags.Parse([]string{"--config", filepath.Join(t.TempDir(), "absent.toml")}))
		_, err := Load(ctx, flags)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Pipeline.Overlap = cfg.Pipeline.WindowSize
	cfg.Spectral.MinPeakDistance = 0
	cfg.Export.Format = "mat"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)
	assert.Contains(t, err.Error(), "3 errors")
}

func TestOpenInstrument(t *testing.T) {
	ctx := context.Background()
	cfg := Defaults()
	cfg.Instrument.FrameSamples = 8192
	cfg.Instrument.SettleDelay = 0
	cfg.Pipeline.CoarsePolicy = "absent"
	_, err := cfg.OpenInstrument(ctx, loopback.NewSimulator(cfg.Instrument.SampleRate, cfg.Instrument.PhaseBits), 1)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)

	cfg.Pipeline.CoarsePolicy = "zerocrossing"
	ins, err := cfg.OpenInstrument(ctx, loopback.NewSimulator(cfg.Instrument.SampleRate, cfg.Instrument.PhaseBits), 2)
	require.NoError(t, err)
	assert.Len(t, ins.Buffers(), 2)
	require.NoError(t, ins.Close())

	_, err = cfg.OpenInstrument(ctx, nil, 1)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)
}
