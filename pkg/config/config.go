// Package config loads the settings of the calibration tools from an
// optional config file, RFCAL_* environment variables and command line
// flags, in increasing priority.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xaionaro-go/rfcal/pkg/aligner"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/export"
	"github.com/xaionaro-go/rfcal/pkg/instrument"
	"github.com/xaionaro-go/rfcal/pkg/phase"
	"github.com/xaionaro-go/rfcal/pkg/rf"
	"github.com/xaionaro-go/rfcal/pkg/spectral"
)

const (
	Name      = "rfcal"
	EnvPrefix = "RFCAL"

	// FlagConfigFile overrides the config file search.
	FlagConfigFile = "config"
)

var SearchPaths = []string{
	"/etc/rfcal",
	"$HOME/.config/rfcal",
	".",
}

type Config struct {
	Instrument Instrument `mapstructure:"instrument"`
	Registers  Registers  `mapstructure:"registers"`
	Pipeline   Pipeline   `mapstructure:"pipeline"`
	Spectral   Spectral   `mapstructure:"spectral"`
	Export     Export     `mapstructure:"export"`
}

type Instrument struct {
	SampleRate        float64       `mapstructure:"sample_rate"`
	PhaseBits         uint          `mapstructure:"phase_bits"`
	FrameSamples      int           `mapstructure:"frame_samples"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	BufferBudgetBytes int64         `mapstructure:"buffer_budget_bytes"`

	NoiseSampleDepth    int `mapstructure:"noise_sample_depth"`
	NoiseTimestampDepth int `mapstructure:"noise_timestamp_depth"`
	NoiseWordsPerBeat   int `mapstructure:"noise_words_per_beat"`
}

// Registers are the physical addresses of the overlay peripherals.
type Registers struct {
	MemDevice  string `mapstructure:"mem_device"`
	DMADevice  string `mapstructure:"dma_device"`
	WindowSize int    `mapstructure:"window_size"`

	PhaseIncrement []int64 `mapstructure:"phase_increment"`
	DACAttenuation []int64 `mapstructure:"dac_attenuation"`
	DACScale       []int64 `mapstructure:"dac_scale"`
	VGA            int64   `mapstructure:"vga"`
	NoiseBuffer    int64   `mapstructure:"noise_buffer_config"`

	CaptureTrigger int64 `mapstructure:"capture_trigger"`
	TriggerMode    int64 `mapstructure:"trigger_mode"`
	ADCSelect      int64 `mapstructure:"adc_select"`
}

type Pipeline struct {
	OSR               int     `mapstructure:"osr"`
	CoarsePolicy      string  `mapstructure:"coarse_policy"`
	WindowSize        int     `mapstructure:"window_size"`
	Overlap           int     `mapstructure:"overlap"`
	PrefixSamples     int     `mapstructure:"prefix_samples"`
	SegmentPeriods    float64 `mapstructure:"segment_periods"`
	FineWindowPeriods float64 `mapstructure:"fine_window_periods"`
	CropPeriods       float64 `mapstructure:"crop_periods"`
}

type Spectral struct {
	MinPeakDistance    int     `mapstructure:"min_peak_distance"`
	BaselineOffsetDB   float64 `mapstructure:"baseline_offset_db"`
	SaturationMarginDB float64 `mapstructure:"saturation_margin_db"`
	KaiserBeta         float64 `mapstructure:"kaiser_beta"`
}

type Export struct {
	Format string `mapstructure:"format"`
}

func Defaults() Config {
	ins := instrument.DefaultConfig()
	hw := instrument.DefaultHardwareConfig()
	pipe := phase.DefaultConfig()
	al := aligner.DefaultParams(ins.SampleRate)
	sfdr := spectral.DefaultSFDRConfig()
	return Config{
		Instrument: Instrument{
			SampleRate:        ins.SampleRate,
			PhaseBits:         ins.PhaseBits,
			FrameSamples:      ins.FrameSamples,
			SettleDelay:       ins.SettleDelay,
			BufferBudgetBytes: ins.BufferBudgetBytes,

			NoiseSampleDepth:    ins.NoiseShape.SampleDepth,
			NoiseTimestampDepth: ins.NoiseShape.TimestampDepth,
			NoiseWordsPerBeat:   ins.NoiseShape.WordsPerBeat,
		},
		Registers: Registers{
			MemDevice:  hw.MemDevice,
			DMADevice:  hw.DMADevice,
			WindowSize: hw.WindowSize,
		},
		Pipeline: Pipeline{
			OSR:               pipe.OSR,
			WindowSize:        al.WindowSize,
			Overlap:           al.Overlap,
			PrefixSamples:     al.PrefixSamples,
			SegmentPeriods:    pipe.SegmentPeriods,
			FineWindowPeriods: pipe.FineWindowPeriods,
			CropPeriods:       pipe.CropPeriods,
		},
		Spectral: Spectral{
			MinPeakDistance:    sfdr.MinPeakDistance,
			BaselineOffsetDB:   sfdr.BaselineOffsetDB,
			SaturationMarginDB: sfdr.SaturationMarginDB,
			KaiserBeta:         spectral.DefaultSINADKaiserBeta,
		},
		Export: Export{
			Format: export.FormatParquet.String(),
		},
	}
}

// settings flattens the config into viper keys.
func (cfg Config) settings() map[string]any {
	return map[string]any{
		"instrument.sample_rate":         cfg.Instrument.SampleRate,
		"instrument.phase_bits":          cfg.Instrument.PhaseBits,
		"instrument.frame_samples":       cfg.Instrument.FrameSamples,
		"instrument.settle_delay":        cfg.Instrument.SettleDelay,
		"instrument.buffer_budget_bytes": cfg.Instrument.BufferBudgetBytes,

		"instrument.noise_sample_depth":    cfg.Instrument.NoiseSampleDepth,
		"instrument.noise_timestamp_depth": cfg.Instrument.NoiseTimestampDepth,
		"instrument.noise_words_per_beat":  cfg.Instrument.NoiseWordsPerBeat,

		"registers.mem_device":          cfg.Registers.MemDevice,
		"registers.dma_device":          cfg.Registers.DMADevice,
		"registers.window_size":         cfg.Registers.WindowSize,
		"registers.phase_increment":     cfg.Registers.PhaseIncrement,
		"registers.dac_attenuation":     cfg.Registers.DACAttenuation,
		"registers.dac_scale":           cfg.Registers.DACScale,
		"registers.vga":                 cfg.Registers.VGA,
		"registers.noise_buffer_config": cfg.Registers.NoiseBuffer,
		"registers.capture_trigger":     cfg.Registers.CaptureTrigger,
		"registers.trigger_mode":        cfg.Registers.TriggerMode,
		"registers.adc_select":          cfg.Registers.ADCSelect,

		"pipeline.osr":                 cfg.Pipeline.OSR,
		"pipeline.coarse_policy":       cfg.Pipeline.CoarsePolicy,
		"pipeline.window_size":         cfg.Pipeline.WindowSize,
		"pipeline.overlap":             cfg.Pipeline.Overlap,
		"pipeline.prefix_samples":      cfg.Pipeline.PrefixSamples,
		"pipeline.segment_periods":     cfg.Pipeline.SegmentPeriods,
		"pipeline.fine_window_periods": cfg.Pipeline.FineWindowPeriods,
		"pipeline.crop_periods":        cfg.Pipeline.CropPeriods,

		"spectral.min_peak_distance":    cfg.Spectral.MinPeakDistance,
		"spectral.baseline_offset_db":   cfg.Spectral.BaselineOffsetDB,
		"spectral.saturation_margin_db": cfg.Spectral.SaturationMarginDB,
		"spectral.kaiser_beta":          cfg.Spectral.KaiserBeta,

		"export.format": cfg.Export.Format,
	}
}

// flagKeys maps the flags of RegisterFlags to viper keys.
var flagKeys = map[string]string{
	"sample-rate":   "instrument.sample_rate",
	"phase-bits":    "instrument.phase_bits",
	"frame-samples": "instrument.frame_samples",
	"settle-delay":  "instrument.settle_delay",
	"osr":           "pipeline.osr",
	"coarse-policy": "pipeline.coarse_policy",
	"kaiser-beta":   "spectral.kaiser_beta",
	"format":        "export.format",
}

// RegisterFlags adds the flags which override the most used settings.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String(FlagConfigFile, "", "Path to the config file (default: "+Name+".{toml,yaml,json} in "+strings.Join(SearchPaths, ", ")+")")
	flags.Float64("sample-rate", d.Instrument.SampleRate, "ADC/DAC sample rate in Hz")
	flags.Uint("phase-bits", d.Instrument.PhaseBits, "Width of the DDS phase accumulator")
	flags.Int("frame-samples", d.Instrument.FrameSamples, "Capture length per channel")
	flags.Duration("settle-delay", d.Instrument.SettleDelay, "Delay after every hardware setting")
	flags.Int("osr", d.Pipeline.OSR, "Oversampling ratio of the delay and phase estimators")
	flags.String("coarse-policy", d.Pipeline.CoarsePolicy, "Coarse alignment policy: "+strings.Join(aligner.Names(), ", ")+" (default: the best available)")
	flags.Float64("kaiser-beta", d.Spectral.KaiserBeta, "Kaiser window beta of the SINAD periodogram")
	flags.String("format", d.Export.Format, "Export format: parquet, json.zst")
}

// Load reads the configuration. flags may be nil; only the flags which
// were set explicitly override the other sources.
func Load(ctx context.Context, flags *pflag.FlagSet) (_ *Config, _err error) {
	logger.Debugf(ctx, "Load")
	defer func() { logger.Debugf(ctx, "/Load: %v", _err) }()

	v := viper.New()
	for key, value := range Defaults().settings() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var configFile string
	if flags != nil {
		if f := flags.Lookup(FlagConfigFile); f != nil {
			configFile = f.Value.String()
		}
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("unable to bind flag '%s' to '%s': %w", name, key, err)
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(Name)
		for _, path := range SearchPaths {
			v.AddConfigPath(path)
		}
	}
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		logger.Debugf(ctx, "using config file '%s'", v.ConfigFileUsed())
	case configFile == "" && errors.As(err, &notFound):
		logger.Debugf(ctx, "no config file found, using the defaults")
	default:
		return nil, fmt.Errorf("unable to read the config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to parse the config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg Config) PipelineConfig() phase.Config {
	return phase.Config{
		SampleRate:        cfg.Instrument.SampleRate,
		PhaseBits:         cfg.Instrument.PhaseBits,
		OSR:               cfg.Pipeline.OSR,
		CropPeriods:       cfg.Pipeline.CropPeriods,
		SegmentPeriods:    cfg.Pipeline.SegmentPeriods,
		FineWindowPeriods: cfg.Pipeline.FineWindowPeriods,
	}
}

func (cfg Config) AlignerParams() aligner.Params {
	return aligner.Params{
		SampleRate:    cfg.Instrument.SampleRate,
		PrefixSamples: cfg.Pipeline.PrefixSamples,
		WindowSize:    cfg.Pipeline.WindowSize,
		Overlap:       cfg.Pipeline.Overlap,
	}
}

func (cfg Config) InstrumentConfig() instrument.Config {
	return instrument.Config{
		SampleRate:        cfg.Instrument.SampleRate,
		PhaseBits:         cfg.Instrument.PhaseBits,
		FrameSamples:      cfg.Instrument.FrameSamples,
		SettleDelay:       cfg.Instrument.SettleDelay,
		BufferBudgetBytes: cfg.Instrument.BufferBudgetBytes,
		NoiseShape: capture.NoiseFrameShape{
			SampleDepth:    cfg.Instrument.NoiseSampleDepth,
			TimestampDepth: cfg.Instrument.NoiseTimestampDepth,
			WordsPerBeat:   cfg.Instrument.NoiseWordsPerBeat,
		},
	}
}

func (cfg Config) HardwareConfig() instrument.HardwareConfig {
	return instrument.HardwareConfig{
		MemDevice:           cfg.Registers.MemDevice,
		DMADevice:           cfg.Registers.DMADevice,
		WindowSize:          cfg.Registers.WindowSize,
		PhaseIncrementBases: cfg.Registers.PhaseIncrement,
		DACAttenuationBases: cfg.Registers.DACAttenuation,
		DACScaleBases:       cfg.Registers.DACScale,
		VGABase:             cfg.Registers.VGA,
		NoiseBufferBase:     cfg.Registers.NoiseBuffer,
		CaptureTriggerBase:  cfg.Registers.CaptureTrigger,
		TriggerModeBase:     cfg.Registers.TriggerMode,
		ADCSelectBase:       cfg.Registers.ADCSelect,
	}
}

func (cfg Config) SFDRConfig() spectral.SFDRConfig {
	return spectral.SFDRConfig{
		MinPeakDistance:    cfg.Spectral.MinPeakDistance,
		BaselineOffsetDB:   cfg.Spectral.BaselineOffsetDB,
		SaturationMarginDB: cfg.Spectral.SaturationMarginDB,
	}
}

func (cfg Config) ExportFormat() (export.Format, error) {
	if cfg.Export.Format == "" {
		return export.FormatUndefined, nil
	}
	return export.ParseFormat(cfg.Export.Format)
}

// Validate checks everything except the register addresses, which are
// only needed to open the real hardware.
func (cfg Config) Validate() error {
	var result *multierror.Error
	for _, err := range []error{
		cfg.InstrumentConfig().Validate(),
		cfg.PipelineConfig().Validate(),
		cfg.AlignerParams().Validate(),
	} {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if cfg.Pipeline.WindowSize <= 0 || cfg.Pipeline.Overlap < 0 || cfg.Pipeline.Overlap >= cfg.Pipeline.WindowSize {
		result = multierror.Append(result, fmt.Errorf("%w: invalid spectrogram window %d with overlap %d", rf.ErrInvalidParameter, cfg.Pipeline.WindowSize, cfg.Pipeline.Overlap))
	}
	if cfg.Spectral.MinPeakDistance < 1 {
		result = multierror.Append(result, fmt.Errorf("%w: minimal peak distance must be positive, got %d", rf.ErrInvalidParameter, cfg.Spectral.MinPeakDistance))
	}
	if cfg.Spectral.KaiserBeta < 0 {
		result = multierror.Append(result, fmt.Errorf("%w: negative Kaiser beta %v", rf.ErrInvalidParameter, cfg.Spectral.KaiserBeta))
	}
	if _, err := cfg.ExportFormat(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
