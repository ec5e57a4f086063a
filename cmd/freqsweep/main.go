package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/rfcal/pkg/config"
	"github.com/xaionaro-go/rfcal/pkg/export"
	"github.com/xaionaro-go/rfcal/pkg/loopback"
	"github.com/xaionaro-go/observability"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	out := pflag.String("out", "", "the file to export the captures to")
	dacAtten := pflag.Float64("dac-atten", 0, "DAC attenuation in dB (0-90, 6dB steps)")
	vgaAtten := pflag.Float64("vga-atten", 18, "VGA attenuation in dB (0-32)")
	freqs := pflag.Float64Slice("freqs", []float64{10e6, 100e6, 500e6, 1000e6}, "comma-separated frequencies in Hz")
	simulate := pflag.Bool("simulate", false, "use the simulated loopback instead of the hardware")
	simNoise := pflag.Float64("sim-noise", 1, "[simulate] standard deviation of the added noise in LSB")
	config.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	if *out == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		pflag.Usage()
		os.Exit(2)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	cfg, err := config.Load(ctx, pflag.CommandLine)
	assertNoError(err)
	format, err := cfg.ExportFormat()
	assertNoError(err)
	if !pflag.CommandLine.Changed("format") {
		if guessed, err := export.FormatFromPath(*out); err == nil {
			format = guessed
		}
	}

	var sim *loopback.Simulator
	if *simulate {
		sim = loopback.NewSimulator(cfg.Instrument.SampleRate, cfg.Instrument.PhaseBits)
		sim.NoiseStdDev = *simNoise
	}

	ins, err := cfg.OpenInstrument(ctx, sim, len(*freqs))
	assertNoError(err)
	defer func() {
		if err := ins.Close(); err != nil {
			logger.Error(ctx, err)
		}
	}()

	rec, err := ins.FrequencySweep(ctx, *dacAtten, *vgaAtten, *freqs)
	assertNoError(err)

	assertNoError(export.WriteFile(ctx, *out, rec, format))
	logger.Infof(ctx, "exported %d captures to '%s'", len(rec.TData), *out)
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
