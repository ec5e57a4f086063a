package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	_ "github.com/xaionaro-go/rfcal/pkg/aligner/implementations/spectrogram"
	_ "github.com/xaionaro-go/rfcal/pkg/aligner/implementations/zerocrossing"
	"github.com/xaionaro-go/rfcal/pkg/config"
	"github.com/xaionaro-go/rfcal/pkg/loopback"
	"github.com/xaionaro-go/rfcal/pkg/rf"
	"github.com/xaionaro-go/observability"
)

func main() {
	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	refHz := pflag.Float64("ref-hz", 10e6, "reference tone frequency in Hz")
	testHz := pflag.Float64("test-hz", 100e6, "test tone frequency in Hz")
	simulate := pflag.Bool("simulate", false, "use the simulated loopback instead of the hardware")
	simDelay := pflag.Float64("sim-delay", 2.5, "[simulate] analog path delay in samples")
	simPhase := pflag.Float64("sim-phase", 0, "[simulate] extra phase of the analog test tone in radians")
	simNoise := pflag.Float64("sim-noise", 0, "[simulate] standard deviation of the added noise in LSB")
	config.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

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

	var sim *loopback.Simulator
	if *simulate {
		sim = loopback.NewSimulator(cfg.Instrument.SampleRate, cfg.Instrument.PhaseBits)
		sim.Delay = *simDelay
		sim.TestPhase = *simPhase
		sim.NoiseStdDev = *simNoise
	}

	ins, err := cfg.OpenInstrument(ctx, sim, 1)
	assertNoError(err)
	defer func() {
		if err := ins.Close(); err != nil {
			logger.Error(ctx, err)
		}
	}()

	m, err := ins.MeasurePhase(ctx, rf.ToneSpec{ReferenceHz: *refHz, TestHz: *testHz})
	assertNoError(err)
	logger.Debugf(ctx, "coarse alignment: %v", m.Coarse)

	fmt.Printf("test frequency: %.6f MHz\n", m.Phase.TestHzActual/1e6)
	fmt.Printf("delay: %.4f samples\n", m.Delay.Samples())
	fmt.Printf("phase: %.6f rad (%.3f deg)\n", m.Phase.Phase, m.Phase.Degrees())
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
