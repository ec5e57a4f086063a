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
	"github.com/xaionaro-go/rfcal/pkg/rf"
	"github.com/xaionaro-go/rfcal/pkg/spectral"
	"github.com/xaionaro-go/observability"
)

func main() {
	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	in := pflag.String("in", "", "an exported capture record")
	buffer := pflag.Int("buffer", -1, "the capture to analyze (default: all of them)")
	channelName := pflag.String("channel", rf.ChannelAnalog.String(), "the channel to analyze: analog, digital")
	config.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "--in is required")
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
	ch, err := rf.ParseChannel(*channelName)
	assertNoError(err)

	format := export.FormatUndefined
	if pflag.CommandLine.Changed("format") {
		format, err = cfg.ExportFormat()
		assertNoError(err)
	}
	rec, err := export.ReadFile(ctx, *in, format)
	assertNoError(err)

	indexes := []int{*buffer}
	if *buffer < 0 {
		indexes = indexes[:0]
		for idx := range rec.TData {
			indexes = append(indexes, idx)
		}
	}

	for _, idx := range indexes {
		frame, err := rec.Frame(idx)
		assertNoError(err)
		samples, err := frame.Read(ch, 0, frame.Len())
		assertNoError(err)

		sfdr, err := spectral.SFDR(samples, cfg.SFDRConfig())
		assertNoError(err)
		if err := sfdr.Err(); err != nil {
			logger.Warnf(ctx, "capture #%d: %v", idx, err)
		}
		sinad, err := spectral.SINAD(samples, cfg.Instrument.SampleRate, cfg.Spectral.KaiserBeta)
		if err != nil {
			logger.Warnf(ctx, "capture #%d: unable to estimate SINAD: %v", idx, err)
		}

		fmt.Printf("#%d %.3fMHz %s: SFDR %.2f dB (spur difference %.2f dB, saturated: %t), SINAD %.2f dB\n",
			idx, rec.FreqsHz[idx]/1e6, ch, sfdr.SFDR, sfdr.SpurDifference, sfdr.Saturated, sinad)
	}
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
