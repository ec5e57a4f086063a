package phase

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/rfcal/pkg/aligner"
	"github.com/xaionaro-go/rfcal/pkg/aligner/implementations/zerocrossing"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/loopback"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

const (
	sampleRate = 4.096e9
	switchAt   = 1505
)

var tones = rf.ToneSpec{ReferenceHz: 64e6, TestHz: 768e6}

// angleDistance is the shortest distance between two angles on the circle.
func angleDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	return math.Min(d, 2*math.Pi-d)
}

func testConfig(osr int) Config {
	cfg := DefaultConfig()
	cfg.OSR = osr
	return cfg
}

func newTestPipeline(t testing.TB, osr int) *Pipeline {
	a, err := aligner.New(zerocrossing.Name, aligner.DefaultParams(sampleRate))
	require.NoError(t, err)
	p, err := NewPipeline(testConfig(osr), a)
	require.NoError(t, err)
	return p
}

func synthesize(t testing.TB, modify func(*loopback.SynthParams)) *capture.Frame {
	params := loopback.DefaultSynthParams(sampleRate, tones)
	params.SwitchAt = switchAt
	if modify != nil {
		modify(&params)
	}
	frame, err := loopback.Synthesize(params)
	require.NoError(t, err)
	return frame
}

// knownCoarse is a coarse alignment as the zero-crossing policy would report it.
func knownCoarse(delay float64) aligner.Result {
	var r aligner.Result
	r.Intersect[rf.ChannelDigital] = switchAt
	r.Intersect[rf.ChannelAnalog] = math.Round(switchAt + delay + rf.DACSampleHoldOffset)
	r.Uncertainty = 64
	return r
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.OSR = 0
	cfg.SegmentPeriods = 1
	cfg.PhaseBits = 40
	cfg.FineWindowPeriods = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)
	assert.Contains(t, err.Error(), "4 errors")

	assert.Equal(t, 10*1024, DefaultConfig().cropSamples())
	assert.Equal(t, 10, DefaultConfig().cropInputSamples())
}

func TestDelayEstimate(t *testing.T) {
	for _, tc := range []struct {
		lag      int
		whole    int
		residual int
	}{
		{lag: 0, whole: 0, residual: 0},
		{lag: 160, whole: 2, residual: 32},
		{lag: -160, whole: -3, residual: 32},
		{lag: -64, whole: -1, residual: 0},
	} {
		t.Run(fmt.Sprint(tc.lag), func(t *testing.T) {
			d := DelayEstimate{Lag: tc.lag, OSR: 64}
			assert.Equal(t, tc.whole, d.Whole())
			assert.Equal(t, tc.residual, d.Residual())
			assert.Equal(t, float64(tc.lag)/64, d.Samples())
		})
	}
}

func TestFineDelay(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, 64)
	for _, delay := range []float64{2.5, 0, -3.25, 7.75} {
		t.Run(fmt.Sprint(delay), func(t *testing.T) {
			frame := synthesize(t, func(params *loopback.SynthParams) {
				params.Delay = delay
			})
			d, err := p.FineDelay(ctx, frame, tones, knownCoarse(delay))
			require.NoError(t, err)
			assert.Equal(t, 64, d.OSR)
			assert.InDelta(t, delay, d.Samples(), 0.05, spew.Sdump(d))
		})
	}
}

func TestFineDelayWindow(t *testing.T) {
	ctx := context.Background()
	a, err := aligner.New(zerocrossing.Name, aligner.DefaultParams(sampleRate))
	require.NoError(t, err)

	const delay = 2.5
	frame := synthesize(t, func(params *loopback.SynthParams) {
		params.Delay = delay
	})
	for _, tc := range []struct {
		name      string
		periods   float64
		tolerance float64
	}{
		{name: "reference_periods", periods: 16, tolerance: 0.05},
		{name: "pre_transition", periods: 2 * 64, tolerance: 0.1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(64)
			cfg.FineWindowPeriods = tc.periods
			p, err := NewPipeline(cfg, a)
			require.NoError(t, err)

			var windowLength int
			p.Hook = func(ctx context.Context, stage Stage, arrays map[string][]float64) {
				if stage == StageFineWindow {
					windowLength = len(arrays[rf.ChannelDigital.String()])
				}
			}
			d, err := p.FineDelay(ctx, frame, tones, knownCoarse(delay))
			require.NoError(t, err)
			assert.InDelta(t, delay, d.Samples(), tc.tolerance, spew.Sdump(d))
			assert.Equal(t, min(int(math.Round(tc.periods*64)), switchAt), windowLength)
		})
	}
}

func TestFineDelayInvariance(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, 64)
	const delay = 2.5

	base, err := p.FineDelay(ctx, synthesize(t, func(params *loopback.SynthParams) {
		params.Delay = delay
	}), tones, knownCoarse(delay))
	require.NoError(t, err)

	for name, modify := range map[string]func(*loopback.SynthParams){
		"dc_offset": func(params *loopback.SynthParams) {
			params.AnalogOffset = 3000
			params.DigitalOffset = -2000
		},
		"scale": func(params *loopback.SynthParams) {
			params.AnalogAmplitude = 2000
			params.DigitalAmplitude = 12000
		},
	} {
		t.Run(name, func(t *testing.T) {
			frame := synthesize(t, func(params *loopback.SynthParams) {
				params.Delay = delay
				modify(params)
			})
			d, err := p.FineDelay(ctx, frame, tones, knownCoarse(delay))
			require.NoError(t, err)
			assert.InDelta(t, base.Lag, d.Lag, 2)
		})
	}
}

func TestFineDelayInsufficientSignal(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, 64)

	t.Run("silence", func(t *testing.T) {
		_, err := p.FineDelay(ctx, capture.NewFrame(8192), tones, knownCoarse(2.5))
		assert.ErrorIs(t, err, rf.ErrInsufficientSignal)
	})

	t.Run("no_reference_tone", func(t *testing.T) {
		coarse := knownCoarse(2.5)
		coarse.Intersect[rf.ChannelDigital] = 0
		_, err := p.FineDelay(ctx, synthesize(t, nil), tones, coarse)
		assert.ErrorIs(t, err, rf.ErrInsufficientSignal)
	})
}

func TestEstimatePhase(t *testing.T) {
	ctx := context.Background()
	const osr = 64
	p := newTestPipeline(t, osr)

	holdPhase := 2 * math.Pi * tones.TestHz / sampleRate * rf.DACSampleHoldOffset
	for _, delay := range []int{0, 3, -2, 17} {
		for _, extra := range []float64{0, 2.0, 5.5} {
			t.Run(fmt.Sprintf("delay%d_phase%.1f", delay, extra), func(t *testing.T) {
				frame := synthesize(t, func(params *loopback.SynthParams) {
					params.Delay = float64(delay)
					params.TestPhase = extra
				})
				e, err := p.EstimatePhase(ctx, frame, tones, knownCoarse(float64(delay)), DelayEstimate{Lag: delay * osr, OSR: osr})
				require.NoError(t, err)
				assert.GreaterOrEqual(t, e.Phase, 0.0)
				assert.Less(t, e.Phase, 2*math.Pi)
				assert.Equal(t, tones.TestHz, e.TestHzActual)

				expected := rf.WrapPhase(holdPhase + extra)
				assert.Less(t, angleDistance(expected, e.Phase), 0.03, "expected %v, got %s", expected, spew.Sdump(e))
			})
		}
	}
}

func TestEstimatePhaseInsufficientSignal(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, 64)
	delay := DelayEstimate{Lag: 0, OSR: 64}

	t.Run("silence", func(t *testing.T) {
		_, err := p.EstimatePhase(ctx, capture.NewFrame(8192), tones, knownCoarse(0), delay)
		assert.ErrorIs(t, err, rf.ErrInsufficientSignal)
	})

	t.Run("out_of_capture", func(t *testing.T) {
		coarse := knownCoarse(0)
		coarse.Intersect[rf.ChannelDigital] = 8100
		_, err := p.EstimatePhase(ctx, synthesize(t, nil), tones, coarse, delay)
		assert.ErrorIs(t, err, rf.ErrInsufficientSignal)
	})

	t.Run("osr_mismatch", func(t *testing.T) {
		_, err := p.EstimatePhase(ctx, synthesize(t, nil), tones, knownCoarse(0), DelayEstimate{OSR: 8})
		assert.ErrorIs(t, err, rf.ErrInvalidParameter)
	})
}

func TestEstimatePhaseOfUncompensatedDelay(t *testing.T) {
	ctx := context.Background()
	const osr = 256
	p := newTestPipeline(t, osr)

	testPeriod := sampleRate / tones.TestHz
	for _, delay := range []int{1, 2, 3, 4, 7, 13, 20} {
		t.Run(fmt.Sprint(delay), func(t *testing.T) {
			frame := synthesize(t, func(params *loopback.SynthParams) {
				params.Delay = float64(delay - rf.DACSampleHoldOffset)
			})
			e, err := p.EstimatePhase(ctx, frame, tones, knownCoarse(0), DelayEstimate{OSR: osr})
			require.NoError(t, err)

			expected := rf.WrapPhase(2 * math.Pi * tones.TestHz * float64(delay) / sampleRate)
			assert.Less(t, angleDistance(expected, e.Phase), 1e-2, "delay %d (%.2f periods): expected %v, got %s", delay, float64(delay)/testPeriod, expected, spew.Sdump(e))
		})
	}
}

func TestMeasurePhase(t *testing.T) {
	if testing.Short() {
		t.Skip("full-OSR measurement is slow")
	}
	ctx := context.Background()
	p := newTestPipeline(t, DefaultConfig().OSR)

	stages := map[Stage]int{}
	p.Hook = func(ctx context.Context, stage Stage, arrays map[string][]float64) {
		stages[stage]++
		for name, arr := range arrays {
			assert.NotEmpty(t, arr, "%s/%s", stage, name)
		}
	}

	e2eTones := rf.ToneSpec{ReferenceHz: 10e6, TestHz: 100e6}
	refPeriod := sampleRate / e2eTones.ReferenceHz
	const (
		injectedDelay = 2.5
		e2eSwitchAt   = 1440
	)
	for _, extra := range []float64{0, 1.0} {
		t.Run(fmt.Sprint(extra), func(t *testing.T) {
			params := loopback.DefaultSynthParams(sampleRate, e2eTones)
			params.SwitchAt = e2eSwitchAt
			params.Delay = injectedDelay
			params.TestPhase = extra
			frame, err := loopback.Synthesize(params)
			require.NoError(t, err)

			m, err := p.MeasurePhase(ctx, frame, e2eTones)
			require.NoError(t, err)

			assert.InDelta(t, e2eSwitchAt, m.Coarse.Intersect[rf.ChannelDigital], refPeriod, spew.Sdump(m))
			assert.InDelta(t, injectedDelay+rf.DACSampleHoldOffset, m.Coarse.CoarseDelay(), refPeriod, spew.Sdump(m))
			assert.InDelta(t, injectedDelay, m.Delay.Samples(), 0.05, spew.Sdump(m))

			// after the delay is compensated only the DAC sample-and-hold remains
			expected := rf.WrapPhase(2*math.Pi*e2eTones.TestHz/sampleRate*rf.DACSampleHoldOffset + extra)
			assert.Less(t, angleDistance(expected, m.Phase.Phase), 0.01, spew.Sdump(m))
		})
	}

	for _, stage := range []Stage{StageCoarse, StageFineWindow, StageFineXCorr, StagePhaseWindow, StagePhaseXCorr} {
		assert.Equal(t, 2, stages[stage], stage)
	}
}

func TestMeasurePhaseSilence(t *testing.T) {
	p := newTestPipeline(t, 64)
	_, err := p.MeasurePhase(context.Background(), capture.NewFrame(8192), tones)
	assert.ErrorIs(t, err, rf.ErrInsufficientSignal)
}

func TestNewPipeline(t *testing.T) {
	_, err := NewPipeline(DefaultConfig(), nil)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)

	cfg := DefaultConfig()
	cfg.OSR = -1
	_, err = NewPipeline(cfg, zerocrossing.New(aligner.DefaultParams(sampleRate)))
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)
}

func BenchmarkMeasurePhase(b *testing.B) {
	p := newTestPipeline(b, DefaultConfig().OSR)
	frame := synthesize(b, func(params *loopback.SynthParams) {
		params.Delay = 2.5
	})
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := p.MeasurePhase(ctx, frame, tones)
		if err != nil {
			b.Fatal(err)
		}
	}
}
