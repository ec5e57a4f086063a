// Package resampler implements band-limited polyphase upsampling by an
// integer ratio.
//
// Every channel passed through the same Upsampler sees the same filter and
// the same zero-phase alignment (output sample k*Ratio lands on input
// sample k), so a lag measured between two upsampled channels divided by
// Ratio is the lag between the original channels.
package resampler

import (
	"fmt"
	"math"

	"github.com/xaionaro-go/rfcal/pkg/rf"
	"github.com/xaionaro-go/rfcal/pkg/window"
)

const (
	// DefaultHalfTaps is the prototype filter half-length in input samples.
	DefaultHalfTaps = 10

	// DefaultKaiserBeta shapes the prototype filter window.
	DefaultKaiserBeta = 5.0
)

type Config struct {
	Ratio      int
	HalfTaps   int
	KaiserBeta float64
}

type Upsampler struct {
	Config
	// phases[p][t+HalfTaps] is the weight of input sample j-t in output
	// sample j*Ratio+p.
	phases [][]float64
}

func NewUpsampler(ratio int) (*Upsampler, error) {
	return NewUpsamplerWithConfig(Config{
		Ratio:      ratio,
		HalfTaps:   DefaultHalfTaps,
		KaiserBeta: DefaultKaiserBeta,
	})
}

func NewUpsamplerWithConfig(cfg Config) (*Upsampler, error) {
	if cfg.Ratio < 1 {
		return nil, fmt.Errorf("%w: upsampling ratio must be at least 1, got %d", rf.ErrInvalidParameter, cfg.Ratio)
	}
	if cfg.HalfTaps < 1 {
		return nil, fmt.Errorf("%w: the filter needs at least one tap per side, got %d", rf.ErrInvalidParameter, cfg.HalfTaps)
	}
	u := &Upsampler{Config: cfg}
	u.init()
	return u, nil
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

func (u *Upsampler) init() {
	r := float64(u.Config.Ratio)
	halfLen := float64(u.HalfTaps * u.Config.Ratio)
	u.phases = make([][]float64, u.Config.Ratio)
	for p := range u.phases {
		coeffs := make([]float64, 2*u.HalfTaps+1)
		var sum float64
		for t := -u.HalfTaps; t <= u.HalfTaps; t++ {
			x := float64(p + t*u.Config.Ratio)
			c := sinc(x/r) * window.KaiserAt(x, halfLen, u.KaiserBeta)
			coeffs[t+u.HalfTaps] = c
			sum += c
		}
		// unit DC gain per phase: a constant input stays exactly constant
		for i := range coeffs {
			coeffs[i] /= sum
		}
		u.phases[p] = coeffs
	}
}

func (u *Upsampler) Ratio() int {
	return u.Config.Ratio
}

// EdgeSamples is how many input samples at each end of a block are
// affected by the zero padding outside of it.
func (u *Upsampler) EdgeSamples() int {
	return u.HalfTaps
}

// Upsample returns len(x)*Ratio samples. x is not modified.
func (u *Upsampler) Upsample(x []float64) []float64 {
	if u.Config.Ratio == 1 {
		return append([]float64(nil), x...)
	}
	n := len(x)
	out := make([]float64, n*u.Config.Ratio)
	h := u.HalfTaps
	for j := 0; j < n; j++ {
		base := j * u.Config.Ratio
		interior := j-h >= 0 && j+h < n
		for p, coeffs := range u.phases {
			var acc float64
			if interior {
				for t, c := range coeffs {
					acc += c * x[j-(t-h)]
				}
			} else {
				for t, c := range coeffs {
					idx := j - (t - h)
					if idx < 0 || idx >= n {
						continue
					}
					acc += c * x[idx]
				}
			}
			out[base+p] = acc
		}
	}
	return out
}
