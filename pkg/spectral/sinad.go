package spectral

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/xaionaro-go/rfcal/pkg/rf"
	"github.com/xaionaro-go/rfcal/pkg/window"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// DefaultSINADKaiserBeta gives sidelobes far below any realistic noise floor.
const DefaultSINADKaiserBeta = 38.0

// Periodogram returns the one-sided power spectral density of the
// mean-removed samples tapered with a periodic Kaiser window, and the
// frequencies of its bins.
func Periodogram(samples []float64, sampleRate, beta float64) (freqs, psd []float64, _ error) {
	n := len(samples)
	if n < 4 {
		return nil, nil, fmt.Errorf("%w: %d samples is not enough for a periodogram", rf.ErrInsufficientSignal, n)
	}
	if !(sampleRate > 0) {
		return nil, nil, fmt.Errorf("%w: sample rate must be positive, got %v", rf.ErrInvalidParameter, sampleRate)
	}

	taper := window.Kaiser(n+1, beta)[:n]
	mean := stat.Mean(samples, nil)
	x := make([]float64, n)
	for i, v := range samples {
		x[i] = (v - mean) * taper[i]
	}
	scale := 1 / (sampleRate * floats.Dot(taper, taper))

	coeffs := fourier.NewFFT(n).Coefficients(nil, x)
	freqs = make([]float64, len(coeffs))
	psd = make([]float64, len(coeffs))
	for i, c := range coeffs {
		freqs[i] = float64(i) * sampleRate / float64(n)
		m := cmplx.Abs(c)
		psd[i] = m * m * scale
		isNyquist := n%2 == 0 && i == len(coeffs)-1
		if i != 0 && !isNyquist {
			psd[i] *= 2
		}
	}
	return freqs, psd, nil
}

// SINAD returns the signal to noise-and-distortion ratio in dB: the power
// within the leakage width of the strongest component against the power of
// everything else except DC.
func SINAD(samples []float64, sampleRate, beta float64) (float64, error) {
	freqs, psd, err := Periodogram(samples, sampleRate, beta)
	if err != nil {
		return 0, err
	}
	psd[0] = 0
	fundamental := floats.MaxIdx(psd)
	halfWidth := window.KaiserLeakageHalfWidth(beta)

	signal := make([]float64, len(psd))
	noise := append([]float64(nil), psd...)
	for i := max(fundamental-halfWidth, 0); i <= min(fundamental+halfWidth, len(psd)-1); i++ {
		signal[i] = psd[i]
		noise[i] = 0
	}

	signalPower := integrate.Trapezoidal(freqs, signal)
	noisePower := integrate.Trapezoidal(freqs, noise)
	if !(signalPower > 0) || !(noisePower > 0) {
		return 0, fmt.Errorf("%w: signal power %v, noise power %v", rf.ErrInsufficientSignal, signalPower, noisePower)
	}
	return 10 * math.Log10(signalPower/noisePower), nil
}
