// Package xcorr computes cross-correlations of real signals in the
// frequency domain.
package xcorr

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	dspwindow "github.com/mjibson/go-dsp/window"
	"github.com/xaionaro-go/rfcal/pkg/rf"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// correlateSpectra returns IFFT(A * conj(D)) for the zero-padded inputs,
// i.e. r[l] = sum_k a[k+l]*d[k] with l taken modulo n.
func correlateSpectra(a, d []float64, n int) []complex128 {
	pa := make([]float64, n)
	pd := make([]float64, n)
	copy(pa, a)
	copy(pd, d)
	fa := fft.FFTReal(pa)
	fd := fft.FFTReal(pd)
	for i := range fa {
		fa[i] *= complex(real(fd[i]), -imag(fd[i]))
	}
	return fft.IFFT(fa)
}

// Linear returns the full linear cross-correlation r[l] = sum_k a[k+l]*d[k]
// for l in [-(len(d)-1), len(a)-1]; element i holds lag i-(len(d)-1).
//
// If a is d delayed by s samples, the peak is at lag s.
func Linear(a, d []float64) []float64 {
	if len(a) == 0 || len(d) == 0 {
		return nil
	}
	size := len(a) + len(d) - 1
	n := nextPowerOfTwo(size)
	r := correlateSpectra(a, d, n)
	out := make([]float64, size)
	for i := range out {
		lag := i - (len(d) - 1)
		out[i] = real(r[(lag+n)%n])
	}
	return out
}

// ArgMaxLinear returns the lag of the largest element of Linear(a, d),
// given len(d).
func ArgMaxLinear(r []float64, lenD int) int {
	return floats.MaxIdx(r) - (lenD - 1)
}

// Circular returns r[l] = sum_k a[(k+l) mod n]*d[k] for equally long a and d.
// It is exact for windows spanning a whole number of periods.
func Circular(a, d []float64) ([]float64, error) {
	if len(a) != len(d) {
		return nil, fmt.Errorf("%w: circular correlation needs equal lengths: %d != %d", rf.ErrInvalidParameter, len(a), len(d))
	}
	if len(a) == 0 {
		return nil, fmt.Errorf("%w: empty window", rf.ErrInsufficientSignal)
	}
	fa := fft.FFTReal(a)
	fd := fft.FFTReal(d)
	for i := range fa {
		fa[i] *= complex(real(fd[i]), -imag(fd[i]))
	}
	r := fft.IFFT(fa)
	out := make([]float64, len(r))
	for i, v := range r {
		out[i] = real(v)
	}
	return out, nil
}

// ArgMaxCircular returns the lag of the largest element of a circular
// correlation, mapped into (-n/2, n/2].
func ArgMaxCircular(r []float64) int {
	idx := floats.MaxIdx(r)
	if idx > len(r)/2 {
		idx -= len(r)
	}
	return idx
}

// Normalize makes x zero-mean and unit-variance in place.
func Normalize(x []float64) error {
	if len(x) < 2 {
		return fmt.Errorf("%w: cannot normalize %d samples", rf.ErrInsufficientSignal, len(x))
	}
	mean, std := stat.MeanStdDev(x, nil)
	if !(std > 0) || math.IsInf(std, 0) {
		return fmt.Errorf("%w: the window has no variance (std=%v)", rf.ErrInsufficientSignal, std)
	}
	floats.AddConst(-mean, x)
	floats.Scale(1/std, x)
	return nil
}

// HannTaper multiplies x by a symmetric Hann window in place.
func HannTaper(x []float64) {
	if len(x) < 2 {
		return
	}
	floats.Mul(x, dspwindow.Hann(len(x)))
}
