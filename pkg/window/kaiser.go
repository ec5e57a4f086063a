// Package window provides the Kaiser window used by the resampler
// prototype filter and the SINAD periodogram.
package window

import (
	"math"
)

// BesselI0 is the zeroth order modified Bessel function of the first kind.
func BesselI0(x float64) float64 {
	q := x * x / 4
	sum, term := 1.0, 1.0
	for k := 1; k < 500; k++ {
		term *= q / float64(k*k)
		sum += term
		if term < sum*1e-17 {
			break
		}
	}
	return sum
}

// Kaiser returns a symmetric Kaiser window of n points.
func Kaiser(n int, beta float64) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	denom := BesselI0(beta)
	m := float64(n - 1)
	for i := range w {
		r := 2*float64(i)/m - 1
		w[i] = BesselI0(beta*math.Sqrt(math.Max(0, 1-r*r))) / denom
	}
	return w
}

// KaiserAt evaluates a Kaiser window of half-width halfWidth at offset x
// from its center; it is zero outside of [-halfWidth, halfWidth].
func KaiserAt(x, halfWidth, beta float64) float64 {
	if math.Abs(x) > halfWidth {
		return 0
	}
	r := x / halfWidth
	return BesselI0(beta*math.Sqrt(1-r*r)) / BesselI0(beta)
}

// KaiserLeakageHalfWidth is the half-width (in bins) of the main lobe of a
// Kaiser window's spectrum.
func KaiserLeakageHalfWidth(beta float64) int {
	return int(math.Ceil(2 * math.Sqrt(1+(beta/math.Pi)*(beta/math.Pi))))
}
