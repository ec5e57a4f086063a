// Package spectral estimates the spectral quality of a captured tone.
package spectral

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/xaionaro-go/rfcal/pkg/rf"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// minMagnitude keeps log10 finite for empty bins.
	minMagnitude = 1e-20
)

type SFDRConfig struct {
	// MinPeakDistance is the minimal distance between spectral peaks in bins.
	MinPeakDistance int

	// BaselineOffsetDB is how far above the mean of the spectrum (in dB)
	// a peak has to stand.
	BaselineOffsetDB float64

	// SaturationMarginDB is how far above the baseline the strongest
	// component has to stand for the estimate to be trusted.
	SaturationMarginDB float64
}

func DefaultSFDRConfig() SFDRConfig {
	return SFDRConfig{
		MinPeakDistance:    1000,
		BaselineOffsetDB:   20,
		SaturationMarginDB: 20,
	}
}

type SFDRResult struct {
	// SFDR is the distance between the strongest and the second strongest
	// spectral components in dB; zero if Saturated.
	SFDR float64

	// SpurDifference is the distance between the two strongest peaks in
	// dB, reported even when Saturated.
	SpurDifference float64

	// Saturated means no component stands out of the spectrum enough:
	// the signal is too clipped (or absent) to trust the SFDR.
	Saturated bool

	BaselineDB float64
	Peaks      []Peak
}

func (r SFDRResult) Err() error {
	if r.Saturated {
		return fmt.Errorf("%w: no component is more than the margin above the baseline at %.1f dB", rf.ErrSaturationDetected, r.BaselineDB)
	}
	return nil
}

// MagnitudeDB returns the magnitude spectrum in dB, without the DC and the
// last (Nyquist) bins.
func MagnitudeDB(samples []float64) ([]float64, error) {
	if len(samples) < 4 {
		return nil, fmt.Errorf("%w: %d samples is not enough for a spectrum", rf.ErrInsufficientSignal, len(samples))
	}
	coeffs := fourier.NewFFT(len(samples)).Coefficients(nil, samples)
	coeffs = coeffs[1 : len(coeffs)-1]
	result := make([]float64, len(coeffs))
	for i, c := range coeffs {
		result[i] = 20 * math.Log10(math.Max(cmplx.Abs(c), minMagnitude))
	}
	return result, nil
}

// SFDR computes the spurious-free dynamic range of the samples. A
// saturated signal is not an error: the degenerate result has Saturated
// set and Err returning rf.ErrSaturationDetected.
func SFDR(samples []float64, cfg SFDRConfig) (SFDRResult, error) {
	var result SFDRResult
	db, err := MagnitudeDB(samples)
	if err != nil {
		return result, err
	}
	result.BaselineDB = stat.Mean(db, nil) + cfg.BaselineOffsetDB
	result.Peaks = FindPeaks(db, result.BaselineDB, cfg.MinPeakDistance)

	top := append([]Peak(nil), result.Peaks...)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Height > top[j].Height
	})
	p1 := db[floats.MaxIdx(db)]
	p2 := result.BaselineDB
	if len(top) > 0 {
		p1 = top[0].Height
	}
	if len(top) > 1 {
		p2 = top[1].Height
	}
	result.SpurDifference = p1 - p2

	if db[floats.MaxIdx(db)] <= result.BaselineDB+cfg.SaturationMarginDB {
		result.Saturated = true
		return result, nil
	}
	result.SFDR = result.SpurDifference
	return result, nil
}
