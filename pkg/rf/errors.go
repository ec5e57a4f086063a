package rf

import (
	"errors"
)

var (
	// ErrInvalidParameter is a caller error: an out-of-range attenuation,
	// frequency, channel or configuration value. It is never retried.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInsufficientSignal means a search found too few features
	// (zero crossings, spectral crossovers, correlation support) to go on.
	// It aborts the current calibration attempt.
	ErrInsufficientSignal = errors.New("insufficient signal")

	// ErrSaturationDetected marks a spectrum too clipped to trust; the SFDR
	// estimator reports it through a degenerate result instead of failing.
	ErrSaturationDetected = errors.New("saturation detected")

	// ErrHardwareTimeout is reported by the hardware collaborators when a
	// FIFO or DMA transfer does not complete in time.
	ErrHardwareTimeout = errors.New("hardware timeout")

	// ErrTransferFailure is reported by the hardware collaborators when a
	// transfer completes with an error or a short count.
	ErrTransferFailure = errors.New("transfer failure")
)
