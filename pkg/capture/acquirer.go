package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// Acquirer is the DMA capture engine: it fills a pre-allocated buffer
// with one capture worth of sample words.
type Acquirer interface {
	Acquire(ctx context.Context, dst []byte) error
}

// AcquireFrame captures into a two-channel frame.
func AcquireFrame(ctx context.Context, a Acquirer, f *Frame) error {
	buf := make([]byte, f.ByteSize())
	if err := a.Acquire(ctx, buf); err != nil {
		return fmt.Errorf("unable to acquire %d bytes: %w", len(buf), err)
	}
	return f.Decode(SampleFormatS16LE, buf)
}

// AcquireNoiseFrame captures into a noise-accumulator frame.
func AcquireNoiseFrame(ctx context.Context, a Acquirer, f *NoiseFrame) error {
	buf := make([]byte, f.ByteSize())
	if err := a.Acquire(ctx, buf); err != nil {
		return fmt.Errorf("unable to acquire %d bytes: %w", len(buf), err)
	}
	return f.Decode(SampleFormatU16LE, buf)
}

// ReaderAcquirer takes captures from a stream, e.g. the character device
// exposed by a DMA driver.
type ReaderAcquirer struct {
	Backend io.Reader
}

var _ Acquirer = (*ReaderAcquirer)(nil)

func NewReaderAcquirer(backend io.Reader) *ReaderAcquirer {
	return &ReaderAcquirer{
		Backend: backend,
	}
}

func (a *ReaderAcquirer) Acquire(ctx context.Context, dst []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", rf.ErrHardwareTimeout, err)
	}
	rc := datacounter.NewReaderCounter(a.Backend)
	t0 := time.Now()
	_, err := io.ReadFull(rc, dst)
	dt := time.Since(t0)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return fmt.Errorf("%w: received %d of %d bytes", rf.ErrTransferFailure, rc.Count(), len(dst))
	default:
		return fmt.Errorf("%w: %w", rf.ErrTransferFailure, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: transfer finished after the deadline: %w", rf.ErrHardwareTimeout, err)
	}
	mib := float64(rc.Count()) / (1 << 20)
	logger.Debugf(ctx, "transferred %.3fMiB in %v (%.3fGS/s)", mib, dt, float64(rc.Count())/2/1e9/dt.Seconds())
	return nil
}

// Close closes the backend if it is closable.
func (a *ReaderAcquirer) Close() error {
	if c, ok := a.Backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
