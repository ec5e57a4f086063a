package loopback

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/rfcal/pkg/capture"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// NoiseBuffer is the noise tracker of the simulator. Its captures hold
// squared Gaussian noise of NoiseStdDev followed by a timestamp counter
// which keeps running across captures.
type NoiseBuffer struct {
	*Simulator
	Shape capture.NoiseFrameShape
}

var _ capture.Acquirer = (*NoiseBuffer)(nil)

func (s *Simulator) NoiseBuffer(shape capture.NoiseFrameShape) *NoiseBuffer {
	return &NoiseBuffer{Simulator: s, Shape: shape}
}

func (b *NoiseBuffer) Acquire(ctx context.Context, dst []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", rf.ErrHardwareTimeout, err)
	}
	frame := capture.NewNoiseFrame(b.Shape)
	if len(dst) != frame.ByteSize() {
		return fmt.Errorf("%w: a noise capture takes %d bytes, the buffer has %d", rf.ErrTransferFailure, frame.ByteSize(), len(dst))
	}

	b.locker.Lock()
	sigma := b.NoiseStdDev
	rng := rand.New(rand.NewSource(b.Seed + b.captures))
	timestamp := b.noiseTimestamp
	b.noiseTimestamp += uint16(len(frame.Timestamps()))
	b.captures++
	b.locker.Unlock()

	energies := frame.Energies()
	for i := range energies {
		v := rng.NormFloat64() * sigma
		energies[i] = uint16(math.Min(math.Round(v*v), math.MaxUint16))
	}
	timestamps := frame.Timestamps()
	for i := range timestamps {
		timestamps[i] = timestamp + uint16(i)
	}

	for i, w := range frame.Words {
		binary.LittleEndian.PutUint16(dst[2*i:], w)
	}
	logger.Debugf(ctx, "simulated a noise capture of %d words (sigma %v)", len(frame.Words), sigma)
	return nil
}
