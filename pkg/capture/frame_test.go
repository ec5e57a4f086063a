package capture

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

func TestFrame(t *testing.T) {
	f := NewFrame(4)
	for i := 0; i < 4; i++ {
		f.Set(i, rf.ChannelAnalog, int16(10*i))
		f.Set(i, rf.ChannelDigital, int16(-i))
	}

	t.Run("polarity", func(t *testing.T) {
		analog, err := f.Read(rf.ChannelAnalog, 1, 3)
		require.NoError(t, err)
		assert.Equal(t, []float64{-10, -20, -30}, analog)

		digital, err := f.Read(rf.ChannelDigital, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, -1}, digital)
	})

	t.Run("does_not_mutate", func(t *testing.T) {
		orig := f.Clone()
		_, _ = f.Read(rf.ChannelAnalog, 0, 4)
		assert.Equal(t, orig.Samples, f.Samples)
	})

	t.Run("out_of_range", func(t *testing.T) {
		_, err := f.Read(rf.ChannelDigital, 2, 3)
		assert.ErrorIs(t, err, rf.ErrInsufficientSignal)
		_, err = f.Read(rf.Channel(5), 0, 1)
		assert.ErrorIs(t, err, rf.ErrInvalidParameter)
	})

	t.Run("encode_decode", func(t *testing.T) {
		g := NewFrame(4)
		require.NoError(t, g.Decode(SampleFormatS16LE, f.Encode(SampleFormatS16LE)))
		assert.Equal(t, f.Samples, g.Samples)
		assert.Equal(t, []int16{0, 10, 20, 30}, g.Channel(rf.ChannelAnalog))
	})
}

func TestReaderAcquirer(t *testing.T) {
	f := NewFrame(3)
	f.Set(2, rf.ChannelDigital, -2)
	raw := f.Encode(SampleFormatS16LE)

	t.Run("ok", func(t *testing.T) {
		g := NewFrame(3)
		require.NoError(t, AcquireFrame(context.Background(), NewReaderAcquirer(bytes.NewReader(raw)), g))
		assert.Equal(t, f.Samples, g.Samples)
	})

	t.Run("short", func(t *testing.T) {
		g := NewFrame(3)
		err := AcquireFrame(context.Background(), NewReaderAcquirer(bytes.NewReader(raw[:5])), g)
		assert.ErrorIs(t, err, rf.ErrTransferFailure)
	})

	t.Run("timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()
		err := AcquireFrame(ctx, NewReaderAcquirer(bytes.NewReader(raw)), NewFrame(3))
		assert.ErrorIs(t, err, rf.ErrHardwareTimeout)
	})
}

func TestNoiseFrame(t *testing.T) {
	shape := NoiseFrameShape{SampleDepth: 2, TimestampDepth: 1, WordsPerBeat: 2}
	f := NewNoiseFrame(shape)
	require.Len(t, f.Words, 6)

	raw := []byte{1, 0, 2, 0, 0xff, 0xff, 4, 0, 5, 0, 6, 0}
	require.NoError(t, AcquireNoiseFrame(context.Background(), NewReaderAcquirer(bytes.NewReader(raw)), f))
	assert.Equal(t, []uint16{1, 2, 65535, 4}, f.Energies())
	assert.Equal(t, []uint16{5, 6}, f.Timestamps())

	assert.ErrorIs(t, f.Decode(SampleFormatS16LE, raw), rf.ErrInvalidParameter)
}
