package capture

import (
	"fmt"

	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// Frame is one DMA capture of both channels: signed 16-bit samples
// interleaved as [analog, digital, analog, digital, ...]. Its length is
// fixed at allocation. The estimation pipeline only reads it.
type Frame struct {
	Samples []int16
}

func NewFrame(length int) *Frame {
	return &Frame{
		Samples: make([]int16, length*rf.NumChannels),
	}
}

// Len returns the amount of samples per channel.
func (f *Frame) Len() int {
	return len(f.Samples) / rf.NumChannels
}

func (f *Frame) At(idx int, ch rf.Channel) int16 {
	return f.Samples[idx*rf.NumChannels+int(ch)]
}

func (f *Frame) Set(idx int, ch rf.Channel, v int16) {
	f.Samples[idx*rf.NumChannels+int(ch)] = v
}

// Read returns n samples of the channel starting at start, with the
// channel polarity applied (analog samples come back negated).
func (f *Frame) Read(ch rf.Channel, start, n int) ([]float64, error) {
	if ch != rf.ChannelAnalog && ch != rf.ChannelDigital {
		return nil, fmt.Errorf("%w: unknown channel %v", rf.ErrInvalidParameter, ch)
	}
	if n < 0 || start < 0 || start+n > f.Len() {
		return nil, fmt.Errorf("%w: window [%d:%d] of the %s channel is outside of the capture of %d samples", rf.ErrInsufficientSignal, start, start+n, ch, f.Len())
	}
	pol := ch.Polarity()
	out := make([]float64, n)
	for i := range out {
		out[i] = pol * float64(f.At(start+i, ch))
	}
	return out, nil
}

// Channel returns a copy of the raw (not polarity-corrected) samples of a channel.
func (f *Frame) Channel(ch rf.Channel) []int16 {
	out := make([]int16, f.Len())
	for i := range out {
		out[i] = f.At(i, ch)
	}
	return out
}

func (f *Frame) Clone() *Frame {
	return &Frame{
		Samples: append([]int16(nil), f.Samples...),
	}
}

// ByteSize is the size of the frame as transferred by the DMA engine.
func (f *Frame) ByteSize() int {
	return len(f.Samples) * int(SampleFormatS16LE.Size())
}

// Decode fills the frame from raw DMA bytes.
func (f *Frame) Decode(format SampleFormat, data []byte) error {
	if !format.Signed() {
		return fmt.Errorf("%w: a two-channel frame requires a signed format, got %v", rf.ErrInvalidParameter, format)
	}
	sz := int(format.Size())
	if len(data) != len(f.Samples)*sz {
		return fmt.Errorf("%w: expected %d bytes, received %d", rf.ErrTransferFailure, len(f.Samples)*sz, len(data))
	}
	for i := range f.Samples {
		f.Samples[i] = int16(format.decode(data[i*sz:]))
	}
	return nil
}

// Encode is the inverse of Decode.
func (f *Frame) Encode(format SampleFormat) []byte {
	sz := int(format.Size())
	out := make([]byte, len(f.Samples)*sz)
	for i, v := range f.Samples {
		format.encode(out[i*sz:], int32(v))
	}
	return out
}
