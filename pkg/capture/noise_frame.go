package capture

import (
	"fmt"

	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// NoiseFrameShape describes the layout of a noise-accumulator capture:
// SampleDepth energy beats followed by TimestampDepth timestamp beats,
// each beat being WordsPerBeat 16-bit words wide.
type NoiseFrameShape struct {
	SampleDepth    int
	TimestampDepth int
	WordsPerBeat   int
}

func DefaultNoiseFrameShape() NoiseFrameShape {
	return NoiseFrameShape{
		SampleDepth:    1 << 15,
		TimestampDepth: 1 << 10,
		WordsPerBeat:   8, // 128-bit AXI-MM beat / 16-bit words
	}
}

func (s NoiseFrameShape) Words() int {
	return (s.SampleDepth + s.TimestampDepth) * s.WordsPerBeat
}

// NoiseFrame holds unsigned energy words; noise power is never negative.
type NoiseFrame struct {
	Shape NoiseFrameShape
	Words []uint16
}

func NewNoiseFrame(shape NoiseFrameShape) *NoiseFrame {
	return &NoiseFrame{
		Shape: shape,
		Words: make([]uint16, shape.Words()),
	}
}

func (f *NoiseFrame) ByteSize() int {
	return len(f.Words) * int(SampleFormatU16LE.Size())
}

func (f *NoiseFrame) Decode(format SampleFormat, data []byte) error {
	if format.Signed() || format.Size() == 0 {
		return fmt.Errorf("%w: a noise frame requires an unsigned format, got %v", rf.ErrInvalidParameter, format)
	}
	sz := int(format.Size())
	if len(data) != len(f.Words)*sz {
		return fmt.Errorf("%w: expected %d bytes, received %d", rf.ErrTransferFailure, len(f.Words)*sz, len(data))
	}
	for i := range f.Words {
		f.Words[i] = uint16(format.decode(data[i*sz:]))
	}
	return nil
}

// Energies returns the energy section of the capture.
func (f *NoiseFrame) Energies() []uint16 {
	return f.Words[:f.Shape.SampleDepth*f.Shape.WordsPerBeat]
}

// Timestamps returns the timestamp section of the capture.
func (f *NoiseFrame) Timestamps() []uint16 {
	return f.Words[f.Shape.SampleDepth*f.Shape.WordsPerBeat:]
}
