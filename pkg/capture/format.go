package capture

import (
	"encoding/binary"
	"fmt"
)

// SampleFormat is the wire format of a single DMA sample word.
type SampleFormat uint

const (
	SampleFormatUndefined = SampleFormat(iota)
	SampleFormatS16LE
	SampleFormatS16BE
	SampleFormatU16LE
	SampleFormatU16BE
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatUndefined:
		return "undefined"
	case SampleFormatS16LE:
		return "s16le"
	case SampleFormatS16BE:
		return "s16be"
	case SampleFormatU16LE:
		return "u16le"
	case SampleFormatU16BE:
		return "u16be"
	default:
		return fmt.Sprintf("unknown_format_%d", uint(f))
	}
}

func (f SampleFormat) Size() uint {
	switch f {
	case SampleFormatS16LE, SampleFormatS16BE, SampleFormatU16LE, SampleFormatU16BE:
		return 2
	default:
		return 0
	}
}

func (f SampleFormat) Signed() bool {
	return f == SampleFormatS16LE || f == SampleFormatS16BE
}

func (f SampleFormat) decode(p []byte) int32 {
	switch f {
	case SampleFormatS16LE:
		return int32(int16(binary.LittleEndian.Uint16(p)))
	case SampleFormatS16BE:
		return int32(int16(binary.BigEndian.Uint16(p)))
	case SampleFormatU16LE:
		return int32(binary.LittleEndian.Uint16(p))
	case SampleFormatU16BE:
		return int32(binary.BigEndian.Uint16(p))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

func (f SampleFormat) encode(p []byte, v int32) {
	switch f {
	case SampleFormatS16LE, SampleFormatU16LE:
		binary.LittleEndian.PutUint16(p, uint16(v))
	case SampleFormatS16BE, SampleFormatU16BE:
		binary.BigEndian.PutUint16(p, uint16(v))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}
