// Package axififo drives the transmit side of a Xilinx AXI4-Stream FIFO
// (axi_fifo_mm_s) through its register window.
package axififo

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// Register offsets.
const (
	RegTDFR = 0x08 // transmit data FIFO reset
	RegTDFV = 0x0C // transmit data FIFO vacancy, in words
	RegTDFD = 0x10 // transmit data FIFO data write port
	RegTLR  = 0x14 // transmit length, in bytes
)

// ResetKey is the value which resets the transmit FIFO when written to TDFR.
const ResetKey = 0xA5

const DefaultPollInterval = 10 * time.Microsecond

// Registers is a window of 32-bit device registers.
type Registers interface {
	Read32(offset uint32) (uint32, error)
	Write32(offset uint32, value uint32) error
}

type TxFIFO struct {
	Registers
	Name         string
	PollInterval time.Duration
}

func New(name string, regs Registers) *TxFIFO {
	return &TxFIFO{
		Registers:    regs,
		Name:         name,
		PollInterval: DefaultPollInterval,
	}
}

// ReadTxRoom returns how many 32-bit words the transmit FIFO has room for.
func (f *TxFIFO) ReadTxRoom(ctx context.Context) (uint32, error) {
	room, err := f.Read32(RegTDFV)
	if err != nil {
		return 0, fmt.Errorf("unable to read the vacancy of FIFO '%s': %w", f.Name, err)
	}
	return room, nil
}

func (f *TxFIFO) waitForRoom(ctx context.Context, words int) error {
	var timer *time.Timer
	for {
		room, err := f.ReadTxRoom(ctx)
		if err != nil {
			return err
		}
		if int(room) >= words {
			return nil
		}
		if timer == nil {
			timer = time.NewTimer(f.PollInterval)
			defer timer.Stop()
		} else {
			timer.Reset(f.PollInterval)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: FIFO '%s' has room for %d words, but %d are needed: %w", rf.ErrHardwareTimeout, f.Name, room, words, ctx.Err())
		case <-timer.C:
		}
	}
}

// SendTxPacket writes the words as one packet, waiting until the FIFO
// has room for all of them. An empty packet is refused: the hardware does
// not accept a zero transmit length.
func (f *TxFIFO) SendTxPacket(ctx context.Context, words ...uint32) error {
	if len(words) == 0 {
		return fmt.Errorf("%w: refusing to send an empty packet to FIFO '%s'", rf.ErrInvalidParameter, f.Name)
	}
	if err := f.waitForRoom(ctx, len(words)); err != nil {
		return err
	}
	logger.Tracef(ctx, "FIFO '%s': sending %d words: %X", f.Name, len(words), words)
	for idx, word := range words {
		if err := f.Write32(RegTDFD, word); err != nil {
			return fmt.Errorf("%w: unable to write word #%d to FIFO '%s': %w", rf.ErrTransferFailure, idx, f.Name, err)
		}
	}
	if err := f.Write32(RegTLR, uint32(len(words))<<2); err != nil {
		return fmt.Errorf("%w: unable to commit the packet length to FIFO '%s': %w", rf.ErrTransferFailure, f.Name, err)
	}
	return nil
}

// SendTxBytes sends little-endian 32-bit words; a trailing partial word is dropped.
func (f *TxFIFO) SendTxBytes(ctx context.Context, data []byte) error {
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return f.SendTxPacket(ctx, words...)
}

// SendConfigWords is SendTxPacket; configuration peripherals are fed
// through transmit FIFOs.
func (f *TxFIFO) SendConfigWords(ctx context.Context, words ...uint32) error {
	return f.SendTxPacket(ctx, words...)
}

func (f *TxFIFO) Reset(ctx context.Context) error {
	logger.Debugf(ctx, "resetting FIFO '%s'", f.Name)
	if err := f.Write32(RegTDFR, ResetKey); err != nil {
		return fmt.Errorf("unable to reset FIFO '%s': %w", f.Name, err)
	}
	return nil
}

// Close closes the register window if it is closable.
func (f *TxFIFO) Close() error {
	if c, ok := f.Registers.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
