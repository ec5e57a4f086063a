// Package axigpio drives single output bits of a Xilinx AXI GPIO
// (axi_gpio) through its register window.
package axigpio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/rfcal/pkg/rf"
)

// Register offsets of the first channel.
const (
	RegData = 0x00
	RegTri  = 0x04
)

type Registers interface {
	Read32(offset uint32) (uint32, error)
	Write32(offset uint32, value uint32) error
}

// Switch is one bit of the GPIO channel configured as an output.
type Switch struct {
	Registers
	Name string
	Bit  uint

	locker sync.Mutex
}

func New(name string, regs Registers, bit uint) (*Switch, error) {
	if bit > 31 {
		return nil, fmt.Errorf("%w: GPIO '%s': bit %d is out of a 32-bit channel", rf.ErrInvalidParameter, name, bit)
	}
	return &Switch{
		Registers: regs,
		Name:      name,
		Bit:       bit,
	}, nil
}

func (s *Switch) mask() uint32 {
	return 1 << s.Bit
}

// MakeOutput clears the tri-state bit, so the bit drives the pin.
func (s *Switch) MakeOutput(ctx context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	tri, err := s.Read32(RegTri)
	if err != nil {
		return fmt.Errorf("unable to read the direction of GPIO '%s': %w", s.Name, err)
	}
	if err := s.Write32(RegTri, tri&^s.mask()); err != nil {
		return fmt.Errorf("unable to set the direction of GPIO '%s': %w", s.Name, err)
	}
	return nil
}

func (s *Switch) Set(ctx context.Context, on bool) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	data, err := s.Read32(RegData)
	if err != nil {
		return fmt.Errorf("%w: unable to read GPIO '%s': %w", rf.ErrTransferFailure, s.Name, err)
	}
	if on {
		data |= s.mask()
	} else {
		data &^= s.mask()
	}
	logger.Debugf(ctx, "setting GPIO '%s' bit %d to %t", s.Name, s.Bit, on)
	if err := s.Write32(RegData, data); err != nil {
		return fmt.Errorf("%w: unable to write GPIO '%s': %w", rf.ErrTransferFailure, s.Name, err)
	}
	return nil
}

// Close closes the register window if it is closable.
func (s *Switch) Close() error {
	if c, ok := s.Registers.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
