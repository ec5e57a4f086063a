// Package mmio maps a window of physical device registers (typically
// through /dev/mem) into the process memory.
package mmio

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/rfcal/pkg/rf"
	"golang.org/x/sys/unix"
)

const DefaultDevice = "/dev/mem"

type Window struct {
	File *os.File
	Base int64
	Size int

	mapping []byte
	// regs is the part of mapping starting at Base.
	regs []byte
}

// Open maps size bytes of the device starting at base. base does not have
// to be page-aligned.
func Open(path string, base int64, size int) (*Window, error) {
	if base < 0 || size <= 0 {
		return nil, fmt.Errorf("%w: invalid register window 0x%X+%d", rf.ErrInvalidParameter, base, size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	pageSize := int64(unix.Getpagesize())
	aligned := base &^ (pageSize - 1)
	delta := int(base - aligned)
	mapping, err := unix.Mmap(int(f.Fd()), aligned, delta+size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to map 0x%X+%d of '%s': %w", base, size, path, err)
	}
	return &Window{
		File:    f,
		Base:    base,
		Size:    size,
		mapping: mapping,
		regs:    mapping[delta:],
	}, nil
}

func (w *Window) register(offset uint32) (*uint32, error) {
	if offset%4 != 0 {
		return nil, fmt.Errorf("%w: unaligned register offset 0x%X", rf.ErrInvalidParameter, offset)
	}
	if w.regs == nil {
		return nil, fmt.Errorf("the window 0x%X is closed", w.Base)
	}
	if int(offset)+4 > len(w.regs) {
		return nil, fmt.Errorf("%w: register offset 0x%X is outside of the %d-byte window", rf.ErrInvalidParameter, offset, len(w.regs))
	}
	return (*uint32)(unsafe.Pointer(&w.regs[offset])), nil
}

func (w *Window) Read32(offset uint32) (uint32, error) {
	reg, err := w.register(offset)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(reg), nil
}

func (w *Window) Write32(offset uint32, value uint32) error {
	reg, err := w.register(offset)
	if err != nil {
		return err
	}
	atomic.StoreUint32(reg, value)
	return nil
}

func (w *Window) Close() error {
	var result *multierror.Error
	if w.mapping != nil {
		if err := unix.Munmap(w.mapping); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to unmap: %w", err))
		}
		w.mapping, w.regs = nil, nil
	}
	if w.File != nil {
		if err := w.File.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to close: %w", err))
		}
		w.File = nil
	}
	return result.ErrorOrNil()
}
