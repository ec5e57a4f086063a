package mmio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/rfcal/pkg/rf"
	"golang.org/x/sys/unix"
)

func TestWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem")
	pageSize := unix.Getpagesize()
	require.NoError(t, os.WriteFile(path, make([]byte, 2*pageSize), 0600))

	base := int64(pageSize + 0x40)
	w, err := Open(path, base, 0x20)
	require.NoError(t, err)

	require.NoError(t, w.Write32(0x10, 0xA5A5_0001))
	v, err := w.Read32(0x10)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xA5A5_0001), v)

	_, err = w.Read32(0x20)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)
	_, err = w.Read32(0x3)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)

	require.NoError(t, w.Close())
	_, err = w.Read32(0x10)
	assert.Error(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xA5A5_0001), binary.NativeEndian.Uint32(raw[base+0x10:]))
}

func TestOpenInvalid(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent"), 0, 4)
	assert.Error(t, err)

	_, err = Open("/dev/null", -1, 4)
	assert.ErrorIs(t, err, rf.ErrInvalidParameter)
}
