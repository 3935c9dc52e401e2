//go:build cuda || hip

package gpu

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestArena(t *testing.T) {
	arena := newArena(64)
	require.Equal(t, 64, arena.size)
	_ = arena.alloc(4)
	require.Equal(t, 8, arena.current)
	_ = arena.alloc(9) // Aligning, it will occupy 16 bytes total.
	require.Equal(t, 24, arena.current)
	require.Panics(t, func() { _ = arena.alloc(128) }, "Arena out of memory")
	arena.Free()
	arena.Free() // No-op.
}

func TestPackKernelArgs(t *testing.T) {
	arena, cArgs, err := packKernelArgs(nil)
	require.NoError(t, err)
	require.Nil(t, arena)
	require.Nil(t, cArgs)

	arena, cArgs, err = packKernelArgs([]any{int32(3), 2.5, uintptr(0x40)})
	require.NoError(t, err)
	defer arena.Free()
	ptrs := unsafe.Slice(cArgs, 3)
	require.Equal(t, int32(3), *(*int32)(ptrs[0]))
	require.Equal(t, 2.5, *(*float64)(ptrs[1]))
	require.Equal(t, uint64(0x40), binary.NativeEndian.Uint64(unsafe.Slice((*byte)(ptrs[2]), 8)))

	_, _, err = packKernelArgs([]any{"x"})
	require.Error(t, err)
}
