package gpu

import (
	"encoding/binary"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestKernelArgSize(t *testing.T) {
	var sem uint32
	testCases := []struct {
		arg  any
		size int
	}{
		{int32(-1), 4},
		{uint32(7), 4},
		{float32(0.5), 4},
		{17, 4},
		{int64(1 << 40), 8},
		{uint64(3), 8},
		{math.Pi, 8},
		{uintptr(0x1000), 8},
		{unsafe.Pointer(&sem), 8},
		{&sem, 8},
	}
	for _, tc := range testCases {
		size, err := KernelArgSize(tc.arg)
		require.NoErrorf(t, err, "KernelArgSize(%T)", tc.arg)
		require.Equalf(t, tc.size, size, "KernelArgSize(%T)", tc.arg)
	}

	_, err := KernelArgSize("not a scalar")
	require.ErrorContains(t, err, "unsupported kernel argument type string")
	_, err = KernelArgSize(math.MaxInt32 + 1)
	require.ErrorContains(t, err, "overflows")

	err = CheckKernelArgs([]any{int32(1), []float32{1}})
	require.ErrorContains(t, err, "kernel argument #1")
	require.NoError(t, CheckKernelArgs(nil))
}

func TestPutKernelArg(t *testing.T) {
	ne := binary.NativeEndian
	buf := make([]byte, 8)

	putKernelArg(buf, -2)
	require.Equal(t, int32(-2), int32(ne.Uint32(buf)))

	putKernelArg(buf, float32(1.5))
	require.Equal(t, float32(1.5), math.Float32frombits(ne.Uint32(buf)))

	putKernelArg(buf, 2.25)
	require.Equal(t, 2.25, math.Float64frombits(ne.Uint64(buf)))

	putKernelArg(buf, uintptr(0xdeadbeef))
	require.Equal(t, uint64(0xdeadbeef), ne.Uint64(buf))
}
