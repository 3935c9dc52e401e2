package gpu_test

import (
	"fmt"
	"go/format"
	"math"
	"os"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gpudevice/gpu"
	"github.com/gomlx/gpudevice/gpu/gputest"
	"github.com/stretchr/testify/require"
)

func TestToError(t *testing.T) {
	rt := gputest.New(1)
	require.NoError(t, gpu.ToError(rt, gpu.Success))

	err := gpu.ToError(rt, gpu.ErrorMemoryAllocation)
	require.ErrorContains(t, err, "fake runtime error (code=2)")
	require.ErrorContains(t, err, "out of memory")

	// Errors carry a stack trace.
	require.Contains(t, fmt.Sprintf("%+v", err), "TestToError")
}

func TestEnums(t *testing.T) {
	require.Equal(t, "MemcpyHostToDevice", gpu.MemcpyHostToDevice.String())
	require.Equal(t, "MemcpyDeviceToDevice", gpu.MemcpyDeviceToDevice.String())
	require.Equal(t, "MemcpyKind(9)", gpu.MemcpyKind(9).String())
	kind, err := gpu.MemcpyKindString("memcpydevicetohost")
	require.NoError(t, err)
	require.Equal(t, gpu.MemcpyDeviceToHost, kind)
	require.Len(t, gpu.MemcpyKindValues(), 5)

	require.Equal(t, "SharedMemBankSizeEightByte", gpu.SharedMemBankSizeEightByte.String())
	require.True(t, gpu.SharedMemBankSizeFourByte.IsASharedMemConfig())
	require.False(t, gpu.SharedMemConfig(3).IsASharedMemConfig())
}

func TestDim(t *testing.T) {
	require.Equal(t, gpu.Dim3{X: 128, Y: 1, Z: 1}, gpu.Dim(128))
	require.Equal(t, gpu.Dim3{X: math.MaxUint32, Y: 1, Z: 1}, gpu.Dim(math.MaxUint32))
	for _, x := range []int{-1, math.MaxUint32 + 1} {
		err := exceptions.TryCatch[error](func() { gpu.Dim(x) })
		require.ErrorContainsf(t, err, "out of range", "gpu.Dim(%d)", x)
	}
	require.Equal(t, 4, gpu.SemaphoreSize)
}

// TestEnumerFilesFormatted checks the generated enum files are gofmt-formatted, as enumer writes them.
func TestEnumerFilesFormatted(t *testing.T) {
	for _, fileName := range []string{"memcpykind_enumer.go", "sharedmemconfig_enumer.go"} {
		src, err := os.ReadFile(fileName)
		require.NoError(t, err)
		formatted, err := format.Source(src)
		require.NoError(t, err)
		require.Equalf(t, string(formatted), string(src), "%s is not gofmt-formatted", fileName)
	}
}
