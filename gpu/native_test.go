//go:build cuda || hip

package gpu

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// getNative returns the native runtime, or skips the test if there are no devices.
func getNative(t *testing.T) Runtime {
	rt, err := Native()
	if err != nil {
		t.Skipf("no %s runtime available: %v", backendName, err)
	}
	count, code := rt.GetDeviceCount()
	if code != Success || count < 1 {
		t.Skipf("no %s device available", backendName)
	}
	return rt
}

func TestNativeProperties(t *testing.T) {
	rt := getNative(t)
	count, code := rt.GetDeviceCount()
	require.Equal(t, Success, code)
	for device := range count {
		prop, code := rt.GetDeviceProperties(device)
		require.Equal(t, Success, code)
		fmt.Printf("\tDevice #%d: %q, %d multiprocessors, compute capability %d.%d\n",
			device, prop.Name, prop.MultiProcessorCount, prop.Major, prop.Minor)
		require.Positive(t, prop.MultiProcessorCount)
		require.Positive(t, prop.MaxThreadsPerBlock)
	}
	require.Equal(t, "no error", rt.GetErrorString(Success))
}

func TestNativeMemcpyRoundTrip(t *testing.T) {
	rt := getNative(t)
	const n = 256
	in := make([]float32, n)
	out := make([]float32, n)
	for ii := range in {
		in[ii] = float32(ii) * 1.25
	}
	numBytes := n * int(unsafe.Sizeof(float32(0)))

	dev, code := rt.Malloc(numBytes)
	require.Equal(t, Success, code)
	defer func() { require.Equal(t, Success, rt.Free(dev)) }()

	require.Equal(t, Success, rt.MemsetAsync(dev, 0, numBytes, DefaultStream))
	require.Equal(t, Success, rt.MemcpyAsync(dev, unsafe.Pointer(&in[0]), numBytes, MemcpyHostToDevice, DefaultStream))
	require.Equal(t, Success, rt.MemcpyAsync(unsafe.Pointer(&out[0]), dev, numBytes, MemcpyDeviceToHost, DefaultStream))
	require.Equal(t, Success, rt.StreamSynchronize(DefaultStream))
	require.Equal(t, Success, rt.StreamQuery(DefaultStream))
	require.Equal(t, in, out)
}
