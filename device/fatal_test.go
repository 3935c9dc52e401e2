//go:build !gpudevice_kernel

package device

import (
	"os"
	"os/exec"
	"strings"
	"testing"
	"unsafe"

	"github.com/gomlx/gpudevice/gpu"
	"github.com/gomlx/gpudevice/gpu/gputest"
	"github.com/stretchr/testify/require"
)

func TestFatalRuntimeErrors(t *testing.T) {
	rt := newFakeRuntime(t, 1)
	s := NewStreamDevice(rt)
	defer s.Destroy()
	d := New(s)
	buf := d.Allocate(16)
	host := make([]byte, 16)

	testCases := []struct {
		name string
		op   gputest.Op
		fn   func()
	}{
		{"Allocate", gputest.OpMalloc, func() { d.Allocate(16) }},
		{"Deallocate", gputest.OpFree, func() { d.Deallocate(buf) }},
		{"Memcpy", gputest.OpMemcpyAsync, func() { d.Memcpy(buf, buf, 16) }},
		{"MemcpyHostToDevice", gputest.OpMemcpyAsync, func() { d.MemcpyHostToDevice(buf, unsafe.Pointer(&host[0]), 16) }},
		{"MemcpyDeviceToHost", gputest.OpMemcpyAsync, func() { d.MemcpyDeviceToHost(unsafe.Pointer(&host[0]), buf, 16) }},
		{"Memset", gputest.OpMemsetAsync, func() { d.Memset(buf, 0, 16) }},
		{"Synchronize", gputest.OpStreamSynchronize, d.Synchronize},
		{"Semaphore", gputest.OpMemsetAsync, func() { d.Semaphore() }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rt.SetError(tc.op, gpu.ErrorLaunchFailure)
			defer rt.SetError(tc.op, gpu.Success)
			requireFatal(t, tc.fn)
		})
	}

	// Out of memory, reported by the runtime.
	rt.SetError(gputest.OpMalloc, gpu.ErrorMemoryAllocation)
	requireFatal(t, func() { d.Allocate(1 << 40) })
	rt.SetError(gputest.OpMalloc, gpu.Success)

	// Device selection failure before an allocation.
	rt.SetError(gputest.OpSetDevice, gpu.ErrorInvalidDevice)
	requireFatal(t, func() { d.Allocate(16) })
	rt.SetError(gputest.OpSetDevice, gpu.Success)
	d.Deallocate(buf)
}

// deathTestEnv selects, in the child process of TestSynchronizeFailureExits, the failure to trigger.
const deathTestEnv = "GPUDEVICE_DEATH_TEST"

// TestSynchronizeFailureExits runs itself as a child process, which must exit with a non-zero code
// after logging one line naming the failure.
func TestSynchronizeFailureExits(t *testing.T) {
	if os.Getenv(deathTestEnv) == "synchronize" {
		rt := gputest.New(1)
		d := New(NewStreamDevice(rt))
		rt.SetError(gputest.OpStreamSynchronize, gpu.ErrorLaunchFailure)
		d.Synchronize()
		return // Not reached: Synchronize exits the process.
	}
	if testing.Short() {
		t.Skip("skipping death test in short mode")
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestSynchronizeFailureExits$")
	cmd.Env = append(os.Environ(), deathTestEnv+"=synchronize")
	output, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr, "child process should have failed, output:\n%s", output)
	require.NotZero(t, exitErr.ExitCode())
	require.Contains(t, string(output), "Error detected in GPU stream: unspecified launch failure")
	require.Equal(t, 1, strings.Count(string(output), "Error detected in GPU stream"))
}
