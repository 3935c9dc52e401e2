package device

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gpudevice/gpu/gputest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

// errFatalExit is the panic value of the exit hook installed by newFakeRuntime.
var errFatalExit = errors.New("fatal GPU error: process would exit")

// resetDeviceProperties forgets the process-wide property cache, so the next StreamDevice discovers
// the devices of its own runtime.
func resetDeviceProperties() {
	propsClaimed.Store(false)
	propsInitialized.Store(false)
	deviceProperties = nil
}

// newFakeRuntime returns a fake runtime with numDevices devices, with a fresh property cache and with
// fatal errors turned into a panic with errFatalExit.
func newFakeRuntime(t *testing.T, numDevices int) *gputest.FakeRuntime {
	t.Helper()
	resetDeviceProperties()
	oldExitFn := exitFn
	exitFn = func() { panic(errFatalExit) }
	t.Cleanup(func() {
		exitFn = oldExitFn
		resetDeviceProperties()
	})
	return gputest.New(numDevices)
}

// requireFatal checks that fn hits a fatal runtime error.
func requireFatal(t *testing.T, fn func()) {
	t.Helper()
	require.PanicsWithValue(t, errFatalExit, fn)
}

// requirePanicsWith checks that fn panics with an error (see exceptions.Panicf) containing msg.
func requirePanicsWith(t *testing.T, msg string, fn func()) {
	t.Helper()
	err := exceptions.TryCatch[error](fn)
	require.Error(t, err)
	require.ErrorContains(t, err, msg)
}
