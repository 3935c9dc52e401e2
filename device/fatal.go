package device

import (
	"fmt"

	"github.com/gomlx/gpudevice/gpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// exitFn terminates the process after a fatal runtime error has been logged.
var exitFn = func() {
	klog.FlushAndExit(klog.ExitFlushTimeout, 1)
}

// fatalf writes one diagnostic line to the log (stderr by default) and aborts.
//
// Runtime errors are not recoverable at this layer: the caller assumes a healthy device, and
// continuing would mask data corruption further up.
func fatalf(format string, args ...any) {
	klog.ErrorDepth(1, fmt.Sprintf(format, args...))
	exitFn()
}

// checkFatal aborts with the runtime's error string if code is not gpu.Success.
func checkFatal(rt gpu.Runtime, code gpu.Error, format string, args ...any) {
	if code == gpu.Success {
		return
	}
	err := errors.WithMessagef(gpu.ToError(rt, code), format, args...)
	klog.ErrorDepth(1, err.Error())
	exitFn()
}
