package device

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gpudevice/gpu"
)

// LaunchKernel enqueues kernel on the stream of d, with the given grid and block sizes and sharedMem
// bytes of dynamic shared memory. It panics if either the launch or the runtime's last error
// reports a failure.
//
// Arguments are passed by value: see gpu.KernelArgSize for the accepted types. Device buffers
// (from GPUDevice.Allocate, Scratchpad or Semaphore) are passed as unsafe.Pointer or *uint32.
func LaunchKernel(d GPUDevice, kernel gpu.Kernel, grid, block gpu.Dim3, sharedMem int, args ...any) {
	if err := gpu.CheckKernelArgs(args); err != nil {
		exceptions.Panicf("LaunchKernel(kernel=%#x): %v", uintptr(kernel), err)
	}
	rt := d.stream.Runtime()
	code := rt.LaunchKernel(kernel, grid, block, sharedMem, d.Stream(), args)
	// The last error is read, and so reset, even if the launch itself reported the failure.
	lastCode := rt.GetLastError()
	if code == gpu.Success {
		code = lastCode
	}
	if code != gpu.Success {
		exceptions.Panicf("LaunchKernel(kernel=%#x, grid=%v, block=%v) on %s failed: %v",
			uintptr(kernel), grid, block, d, gpu.ToError(rt, code))
	}
}

// SetSharedMemConfig sets the shared memory bank size of the current device. It panics if the runtime
// rejects it. It is a no-op when building kernels (build tag gpudevice_kernel).
func SetSharedMemConfig(rt gpu.Runtime, config gpu.SharedMemConfig) {
	if deviceCompilePhase {
		return
	}
	if code := rt.DeviceSetSharedMemConfig(config); code != gpu.Success {
		exceptions.Panicf("SetSharedMemConfig(%s): %v", config, gpu.ToError(rt, code))
	}
}
