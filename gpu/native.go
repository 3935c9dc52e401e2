//go:build cuda || hip

package gpu

/*
#include <stdlib.h>
#include "shim.h"
*/
import "C"
import (
	"unsafe"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// nativeRuntime implements Runtime by calling the back-end selected at compile time.
type nativeRuntime struct{}

// Native returns the compiled-in back-end runtime.
func Native() (Runtime, error) {
	var count C.int
	if code := Error(C.gpudev_get_device_count(&count)); code != Success {
		return nil, errors.WithMessagef(ToError(nativeRuntime{}, code), "failed to query %s devices", backendName)
	}
	klog.V(1).Infof("%s runtime: %d device(s) visible", backendName, int(count))
	return nativeRuntime{}, nil
}

func (nativeRuntime) Name() string { return backendName }

func (nativeRuntime) GetDeviceCount() (int, Error) {
	var count C.int
	code := Error(C.gpudev_get_device_count(&count))
	return int(count), code
}

func (nativeRuntime) GetDevice() (int, Error) {
	var device C.int
	code := Error(C.gpudev_get_device(&device))
	return int(device), code
}

func (nativeRuntime) SetDevice(device int) Error {
	return Error(C.gpudev_set_device(C.int(device)))
}

func (nativeRuntime) GetDeviceProperties(device int) (DeviceProp, Error) {
	var p C.gpudev_prop
	code := Error(C.gpudev_get_device_properties(&p, C.int(device)))
	if code != Success {
		return DeviceProp{}, code
	}
	prop := DeviceProp{
		Name:                        C.GoString(&p.name[0]),
		TotalGlobalMem:              uint64(p.totalGlobalMem),
		SharedMemPerBlock:           int(p.sharedMemPerBlock),
		RegsPerBlock:                int(p.regsPerBlock),
		WarpSize:                    int(p.warpSize),
		MaxThreadsPerBlock:          int(p.maxThreadsPerBlock),
		TotalConstMem:               uint64(p.totalConstMem),
		Major:                       int(p.major),
		Minor:                       int(p.minor),
		MultiProcessorCount:         int(p.multiProcessorCount),
		MaxThreadsPerMultiProcessor: int(p.maxThreadsPerMultiProcessor),
		L2CacheSize:                 int(p.l2CacheSize),
		SharedMemPerMultiprocessor:  int(p.sharedMemPerMultiprocessor),
	}
	for ii := range 3 {
		prop.MaxThreadsDim[ii] = int(p.maxThreadsDim[ii])
		prop.MaxGridSize[ii] = int(p.maxGridSize[ii])
	}
	return prop, Success
}

func (nativeRuntime) GetErrorString(err Error) string {
	return C.GoString(C.gpudev_get_error_string(C.int(err)))
}

func (nativeRuntime) Malloc(numBytes int) (unsafe.Pointer, Error) {
	var ptr unsafe.Pointer
	code := Error(C.gpudev_malloc(&ptr, C.size_t(numBytes)))
	return ptr, code
}

func (nativeRuntime) Free(ptr unsafe.Pointer) Error {
	return Error(C.gpudev_free(ptr))
}

func (nativeRuntime) MemsetAsync(ptr unsafe.Pointer, value int, numBytes int, stream Stream) Error {
	return Error(C.gpudev_memset_async(ptr, C.int(value), C.size_t(numBytes), C.uintptr_t(stream)))
}

func (nativeRuntime) MemcpyAsync(dst, src unsafe.Pointer, numBytes int, kind MemcpyKind, stream Stream) Error {
	return Error(C.gpudev_memcpy_async(dst, src, C.size_t(numBytes), C.int(kind), C.uintptr_t(stream)))
}

func (nativeRuntime) StreamQuery(stream Stream) Error {
	return Error(C.gpudev_stream_query(C.uintptr_t(stream)))
}

func (nativeRuntime) StreamSynchronize(stream Stream) Error {
	return Error(C.gpudev_stream_synchronize(C.uintptr_t(stream)))
}

func (nativeRuntime) DeviceSetSharedMemConfig(config SharedMemConfig) Error {
	return Error(C.gpudev_device_set_shared_mem_config(C.int(config)))
}

// LaunchKernel packs args into C memory, since cgo doesn't allow passing Go memory holding pointers.
func (nativeRuntime) LaunchKernel(kernel Kernel, grid, block Dim3, sharedMem int, stream Stream, args []any) Error {
	arena, cArgs, err := packKernelArgs(args)
	if err != nil {
		klog.Errorf("LaunchKernel: %v", err)
		return ErrorInvalidValue
	}
	if arena != nil {
		defer arena.Free()
	}
	return Error(C.gpudev_launch_kernel(C.uintptr_t(kernel),
		C.uint(grid.X), C.uint(grid.Y), C.uint(grid.Z),
		C.uint(block.X), C.uint(block.Y), C.uint(block.Z),
		cArgs, C.size_t(sharedMem), C.uintptr_t(stream)))
}

func (nativeRuntime) GetLastError() Error {
	return Error(C.gpudev_get_last_error())
}
