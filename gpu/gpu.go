// Package gpu is the runtime shim: a neutral vocabulary of GPU primitives (streams, error codes,
// device properties, memory-copy directions) and the Runtime interface that maps them 1:1 onto a
// vendor runtime.
//
// Two back-ends are supported, selected at compile time with a build tag:
//
//   - `-tags cuda`: NVidia's CUDA runtime (libcudart).
//   - `-tags hip`: AMD's HIP runtime (libamdhip64).
//
// They differ only by symbol mapping, see shim.h. Without either tag Native returns an error, and only
// test doubles (see sub-package gputest) can be used.
//
// The shim introduces no state: every Runtime method is one vendor call with identical semantics.
package gpu

import (
	"math"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Stream is an opaque runtime token identifying an ordered command queue on one device.
//
// It is not owned by this package: streams are created and destroyed by the caller, or it is the
// runtime's implicit DefaultStream.
type Stream uintptr

// DefaultStream is the runtime's implicit stream (the zero token).
const DefaultStream Stream = 0

// Error is a runtime error code, as returned by the vendor runtime.
//
// Use ToError to convert it to a Go error.
type Error int

// Error codes used by this layer. The values are the same for CUDA and HIP.
const (
	Success               Error = 0
	ErrorInvalidValue     Error = 1
	ErrorMemoryAllocation Error = 2
	ErrorInvalidDevice    Error = 101
	ErrorNotReady         Error = 600
	ErrorLaunchFailure    Error = 719
)

// Kernel is the host-side symbol of a compiled kernel (the address of its launch stub), as accepted
// by cudaLaunchKernel/hipLaunchKernel.
type Kernel uintptr

// Dim3 is the size of a grid or of a block of a kernel launch.
type Dim3 struct {
	X, Y, Z uint32
}

// Dim returns a one-dimensional Dim3. It panics if x doesn't fit an unsigned 32 bits int.
func Dim(x int) Dim3 {
	if x < 0 || int64(x) > math.MaxUint32 {
		exceptions.Panicf("gpu.Dim(%d): out of range for a launch dimension", x)
	}
	return Dim3{X: uint32(x), Y: 1, Z: 1}
}

// DeviceProp is the record of hardware properties of one device, a subset of cudaDeviceProp (and
// hipDeviceProp_t, which mirrors it).
type DeviceProp struct {
	Name                        string `json:"name" yaml:"name"`
	TotalGlobalMem              uint64 `json:"total_global_mem" yaml:"total_global_mem"`
	SharedMemPerBlock           int    `json:"shared_mem_per_block" yaml:"shared_mem_per_block"`
	RegsPerBlock                int    `json:"regs_per_block" yaml:"regs_per_block"`
	WarpSize                    int    `json:"warp_size" yaml:"warp_size"`
	MaxThreadsPerBlock          int    `json:"max_threads_per_block" yaml:"max_threads_per_block"`
	MaxThreadsDim               [3]int `json:"max_threads_dim" yaml:"max_threads_dim,flow"`
	MaxGridSize                 [3]int `json:"max_grid_size" yaml:"max_grid_size,flow"`
	TotalConstMem               uint64 `json:"total_const_mem" yaml:"total_const_mem"`
	Major                       int    `json:"major" yaml:"major"`
	Minor                       int    `json:"minor" yaml:"minor"`
	MultiProcessorCount         int    `json:"multi_processor_count" yaml:"multi_processor_count"`
	MaxThreadsPerMultiProcessor int    `json:"max_threads_per_multi_processor" yaml:"max_threads_per_multi_processor"`
	L2CacheSize                 int    `json:"l2_cache_size" yaml:"l2_cache_size"`
	SharedMemPerMultiprocessor  int    `json:"shared_mem_per_multiprocessor" yaml:"shared_mem_per_multiprocessor"`
}

// Runtime is the fixed set of operations consumed from the vendor runtime.
//
// Device pointers are unsafe.Pointer values that must not be dereferenced on the host. Sizes are
// in bytes.
type Runtime interface {
	// Name of the back-end, e.g. "cuda" or "hip".
	Name() string

	GetDeviceCount() (int, Error)

	// GetDevice returns the device currently selected for the calling thread.
	GetDevice() (int, Error)

	// SetDevice selects the device for the calling thread. The allocator is implicitly indexed by it.
	SetDevice(device int) Error

	GetDeviceProperties(device int) (DeviceProp, Error)
	GetErrorString(err Error) string

	Malloc(numBytes int) (unsafe.Pointer, Error)
	Free(ptr unsafe.Pointer) Error

	MemsetAsync(ptr unsafe.Pointer, value int, numBytes int, stream Stream) Error
	MemcpyAsync(dst, src unsafe.Pointer, numBytes int, kind MemcpyKind, stream Stream) Error

	// StreamQuery returns Success if all work on the stream completed, ErrorNotReady if work is
	// still pending, or the error recorded on the stream.
	StreamQuery(stream Stream) Error
	StreamSynchronize(stream Stream) Error

	DeviceSetSharedMemConfig(config SharedMemConfig) Error

	// LaunchKernel enqueues kernel on the stream. Arguments are passed by value, see the device
	// package for the accepted types.
	LaunchKernel(kernel Kernel, grid, block Dim3, sharedMem int, stream Stream, args []any) Error

	// GetLastError returns and resets the last error of the calling thread.
	GetLastError() Error
}

// ToError converts an error code to a Go error, with a stack trace (see github.com/pkg/errors).
// It returns nil for Success.
func ToError(rt Runtime, code Error) error {
	if code == Success {
		return nil
	}
	return errors.Errorf("%s runtime error (code=%d): %s", rt.Name(), code, rt.GetErrorString(code))
}

// SemaphoreSize is the width in bytes of the runtime's native unsigned int, used for semaphores.
const SemaphoreSize = int(unsafe.Sizeof(uint32(0)))
