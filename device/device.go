// Package device implements the GPU device handle used by the tensor expression engine: a GPUDevice
// façade over a StreamInterface (one device, one execution stream, a lazily allocated scratchpad)
// that enqueues asynchronous memory operations, synchronizes, and reports hardware properties used
// to plan kernel launches.
//
// Typical usage:
//
//	rt := must.M1(gpu.Native())
//	stream := device.NewStreamDevice(rt)
//	defer stream.Destroy()
//	d := device.New(stream)
//	buf := d.Allocate(numBytes)
//	d.MemcpyHostToDevice(buf, unsafe.Pointer(&host[0]), numBytes)
//	device.LaunchKernel(d, kernel, grid, block, 0, buf, int32(n))
//	d.Synchronize()
//
// Programming errors (nil arguments, device out of range) panic, see github.com/gomlx/exceptions.
// Runtime errors are fatal: one line is logged with klog and the process exits.
package device

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gpudevice/gpu"
	"k8s.io/klog/v2"
)

const (
	// DefaultNumThreads is the heuristic number of threads (a warp) returned by GPUDevice.NumThreads.
	DefaultNumThreads = 32

	// DefaultL1CacheSize is the heuristic returned by GPUDevice.FirstLevelCacheSize.
	DefaultL1CacheSize = 48 * 1024

	// DefaultMaxBlocks is the default maximum number of blocks: unbounded.
	DefaultMaxBlocks = math.MaxInt32

	// MaxBlocksEnv is the environment variable that, if set, overrides DefaultMaxBlocks for New.
	MaxBlocksEnv = "GPUDEVICE_MAX_BLOCKS"

	kernelPhaseMessage = "The default device should be used instead to generate kernel code"
)

// maxBlocksFromEnv reads MaxBlocksEnv once.
var maxBlocksFromEnv = sync.OnceValue(func() int {
	return parseMaxBlocks(os.Getenv(MaxBlocksEnv))
})

// parseMaxBlocks parses the value of MaxBlocksEnv. Empty or invalid values yield DefaultMaxBlocks.
func parseMaxBlocks(value string) int {
	if value == "" {
		return DefaultMaxBlocks
	}
	maxBlocks, err := strconv.Atoi(value)
	if err != nil || maxBlocks <= 0 {
		klog.Warningf("Invalid value %q for $%s, using the default %d", value, MaxBlocksEnv, DefaultMaxBlocks)
		return DefaultMaxBlocks
	}
	return maxBlocks
}

// GPUDevice is the handle through which work is issued to one stream of one device.
//
// It is a small value, safe to copy. It borrows the StreamInterface, which must outlive it.
type GPUDevice struct {
	stream    StreamInterface
	maxBlocks int
}

// New creates a GPUDevice over stream, with the maximum number of blocks taken from $GPUDEVICE_MAX_BLOCKS,
// or unbounded (DefaultMaxBlocks) if not set.
func New(stream StreamInterface) GPUDevice {
	return NewWithMaxBlocks(stream, maxBlocksFromEnv())
}

// NewWithMaxBlocks creates a GPUDevice over stream with the given cap on the number of blocks.
func NewWithMaxBlocks(stream StreamInterface, numBlocks int) GPUDevice {
	if stream == nil {
		exceptions.Panicf("device.New: nil StreamInterface")
	}
	if s, ok := stream.(*StreamDevice); ok && s == nil {
		exceptions.Panicf("device.New: nil *StreamDevice")
	}
	return GPUDevice{stream: stream, maxBlocks: numBlocks}
}

// String implements fmt.Stringer.
func (d GPUDevice) String() string {
	if d.stream == nil {
		return "GPUDevice(nil)"
	}
	return fmt.Sprintf("GPUDevice(%s device #%d, stream=%#x)", d.stream.Runtime().Name(), d.stream.Device(), uintptr(d.stream.Stream()))
}

// Stream returns the stream work is enqueued on.
//
// Internal: used by LaunchKernel.
func (d GPUDevice) Stream() gpu.Stream {
	return d.stream.Stream()
}

func (d GPUDevice) Allocate(numBytes int) unsafe.Pointer {
	return d.stream.Allocate(numBytes)
}

func (d GPUDevice) Deallocate(buffer unsafe.Pointer) {
	d.stream.Deallocate(buffer)
}

func (d GPUDevice) Scratchpad() unsafe.Pointer {
	return d.stream.Scratchpad()
}

func (d GPUDevice) Semaphore() *uint32 {
	return d.stream.Semaphore()
}

// Memcpy enqueues a device to device copy of numBytes.
func (d GPUDevice) Memcpy(dst, src unsafe.Pointer, numBytes int) {
	if deviceCompilePhase {
		fatalf(kernelPhaseMessage)
		return
	}
	rt := d.stream.Runtime()
	code := rt.MemcpyAsync(dst, src, numBytes, gpu.MemcpyDeviceToDevice, d.stream.Stream())
	checkFatal(rt, code, "Memcpy(%p, %p, %d)", dst, src, numBytes)
}

// MemcpyHostToDevice enqueues a copy of numBytes from host memory src to device memory dst.
// src must stay valid until the copy is done, see Synchronize.
func (d GPUDevice) MemcpyHostToDevice(dst, src unsafe.Pointer, numBytes int) {
	rt := d.stream.Runtime()
	code := rt.MemcpyAsync(dst, src, numBytes, gpu.MemcpyHostToDevice, d.stream.Stream())
	checkFatal(rt, code, "MemcpyHostToDevice(%p, %p, %d)", dst, src, numBytes)
}

// MemcpyDeviceToHost enqueues a copy of numBytes from device memory src to host memory dst.
// dst only holds the result after Synchronize.
func (d GPUDevice) MemcpyDeviceToHost(dst, src unsafe.Pointer, numBytes int) {
	rt := d.stream.Runtime()
	code := rt.MemcpyAsync(dst, src, numBytes, gpu.MemcpyDeviceToHost, d.stream.Stream())
	checkFatal(rt, code, "MemcpyDeviceToHost(%p, %p, %d)", dst, src, numBytes)
}

// Memset enqueues setting numBytes of device memory to the byte value c.
func (d GPUDevice) Memset(buffer unsafe.Pointer, c int, numBytes int) {
	if deviceCompilePhase {
		fatalf(kernelPhaseMessage)
		return
	}
	rt := d.stream.Runtime()
	code := rt.MemsetAsync(buffer, c, numBytes, d.stream.Stream())
	checkFatal(rt, code, "Memset(%p, %d, %d)", buffer, c, numBytes)
}

// NumThreads is a heuristic (the width of a warp) used by the expression planner.
func (d GPUDevice) NumThreads() int {
	return DefaultNumThreads
}

// FirstLevelCacheSize is a heuristic, not queried from the device.
func (d GPUDevice) FirstLevelCacheSize() int {
	return DefaultL1CacheSize
}

// LastLevelCacheSize returns FirstLevelCacheSize: the L2 cache is not taken advantage of, and there is
// no L3 cache on GPUs.
func (d GPUDevice) LastLevelCacheSize() int {
	return d.FirstLevelCacheSize()
}

// Synchronize blocks until all the work enqueued on the stream is done. Failure is fatal.
func (d GPUDevice) Synchronize() {
	if deviceCompilePhase {
		fatalf(kernelPhaseMessage)
		return
	}
	rt := d.stream.Runtime()
	if code := rt.StreamSynchronize(d.stream.Stream()); code != gpu.Success {
		fatalf("Error detected in GPU stream: %s", rt.GetErrorString(code))
	}
}

func (d GPUDevice) NumMultiProcessors() int {
	return d.stream.DeviceProperties().MultiProcessorCount
}

func (d GPUDevice) MaxThreadsPerBlock() int {
	return d.stream.DeviceProperties().MaxThreadsPerBlock
}

func (d GPUDevice) MaxThreadsPerMultiProcessor() int {
	return d.stream.DeviceProperties().MaxThreadsPerMultiProcessor
}

func (d GPUDevice) SharedMemPerBlock() int {
	return d.stream.DeviceProperties().SharedMemPerBlock
}

func (d GPUDevice) MajorDeviceVersion() int {
	return d.stream.DeviceProperties().Major
}

func (d GPUDevice) MinorDeviceVersion() int {
	return d.stream.DeviceProperties().Minor
}

func (d GPUDevice) MaxBlocks() int {
	return d.maxBlocks
}

// Ok checks whether the runtime recorded an error for the stream, without blocking.
// Work still pending (not ready) is not an error.
func (d GPUDevice) Ok() bool {
	if deviceCompilePhase {
		return false
	}
	code := d.stream.Runtime().StreamQuery(d.stream.Stream())
	return code == gpu.Success || code == gpu.ErrorNotReady
}

// CopyToDevice enqueues the copy of the host slice src to device memory dst.
func CopyToDevice[T any](d GPUDevice, dst unsafe.Pointer, src []T) {
	if len(src) == 0 {
		return
	}
	var zero T
	d.MemcpyHostToDevice(dst, unsafe.Pointer(&src[0]), len(src)*int(unsafe.Sizeof(zero)))
}

// CopyFromDevice enqueues the copy of len(dst) elements from device memory src to the host slice dst.
// dst only holds the result after d.Synchronize.
func CopyFromDevice[T any](d GPUDevice, dst []T, src unsafe.Pointer) {
	if len(dst) == 0 {
		return
	}
	var zero T
	d.MemcpyDeviceToHost(unsafe.Pointer(&dst[0]), src, len(dst)*int(unsafe.Sizeof(zero)))
}
