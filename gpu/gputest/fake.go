// Package gputest provides FakeRuntime, a host-memory backed implementation of gpu.Runtime that records
// every call, so the layers above the shim can be tested without GPU hardware.
package gputest

import (
	"fmt"
	"slices"
	"sync"
	"time"
	"unsafe"

	"github.com/gomlx/gpudevice/gpu"
)

// Op identifies a gpu.Runtime method in the recorded calls.
type Op string

const (
	OpGetDeviceCount           Op = "GetDeviceCount"
	OpGetDevice                Op = "GetDevice"
	OpSetDevice                Op = "SetDevice"
	OpGetDeviceProperties      Op = "GetDeviceProperties"
	OpMalloc                   Op = "Malloc"
	OpFree                     Op = "Free"
	OpMemsetAsync              Op = "MemsetAsync"
	OpMemcpyAsync              Op = "MemcpyAsync"
	OpStreamQuery              Op = "StreamQuery"
	OpStreamSynchronize        Op = "StreamSynchronize"
	OpDeviceSetSharedMemConfig Op = "DeviceSetSharedMemConfig"
	OpLaunchKernel             Op = "LaunchKernel"
)

// Call is one recorded call to the FakeRuntime. Only the fields relevant to Op are set.
type Call struct {
	Op       Op
	Device   int
	Ptr      unsafe.Pointer // Malloc result, Free/MemsetAsync target, MemcpyAsync destination.
	Src      unsafe.Pointer
	NumBytes int
	Value    int
	Kind     gpu.MemcpyKind
	Stream   gpu.Stream
	Config   gpu.SharedMemConfig
	Kernel   gpu.Kernel
	Grid     gpu.Dim3
	Block    gpu.Dim3
	Args     []any
}

// String implements fmt.Stringer.
func (c Call) String() string {
	switch c.Op {
	case OpSetDevice, OpGetDeviceProperties:
		return fmt.Sprintf("%s(%d)", c.Op, c.Device)
	case OpMalloc:
		return fmt.Sprintf("%s(%d)", c.Op, c.NumBytes)
	case OpMemsetAsync:
		return fmt.Sprintf("%s(%p, %d, %d, stream=%#x)", c.Op, c.Ptr, c.Value, c.NumBytes, uintptr(c.Stream))
	case OpMemcpyAsync:
		return fmt.Sprintf("%s(%p, %p, %d, %s, stream=%#x)", c.Op, c.Ptr, c.Src, c.NumBytes, c.Kind, uintptr(c.Stream))
	case OpStreamQuery, OpStreamSynchronize:
		return fmt.Sprintf("%s(stream=%#x)", c.Op, uintptr(c.Stream))
	}
	return string(c.Op)
}

// KernelFn is a Go stand-in for a kernel, run synchronously by FakeRuntime.LaunchKernel.
type KernelFn func(grid, block gpu.Dim3, args []any)

// FakeRuntime implements gpu.Runtime on host memory.
//
// Device allocations are Go byte slices kept alive by the runtime until freed; asynchronous memory
// operations are executed immediately. The "current device" is shared by all goroutines, while real
// runtimes keep one per thread.
//
// It is safe for concurrent use.
type FakeRuntime struct {
	mu           sync.Mutex
	props        []gpu.DeviceProp
	current      int
	calls        []Call
	errs         map[Op]gpu.Error
	queryResults []gpu.Error
	allocations  map[uintptr][]byte
	kernels      map[gpu.Kernel]KernelFn
	lastError    gpu.Error
	propsDelay   time.Duration
}

var _ gpu.Runtime = (*FakeRuntime)(nil)

// New creates a FakeRuntime with numDevices devices with DefaultProperties.
func New(numDevices int) *FakeRuntime {
	props := make([]gpu.DeviceProp, numDevices)
	for ii := range props {
		props[ii] = DefaultProperties(ii)
	}
	return NewWithProperties(props...)
}

// NewWithProperties creates a FakeRuntime with one device per given property record.
func NewWithProperties(props ...gpu.DeviceProp) *FakeRuntime {
	return &FakeRuntime{
		props:       slices.Clone(props),
		errs:        make(map[Op]gpu.Error),
		allocations: make(map[uintptr][]byte),
		kernels:     make(map[gpu.Kernel]KernelFn),
	}
}

// DefaultProperties returns plausible properties for the fake device number device.
// Devices differ by their multiprocessor count (80 + device) so tests can tell them apart.
func DefaultProperties(device int) gpu.DeviceProp {
	return gpu.DeviceProp{
		Name:                        fmt.Sprintf("Fake GPU #%d", device),
		TotalGlobalMem:              16 << 30,
		SharedMemPerBlock:           48 * 1024,
		RegsPerBlock:                65536,
		WarpSize:                    32,
		MaxThreadsPerBlock:          1024,
		MaxThreadsDim:               [3]int{1024, 1024, 64},
		MaxGridSize:                 [3]int{2147483647, 65535, 65535},
		TotalConstMem:               64 * 1024,
		Major:                       8,
		Minor:                       6,
		MultiProcessorCount:         80 + device,
		MaxThreadsPerMultiProcessor: 2048,
		L2CacheSize:                 6 << 20,
		SharedMemPerMultiprocessor:  100 * 1024,
	}
}

// SetError makes every following call to op fail with code. Use gpu.Success to clear it.
func (f *FakeRuntime) SetError(op Op, code gpu.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code == gpu.Success {
		delete(f.errs, op)
		return
	}
	f.errs[op] = code
}

// SetQueryResults sets the codes returned by the following StreamQuery calls, in order.
// The last one is repeated. By default StreamQuery returns gpu.Success.
func (f *FakeRuntime) SetQueryResults(codes ...gpu.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryResults = slices.Clone(codes)
}

// SetCurrentDevice sets the device returned by GetDevice, without recording a call.
func (f *FakeRuntime) SetCurrentDevice(device int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = device
}

// SetPropertiesDelay makes each GetDeviceProperties call sleep for delay, to widen race windows in tests.
func (f *FakeRuntime) SetPropertiesDelay(delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.propsDelay = delay
}

// RegisterKernel associates a Go function to the kernel symbol, to be run by LaunchKernel.
func (f *FakeRuntime) RegisterKernel(kernel gpu.Kernel, fn KernelFn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kernels[kernel] = fn
}

// Calls returns a copy of the calls recorded so far.
func (f *FakeRuntime) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsOf returns the recorded calls of the given operations, in order.
func (f *FakeRuntime) CallsOf(ops ...Op) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var filtered []Call
	for _, c := range f.calls {
		if slices.Contains(ops, c.Op) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// CountCalls returns how many times op was called.
func (f *FakeRuntime) CountCalls(op Op) int {
	return len(f.CallsOf(op))
}

// ResetCalls forgets the recorded calls.
func (f *FakeRuntime) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// LiveAllocations returns the number of device allocations not yet freed.
func (f *FakeRuntime) LiveAllocations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.allocations)
}

// Memory returns a copy of numBytes of device memory starting at ptr.
// It panics if the range is not within one live allocation.
func (f *FakeRuntime) Memory(ptr unsafe.Pointer, numBytes int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.deviceBytes(ptr, numBytes)
	if !ok {
		panic(fmt.Sprintf("gputest: [%p, +%d) is not device memory", ptr, numBytes))
	}
	return slices.Clone(b)
}

// record appends a call and returns the injected error for it, if any. Must hold f.mu.
func (f *FakeRuntime) record(c Call) gpu.Error {
	f.calls = append(f.calls, c)
	return f.errs[c.Op]
}

// deviceBytes returns the slice of device memory [ptr, ptr+numBytes), if it is within one live allocation.
// Must hold f.mu.
func (f *FakeRuntime) deviceBytes(ptr unsafe.Pointer, numBytes int) ([]byte, bool) {
	p := uintptr(ptr)
	for base, buf := range f.allocations {
		if p >= base && p+uintptr(numBytes) <= base+uintptr(len(buf)) {
			offset := int(p - base)
			return buf[offset : offset+numBytes], true
		}
	}
	return nil, false
}

// Name implements gpu.Runtime.
func (f *FakeRuntime) Name() string { return "fake" }

// GetDeviceCount implements gpu.Runtime.
func (f *FakeRuntime) GetDeviceCount() (int, gpu.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.record(Call{Op: OpGetDeviceCount}); code != gpu.Success {
		return 0, code
	}
	return len(f.props), gpu.Success
}

// GetDevice implements gpu.Runtime.
func (f *FakeRuntime) GetDevice() (int, gpu.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.record(Call{Op: OpGetDevice}); code != gpu.Success {
		return 0, code
	}
	return f.current, gpu.Success
}

// SetDevice implements gpu.Runtime.
func (f *FakeRuntime) SetDevice(device int) gpu.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.record(Call{Op: OpSetDevice, Device: device}); code != gpu.Success {
		return code
	}
	if device < 0 || device >= len(f.props) {
		return gpu.ErrorInvalidDevice
	}
	f.current = device
	return gpu.Success
}

// GetDeviceProperties implements gpu.Runtime.
func (f *FakeRuntime) GetDeviceProperties(device int) (gpu.DeviceProp, gpu.Error) {
	f.mu.Lock()
	code := f.record(Call{Op: OpGetDeviceProperties, Device: device})
	delay := f.propsDelay
	var prop gpu.DeviceProp
	if code == gpu.Success {
		if device < 0 || device >= len(f.props) {
			code = gpu.ErrorInvalidDevice
		} else {
			prop = f.props[device]
		}
	}
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return prop, code
}

var errorStrings = map[gpu.Error]string{
	gpu.Success:               "no error",
	gpu.ErrorInvalidValue:     "invalid argument",
	gpu.ErrorMemoryAllocation: "out of memory",
	gpu.ErrorInvalidDevice:    "invalid device ordinal",
	gpu.ErrorNotReady:         "device not ready",
	gpu.ErrorLaunchFailure:    "unspecified launch failure",
}

// GetErrorString implements gpu.Runtime, with the same messages as the CUDA runtime.
func (f *FakeRuntime) GetErrorString(err gpu.Error) string {
	if msg, found := errorStrings[err]; found {
		return msg
	}
	return "unknown error"
}

// Malloc implements gpu.Runtime.
func (f *FakeRuntime) Malloc(numBytes int) (unsafe.Pointer, gpu.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := Call{Op: OpMalloc, Device: f.current, NumBytes: numBytes}
	if code, found := f.errs[OpMalloc]; found {
		f.calls = append(f.calls, c)
		return nil, code
	}
	if numBytes <= 0 {
		f.calls = append(f.calls, c)
		return nil, gpu.ErrorInvalidValue
	}
	buf := make([]byte, numBytes)
	ptr := unsafe.Pointer(&buf[0])
	f.allocations[uintptr(ptr)] = buf
	c.Ptr = ptr
	f.calls = append(f.calls, c)
	return ptr, gpu.Success
}

// Free implements gpu.Runtime.
func (f *FakeRuntime) Free(ptr unsafe.Pointer) gpu.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := f.allocations[uintptr(ptr)]
	if code := f.record(Call{Op: OpFree, Device: f.current, Ptr: ptr, NumBytes: len(buf)}); code != gpu.Success {
		return code
	}
	if buf == nil {
		return gpu.ErrorInvalidValue
	}
	delete(f.allocations, uintptr(ptr))
	return gpu.Success
}

// MemsetAsync implements gpu.Runtime. The memset is executed immediately.
func (f *FakeRuntime) MemsetAsync(ptr unsafe.Pointer, value int, numBytes int, stream gpu.Stream) gpu.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.record(Call{Op: OpMemsetAsync, Ptr: ptr, Value: value, NumBytes: numBytes, Stream: stream}); code != gpu.Success {
		return code
	}
	dst, ok := f.deviceBytes(ptr, numBytes)
	if !ok {
		return gpu.ErrorInvalidValue
	}
	for ii := range dst {
		dst[ii] = byte(value)
	}
	return gpu.Success
}

// MemcpyAsync implements gpu.Runtime. The copy is executed immediately, and the device side(s) of the
// copy must be within live allocations.
func (f *FakeRuntime) MemcpyAsync(dst, src unsafe.Pointer, numBytes int, kind gpu.MemcpyKind, stream gpu.Stream) gpu.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.record(Call{Op: OpMemcpyAsync, Ptr: dst, Src: src, NumBytes: numBytes, Kind: kind, Stream: stream}); code != gpu.Success {
		return code
	}
	if numBytes == 0 {
		return gpu.Success
	}
	var dstBytes, srcBytes []byte
	var ok bool
	if kind == gpu.MemcpyDeviceToDevice || kind == gpu.MemcpyHostToDevice {
		if dstBytes, ok = f.deviceBytes(dst, numBytes); !ok {
			return gpu.ErrorInvalidValue
		}
	} else {
		dstBytes = unsafe.Slice((*byte)(dst), numBytes)
	}
	if kind == gpu.MemcpyDeviceToDevice || kind == gpu.MemcpyDeviceToHost {
		if srcBytes, ok = f.deviceBytes(src, numBytes); !ok {
			return gpu.ErrorInvalidValue
		}
	} else {
		srcBytes = unsafe.Slice((*byte)(src), numBytes)
	}
	copy(dstBytes, srcBytes)
	return gpu.Success
}

// StreamQuery implements gpu.Runtime, see SetQueryResults.
func (f *FakeRuntime) StreamQuery(stream gpu.Stream) gpu.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.record(Call{Op: OpStreamQuery, Stream: stream}); code != gpu.Success {
		return code
	}
	if len(f.queryResults) == 0 {
		return gpu.Success
	}
	code := f.queryResults[0]
	if len(f.queryResults) > 1 {
		f.queryResults = f.queryResults[1:]
	}
	return code
}

// StreamSynchronize implements gpu.Runtime. Since work is executed immediately, it drains pending
// StreamQuery results: after it returns StreamQuery reports gpu.Success.
func (f *FakeRuntime) StreamSynchronize(stream gpu.Stream) gpu.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.record(Call{Op: OpStreamSynchronize, Stream: stream}); code != gpu.Success {
		return code
	}
	f.queryResults = nil
	return gpu.Success
}

// DeviceSetSharedMemConfig implements gpu.Runtime.
func (f *FakeRuntime) DeviceSetSharedMemConfig(config gpu.SharedMemConfig) gpu.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.record(Call{Op: OpDeviceSetSharedMemConfig, Config: config}); code != gpu.Success {
		return code
	}
	if !config.IsASharedMemConfig() {
		return gpu.ErrorInvalidValue
	}
	return gpu.Success
}

// LaunchKernel implements gpu.Runtime. If a KernelFn was registered for kernel, it is run before returning.
// Failures are also recorded as the last error, as real runtimes do.
func (f *FakeRuntime) LaunchKernel(kernel gpu.Kernel, grid, block gpu.Dim3, sharedMem int, stream gpu.Stream, args []any) gpu.Error {
	f.mu.Lock()
	code := f.record(Call{Op: OpLaunchKernel, Kernel: kernel, Grid: grid, Block: block, NumBytes: sharedMem,
		Stream: stream, Args: slices.Clone(args)})
	if code == gpu.Success && gpu.CheckKernelArgs(args) != nil {
		code = gpu.ErrorInvalidValue
	}
	if code != gpu.Success {
		f.lastError = code
		f.mu.Unlock()
		return code
	}
	fn := f.kernels[kernel]
	f.mu.Unlock()
	if fn != nil {
		fn(grid, block, args)
	}
	return gpu.Success
}

// GetLastError implements gpu.Runtime.
func (f *FakeRuntime) GetLastError() gpu.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	code := f.lastError
	f.lastError = gpu.Success
	return code
}
