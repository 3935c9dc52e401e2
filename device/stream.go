package device

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gpudevice/gpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// ScratchSize is the size of the scratchpad returned by StreamInterface.Scratchpad, not counting the
	// semaphore stored right after it. Kernels using the semaphore rely on this offset.
	ScratchSize = 1024

	// SemaphoreSize is the size of the semaphore counter, the runtime's native unsigned int.
	SemaphoreSize = gpu.SemaphoreSize

	// CurrentDevice can be given to NewStreamDeviceWithStream to use the device currently selected.
	CurrentDevice = -1
)

// StreamInterface ties together one device and one execution stream. It is the capability set
// GPUDevice forwards to.
type StreamInterface interface {
	// Stream returns the execution stream. Constant for the lifetime of the StreamInterface.
	Stream() gpu.Stream

	// Device returns the index of the device the stream runs on.
	Device() int

	// Runtime returns the runtime shim used to enqueue work.
	Runtime() gpu.Runtime

	// DeviceProperties returns the cached properties of Device().
	DeviceProperties() *gpu.DeviceProp

	// Allocate memory on the actual device where the computation will run.
	Allocate(numBytes int) unsafe.Pointer
	Deallocate(buffer unsafe.Pointer)

	// Scratchpad returns a buffer of ScratchSize bytes on the device, lazily allocated.
	Scratchpad() unsafe.Pointer

	// Semaphore returns a counter on the device initialized to 0. Each kernel using it is
	// responsible for resetting it to 0 upon completion, to maintain the invariant that the
	// semaphore is always equal to 0 upon each kernel start.
	Semaphore() *uint32
}

// defaultStream is the target of the stream pointer of StreamDevice using the runtime's implicit stream.
var defaultStream = gpu.DefaultStream

// StreamDevice implements StreamInterface over a gpu.Runtime, either on the runtime's default stream or on
// a stream provided by the caller.
//
// The stream is not owned: the caller is responsible for its creation and eventual destruction.
// The scratchpad is owned, and freed by Destroy (or when garbage collected).
//
// It is not safe for concurrent use before Scratchpad (or Semaphore) has been called once.
type StreamDevice struct {
	rt        gpu.Runtime
	stream    *gpu.Stream
	device    int
	scratch   unsafe.Pointer
	semaphore *uint32
}

var _ StreamInterface = (*StreamDevice)(nil)

// NewStreamDevice uses the default stream on the current device.
func NewStreamDevice(rt gpu.Runtime) *StreamDevice {
	if rt == nil {
		exceptions.Panicf("NewStreamDevice: nil runtime")
	}
	return newStreamDevice(rt, &defaultStream, currentDevice(rt))
}

// NewStreamDeviceOn uses the default stream on the given device.
func NewStreamDeviceOn(rt gpu.Runtime, device int) *StreamDevice {
	if rt == nil {
		exceptions.Panicf("NewStreamDeviceOn: nil runtime")
	}
	return newStreamDevice(rt, &defaultStream, device)
}

// NewStreamDeviceWithStream uses the given stream. It is the caller's responsibility to ensure that the
// stream can run on the given device, and that it outlives the StreamDevice.
//
// If device is CurrentDevice (or any negative value), the stream is assumed to be associated with
// the current device.
func NewStreamDeviceWithStream(rt gpu.Runtime, stream *gpu.Stream, device int) *StreamDevice {
	if rt == nil {
		exceptions.Panicf("NewStreamDeviceWithStream: nil runtime")
	}
	if stream == nil {
		exceptions.Panicf("NewStreamDeviceWithStream: nil stream")
	}
	if device < 0 {
		device = currentDevice(rt)
	} else {
		numDevices, code := rt.GetDeviceCount()
		checkFatal(rt, code, "NewStreamDeviceWithStream: failed to get the number of GPU devices")
		if device >= numDevices {
			exceptions.Panicf("NewStreamDeviceWithStream: device #%d out of range, only %d devices available", device, numDevices)
		}
	}
	return newStreamDevice(rt, stream, device)
}

func currentDevice(rt gpu.Runtime) int {
	device, code := rt.GetDevice()
	checkFatal(rt, code, "failed to get the current GPU device")
	return device
}

func newStreamDevice(rt gpu.Runtime, stream *gpu.Stream, device int) *StreamDevice {
	initializeDeviceProperties(rt)
	if device < 0 || device >= len(deviceProperties) {
		exceptions.Panicf("StreamDevice: device #%d out of range, only %d devices available", device, len(deviceProperties))
	}
	s := &StreamDevice{rt: rt, stream: stream, device: device}
	runtime.SetFinalizer(s, finalizeStreamDevice)
	return s
}

// finalizeStreamDevice frees the scratchpad of a StreamDevice garbage collected without Destroy.
// Failures are only logged: it runs on the finalizer goroutine.
func finalizeStreamDevice(s *StreamDevice) {
	if s.scratch == nil {
		return
	}
	klog.V(1).Infof("%s garbage collected without Destroy, freeing its scratchpad", s)
	if err := s.free(s.scratch); err != nil {
		klog.Errorf("StreamDevice.Destroy failed: %v", err)
	}
	s.scratch = nil
	s.semaphore = nil
}

// Destroy frees the scratchpad, if it was allocated. The stream is not touched.
// It is automatically called if the StreamDevice is garbage collected, and it is a no-op if called again.
func (s *StreamDevice) Destroy() {
	if s == nil {
		return
	}
	if s.scratch != nil {
		s.Deallocate(s.scratch)
		s.scratch = nil
		s.semaphore = nil
	}
	runtime.SetFinalizer(s, nil)
}

// String implements fmt.Stringer.
func (s *StreamDevice) String() string {
	return fmt.Sprintf("StreamDevice(%s device #%d, stream=%#x)", s.rt.Name(), s.device, uintptr(*s.stream))
}

// Stream implements StreamInterface.
func (s *StreamDevice) Stream() gpu.Stream { return *s.stream }

// Device implements StreamInterface.
func (s *StreamDevice) Device() int { return s.device }

// Runtime implements StreamInterface.
func (s *StreamDevice) Runtime() gpu.Runtime { return s.rt }

// DeviceProperties implements StreamInterface.
func (s *StreamDevice) DeviceProperties() *gpu.DeviceProp {
	return &deviceProperties[s.device]
}

// Allocate implements StreamInterface. The device is selected on the calling thread first, since the
// allocator is implicitly indexed by it. Failure is fatal.
func (s *StreamDevice) Allocate(numBytes int) unsafe.Pointer {
	checkFatal(s.rt, s.rt.SetDevice(s.device), "Allocate(%d): failed to select device #%d", numBytes, s.device)
	ptr, code := s.rt.Malloc(numBytes)
	checkFatal(s.rt, code, "Allocate(%d) on device #%d", numBytes, s.device)
	if ptr == nil {
		fatalf("Allocate(%d) on device #%d: runtime returned a nil pointer", numBytes, s.device)
	}
	return ptr
}

// Deallocate implements StreamInterface. A nil buffer panics, any runtime failure is fatal.
func (s *StreamDevice) Deallocate(buffer unsafe.Pointer) {
	if buffer == nil {
		exceptions.Panicf("Deallocate: nil buffer on device #%d", s.device)
	}
	if err := s.free(buffer); err != nil {
		fatalf("Deallocate(%p): %v", buffer, err)
	}
}

// free selects the device of s and frees buffer.
func (s *StreamDevice) free(buffer unsafe.Pointer) error {
	if err := gpu.ToError(s.rt, s.rt.SetDevice(s.device)); err != nil {
		return errors.WithMessagef(err, "failed to select device #%d", s.device)
	}
	return errors.WithMessagef(gpu.ToError(s.rt, s.rt.Free(buffer)), "failed to free %p on device #%d", buffer, s.device)
}

// Scratchpad implements StreamInterface. The allocation is ScratchSize+SemaphoreSize bytes, the
// semaphore lives after the first ScratchSize bytes.
func (s *StreamDevice) Scratchpad() unsafe.Pointer {
	if s.scratch == nil {
		s.scratch = s.Allocate(ScratchSize + SemaphoreSize)
		klog.V(2).Infof("%s: allocated scratchpad at %p", s, s.scratch)
	}
	return s.scratch
}

// Semaphore implements StreamInterface. The first call enqueues the zero-initialization on the stream,
// so any kernel later enqueued on the same stream sees 0.
func (s *StreamDevice) Semaphore() *uint32 {
	if s.semaphore == nil {
		s.semaphore = (*uint32)(unsafe.Add(s.Scratchpad(), ScratchSize))
		code := s.rt.MemsetAsync(unsafe.Pointer(s.semaphore), 0, SemaphoreSize, *s.stream)
		checkFatal(s.rt, code, "Semaphore: failed to zero-initialize on device #%d", s.device)
	}
	return s.semaphore
}
