package device

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/gomlx/gpudevice/gpu"
	"k8s.io/klog/v2"
)

// The device properties are discovered once per process, by the first StreamDevice constructed, and
// never change afterward.
//
// The first caller to claim propsClaimed populates deviceProperties and then publishes them by
// storing propsInitialized. Other callers poll propsInitialized until then. The atomic store/load pair
// orders the writes to deviceProperties before any read by other goroutines.
var (
	propsClaimed     atomic.Bool
	propsInitialized atomic.Bool
	deviceProperties []gpu.DeviceProp
)

// propsPollInterval is how long goroutines waiting for the discovery sleep between polls.
const propsPollInterval = time.Millisecond

// initializeDeviceProperties discovers the properties of all devices visible to rt, if not yet done.
//
// Failures are fatal: every subsequent operation depends on the cache.
func initializeDeviceProperties(rt gpu.Runtime) {
	if propsInitialized.Load() {
		return
	}
	if !propsClaimed.CompareAndSwap(false, true) {
		// Wait for the other goroutine to initialize the properties.
		for !propsInitialized.Load() {
			time.Sleep(propsPollInterval)
		}
		return
	}

	numDevices, code := rt.GetDeviceCount()
	if code != gpu.Success {
		fatalf("Failed to get the number of GPU devices: %s", rt.GetErrorString(code))
		return
	}
	props := make([]gpu.DeviceProp, numDevices)
	for device := range props {
		props[device], code = rt.GetDeviceProperties(device)
		if code != gpu.Success {
			fatalf("Failed to initialize GPU device #%d: %s", device, rt.GetErrorString(code))
			return
		}
	}
	deviceProperties = props
	propsInitialized.Store(true)
	klog.V(1).Infof("%s runtime: discovered properties of %d device(s)", rt.Name(), numDevices)
}

// Properties returns a copy of the cached properties of all devices, indexed by device number.
// It returns nil if no StreamDevice was constructed yet.
func Properties() []gpu.DeviceProp {
	if !propsInitialized.Load() {
		return nil
	}
	return slices.Clone(deviceProperties)
}

// NumDevices returns the number of devices in the property cache, or 0 if it isn't initialized yet.
func NumDevices() int {
	if !propsInitialized.Load() {
		return 0
	}
	return len(deviceProperties)
}
