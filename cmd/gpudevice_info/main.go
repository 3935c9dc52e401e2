// gpudevice_info lists the GPU devices visible to the runtime, with the cached properties and heuristics
// used to plan kernel launches. Optionally, it probes each device.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/gomlx/gpudevice/device"
	"github.com/gomlx/gpudevice/gpu"
	"github.com/gomlx/gpudevice/gpu/gputest"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

var (
	flagFormat = flag.String("format", "text", "Output format: text, json or yaml.")
	flagFake   = flag.Int("fake", 0, "If > 0, report this many fake devices (backed by host memory) instead of "+
		"using the native runtime. Useful to try the tool on machines without a GPU.")
	flagDevice = flag.Int("device", -1, "Report only this device. If < 0, all devices are reported.")
	flagProbe  = flag.Bool("probe", false, "Exercise each device concurrently: allocate its scratchpad and semaphore, "+
		"synchronize its default stream and check its status.")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `gpudevice_info lists the GPU devices and their properties.

The GPU runtime is selected at build time: build it with "-tags cuda" or "-tags hip",
or use -fake to try it without a GPU.

Usage:
`)
		flag.PrintDefaults()
	}
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	rt := must.M1(openRuntime(*flagFake))
	report := must.M1(buildReport(rt, *flagDevice, *flagProbe))
	must.M(writeReport(os.Stdout, report, *flagFormat))
}

// Report lists the devices of one runtime.
type Report struct {
	Runtime    string       `json:"runtime" yaml:"runtime"`
	NumDevices int          `json:"num_devices" yaml:"num_devices"`
	Devices    []DeviceInfo `json:"devices" yaml:"devices"`
}

// DeviceInfo holds the cached properties of one device, and the heuristics of a GPUDevice on it.
type DeviceInfo struct {
	Device              int            `json:"device" yaml:"device"`
	Properties          gpu.DeviceProp `json:"properties" yaml:"properties"`
	NumThreads          int            `json:"num_threads" yaml:"num_threads"`
	FirstLevelCacheSize int            `json:"first_level_cache_size" yaml:"first_level_cache_size"`
	LastLevelCacheSize  int            `json:"last_level_cache_size" yaml:"last_level_cache_size"`
	MaxBlocks           int            `json:"max_blocks" yaml:"max_blocks"`
	Probe               *ProbeResult   `json:"probe,omitempty" yaml:"probe,omitempty"`
}

// ProbeResult is the outcome of probing one device.
type ProbeResult struct {
	Ok      bool          `json:"ok" yaml:"ok"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

func openRuntime(numFake int) (gpu.Runtime, error) {
	if numFake > 0 {
		klog.V(1).Infof("Using %d fake devices", numFake)
		return gputest.New(numFake), nil
	}
	return gpu.Native()
}

// buildReport collects the information of the selected device, or of all devices if selected < 0.
func buildReport(rt gpu.Runtime, selected int, probe bool) (*Report, error) {
	numDevices, code := rt.GetDeviceCount()
	if err := gpu.ToError(rt, code); err != nil {
		return nil, errors.WithMessage(err, "failed to get the number of GPU devices")
	}
	if numDevices == 0 {
		return nil, errors.Errorf("no GPU devices found by the %s runtime", rt.Name())
	}
	if selected >= numDevices {
		return nil, errors.Errorf("-device=%d given, but only %d devices are available", selected, numDevices)
	}
	devices := make([]int, 0, numDevices)
	if selected >= 0 {
		devices = append(devices, selected)
	} else {
		for ii := range numDevices {
			devices = append(devices, ii)
		}
	}

	report := &Report{Runtime: rt.Name(), NumDevices: numDevices, Devices: make([]DeviceInfo, len(devices))}
	streams := make([]*device.StreamDevice, len(devices))
	defer func() {
		for _, s := range streams {
			s.Destroy()
		}
	}()
	for ii, deviceNum := range devices {
		streams[ii] = device.NewStreamDeviceOn(rt, deviceNum)
		d := device.New(streams[ii])
		report.Devices[ii] = DeviceInfo{
			Device:              deviceNum,
			Properties:          *streams[ii].DeviceProperties(),
			NumThreads:          d.NumThreads(),
			FirstLevelCacheSize: d.FirstLevelCacheSize(),
			LastLevelCacheSize:  d.LastLevelCacheSize(),
			MaxBlocks:           d.MaxBlocks(),
		}
	}
	if !probe {
		return report, nil
	}

	var g errgroup.Group
	for ii := range devices {
		g.Go(func() error {
			// The runtime's current device is per thread: Allocate selects it on this one.
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			start := time.Now()
			d := device.New(streams[ii])
			_ = d.Semaphore()
			d.Synchronize()
			report.Devices[ii].Probe = &ProbeResult{Ok: d.Ok(), Elapsed: time.Since(start)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// writeReport writes report to w in the given format.
func writeReport(w io.Writer, report *Report, format string) error {
	switch format {
	case "text":
		return writeText(w, report)
	case "json":
		blob, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode report to JSON")
		}
		_, err = fmt.Fprintf(w, "%s\n", blob)
		return errors.WithStack(err)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return errors.Wrap(err, "failed to encode report to YAML")
		}
		return errors.WithStack(enc.Close())
	}
	return errors.Errorf("unknown -format=%q, valid values are text, json or yaml", format)
}

func writeText(w io.Writer, report *Report) error {
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	printf("%s runtime: %d device(s)\n", report.Runtime, report.NumDevices)
	for _, info := range report.Devices {
		p := info.Properties
		printf("\nDevice #%d: %s\n", info.Device, p.Name)
		printf("  Compute capability:        %d.%d\n", p.Major, p.Minor)
		printf("  Global memory:             %s\n", humanize.IBytes(p.TotalGlobalMem))
		printf("  Constant memory:           %s\n", humanize.IBytes(p.TotalConstMem))
		printf("  Multiprocessors:           %d (%d threads each)\n", p.MultiProcessorCount, p.MaxThreadsPerMultiProcessor)
		printf("  Warp size:                 %d\n", p.WarpSize)
		printf("  Max threads per block:     %d %v\n", p.MaxThreadsPerBlock, p.MaxThreadsDim)
		printf("  Max grid size:             %v\n", p.MaxGridSize)
		printf("  Shared memory per block:   %s\n", humanize.IBytes(uint64(p.SharedMemPerBlock)))
		printf("  Shared memory per SM:      %s\n", humanize.IBytes(uint64(p.SharedMemPerMultiprocessor)))
		printf("  Registers per block:       %s\n", humanize.Comma(int64(p.RegsPerBlock)))
		printf("  L2 cache:                  %s\n", humanize.IBytes(uint64(p.L2CacheSize)))
		maxBlocks := humanize.Comma(int64(info.MaxBlocks))
		if info.MaxBlocks == device.DefaultMaxBlocks {
			maxBlocks = "unbounded"
		}
		printf("  Heuristics:                %d threads, L1 %s, LLC %s, max blocks %s\n", info.NumThreads,
			humanize.IBytes(uint64(info.FirstLevelCacheSize)), humanize.IBytes(uint64(info.LastLevelCacheSize)), maxBlocks)
		if info.Probe != nil {
			status := "ok"
			if !info.Probe.Ok {
				status = "FAILED"
			}
			printf("  Probe:                     %s (%s)\n", status, info.Probe.Elapsed.Round(time.Microsecond))
		}
	}
	return errors.WithStack(err)
}
