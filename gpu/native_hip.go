//go:build hip

package gpu

// #cgo CFLAGS: -DGPUDEVICE_HIP -D__HIP_PLATFORM_AMD__ -I/opt/rocm/include
// #cgo LDFLAGS: -L/opt/rocm/lib -lamdhip64
import "C"

const backendName = "hip"
