//go:build !gpudevice_kernel

package device

// deviceCompilePhase is false for host orchestration code, the default.
const deviceCompilePhase = false
