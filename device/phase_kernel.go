//go:build gpudevice_kernel

package device

// deviceCompilePhase is set with the build tag gpudevice_kernel, when building code that generates
// kernels: operations that enqueue work on a stream abort instead.
const deviceCompilePhase = true
