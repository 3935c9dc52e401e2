//go:build cuda && !hip

package gpu

// #cgo CFLAGS: -I/usr/local/cuda/include
// #cgo LDFLAGS: -L/usr/local/cuda/lib64 -lcudart
import "C"

const backendName = "cuda"
