package gpu

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/pkg/errors"
)

// KernelArgSize returns the number of bytes arg occupies when passed by value to a kernel.
//
// Accepted types are the 32 and 64 bits scalars (a Go int is passed as a C int, 32 bits) and
// device pointers (unsafe.Pointer, *uint32 -- e.g. a semaphore -- or uintptr). Device pointers
// must not point to Go memory.
func KernelArgSize(arg any) (int, error) {
	switch v := arg.(type) {
	case int32, uint32, float32:
		return 4, nil
	case int:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return 0, errors.Errorf("kernel argument %d overflows a 32 bits int", v)
		}
		return 4, nil
	case int64, uint64, float64, uintptr, unsafe.Pointer, *uint32:
		return 8, nil
	}
	return 0, errors.Errorf("unsupported kernel argument type %T", arg)
}

// CheckKernelArgs returns an error if any of args can't be passed to a kernel.
func CheckKernelArgs(args []any) error {
	for ii, arg := range args {
		if _, err := KernelArgSize(arg); err != nil {
			return errors.WithMessagef(err, "kernel argument #%d", ii)
		}
	}
	return nil
}

// putKernelArg writes the by-value representation of arg in native byte order.
// dst must have at least KernelArgSize(arg) bytes.
func putKernelArg(dst []byte, arg any) {
	ne := binary.NativeEndian
	switch v := arg.(type) {
	case int32:
		ne.PutUint32(dst, uint32(v))
	case uint32:
		ne.PutUint32(dst, v)
	case float32:
		ne.PutUint32(dst, math.Float32bits(v))
	case int:
		ne.PutUint32(dst, uint32(int32(v)))
	case int64:
		ne.PutUint64(dst, uint64(v))
	case uint64:
		ne.PutUint64(dst, v)
	case float64:
		ne.PutUint64(dst, math.Float64bits(v))
	case uintptr:
		ne.PutUint64(dst, uint64(v))
	case unsafe.Pointer:
		ne.PutUint64(dst, uint64(uintptr(v)))
	case *uint32:
		ne.PutUint64(dst, uint64(uintptr(unsafe.Pointer(v))))
	}
}
