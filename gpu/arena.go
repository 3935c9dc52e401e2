//go:build cuda || hip

package gpu

/*
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"unsafe"
)

// arenaContainer is a trivial arena holding kernel arguments in C memory for one launch.
//
// cgo doesn't allow passing Go memory that holds Go pointers to C, and the launch API takes an array
// of pointers to the argument values. So both the array and the values are sub-allocated from one
// C allocation, freed all at once.
//
// If you don't call Free at the end, it will leak the C allocated space.
type arenaContainer struct {
	buf           []byte
	size, current int
}

const arenaAlignBytes = 8

// newArena creates a new zero-filled arena with the given fixed size.
func newArena(size int) *arenaContainer {
	ptr := C.calloc(C.size_t(size), 1)
	if ptr == nil {
		panic(fmt.Sprintf("failed to allocate %d bytes for kernel arguments", size))
	}
	return &arenaContainer{
		buf:  unsafe.Slice((*byte)(ptr), size),
		size: size,
	}
}

// alloc returns the next n bytes of the arena, 8-bytes aligned. It panics if the arena runs out of memory.
func (a *arenaContainer) alloc(n int) []byte {
	if a.current+n > a.size {
		panic(fmt.Sprintf("Arena out of memory while allocating %d bytes (%d used of %d)", n, a.current, a.size))
	}
	b := a.buf[a.current : a.current+n : a.current+n]
	a.current += n
	a.current = (a.current + arenaAlignBytes - 1) &^ (arenaAlignBytes - 1)
	return b
}

// Free invalidates all previous allocations of the arena and frees the C allocated area.
func (a *arenaContainer) Free() {
	if a.buf == nil {
		return
	}
	C.free(unsafe.Pointer(&a.buf[0]))
	a.buf = nil
	a.size = 0
	a.current = 0
}

// packKernelArgs copies args to a new arena and returns it along with the `void**` array the launch
// API expects. Both are nil if there are no arguments.
func packKernelArgs(args []any) (arena *arenaContainer, cArgs *unsafe.Pointer, err error) {
	if len(args) == 0 {
		return nil, nil, nil
	}
	ptrSize := int(unsafe.Sizeof(uintptr(0)))
	total := len(args) * ptrSize
	sizes := make([]int, len(args))
	for ii, arg := range args {
		sizes[ii], err = KernelArgSize(arg)
		if err != nil {
			return nil, nil, err
		}
		total += (sizes[ii] + arenaAlignBytes - 1) &^ (arenaAlignBytes - 1)
	}
	arena = newArena(total)
	ptrs := unsafe.Slice((*unsafe.Pointer)(unsafe.Pointer(&arena.alloc(len(args) * ptrSize)[0])), len(args))
	for ii, arg := range args {
		value := arena.alloc(sizes[ii])
		putKernelArg(value, arg)
		ptrs[ii] = unsafe.Pointer(&value[0])
	}
	return arena, &ptrs[0], nil
}
