package gpu

// Enums are defined on a separate file, so they work with enumer -- it doesn't work with files using cgo.

// MemcpyKind is the direction of a memory copy. Values match both the CUDA and the HIP runtime enums.
type MemcpyKind int

//go:generate go tool enumer -type=MemcpyKind enums.go

const (
	MemcpyHostToHost     MemcpyKind = 0
	MemcpyHostToDevice   MemcpyKind = 1
	MemcpyDeviceToHost   MemcpyKind = 2
	MemcpyDeviceToDevice MemcpyKind = 3
	MemcpyDefault        MemcpyKind = 4
)

// SharedMemConfig is the shared-memory bank size configuration of a device.
type SharedMemConfig int

//go:generate go tool enumer -type=SharedMemConfig enums.go

const (
	SharedMemBankSizeDefault   SharedMemConfig = 0
	SharedMemBankSizeFourByte  SharedMemConfig = 1
	SharedMemBankSizeEightByte SharedMemConfig = 2
)
