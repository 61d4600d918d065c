package dssruntime

// Memory provides typed, bounds-checked access to memory the engine can
// reach. For the native backend this is the process address space; for the
// WASM backend it is the module's linear memory; for the test backend it is
// an in-memory arena. Addresses are engine addresses, opaque to callers.
//
// Readers copy: slices and strings returned from Read* methods are owned by
// the caller and never alias engine memory.
type Memory interface {
	// PtrSize reports the engine's pointer width in bytes (8 native, 4 WASM).
	PtrSize() uint32

	ReadI32(addr uint64) (int32, error)
	WriteI32(addr uint64, value int32) error

	// ReadPtr and WritePtr move pointer-sized values at the engine's width.
	ReadPtr(addr uint64) (uint64, error)
	WritePtr(addr uint64, value uint64) error

	ReadBytes(addr uint64, n int) ([]byte, error)
	WriteBytes(addr uint64, data []byte) error

	ReadFloat64s(addr uint64, n int) ([]float64, error)
	WriteFloat64s(addr uint64, values []float64) error

	ReadInt32s(addr uint64, n int) ([]int32, error)

	// ReadPtrs reads n consecutive pointer-sized values starting at addr.
	ReadPtrs(addr uint64, n int) ([]uint64, error)

	// ReadCString reads a null-terminated string at addr.
	ReadCString(addr uint64) (string, error)
}

// Allocator allocates scratch memory the engine can reach, used for
// call-scoped input marshaling and out-parameter blocks.
type Allocator interface {
	Alloc(size uint32) (uint64, error)
	Free(addr uint64)
}
