package boot

// MapFlags control the behavior of GenericTable.Map.
type MapFlags uint64

const (
	// MapRead requests that the mapped region be readable.
	MapRead MapFlags = 1 << 0
	// MapWrite requests that the mapped region be writable.
	MapWrite MapFlags = 1 << 1
	// MapExec requests that the mapped region be executable.
	MapExec MapFlags = 1 << 2
	// MapMayOverwrite permits the mapping to replace existing mappings.
	MapMayOverwrite MapFlags = 1 << 3

	// MapValid is the bitmask of all valid map flags.
	MapValid = MapRead | MapWrite | MapExec | MapMayOverwrite
)

// Contains reports whether every flag in other is set in f.
func (f MapFlags) Contains(other MapFlags) bool {
	return f&other == other
}

// AllocationFlags control the behavior of GenericTable.AllocateFrames.
type AllocationFlags uint64

const (
	// AllocateAny permits any available frame range satisfying the request.
	AllocateAny AllocationFlags = 0
	// AllocateAt permits only the frame range starting at the provided
	// physical address.
	AllocateAt AllocationFlags = 1
	// AllocateBelow permits only frame ranges entirely below the provided
	// physical address.
	AllocateBelow AllocationFlags = 2

	// AllocateTypeMask covers the bits that select the allocation type.
	AllocateTypeMask AllocationFlags = 0b11

	// AllocateValid is the bitmask of all valid allocation flags.
	AllocateValid = AllocateTypeMask
)

// TakeoverFlags control the behavior of GenericTable.Takeover.
type TakeoverFlags uint64

const (
	// TakeoverInPlace signals that the executable will virtualize the boot
	// environment in place. Takeover, and only Takeover, may be called twice
	// when this flag is set on both calls.
	TakeoverInPlace TakeoverFlags = 1

	// TakeoverValid is the bitmask of all valid takeover flags.
	TakeoverValid = TakeoverInPlace
)

// Contains reports whether every flag in other is set in f.
func (f TakeoverFlags) Contains(other TakeoverFlags) bool {
	return f&other == other
}
