package boot

import "fmt"

// MemoryDescriptorVersion is the descriptor layout version reported through
// GenericTable.GetMemoryMap.
const MemoryDescriptorVersion uint64 = 0

// MemoryDescriptor describes a single physical memory region.
//
// The physical address of the region start is Number multiplied by the
// provider's PageFrameSize; the layout is a fixed ABI shared with whatever
// produced the memory map.
type MemoryDescriptor struct {
	// Number is the index of the starting frame in provider frame units.
	Number uint64
	// Count is the number of provider-sized frames in the region.
	Count uint64
	// Type is the designation of the region.
	Type MemoryType
}

// MemoryType designates how a memory region may be used.
type MemoryType uint32

const (
	// MemoryReserved marks memory that is not usable.
	MemoryReserved MemoryType = 0
	// MemoryFree marks unallocated memory free for general usage.
	MemoryFree MemoryType = 1
	// MemoryBootloaderReclaimable marks memory holding parts of the
	// bootloader, firmware, or the executable. It can be reclaimed once the
	// executable no longer uses it.
	MemoryBootloaderReclaimable MemoryType = 2
	// MemoryBad marks memory in which errors have been detected.
	MemoryBad MemoryType = 3
	// MemoryACPIReclaimable marks memory holding ACPI tables.
	MemoryACPIReclaimable MemoryType = 4
	// MemoryACPINonVolatile marks memory holding non-volatile ACPI data.
	MemoryACPINonVolatile MemoryType = 5
)

func (t MemoryType) String() string {
	switch t {
	case MemoryReserved:
		return "RESERVED"
	case MemoryFree:
		return "FREE"
	case MemoryBootloaderReclaimable:
		return "BOOTLOADER_RECLAIMABLE"
	case MemoryBad:
		return "BAD"
	case MemoryACPIReclaimable:
		return "ACPI_RECLAIMABLE"
	case MemoryACPINonVolatile:
		return "ACPI_NON_VOLATILE"
	default:
		return fmt.Sprintf("MemoryType(%d)", uint32(t))
	}
}

// MemoryMap is the result of a successful GetMemoryMap call.
type MemoryMap struct {
	// Descriptors holds one entry per physical memory region.
	Descriptors []MemoryDescriptor
	// Key identifies the version of the memory map; it must be passed to
	// Takeover and becomes stale after any allocation or deallocation.
	Key uint64
}
