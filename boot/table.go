package boot

import (
	"errors"
	"fmt"
)

// GenericTableVersion is the version of the GenericTable layout this package
// understands.
const GenericTableVersion uint64 = 0

// MinPageFrameSize is the smallest PageFrameSize a provider may report.
const MinPageFrameSize uint64 = 256

var (
	// ErrTableVersion indicates the provider's table version is unsupported.
	ErrTableVersion = errors.New("boot: unsupported generic table version")

	// ErrTableIncomplete indicates a required capability is missing.
	ErrTableIncomplete = errors.New("boot: generic table capability is nil")

	// ErrPageFrameSize indicates the reported page/frame granularity is
	// invalid.
	ErrPageFrameSize = errors.New("boot: invalid page frame size")
)

// GenericTable is the cross-architecture capability table handed to the
// loaded executable by a REVM-compliant provider.
//
// All capabilities are valid from handoff until Takeover succeeds, after
// which none may be called again. The table performs no bookkeeping of its
// own; callers own the pairing of allocations with deallocations and of maps
// with unmaps.
type GenericTable struct {
	// Version identifies the layout of this table.
	Version uint64

	// PageFrameSize is the smallest unit, in bytes, for allocating frames and
	// mapping pages. It is also the minimum alignment for both operations.
	// Always a power of two and at least MinPageFrameSize.
	PageFrameSize uint64

	// ImagePhysicalAddress is the physical address of the start of the loaded
	// executable.
	ImagePhysicalAddress uint64

	// ImageVirtualAddress is the virtual address of the start of the loaded
	// executable.
	ImageVirtualAddress uintptr

	// Write sends a UTF-8 string to the provider's logging mechanism.
	Write func(s []byte) Status

	// AllocateFrames allocates a region of count frames aligned to alignment
	// bytes. address constrains placement according to the allocation type in
	// flags: the exact region start for AllocateAt, an exclusive upper bound
	// for AllocateBelow, and ignored for AllocateAny. On success the physical
	// address of the region start is returned.
	AllocateFrames func(count, alignment uint64, flags AllocationFlags, address uint64) (uint64, Status)

	// DeallocateFrames releases a region of count frames starting at
	// physicalAddress.
	DeallocateFrames func(physicalAddress, count uint64) Status

	// GetMemoryMap writes the current physical memory map into buf and
	// returns the number of descriptors written, the map key, and the
	// descriptor layout version. When buf is too small the status is
	// StatusBufferTooSmall and the returned count is the required capacity.
	GetMemoryMap func(buf []MemoryDescriptor) (n int, key uint64, version uint64, status Status)

	// Map maps count PageFrameSize-sized blocks of physical memory starting
	// at physicalAddress into the executable's address space starting at
	// virtualAddress.
	Map func(physicalAddress uint64, virtualAddress uintptr, count uintptr, flags MapFlags) Status

	// Unmap unmaps count PageFrameSize-sized blocks starting at
	// virtualAddress.
	Unmap func(virtualAddress uintptr, count uintptr) Status

	// Takeover transfers sole control of the machine to the executable. key
	// must identify the current memory map. After a successful call every
	// capability in this table is invalid.
	Takeover func(key uint64, flags TakeoverFlags) Status
}

// Validate checks that the table's version is supported, its granularity is
// sane, and every required capability is present.
func (t *GenericTable) Validate() error {
	if t.Version != GenericTableVersion {
		return fmt.Errorf("%w: %d", ErrTableVersion, t.Version)
	}
	if t.PageFrameSize < MinPageFrameSize || t.PageFrameSize&(t.PageFrameSize-1) != 0 {
		return fmt.Errorf("%w: %d", ErrPageFrameSize, t.PageFrameSize)
	}

	switch {
	case t.Write == nil:
		return fmt.Errorf("%w: Write", ErrTableIncomplete)
	case t.AllocateFrames == nil:
		return fmt.Errorf("%w: AllocateFrames", ErrTableIncomplete)
	case t.DeallocateFrames == nil:
		return fmt.Errorf("%w: DeallocateFrames", ErrTableIncomplete)
	case t.GetMemoryMap == nil:
		return fmt.Errorf("%w: GetMemoryMap", ErrTableIncomplete)
	case t.Map == nil:
		return fmt.Errorf("%w: Map", ErrTableIncomplete)
	case t.Unmap == nil:
		return fmt.Errorf("%w: Unmap", ErrTableIncomplete)
	case t.Takeover == nil:
		return fmt.Errorf("%w: Takeover", ErrTableIncomplete)
	}
	return nil
}
