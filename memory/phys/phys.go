// Package phys allocates and releases physical memory through the boot
// protocol capability table.
//
// The allocator performs no bookkeeping of its own: each call round-trips to
// the capability table, which is the sole owner of physical memory state
// before takeover. Counts are expressed in memory.FrameSize units and are
// converted to the provider's granularity, which may be larger.
package phys

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/JarlEvanson/revm/boot"
	"github.com/JarlEvanson/revm/memory"
)

// ErrFrameAllocation indicates the provider could not satisfy a frame
// allocation request.
var ErrFrameAllocation = errors.New("phys: frame allocation failed")

// Allocator reserves and releases physical frame ranges via a capability
// table.
type Allocator struct {
	table *boot.GenericTable
	log   *slog.Logger
}

// NewAllocator returns an Allocator backed by table. A nil log discards
// allocator diagnostics.
func NewAllocator(table *boot.GenericTable, log *slog.Logger) (*Allocator, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = boot.DiscardLogger()
	}
	return &Allocator{table: table, log: log}, nil
}

// Table returns the capability table backing the Allocator.
func (a *Allocator) Table() *boot.GenericTable {
	return a.table
}

// AllocateFrames allocates a region of count frames whose start address is a
// multiple of alignment bytes.
//
// count is in memory.FrameSize units; the provider may allocate in a larger
// granularity, in which case the trailing slack stays attached to the
// provider-sized region and is released with it.
func (a *Allocator) AllocateFrames(count, alignment uint64) (memory.FrameRange, error) {
	totalBytes := memory.NewFrameRange(0, count).ByteCount()
	providerCount := ceilDiv(totalBytes, a.table.PageFrameSize)

	address, status := a.table.AllocateFrames(providerCount, alignment, boot.AllocateAny, 0)
	if status != boot.StatusSuccess {
		return memory.FrameRange{}, fmt.Errorf("%w: %v", ErrFrameAllocation, status)
	}

	start := memory.FrameContaining(memory.PhysicalAddress(address))
	return memory.NewFrameRange(start, count), nil
}

// DeallocateFrames releases the frames described by r.
//
// The caller must guarantee the physical region is not in use; the provider
// performs no validation, and double or mismatched frees are undefined.
// Provider failures are logged and otherwise dropped, since there is nothing
// a caller could do with them.
func (a *Allocator) DeallocateFrames(r memory.FrameRange) {
	providerCount := ceilDiv(r.ByteCount(), a.table.PageFrameSize)

	status := a.table.DeallocateFrames(uint64(r.Start().StartAddress()), providerCount)
	if status != boot.StatusSuccess {
		a.log.Warn("error deallocating frames", "status", status, "range", r)
	}
}

func ceilDiv(a, b uint64) uint64 {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}
