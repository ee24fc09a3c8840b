package heap

import (
	"fmt"
	"log/slog"

	"github.com/JarlEvanson/revm/memory"
	"github.com/JarlEvanson/revm/memory/phys"
	"github.com/JarlEvanson/revm/memory/virt"
	"github.com/JarlEvanson/revm/platform"
)

// pageBacking ties a live page-granular region to the frames behind it, so
// deallocation can both unmap and release. It rides along on the region's
// allocation record.
type pageBacking struct {
	pages  memory.PageRange
	frames memory.FrameRange
}

// pageAllocator serves requests too large or too aligned for the slab
// caches. Every allocation is a fresh frame range mapped read-write, tracked
// on an allocation list that validates frees against the original request.
type pageAllocator struct {
	phys    *phys.Allocator
	mapper  *virt.Mapper
	log     *slog.Logger
	records platform.AllocationList
}

// allocate returns the address of a mapped read-write region of at least
// size bytes aligned to alignment. The record keeps the caller's original
// size and alignment so deallocate can insist on them.
func (p *pageAllocator) allocate(size, alignment uintptr) (uintptr, error) {
	count := ceilDiv(size, memory.FrameSize)
	frameAlignment := alignment
	if frameAlignment < memory.FrameSize {
		frameAlignment = memory.FrameSize
	}

	frames, err := p.phys.AllocateFrames(uint64(count), uint64(frameAlignment))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrAllocation, err)
	}

	pages, err := p.mapper.MapAligned(frames, virt.PermReadWrite, frameAlignment)
	if err != nil {
		// The frames are unreachable without a mapping; give them back
		// rather than leak.
		p.phys.DeallocateFrames(frames)
		return 0, fmt.Errorf("%w: %w", ErrAllocation, err)
	}

	address := uintptr(pages.Start().StartAddress())
	p.records.Insert(&platform.AllocationRecord{
		Allocation: platform.Allocation{Address: address, Size: size, Alignment: alignment},
		Data:       pageBacking{pages: pages, frames: frames},
	})

	p.log.Debug("allocated page region",
		slog.String("pages", pages.String()),
		slog.String("frames", frames.String()),
	)
	return address, nil
}

// deallocate unmaps and releases the region starting at address. It panics
// when the address is not the start of a live region or size or alignment
// disagree with the original request, since either means the heap has been
// corrupted.
func (p *pageAllocator) deallocate(address, size, alignment uintptr) {
	record := p.records.Release(platform.Allocation{Address: address, Size: size, Alignment: alignment})
	backing := record.Data.(pageBacking)

	p.mapper.Unmap(backing.pages)
	p.phys.DeallocateFrames(backing.frames)
}

func (p *pageAllocator) stats() (regions, bytes uint64) {
	p.records.Each(func(record *platform.AllocationRecord) {
		regions++
		bytes += uint64(record.Data.(pageBacking).pages.ByteCount())
	})
	return regions, bytes
}

func ceilDiv(a, b uintptr) uintptr {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}
