package heap

import (
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"unsafe"

	"github.com/JarlEvanson/revm/boot"
	"github.com/JarlEvanson/revm/memory"
	"github.com/JarlEvanson/revm/memory/phys"
	"github.com/JarlEvanson/revm/memory/virt"
)

var (
	// ErrInvalidLayout indicates a zero size or an alignment that is not a
	// power of two.
	ErrInvalidLayout = errors.New("heap: invalid layout")
	// ErrAllocation indicates the underlying layers could not satisfy the
	// request.
	ErrAllocation = errors.New("heap: allocation failed")
)

const (
	// minSizeClass is the smallest slab object size. Objects must hold a
	// free-list link, so the class floor is one word with slack.
	minSizeClass = 16
	// maxSizeClass is the largest slab object size. Larger requests go to
	// the page-granular path.
	maxSizeClass = memory.FrameSize / 8

	numSizeClasses = 6 // 16, 32, 64, 128, 256, 512
)

// Options configure an Allocator.
type Options struct {
	// Phys supplies physical frames.
	Phys *phys.Allocator
	// Mapper maps allocated frames into the virtual address space.
	Mapper *virt.Mapper
	// Log receives allocator diagnostics. A nil Log discards them.
	Log *slog.Logger
}

// Allocator is a general-purpose memory allocator. All methods are safe for
// concurrent use.
type Allocator struct {
	log    *slog.Logger
	pages  pageAllocator
	caches [numSizeClasses]slabCache
}

// New returns an Allocator drawing memory from opts.Phys via opts.Mapper.
func New(opts Options) (*Allocator, error) {
	if opts.Phys == nil || opts.Mapper == nil {
		return nil, fmt.Errorf("%w: nil frame allocator or mapper", ErrInvalidLayout)
	}
	log := opts.Log
	if log == nil {
		log = boot.DiscardLogger()
	}

	a := &Allocator{log: log}
	a.pages.phys = opts.Phys
	a.pages.mapper = opts.Mapper
	a.pages.log = log
	for i := range a.caches {
		cache := &a.caches[i]
		cache.objectSize = minSizeClass << i
		cache.grow = a.growSlab
	}
	return a, nil
}

// Allocate returns a pointer to size bytes of memory aligned to alignment.
// The contents are unspecified. alignment must be a power of two.
func (a *Allocator) Allocate(size, alignment uintptr) (unsafe.Pointer, error) {
	if size == 0 || alignment == 0 || alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("%w: size %d alignment %d", ErrInvalidLayout, size, alignment)
	}

	if class, ok := sizeClassIndex(size, alignment); ok {
		address, err := a.caches[class].allocate()
		if err != nil {
			return nil, err
		}
		return unsafe.Pointer(address), nil
	}

	address, err := a.pages.allocate(size, alignment)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(address), nil
}

// Deallocate releases memory previously returned by Allocate. size and
// alignment must match the original request.
//
// Deallocate panics when a page-granular pointer is unknown to the allocator
// or its size disagrees with the original request, since either means the
// heap has been corrupted.
func (a *Allocator) Deallocate(ptr unsafe.Pointer, size, alignment uintptr) {
	if ptr == nil {
		return
	}
	if class, ok := sizeClassIndex(size, alignment); ok {
		a.caches[class].deallocate(uintptr(ptr))
		return
	}
	a.pages.deallocate(uintptr(ptr), size, alignment)
}

// Stats reports a point-in-time snapshot of allocator state.
func (a *Allocator) Stats() Stats {
	var s Stats
	for i := range a.caches {
		objects, slabs := a.caches[i].stats()
		s.SlabObjects += objects
		s.Slabs += slabs
	}
	regions, bytes := a.pages.stats()
	s.PageRegions = regions
	s.PageBytes = bytes
	return s
}

// growSlab obtains a fresh writable page for a slab cache.
func (a *Allocator) growSlab() (uintptr, error) {
	return a.pages.allocate(memory.FrameSize, memory.FrameSize)
}

// Stats describes the live state of an Allocator.
type Stats struct {
	// SlabObjects is the number of live objects on all slab caches.
	SlabObjects uint64
	// Slabs is the number of pages owned by slab caches, in any state.
	Slabs uint64
	// PageRegions is the number of live page-granular regions.
	PageRegions uint64
	// PageBytes is the total mapped size of live page-granular regions.
	PageBytes uint64
}

// sizeClassIndex reports the slab cache serving a request, or false when the
// request must take the page-granular path. Routing folds the alignment into
// the effective size: every class is a power of two, so an object is always
// aligned to its own class size.
func sizeClassIndex(size, alignment uintptr) (int, bool) {
	if size > maxSizeClass || alignment > maxSizeClass {
		return 0, false
	}
	effective := size
	if alignment > effective {
		effective = alignment
	}
	if effective <= minSizeClass {
		return 0, true
	}
	return bits.Len(uint(effective-1)) - 4, true
}
