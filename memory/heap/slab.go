package heap

import (
	"fmt"
	"unsafe"

	"github.com/JarlEvanson/revm/internal/spin"
	"github.com/JarlEvanson/revm/memory"
)

// slab is the header embedded at the start of each slab page. The remainder
// of the page, starting at the first objectSize boundary past the header,
// is carved into objects whose free-list links are stored in the first word
// of each free object.
type slab struct {
	next     *slab
	freeHead uintptr // address of the first free object, 0 when full
	inUse    uintptr
}

const slabHeaderSize = unsafe.Sizeof(slab{})

// slabCache serves one object size class from a set of page-sized slabs.
//
// Slabs are kept on three singly-linked lists by occupancy. Allocation
// prefers partial slabs, then cached empty ones, and grows only when both
// lists are dry. Empty slabs are retained, never returned to the page
// layer.
type slabCache struct {
	lock       spin.Lock
	objectSize uintptr
	grow       func() (uintptr, error) // obtains a fresh writable page

	empty   *slab
	partial *slab
	full    *slab

	objects uint64 // live objects
	slabs   uint64 // pages owned, in any state
}

// capacity returns the number of objects a slab of this class holds.
func (c *slabCache) capacity() uintptr {
	dataStart := alignUp(slabHeaderSize, c.objectSize)
	return (memory.FrameSize - dataStart) / c.objectSize
}

// initSlab formats the page at base as an empty slab of this class.
func (c *slabCache) initSlab(base uintptr) *slab {
	s := (*slab)(unsafe.Pointer(base))
	s.next = nil
	s.inUse = 0

	dataStart := base + alignUp(slabHeaderSize, c.objectSize)
	count := c.capacity()

	// Thread the free list in descending address order so the head ends up
	// at the lowest object and allocation walks the page forward.
	s.freeHead = 0
	for i := count; i > 0; i-- {
		object := dataStart + (i-1)*c.objectSize
		*(*uintptr)(unsafe.Pointer(object)) = s.freeHead
		s.freeHead = object
	}
	return s
}

// allocate returns the address of a free object, growing the cache when no
// slab has room.
func (c *slabCache) allocate() (uintptr, error) {
	c.lock.Acquire()
	defer c.lock.Release()

	s := c.partial
	if s == nil {
		if c.empty != nil {
			s = c.empty
			c.empty = s.next
		} else {
			base, err := c.grow()
			if err != nil {
				return 0, fmt.Errorf("%w: growing %d-byte slab cache: %w", ErrAllocation, c.objectSize, err)
			}
			s = c.initSlab(base)
			c.slabs++
		}
		s.next = c.partial
		c.partial = s
	}

	object := s.freeHead
	s.freeHead = *(*uintptr)(unsafe.Pointer(object))
	s.inUse++
	c.objects++

	if s.freeHead == 0 {
		// s is the partial head; move it to the full list.
		c.partial = s.next
		s.next = c.full
		c.full = s
	}
	return object, nil
}

// deallocate returns the object at address to its slab, which is located
// from the address alone since slabs are page-sized and page-aligned.
func (c *slabCache) deallocate(address uintptr) {
	base := address &^ uintptr(memory.FrameSize-1)
	s := (*slab)(unsafe.Pointer(base))

	c.lock.Acquire()
	defer c.lock.Release()

	wasFull := s.freeHead == 0
	*(*uintptr)(unsafe.Pointer(address)) = s.freeHead
	s.freeHead = address
	s.inUse--
	c.objects--

	switch {
	case wasFull:
		c.removeFrom(&c.full, s)
		if s.inUse == 0 {
			s.next = c.empty
			c.empty = s
		} else {
			s.next = c.partial
			c.partial = s
		}
	case s.inUse == 0:
		c.removeFrom(&c.partial, s)
		s.next = c.empty
		c.empty = s
	}
}

// removeFrom unlinks target from the list at head. The target must be on
// the list; a miss means the slab lists are corrupt.
func (c *slabCache) removeFrom(head **slab, target *slab) {
	for cursor := head; *cursor != nil; cursor = &(*cursor).next {
		if *cursor == target {
			*cursor = target.next
			target.next = nil
			return
		}
	}
	panic(fmt.Sprintf("heap: slab %p missing from %d-byte class lists", target, c.objectSize))
}

func (c *slabCache) stats() (objects, slabs uint64) {
	c.lock.Acquire()
	defer c.lock.Release()
	return c.objects, c.slabs
}

func alignUp(value, alignment uintptr) uintptr {
	return (value + alignment - 1) &^ (alignment - 1)
}
