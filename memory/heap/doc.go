// Package heap provides a general-purpose allocator over the physical frame
// allocator and the virtual mapping layer.
//
// # Overview
//
// [Allocator.Allocate] dispatches on the request size and alignment. Small
// requests, up to an eighth of a page in both size and alignment, are served
// from slab caches: each cache holds page-sized slabs carved into fixed
// power-of-two object classes from 16 to 512 bytes, tracked in empty,
// partial, and full lists. Larger requests take the page-granular path,
// which allocates fresh frames, maps them read-write, and records the
// region so [Allocator.Deallocate] can unmap and release it.
//
// Deallocate must receive the same size and alignment as the matching
// Allocate; the dispatch decision is recomputed from them. Page-granular
// deallocation of a pointer the allocator does not own, or with a size that
// does not match the original request, panics: both indicate heap
// corruption, and continuing would release memory still in use.
//
// Slab pages are never returned to the page layer. Empty slabs stay cached
// on their size class, so a workload's slab footprint is its high-water
// mark.
package heap
