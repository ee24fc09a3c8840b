// Package memory provides the address and range algebra underlying the revm
// memory subsystem.
//
// # Overview
//
// Physical memory is indexed by Frame, virtual memory by Page; both are
// 0-based indices of FrameSize-aligned chunks of their address space.
// FrameRange and PageRange describe contiguous runs with an exclusive end.
// All operations are pure value manipulation: constructing, splitting,
// merging, or dropping a range never allocates or frees anything. Any real
// resource a range describes is owned by whichever allocator produced it, and
// release is always an explicit separate call.
//
// # Arithmetic policy
//
// Address and index arithmetic never silently wraps. Overflow in Add, Sub, or
// AlignUp is a programming error, not a recoverable condition, and panics.
// Callers must pre-validate plausible ranges.
//
// # Range conventions
//
// A range with Count() == 0 is empty and End() == Start(). Overlaps is
// strict: ranges that merely touch at an edge do not overlap. Merge accepts
// both overlapping and exactly adjacent ranges, and PartitionWith classifies
// another range's chunks into strictly-below, intersecting, and
// strictly-above pieces whose counts always sum to the classified range's
// count.
package memory
