package platform

import (
	"fmt"
	"slices"

	"github.com/JarlEvanson/revm/memory"
)

// FrameAllocation tracks a set of frame ranges as a sorted list of disjoint,
// non-adjacent runs. Inserting a range merges it with any neighbors it
// touches; removing a range carves it out of the run containing it.
//
// FrameAllocation is not safe for concurrent use; callers serialize access.
type FrameAllocation struct {
	ranges []memory.FrameRange
}

// Insert adds r to the set, coalescing with overlapping or adjacent runs.
func (f *FrameAllocation) Insert(r memory.FrameRange) {
	if r.IsEmpty() {
		return
	}

	index, _ := slices.BinarySearchFunc(f.ranges, r, func(a, b memory.FrameRange) int {
		switch {
		case a.Start() < b.Start():
			return -1
		case a.Start() > b.Start():
			return 1
		default:
			return 0
		}
	})

	// Coalesce with the predecessor, then absorb successors while they
	// still touch.
	if index > 0 {
		if merged, ok := f.ranges[index-1].Merge(r); ok {
			index--
			f.ranges[index] = merged
			f.absorbFollowing(index)
			return
		}
	}
	f.ranges = slices.Insert(f.ranges, index, r)
	f.absorbFollowing(index)
}

func (f *FrameAllocation) absorbFollowing(index int) {
	for index+1 < len(f.ranges) {
		merged, ok := f.ranges[index].Merge(f.ranges[index+1])
		if !ok {
			return
		}
		f.ranges[index] = merged
		f.ranges = slices.Delete(f.ranges, index+1, index+2)
	}
}

// Remove carves r out of the set. r must lie entirely within a single
// tracked run; removing untracked frames panics, since it means the caller
// is releasing frames it does not own.
func (f *FrameAllocation) Remove(r memory.FrameRange) {
	if r.IsEmpty() {
		return
	}

	for i, run := range f.ranges {
		if run.Start() <= r.Start() && r.End() <= run.End() {
			lower, rest, err := run.SplitAt(r.Start())
			if err != nil {
				panic(fmt.Sprintf("platform: splitting %v at %d: %v", run, r.Start().Number(), err))
			}
			_, upper, err := rest.SplitAt(r.End())
			if err != nil {
				panic(fmt.Sprintf("platform: splitting %v at %d: %v", rest, r.End().Number(), err))
			}

			replacement := make([]memory.FrameRange, 0, 2)
			if !lower.IsEmpty() {
				replacement = append(replacement, lower)
			}
			if !upper.IsEmpty() {
				replacement = append(replacement, upper)
			}
			f.ranges = slices.Replace(f.ranges, i, i+1, replacement...)
			return
		}
	}
	panic(fmt.Sprintf("platform: removing untracked frame range %v", r))
}

// Contains reports whether every frame of r is tracked.
func (f *FrameAllocation) Contains(r memory.FrameRange) bool {
	if r.IsEmpty() {
		return true
	}
	for _, run := range f.ranges {
		if run.Start() <= r.Start() && r.End() <= run.End() {
			return true
		}
	}
	return false
}

// Ranges returns the tracked runs in ascending order. The slice is shared;
// callers must not modify it.
func (f *FrameAllocation) Ranges() []memory.FrameRange {
	return f.ranges
}

// Frames returns the total number of tracked frames.
func (f *FrameAllocation) Frames() uint64 {
	var total uint64
	for _, run := range f.ranges {
		total += run.Count()
	}
	return total
}

// DeallocateAll releases every tracked run to p and empties the set. The
// first failure stops the teardown and is returned with the set reflecting
// the runs already released.
func (f *FrameAllocation) DeallocateAll(p Platform) error {
	for len(f.ranges) > 0 {
		run := f.ranges[len(f.ranges)-1]
		if err := p.DeallocateFrames(run); err != nil {
			return fmt.Errorf("platform: releasing %v: %w", run, err)
		}
		f.ranges = f.ranges[:len(f.ranges)-1]
	}
	return nil
}
