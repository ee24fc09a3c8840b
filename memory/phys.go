package memory

import (
	"errors"
	"fmt"
	"iter"
)

// ErrSplitOutOfRange indicates that a split point lies outside the range
// being split. The receiver of the failed SplitAt is unchanged.
var ErrSplitOutOfRange = errors.New("memory: split point out of range")

// PhysicalAddress is a byte offset into the physical address space.
type PhysicalAddress uint64

// Add returns a PhysicalAddress that is count bytes higher. It panics when
// the result would wrap.
func (a PhysicalAddress) Add(count uint64) PhysicalAddress {
	return PhysicalAddress(strictAddU64(uint64(a), count))
}

// Sub returns a PhysicalAddress that is count bytes lower. It panics when
// the result would be negative.
func (a PhysicalAddress) Sub(count uint64) PhysicalAddress {
	return PhysicalAddress(strictSubU64(uint64(a), count))
}

// FrameOffset returns the offset, in bytes, from the start of the containing
// Frame.
func (a PhysicalAddress) FrameOffset() uint64 {
	return uint64(a) % FrameSize
}

// IsAligned reports whether the address is a multiple of alignment.
func (a PhysicalAddress) IsAligned(alignment uint64) bool {
	return uint64(a)%alignment == 0
}

// AlignDown returns the greatest PhysicalAddress that is less than or equal
// to a and is a multiple of alignment.
func (a PhysicalAddress) AlignDown(alignment uint64) PhysicalAddress {
	return PhysicalAddress(uint64(a) / alignment * alignment)
}

// AlignUp returns the smallest PhysicalAddress that is greater than or equal
// to a and is a multiple of alignment. It panics when the result would wrap.
func (a PhysicalAddress) AlignUp(alignment uint64) PhysicalAddress {
	return PhysicalAddress(alignUpU64(uint64(a), alignment))
}

// Frame is a 0-based index of a FrameSize-aligned chunk of physical memory.
type Frame uint64

// FrameContaining returns the Frame in which address is contained.
func FrameContaining(address PhysicalAddress) Frame {
	return Frame(uint64(address) / FrameSize)
}

// Number returns the index of the Frame.
func (f Frame) Number() uint64 {
	return uint64(f)
}

// StartAddress returns the PhysicalAddress at the start of the Frame.
func (f Frame) StartAddress() PhysicalAddress {
	return PhysicalAddress(strictMulU64(uint64(f), FrameSize))
}

// EndAddress returns the exclusive end PhysicalAddress of the Frame.
func (f Frame) EndAddress() PhysicalAddress {
	return f.StartAddress().Add(FrameSize)
}

// Add returns a Frame whose index is count higher. It panics when the result
// would wrap.
func (f Frame) Add(count uint64) Frame {
	return Frame(strictAddU64(uint64(f), count))
}

// Sub returns a Frame whose index is count lower. It panics when the result
// would be negative.
func (f Frame) Sub(count uint64) Frame {
	return Frame(strictSubU64(uint64(f), count))
}

// AlignUp returns the nearest Frame at or above f whose start address is a
// multiple of alignment, a byte count. Alignments of FrameSize or less leave
// the Frame unchanged.
func (f Frame) AlignUp(alignment uint64) Frame {
	numberAlignment := ceilDivU64(alignment, FrameSize)
	return Frame(alignUpU64(uint64(f), numberAlignment))
}

// FrameRange is a contiguous run of Frames with an exclusive end. The zero
// value is an empty range.
type FrameRange struct {
	start Frame
	count uint64
}

// NewFrameRange returns a FrameRange starting at start containing count
// Frames.
func NewFrameRange(start Frame, count uint64) FrameRange {
	return FrameRange{start: start, count: count}
}

// FrameRangeInclusive returns the FrameRange spanning [start, end]. The
// range is empty when end is less than start.
func FrameRangeInclusive(start, end Frame) FrameRange {
	if end < start {
		return FrameRange{start: start}
	}
	return FrameRange{start: start, count: strictAddU64(uint64(end)-uint64(start), 1)}
}

// FrameRangeExclusive returns the FrameRange spanning [start, end). The
// range is empty when end is not greater than start.
func FrameRangeExclusive(start, end Frame) FrameRange {
	if end < start {
		return FrameRange{start: start}
	}
	return FrameRange{start: start, count: uint64(end) - uint64(start)}
}

// FrameRangeFromAddresses returns the smallest FrameRange covering
// [start, end): start is aligned down to its containing Frame and end is
// aligned up to the next Frame boundary.
func FrameRangeFromAddresses(start, end PhysicalAddress) FrameRange {
	startFrame := FrameContaining(start)
	endFrame := FrameContaining(end.AlignUp(FrameSize))
	return FrameRangeExclusive(startFrame, endFrame)
}

// Start returns the first Frame of the range.
func (r FrameRange) Start() Frame {
	return r.start
}

// End returns the exclusive end Frame of the range.
func (r FrameRange) End() Frame {
	return Frame(strictAddU64(uint64(r.start), r.count))
}

// Count returns the number of Frames in the range.
func (r FrameRange) Count() uint64 {
	return r.count
}

// IsEmpty reports whether the range contains no Frames.
func (r FrameRange) IsEmpty() bool {
	return r.count == 0
}

// ByteCount returns the number of bytes the range covers.
func (r FrameRange) ByteCount() uint64 {
	return strictMulU64(r.count, FrameSize)
}

// Contains reports whether frame lies within the range.
func (r FrameRange) Contains(frame Frame) bool {
	return r.start <= frame && frame < r.End()
}

// SplitAt splits the range into [Start, at) and [at, End). A split at Start
// yields an empty lower range; a split at End yields an empty upper range.
//
// ErrSplitOutOfRange is returned when at lies outside [Start, End]; the
// receiver is unchanged either way.
func (r FrameRange) SplitAt(at Frame) (lower, upper FrameRange, err error) {
	if at < r.start || r.End() < at {
		return FrameRange{}, FrameRange{}, fmt.Errorf("%w: frame %d not in [%d, %d]",
			ErrSplitOutOfRange, at.Number(), r.start.Number(), r.End().Number())
	}

	upper = FrameRangeExclusive(at, r.End())
	lower = FrameRange{start: r.start, count: strictSubU64(r.count, upper.count)}
	return lower, upper, nil
}

// Overlaps reports whether the two ranges share at least one Frame. Touching
// edges do not count.
func (r FrameRange) Overlaps(other FrameRange) bool {
	return r.start < other.End() && other.start < r.End()
}

// Merge returns the union of the two ranges. Merging only occurs when the
// ranges overlap or are exactly adjacent; otherwise ok is false.
func (r FrameRange) Merge(other FrameRange) (merged FrameRange, ok bool) {
	if !(r.Overlaps(other) || r.start == other.End() || other.start == r.End()) {
		return FrameRange{}, false
	}

	start := min(r.start, other.start)
	end := max(r.End(), other.End())
	return FrameRange{start: start, count: uint64(end) - uint64(start)}, true
}

// Intersection returns the Frames common to both ranges, or an empty range
// when they do not overlap.
func (r FrameRange) Intersection(other FrameRange) FrameRange {
	start := max(r.start, other.start)
	end := min(r.End(), other.End())
	return FrameRangeExclusive(start, end)
}

// PartitionWith classifies other's Frames relative to r into three disjoint
// ranges: those strictly below r, those intersecting r, and those strictly
// above r. The three counts always sum to other.Count().
func (r FrameRange) PartitionWith(other FrameRange) (lower, overlap, upper FrameRange) {
	lowerEnd := r.start
	if other.End() <= r.start {
		lowerEnd = other.End()
	}

	upperStart := r.End()
	if other.start >= r.End() {
		upperStart = other.start
	}

	lower = FrameRangeExclusive(other.start, lowerEnd)
	overlap = r.Intersection(other)
	upper = FrameRangeExclusive(upperStart, other.End())
	return lower, overlap, upper
}

// Frames returns an iterator over every Frame in the range.
func (r FrameRange) Frames() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for frame := r.start; frame < r.End(); frame++ {
			if !yield(frame) {
				return
			}
		}
	}
}

func (r FrameRange) String() string {
	return fmt.Sprintf("frames [%#x, %#x)", r.start.Number(), r.End().Number())
}
