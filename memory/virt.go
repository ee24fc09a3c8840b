package memory

import (
	"fmt"
	"iter"
)

// VirtualAddress is a byte offset into the virtual address space. It is
// pointer-width.
type VirtualAddress uintptr

// Add returns a VirtualAddress that is count bytes higher. It panics when
// the result would wrap.
func (a VirtualAddress) Add(count uintptr) VirtualAddress {
	return VirtualAddress(strictAddUptr(uintptr(a), count))
}

// Sub returns a VirtualAddress that is count bytes lower. It panics when the
// result would be negative.
func (a VirtualAddress) Sub(count uintptr) VirtualAddress {
	return VirtualAddress(strictSubUptr(uintptr(a), count))
}

// PageOffset returns the offset, in bytes, from the start of the containing
// Page.
func (a VirtualAddress) PageOffset() uintptr {
	return uintptr(a) % FrameSize
}

// IsAligned reports whether the address is a multiple of alignment.
func (a VirtualAddress) IsAligned(alignment uintptr) bool {
	return uintptr(a)%alignment == 0
}

// AlignDown returns the greatest VirtualAddress that is less than or equal
// to a and is a multiple of alignment.
func (a VirtualAddress) AlignDown(alignment uintptr) VirtualAddress {
	return VirtualAddress(uintptr(a) / alignment * alignment)
}

// AlignUp returns the smallest VirtualAddress that is greater than or equal
// to a and is a multiple of alignment. It panics when the result would wrap.
func (a VirtualAddress) AlignUp(alignment uintptr) VirtualAddress {
	return VirtualAddress(alignUpUptr(uintptr(a), alignment))
}

// Page is a 0-based index of a FrameSize-aligned chunk of virtual memory.
type Page uintptr

// PageContaining returns the Page in which address is contained.
func PageContaining(address VirtualAddress) Page {
	return Page(uintptr(address) / FrameSize)
}

// Number returns the index of the Page.
func (p Page) Number() uintptr {
	return uintptr(p)
}

// StartAddress returns the VirtualAddress at the start of the Page.
func (p Page) StartAddress() VirtualAddress {
	return VirtualAddress(strictMulUptr(uintptr(p), FrameSize))
}

// EndAddress returns the exclusive end VirtualAddress of the Page.
func (p Page) EndAddress() VirtualAddress {
	return p.StartAddress().Add(FrameSize)
}

// Add returns a Page whose index is count higher. It panics when the result
// would wrap.
func (p Page) Add(count uintptr) Page {
	return Page(strictAddUptr(uintptr(p), count))
}

// Sub returns a Page whose index is count lower. It panics when the result
// would be negative.
func (p Page) Sub(count uintptr) Page {
	return Page(strictSubUptr(uintptr(p), count))
}

// AlignUp returns the nearest Page at or above p whose start address is a
// multiple of alignment, a byte count. Alignments of FrameSize or less leave
// the Page unchanged.
func (p Page) AlignUp(alignment uintptr) Page {
	numberAlignment := ceilDivUptr(alignment, FrameSize)
	return Page(alignUpUptr(uintptr(p), numberAlignment))
}

// PageRange is a contiguous run of Pages with an exclusive end. The zero
// value is an empty range.
type PageRange struct {
	start Page
	count uintptr
}

// NewPageRange returns a PageRange starting at start containing count Pages.
func NewPageRange(start Page, count uintptr) PageRange {
	return PageRange{start: start, count: count}
}

// PageRangeInclusive returns the PageRange spanning [start, end]. The range
// is empty when end is less than start.
func PageRangeInclusive(start, end Page) PageRange {
	if end < start {
		return PageRange{start: start}
	}
	return PageRange{start: start, count: strictAddUptr(uintptr(end)-uintptr(start), 1)}
}

// PageRangeExclusive returns the PageRange spanning [start, end). The range
// is empty when end is not greater than start.
func PageRangeExclusive(start, end Page) PageRange {
	if end < start {
		return PageRange{start: start}
	}
	return PageRange{start: start, count: uintptr(end) - uintptr(start)}
}

// PageRangeFromAddresses returns the smallest PageRange covering
// [start, end): start is aligned down to its containing Page and end is
// aligned up to the next Page boundary.
func PageRangeFromAddresses(start, end VirtualAddress) PageRange {
	startPage := PageContaining(start)
	endPage := PageContaining(end.AlignUp(FrameSize))
	return PageRangeExclusive(startPage, endPage)
}

// Start returns the first Page of the range.
func (r PageRange) Start() Page {
	return r.start
}

// End returns the exclusive end Page of the range.
func (r PageRange) End() Page {
	return Page(strictAddUptr(uintptr(r.start), r.count))
}

// Count returns the number of Pages in the range.
func (r PageRange) Count() uintptr {
	return r.count
}

// IsEmpty reports whether the range contains no Pages.
func (r PageRange) IsEmpty() bool {
	return r.count == 0
}

// ByteCount returns the number of bytes the range covers.
func (r PageRange) ByteCount() uintptr {
	return strictMulUptr(r.count, FrameSize)
}

// Contains reports whether page lies within the range.
func (r PageRange) Contains(page Page) bool {
	return r.start <= page && page < r.End()
}

// SplitAt splits the range into [Start, at) and [at, End). A split at Start
// yields an empty lower range; a split at End yields an empty upper range.
//
// ErrSplitOutOfRange is returned when at lies outside [Start, End]; the
// receiver is unchanged either way.
func (r PageRange) SplitAt(at Page) (lower, upper PageRange, err error) {
	if at < r.start || r.End() < at {
		return PageRange{}, PageRange{}, fmt.Errorf("%w: page %d not in [%d, %d]",
			ErrSplitOutOfRange, at.Number(), r.start.Number(), r.End().Number())
	}

	upper = PageRangeExclusive(at, r.End())
	lower = PageRange{start: r.start, count: strictSubUptr(r.count, upper.count)}
	return lower, upper, nil
}

// Overlaps reports whether the two ranges share at least one Page. Touching
// edges do not count.
func (r PageRange) Overlaps(other PageRange) bool {
	return r.start < other.End() && other.start < r.End()
}

// Merge returns the union of the two ranges. Merging only occurs when the
// ranges overlap or are exactly adjacent; otherwise ok is false.
func (r PageRange) Merge(other PageRange) (merged PageRange, ok bool) {
	if !(r.Overlaps(other) || r.start == other.End() || other.start == r.End()) {
		return PageRange{}, false
	}

	start := min(r.start, other.start)
	end := max(r.End(), other.End())
	return PageRange{start: start, count: uintptr(end) - uintptr(start)}, true
}

// Intersection returns the Pages common to both ranges, or an empty range
// when they do not overlap.
func (r PageRange) Intersection(other PageRange) PageRange {
	start := max(r.start, other.start)
	end := min(r.End(), other.End())
	return PageRangeExclusive(start, end)
}

// PartitionWith classifies other's Pages relative to r into three disjoint
// ranges: those strictly below r, those intersecting r, and those strictly
// above r. The three counts always sum to other.Count().
func (r PageRange) PartitionWith(other PageRange) (lower, overlap, upper PageRange) {
	lowerEnd := r.start
	if other.End() <= r.start {
		lowerEnd = other.End()
	}

	upperStart := r.End()
	if other.start >= r.End() {
		upperStart = other.start
	}

	lower = PageRangeExclusive(other.start, lowerEnd)
	overlap = r.Intersection(other)
	upper = PageRangeExclusive(upperStart, other.End())
	return lower, overlap, upper
}

// Pages returns an iterator over every Page in the range.
func (r PageRange) Pages() iter.Seq[Page] {
	return func(yield func(Page) bool) {
		for page := r.start; page < r.End(); page++ {
			if !yield(page) {
				return
			}
		}
	}
}

func (r PageRange) String() string {
	return fmt.Sprintf("pages [%#x, %#x)", r.start.Number(), r.End().Number())
}
