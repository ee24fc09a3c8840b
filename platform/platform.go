package platform

import (
	"fmt"

	"github.com/JarlEvanson/revm/memory"
)

// PolicyKind selects how an allocation request constrains frame placement.
type PolicyKind uint8

const (
	// PolicyAny accepts any free frame range.
	PolicyAny PolicyKind = iota
	// PolicyAt accepts only the range starting at the policy address.
	PolicyAt
	// PolicyBelow accepts only ranges ending at or below the policy
	// address.
	PolicyBelow
)

// String returns the name of the policy kind.
func (k PolicyKind) String() string {
	switch k {
	case PolicyAny:
		return "any"
	case PolicyAt:
		return "at"
	case PolicyBelow:
		return "below"
	default:
		return fmt.Sprintf("PolicyKind(%d)", uint8(k))
	}
}

// AllocationPolicy constrains where a frame allocation may be placed.
type AllocationPolicy struct {
	kind    PolicyKind
	address memory.PhysicalAddress
}

// Any returns the unconstrained placement policy.
func Any() AllocationPolicy {
	return AllocationPolicy{kind: PolicyAny}
}

// At returns a policy demanding the allocation start exactly at address.
func At(address memory.PhysicalAddress) AllocationPolicy {
	return AllocationPolicy{kind: PolicyAt, address: address}
}

// Below returns a policy demanding the allocation end at or below address.
func Below(address memory.PhysicalAddress) AllocationPolicy {
	return AllocationPolicy{kind: PolicyBelow, address: address}
}

// Kind returns the placement constraint kind.
func (p AllocationPolicy) Kind() PolicyKind {
	return p.kind
}

// Address returns the constraint address; meaningful only for PolicyAt and
// PolicyBelow.
func (p AllocationPolicy) Address() memory.PhysicalAddress {
	return p.address
}

// String returns a short textual form of the policy.
func (p AllocationPolicy) String() string {
	switch p.kind {
	case PolicyAny:
		return "any"
	default:
		return fmt.Sprintf("%v %#x", p.kind, uint64(p.address))
	}
}

// Platform supplies physical frames to the memory subsystem.
//
// Implementations are alignment-unaware beyond the natural frame alignment;
// callers needing stricter alignment use AllocateFramesAligned.
type Platform interface {
	// AllocateFrames reserves count frames placed according to policy.
	AllocateFrames(count uint64, policy AllocationPolicy) (memory.FrameRange, error)

	// DeallocateFrames releases frames previously returned by
	// AllocateFrames. Partial ranges carved by AllocateFramesAligned are
	// valid arguments.
	DeallocateFrames(r memory.FrameRange) error
}

// AllocateFramesAligned reserves count frames whose start address is a
// multiple of alignment bytes, on top of an alignment-unaware Platform.
//
// Alignments of at most one frame pass straight through. Larger alignments
// over-allocate by ceil(alignment/FrameSize) frames, carve the aligned
// sub-range out of the result, and return each non-empty slack end to p.
// alignment must be a power of two.
func AllocateFramesAligned(p Platform, count, alignment uint64, policy AllocationPolicy) (memory.FrameRange, error) {
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return memory.FrameRange{}, fmt.Errorf("platform: alignment %d is not a power of two", alignment)
	}
	if alignment <= memory.FrameSize {
		return p.AllocateFrames(count, policy)
	}

	extra := (alignment-1)/memory.FrameSize + 1
	raw, err := p.AllocateFrames(count+extra, policy)
	if err != nil {
		return memory.FrameRange{}, err
	}

	alignedStart := raw.Start().AlignUp(alignment)
	lower, rest, err := raw.SplitAt(alignedStart)
	if err != nil {
		// The aligned start always lies within an over-allocated range.
		panic(fmt.Sprintf("platform: aligned start %d outside allocation %v", alignedStart.Number(), raw))
	}
	result, upper, err := rest.SplitAt(alignedStart.Add(count))
	if err != nil {
		panic(fmt.Sprintf("platform: aligned end outside allocation %v", raw))
	}

	if !lower.IsEmpty() {
		if err := p.DeallocateFrames(lower); err != nil {
			return memory.FrameRange{}, fmt.Errorf("platform: trimming lower slack %v: %w", lower, err)
		}
	}
	if !upper.IsEmpty() {
		if err := p.DeallocateFrames(upper); err != nil {
			return memory.FrameRange{}, fmt.Errorf("platform: trimming upper slack %v: %w", upper, err)
		}
	}
	return result, nil
}
