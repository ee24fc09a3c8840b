package phys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JarlEvanson/revm/boot"
	"github.com/JarlEvanson/revm/memory"
)

type allocCall struct {
	count     uint64
	alignment uint64
	flags     boot.AllocationFlags
}

type deallocCall struct {
	address uint64
	count   uint64
}

func newAllocTable(granularity uint64) (*boot.GenericTable, *[]allocCall, *[]deallocCall) {
	var (
		allocs   []allocCall
		deallocs []deallocCall
		next     = granularity
	)
	table := &boot.GenericTable{
		Version:       boot.GenericTableVersion,
		PageFrameSize: granularity,
		Write:         func([]byte) boot.Status { return boot.StatusSuccess },
		AllocateFrames: func(count, alignment uint64, flags boot.AllocationFlags, _ uint64) (uint64, boot.Status) {
			allocs = append(allocs, allocCall{count, alignment, flags})
			address := next
			if alignment != 0 {
				address = ((address + alignment - 1) / alignment) * alignment
			}
			next = address + count*granularity
			return address, boot.StatusSuccess
		},
		DeallocateFrames: func(address, count uint64) boot.Status {
			deallocs = append(deallocs, deallocCall{address, count})
			return boot.StatusSuccess
		},
		GetMemoryMap: func([]boot.MemoryDescriptor) (int, uint64, uint64, boot.Status) {
			return 0, 0, boot.MemoryDescriptorVersion, boot.StatusSuccess
		},
		Map:      func(uint64, uintptr, uintptr, boot.MapFlags) boot.Status { return boot.StatusSuccess },
		Unmap:    func(uintptr, uintptr) boot.Status { return boot.StatusSuccess },
		Takeover: func(uint64, boot.TakeoverFlags) boot.Status { return boot.StatusSuccess },
	}
	return table, &allocs, &deallocs
}

func TestAllocateFramesSameGranularity(t *testing.T) {
	table, allocs, _ := newAllocTable(memory.FrameSize)
	a, err := NewAllocator(table, nil)
	require.NoError(t, err)

	r, err := a.AllocateFrames(4, memory.FrameSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), r.Count())

	require.Len(t, *allocs, 1)
	assert.Equal(t, uint64(4), (*allocs)[0].count)
	assert.Equal(t, uint64(memory.FrameSize), (*allocs)[0].alignment)
}

func TestAllocateFramesLargerProviderGranularity(t *testing.T) {
	// A provider working in 8 KiB blocks needs ceil(3*4096/8192) = 2 blocks
	// for three 4 KiB frames.
	table, allocs, _ := newAllocTable(2 * memory.FrameSize)
	a, err := NewAllocator(table, nil)
	require.NoError(t, err)

	r, err := a.AllocateFrames(3, memory.FrameSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), r.Count())

	require.Len(t, *allocs, 1)
	assert.Equal(t, uint64(2), (*allocs)[0].count)
}

func TestAllocateFramesSmallerProviderGranularity(t *testing.T) {
	table, allocs, _ := newAllocTable(256)
	a, err := NewAllocator(table, nil)
	require.NoError(t, err)

	_, err = a.AllocateFrames(1, memory.FrameSize)
	require.NoError(t, err)

	require.Len(t, *allocs, 1)
	assert.Equal(t, uint64(memory.FrameSize/256), (*allocs)[0].count)
}

func TestAllocateFramesFailure(t *testing.T) {
	table, _, _ := newAllocTable(memory.FrameSize)
	table.AllocateFrames = func(uint64, uint64, boot.AllocationFlags, uint64) (uint64, boot.Status) {
		return 0, boot.StatusOutOfMemory
	}
	a, err := NewAllocator(table, nil)
	require.NoError(t, err)

	_, err = a.AllocateFrames(1, memory.FrameSize)
	assert.ErrorIs(t, err, ErrFrameAllocation)
}

func TestDeallocateFramesConvertsGranularity(t *testing.T) {
	table, _, deallocs := newAllocTable(2 * memory.FrameSize)
	a, err := NewAllocator(table, nil)
	require.NoError(t, err)

	a.DeallocateFrames(memory.NewFrameRange(4, 3))

	require.Len(t, *deallocs, 1)
	assert.Equal(t, uint64(4*memory.FrameSize), (*deallocs)[0].address)
	assert.Equal(t, uint64(2), (*deallocs)[0].count)
}

func TestNewAllocatorRejectsInvalidTable(t *testing.T) {
	table, _, _ := newAllocTable(memory.FrameSize)
	table.PageFrameSize = 100 // not a power of two

	_, err := NewAllocator(table, nil)
	assert.Error(t, err)
}
