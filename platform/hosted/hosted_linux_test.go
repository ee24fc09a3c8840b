package hosted

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JarlEvanson/revm/boot"
	"github.com/JarlEvanson/revm/memory"
	"github.com/JarlEvanson/revm/memory/heap"
	"github.com/JarlEvanson/revm/memory/phys"
	"github.com/JarlEvanson/revm/memory/virt"
	"github.com/JarlEvanson/revm/platform"
)

const (
	testPhysBytes uint64  = 1 << 20
	testVirtBytes uintptr = 4 << 20

	testPhysFrames = testPhysBytes / memory.FrameSize
)

func newTestPlatform(t *testing.T) *Platform {
	t.Helper()

	p, err := New(Options{
		PhysBytes: testPhysBytes,
		VirtBytes: testVirtBytes,
		Console:   &bytes.Buffer{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// window exposes count frames of the reservation starting at page for
// direct access. The pages must currently be mapped.
func window(p *Platform, page memory.Page, count uintptr) []byte {
	offset := uintptr(page.StartAddress()) - p.base
	return unsafe.Slice((*byte)(unsafe.Add(p.reservation, offset)),
		count*memory.FrameSize)
}

func TestNewProducesValidTable(t *testing.T) {
	p := newTestPlatform(t)

	require.NoError(t, p.NewTable().Validate())

	free, allocated := p.Stats()
	assert.Equal(t, testPhysFrames, free)
	assert.Zero(t, allocated)

	reservation := p.Reservation()
	assert.Equal(t, testVirtBytes/memory.FrameSize, reservation.Count())
	assert.True(t, memory.VirtualAddress(p.base).IsAligned(memory.FrameSize))
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	p := newTestPlatform(t)
	table := p.NewTable()

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.AllocateFrames(1, platform.Any())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.DeallocateFrames(memory.NewFrameRange(0, 1)), ErrClosed)

	_, status := table.AllocateFrames(1, memory.FrameSize, boot.AllocateAny, 0)
	assert.Equal(t, boot.StatusInvalidUsage, status)
	assert.Equal(t, boot.StatusInvalidUsage, table.Write([]byte("late")))
}

func TestAllocatePolicies(t *testing.T) {
	p := newTestPlatform(t)

	anyRange, err := p.AllocateFrames(4, platform.Any())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), anyRange.Count())

	at := memory.Frame(32).StartAddress()
	atRange, err := p.AllocateFrames(2, platform.At(at))
	require.NoError(t, err)
	assert.Equal(t, memory.Frame(32), atRange.Start())

	_, err = p.AllocateFrames(1, platform.At(at))
	assert.ErrorIs(t, err, ErrExhausted)

	_, err = p.AllocateFrames(1, platform.At(at.Add(1)))
	assert.ErrorIs(t, err, ErrBadPolicy)

	below, err := p.AllocateFrames(2, platform.Below(memory.Frame(16).StartAddress()))
	require.NoError(t, err)
	assert.True(t, below.End() <= memory.Frame(16))

	_, err = p.AllocateFrames(testPhysFrames, platform.Any())
	assert.ErrorIs(t, err, ErrExhausted)

	require.NoError(t, p.DeallocateFrames(atRange))
	assert.ErrorContains(t, p.DeallocateFrames(atRange), "not allocated")

	free, allocated := p.Stats()
	assert.Equal(t, testPhysFrames, free+allocated)
	assert.Equal(t, anyRange.Count()+below.Count(), allocated)
}

func TestAllocateFramesAlignedOnPlatform(t *testing.T) {
	p := newTestPlatform(t)

	// Skew the free list so an aligned allocation has slack to trim.
	_, err := p.AllocateFrames(3, platform.Any())
	require.NoError(t, err)

	r, err := platform.AllocateFramesAligned(p, 4, 16*memory.FrameSize, platform.Any())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), r.Count())
	assert.True(t, r.Start().StartAddress().IsAligned(16*memory.FrameSize))

	free, allocated := p.Stats()
	assert.Equal(t, testPhysFrames, free+allocated)
	assert.Equal(t, uint64(3+4), allocated)
}

func TestTableAllocateValidation(t *testing.T) {
	p := newTestPlatform(t)
	table := p.NewTable()

	_, status := table.AllocateFrames(1, memory.FrameSize, boot.AllocationFlags(1<<8), 0)
	assert.Equal(t, boot.StatusInvalidUsage, status)

	_, status = table.AllocateFrames(1, 3, boot.AllocateAny, 0)
	assert.Equal(t, boot.StatusInvalidUsage, status)

	want := uint64(memory.Frame(8).StartAddress())
	address, status := table.AllocateFrames(2, memory.FrameSize, boot.AllocateAt, want)
	require.Equal(t, boot.StatusSuccess, status)
	assert.Equal(t, want, address)

	_, status = table.AllocateFrames(1, memory.FrameSize, boot.AllocateAt, want)
	assert.Equal(t, boot.StatusOutOfMemory, status)

	assert.Equal(t, boot.StatusInvalidUsage, table.DeallocateFrames(want+1, 1))
	assert.Equal(t, boot.StatusInvalidUsage, table.DeallocateFrames(want, 0))
	assert.Equal(t, boot.StatusNotFound, table.DeallocateFrames(want, 4))
	assert.Equal(t, boot.StatusSuccess, table.DeallocateFrames(want, 2))
}

func TestTableWriteReachesConsole(t *testing.T) {
	var console bytes.Buffer
	p, err := New(Options{
		PhysBytes: testPhysBytes,
		VirtBytes: testVirtBytes,
		Console:   &console,
	})
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, boot.StatusSuccess, p.NewTable().Write([]byte("hello\n")))
	assert.Equal(t, "hello\n", console.String())
}

func TestTableMapValidation(t *testing.T) {
	p := newTestPlatform(t)
	table := p.NewTable()

	virtualAddress := p.base

	status := table.Map(0, virtualAddress, 1, boot.MapWrite)
	assert.Equal(t, boot.StatusInvalidUsage, status, "mapping must be readable")

	status = table.Map(0, virtualAddress, 1, boot.MapRead|boot.MapWrite|boot.MapExec)
	assert.Equal(t, boot.StatusInvalidUsage, status, "writable and executable are exclusive")

	status = table.Map(0, virtualAddress, 1, boot.MapFlags(1<<16)|boot.MapRead)
	assert.Equal(t, boot.StatusInvalidUsage, status)

	status = table.Map(0, virtualAddress, 0, boot.MapRead)
	assert.Equal(t, boot.StatusInvalidUsage, status)

	status = table.Map(1, virtualAddress, 1, boot.MapRead)
	assert.Equal(t, boot.StatusInvalidUsage, status, "unaligned physical address")

	status = table.Map(0, virtualAddress+1, 1, boot.MapRead)
	assert.Equal(t, boot.StatusInvalidUsage, status, "unaligned virtual address")

	status = table.Map(testPhysBytes, virtualAddress, 1, boot.MapRead)
	assert.Equal(t, boot.StatusInvalidUsage, status, "physical range out of bounds")

	status = table.Map(0, p.base+testVirtBytes-memory.FrameSize, 2, boot.MapRead)
	assert.Equal(t, boot.StatusInvalidUsage, status, "virtual range out of bounds")

	status = table.Map(0, p.base-memory.FrameSize, 1, boot.MapRead)
	assert.Equal(t, boot.StatusInvalidUsage, status, "virtual range before reservation")
}

func TestTableMapOverlapIsAtomic(t *testing.T) {
	p := newTestPlatform(t)
	table := p.NewTable()

	address, status := table.AllocateFrames(4, memory.FrameSize, boot.AllocateAny, 0)
	require.Equal(t, boot.StatusSuccess, status)

	base := p.base
	require.Equal(t, boot.StatusSuccess,
		table.Map(address, base+2*memory.FrameSize, 2, boot.MapRead|boot.MapWrite))

	// The candidate range straddles the existing mapping; nothing of it may
	// take effect.
	status = table.Map(address, base, 3, boot.MapRead|boot.MapWrite)
	require.Equal(t, boot.StatusOverlap, status)
	_, mapped := p.mapped[memory.PageContaining(memory.VirtualAddress(base))]
	assert.False(t, mapped, "overlap rejection must not map leading pages")

	require.Equal(t, boot.StatusSuccess,
		table.Map(address, base, 3, boot.MapRead|boot.MapWrite|boot.MapMayOverwrite))
	require.Equal(t, boot.StatusSuccess, table.Unmap(base, 4))
}

func TestMappedMemoryIsSharedWithPhysicalFrames(t *testing.T) {
	p := newTestPlatform(t)
	table := p.NewTable()

	address, status := table.AllocateFrames(2, memory.FrameSize, boot.AllocateAny, 0)
	require.Equal(t, boot.StatusSuccess, status)

	first := p.Reservation().Start()
	require.Equal(t, boot.StatusSuccess,
		table.Map(address, uintptr(first.StartAddress()), 2, boot.MapRead|boot.MapWrite))

	buf := window(p, first, 2)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.Equal(t, boot.StatusSuccess, table.Unmap(uintptr(first.StartAddress()), 2))

	// The same frames mapped elsewhere expose the bytes written above.
	other := first.Add(8)
	require.Equal(t, boot.StatusSuccess,
		table.Map(address, uintptr(other.StartAddress()), 2, boot.MapRead))

	buf = window(p, other, 2)
	for i := 0; i < len(buf); i += 977 {
		require.Equal(t, byte(i), buf[i], "offset %d", i)
	}
	require.Equal(t, boot.StatusSuccess, table.Unmap(uintptr(other.StartAddress()), 2))
}

func TestTableUnmapValidation(t *testing.T) {
	p := newTestPlatform(t)
	table := p.NewTable()

	assert.Equal(t, boot.StatusInvalidUsage, table.Unmap(p.base+1, 1))
	assert.Equal(t, boot.StatusInvalidUsage, table.Unmap(p.base, 0))
	assert.Equal(t, boot.StatusInvalidUsage,
		table.Unmap(p.base+testVirtBytes-memory.FrameSize, 2))
}

func TestGetMemoryMapProtocol(t *testing.T) {
	p := newTestPlatform(t)
	table := p.NewTable()

	n, _, _, status := table.GetMemoryMap(nil)
	require.Equal(t, boot.StatusBufferTooSmall, status)
	require.Equal(t, 1, n)

	buf := make([]boot.MemoryDescriptor, n)
	n, key, version, status := table.GetMemoryMap(buf)
	require.Equal(t, boot.StatusSuccess, status)
	require.Equal(t, 1, n)
	assert.Equal(t, boot.MemoryDescriptorVersion, version)
	assert.Equal(t, boot.MemoryDescriptor{
		Number: 0,
		Count:  testPhysFrames,
		Type:   boot.MemoryFree,
	}, buf[0])

	// Carving an allocation out of the middle splits the map into three
	// regions and invalidates the old key.
	address, status := table.AllocateFrames(2, memory.FrameSize, boot.AllocateAt,
		uint64(memory.Frame(100).StartAddress()))
	require.Equal(t, boot.StatusSuccess, status)
	require.Equal(t, uint64(memory.Frame(100).StartAddress()), address)

	n, _, _, status = table.GetMemoryMap(buf)
	require.Equal(t, boot.StatusBufferTooSmall, status)
	require.Equal(t, 3, n)

	buf = make([]boot.MemoryDescriptor, n)
	n, newKey, _, status := table.GetMemoryMap(buf)
	require.Equal(t, boot.StatusSuccess, status)
	require.Equal(t, 3, n)
	assert.NotEqual(t, key, newKey)

	assert.Equal(t, boot.MemoryDescriptor{Number: 0, Count: 100, Type: boot.MemoryFree}, buf[0])
	assert.Equal(t, boot.MemoryDescriptor{Number: 100, Count: 2, Type: boot.MemoryBootloaderReclaimable}, buf[1])
	assert.Equal(t, boot.MemoryDescriptor{Number: 102, Count: testPhysFrames - 102, Type: boot.MemoryFree}, buf[2])
}

func currentMapKey(t *testing.T, table *boot.GenericTable) uint64 {
	t.Helper()

	n, _, _, status := table.GetMemoryMap(nil)
	if status == boot.StatusBufferTooSmall {
		buf := make([]boot.MemoryDescriptor, n)
		var key uint64
		n, key, _, status = table.GetMemoryMap(buf)
		require.Equal(t, boot.StatusSuccess, status)
		return key
	}
	require.Equal(t, boot.StatusSuccess, status)
	return 0
}

func TestTakeoverInvalidatesTable(t *testing.T) {
	p := newTestPlatform(t)
	table := p.NewTable()

	key := currentMapKey(t, table)

	assert.Equal(t, boot.StatusInvalidUsage, table.Takeover(key, boot.TakeoverFlags(1<<4)))
	assert.Equal(t, boot.StatusInvalidKey, table.Takeover(key+1, 0))

	// A failed takeover leaves the table live.
	_, status := table.AllocateFrames(1, memory.FrameSize, boot.AllocateAny, 0)
	require.Equal(t, boot.StatusSuccess, status)

	key = currentMapKey(t, table)
	require.Equal(t, boot.StatusSuccess, table.Takeover(key, 0))

	assert.Equal(t, boot.StatusInvalidUsage, table.Write([]byte("dead")))
	_, status = table.AllocateFrames(1, memory.FrameSize, boot.AllocateAny, 0)
	assert.Equal(t, boot.StatusInvalidUsage, status)
	assert.Equal(t, boot.StatusInvalidUsage, table.DeallocateFrames(0, 1))
	_, _, _, status = table.GetMemoryMap(nil)
	assert.Equal(t, boot.StatusInvalidUsage, status)
	assert.Equal(t, boot.StatusInvalidUsage, table.Map(0, p.base, 1, boot.MapRead))
	assert.Equal(t, boot.StatusInvalidUsage, table.Unmap(p.base, 1))

	assert.Equal(t, boot.StatusInvalidUsage, table.Takeover(key, 0))
}

func TestTakeoverInPlaceAllowsSecondCall(t *testing.T) {
	p := newTestPlatform(t)
	table := p.NewTable()

	key := currentMapKey(t, table)
	require.Equal(t, boot.StatusSuccess, table.Takeover(key, boot.TakeoverInPlace))

	assert.Equal(t, boot.StatusInvalidUsage, table.Takeover(key, 0),
		"second takeover must also declare in-place")
	require.Equal(t, boot.StatusSuccess, table.Takeover(key, boot.TakeoverInPlace))
	assert.Equal(t, boot.StatusInvalidUsage, table.Takeover(key, boot.TakeoverInPlace))
}

func TestMapperOnHostedPlatform(t *testing.T) {
	p := newTestPlatform(t)
	table := p.NewTable()

	mapper, err := virt.NewMapper(table, p.MapperOptions(boot.DiscardLogger()))
	require.NoError(t, err)
	require.True(t, p.Reservation().Contains(mapper.TempPage()))

	frames, err := p.AllocateFrames(3, platform.Any())
	require.NoError(t, err)

	pages, err := mapper.Map(frames, virt.PermReadWrite)
	require.NoError(t, err)
	require.Equal(t, uintptr(3), pages.Count())
	require.True(t, p.Reservation().Contains(pages.Start()))

	buf := window(p, pages.Start(), pages.Count())
	for i := range buf {
		buf[i] = byte(i * 7)
	}

	// The temporary slot views the same frames the window wrote through.
	temp, err := mapper.MapTemporary(frames.Start().Add(1))
	require.NoError(t, err)
	frame := temp.Bytes()
	for i := 0; i < memory.FrameSize; i += 509 {
		require.Equal(t, buf[memory.FrameSize+i], frame[i])
	}

	mapper.Unmap(pages)
	require.NoError(t, p.DeallocateFrames(frames))
}

func TestPhysicalMemoryAccessOnHostedPlatform(t *testing.T) {
	p := newTestPlatform(t)
	table := p.NewTable()

	mapper, err := virt.NewMapper(table, p.MapperOptions(boot.DiscardLogger()))
	require.NoError(t, err)
	mem := phys.NewMemory(mapper)

	frames, err := p.AllocateFrames(2, platform.Any())
	require.NoError(t, err)

	// Straddle the boundary between the two frames.
	boundary := frames.Start().Add(1).StartAddress()
	start := boundary.Sub(3)

	require.NoError(t, mem.WriteU64(start, 0x1122334455667788))
	value, err := mem.ReadU64(start)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1122334455667788), value)

	low, err := mem.ReadU32(start)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x55667788), low)

	be, err := mem.ReadU64BE(start)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x8877665544332211), be)

	payload := []byte("hosted physical memory round trip")
	require.NoError(t, mem.Write(start, payload))
	got := make([]byte, len(payload))
	require.NoError(t, mem.Read(start, got))
	assert.Equal(t, payload, got)
}

func TestHeapOnHostedPlatform(t *testing.T) {
	p := newTestPlatform(t)
	table := p.NewTable()

	log := boot.DiscardLogger()
	mapper, err := virt.NewMapper(table, p.MapperOptions(log))
	require.NoError(t, err)
	frameAllocator, err := phys.NewAllocator(table, log)
	require.NoError(t, err)

	allocator, err := heap.New(heap.Options{
		Phys:   frameAllocator,
		Mapper: mapper,
		Log:    log,
	})
	require.NoError(t, err)

	// Slab path: small objects are real dereferenceable memory.
	objects := make([]unsafe.Pointer, 64)
	for i := range objects {
		ptr, err := allocator.Allocate(48, 16)
		require.NoError(t, err)
		objects[i] = ptr
		obj := unsafe.Slice((*byte)(ptr), 48)
		for j := range obj {
			obj[j] = byte(i)
		}
	}
	for i, ptr := range objects {
		for _, b := range unsafe.Slice((*byte)(ptr), 48) {
			require.Equal(t, byte(i), b)
		}
		allocator.Deallocate(ptr, 48, 16)
	}

	// Page path: large regions map real frames. Slab backing pages also sit
	// on the page allocator, so compare against the post-slab baseline.
	baseline := allocator.Stats()
	assert.Zero(t, baseline.SlabObjects)
	assert.Equal(t, uint64(2), baseline.Slabs)

	region, err := allocator.Allocate(3*memory.FrameSize, memory.FrameSize)
	require.NoError(t, err)
	buf := unsafe.Slice((*byte)(region), 3*memory.FrameSize)
	for i := range buf {
		buf[i] = 0xA5
	}
	stats := allocator.Stats()
	assert.Equal(t, baseline.PageRegions+1, stats.PageRegions)
	assert.Equal(t, baseline.PageBytes+3*memory.FrameSize, stats.PageBytes)

	allocator.Deallocate(region, 3*memory.FrameSize, memory.FrameSize)
	assert.Equal(t, baseline.PageRegions, allocator.Stats().PageRegions)

	free, allocated := p.Stats()
	assert.Equal(t, testPhysFrames, free+allocated)
}
