//go:build linux

package hosted

import (
	"log/slog"
	"slices"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/JarlEvanson/revm/boot"
	"github.com/JarlEvanson/revm/memory"
	"github.com/JarlEvanson/revm/platform"
)

// NewTable returns a capability table backed by the platform. The table is
// live until Takeover succeeds, at which point every capability starts
// failing with StatusInvalidUsage; frames stay allocated across takeover
// since their ownership passes to the executable.
func (p *Platform) NewTable() *boot.GenericTable {
	return &boot.GenericTable{
		Version:       boot.GenericTableVersion,
		PageFrameSize: memory.FrameSize,

		Write:            p.tableWrite,
		AllocateFrames:   p.tableAllocateFrames,
		DeallocateFrames: p.tableDeallocateFrames,
		GetMemoryMap:     p.tableGetMemoryMap,
		Map:              p.tableMap,
		Unmap:            p.tableUnmap,
		Takeover:         p.tableTakeover,
	}
}

// live reports whether the table may still be used; callers hold p.mu.
func (p *Platform) liveLocked() bool {
	return !p.closed && p.takeovers == 0
}

func (p *Platform) tableWrite(s []byte) boot.Status {
	p.mu.Lock()
	if !p.liveLocked() {
		p.mu.Unlock()
		return boot.StatusInvalidUsage
	}
	p.mu.Unlock()

	if _, err := p.console.Write(s); err != nil {
		return boot.StatusNotSupported
	}
	return boot.StatusSuccess
}

func (p *Platform) tableAllocateFrames(count, alignment uint64, flags boot.AllocationFlags, address uint64) (uint64, boot.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.liveLocked() {
		return 0, boot.StatusInvalidUsage
	}
	if flags&^boot.AllocateValid != 0 {
		return 0, boot.StatusInvalidUsage
	}
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return 0, boot.StatusInvalidUsage
	}

	var policy platform.AllocationPolicy
	switch flags & boot.AllocateTypeMask {
	case boot.AllocateAny:
		policy = platform.Any()
	case boot.AllocateAt:
		policy = platform.At(memory.PhysicalAddress(address))
	case boot.AllocateBelow:
		policy = platform.Below(memory.PhysicalAddress(address))
	default:
		return 0, boot.StatusInvalidUsage
	}
	if alignment < memory.FrameSize {
		alignment = memory.FrameSize
	}

	r, err := p.allocateLocked(count, alignment, policy)
	if err != nil {
		p.log.Debug("frame allocation failed",
			slog.Uint64("count", count),
			slog.String("policy", policy.String()),
			slog.String("error", err.Error()),
		)
		return 0, boot.StatusOutOfMemory
	}
	return uint64(r.Start().StartAddress()), boot.StatusSuccess
}

func (p *Platform) tableDeallocateFrames(physicalAddress, count uint64) boot.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.liveLocked() {
		return boot.StatusInvalidUsage
	}
	address := memory.PhysicalAddress(physicalAddress)
	if !address.IsAligned(memory.FrameSize) || count == 0 {
		return boot.StatusInvalidUsage
	}

	r := memory.NewFrameRange(memory.FrameContaining(address), count)
	if !p.allocated.Contains(r) {
		return boot.StatusNotFound
	}
	p.releaseLocked(r)
	return boot.StatusSuccess
}

func (p *Platform) tableGetMemoryMap(buf []boot.MemoryDescriptor) (int, uint64, uint64, boot.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.liveLocked() {
		return 0, 0, 0, boot.StatusInvalidUsage
	}

	descriptors := make([]boot.MemoryDescriptor, 0,
		len(p.free.Ranges())+len(p.allocated.Ranges()))
	for _, run := range p.free.Ranges() {
		descriptors = append(descriptors, boot.MemoryDescriptor{
			Number: run.Start().Number(),
			Count:  run.Count(),
			Type:   boot.MemoryFree,
		})
	}
	for _, run := range p.allocated.Ranges() {
		descriptors = append(descriptors, boot.MemoryDescriptor{
			Number: run.Start().Number(),
			Count:  run.Count(),
			Type:   boot.MemoryBootloaderReclaimable,
		})
	}
	slices.SortFunc(descriptors, func(a, b boot.MemoryDescriptor) int {
		switch {
		case a.Number < b.Number:
			return -1
		case a.Number > b.Number:
			return 1
		default:
			return 0
		}
	})

	if len(buf) < len(descriptors) {
		return len(descriptors), 0, boot.MemoryDescriptorVersion, boot.StatusBufferTooSmall
	}
	copy(buf, descriptors)
	return len(descriptors), p.mapKey, boot.MemoryDescriptorVersion, boot.StatusSuccess
}

func (p *Platform) tableMap(physicalAddress uint64, virtualAddress uintptr, count uintptr, flags boot.MapFlags) boot.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.liveLocked() {
		return boot.StatusInvalidUsage
	}
	if flags&^boot.MapValid != 0 || !flags.Contains(boot.MapRead) || count == 0 {
		return boot.StatusInvalidUsage
	}
	if flags.Contains(boot.MapWrite) && flags.Contains(boot.MapExec) {
		return boot.StatusInvalidUsage
	}
	if physicalAddress%memory.FrameSize != 0 || virtualAddress%memory.FrameSize != 0 {
		return boot.StatusInvalidUsage
	}
	if physicalAddress+uint64(count)*memory.FrameSize > p.physBytes {
		return boot.StatusInvalidUsage
	}
	if virtualAddress < p.base || virtualAddress+count*memory.FrameSize > p.base+p.virtBytes {
		return boot.StatusInvalidUsage
	}

	first := memory.PageContaining(memory.VirtualAddress(virtualAddress))
	if !flags.Contains(boot.MapMayOverwrite) {
		// Check every page before touching anything, so an overlap report
		// leaves no partial mapping behind.
		for page := range memory.NewPageRange(first, count).Pages() {
			if _, ok := p.mapped[page]; ok {
				return boot.StatusOverlap
			}
		}
	}

	prot := unix.PROT_READ
	if flags.Contains(boot.MapWrite) {
		prot |= unix.PROT_WRITE
	}
	if flags.Contains(boot.MapExec) {
		prot |= unix.PROT_EXEC
	}

	target := unsafe.Add(p.reservation, virtualAddress-p.base)
	_, err := unix.MmapPtr(p.memfd, int64(physicalAddress),
		target, count*memory.FrameSize,
		prot, unix.MAP_SHARED|unix.MAP_FIXED)
	if err != nil {
		p.log.Warn("host mmap failed", slog.String("error", err.Error()))
		return boot.StatusOutOfMemory
	}

	frame := memory.FrameContaining(memory.PhysicalAddress(physicalAddress))
	for page := range memory.NewPageRange(first, count).Pages() {
		p.mapped[page] = frame
		frame = frame.Add(1)
	}
	return boot.StatusSuccess
}

func (p *Platform) tableUnmap(virtualAddress uintptr, count uintptr) boot.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.liveLocked() {
		return boot.StatusInvalidUsage
	}
	if virtualAddress%memory.FrameSize != 0 || count == 0 {
		return boot.StatusInvalidUsage
	}
	if virtualAddress < p.base || virtualAddress+count*memory.FrameSize > p.base+p.virtBytes {
		return boot.StatusInvalidUsage
	}

	// Restore the PROT_NONE cover so the reservation survives.
	target := unsafe.Add(p.reservation, virtualAddress-p.base)
	_, err := unix.MmapPtr(-1, 0, target,
		count*memory.FrameSize, unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED)
	if err != nil {
		p.log.Warn("host unmap failed", slog.String("error", err.Error()))
		return boot.StatusNotSupported
	}

	first := memory.PageContaining(memory.VirtualAddress(virtualAddress))
	for page := range memory.NewPageRange(first, count).Pages() {
		delete(p.mapped, page)
	}
	return boot.StatusSuccess
}

func (p *Platform) tableTakeover(key uint64, flags boot.TakeoverFlags) boot.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return boot.StatusInvalidUsage
	}
	if flags&^boot.TakeoverValid != 0 {
		return boot.StatusInvalidUsage
	}

	switch p.takeovers {
	case 0:
		if key != p.mapKey {
			return boot.StatusInvalidKey
		}
		p.inPlace = flags.Contains(boot.TakeoverInPlace)
	case 1:
		// A second takeover is legal only when both calls declare in-place
		// virtualization.
		if !p.inPlace || !flags.Contains(boot.TakeoverInPlace) {
			return boot.StatusInvalidUsage
		}
	default:
		return boot.StatusInvalidUsage
	}

	p.takeovers++
	p.log.Info("takeover", slog.Int("count", p.takeovers), slog.Bool("inPlace", p.inPlace))
	return boot.StatusSuccess
}
