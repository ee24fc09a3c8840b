package virt

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/JarlEvanson/revm/boot"
	"github.com/JarlEvanson/revm/internal/spin"
	"github.com/JarlEvanson/revm/memory"
)

var (
	// ErrMap indicates the provider refused a mapping request.
	ErrMap = errors.New("virt: mapping failed")
	// ErrNoFreeRegion indicates no free virtual region of the requested size
	// was found.
	ErrNoFreeRegion = errors.New("virt: no free virtual region")
	// ErrCountMismatch indicates the physical and virtual ranges of a
	// placement request cover different numbers of frames.
	ErrCountMismatch = errors.New("virt: frame and page counts differ")
	// ErrTempSlot indicates no free page could be claimed for the temporary
	// mapping slot.
	ErrTempSlot = errors.New("virt: temporary mapping slot unavailable")
)

// Permissions describe the access rights of a mapping. Mapped memory is
// always readable; write and execute access are mutually exclusive.
type Permissions uint8

const (
	// PermRead grants read-only access.
	PermRead Permissions = iota
	// PermReadWrite grants read and write access.
	PermReadWrite
	// PermReadExecute grants read and execute access.
	PermReadExecute
)

// String returns a short textual form of the permissions.
func (p Permissions) String() string {
	switch p {
	case PermRead:
		return "r--"
	case PermReadWrite:
		return "rw-"
	case PermReadExecute:
		return "r-x"
	default:
		return fmt.Sprintf("Permissions(%d)", uint8(p))
	}
}

func (p Permissions) mapFlags() boot.MapFlags {
	flags := boot.MapRead
	switch p {
	case PermReadWrite:
		flags |= boot.MapWrite
	case PermReadExecute:
		flags |= boot.MapExec
	}
	return flags
}

// MappingType records the intended cacheability of a mapping. The boot
// protocol does not distinguish cacheability, so the type only affects
// diagnostics.
type MappingType uint8

const (
	// MappingNormal is ordinary cacheable memory.
	MappingNormal MappingType = iota
	// MappingNoncacheable is memory that must bypass the cache.
	MappingNoncacheable
	// MappingDevice is device memory with strict access ordering.
	MappingDevice
	// MappingWriteCombining is memory whose writes may be combined.
	MappingWriteCombining
)

// String returns the name of the mapping type.
func (t MappingType) String() string {
	switch t {
	case MappingNormal:
		return "normal"
	case MappingNoncacheable:
		return "noncacheable"
	case MappingDevice:
		return "device"
	case MappingWriteCombining:
		return "write-combining"
	default:
		return fmt.Sprintf("MappingType(%d)", uint8(t))
	}
}

// maxProbeSteps bounds the number of candidate positions a single free-region
// search will try before giving up.
const maxProbeSteps = 1 << 16

// Options configure a Mapper.
type Options struct {
	// ProbeStart is the first Page considered when claiming the temporary
	// mapping slot and when searching for free regions. The zero value
	// selects page 1, keeping the page containing the null address unused.
	ProbeStart memory.Page

	// Log receives mapping diagnostics. A nil Log discards them.
	Log *slog.Logger
}

// Mapper maps physical frames into the virtual address space through a
// capability table.
//
// A Mapper owns one temporary mapping slot, claimed during construction, and
// a cursor into the virtual address space used to place mappings whose
// location the caller leaves unspecified. All methods are safe for
// concurrent use.
type Mapper struct {
	table *boot.GenericTable
	log   *slog.Logger

	mu spin.Lock // protects the fields below

	// temp is the page backing MapTemporary. It is always mapped: to the
	// probe frame while idle, or to the caller's frame while a handle is
	// live. Keeping it mapped makes free-region probes skip it naturally.
	temp memory.Page
	// tempGen increments on every retargeting of the slot, invalidating
	// outstanding TempPage handles.
	tempGen uint64
	// probeFrame backs the temporary slot while no caller frame occupies it.
	probeFrame memory.PhysicalAddress

	cursor memory.Page
}

// NewMapper claims a temporary mapping slot from table and returns a Mapper.
//
// The slot is found by allocating one frame and probing candidate pages from
// opts.ProbeStart upward until the provider accepts a non-overwriting
// mapping. The probe frame stays allocated and mapped for the life of the
// Mapper.
func NewMapper(table *boot.GenericTable, opts Options) (*Mapper, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = boot.DiscardLogger()
	}

	providerPerFrame := ceilDiv(memory.FrameSize, table.PageFrameSize)
	address, status := table.AllocateFrames(providerPerFrame, memory.FrameSize, boot.AllocateAny, 0)
	if status != boot.StatusSuccess {
		return nil, fmt.Errorf("%w: allocating probe frame: %v", ErrTempSlot, status)
	}

	start := opts.ProbeStart
	if start == 0 {
		start = memory.Page(1)
	}

	page := start
	for step := 0; step < maxProbeSteps; step++ {
		status := table.Map(address, uintptr(page.StartAddress()), uintptr(providerPerFrame), boot.MapRead|boot.MapWrite)
		switch status {
		case boot.StatusSuccess:
			log.Debug("claimed temporary mapping slot",
				slog.Uint64("page", uint64(page.Number())),
				slog.Uint64("probeFrame", address),
			)
			return &Mapper{
				table:      table,
				log:        log,
				temp:       page,
				probeFrame: memory.PhysicalAddress(address),
				cursor:     page.Add(1),
			}, nil
		case boot.StatusOverlap:
			page = page.Add(1)
		default:
			releaseStatus := table.DeallocateFrames(address, providerPerFrame)
			if releaseStatus != boot.StatusSuccess {
				log.Warn("failed to release probe frame",
					slog.Uint64("address", address),
					slog.String("status", releaseStatus.String()),
				)
			}
			return nil, fmt.Errorf("%w: probing page %d: %v", ErrTempSlot, page.Number(), status)
		}
	}
	return nil, fmt.Errorf("%w: no free page found", ErrTempSlot)
}

// Table returns the capability table backing the Mapper.
func (m *Mapper) Table() *boot.GenericTable {
	return m.table
}

// TempPage returns the page of the temporary mapping slot. The page is
// always mapped, but its contents are meaningful only through a live handle
// from MapTemporary.
func (m *Mapper) TempPage() memory.Page {
	return m.temp
}

// MapAt maps frames at pages as ordinary cacheable memory with the given
// permissions. Existing mappings in the target region are replaced.
func (m *Mapper) MapAt(frames memory.FrameRange, pages memory.PageRange, perms Permissions) error {
	return m.mapAt(frames, pages, perms, MappingNormal)
}

// MapNoncacheableAt is MapAt for memory that must bypass the cache.
func (m *Mapper) MapNoncacheableAt(frames memory.FrameRange, pages memory.PageRange, perms Permissions) error {
	return m.mapAt(frames, pages, perms, MappingNoncacheable)
}

// MapDeviceAt is MapAt for device memory.
func (m *Mapper) MapDeviceAt(frames memory.FrameRange, pages memory.PageRange, perms Permissions) error {
	return m.mapAt(frames, pages, perms, MappingDevice)
}

// MapWriteCombiningAt is MapAt for write-combining memory.
func (m *Mapper) MapWriteCombiningAt(frames memory.FrameRange, pages memory.PageRange, perms Permissions) error {
	return m.mapAt(frames, pages, perms, MappingWriteCombining)
}

func (m *Mapper) mapAt(frames memory.FrameRange, pages memory.PageRange, perms Permissions, typ MappingType) error {
	if uintptr(frames.Count()) != pages.Count() {
		return fmt.Errorf("%w: %d frames, %d pages", ErrCountMismatch, frames.Count(), pages.Count())
	}
	if frames.IsEmpty() {
		return nil
	}

	m.log.Debug("mapping frames",
		slog.String("frames", frames.String()),
		slog.String("pages", pages.String()),
		slog.String("perms", perms.String()),
		slog.String("type", typ.String()),
	)

	providerCount := ceilDiv(uint64(pages.ByteCount()), m.table.PageFrameSize)
	status := m.table.Map(
		uint64(frames.Start().StartAddress()),
		uintptr(pages.Start().StartAddress()),
		uintptr(providerCount),
		perms.mapFlags()|boot.MapMayOverwrite,
	)
	if status != boot.StatusSuccess {
		return fmt.Errorf("%w: %v at %v: %v", ErrMap, frames, pages, status)
	}
	return nil
}

// Map maps frames at a free virtual region chosen by the Mapper and returns
// the region. The search probes candidate positions without the overwrite
// flag, advancing past any position the provider reports as occupied.
func (m *Mapper) Map(frames memory.FrameRange, perms Permissions) (memory.PageRange, error) {
	return m.MapAligned(frames, perms, memory.FrameSize)
}

// MapAligned is Map constrained to regions whose start address is a multiple
// of alignment bytes. alignment must be a power of two; alignments up to one
// page behave like Map.
func (m *Mapper) MapAligned(frames memory.FrameRange, perms Permissions, alignment uintptr) (memory.PageRange, error) {
	if frames.IsEmpty() {
		return memory.PageRange{}, nil
	}
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return memory.PageRange{}, fmt.Errorf("%w: alignment %d is not a power of two", ErrMap, alignment)
	}

	m.mu.Acquire()
	defer m.mu.Release()

	count := uintptr(frames.Count())
	page := m.cursor
	for step := 0; step < maxProbeSteps; step++ {
		page = page.AlignUp(alignment)
		pages := memory.NewPageRange(page, count)
		providerCount := ceilDiv(uint64(pages.ByteCount()), m.table.PageFrameSize)
		status := m.table.Map(
			uint64(frames.Start().StartAddress()),
			uintptr(pages.Start().StartAddress()),
			uintptr(providerCount),
			perms.mapFlags(),
		)
		switch status {
		case boot.StatusSuccess:
			m.cursor = pages.End()
			m.log.Debug("mapped frames at free region",
				slog.String("frames", frames.String()),
				slog.String("pages", pages.String()),
				slog.String("perms", perms.String()),
			)
			return pages, nil
		case boot.StatusOverlap:
			page = page.Add(1)
		default:
			return memory.PageRange{}, fmt.Errorf("%w: %v at %v: %v", ErrMap, frames, pages, status)
		}
	}
	return memory.PageRange{}, fmt.Errorf("%w: %d pages", ErrNoFreeRegion, count)
}

// Unmap removes the mappings covering pages.
//
// The caller must ensure the range is mapped and that nothing accesses it
// afterward; passing an unmapped or still-referenced range leaves later
// accesses to it undefined.
func (m *Mapper) Unmap(pages memory.PageRange) {
	if pages.IsEmpty() {
		return
	}
	providerCount := ceilDiv(uint64(pages.ByteCount()), m.table.PageFrameSize)
	status := m.table.Unmap(uintptr(pages.Start().StartAddress()), uintptr(providerCount))
	if status != boot.StatusSuccess {
		m.log.Warn("failed to unmap pages",
			slog.String("pages", pages.String()),
			slog.String("status", status.String()),
		)
	}
}

// MapTemporary points the temporary mapping slot at frame and returns a
// handle to it. Any previously returned handle becomes stale: its accessors
// panic instead of aliasing the new frame.
func (m *Mapper) MapTemporary(frame memory.Frame) (TempPage, error) {
	m.mu.Acquire()
	defer m.mu.Release()

	providerCount := ceilDiv(memory.FrameSize, m.table.PageFrameSize)
	status := m.table.Map(
		uint64(frame.StartAddress()),
		uintptr(m.temp.StartAddress()),
		uintptr(providerCount),
		boot.MapRead|boot.MapWrite|boot.MapMayOverwrite,
	)
	if status != boot.StatusSuccess {
		return TempPage{}, fmt.Errorf("%w: frame %d at temporary slot: %v", ErrMap, frame.Number(), status)
	}

	m.tempGen++
	m.log.Debug("retargeted temporary mapping slot",
		slog.Uint64("frame", uint64(frame.Number())),
		slog.Uint64("generation", m.tempGen),
	)
	return TempPage{mapper: m, page: m.temp, gen: m.tempGen}, nil
}

func ceilDiv(a, b uint64) uint64 {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}
