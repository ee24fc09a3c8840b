//go:build linux

package hosted

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/JarlEvanson/revm/boot"
	"github.com/JarlEvanson/revm/memory"
	"github.com/JarlEvanson/revm/memory/virt"
	"github.com/JarlEvanson/revm/platform"
)

const (
	// DefaultPhysBytes is the default simulated physical memory size.
	DefaultPhysBytes uint64 = 64 << 20
	// DefaultVirtBytes is the default virtual reservation size.
	DefaultVirtBytes uintptr = 256 << 20
)

var (
	// ErrClosed indicates use of a Platform after Close.
	ErrClosed = errors.New("hosted: platform closed")
	// ErrExhausted indicates no free frame run satisfies a request.
	ErrExhausted = errors.New("hosted: out of frames")
	// ErrBadPolicy indicates an allocation policy the platform cannot
	// honor.
	ErrBadPolicy = errors.New("hosted: unsatisfiable allocation policy")
)

// Options configure a Platform.
type Options struct {
	// PhysBytes is the simulated physical memory size, rounded up to a
	// whole number of frames. Zero selects DefaultPhysBytes.
	PhysBytes uint64
	// VirtBytes is the size of the virtual reservation mappings may target,
	// rounded up to a whole number of pages. Zero selects DefaultVirtBytes.
	VirtBytes uintptr
	// Console receives bytes passed to the capability table's Write. A nil
	// Console selects os.Stderr.
	Console io.Writer
	// Log receives platform diagnostics. A nil Log discards them.
	Log *slog.Logger
}

// Platform simulates a boot-protocol provider inside a host process.
type Platform struct {
	log     *slog.Logger
	console io.Writer

	memfd     int
	physBytes uint64

	reservation unsafe.Pointer
	base        uintptr
	virtBytes   uintptr

	mu        sync.Mutex
	free      platform.FrameAllocation
	allocated platform.FrameAllocation
	mapped    map[memory.Page]memory.Frame
	mapKey    uint64
	takeovers int
	inPlace   bool
	closed    bool
}

// New creates a Platform with opts. The caller must Close it to release the
// memfd and the reservation.
func New(opts Options) (*Platform, error) {
	physBytes := opts.PhysBytes
	if physBytes == 0 {
		physBytes = DefaultPhysBytes
	}
	physBytes = ((physBytes-1)/memory.FrameSize + 1) * memory.FrameSize

	virtBytes := opts.VirtBytes
	if virtBytes == 0 {
		virtBytes = DefaultVirtBytes
	}
	virtBytes = ((virtBytes-1)/memory.FrameSize + 1) * memory.FrameSize

	log := opts.Log
	if log == nil {
		log = boot.DiscardLogger()
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	memfd, err := unix.MemfdCreate("revm-phys", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("hosted: creating physical memory: %w", err)
	}
	if err := unix.Ftruncate(memfd, int64(physBytes)); err != nil {
		unix.Close(memfd)
		return nil, fmt.Errorf("hosted: sizing physical memory: %w", err)
	}

	reservation, err := unix.MmapPtr(-1, 0, nil, virtBytes,
		unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		unix.Close(memfd)
		return nil, fmt.Errorf("hosted: reserving virtual window: %w", err)
	}

	p := &Platform{
		log:         log,
		console:     console,
		memfd:       memfd,
		physBytes:   physBytes,
		reservation: reservation,
		base:        uintptr(reservation),
		virtBytes:   virtBytes,
		mapped:      make(map[memory.Page]memory.Frame),
	}
	p.free.Insert(memory.NewFrameRange(0, physBytes/memory.FrameSize))

	log.Info("hosted platform ready",
		slog.Uint64("physBytes", physBytes),
		slog.Uint64("virtBytes", uint64(virtBytes)),
		slog.String("reservation", fmt.Sprintf("%#x", p.base)),
	)
	return p, nil
}

// Close releases the reservation and the simulated physical memory. Any
// still-mapped pages disappear with the reservation.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := unix.MunmapPtr(p.reservation, p.virtBytes)
	if closeErr := unix.Close(p.memfd); err == nil {
		err = closeErr
	}
	return err
}

// Reservation returns the page range the platform accepts mappings in.
func (p *Platform) Reservation() memory.PageRange {
	return memory.NewPageRange(
		memory.PageContaining(memory.VirtualAddress(p.base)),
		p.virtBytes/memory.FrameSize,
	)
}

// MapperOptions returns virt.Mapper options whose probe region lies inside
// the reservation.
func (p *Platform) MapperOptions(log *slog.Logger) virt.Options {
	return virt.Options{ProbeStart: p.Reservation().Start(), Log: log}
}

// AllocateFrames implements platform.Platform.
func (p *Platform) AllocateFrames(count uint64, policy platform.AllocationPolicy) (memory.FrameRange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return memory.FrameRange{}, ErrClosed
	}
	return p.allocateLocked(count, memory.FrameSize, policy)
}

// DeallocateFrames implements platform.Platform.
func (p *Platform) DeallocateFrames(r memory.FrameRange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.allocated.Contains(r) {
		return fmt.Errorf("hosted: deallocating frames that are not allocated: %v", r)
	}
	p.releaseLocked(r)
	return nil
}

func (p *Platform) allocateLocked(count, alignment uint64, policy platform.AllocationPolicy) (memory.FrameRange, error) {
	if count == 0 {
		return memory.FrameRange{}, fmt.Errorf("%w: zero frames", ErrBadPolicy)
	}

	switch policy.Kind() {
	case platform.PolicyAt:
		address := policy.Address()
		if !address.IsAligned(memory.FrameSize) {
			return memory.FrameRange{}, fmt.Errorf("%w: unaligned address %#x", ErrBadPolicy, uint64(address))
		}
		r := memory.NewFrameRange(memory.FrameContaining(address), count)
		if !p.free.Contains(r) {
			return memory.FrameRange{}, fmt.Errorf("%w: %v not free", ErrExhausted, r)
		}
		p.claimLocked(r)
		return r, nil

	case platform.PolicyAny, platform.PolicyBelow:
		bound := memory.Frame(p.physBytes / memory.FrameSize)
		if policy.Kind() == platform.PolicyBelow {
			bound = memory.FrameContaining(policy.Address())
		}
		for _, run := range p.free.Ranges() {
			start := run.Start().AlignUp(alignment)
			if start < run.Start() || start.Add(count) > run.End() || start.Add(count) > bound {
				continue
			}
			r := memory.NewFrameRange(start, count)
			p.claimLocked(r)
			return r, nil
		}
		return memory.FrameRange{}, fmt.Errorf("%w: %d frames", ErrExhausted, count)

	default:
		return memory.FrameRange{}, fmt.Errorf("%w: %v", ErrBadPolicy, policy)
	}
}

func (p *Platform) claimLocked(r memory.FrameRange) {
	p.free.Remove(r)
	p.allocated.Insert(r)
	p.mapKey++
}

func (p *Platform) releaseLocked(r memory.FrameRange) {
	p.allocated.Remove(r)
	p.free.Insert(r)
	p.mapKey++
}

// Stats reports the platform's frame accounting.
func (p *Platform) Stats() (freeFrames, allocatedFrames uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free.Frames(), p.allocated.Frames()
}
