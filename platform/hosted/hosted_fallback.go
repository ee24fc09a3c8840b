//go:build !linux

package hosted

import (
	"errors"
	"io"
	"log/slog"

	"github.com/JarlEvanson/revm/boot"
	"github.com/JarlEvanson/revm/memory"
	"github.com/JarlEvanson/revm/memory/virt"
	"github.com/JarlEvanson/revm/platform"
)

// ErrUnsupported indicates the hosted platform is unavailable on this
// operating system.
var ErrUnsupported = errors.New("hosted: requires linux")

// Options configure a Platform.
type Options struct {
	PhysBytes uint64
	VirtBytes uintptr
	Console   io.Writer
	Log       *slog.Logger
}

// Platform is unavailable on this operating system; New always fails.
type Platform struct{}

// New fails with ErrUnsupported.
func New(Options) (*Platform, error) {
	return nil, ErrUnsupported
}

func (p *Platform) Close() error { return ErrUnsupported }

func (p *Platform) Reservation() memory.PageRange { return memory.PageRange{} }

func (p *Platform) MapperOptions(*slog.Logger) virt.Options { return virt.Options{} }

func (p *Platform) AllocateFrames(uint64, platform.AllocationPolicy) (memory.FrameRange, error) {
	return memory.FrameRange{}, ErrUnsupported
}

func (p *Platform) DeallocateFrames(memory.FrameRange) error { return ErrUnsupported }

func (p *Platform) Stats() (uint64, uint64) { return 0, 0 }

func (p *Platform) NewTable() *boot.GenericTable { return nil }
