package virt

import (
	"unsafe"

	"github.com/JarlEvanson/revm/memory"
)

// TempPage is a handle to the temporary mapping slot of a Mapper.
//
// A handle stays valid until the next MapTemporary call on the same Mapper
// retargets the slot. Accessors on a stale or zero handle panic: a stale
// handle no longer refers to the frame it was created for, and continuing to
// use it would silently read or write a different frame.
type TempPage struct {
	mapper *Mapper
	page   memory.Page
	gen    uint64
}

// Valid reports whether the handle still refers to the frame it was created
// for.
func (t TempPage) Valid() bool {
	if t.mapper == nil {
		return false
	}
	t.mapper.mu.Acquire()
	defer t.mapper.mu.Release()
	return t.gen == t.mapper.tempGen
}

func (t TempPage) check() {
	if !t.Valid() {
		panic("virt: use of stale temporary mapping")
	}
}

// Page returns the page backing the handle.
func (t TempPage) Page() memory.Page {
	t.check()
	return t.page
}

// Address returns the virtual address of the start of the page.
func (t TempPage) Address() memory.VirtualAddress {
	t.check()
	return t.page.StartAddress()
}

// Bytes returns the contents of the mapped frame as a byte slice.
//
// The slice aliases the temporary slot directly: it must not be retained
// past the next MapTemporary call on the owning Mapper.
func (t TempPage) Bytes() []byte {
	t.check()
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(t.page.StartAddress()))), memory.FrameSize)
}
