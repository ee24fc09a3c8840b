// Package hosted implements the boot-protocol capability surface on top of
// a host Linux kernel, for exercising the memory subsystem as an ordinary
// process.
//
// # Overview
//
// Physical memory is simulated by a memfd of a configurable size; frame
// numbers are byte offsets into it. The virtual address space the
// capability table may map into is a PROT_NONE reservation obtained at
// construction: map calls replace slices of the reservation with MAP_FIXED
// shared mappings of the memfd, and unmap calls restore the PROT_NONE
// cover. Addresses outside the reservation are rejected, so a stray mapping
// can never land on the process's own memory.
//
// The platform tracks free and allocated frames, detects mapping overlap,
// and versions the memory map with a key, so the full takeover handshake
// can be driven against it. It implements both the [platform.Platform]
// interface and, via [Platform.NewTable], the function-pointer table the
// allocator layers consume.
package hosted
