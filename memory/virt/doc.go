// Package virt maps physical frames into the virtual address space through
// the boot-protocol mapping capabilities.
//
// # Overview
//
// The central type is [Mapper]. It offers two families of operations:
//
//   - Placement at a caller-chosen location: [Mapper.MapAt] and its
//     noncacheable, device, and write-combining variants. These funnel into a
//     single internal path that differs only in the memory type recorded for
//     tracing; the boot protocol itself does not distinguish cacheability.
//   - Placement at a mapper-chosen location: [Mapper.Map] probes the virtual
//     address space for a free region by attempting the mapping without the
//     overwrite flag and advancing past regions the provider reports as
//     occupied.
//
// A mapper additionally owns exactly one temporary-mapping slot, claimed
// during construction by probing for a free page. [Mapper.MapTemporary]
// redirects that slot at a new frame; the previous temporary mapping is
// implicitly destroyed, and any retained handle to it becomes stale. Stale
// handles are detected and panic on use rather than silently aliasing the
// new frame.
//
// Unmapping is unchecked: [Mapper.Unmap] trusts the caller to pass a range
// that is mapped and no longer referenced. Violating that contract leaves
// later accesses to the range undefined.
package virt
