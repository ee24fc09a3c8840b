// Package boot defines the REVM boot protocol surface consumed by the memory
// subsystem.
//
// # Overview
//
// A REVM-compliant bootloader hands the loaded executable a capability table
// (GenericTable) of function-valued services: a write sink for logging, frame
// allocation and deallocation, page mapping and unmapping, memory-map
// retrieval, and the one-time takeover transition. Everything the memory
// subsystem does bottoms out in calls through this table until takeover, after
// which the table is invalid and must not be used.
//
// # Status codes
//
// Every capability returns a Status. Bit 63 marks errors; SUCCESS is zero.
// The OVERLAP status is load-bearing for callers: the virtual-mapping layer
// distinguishes it from other failures while probing for unmapped pages.
//
// # Granularity
//
// GenericTable.PageFrameSize is the smallest unit the provider allocates and
// maps in. It is at least 256 bytes, always a power of two, and may differ
// from the memory subsystem's own frame size; callers convert counts between
// the two granularities.
package boot
