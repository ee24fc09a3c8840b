package platform

import (
	"fmt"

	"github.com/JarlEvanson/revm/internal/spin"
)

// Allocation describes one live allocation handed out by a platform-backed
// allocator.
type Allocation struct {
	Address   uintptr
	Size      uintptr
	Alignment uintptr
}

// AllocationRecord is an intrusive list node tracking one live Allocation.
// Records are supplied by the caller so the list itself never allocates.
// Data carries whatever the owning allocator needs to release the
// allocation's backing resources.
type AllocationRecord struct {
	Allocation
	Data any
	next *AllocationRecord
}

// AllocationList tracks every live allocation of an allocator, keyed by
// address, so frees can be validated and a teardown can walk everything
// still outstanding. All methods are safe for concurrent use.
type AllocationList struct {
	lock spin.Lock
	head *AllocationRecord
	size uint64
}

// Insert adds record to the list. The record must not already be on a list.
func (l *AllocationList) Insert(record *AllocationRecord) {
	l.lock.Acquire()
	record.next = l.head
	l.head = record
	l.size++
	l.lock.Release()
}

// Release removes and returns the record matching a. It panics when no
// record holds a's address or when the recorded size or alignment disagrees
// with a, since either means a free does not match its allocation.
func (l *AllocationList) Release(a Allocation) *AllocationRecord {
	record, ok := l.take(a.Address)
	if !ok {
		panic(fmt.Sprintf("platform: freeing unknown allocation %#x", a.Address))
	}
	if record.Size != a.Size || record.Alignment != a.Alignment {
		panic(fmt.Sprintf(
			"platform: free of %#x with size %d alignment %d, allocated with size %d alignment %d",
			a.Address, a.Size, a.Alignment, record.Size, record.Alignment))
	}
	return record
}

// Take removes and returns the record at address, reporting whether one was
// found. Unlike Release it performs no validation, for callers that must
// translate a mismatch into a status code instead of a fault.
func (l *AllocationList) Take(address uintptr) (*AllocationRecord, bool) {
	return l.take(address)
}

func (l *AllocationList) take(address uintptr) (*AllocationRecord, bool) {
	l.lock.Acquire()
	defer l.lock.Release()

	for cursor := &l.head; *cursor != nil; cursor = &(*cursor).next {
		record := *cursor
		if record.Address == address {
			*cursor = record.next
			record.next = nil
			l.size--
			return record, true
		}
	}
	return nil, false
}

// Len returns the number of live records.
func (l *AllocationList) Len() uint64 {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.size
}

// Each invokes fn on every live record, most recently inserted first, under
// the list lock. fn must not call back into the list.
func (l *AllocationList) Each(fn func(*AllocationRecord)) {
	l.lock.Acquire()
	defer l.lock.Release()
	for record := l.head; record != nil; record = record.next {
		fn(record)
	}
}

// Drain removes every record, invoking release on each allocation in
// most-recently-inserted order.
func (l *AllocationList) Drain(release func(Allocation)) {
	l.lock.Acquire()
	head := l.head
	l.head = nil
	l.size = 0
	l.lock.Release()

	for record := head; record != nil; {
		next := record.next
		record.next = nil
		release(record.Allocation)
		record = next
	}
}
