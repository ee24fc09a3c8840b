package boot

import "fmt"

// Status is a result code returned by every capability in the GenericTable.
type Status uint64

// ErrorBit is the bit that, when set, marks a Status as an error.
const ErrorBit uint64 = 1 << 63

const (
	// StatusSuccess indicates the operation was successful.
	StatusSuccess Status = 0

	// StatusInvalidUsage indicates a function or datum was used improperly.
	StatusInvalidUsage Status = Status(ErrorBit | 0)
	// StatusOutOfMemory indicates the system cannot allocate the required
	// amount of memory.
	StatusOutOfMemory Status = Status(ErrorBit | 1)
	// StatusNotFound indicates the item could not be found.
	StatusNotFound Status = Status(ErrorBit | 2)
	// StatusNotSupported indicates the attempted usage is not supported.
	StatusNotSupported Status = Status(ErrorBit | 3)
	// StatusInvalidKey indicates the provided memory-map key is not current.
	StatusInvalidKey Status = Status(ErrorBit | 4)
	// StatusBufferTooSmall indicates the provided buffer is too small.
	StatusBufferTooSmall Status = Status(ErrorBit | 5)
	// StatusOverlap indicates the requested mapping would overlap existing
	// pages and MapMayOverwrite was not set.
	StatusOverlap Status = Status(ErrorBit | 6)
)

// IsError reports whether s carries the error bit.
func (s Status) IsError() bool {
	return uint64(s)&ErrorBit != 0
}

// Err returns nil for StatusSuccess and a StatusError wrapping s otherwise.
func (s Status) Err() error {
	if s == StatusSuccess {
		return nil
	}
	return &StatusError{Status: s}
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidUsage:
		return "INVALID_USAGE"
	case StatusOutOfMemory:
		return "OUT_OF_MEMORY"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	case StatusInvalidKey:
		return "INVALID_KEY"
	case StatusBufferTooSmall:
		return "BUFFER_TOO_SMALL"
	case StatusOverlap:
		return "OVERLAP"
	default:
		return fmt.Sprintf("Status(%#x)", uint64(s))
	}
}

// StatusError adapts a non-success Status to the error interface.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("boot: capability returned %v", e.Status)
}
