package memory

import "math"

// FrameSize is the size, in bytes, of a Frame and a Page.
//
// Every supported architecture uses 4 KiB translation granules, so the
// subsystem fixes its own granularity at compile time. Boot protocol
// providers may use a different (possibly larger) granularity; the allocator
// layers convert counts between the two.
const FrameSize = 1 << 12

func strictAddU64(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		panic("memory: u64 addition overflow")
	}
	return a + b
}

func strictSubU64(a, b uint64) uint64 {
	if a < b {
		panic("memory: u64 subtraction underflow")
	}
	return a - b
}

func strictMulU64(a, b uint64) uint64 {
	if a != 0 && b > math.MaxUint64/a {
		panic("memory: u64 multiplication overflow")
	}
	return a * b
}

// alignUpU64 returns the smallest multiple of alignment that is >= value,
// panicking when the result would not fit in a uint64.
func alignUpU64(value, alignment uint64) uint64 {
	if alignment == 0 {
		panic("memory: zero alignment")
	}
	rem := value % alignment
	if rem == 0 {
		return value
	}
	return strictAddU64(value, alignment-rem)
}

const maxUintptr = ^uintptr(0)

func strictAddUptr(a, b uintptr) uintptr {
	if a > maxUintptr-b {
		panic("memory: uintptr addition overflow")
	}
	return a + b
}

func strictSubUptr(a, b uintptr) uintptr {
	if a < b {
		panic("memory: uintptr subtraction underflow")
	}
	return a - b
}

func strictMulUptr(a, b uintptr) uintptr {
	if a != 0 && b > maxUintptr/a {
		panic("memory: uintptr multiplication overflow")
	}
	return a * b
}

func alignUpUptr(value, alignment uintptr) uintptr {
	if alignment == 0 {
		panic("memory: zero alignment")
	}
	rem := value % alignment
	if rem == 0 {
		return value
	}
	return strictAddUptr(value, alignment-rem)
}

// ceilDivU64 returns ceil(a / b) without intermediate overflow.
func ceilDivU64(a, b uint64) uint64 {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}

func ceilDivUptr(a, b uintptr) uintptr {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}
