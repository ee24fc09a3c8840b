package phys

import (
	"encoding/binary"
	"fmt"

	"github.com/JarlEvanson/revm/memory"
	"github.com/JarlEvanson/revm/memory/virt"
)

// Memory reads and writes physical memory through the temporary mapping slot
// of a virt.Mapper.
//
// Each access maps the frame containing the target address, copies through
// the slot, and leaves the slot retargeted. Accesses may cross frame
// boundaries; they are split per frame internally. Memory shares the
// Mapper's temporary slot, so interleaving its calls with direct
// MapTemporary use invalidates the caller's handles.
type Memory struct {
	mapper *virt.Mapper
}

// NewMemory returns a Memory accessing physical memory through mapper.
func NewMemory(mapper *virt.Mapper) *Memory {
	return &Memory{mapper: mapper}
}

// Read copies len(buf) bytes of physical memory starting at address into
// buf.
func (m *Memory) Read(address memory.PhysicalAddress, buf []byte) error {
	for len(buf) > 0 {
		frame := memory.FrameContaining(address)
		offset := address.FrameOffset()

		temp, err := m.mapper.MapTemporary(frame)
		if err != nil {
			return fmt.Errorf("reading physical memory at %#x: %w", uint64(address), err)
		}
		n := copy(buf, temp.Bytes()[offset:])

		buf = buf[n:]
		address = address.Add(uint64(n))
	}
	return nil
}

// Write copies data into physical memory starting at address.
func (m *Memory) Write(address memory.PhysicalAddress, data []byte) error {
	for len(data) > 0 {
		frame := memory.FrameContaining(address)
		offset := address.FrameOffset()

		temp, err := m.mapper.MapTemporary(frame)
		if err != nil {
			return fmt.Errorf("writing physical memory at %#x: %w", uint64(address), err)
		}
		n := copy(temp.Bytes()[offset:], data)

		data = data[n:]
		address = address.Add(uint64(n))
	}
	return nil
}

// ReadU8 reads one byte at address.
func (m *Memory) ReadU8(address memory.PhysicalAddress) (uint8, error) {
	var buf [1]byte
	if err := m.Read(address, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadU16 reads a little-endian 16-bit value at address.
func (m *Memory) ReadU16(address memory.PhysicalAddress) (uint16, error) {
	var buf [2]byte
	if err := m.Read(address, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// ReadU32 reads a little-endian 32-bit value at address.
func (m *Memory) ReadU32(address memory.PhysicalAddress) (uint32, error) {
	var buf [4]byte
	if err := m.Read(address, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadU64 reads a little-endian 64-bit value at address.
func (m *Memory) ReadU64(address memory.PhysicalAddress) (uint64, error) {
	var buf [8]byte
	if err := m.Read(address, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadU16BE reads a big-endian 16-bit value at address.
func (m *Memory) ReadU16BE(address memory.PhysicalAddress) (uint16, error) {
	var buf [2]byte
	if err := m.Read(address, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// ReadU32BE reads a big-endian 32-bit value at address.
func (m *Memory) ReadU32BE(address memory.PhysicalAddress) (uint32, error) {
	var buf [4]byte
	if err := m.Read(address, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ReadU64BE reads a big-endian 64-bit value at address.
func (m *Memory) ReadU64BE(address memory.PhysicalAddress) (uint64, error) {
	var buf [8]byte
	if err := m.Read(address, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteU8 writes one byte at address.
func (m *Memory) WriteU8(address memory.PhysicalAddress, value uint8) error {
	buf := [1]byte{value}
	return m.Write(address, buf[:])
}

// WriteU16 writes a little-endian 16-bit value at address.
func (m *Memory) WriteU16(address memory.PhysicalAddress, value uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], value)
	return m.Write(address, buf[:])
}

// WriteU32 writes a little-endian 32-bit value at address.
func (m *Memory) WriteU32(address memory.PhysicalAddress, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return m.Write(address, buf[:])
}

// WriteU64 writes a little-endian 64-bit value at address.
func (m *Memory) WriteU64(address memory.PhysicalAddress, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return m.Write(address, buf[:])
}

// WriteU16BE writes a big-endian 16-bit value at address.
func (m *Memory) WriteU16BE(address memory.PhysicalAddress, value uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], value)
	return m.Write(address, buf[:])
}

// WriteU32BE writes a big-endian 32-bit value at address.
func (m *Memory) WriteU32BE(address memory.PhysicalAddress, value uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], value)
	return m.Write(address, buf[:])
}

// WriteU64BE writes a big-endian 64-bit value at address.
func (m *Memory) WriteU64BE(address memory.PhysicalAddress, value uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], value)
	return m.Write(address, buf[:])
}
