package devmem

import (
	"errors"
	"sync"
)

// hostMemory backs both host allocations and the emulated GPU device.
type hostMemory struct {
	device Device
	mu     sync.RWMutex
	buf    []byte
}

// AllocHost allocates size bytes of host RAM.
func AllocHost(size uint64) (Memory, error) {
	return allocBacked(Host(), size)
}

func allocBacked(device Device, size uint64) (Memory, error) {
	if size == 0 {
		return nil, errors.New("devmem: allocation size must be positive")
	}
	return &hostMemory{device: device, buf: make([]byte, size)}, nil
}

func (m *hostMemory) Device() Device {
	return m.device
}

func (m *hostMemory) Len() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.buf))
}

func (m *hostMemory) Fill(b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buf == nil {
		return ErrReleased
	}
	for i := range m.buf {
		m.buf[i] = b
	}
	return nil
}

func (m *hostMemory) CopyToHost(dst []byte, off uint64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.buf == nil {
		return ErrReleased
	}
	if off+uint64(len(dst)) > uint64(len(m.buf)) {
		return ErrOutOfRange
	}
	copy(dst, m.buf[off:])
	return nil
}

func (m *hostMemory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.buf == nil {
		return 0, ErrReleased
	}
	if off < 0 || off+int64(len(p)) > int64(len(m.buf)) {
		return 0, ErrOutOfRange
	}
	return copy(p, m.buf[off:]), nil
}

func (m *hostMemory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buf == nil {
		return 0, ErrReleased
	}
	if off < 0 || off+int64(len(p)) > int64(len(m.buf)) {
		return 0, ErrOutOfRange
	}
	return copy(m.buf[off:], p), nil
}

func (m *hostMemory) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf = nil
	return nil
}

// HostAllocator allocates host RAM.
type HostAllocator struct{}

// Device reports the host device.
func (HostAllocator) Device() Device {
	return Host()
}

// Alloc allocates size bytes of host RAM.
func (HostAllocator) Alloc(size uint64) (Memory, error) {
	return AllocHost(size)
}

// EmulatedGPU allocates host-backed memory tagged as GPU device memory. It
// exercises the device-memory code paths on machines without a GPU; the real
// device lives in the cuda subpackage.
type EmulatedGPU struct {
	ID int
}

// Device reports the emulated GPU device.
func (e EmulatedGPU) Device() Device {
	return GPU(e.ID)
}

// Alloc allocates size bytes tagged as resident on the emulated GPU.
func (e EmulatedGPU) Alloc(size uint64) (Memory, error) {
	return allocBacked(GPU(e.ID), size)
}
