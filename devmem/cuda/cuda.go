//go:build cuda

// Package cuda provides a devmem.Allocator backed by the CUDA runtime.
// Build with -tags cuda and a CUDA toolkit on the library path.
package cuda

// #cgo LDFLAGS: -lcudart
// #include <cuda_runtime.h>
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/enfiskutensykkel/cuda-rdma-bench/devmem"
)

// Allocator allocates device memory on a specific GPU.
type Allocator struct {
	ID int
}

// Device reports the GPU device.
func (a Allocator) Device() devmem.Device {
	return devmem.GPU(a.ID)
}

// Alloc allocates size bytes of device memory on the GPU.
func (a Allocator) Alloc(size uint64) (devmem.Memory, error) {
	if ret := C.cudaSetDevice(C.int(a.ID)); ret != C.cudaSuccess {
		return nil, cudaError("cudaSetDevice", ret)
	}
	var ptr unsafe.Pointer
	if ret := C.cudaMalloc(&ptr, C.size_t(size)); ret != C.cudaSuccess {
		return nil, cudaError("cudaMalloc", ret)
	}
	return &deviceMemory{id: a.ID, ptr: ptr, size: size}, nil
}

type deviceMemory struct {
	id   int
	mu   sync.Mutex
	ptr  unsafe.Pointer
	size uint64
}

func (m *deviceMemory) Device() devmem.Device {
	return devmem.GPU(m.id)
}

func (m *deviceMemory) Len() uint64 {
	return m.size
}

func (m *deviceMemory) Fill(b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ptr == nil {
		return devmem.ErrReleased
	}
	if ret := C.cudaMemset(m.ptr, C.int(b), C.size_t(m.size)); ret != C.cudaSuccess {
		return cudaError("cudaMemset", ret)
	}
	return nil
}

func (m *deviceMemory) CopyToHost(dst []byte, off uint64) error {
	if len(dst) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ptr == nil {
		return devmem.ErrReleased
	}
	if off+uint64(len(dst)) > m.size {
		return devmem.ErrOutOfRange
	}
	src := unsafe.Pointer(uintptr(m.ptr) + uintptr(off))
	if ret := C.cudaMemcpy(unsafe.Pointer(&dst[0]), src, C.size_t(len(dst)), C.cudaMemcpyDeviceToHost); ret != C.cudaSuccess {
		return cudaError("cudaMemcpy", ret)
	}
	return nil
}

func (m *deviceMemory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, devmem.ErrOutOfRange
	}
	if err := m.CopyToHost(p, uint64(off)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (m *deviceMemory) WriteAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ptr == nil {
		return 0, devmem.ErrReleased
	}
	if off < 0 || uint64(off)+uint64(len(p)) > m.size {
		return 0, devmem.ErrOutOfRange
	}
	dst := unsafe.Pointer(uintptr(m.ptr) + uintptr(off))
	if ret := C.cudaMemcpy(dst, unsafe.Pointer(&p[0]), C.size_t(len(p)), C.cudaMemcpyHostToDevice); ret != C.cudaSuccess {
		return 0, cudaError("cudaMemcpy", ret)
	}
	return len(p), nil
}

func (m *deviceMemory) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ptr == nil {
		return nil
	}
	ret := C.cudaFree(m.ptr)
	m.ptr = nil
	if ret != C.cudaSuccess {
		return cudaError("cudaFree", ret)
	}
	return nil
}

func cudaError(call string, ret C.cudaError_t) error {
	return fmt.Errorf("devmem: %s failed: %s", call, C.GoString(C.cudaGetErrorString(ret)))
}
