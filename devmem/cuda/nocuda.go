//go:build !cuda

// Package cuda provides a devmem.Allocator backed by the CUDA runtime.
// Build with -tags cuda and a CUDA toolkit on the library path.
package cuda

import (
	"errors"

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

// Alloc reports that CUDA support is disabled in this build.
func (a Allocator) Alloc(size uint64) (devmem.Memory, error) {
	return nil, errors.New("devmem: cuda support is disabled")
}
