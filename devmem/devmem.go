// Package devmem abstracts the memory a benchmark buffer lives in. Host RAM
// and GPU device memory satisfy the same Memory interface, so the benchmark
// core is written once against it and never branches on device kind.
package devmem

import (
	"errors"
	"fmt"
)

// Kind distinguishes host RAM from GPU device memory.
type Kind int

const (
	// KindHost is ordinary host RAM.
	KindHost Kind = iota
	// KindGPU is memory resident on a GPU.
	KindGPU
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindGPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// Device identifies where a buffer lives.
type Device struct {
	Kind Kind
	ID   int
}

// Host returns the host RAM device.
func Host() Device {
	return Device{Kind: KindHost, ID: -1}
}

// GPU returns the device for a specific GPU.
func GPU(id int) Device {
	return Device{Kind: KindGPU, ID: id}
}

func (d Device) String() string {
	if d.Kind == KindGPU {
		return fmt.Sprintf("gpu:%d", d.ID)
	}
	return "host"
}

var (
	// ErrReleased indicates use of a buffer after Release.
	ErrReleased = errors.New("devmem: buffer released")
	// ErrOutOfRange indicates an access past the end of the buffer.
	ErrOutOfRange = errors.New("devmem: access out of range")
)

// Memory is a contiguous allocation on some device.
type Memory interface {
	// Device reports where the allocation lives.
	Device() Device

	// Len returns the allocation size in bytes.
	Len() uint64

	// Fill sets every byte of the allocation to b.
	Fill(b byte) error

	// CopyToHost copies len(dst) bytes starting at off into host memory.
	CopyToHost(dst []byte, off uint64) error

	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)

	// Release frees the allocation with the device-specific mechanism.
	// Releasing twice is a no-op.
	Release() error
}

// Allocator creates Memory on a fixed device.
type Allocator interface {
	Device() Device
	Alloc(size uint64) (Memory, error)
}
