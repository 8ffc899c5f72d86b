package main

import (
	"fmt"
	"os"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/enfiskutensykkel/cuda-rdma-bench/devmem"
	"github.com/enfiskutensykkel/cuda-rdma-bench/devmem/cuda"
)

// serverFileConfig is the YAML shape accepted by `server --config`.
type serverFileConfig struct {
	Adapter *uint32 `yaml:"adapter"`
	Segment *uint32 `yaml:"segment"`
	Channel *uint32 `yaml:"channel"`
	Size    string  `yaml:"size"`
	GPU     *int    `yaml:"gpu"`
}

func loadServerConfig(path string) (*serverFileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg serverFileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func parseSize(s string) (uint64, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be positive, got %q", s)
	}
	return uint64(n), nil
}

// selectAllocator picks the device allocator for a --gpu value. Negative
// means host RAM; otherwise the CUDA allocator is used when compiled in,
// falling back to the emulated GPU device.
func selectAllocator(gpu int, emulate bool) devmem.Allocator {
	if gpu < 0 {
		return devmem.HostAllocator{}
	}
	if emulate {
		return devmem.EmulatedGPU{ID: gpu}
	}
	return cuda.Allocator{ID: gpu}
}
