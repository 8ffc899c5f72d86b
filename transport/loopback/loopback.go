// Package loopback implements the transport interfaces in software. Sessions
// opened on the same Bus see each other's segments and interrupts, which
// makes it possible to run a client and a server in one process without
// interconnect hardware.
package loopback

import (
	"sync"

	"go.uber.org/zap"

	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
)

// Bus is an in-process interconnect shared by a set of sessions.
type Bus struct {
	logger    *zap.Logger
	unmapBusy int

	mu         sync.Mutex
	dmaMu      sync.Mutex
	segments   map[transport.SegmentID]*segment
	interrupts map[transport.ChannelID]*interrupt
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger attaches a logger for provider debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithUnmapBusy makes the first n Unmap calls on every mapping fail with
// ErrBusy before succeeding, mimicking an interconnect that is still
// referencing the mapping.
func WithUnmapBusy(n int) Option {
	return func(b *Bus) { b.unmapBusy = n }
}

// NewBus creates an empty loopback interconnect.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		logger:     zap.NewNop(),
		segments:   make(map[transport.SegmentID]*segment),
		interrupts: make(map[transport.ChannelID]*interrupt),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OpenSession opens a session on the bus.
func (b *Bus) OpenSession() transport.Session {
	return &session{bus: b}
}

type segment struct {
	id        transport.SegmentID
	mem       transport.Memory
	available bool
	removed   bool
}

type interrupt struct {
	channel transport.ChannelID
	cb      transport.Callback
}

type session struct {
	bus    *Bus
	mu     sync.Mutex
	closed bool
}

func (s *session) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.ErrClosed
	}
	return nil
}

func (s *session) AttachSegment(adapter uint32, id transport.SegmentID, mem transport.Memory) (transport.LocalSegment, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if mem == nil || mem.Len() == 0 {
		return nil, transport.ErrInvalidHandle{Resource: "memory"}
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.segments[id]; ok {
		return nil, transport.ErrSegmentExists
	}
	seg := &segment{id: id, mem: mem}
	s.bus.segments[id] = seg
	s.bus.logger.Debug("segment attached",
		zap.Uint32("adapter", adapter),
		zap.Uint32("segment", uint32(id)),
		zap.Uint64("size", mem.Len()))
	return &localSegment{bus: s.bus, seg: seg}, nil
}

func (s *session) ConnectSegment(adapter uint32, id transport.SegmentID) (transport.RemoteSegment, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	seg, ok := s.bus.segments[id]
	if !ok || seg.removed {
		return nil, transport.ErrNotFound
	}
	if !seg.available {
		return nil, transport.ErrUnavailable
	}
	s.bus.logger.Debug("segment connected",
		zap.Uint32("adapter", adapter),
		zap.Uint32("segment", uint32(id)))
	return &remoteSegment{bus: s.bus, seg: seg}, nil
}

func (s *session) CreateDMAQueue(adapter uint32, maxVecLen uint) (transport.DMAQueue, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return &dmaQueue{bus: s.bus, maxVecLen: maxVecLen}, nil
}

func (s *session) CreateInterrupt(adapter uint32, channel transport.ChannelID, cb transport.Callback) (transport.Interrupt, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, transport.ErrInvalidHandle{Resource: "callback"}
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.interrupts[channel]; ok {
		return nil, transport.ErrChannelExists
	}
	irq := &interrupt{channel: channel, cb: cb}
	s.bus.interrupts[channel] = irq
	s.bus.logger.Debug("interrupt registered",
		zap.Uint32("adapter", adapter),
		zap.Uint32("channel", uint32(channel)))
	return &localInterrupt{bus: s.bus, irq: irq}, nil
}

func (s *session) TriggerInterrupt(adapter uint32, channel transport.ChannelID) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	s.bus.mu.Lock()
	irq, ok := s.bus.interrupts[channel]
	s.bus.mu.Unlock()
	if !ok {
		return transport.ErrNotFound
	}
	s.bus.logger.Debug("interrupt triggered", zap.Uint32("channel", uint32(channel)))

	// Deliveries run on a provider-owned goroutine, never the caller's.
	go irq.cb(channel, nil)
	return nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return nil
}
