package loopback

import (
	"sync"

	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
)

type localSegment struct {
	bus *Bus
	mu  sync.Mutex
	seg *segment
}

func (l *localSegment) ID() transport.SegmentID {
	return l.seg.id
}

func (l *localSegment) Size() uint64 {
	return l.seg.mem.Len()
}

func (l *localSegment) SetAvailable() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seg.removed {
		return transport.ErrInvalidHandle{Resource: "local segment"}
	}
	l.bus.mu.Lock()
	l.seg.available = true
	l.bus.mu.Unlock()
	return nil
}

func (l *localSegment) SetUnavailable() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seg.removed {
		return transport.ErrInvalidHandle{Resource: "local segment"}
	}
	l.bus.mu.Lock()
	l.seg.available = false
	l.bus.mu.Unlock()
	return nil
}

func (l *localSegment) Remove() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seg.removed {
		return nil
	}
	l.bus.mu.Lock()
	l.seg.removed = true
	l.seg.available = false
	delete(l.bus.segments, l.seg.id)
	l.bus.mu.Unlock()
	return nil
}

type remoteSegment struct {
	bus    *Bus
	mu     sync.Mutex
	seg    *segment
	closed bool
}

func (r *remoteSegment) ID() transport.SegmentID {
	return r.seg.id
}

func (r *remoteSegment) Size() uint64 {
	return r.seg.mem.Len()
}

func (r *remoteSegment) Map() (transport.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, transport.ErrInvalidHandle{Resource: "remote segment"}
	}
	if r.seg.removed {
		return nil, transport.ErrNotFound
	}
	return &mapping{seg: r.seg, busyLeft: r.bus.unmapBusy}, nil
}

func (r *remoteSegment) Write(offset uint64, p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return transport.ErrInvalidHandle{Resource: "remote segment"}
	}
	if offset+uint64(len(p)) > r.seg.mem.Len() {
		return transport.ErrOutOfRange
	}
	_, err := r.seg.mem.WriteAt(p, int64(offset))
	return err
}

func (r *remoteSegment) Read(offset uint64, p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return transport.ErrInvalidHandle{Resource: "remote segment"}
	}
	if offset+uint64(len(p)) > r.seg.mem.Len() {
		return transport.ErrOutOfRange
	}
	_, err := r.seg.mem.ReadAt(p, int64(offset))
	return err
}

func (r *remoteSegment) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type mapping struct {
	mu       sync.Mutex
	seg      *segment
	busyLeft int
	unmapped bool
}

func (m *mapping) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unmapped {
		return 0, transport.ErrInvalidHandle{Resource: "mapping"}
	}
	return m.seg.mem.ReadAt(p, off)
}

func (m *mapping) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unmapped {
		return 0, transport.ErrInvalidHandle{Resource: "mapping"}
	}
	return m.seg.mem.WriteAt(p, off)
}

func (m *mapping) Len() uint64 {
	return m.seg.mem.Len()
}

func (m *mapping) Unmap() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unmapped {
		return nil
	}
	if m.busyLeft > 0 {
		m.busyLeft--
		return transport.ErrBusy
	}
	m.unmapped = true
	return nil
}

type localInterrupt struct {
	bus *Bus
	mu  sync.Mutex
	irq *interrupt
}

func (i *localInterrupt) Channel() transport.ChannelID {
	return i.irq.channel
}

func (i *localInterrupt) Remove() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.irq == nil {
		return nil
	}
	i.bus.mu.Lock()
	delete(i.bus.interrupts, i.irq.channel)
	i.bus.mu.Unlock()
	i.irq = nil
	return nil
}
