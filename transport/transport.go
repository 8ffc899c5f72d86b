// Package transport defines the capability surface the benchmark consumes
// from a vendor interconnect library: sessions, exported memory segments,
// DMA transfer queues, and remote interrupts. Providers implement these
// interfaces; the benchmark core never reaches past them.
package transport

// SegmentID identifies an exported memory segment on the interconnect.
type SegmentID uint32

// ChannelID identifies an interrupt channel shared between two hosts.
type ChannelID uint32

// Flag adjusts how a DMA transfer is executed.
type Flag uint32

const (
	// FlagRead pulls data from the remote segment instead of pushing to it.
	FlagRead Flag = 1 << iota
	// FlagGlobal requests globally ordered delivery for the transfer.
	FlagGlobal
)

// VecEntry describes one element of a vectorized transfer.
type VecEntry struct {
	LocalOffset  uint64
	RemoteOffset uint64
	Size         uint64
}

// Memory is the accessor a provider needs from a buffer backing a segment.
// It is intentionally minimal so that host RAM and device memory can both
// satisfy it.
type Memory interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Len() uint64
}

// Callback receives interrupt deliveries. It runs on a provider-owned
// goroutine and must not block.
type Callback func(channel ChannelID, err error)

// Session is a connection to the interconnect adapter.
type Session interface {
	// AttachSegment exports mem as a local segment with the given id. The
	// segment is not reachable by peers until SetAvailable is called.
	AttachSegment(adapter uint32, id SegmentID, mem Memory) (LocalSegment, error)

	// ConnectSegment connects to a segment published by a peer.
	ConnectSegment(adapter uint32, id SegmentID) (RemoteSegment, error)

	// CreateDMAQueue allocates a transfer queue scoped to the caller.
	CreateDMAQueue(adapter uint32, maxVecLen uint) (DMAQueue, error)

	// CreateInterrupt registers cb on a fixed channel id.
	CreateInterrupt(adapter uint32, channel ChannelID, cb Callback) (Interrupt, error)

	// TriggerInterrupt fires the interrupt registered on channel by a peer.
	TriggerInterrupt(adapter uint32, channel ChannelID) error

	// Close releases the session. Segments, queues and interrupts created
	// through it must be released first.
	Close() error
}

// LocalSegment is a memory region exported over the interconnect.
type LocalSegment interface {
	ID() SegmentID
	Size() uint64

	// SetAvailable publishes the segment so peers can connect to it.
	SetAvailable() error

	// SetUnavailable withdraws the segment from peers.
	SetUnavailable() error

	// Remove unexports the segment. The backing memory is untouched.
	Remove() error
}

// RemoteSegment is a peer's published segment.
type RemoteSegment interface {
	ID() SegmentID
	Size() uint64

	// Map establishes direct access to the remote memory.
	Map() (Mapping, error)

	// Write performs a programmed I/O write into the remote segment.
	Write(offset uint64, p []byte) error

	// Read performs a programmed I/O read from the remote segment.
	Read(offset uint64, p []byte) error

	Close() error
}

// Mapping is direct load/store access to a mapped remote segment.
type Mapping interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Len() uint64

	// Unmap releases the mapping. It may fail with ErrBusy while the
	// mapping is still referenced; callers retry until it succeeds.
	Unmap() error
}

// DMAQueue submits blocking vectorized transfers.
type DMAQueue interface {
	// TransferVec moves every entry of vec between local and remote in one
	// hardware operation, blocking until the transfer completes.
	TransferVec(local LocalSegment, remote RemoteSegment, vec []VecEntry, flags Flag) error

	// Remove releases the queue.
	Remove() error
}

// Interrupt is a registered interrupt handler.
type Interrupt interface {
	Channel() ChannelID

	// Remove deregisters the handler. It may fail with ErrBusy while a
	// delivery is in flight; callers retry until it succeeds.
	Remove() error
}
