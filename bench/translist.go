package bench

import (
	"fmt"

	"github.com/enfiskutensykkel/cuda-rdma-bench/devmem"
	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
)

// Entry describes one scatter/gather element of a transfer.
type Entry struct {
	LocalOffset  uint64
	RemoteOffset uint64
	Size         uint64
}

// Descriptor carries the segment handles and identity a transfer list was
// built against.
type Descriptor struct {
	Local       transport.LocalSegment
	Remote      transport.RemoteSegment
	Buffer      devmem.Memory
	SegmentSize uint64
	Device      devmem.Device
	Channel     transport.ChannelID
}

// TransferList is an immutable scatter/gather description of one benchmark's
// data movement between a local buffer and a remote segment.
type TransferList struct {
	entries []Entry
	desc    Descriptor
	total   uint64
}

// BuildTransferList validates entries against both segment bounds, exports
// buffer as the local segment and connects to the remote segment. The list
// owns the two segment handles and releases them in Close; the buffer stays
// owned by the caller.
func BuildTransferList(session transport.Session, adapter uint32, buffer devmem.Memory, localID, remoteID transport.SegmentID, channel transport.ChannelID, entries []Entry) (*TransferList, error) {
	if session == nil {
		return nil, transport.ErrInvalidHandle{Resource: "session"}
	}
	if buffer == nil || buffer.Len() == 0 {
		return nil, transport.ErrInvalidHandle{Resource: "buffer"}
	}
	if len(entries) == 0 {
		return nil, ErrEmptyList
	}

	localLen := buffer.Len()
	for i, e := range entries {
		if e.Size == 0 {
			return nil, RangeError{Index: i, Reason: "zero-sized transfer"}
		}
		if e.LocalOffset+e.Size > localLen {
			return nil, RangeError{
				Index:  i,
				Reason: fmt.Sprintf("local range [%d,%d) exceeds segment length %d", e.LocalOffset, e.LocalOffset+e.Size, localLen),
			}
		}
	}

	local, err := session.AttachSegment(adapter, localID, buffer)
	if err != nil {
		return nil, &SetupError{Step: "attach local segment", Err: err}
	}

	remote, err := session.ConnectSegment(adapter, remoteID)
	if err != nil {
		_ = local.Remove()
		return nil, &SetupError{Step: "connect remote segment", Err: err}
	}

	remoteLen := remote.Size()
	var total uint64
	for i, e := range entries {
		if e.RemoteOffset+e.Size > remoteLen {
			_ = remote.Close()
			_ = local.Remove()
			return nil, RangeError{
				Index:  i,
				Reason: fmt.Sprintf("remote range [%d,%d) exceeds segment length %d", e.RemoteOffset, e.RemoteOffset+e.Size, remoteLen),
			}
		}
		total += e.Size
	}

	list := &TransferList{
		entries: append([]Entry(nil), entries...),
		total:   total,
		desc: Descriptor{
			Local:       local,
			Remote:      remote,
			Buffer:      buffer,
			SegmentSize: remoteLen,
			Device:      buffer.Device(),
			Channel:     channel,
		},
	}
	return list, nil
}

// Size returns the number of entries.
func (l *TransferList) Size() int {
	return len(l.entries)
}

// Entry returns the entry at index i.
func (l *TransferList) Entry(i int) Entry {
	return l.entries[i]
}

// TotalBytes returns the sum of all entry sizes.
func (l *TransferList) TotalBytes() uint64 {
	return l.total
}

// Descriptor returns the segment handles and identity of the list.
func (l *TransferList) Descriptor() Descriptor {
	return l.desc
}

// Close releases the segment handles in reverse acquisition order. The
// buffer is not released; it belongs to the caller.
func (l *TransferList) Close() error {
	var first error
	if l.desc.Remote != nil {
		if err := l.desc.Remote.Close(); err != nil && first == nil {
			first = err
		}
		l.desc.Remote = nil
	}
	if l.desc.Local != nil {
		if err := l.desc.Local.Remove(); err != nil && first == nil {
			first = err
		}
		l.desc.Local = nil
	}
	return first
}

// SplitEvenly builds n equal-sized entries covering size bytes at identical
// local and remote offsets. size must be divisible by n.
func SplitEvenly(size uint64, n uint) ([]Entry, error) {
	if n == 0 {
		return nil, ErrEmptyList
	}
	if size == 0 || size%uint64(n) != 0 {
		return nil, fmt.Errorf("rdmabench: cannot split %d bytes into %d equal entries", size, n)
	}
	chunk := size / uint64(n)
	entries := make([]Entry, n)
	for i := range entries {
		off := uint64(i) * chunk
		entries[i] = Entry{LocalOffset: off, RemoteOffset: off, Size: chunk}
	}
	return entries, nil
}
