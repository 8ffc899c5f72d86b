package bench

import (
	"errors"
	"testing"

	"github.com/enfiskutensykkel/cuda-rdma-bench/devmem"
	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
	"github.com/enfiskutensykkel/cuda-rdma-bench/transport/loopback"
)

// benchPair publishes a server-side segment and returns a client session
// ready to build transfer lists against it.
func benchPair(t *testing.T, serverSize uint64) (transport.Session, *loopback.Bus) {
	t.Helper()
	bus := loopback.NewBus()
	server := bus.OpenSession()

	mem, err := devmem.AllocHost(serverSize)
	if err != nil {
		t.Fatalf("AllocHost failed: %v", err)
	}
	t.Cleanup(func() { _ = mem.Release() })

	seg, err := server.AttachSegment(0, 1, mem)
	if err != nil {
		t.Fatalf("AttachSegment failed: %v", err)
	}
	if err := seg.SetAvailable(); err != nil {
		t.Fatalf("SetAvailable failed: %v", err)
	}

	client := bus.OpenSession()
	t.Cleanup(func() { _ = client.Close() })
	return client, bus
}

func clientBuffer(t *testing.T, size uint64) devmem.Memory {
	t.Helper()
	mem, err := devmem.AllocHost(size)
	if err != nil {
		t.Fatalf("AllocHost failed: %v", err)
	}
	t.Cleanup(func() { _ = mem.Release() })
	return mem
}

func TestBuildTransferList(t *testing.T) {
	session, _ := benchPair(t, 256)
	buffer := clientBuffer(t, 256)

	entries := []Entry{
		{LocalOffset: 0, RemoteOffset: 0, Size: 128},
		{LocalOffset: 128, RemoteOffset: 128, Size: 128},
	}
	list, err := BuildTransferList(session, 0, buffer, 2, 1, 1, entries)
	if err != nil {
		t.Fatalf("BuildTransferList failed: %v", err)
	}
	defer list.Close()

	if list.Size() != 2 {
		t.Fatalf("unexpected entry count: %d", list.Size())
	}
	if list.TotalBytes() != 256 {
		t.Fatalf("unexpected total bytes: %d", list.TotalBytes())
	}
	if got := list.Entry(1); got != entries[1] {
		t.Fatalf("unexpected entry: %+v", got)
	}

	desc := list.Descriptor()
	if desc.SegmentSize != 256 {
		t.Fatalf("unexpected segment size: %d", desc.SegmentSize)
	}
	if desc.Channel != 1 {
		t.Fatalf("unexpected channel: %d", desc.Channel)
	}
	if desc.Device != devmem.Host() {
		t.Fatalf("unexpected device: %v", desc.Device)
	}
}

func TestBuildTransferListEntriesAreCopied(t *testing.T) {
	session, _ := benchPair(t, 64)
	buffer := clientBuffer(t, 64)

	entries := []Entry{{LocalOffset: 0, RemoteOffset: 0, Size: 64}}
	list, err := BuildTransferList(session, 0, buffer, 2, 1, 1, entries)
	if err != nil {
		t.Fatalf("BuildTransferList failed: %v", err)
	}
	defer list.Close()

	entries[0].Size = 9999
	if got := list.Entry(0).Size; got != 64 {
		t.Fatalf("entry mutated after construction: %d", got)
	}
}

func TestBuildTransferListRejectsZeroSize(t *testing.T) {
	session, _ := benchPair(t, 64)
	buffer := clientBuffer(t, 64)

	_, err := BuildTransferList(session, 0, buffer, 2, 1, 1, []Entry{{Size: 0}})
	var rangeErr RangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected RangeError, got %v", err)
	}
	if rangeErr.Index != 0 {
		t.Fatalf("unexpected entry index: %d", rangeErr.Index)
	}
}

func TestBuildTransferListRejectsLocalOverrun(t *testing.T) {
	session, _ := benchPair(t, 256)
	buffer := clientBuffer(t, 64)

	_, err := BuildTransferList(session, 0, buffer, 2, 1, 1, []Entry{{LocalOffset: 32, RemoteOffset: 0, Size: 64}})
	var rangeErr RangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected RangeError, got %v", err)
	}
}

func TestBuildTransferListRejectsRemoteOverrun(t *testing.T) {
	session, _ := benchPair(t, 32)
	buffer := clientBuffer(t, 64)

	_, err := BuildTransferList(session, 0, buffer, 2, 1, 1, []Entry{{LocalOffset: 0, RemoteOffset: 0, Size: 64}})
	var rangeErr RangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected RangeError, got %v", err)
	}

	// The failed build must not leak the local segment id.
	if _, err := BuildTransferList(session, 0, buffer, 2, 1, 1, []Entry{{LocalOffset: 0, RemoteOffset: 0, Size: 32}}); err != nil {
		t.Fatalf("rebuild after failed construction: %v", err)
	}
}

func TestBuildTransferListRejectsEmpty(t *testing.T) {
	session, _ := benchPair(t, 64)
	buffer := clientBuffer(t, 64)

	if _, err := BuildTransferList(session, 0, buffer, 2, 1, 1, nil); !errors.Is(err, ErrEmptyList) {
		t.Fatalf("expected ErrEmptyList, got %v", err)
	}
}

func TestBuildTransferListUnknownRemote(t *testing.T) {
	session, _ := benchPair(t, 64)
	buffer := clientBuffer(t, 64)

	_, err := BuildTransferList(session, 0, buffer, 2, 42, 1, []Entry{{Size: 64}})
	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("expected SetupError, got %v", err)
	}
	if !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("expected wrapped ErrNotFound, got %v", err)
	}
}

func TestSplitEvenly(t *testing.T) {
	entries, err := SplitEvenly(256, 4)
	if err != nil {
		t.Fatalf("SplitEvenly failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("unexpected entry count: %d", len(entries))
	}
	var total uint64
	for i, e := range entries {
		if e.Size != 64 {
			t.Fatalf("entry %d size: %d", i, e.Size)
		}
		if e.LocalOffset != uint64(i)*64 || e.RemoteOffset != uint64(i)*64 {
			t.Fatalf("entry %d offsets: %+v", i, e)
		}
		total += e.Size
	}
	if total != 256 {
		t.Fatalf("unexpected total: %d", total)
	}

	if _, err := SplitEvenly(100, 3); err == nil {
		t.Fatal("expected error for indivisible split")
	}
	if _, err := SplitEvenly(256, 0); err == nil {
		t.Fatal("expected error for zero entries")
	}
}
