package loopback

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
)

type dmaQueue struct {
	bus       *Bus
	maxVecLen uint
	mu        sync.Mutex
	removed   bool
}

func (q *dmaQueue) TransferVec(local transport.LocalSegment, remote transport.RemoteSegment, vec []transport.VecEntry, flags transport.Flag) error {
	q.mu.Lock()
	if q.removed {
		q.mu.Unlock()
		return transport.ErrInvalidHandle{Resource: "DMA queue"}
	}
	q.mu.Unlock()

	ls, ok := local.(*localSegment)
	if !ok || ls == nil {
		return transport.ErrInvalidHandle{Resource: "local segment"}
	}
	rs, ok := remote.(*remoteSegment)
	if !ok || rs == nil {
		return transport.ErrInvalidHandle{Resource: "remote segment"}
	}
	if q.maxVecLen > 0 && uint(len(vec)) > q.maxVecLen {
		return fmt.Errorf("transport: vector length %d exceeds queue capacity %d", len(vec), q.maxVecLen)
	}

	localLen := ls.seg.mem.Len()
	remoteLen := rs.seg.mem.Len()
	for _, e := range vec {
		if e.LocalOffset+e.Size > localLen || e.RemoteOffset+e.Size > remoteLen {
			return transport.ErrOutOfRange
		}
	}

	// Globally ordered transfers serialize on the bus-wide DMA engine.
	if flags&transport.FlagGlobal != 0 {
		q.bus.dmaMu.Lock()
		defer q.bus.dmaMu.Unlock()
	}

	for _, e := range vec {
		staging := make([]byte, e.Size)
		if flags&transport.FlagRead != 0 {
			if _, err := rs.seg.mem.ReadAt(staging, int64(e.RemoteOffset)); err != nil {
				return err
			}
			if _, err := ls.seg.mem.WriteAt(staging, int64(e.LocalOffset)); err != nil {
				return err
			}
		} else {
			if _, err := ls.seg.mem.ReadAt(staging, int64(e.LocalOffset)); err != nil {
				return err
			}
			if _, err := rs.seg.mem.WriteAt(staging, int64(e.RemoteOffset)); err != nil {
				return err
			}
		}
	}

	q.bus.logger.Debug("DMA transfer complete",
		zap.Int("vector_length", len(vec)),
		zap.Uint32("flags", uint32(flags)))
	return nil
}

func (q *dmaQueue) Remove() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = true
	return nil
}
