package bench

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
)

// unmapRetryDelay spaces out retries while the transport reports the
// mapping as busy.
const unmapRetryDelay = time.Millisecond

func byteHex(b byte) string {
	return fmt.Sprintf("%02x", b)
}

// verify runs the client side of the verification protocol: trigger the
// server's validation interrupt, report the local buffer byte, then map the
// remote segment and compare it in full against the local buffer.
func (e *Executor) verify(list *TransferList, want byte) bool {
	desc := list.Descriptor()

	// The spot check is observational; a failed trigger is logged but does
	// not decide the comparison outcome.
	if err := e.session.TriggerInterrupt(e.adapter, desc.Channel); err != nil {
		e.logger.Error("failed to trigger remote interrupt",
			zap.Uint32("channel", uint32(desc.Channel)),
			zap.Error(err))
	}

	got, err := ReadByte(desc.Buffer)
	if err != nil {
		e.logger.Error("failed to read back local buffer", zap.Error(err))
		e.metricVerify(false, desc)
		return false
	}
	e.logger.Info("local buffer state",
		zap.String("before_transfer", byteHex(want)),
		zap.String("after_transfer", byteHex(got)))

	matched, err := e.compareRemote(desc)
	if err != nil {
		e.logger.Error("failed to compare local and remote memory", zap.Error(err))
		e.metricVerify(false, desc)
		return false
	}

	matches := matched == desc.SegmentSize
	if matches {
		e.logger.Debug("local and remote buffers are equal")
	} else {
		e.logger.Warn("local and remote buffers differ",
			zap.Uint64("matched_bytes", matched),
			zap.Uint64("segment_size", desc.SegmentSize))
	}
	e.metricVerify(matches, desc)
	return matches
}

// compareRemote maps the remote segment for direct read access and compares
// it against the local buffer. The mapping is released on every path; a
// busy unmap is retried until the transport reports a definitive status.
func (e *Executor) compareRemote(desc Descriptor) (uint64, error) {
	mapped, err := desc.Remote.Map()
	if err != nil {
		return 0, &SetupError{Step: "map remote segment", Err: err}
	}
	defer e.unmapWithRetry(mapped)

	e.logger.Info("comparing local and remote memory",
		zap.Uint64("length", desc.SegmentSize))
	return Compare(desc.Buffer, mapped, desc.SegmentSize)
}

func (e *Executor) unmapWithRetry(mapped transport.Mapping) {
	for {
		err := mapped.Unmap()
		if errors.Is(err, transport.ErrBusy) {
			time.Sleep(unmapRetryDelay)
			continue
		}
		if err != nil {
			e.logger.Warn("failed to unmap remote segment", zap.Error(err))
		}
		return
	}
}
