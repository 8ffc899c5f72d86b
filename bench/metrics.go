package bench

import (
	"strconv"

	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
)

// Label keys shared by the metric backends.
const (
	labelMode    = "mode"
	labelDevice  = "device"
	labelSegment = "segment"
	labelChannel = "channel"
	labelStatus  = "status"
)

// MetricHook captures benchmark telemetry events. Implementations must be
// safe for concurrent use; the interrupt event arrives on a transport-owned
// goroutine.
type MetricHook interface {
	// RunCompleted counts one successful repetition.
	RunCompleted(attrs map[string]string)
	// RunFailed counts one failed repetition.
	RunFailed(attrs map[string]string)
	// BenchmarkCompleted counts one finished benchmark invocation.
	BenchmarkCompleted(attrs map[string]string)
	// VerifyChecked counts one full-buffer comparison with its outcome.
	VerifyChecked(matched bool, attrs map[string]string)
	// InterruptReceived counts one validation interrupt delivery.
	InterruptReceived(attrs map[string]string)
}

func benchmarkAttrs(mode Mode, desc Descriptor) map[string]string {
	return map[string]string{
		labelMode:    mode.String(),
		labelDevice:  desc.Device.String(),
		labelSegment: strconv.FormatUint(uint64(desc.Remote.ID()), 10),
	}
}

func (e *Executor) metricRun(ok bool, mode Mode, desc Descriptor) {
	if e.metrics == nil {
		return
	}
	if ok {
		e.metrics.RunCompleted(benchmarkAttrs(mode, desc))
	} else {
		e.metrics.RunFailed(benchmarkAttrs(mode, desc))
	}
}

func (e *Executor) metricBenchmark(mode Mode, desc Descriptor) {
	if e.metrics == nil {
		return
	}
	e.metrics.BenchmarkCompleted(benchmarkAttrs(mode, desc))
}

func (e *Executor) metricVerify(matched bool, desc Descriptor) {
	if e.metrics == nil {
		return
	}
	attrs := map[string]string{
		labelDevice:  desc.Device.String(),
		labelSegment: strconv.FormatUint(uint64(desc.Remote.ID()), 10),
	}
	e.metrics.VerifyChecked(matched, attrs)
}

func (s *Server) metricInterrupt(channel transport.ChannelID) {
	if s.metrics == nil {
		return
	}
	s.metrics.InterruptReceived(map[string]string{
		labelChannel: strconv.FormatUint(uint64(channel), 10),
		labelSegment: strconv.FormatUint(uint64(s.cfg.SegmentID), 10),
	})
}
