package bench

import (
	"errors"
	"sync"
	"testing"

	"github.com/enfiskutensykkel/cuda-rdma-bench/devmem"
	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
	"github.com/enfiskutensykkel/cuda-rdma-bench/transport/loopback"
)

// flakySession injects DMA transfer failures on selected repetitions while
// delegating everything else to the real provider.
type flakySession struct {
	transport.Session
	failOn map[int]bool
}

func (s *flakySession) CreateDMAQueue(adapter uint32, maxVecLen uint) (transport.DMAQueue, error) {
	q, err := s.Session.CreateDMAQueue(adapter, maxVecLen)
	if err != nil {
		return nil, err
	}
	return &flakyQueue{inner: q, failOn: s.failOn}, nil
}

type flakyQueue struct {
	inner  transport.DMAQueue
	failOn map[int]bool
	calls  int
}

func (q *flakyQueue) TransferVec(local transport.LocalSegment, remote transport.RemoteSegment, vec []transport.VecEntry, flags transport.Flag) error {
	q.calls++
	if q.failOn[q.calls] {
		return errors.New("injected transfer failure")
	}
	return q.inner.TransferVec(local, remote, vec, flags)
}

func (q *flakyQueue) Remove() error {
	return q.inner.Remove()
}

type countingHook struct {
	mu         sync.Mutex
	completed  int
	failed     int
	benchmarks int
	verified   []bool
	interrupts int
}

func (h *countingHook) RunCompleted(map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed++
}

func (h *countingHook) RunFailed(map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed++
}

func (h *countingHook) BenchmarkCompleted(map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.benchmarks++
}

func (h *countingHook) VerifyChecked(matched bool, _ map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.verified = append(h.verified, matched)
}

func (h *countingHook) InterruptReceived(map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interrupts++
}

// benchSetup wires a published server segment, a no-op validation interrupt
// and a ready transfer list for one executor invocation.
func benchSetup(t *testing.T, session transport.Session, bus *loopback.Bus, size uint64, vecLen uint) *TransferList {
	t.Helper()

	server := bus.OpenSession()
	if _, err := server.CreateInterrupt(0, 1, func(transport.ChannelID, error) {}); err != nil {
		t.Fatalf("CreateInterrupt failed: %v", err)
	}

	buffer := clientBuffer(t, size)
	entries, err := SplitEvenly(size, vecLen)
	if err != nil {
		t.Fatalf("SplitEvenly failed: %v", err)
	}
	list, err := BuildTransferList(session, 0, buffer, 2, 1, 1, entries)
	if err != nil {
		t.Fatalf("BuildTransferList failed: %v", err)
	}
	t.Cleanup(func() { _ = list.Close() })
	return list
}

func TestExecutorAllRunsSucceed(t *testing.T) {
	session, bus := benchPair(t, 4096)
	list := benchSetup(t, session, bus, 4096, 4)

	hook := &countingHook{}
	executor := NewExecutor(session, 0, WithMetrics(hook))
	result, err := executor.Run(Config{Mode: ModeDMAPush, Runs: 5, List: list})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.SuccessCount != 5 {
		t.Fatalf("unexpected success count: %d", result.SuccessCount)
	}
	if !result.BufferMatches {
		t.Fatal("expected buffer match")
	}
	if len(result.Runs) != 5 {
		t.Fatalf("unexpected run count: %d", len(result.Runs))
	}
	if result.TotalBytes != 4096*5 {
		t.Fatalf("unexpected total bytes: %d", result.TotalBytes)
	}
	// sum(entry.size) must equal total_bytes / run_count.
	if list.TotalBytes() != result.TotalBytes/5 {
		t.Fatalf("per-run bytes mismatch: list=%d result=%d", list.TotalBytes(), result.TotalBytes/5)
	}
	for i, sample := range result.Runs {
		if !sample.OK() {
			t.Fatalf("run %d recorded as failed", i)
		}
		if sample.Bytes != 4096 {
			t.Fatalf("run %d bytes: %d", i, sample.Bytes)
		}
	}

	if hook.completed != 5 || hook.failed != 0 {
		t.Fatalf("unexpected metric counts: completed=%d failed=%d", hook.completed, hook.failed)
	}
	if hook.benchmarks != 1 {
		t.Fatalf("unexpected benchmark count: %d", hook.benchmarks)
	}
	if len(hook.verified) != 1 || !hook.verified[0] {
		t.Fatalf("unexpected verify events: %v", hook.verified)
	}
}

func TestExecutorContinuesAfterFailedRepetition(t *testing.T) {
	session, bus := benchPair(t, 1024)
	list := benchSetup(t, session, bus, 1024, 1)

	flaky := &flakySession{Session: session, failOn: map[int]bool{2: true}}
	executor := NewExecutor(flaky, 0)
	result, err := executor.Run(Config{Mode: ModeDMAPush, Runs: 3, List: list})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.SuccessCount != 2 {
		t.Fatalf("unexpected success count: %d", result.SuccessCount)
	}
	if result.Runs[1].Elapsed != 0 {
		t.Fatalf("failed run must record zero runtime, got %v", result.Runs[1].Elapsed)
	}
	if result.Runs[0].Elapsed == 0 || result.Runs[2].Elapsed == 0 {
		t.Fatal("surviving runs must record non-zero runtimes")
	}
	// The transfer still went through on runs 1 and 3.
	if !result.BufferMatches {
		t.Fatal("expected buffer match")
	}
}

func TestExecutorDMAPullAndGlobalVariants(t *testing.T) {
	for _, mode := range []Mode{ModeDMAPull, ModeDMAGlobalPush, ModeDMAGlobalPull} {
		t.Run(mode.String(), func(t *testing.T) {
			session, bus := benchPair(t, 2048)
			list := benchSetup(t, session, bus, 2048, 2)

			executor := NewExecutor(session, 0)
			result, err := executor.Run(Config{Mode: mode, Runs: 2, List: list})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if result.SuccessCount != 2 || !result.BufferMatches {
				t.Fatalf("mode %v: success=%d matches=%v", mode, result.SuccessCount, result.BufferMatches)
			}
		})
	}
}

func TestExecutorProgrammedIOModes(t *testing.T) {
	for _, mode := range []Mode{ModeProgrammedWrite, ModeProgrammedCopyToRemote, ModeProgrammedCopyFromRemote, ModeWriteToRemote, ModeReadFromRemote} {
		t.Run(mode.String(), func(t *testing.T) {
			session, bus := benchPair(t, 512)
			list := benchSetup(t, session, bus, 512, 2)

			executor := NewExecutor(session, 0)
			result, err := executor.Run(Config{Mode: mode, Runs: 3, List: list})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if result.SuccessCount != 3 || !result.BufferMatches {
				t.Fatalf("mode %v: success=%d matches=%v", mode, result.SuccessCount, result.BufferMatches)
			}
		})
	}
}

// noPIOSession wraps remote segments so their programmed transfer operations
// always fail, leaving the mapping as the only way to move data.
type noPIOSession struct {
	transport.Session
}

func (s *noPIOSession) ConnectSegment(adapter uint32, id transport.SegmentID) (transport.RemoteSegment, error) {
	remote, err := s.Session.ConnectSegment(adapter, id)
	if err != nil {
		return nil, err
	}
	return &noPIORemote{RemoteSegment: remote}, nil
}

type noPIORemote struct {
	transport.RemoteSegment
}

func (r *noPIORemote) Write(uint64, []byte) error {
	return errors.New("programmed write disabled")
}

func (r *noPIORemote) Read(uint64, []byte) error {
	return errors.New("programmed read disabled")
}

func TestExecutorPlainCopyModesUseMapping(t *testing.T) {
	session, bus := benchPair(t, 1024)

	server := bus.OpenSession()
	if _, err := server.CreateInterrupt(0, 1, func(transport.ChannelID, error) {}); err != nil {
		t.Fatalf("CreateInterrupt failed: %v", err)
	}

	wrapped := &noPIOSession{Session: session}
	buffer := clientBuffer(t, 1024)
	entries, err := SplitEvenly(1024, 2)
	if err != nil {
		t.Fatalf("SplitEvenly failed: %v", err)
	}
	list, err := BuildTransferList(wrapped, 0, buffer, 2, 1, 1, entries)
	if err != nil {
		t.Fatalf("BuildTransferList failed: %v", err)
	}
	defer list.Close()

	executor := NewExecutor(wrapped, 0)

	// The plain-copy modes move data through the mapping, so disabling the
	// segment transfer operations must not affect them.
	for _, mode := range []Mode{ModeWriteToRemote, ModeReadFromRemote} {
		result, err := executor.Run(Config{Mode: mode, Runs: 2, List: list})
		if err != nil {
			t.Fatalf("mode %v: Run failed: %v", mode, err)
		}
		if result.SuccessCount != 2 || !result.BufferMatches {
			t.Fatalf("mode %v: success=%d matches=%v", mode, result.SuccessCount, result.BufferMatches)
		}
	}

	// The programmed I/O modes still depend on them.
	result, err := executor.Run(Config{Mode: ModeProgrammedWrite, Runs: 2, List: list})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.SuccessCount != 0 {
		t.Fatalf("programmed write succeeded without segment operations: %d", result.SuccessCount)
	}
}

// spotReadFailMemory fails the single-byte spot-check readback while leaving
// every other access intact.
type spotReadFailMemory struct {
	devmem.Memory
}

func (m spotReadFailMemory) CopyToHost(dst []byte, off uint64) error {
	if len(dst) == 1 {
		return errors.New("single-byte readback fault")
	}
	return m.Memory.CopyToHost(dst, off)
}

func TestVerifyReadBackFailureIsCounted(t *testing.T) {
	session, bus := benchPair(t, 256)

	server := bus.OpenSession()
	if _, err := server.CreateInterrupt(0, 1, func(transport.ChannelID, error) {}); err != nil {
		t.Fatalf("CreateInterrupt failed: %v", err)
	}

	buffer := spotReadFailMemory{Memory: clientBuffer(t, 256)}
	list, err := BuildTransferList(session, 0, buffer, 2, 1, 1, []Entry{{Size: 256}})
	if err != nil {
		t.Fatalf("BuildTransferList failed: %v", err)
	}
	defer list.Close()

	hook := &countingHook{}
	executor := NewExecutor(session, 0, WithMetrics(hook))
	result, err := executor.Run(Config{Mode: ModeDMAPush, Runs: 1, List: list})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.BufferMatches {
		t.Fatal("failed readback must not report a match")
	}
	if len(hook.verified) != 1 || hook.verified[0] {
		t.Fatalf("readback failure not counted as verify outcome: %v", hook.verified)
	}
}

func TestExecutorUnsupportedMode(t *testing.T) {
	session, bus := benchPair(t, 256)
	list := benchSetup(t, session, bus, 256, 1)

	executor := NewExecutor(session, 0)
	result, err := executor.Run(Config{Mode: ModeInterruptSend, Runs: 3, List: list})
	if !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
	if result == nil {
		t.Fatal("unsupported mode must still produce a result")
	}
	if result.SuccessCount != 0 || result.BufferMatches {
		t.Fatalf("unexpected result: success=%d matches=%v", result.SuccessCount, result.BufferMatches)
	}
	if len(result.Runs) != 3 {
		t.Fatalf("unexpected run count: %d", len(result.Runs))
	}
}

func TestExecutorNoMode(t *testing.T) {
	session, bus := benchPair(t, 256)
	list := benchSetup(t, session, bus, 256, 1)

	executor := NewExecutor(session, 0)
	if _, err := executor.Run(Config{Mode: ModeNone, Runs: 1, List: list}); !errors.Is(err, ErrNoMode) {
		t.Fatalf("expected ErrNoMode, got %v", err)
	}
}

func TestExecutorRejectsZeroRuns(t *testing.T) {
	session, bus := benchPair(t, 256)
	list := benchSetup(t, session, bus, 256, 1)

	executor := NewExecutor(session, 0)
	_, err := executor.Run(Config{Mode: ModeDMAPush, Runs: 0, List: list})
	if !errors.Is(err, ErrEmptyRunCount) {
		t.Fatalf("expected ErrEmptyRunCount, got %v", err)
	}
}

func TestExecutorVerificationIsIdempotent(t *testing.T) {
	session, bus := benchPair(t, 1024)
	list := benchSetup(t, session, bus, 1024, 1)

	executor := NewExecutor(session, 0)
	for i := 0; i < 2; i++ {
		result, err := executor.Run(Config{Mode: ModeDMAPush, Runs: 1, List: list})
		if err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
		if !result.BufferMatches {
			t.Fatalf("run %d: expected buffer match", i)
		}
	}
}

func TestExecutorGPUBufferEndToEnd(t *testing.T) {
	session, bus := benchPair(t, 2048)

	server := bus.OpenSession()
	if _, err := server.CreateInterrupt(0, 1, func(transport.ChannelID, error) {}); err != nil {
		t.Fatalf("CreateInterrupt failed: %v", err)
	}

	buffer, err := devmem.EmulatedGPU{ID: 0}.Alloc(2048)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	t.Cleanup(func() { _ = buffer.Release() })

	list, err := BuildTransferList(session, 0, buffer, 2, 1, 1, []Entry{{Size: 2048}})
	if err != nil {
		t.Fatalf("BuildTransferList failed: %v", err)
	}
	t.Cleanup(func() { _ = list.Close() })

	if got := list.Descriptor().Device; got != devmem.GPU(0) {
		t.Fatalf("unexpected device: %v", got)
	}

	executor := NewExecutor(session, 0)
	result, err := executor.Run(Config{Mode: ModeDMAPush, Runs: 2, List: list})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.SuccessCount != 2 || !result.BufferMatches {
		t.Fatalf("unexpected result: success=%d matches=%v", result.SuccessCount, result.BufferMatches)
	}
}
