package bench

import (
	"testing"
	"time"
)

func TestRunSampleThroughputGuardsZeroElapsed(t *testing.T) {
	failed := RunSample{Elapsed: 0, Bytes: 4096}
	if got := failed.Throughput(); got != 0 {
		t.Fatalf("zero elapsed should yield zero throughput, got %f", got)
	}
	if failed.OK() {
		t.Fatal("zero elapsed sample must not count as success")
	}

	ok := RunSample{Elapsed: 2 * time.Microsecond, Bytes: 4096}
	if got := ok.Throughput(); got != 2048 {
		t.Fatalf("unexpected throughput: %f", got)
	}
	if !ok.OK() {
		t.Fatal("non-zero elapsed sample must count as success")
	}

	// Sub-microsecond runs are real and must not be treated as failures.
	fast := RunSample{Elapsed: 100 * time.Nanosecond, Bytes: 1000}
	if got := fast.Throughput(); got != 10000 {
		t.Fatalf("unexpected sub-microsecond throughput: %f", got)
	}
}

func TestResultFinalize(t *testing.T) {
	r := newResult(4)
	if len(r.Runs) != 4 {
		t.Fatalf("unexpected run count: %d", len(r.Runs))
	}

	r.Runs[0] = RunSample{Elapsed: time.Millisecond, Bytes: 100}
	r.Runs[1] = RunSample{Elapsed: 0, Bytes: 100}
	r.Runs[2] = RunSample{Elapsed: time.Millisecond, Bytes: 100}
	r.Runs[3] = RunSample{Elapsed: time.Millisecond, Bytes: 100}
	r.finalize(400, 10*time.Millisecond, true)

	if r.SuccessCount != 3 {
		t.Fatalf("unexpected success count: %d", r.SuccessCount)
	}
	if r.SuccessCount > uint(len(r.Runs)) {
		t.Fatal("success count exceeds run count")
	}
	if !r.BufferMatches {
		t.Fatal("expected buffer match")
	}
	if r.TotalBytes != 400 {
		t.Fatalf("unexpected total bytes: %d", r.TotalBytes)
	}

	// 400 bytes over 10000 µs.
	if got := r.AverageThroughput(); got != 0.04 {
		t.Fatalf("unexpected aggregate throughput: %f", got)
	}

	empty := &Result{}
	if got := empty.AverageThroughput(); got != 0 {
		t.Fatalf("zero runtime must yield zero throughput, got %f", got)
	}
}
