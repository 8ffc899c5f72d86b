package bench

import "time"

// RunSample is the timing of one benchmark repetition. A failed repetition
// is recorded with a zero elapsed time.
type RunSample struct {
	Elapsed time.Duration
	Bytes   uint64
}

// Throughput returns the sample's throughput in bytes per microsecond. A
// zero or negative elapsed time yields zero, which marks the run as failed.
func (s RunSample) Throughput() float64 {
	us := float64(s.Elapsed) / float64(time.Microsecond)
	if us <= 0 {
		return 0
	}
	return float64(s.Bytes) / us
}

// OK reports whether the repetition succeeded.
func (s RunSample) OK() bool {
	return s.Elapsed > 0
}

// Result is the outcome of one benchmark invocation. It is finalized before
// being returned and never mutated afterwards.
type Result struct {
	// SuccessCount is the number of repetitions that completed.
	SuccessCount uint
	// BufferMatches reports whether the remote buffer was a bit-exact copy
	// of the local buffer after the benchmark.
	BufferMatches bool
	// TotalBytes is the number of bytes moved across all repetitions.
	TotalBytes uint64
	// TotalRuntime is the wall-clock time of the whole repetition loop,
	// including queue setup and teardown amortized across runs.
	TotalRuntime time.Duration
	// Runs holds one sample per repetition; its length always equals the
	// configured run count.
	Runs []RunSample
}

// AverageThroughput returns bytes per microsecond across the whole loop,
// guarded against a zero total runtime.
func (r *Result) AverageThroughput() float64 {
	us := float64(r.TotalRuntime) / float64(time.Microsecond)
	if us <= 0 {
		return 0
	}
	return float64(r.TotalBytes) / us
}

func newResult(runs uint) *Result {
	return &Result{Runs: make([]RunSample, runs)}
}

func (r *Result) finalize(totalBytes uint64, runtime time.Duration, matches bool) {
	r.TotalBytes = totalBytes
	r.TotalRuntime = runtime
	r.BufferMatches = matches
	r.SuccessCount = 0
	for _, s := range r.Runs {
		if s.OK() {
			r.SuccessCount++
		}
	}
}
