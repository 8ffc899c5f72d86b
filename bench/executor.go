package bench

import (
	"time"

	"go.uber.org/zap"

	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
)

// Config is the immutable input to one benchmark invocation.
type Config struct {
	Mode Mode
	Runs uint
	List *TransferList
}

// Executor drives a transfer technique over a transfer list and collects
// per-run timings.
type Executor struct {
	session transport.Session
	adapter uint32
	logger  *zap.Logger
	metrics MetricHook
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger attaches a logger to the executor.
func WithLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics attaches a metric hook to the executor.
func WithMetrics(hook MetricHook) ExecutorOption {
	return func(e *Executor) { e.metrics = hook }
}

// NewExecutor creates an executor bound to a session and adapter.
func NewExecutor(session transport.Session, adapter uint32, opts ...ExecutorOption) *Executor {
	e := &Executor{
		session: session,
		adapter: adapter,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the configured benchmark and verifies the transfer.
//
// Setup failures return a nil result and a SetupError. An unsupported mode
// returns a zeroed result together with the describing error, so the caller
// still gets the full shape of a failed run. Individual transfer failures
// are recorded as zero-throughput samples and never abort the loop.
func (e *Executor) Run(cfg Config) (*Result, error) {
	if e == nil || e.session == nil {
		return nil, transport.ErrInvalidHandle{Resource: "session"}
	}
	if cfg.List == nil {
		return nil, transport.ErrInvalidHandle{Resource: "transfer list"}
	}
	if cfg.Runs == 0 {
		return nil, &SetupError{Step: "validate config", Err: ErrEmptyRunCount}
	}

	desc := cfg.List.Descriptor()
	result := newResult(cfg.Runs)

	fillByte, err := FillRandom(desc.Buffer)
	if err != nil {
		return nil, &SetupError{Step: "fill local buffer", Err: err}
	}
	e.logger.Debug("filled local buffer with random value",
		zap.String("value", byteHex(fillByte)),
		zap.String("device", desc.Device.String()))

	tech, flags := cfg.Mode.resolve()

	var runtime time.Duration
	var runErr error
	switch tech {
	case techDMA:
		runtime, runErr = e.dma(cfg, flags, result.Runs)
	case techPIOWrite:
		runtime, runErr = e.pio(cfg, false, result.Runs)
	case techPIORead:
		runtime, runErr = e.pio(cfg, true, result.Runs)
	case techMapWrite:
		runtime, runErr = e.mapped(cfg, false, result.Runs)
	case techMapRead:
		runtime, runErr = e.mapped(cfg, true, result.Runs)
	case techUnsupported:
		e.logger.Error("benchmark mode is not yet supported", zap.Stringer("mode", cfg.Mode))
		result.finalize(0, 0, false)
		return result, ErrUnsupportedMode
	default:
		e.logger.Error("no benchmarking operation is set")
		result.finalize(0, 0, false)
		return result, ErrNoMode
	}
	if runErr != nil {
		return nil, runErr
	}

	for _, s := range result.Runs {
		if s.OK() {
			e.metricRun(true, cfg.Mode, desc)
		} else {
			e.metricRun(false, cfg.Mode, desc)
		}
	}

	e.logger.Info("benchmark complete, verifying transfer", zap.Stringer("mode", cfg.Mode))
	matches := e.verify(cfg.List, fillByte)

	result.finalize(cfg.List.TotalBytes()*uint64(cfg.Runs), runtime, matches)
	e.metricBenchmark(cfg.Mode, desc)
	return result, nil
}

// dma builds one hardware descriptor per transfer list entry and drives the
// vector through a run-scoped DMA queue.
func (e *Executor) dma(cfg Config, flags transport.Flag, samples []RunSample) (time.Duration, error) {
	list := cfg.List
	desc := list.Descriptor()

	vec := make([]transport.VecEntry, list.Size())
	var totalBytes uint64
	for i := range vec {
		entry := list.Entry(i)
		vec[i] = transport.VecEntry{
			LocalOffset:  entry.LocalOffset,
			RemoteOffset: entry.RemoteOffset,
			Size:         entry.Size,
		}
		totalBytes += entry.Size
	}

	queue, err := e.session.CreateDMAQueue(e.adapter, uint(len(vec)))
	if err != nil {
		return 0, &SetupError{Step: "create DMA queue", Err: err}
	}
	defer func() {
		if err := queue.Remove(); err != nil {
			e.logger.Warn("failed to remove DMA queue", zap.Error(err))
		}
	}()

	e.logger.Debug("performing DMA transfers",
		zap.Int("vector_length", len(vec)),
		zap.Uint("repetitions", cfg.Runs))

	start := time.Now()
	for i := range samples {
		before := time.Now()
		err := queue.TransferVec(desc.Local, desc.Remote, vec, flags)
		elapsed := time.Since(before)

		if err != nil {
			e.logger.Error("DMA transfer failed", zap.Int("run", i), zap.Error(err))
			samples[i] = RunSample{Elapsed: 0, Bytes: totalBytes}
			continue
		}
		samples[i] = RunSample{Elapsed: elapsed, Bytes: totalBytes}
	}
	return time.Since(start), nil
}

// pio drives the programmed I/O modes through the remote segment's transfer
// operations, one call per entry per repetition.
func (e *Executor) pio(cfg Config, read bool, samples []RunSample) (time.Duration, error) {
	list := cfg.List
	desc := list.Descriptor()

	largest := uint64(0)
	totalBytes := uint64(0)
	for i := 0; i < list.Size(); i++ {
		entry := list.Entry(i)
		totalBytes += entry.Size
		if entry.Size > largest {
			largest = entry.Size
		}
	}
	staging := make([]byte, largest)

	start := time.Now()
	for i := range samples {
		before := time.Now()
		err := e.pioOnce(list, desc, read, staging)
		elapsed := time.Since(before)

		if err != nil {
			e.logger.Error("programmed transfer failed", zap.Int("run", i), zap.Error(err))
			samples[i] = RunSample{Elapsed: 0, Bytes: totalBytes}
			continue
		}
		samples[i] = RunSample{Elapsed: elapsed, Bytes: totalBytes}
	}
	return time.Since(start), nil
}

// mapped performs the plain-copy modes: the remote segment is mapped once
// and every repetition moves the entries with ordinary memory copies through
// the mapping.
func (e *Executor) mapped(cfg Config, read bool, samples []RunSample) (time.Duration, error) {
	list := cfg.List
	desc := list.Descriptor()

	mapping, err := desc.Remote.Map()
	if err != nil {
		return 0, &SetupError{Step: "map remote segment", Err: err}
	}
	defer e.unmapWithRetry(mapping)

	largest := uint64(0)
	totalBytes := uint64(0)
	for i := 0; i < list.Size(); i++ {
		entry := list.Entry(i)
		totalBytes += entry.Size
		if entry.Size > largest {
			largest = entry.Size
		}
	}
	staging := make([]byte, largest)

	start := time.Now()
	for i := range samples {
		before := time.Now()
		err := e.mappedOnce(list, desc, mapping, read, staging)
		elapsed := time.Since(before)

		if err != nil {
			e.logger.Error("mapped copy failed", zap.Int("run", i), zap.Error(err))
			samples[i] = RunSample{Elapsed: 0, Bytes: totalBytes}
			continue
		}
		samples[i] = RunSample{Elapsed: elapsed, Bytes: totalBytes}
	}
	return time.Since(start), nil
}

func (e *Executor) mappedOnce(list *TransferList, desc Descriptor, mapping transport.Mapping, read bool, staging []byte) error {
	for i := 0; i < list.Size(); i++ {
		entry := list.Entry(i)
		chunk := staging[:entry.Size]
		if read {
			if _, err := mapping.ReadAt(chunk, int64(entry.RemoteOffset)); err != nil {
				return err
			}
			if _, err := desc.Buffer.WriteAt(chunk, int64(entry.LocalOffset)); err != nil {
				return err
			}
		} else {
			if err := desc.Buffer.CopyToHost(chunk, entry.LocalOffset); err != nil {
				return err
			}
			if _, err := mapping.WriteAt(chunk, int64(entry.RemoteOffset)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Executor) pioOnce(list *TransferList, desc Descriptor, read bool, staging []byte) error {
	for i := 0; i < list.Size(); i++ {
		entry := list.Entry(i)
		chunk := staging[:entry.Size]
		if read {
			if err := desc.Remote.Read(entry.RemoteOffset, chunk); err != nil {
				return err
			}
			if _, err := desc.Buffer.WriteAt(chunk, int64(entry.LocalOffset)); err != nil {
				return err
			}
		} else {
			if err := desc.Buffer.CopyToHost(chunk, entry.LocalOffset); err != nil {
				return err
			}
			if err := desc.Remote.Write(entry.RemoteOffset, chunk); err != nil {
				return err
			}
		}
	}
	return nil
}
