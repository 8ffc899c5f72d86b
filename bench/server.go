package bench

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/enfiskutensykkel/cuda-rdma-bench/devmem"
	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
)

// ServerConfig describes the receive side of a benchmark pair.
type ServerConfig struct {
	Adapter   uint32
	SegmentID transport.SegmentID
	Channel   transport.ChannelID
	Size      uint64
	Allocator devmem.Allocator
}

// ServerState is the lifecycle position of a Server.
type ServerState int

const (
	// StateUnopened is the initial state.
	StateUnopened ServerState = iota
	// StateSegmentAllocated means the receive buffer and segment exist.
	StateSegmentAllocated
	// StateInterruptRegistered means the validation interrupt is armed.
	StateInterruptRegistered
	// StatePublished means peers can connect to the segment.
	StatePublished
	// StateRunning means the server is blocked waiting for a stop request.
	StateRunning
	// StateUnpublishing means teardown has begun.
	StateUnpublishing
	// StateTornDown is the terminal state.
	StateTornDown
)

func (s ServerState) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateSegmentAllocated:
		return "segment-allocated"
	case StateInterruptRegistered:
		return "interrupt-registered"
	case StatePublished:
		return "published"
	case StateRunning:
		return "running"
	case StateUnpublishing:
		return "unpublishing"
	case StateTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// Server owns a receive buffer published over the interconnect and an
// interrupt handler that spot-checks the buffer when a client signals it.
// One Server serves exactly one Run; the stop request may arrive from any
// goroutine, including a signal handler.
type Server struct {
	session transport.Session
	cfg     ServerConfig
	logger  *zap.Logger
	metrics MetricHook

	mu       sync.Mutex
	cond     *sync.Cond
	state    ServerState
	stopped  bool
	lastByte byte
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger attaches a logger to the server.
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServerMetrics attaches a metric hook to the server.
func WithServerMetrics(hook MetricHook) ServerOption {
	return func(s *Server) { s.metrics = hook }
}

// NewServer creates a server bound to a session. The session stays owned by
// the caller and is not closed by the server.
func NewServer(session transport.Session, cfg ServerConfig, opts ...ServerOption) *Server {
	s := &Server{
		session: session,
		cfg:     cfg,
		logger:  zap.NewNop(),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Server) State() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastObservedByte returns the buffer byte recorded by the most recent
// interrupt delivery, or the initial fill byte before any delivery.
func (s *Server) LastObservedByte() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastByte
}

// Stop requests shutdown. It is idempotent and safe to call from any
// goroutine at any point of the lifecycle; requests after the first are
// no-ops.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.logger.Info("stopping server")
	s.stopped = true
	s.cond.Broadcast()
}

func (s *Server) setState(state ServerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run allocates the receive buffer, registers the validation interrupt,
// publishes the segment and blocks until Stop is called. Resources are
// released in reverse acquisition order on every exit path; a failure
// during setup unwinds only the steps that completed.
func (s *Server) Run() error {
	if s.session == nil {
		return transport.ErrInvalidHandle{Resource: "session"}
	}
	if s.cfg.Allocator == nil {
		return transport.ErrInvalidHandle{Resource: "allocator"}
	}
	if s.State() != StateUnopened {
		return errors.New("rdmabench: server already ran")
	}

	buffer, err := s.cfg.Allocator.Alloc(s.cfg.Size)
	if err != nil {
		s.setState(StateTornDown)
		return &SetupError{Step: "allocate receive buffer", Err: err}
	}

	fill, err := FillRandom(buffer)
	if err != nil {
		s.releaseBuffer(buffer)
		s.setState(StateTornDown)
		return &SetupError{Step: "fill receive buffer", Err: err}
	}
	s.mu.Lock()
	s.lastByte = fill
	s.mu.Unlock()
	s.logger.Debug("created buffer and filled with random value",
		zap.String("value", byteHex(fill)),
		zap.String("device", buffer.Device().String()))

	segment, err := s.session.AttachSegment(s.cfg.Adapter, s.cfg.SegmentID, buffer)
	if err != nil {
		s.releaseBuffer(buffer)
		s.setState(StateTornDown)
		return &SetupError{Step: "create segment", Err: err}
	}
	s.setState(StateSegmentAllocated)

	irq, err := s.session.CreateInterrupt(s.cfg.Adapter, s.cfg.Channel, s.validateBuffer(buffer))
	if err != nil {
		s.teardown(nil, nil, segment, buffer)
		return &SetupError{Step: "create interrupt", Err: err}
	}
	s.setState(StateInterruptRegistered)

	if err := segment.SetAvailable(); err != nil {
		s.teardown(nil, irq, segment, buffer)
		return &SetupError{Step: "set segment available", Err: err}
	}
	s.setState(StatePublished)

	s.logger.Info("running server",
		zap.Uint32("segment", uint32(s.cfg.SegmentID)),
		zap.Uint32("channel", uint32(s.cfg.Channel)),
		zap.Uint64("size", s.cfg.Size))

	s.mu.Lock()
	s.state = StateRunning
	for !s.stopped {
		s.cond.Wait()
	}
	s.state = StateUnpublishing
	s.mu.Unlock()
	s.logger.Info("server stopped")

	s.teardown(segment, irq, segment, buffer)
	return nil
}

// validateBuffer returns the interrupt callback. The callback's only side
// effects are updating server-owned state and emitting the spot-check
// report; it must never block.
func (s *Server) validateBuffer(buffer devmem.Memory) transport.Callback {
	return func(channel transport.ChannelID, status error) {
		if status != nil {
			s.logger.Error("interrupt delivered with failure status",
				zap.Uint32("channel", uint32(channel)),
				zap.Error(status))
			return
		}

		got, err := ReadByte(buffer)
		if err != nil {
			s.logger.Error("failed to read receive buffer", zap.Error(err))
			return
		}

		s.mu.Lock()
		prev := s.lastByte
		s.lastByte = got
		s.mu.Unlock()

		s.logger.Info("receive buffer state",
			zap.String("before_transfer", byteHex(prev)),
			zap.String("after_transfer", byteHex(got)))
		s.metricInterrupt(channel)
	}
}

// teardown unwinds through the completed setup steps in reverse order.
// Failures while releasing are warnings, never fatal; busy statuses are
// retried until the transport reports a definitive result.
func (s *Server) teardown(published transport.LocalSegment, irq transport.Interrupt, segment transport.LocalSegment, buffer devmem.Memory) {
	if published != nil {
		if err := published.SetUnavailable(); err != nil {
			s.logger.Warn("failed to set segment unavailable", zap.Error(err))
		}
	}
	if irq != nil {
		for {
			err := irq.Remove()
			if errors.Is(err, transport.ErrBusy) {
				time.Sleep(unmapRetryDelay)
				continue
			}
			if err != nil {
				s.logger.Warn("failed to remove interrupt", zap.Error(err))
			}
			break
		}
	}
	if segment != nil {
		if err := segment.Remove(); err != nil {
			s.logger.Warn("failed to remove segment", zap.Error(err))
		}
	}
	s.releaseBuffer(buffer)
	s.setState(StateTornDown)
}

func (s *Server) releaseBuffer(buffer devmem.Memory) {
	if buffer == nil {
		return
	}
	if err := buffer.Release(); err != nil {
		s.logger.Warn("failed to release receive buffer", zap.Error(err))
	}
}
