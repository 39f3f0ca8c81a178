package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// State is the connection state of a supervised cache.
type State int32

// Connection states. Failed is terminal: supervision has stopped.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pinger checks connectivity of a backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SupervisorConfig bounds reconnection.
type SupervisorConfig struct {
	BaseBackoff   time.Duration // first retry delay, doubled per attempt
	MaxBackoff    time.Duration // cap for a single delay
	MaxRetries    uint64        // retries per reconnection cycle before giving up
	ProbeInterval time.Duration // ping period while connected
}

// Supervisor tracks the connection state of a cache and re-establishes it with bounded
// exponential backoff. Once a reconnection cycle exhausts its retries the supervisor enters
// StateFailed and stops; callers then see cache errors directly.
type Supervisor struct {
	p   Pinger
	cfg SupervisorConfig
	log *zap.Logger

	state atomic.Int32

	mu        sync.Mutex
	listeners []func(State)
}

// NewSupervisor constructs a Supervisor in StateDisconnected.
func NewSupervisor(p Pinger, cfg SupervisorConfig, log *zap.Logger) *Supervisor {
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 5 * time.Second
	}
	return &Supervisor{p: p, cfg: cfg, log: log}
}

// State returns the current state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// OnChange registers fn to be called synchronously on every state transition.
func (s *Supervisor) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Supervisor) set(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev == st {
		return
	}
	s.log.Info("cache state", zap.Stringer("from", prev), zap.Stringer("to", st))

	s.mu.Lock()
	ls := append(([]func(State))(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range ls {
		fn(st)
	}
}

// Run supervises the connection until ctx is done or reconnection gives up.
// It returns nil on cancellation and the last ping error on give-up.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := s.connect(ctx); err != nil {
			if ctx.Err() != nil {
				s.set(StateDisconnected)
				return nil
			}
			s.set(StateFailed)
			s.log.Error("cache reconnection exhausted", zap.Uint64("retries", s.cfg.MaxRetries), zap.Error(err))
			return err
		}
		if !s.watch(ctx) {
			s.set(StateDisconnected)
			return nil
		}
	}
}

func (s *Supervisor) connect(ctx context.Context) error {
	s.set(StateConnecting)

	b := retry.NewExponential(s.cfg.BaseBackoff)
	b = retry.WithCappedDuration(s.cfg.MaxBackoff, b)
	b = retry.WithMaxRetries(s.cfg.MaxRetries, b)

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := s.p.Ping(ctx); err != nil {
			s.log.Warn("cache ping failed", zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.set(StateConnected)
	return nil
}

// watch probes a connected backend. It returns false when ctx is done and
// true when the connection was lost.
func (s *Supervisor) watch(ctx context.Context) bool {
	t := time.NewTicker(s.cfg.ProbeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			if err := s.p.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return false
				}
				s.log.Warn("cache connection lost", zap.Error(err))
				s.set(StateDisconnected)
				return true
			}
		}
	}
}
