package device

import (
	"context"
	"sync"
	"time"
)

// SweepNotifier is called with the evicted records after each sweep that
// removed at least one device. It runs outside the registry lock.
type SweepNotifier func(evicted []Record)

// Sweeper periodically evicts records that have aged past the removal
// threshold. The registry's read paths already hide such records, so the
// sweeper only reclaims memory and quota slots; a missed tick is harmless.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	notify   SweepNotifier
	logger   Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSweeper creates a sweeper for the given registry. A nil notifier is
// allowed. Intervals below one second are raised to one second.
func NewSweeper(registry *Registry, interval time.Duration, notify SweepNotifier) *Sweeper {
	if interval < time.Second {
		interval = time.Second
	}
	return &Sweeper{
		registry: registry,
		interval: interval,
		notify:   notify,
		logger:   noopLogger{},
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// Start launches the sweep loop. It returns immediately; the loop runs
// until the context is cancelled or Close is called.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("cleanup sweeper started", "interval", s.interval)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("cleanup sweeper stopped")
				return
			case <-ticker.C:
				s.RunOnce()
			}
		}
	}()
}

// RunOnce performs a single sweep. It is also invoked directly by the
// manual cleanup endpoint. Returns the evicted records.
func (s *Sweeper) RunOnce() []Record {
	evicted := s.registry.Sweep()
	if len(evicted) == 0 {
		return nil
	}

	s.logger.Info("sweep evicted stale devices", "count", len(evicted))
	if s.notify != nil {
		s.notify(evicted)
	}
	return evicted
}

// Close stops the sweep loop and waits for it to exit.
func (s *Sweeper) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
	})
}
