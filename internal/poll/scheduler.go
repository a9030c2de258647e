package poll

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FetchFunc re-fetches authoritative state. Errors are logged; the cadence
// never changes because of them.
type FetchFunc func(ctx context.Context) error

// Scheduler is the unconditional polling fallback: it re-fetches on a fixed
// interval whether or not the bus is healthy, backstopping any frame dropped
// during a network blip. Losing one cycle is tolerable, so a failed fetch
// must never starve the next one.
type Scheduler struct {
	logger *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{logger: logger}
}

// Start invokes fetch immediately, then every interval, until Stop is called
// or ctx ends. Starting an already started scheduler restarts it.
func (s *Scheduler) Start(ctx context.Context, fetch FetchFunc, interval time.Duration) {
	s.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)

		s.runOnce(runCtx, fetch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runOnce(runCtx, fetch)
			}
		}
	}()
}

// Stop cancels the polling loop and waits for the current cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Scheduler) runOnce(ctx context.Context, fetch FetchFunc) {
	if err := fetch(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Infow("poll cycle failed, keeping cadence", "error", err)
	}
}
