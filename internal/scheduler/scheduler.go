// Package scheduler runs the periodic sweeps (reconciliation, rating
// timeout) with an injectable clock so timeout logic stays testable without
// real waiting.
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock abstracts wall-clock reads for the time-based business rules.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Job is a unit of periodic work. Jobs receive a context cancelled on Stop.
type Job func(ctx context.Context)

// Scheduler owns a set of cancellable periodic loops.
type Scheduler struct {
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{logger: logger, ctx: ctx, cancel: cancel}
}

// Every runs job each interval until Stop. When immediate is set the first
// run happens right away. Panics inside a job are recovered and logged; the
// loop keeps running.
func (s *Scheduler) Every(name string, interval time.Duration, immediate bool, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if immediate {
			s.run(name, job)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.run(name, job)
			}
		}
	}()
}

func (s *Scheduler) run(name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked",
				zap.String("job", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	start := time.Now()
	job(s.ctx)
	s.logger.Debug("scheduled job finished",
		zap.String("job", name),
		zap.Duration("duration", time.Since(start)))
}

// Stop cancels all loops and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}
