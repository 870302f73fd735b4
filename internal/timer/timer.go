// Package timer drives the two display timers of a room view: the elapsed
// round clock and the between-rounds countdown. All time operations go
// through a clockwork.Clock so tests can run against a fake clock.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// ElapsedTickInterval is how often the elapsed clock re-renders.
	ElapsedTickInterval = 250 * time.Millisecond
	// CountdownTickInterval is the resolution of the between-rounds
	// countdown.
	CountdownTickInterval = time.Second
)

// Service owns at most one elapsed timer and one countdown at a time.
// Starting either kind replaces a running instance of the same kind.
// Callbacks run on the timer goroutine; callers hand results back to their
// own sequencing loop.
type Service struct {
	clock clockwork.Clock

	mu              sync.Mutex
	cancelElapsed   context.CancelFunc
	cancelCountdown context.CancelFunc
}

// NewService returns a timer service on the given clock.
func NewService(clock clockwork.Clock) *Service {
	return &Service{clock: clock}
}

// FormatElapsed renders a wall-clock difference as mm:ss. Negative values
// clamp to 00:00.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	mins := int(d / time.Minute)
	secs := int(d%time.Minute) / int(time.Second)
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

// StartElapsed starts the elapsed round clock from an absolute start
// instant, replacing any running one. Each tick recomputes the display
// from the wall-clock difference, so drift never accumulates. The first
// tick fires immediately.
func (s *Service) StartElapsed(ctx context.Context, startedAt time.Time, tick func(display string)) {
	s.mu.Lock()
	if s.cancelElapsed != nil {
		s.cancelElapsed()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelElapsed = cancel
	s.mu.Unlock()

	go func() {
		ticker := s.clock.NewTicker(ElapsedTickInterval)
		defer ticker.Stop()

		tick(FormatElapsed(s.clock.Now().Sub(startedAt)))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				tick(FormatElapsed(s.clock.Now().Sub(startedAt)))
			}
		}
	}()

	log.Debug().Time("started_at", startedAt).Msg("elapsed round timer started")
}

// StopElapsed cancels the elapsed clock if one is running.
func (s *Service) StopElapsed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelElapsed != nil {
		s.cancelElapsed()
		s.cancelElapsed = nil
	}
}

// StartCountdown runs a fixed countdown of whole seconds, replacing any
// running one. tick is called immediately with the full count and then
// once per second with the remainder; done fires when it reaches zero.
func (s *Service) StartCountdown(ctx context.Context, seconds int, tick func(remaining int), done func()) {
	s.mu.Lock()
	if s.cancelCountdown != nil {
		s.cancelCountdown()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelCountdown = cancel
	s.mu.Unlock()

	go func() {
		ticker := s.clock.NewTicker(CountdownTickInterval)
		defer ticker.Stop()

		remaining := seconds
		tick(remaining)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				remaining--
				if remaining <= 0 {
					done()
					return
				}
				tick(remaining)
			}
		}
	}()

	log.Debug().Int("seconds", seconds).Msg("between-rounds countdown started")
}

// StopCountdown cancels the countdown if one is running.
func (s *Service) StopCountdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelCountdown != nil {
		s.cancelCountdown()
		s.cancelCountdown = nil
	}
}

// Stop cancels both timers.
func (s *Service) Stop() {
	s.StopElapsed()
	s.StopCountdown()
}
