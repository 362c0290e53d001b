package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler runs delayed tasks keyed by booking id on a fixed pool of workers.
// A task that was cancelled before its timer fired never runs; a task that is
// already queued or running is not interrupted, so handlers must re-check state.
type Scheduler struct {
	workers int
	queue   chan job
	logger  *zerolog.Logger

	mu      sync.Mutex
	timers  map[string]map[string]*entry
	nextGen uint64
	done    chan struct{}
	closed  bool
}

type entry struct {
	gen   uint64
	timer *time.Timer
}

type job struct {
	bookingID string
	kind      string
	fn        func(ctx context.Context)
}

func NewScheduler(workers int, logger *zerolog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Scheduler{
		workers: workers,
		queue:   make(chan job, workers*16),
		logger:  logger,
		timers:  make(map[string]map[string]*entry),
		done:    make(chan struct{}),
	}
}

// Schedule runs fn at the given time. A pending task with the same booking id
// and kind is replaced. Times in the past fire immediately.
func (s *Scheduler) Schedule(bookingID, kind string, at time.Time, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	kinds, ok := s.timers[bookingID]
	if !ok {
		kinds = make(map[string]*entry)
		s.timers[bookingID] = kinds
	}
	if prev, ok := kinds[kind]; ok {
		prev.timer.Stop()
	}

	s.nextGen++
	gen := s.nextGen
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	kinds[kind] = &entry{
		gen: gen,
		timer: time.AfterFunc(delay, func() {
			s.fire(bookingID, kind, gen, fn)
		}),
	}

	s.logger.Debug().
		Str("booking_id", bookingID).
		Str("kind", kind).
		Time("at", at).
		Msg("timer scheduled")
}

// Cancel stops every pending timer of the booking.
func (s *Scheduler) Cancel(bookingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.timers[bookingID] {
		e.timer.Stop()
	}
	delete(s.timers, bookingID)
}

// Pending returns the number of timers that have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, kinds := range s.timers {
		n += len(kinds)
	}
	return n
}

func (s *Scheduler) fire(bookingID, kind string, gen uint64, fn func(ctx context.Context)) {
	s.mu.Lock()
	kinds := s.timers[bookingID]
	current, ok := kinds[kind]
	if !ok || current.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(kinds, kind)
	if len(kinds) == 0 {
		delete(s.timers, bookingID)
	}
	s.mu.Unlock()

	select {
	case s.queue <- job{bookingID: bookingID, kind: kind, fn: fn}:
	case <-s.done:
	}
}

// Start runs the worker pool until ctx is done, then stops all pending timers.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Int("workers", s.workers).Msg("scheduler started")
	defer s.logger.Info().Msg("scheduler stopped")

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-s.queue:
					s.run(ctx, j)
				}
			}
		}()
	}

	<-ctx.Done()
	s.stop()
	wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Str("booking_id", j.bookingID).
				Str("kind", j.kind).
				Msg("timer task panicked")
		}
	}()
	j.fn(ctx)
}

func (s *Scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, kinds := range s.timers {
		for _, e := range kinds {
			e.timer.Stop()
		}
		delete(s.timers, id)
	}
	close(s.done)
}
