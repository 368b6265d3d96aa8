package converter

import (
	"context"
	"sync"
)

// sequencer hands out tickets in queueing order and lets holders run a
// critical section in ticket order. A ticket is served once every lower
// ticket is done; Done may be called out of order (a failed job releases its
// ticket without waiting). A disabled sequencer still numbers tickets but
// never blocks.
type sequencer struct {
	enabled bool

	mu      sync.Mutex
	issued  int
	next    int
	done    map[int]bool
	waiters map[int]chan struct{}
}

func newSequencer(enabled bool) *sequencer {
	return &sequencer{
		enabled: enabled,
		done:    make(map[int]bool),
		waiters: make(map[int]chan struct{}),
	}
}

// Ticket returns the next ticket number.
func (s *sequencer) Ticket() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.issued
	s.issued++
	return t
}

// Wait blocks until ticket t is served.
func (s *sequencer) Wait(ctx context.Context, t int) error {
	if !s.enabled {
		return ctx.Err()
	}
	s.mu.Lock()
	if s.next == t {
		s.mu.Unlock()
		return nil
	}
	ch, ok := s.waiters[t]
	if !ok {
		ch = make(chan struct{})
		s.waiters[t] = ch
	}
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done releases ticket t. Calling it twice for the same ticket is a no-op.
func (s *sequencer) Done(t int) {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t < s.next || s.done[t] {
		return
	}
	s.done[t] = true
	for s.done[s.next] {
		delete(s.done, s.next)
		s.next++
	}
	if ch, ok := s.waiters[s.next]; ok {
		close(ch)
		delete(s.waiters, s.next)
	}
}

// run executes fn while holding ticket t.
func (s *sequencer) run(ctx context.Context, t int, fn func() error) error {
	if err := s.Wait(ctx, t); err != nil {
		s.Done(t)
		return err
	}
	defer s.Done(t)
	return fn()
}
