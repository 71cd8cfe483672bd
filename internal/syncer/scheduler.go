// Package syncer schedules the periodic refreshes that keep a viewer's local
// connection and message state close to the backend.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"proconnect/internal/messaging"
	"proconnect/internal/observability"
)

// ConnectionRefresher re-pulls the viewer's edge set.
type ConnectionRefresher interface {
	Refresh(ctx context.Context) error
}

// MessageSyncer is what the scheduler needs from the messaging service.
type MessageSyncer interface {
	RefreshConversations(ctx context.Context) error
	RefreshThread(ctx context.Context, counterpartID uint) (messaging.ReconcileResult, error)
	MarkRead(ctx context.Context, counterpartID uint) error
}

// ErrStopped is returned when a loop is requested after Stop.
var ErrStopped = errors.New("scheduler stopped")

// Intervals configures poll cadence.
type Intervals struct {
	Summary time.Duration
	Thread  time.Duration
}

// DefaultIntervals polls summaries every 10s and the open thread every 5s.
func DefaultIntervals() Intervals {
	return Intervals{Summary: 10 * time.Second, Thread: 5 * time.Second}
}

// Task is one cancellable periodic loop.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Name identifies the task in logs and metrics.
func (t *Task) Name() string {
	return t.name
}

// Done is closed once the loop has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Scheduler runs at most one summary loop and one loop for the open thread.
// Stopping a loop stops further polls; a request already in flight finishes.
type Scheduler struct {
	conns     ConnectionRefresher
	msgs      MessageSyncer
	intervals Intervals
	log       *observability.SyncLogger

	// lifetime bounds every request the scheduler issues
	lifetime context.Context
	shutdown context.CancelFunc

	mu      sync.Mutex
	summary *Task
	threads map[uint]*Task
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with no active loops.
func NewScheduler(viewerID uint, conns ConnectionRefresher, msgs MessageSyncer, intervals Intervals) *Scheduler {
	def := DefaultIntervals()
	if intervals.Summary <= 0 {
		intervals.Summary = def.Summary
	}
	if intervals.Thread <= 0 {
		intervals.Thread = def.Thread
	}
	lifetime, shutdown := context.WithCancel(context.Background())
	return &Scheduler{
		conns:     conns,
		msgs:      msgs,
		intervals: intervals,
		log:       observability.NewSyncLogger("scheduler", viewerID),
		lifetime:  lifetime,
		shutdown:  shutdown,
		threads:   make(map[uint]*Task),
	}
}

// ShowConversations starts the summary loop if it is not running.
func (s *Scheduler) ShowConversations() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if s.summary != nil {
		return s.summary
	}
	s.summary = s.spawn("summary", s.intervals.Summary, s.pollSummary)
	return s.summary
}

// HideConversations stops the summary loop.
func (s *Scheduler) HideConversations() {
	s.mu.Lock()
	t := s.summary
	s.summary = nil
	s.mu.Unlock()
	if t != nil {
		t.cancel()
	}
}

// OpenThread refreshes the thread, marks it read and starts its loop, closing
// whichever thread loop was open before. The first refresh runs before
// returning so callers see a loaded thread.
func (s *Scheduler) OpenThread(ctx context.Context, counterpartID uint) (*Task, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	if t, ok := s.threads[counterpartID]; ok {
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	_, err := s.msgs.RefreshThread(ctx, counterpartID)
	if err != nil {
		s.log.Warn(ctx, "initial thread refresh failed", err, map[string]interface{}{"counterpart_id": counterpartID})
	}
	if merr := s.msgs.MarkRead(ctx, counterpartID); merr != nil && err == nil {
		err = merr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	if t, ok := s.threads[counterpartID]; ok {
		return t, err
	}
	for cp, other := range s.threads {
		other.cancel()
		delete(s.threads, cp)
	}
	t := s.spawn(fmt.Sprintf("thread:%d", counterpartID), s.intervals.Thread, func(ctx context.Context) error {
		return s.pollThread(ctx, counterpartID)
	})
	s.threads[counterpartID] = t
	return t, err
}

// CloseThread stops the thread's loop without waiting for it to exit.
func (s *Scheduler) CloseThread(counterpartID uint) {
	s.mu.Lock()
	t, ok := s.threads[counterpartID]
	delete(s.threads, counterpartID)
	s.mu.Unlock()
	if ok {
		t.cancel()
	}
}

// ActiveThreads lists counterparts whose loop is running; at most one.
func (s *Scheduler) ActiveThreads() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint, 0, len(s.threads))
	for cp := range s.threads {
		out = append(out, cp)
	}
	return out
}

// Stop cancels every loop and in-flight request and waits for the loops to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.summary = nil
	s.threads = make(map[uint]*Task)
	s.mu.Unlock()

	s.shutdown()
	s.wg.Wait()
}

// spawn starts a loop. Callers hold s.mu.
func (s *Scheduler) spawn(name string, every time.Duration, poll func(context.Context) error) *Task {
	taskCtx, cancel := context.WithCancel(s.lifetime)
	t := &Task{name: name, cancel: cancel, done: make(chan struct{})}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(t.done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-taskCtx.Done():
				return
			case <-ticker.C:
			}
			// cancellation wins over a tick that fired at the same time
			if taskCtx.Err() != nil {
				return
			}
			outcome := "ok"
			if err := poll(s.lifetime); err != nil {
				outcome = "error"
				s.log.Warn(s.lifetime, "poll failed; state left stale", err, map[string]interface{}{"task": name})
			}
			observability.SyncPolls.WithLabelValues(taskLabel(name), outcome).Inc()
		}
	}()
	return t
}

func taskLabel(name string) string {
	if name == "summary" {
		return name
	}
	return "thread"
}

func (s *Scheduler) pollSummary(ctx context.Context) error {
	cerr := s.conns.Refresh(ctx)
	merr := s.msgs.RefreshConversations(ctx)
	if cerr != nil {
		return cerr
	}
	return merr
}

// pollThread reconciles the open thread and marks it read when something new arrived
// or the backend has not seen an earlier read yet.
func (s *Scheduler) pollThread(ctx context.Context, counterpartID uint) error {
	res, err := s.msgs.RefreshThread(ctx, counterpartID)
	if err != nil {
		return err
	}
	if res.NewIncoming > 0 || res.StaleReads > 0 {
		return s.msgs.MarkRead(ctx, counterpartID)
	}
	return nil
}
