package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"proconnect/internal/messaging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConns struct{ calls atomic.Int32 }

func (f *fakeConns) Refresh(context.Context) error {
	f.calls.Add(1)
	return nil
}

type fakeMsgs struct {
	mu            sync.Mutex
	summaries     int
	threadCalls   map[uint]int
	markCalls     map[uint]int
	nextResult    messaging.ReconcileResult
	threadErr     error
	blockThread   chan struct{}
	threadStarted chan struct{}
}

func newFakeMsgs() *fakeMsgs {
	return &fakeMsgs{threadCalls: make(map[uint]int), markCalls: make(map[uint]int)}
}

func (f *fakeMsgs) RefreshConversations(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries++
	return nil
}

func (f *fakeMsgs) RefreshThread(ctx context.Context, cp uint) (messaging.ReconcileResult, error) {
	f.mu.Lock()
	f.threadCalls[cp]++
	res, err := f.nextResult, f.threadErr
	f.nextResult = messaging.ReconcileResult{}
	block, started := f.blockThread, f.threadStarted
	f.mu.Unlock()

	if block != nil {
		if started != nil {
			select {
			case started <- struct{}{}:
			default:
			}
		}
		select {
		case <-block:
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
	return res, err
}

func (f *fakeMsgs) MarkRead(_ context.Context, cp uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls[cp]++
	return nil
}

func (f *fakeMsgs) counts(cp uint) (thread, mark int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threadCalls[cp], f.markCalls[cp]
}

func (f *fakeMsgs) summaryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaries
}

func fastIntervals() Intervals {
	return Intervals{Summary: 10 * time.Millisecond, Thread: 5 * time.Millisecond}
}

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("task %s did not exit", task.Name())
	}
}

func TestScheduler_SummaryLoopStartsAndStops(t *testing.T) {
	conns, msgs := &fakeConns{}, newFakeMsgs()
	s := NewScheduler(1, conns, msgs, fastIntervals())
	defer s.Stop()

	task := s.ShowConversations()
	require.NotNil(t, task)
	assert.Same(t, task, s.ShowConversations(), "one summary loop at a time")

	require.Eventually(t, func() bool { return msgs.summaryCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, conns.calls.Load(), int32(2))

	s.HideConversations()
	waitDone(t, task)

	after := msgs.summaryCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, msgs.summaryCount(), "no polls after hide")
}

func TestScheduler_OpenThreadRefreshesAndMarksReadFirst(t *testing.T) {
	msgs := newFakeMsgs()
	s := NewScheduler(1, &fakeConns{}, msgs, Intervals{Summary: time.Hour, Thread: time.Hour})
	defer s.Stop()

	task, err := s.OpenThread(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, task)

	threads, marks := msgs.counts(2)
	assert.Equal(t, 1, threads)
	assert.Equal(t, 1, marks)

	again, err := s.OpenThread(context.Background(), 2)
	require.NoError(t, err)
	assert.Same(t, task, again)
	threads, _ = msgs.counts(2)
	assert.Equal(t, 1, threads, "already open")
	assert.Equal(t, []uint{2}, s.ActiveThreads())
}

func TestScheduler_OpenThreadClosesPreviousThread(t *testing.T) {
	msgs := newFakeMsgs()
	s := NewScheduler(1, &fakeConns{}, msgs, fastIntervals())
	defer s.Stop()

	first, err := s.OpenThread(context.Background(), 2)
	require.NoError(t, err)
	second, err := s.OpenThread(context.Background(), 3)
	require.NoError(t, err)

	waitDone(t, first)
	assert.Equal(t, []uint{3}, s.ActiveThreads())
	select {
	case <-second.Done():
		t.Fatal("current thread loop stopped")
	default:
	}

	n, _ := msgs.counts(2)
	time.Sleep(30 * time.Millisecond)
	after, _ := msgs.counts(2)
	assert.Equal(t, n, after, "previous thread is no longer polled")
}

func TestScheduler_ThreadLoopMarksReadOnNewIncoming(t *testing.T) {
	msgs := newFakeMsgs()
	s := NewScheduler(1, &fakeConns{}, msgs, fastIntervals())
	defer s.Stop()

	_, err := s.OpenThread(context.Background(), 2)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, _ := msgs.counts(2)
		return n >= 3
	}, 2*time.Second, 5*time.Millisecond)
	_, marks := msgs.counts(2)
	assert.Equal(t, 1, marks, "quiet polls do not mark read")

	msgs.mu.Lock()
	msgs.nextResult = messaging.ReconcileResult{Inserted: 1, NewIncoming: 1}
	msgs.mu.Unlock()

	require.Eventually(t, func() bool {
		_, m := msgs.counts(2)
		return m == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_CloseThreadIsObservable(t *testing.T) {
	msgs := newFakeMsgs()
	s := NewScheduler(1, &fakeConns{}, msgs, fastIntervals())
	defer s.Stop()

	task, err := s.OpenThread(context.Background(), 2)
	require.NoError(t, err)
	s.CloseThread(2)
	waitDone(t, task)
	assert.Empty(t, s.ActiveThreads())

	n, _ := msgs.counts(2)
	time.Sleep(30 * time.Millisecond)
	after, _ := msgs.counts(2)
	assert.Equal(t, n, after, "no polls after close")

	s.CloseThread(2)
}

func TestScheduler_CloseDoesNotAbortInFlightPoll(t *testing.T) {
	msgs := newFakeMsgs()
	s := NewScheduler(1, &fakeConns{}, msgs, fastIntervals())
	defer s.Stop()

	task, err := s.OpenThread(context.Background(), 2)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	msgs.mu.Lock()
	msgs.blockThread = release
	msgs.threadStarted = started
	msgs.mu.Unlock()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("poll never started")
	}
	s.CloseThread(2)

	select {
	case <-task.Done():
		t.Fatal("loop exited while its request was still running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	waitDone(t, task)
}

func TestScheduler_StopWaitsAndRefusesNewLoops(t *testing.T) {
	msgs := newFakeMsgs()
	msgs.threadErr = errors.New("offline")
	s := NewScheduler(1, &fakeConns{}, msgs, fastIntervals())

	summary := s.ShowConversations()
	thread, err := s.OpenThread(context.Background(), 2)
	require.Error(t, err, "initial refresh error is reported")
	require.NotNil(t, thread, "loop still starts")

	s.Stop()
	for _, task := range []*Task{summary, thread} {
		select {
		case <-task.Done():
		default:
			t.Fatalf("%s still running after Stop", task.Name())
		}
	}

	assert.Nil(t, s.ShowConversations())
	_, err = s.OpenThread(context.Background(), 3)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestNewSchedulerDefaults(t *testing.T) {
	s := NewScheduler(1, &fakeConns{}, newFakeMsgs(), Intervals{})
	defer s.Stop()
	assert.Equal(t, DefaultIntervals(), s.intervals)
}
