// Package messaging keeps the viewer's message threads and conversation list,
// merging optimistic sends with what the server confirms.
package messaging

import (
	"slices"
	"sort"
	"sync"
	"time"

	"proconnect/internal/models"

	"github.com/google/uuid"
)

// DefaultMaxCycles is how many reconciliation passes a pending send may go unmatched.
const DefaultMaxCycles = 3

type optimisticEntry struct {
	msg    models.Message
	cycles int
}

type thread struct {
	confirmed  []models.Message // sorted by CompareMessages, unique by ID
	ids        map[uint]int     // id -> index in confirmed
	optimistic []*optimisticEntry
	loaded     bool
	lastReadAt time.Time
}

func newThread() *thread {
	return &thread{ids: make(map[uint]int)}
}

func (t *thread) reindex() {
	clear(t.ids)
	for i, m := range t.confirmed {
		t.ids[m.ID] = i
	}
}

// insert places m in timestamp order. Messages already rendered keep their relative order.
func (t *thread) insert(m models.Message) {
	i := sort.Search(len(t.confirmed), func(i int) bool {
		return models.CompareMessages(&t.confirmed[i], &m) > 0
	})
	t.confirmed = slices.Insert(t.confirmed, i, m)
	t.reindex()
}

func (t *thread) optimisticIndex(correlationID string) int {
	for i, e := range t.optimistic {
		if e.msg.CorrelationID == correlationID {
			return i
		}
	}
	return -1
}

// matchOptimistic finds the oldest optimistic entry with m's sender and content.
func (t *thread) matchOptimistic(m models.Message) int {
	for i, e := range t.optimistic {
		if e.msg.SenderID == m.SenderID && e.msg.Content == m.Content {
			return i
		}
	}
	return -1
}

// ReconcileResult reports what one reconciliation pass changed.
type ReconcileResult struct {
	Matched  int
	Inserted int
	Updated  int
	// Failed holds the optimistic entries that went failed during this pass.
	Failed []models.Message
	// NewIncoming counts inserted messages sent by the counterpart.
	NewIncoming int
	// StaleReads counts incoming messages read locally that the server still reports unread.
	StaleReads int
}

// ThreadCache holds one log per counterpart: confirmed messages followed by optimistic ones.
type ThreadCache struct {
	viewerID  uint
	maxCycles int
	now       func() time.Time

	mu      sync.RWMutex
	threads map[uint]*thread
}

// NewThreadCache creates an empty cache. maxCycles below one uses DefaultMaxCycles.
func NewThreadCache(viewerID uint, maxCycles int) *ThreadCache {
	if maxCycles < 1 {
		maxCycles = DefaultMaxCycles
	}
	return &ThreadCache{
		viewerID:  viewerID,
		maxCycles: maxCycles,
		now:       func() time.Time { return time.Now().UTC() },
		threads:   make(map[uint]*thread),
	}
}

// ViewerID returns the user the cache belongs to.
func (c *ThreadCache) ViewerID() uint {
	return c.viewerID
}

func (c *ThreadCache) thread(counterpartID uint) *thread {
	t, ok := c.threads[counterpartID]
	if !ok {
		t = newThread()
		c.threads[counterpartID] = t
	}
	return t
}

// Append adds a pending message from the viewer and returns it with its correlation id.
func (c *ThreadCache) Append(counterpartID uint, content string) models.Message {
	msg := models.Message{
		SenderID:      c.viewerID,
		ReceiverID:    counterpartID,
		Content:       content,
		CreatedAt:     c.now(),
		CorrelationID: uuid.NewString(),
		State:         models.MessagePending,
	}

	c.mu.Lock()
	t := c.thread(counterpartID)
	t.optimistic = append(t.optimistic, &optimisticEntry{msg: msg})
	c.mu.Unlock()
	return msg
}

// Confirm replaces the optimistic entry with the server's copy. It reports false
// when the entry is gone, e.g. a poll already matched it.
func (c *ThreadCache) Confirm(counterpartID uint, correlationID string, confirmed models.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.thread(counterpartID)
	i := t.optimisticIndex(correlationID)
	if i < 0 {
		return false
	}
	t.optimistic = slices.Delete(t.optimistic, i, i+1)

	confirmed.CorrelationID = ""
	confirmed.State = models.MessageConfirmed
	if _, dup := t.ids[confirmed.ID]; !dup {
		t.insert(confirmed)
	}
	return true
}

// MarkFailed flags an optimistic entry for resend or removal.
func (c *ThreadCache) MarkFailed(counterpartID uint, correlationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.thread(counterpartID)
	i := t.optimisticIndex(correlationID)
	if i < 0 {
		return false
	}
	t.optimistic[i].msg.State = models.MessageFailed
	return true
}

// Reconcile merges server messages into the thread.
//
// A message whose id is known refreshes its read state. Otherwise it replaces the
// oldest optimistic entry with the same sender and content, or is inserted in
// timestamp order. Pending entries left unmatched age one cycle and turn failed
// after maxCycles passes.
func (c *ThreadCache) Reconcile(counterpartID uint, serverMessages []models.Message) ReconcileResult {
	var res ReconcileResult

	incoming := slices.Clone(serverMessages)
	slices.SortStableFunc(incoming, func(a, b models.Message) int {
		return models.CompareMessages(&a, &b)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.thread(counterpartID)

	for _, m := range incoming {
		m.CorrelationID = ""
		m.State = models.MessageConfirmed

		if i, ok := t.ids[m.ID]; ok {
			existing := &t.confirmed[i]
			switch {
			case m.ReadAt != nil && (existing.ReadAt == nil || !existing.ReadAt.Equal(*m.ReadAt)):
				existing.ReadAt = m.ReadAt
				res.Updated++
			case m.ReadAt == nil && existing.ReadAt != nil && existing.SenderID == counterpartID:
				// read locally, backend not caught up yet
				res.StaleReads++
			}
			continue
		}

		if j := t.matchOptimistic(m); j >= 0 {
			t.optimistic = slices.Delete(t.optimistic, j, j+1)
			res.Matched++
		} else {
			res.Inserted++
			if m.SenderID == counterpartID {
				res.NewIncoming++
			}
		}
		t.insert(m)
	}

	for _, e := range t.optimistic {
		if e.msg.State != models.MessagePending {
			continue
		}
		e.cycles++
		if e.cycles >= c.maxCycles {
			e.msg.State = models.MessageFailed
			res.Failed = append(res.Failed, e.msg)
		}
	}
	t.loaded = true
	return res
}

// MarkReadLocal stamps every unread incoming message as read at and returns how many changed.
func (c *ThreadCache) MarkReadLocal(counterpartID uint, at time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.thread(counterpartID)
	n := 0
	for i := range t.confirmed {
		m := &t.confirmed[i]
		if m.SenderID == counterpartID && m.ReadAt == nil {
			read := at
			m.ReadAt = &read
			n++
		}
	}
	if at.After(t.lastReadAt) {
		t.lastReadAt = at
	}
	return n
}

// Messages returns the rendered thread: confirmed in order, then optimistic in send order.
func (c *ThreadCache) Messages(counterpartID uint) []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[counterpartID]
	if !ok {
		return nil
	}
	out := make([]models.Message, 0, len(t.confirmed)+len(t.optimistic))
	out = append(out, t.confirmed...)
	for _, e := range t.optimistic {
		out = append(out, e.msg)
	}
	return out
}

// UnreadCount counts incoming messages without a read timestamp.
func (c *ThreadCache) UnreadCount(counterpartID uint) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[counterpartID]
	if !ok {
		return 0
	}
	n := 0
	for _, m := range t.confirmed {
		if m.SenderID == counterpartID && m.ReadAt == nil {
			n++
		}
	}
	return n
}

// Last returns the newest message in the thread, optimistic entries included.
func (c *ThreadCache) Last(counterpartID uint) (models.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[counterpartID]
	if !ok {
		return models.Message{}, false
	}
	if n := len(t.optimistic); n > 0 {
		return t.optimistic[n-1].msg, true
	}
	if n := len(t.confirmed); n > 0 {
		return t.confirmed[n-1], true
	}
	return models.Message{}, false
}

// Loaded reports whether the thread has been reconciled against the server at least once.
func (c *ThreadCache) Loaded(counterpartID uint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[counterpartID]
	return ok && t.loaded
}

// LastReadAt is when the viewer last read the thread locally.
func (c *ThreadCache) LastReadAt(counterpartID uint) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.threads[counterpartID]; ok {
		return t.lastReadAt
	}
	return time.Time{}
}

// Failed lists the thread's optimistic entries flagged failed.
func (c *ThreadCache) Failed(counterpartID uint) []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[counterpartID]
	if !ok {
		return nil
	}
	var out []models.Message
	for _, e := range t.optimistic {
		if e.msg.State == models.MessageFailed {
			out = append(out, e.msg)
		}
	}
	return out
}

// Find returns the optimistic entry with correlationID and its counterpart.
func (c *ThreadCache) Find(correlationID string) (models.Message, uint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for cp, t := range c.threads {
		if i := t.optimisticIndex(correlationID); i >= 0 {
			return t.optimistic[i].msg, cp, true
		}
	}
	return models.Message{}, 0, false
}

// Retry moves a failed entry back to pending with a fresh cycle budget.
func (c *ThreadCache) Retry(counterpartID uint, correlationID string) (models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.thread(counterpartID)
	i := t.optimisticIndex(correlationID)
	if i < 0 || t.optimistic[i].msg.State != models.MessageFailed {
		return models.Message{}, false
	}
	e := t.optimistic[i]
	e.msg.State = models.MessagePending
	e.cycles = 0
	return e.msg, true
}

// Discard removes an optimistic entry.
func (c *ThreadCache) Discard(counterpartID uint, correlationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.thread(counterpartID)
	i := t.optimisticIndex(correlationID)
	if i < 0 {
		return false
	}
	t.optimistic = slices.Delete(t.optimistic, i, i+1)
	return true
}

// Counterparts lists every counterpart with at least one message, ascending.
func (c *ThreadCache) Counterparts() []uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]uint, 0, len(c.threads))
	for cp, t := range c.threads {
		if len(t.confirmed) > 0 || len(t.optimistic) > 0 {
			out = append(out, cp)
		}
	}
	slices.Sort(out)
	return out
}
