package messaging

import (
	"sync"

	"proconnect/internal/models"
)

// Index derives the conversation list from the summary feed and the local threads.
// List recomputes on every call; nothing is pushed.
type Index struct {
	threads *ThreadCache

	mu   sync.RWMutex
	feed map[uint]models.ConversationSummary
}

// NewIndex creates an index over threads.
func NewIndex(threads *ThreadCache) *Index {
	return &Index{
		threads: threads,
		feed:    make(map[uint]models.ConversationSummary),
	}
}

// SetFeed replaces the last polled summary feed.
func (x *Index) SetFeed(summaries []models.ConversationSummary) {
	feed := make(map[uint]models.ConversationSummary, len(summaries))
	for _, s := range summaries {
		feed[s.CounterpartID] = s
	}
	x.mu.Lock()
	x.feed = feed
	x.mu.Unlock()
}

// List returns one summary per counterpart with at least one message, most recent first.
func (x *Index) List() []models.ConversationSummary {
	x.mu.RLock()
	feed := make(map[uint]models.ConversationSummary, len(x.feed))
	for k, v := range x.feed {
		feed[k] = v
	}
	x.mu.RUnlock()

	seen := make(map[uint]struct{}, len(feed))
	out := make([]models.ConversationSummary, 0, len(feed))
	for _, cp := range x.threads.Counterparts() {
		seen[cp] = struct{}{}
		s, _ := x.summarize(cp, feed)
		out = append(out, s)
	}
	for cp := range feed {
		if _, ok := seen[cp]; ok {
			continue
		}
		if s, ok := x.summarize(cp, feed); ok {
			out = append(out, s)
		}
	}

	models.SortConversations(out)
	return out
}

// UnreadCountFor returns the unread count shown for one counterpart.
func (x *Index) UnreadCountFor(counterpartID uint) int {
	x.mu.RLock()
	fs, ok := x.feed[counterpartID]
	x.mu.RUnlock()
	return x.unread(counterpartID, fs, ok)
}

// TotalUnread sums unread counts over the whole list.
func (x *Index) TotalUnread() int {
	total := 0
	for _, s := range x.List() {
		total += s.UnreadCount
	}
	return total
}

func (x *Index) summarize(cp uint, feed map[uint]models.ConversationSummary) (models.ConversationSummary, bool) {
	fs, inFeed := feed[cp]
	s := models.ConversationSummary{CounterpartID: cp}
	have := false

	if inFeed && !fs.LastMessage.Timestamp.IsZero() {
		s.LastMessage = fs.LastMessage
		have = true
	}
	if last, ok := x.threads.Last(cp); ok {
		if !have || last.CreatedAt.After(s.LastMessage.Timestamp) {
			s.LastMessage = models.LastMessageOf(&last)
		}
		have = true
	}
	s.UnreadCount = x.unread(cp, fs, inFeed)
	return s, have
}

// unread prefers the reconciled thread. The feed only counts until the thread
// is loaded, and not at all once the viewer has read past the feed's newest message.
func (x *Index) unread(cp uint, fs models.ConversationSummary, inFeed bool) int {
	if x.threads.Loaded(cp) {
		return x.threads.UnreadCount(cp)
	}
	if !inFeed {
		return 0
	}
	if read := x.threads.LastReadAt(cp); !read.IsZero() && !read.Before(fs.LastMessage.Timestamp) {
		return 0
	}
	return fs.UnreadCount
}
