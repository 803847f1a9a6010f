package services

import (
	"sync"
	"sync/atomic"

	"face-attendance/internal/models"
	"face-attendance/internal/observability"
)

// RecordChange is published after a record revision is committed
type RecordChange struct {
	Record   *models.AttendanceRecord
	Previous *models.AttendanceRecord // nil for the first revision
}

// FirstSighting reports whether this revision is the first observation of the employee for the shift
func (c RecordChange) FirstSighting() bool {
	if c.Record.FirstSeenAt == nil {
		return false
	}
	return c.Previous == nil || c.Previous.FirstSeenAt == nil
}

// FeedStats holds per-subscriber delivery counters
type FeedStats struct {
	Sent    uint64
	Dropped uint64
}

type feedSubscriber struct {
	name    string
	ch      chan RecordChange
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Feed fans committed ledger changes out to downstream consumers. Publishing never
// blocks: a subscriber whose buffer is full loses the change and the drop is counted.
// Consumers needing durability read the ledger itself.
type Feed struct {
	mu      sync.RWMutex
	subs    []*feedSubscriber
	closed  bool
	metrics *observability.Metrics
}

func NewFeed(metrics *observability.Metrics) *Feed {
	return &Feed{metrics: metrics}
}

// Subscribe registers a named consumer with the given buffer size
func (f *Feed) Subscribe(name string, buffer int) <-chan RecordChange {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &feedSubscriber{name: name, ch: make(chan RecordChange, buffer)}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(sub.ch)
		return sub.ch
	}
	f.subs = append(f.subs, sub)
	return sub.ch
}

// Publish offers change to every subscriber without blocking
func (f *Feed) Publish(change RecordChange) {
	if f == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, sub := range f.subs {
		select {
		case sub.ch <- change:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
			f.metrics.RecordFeedDrop(sub.name)
		}
	}
}

// Stats returns a snapshot of per-subscriber counters
func (f *Feed) Stats() map[string]FeedStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make(map[string]FeedStats, len(f.subs))
	for _, sub := range f.subs {
		stats[sub.name] = FeedStats{Sent: sub.sent.Load(), Dropped: sub.dropped.Load()}
	}
	return stats
}

// Close ends every subscription
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, sub := range f.subs {
		close(sub.ch)
	}
}
