// Package storage holds the dashboard's in-memory state: the latest fetched
// page of invocations, change notification for live views, and a bounded
// history of poll results.
package storage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tobert/trace-studio/internal/invocation"
)

// DefaultHistoryCapacity is the number of poll records kept.
const DefaultHistoryCapacity = 100

// Snapshot is the latest state of one fetched page.
type Snapshot struct {
	Generation  uint64                  `json:"generation"`
	Page        int                     `json:"page"`
	PageSize    int                     `json:"page_size"`
	Invocations []invocation.Invocation `json:"invocations"`
	Loaded      bool                    `json:"loaded"`
	FetchedAt   time.Time               `json:"fetched_at"`
	Err         string                  `json:"error,omitempty"`
	// NewIDs lists ids (at any depth) that were not in the previous
	// snapshot of the same page.
	NewIDs []string `json:"new_ids,omitempty"`
}

// PollRecord captures one fetch attempt.
type PollRecord struct {
	At       time.Time     `json:"at"`
	Page     int           `json:"page"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration_ns"`
	Err      string        `json:"error,omitempty"`
}

// Feed holds the latest page and notifies subscribers when it changes.
type Feed struct {
	mu       sync.RWMutex
	snapshot Snapshot

	generation atomic.Uint64
	polls      atomic.Uint64
	failures   atomic.Uint64
	history    *RingBuffer[PollRecord]

	subscriberMu     sync.Mutex
	subscribers      map[uint64]chan struct{}
	nextSubscriberID uint64

	startTime time.Time
}

// NewFeed creates an empty feed. Until the first successful Publish the
// snapshot reports Loaded=false.
func NewFeed() *Feed {
	return &Feed{
		history:     NewRingBuffer[PollRecord](DefaultHistoryCapacity),
		subscribers: make(map[uint64]chan struct{}),
		startTime:   time.Now(),
	}
}

// Publish records the result of a fetch. On error the previous invocations
// are kept and only the error is updated.
func (f *Feed) Publish(page, pageSize int, invs []invocation.Invocation, took time.Duration, err error) Snapshot {
	now := time.Now()
	f.polls.Add(1)

	rec := PollRecord{At: now, Page: page, Rows: len(invs), Duration: took}
	if err != nil {
		f.failures.Add(1)
		rec.Err = err.Error()
		rec.Rows = 0
	}
	f.history.Add(rec)

	f.mu.Lock()
	prev := f.snapshot
	next := prev
	next.Generation = f.generation.Add(1)
	next.FetchedAt = now
	if err != nil {
		next.Err = err.Error()
		next.NewIDs = nil
	} else {
		if invs == nil {
			invs = []invocation.Invocation{}
		}
		next.Err = ""
		next.Page = page
		next.PageSize = pageSize
		next.Invocations = invs
		next.Loaded = true
		if prev.Loaded && prev.Page == page {
			next.NewIDs = diffIDs(prev.Invocations, invs)
		} else {
			next.NewIDs = nil
		}
	}
	f.snapshot = next
	f.mu.Unlock()

	f.notifySubscribers()
	return next
}

// Reset drops the current page, e.g. after the page index changes, so views
// show the loading state until the next fetch lands.
func (f *Feed) Reset() {
	f.mu.Lock()
	f.snapshot = Snapshot{Generation: f.generation.Add(1)}
	f.mu.Unlock()
	f.notifySubscribers()
}

// Snapshot returns the current page state.
func (f *Feed) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot
}

// Generation returns the change counter.
func (f *Feed) Generation() uint64 { return f.generation.Load() }

// Polls returns the number of fetch attempts.
func (f *Feed) Polls() uint64 { return f.polls.Load() }

// Failures returns the number of failed fetches.
func (f *Feed) Failures() uint64 { return f.failures.Load() }

// UptimeSeconds returns seconds since the feed was created.
func (f *Feed) UptimeSeconds() float64 { return time.Since(f.startTime).Seconds() }

// History returns the n most recent poll records, oldest first.
func (f *Feed) History(n int) []PollRecord { return f.history.GetRecent(n) }

// Subscribe returns a notification channel and an unsubscribe function.
// The channel is buffered with capacity 1 so rapid updates coalesce.
func (f *Feed) Subscribe() (<-chan struct{}, func()) {
	f.subscriberMu.Lock()
	defer f.subscriberMu.Unlock()

	id := f.nextSubscriberID
	f.nextSubscriberID++

	ch := make(chan struct{}, 1)
	f.subscribers[id] = ch

	unsubscribe := func() {
		f.subscriberMu.Lock()
		defer f.subscriberMu.Unlock()
		delete(f.subscribers, id)
	}

	return ch, unsubscribe
}

func (f *Feed) notifySubscribers() {
	f.subscriberMu.Lock()
	defer f.subscriberMu.Unlock()

	for _, ch := range f.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// pending notification already queued
		}
	}
}

func diffIDs(prev, next []invocation.Invocation) []string {
	seen := make(map[string]bool)
	for _, id := range invocation.IDs(prev) {
		seen[id] = true
	}
	var fresh []string
	for _, id := range invocation.IDs(next) {
		if !seen[id] {
			fresh = append(fresh, id)
		}
	}
	return fresh
}
