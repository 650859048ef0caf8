// Package poller periodically refetches the current page of invocations
// into a storage.Feed. Polling can be paused and resumed; page changes and
// store notifications trigger an immediate fetch.
package poller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tobert/trace-studio/internal/backend"
	"github.com/tobert/trace-studio/internal/storage"
)

const (
	// DefaultInterval is the time between polls.
	DefaultInterval = 2 * time.Second

	// DefaultFetchTimeout bounds a single fetch.
	DefaultFetchTimeout = 10 * time.Second
)

// Config configures a Poller.
type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	PageSize     int
	LMPName      string
	LMPID        string
	Verbose      bool
}

// Poller owns the fetch loop for one feed.
type Poller struct {
	source backend.Source
	feed   *storage.Feed
	cfg    Config

	mu     sync.Mutex
	page   int
	paused bool

	wake chan struct{}
}

// New creates a poller. It does not start fetching until Run.
func New(source backend.Source, feed *storage.Feed, cfg Config) (*Poller, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if feed == nil {
		return nil, fmt.Errorf("feed cannot be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", cfg.PageSize)
	}

	return &Poller{
		source: source,
		feed:   feed,
		cfg:    cfg,
		wake:   make(chan struct{}, 1),
	}, nil
}

// Feed returns the feed the poller publishes into.
func (p *Poller) Feed() *storage.Feed { return p.feed }

// PageSize returns the configured page size.
func (p *Poller) PageSize() int { return p.cfg.PageSize }

// Interval returns the poll interval.
func (p *Poller) Interval() time.Duration { return p.cfg.Interval }

// Run fetches immediately and then on every tick until ctx ends. Ticks are
// skipped while paused; explicit Refresh and SetPage still fetch.
func (p *Poller) Run(ctx context.Context) error {
	var notify <-chan struct{}
	if n, ok := p.source.(backend.Notifier); ok {
		ch, err := n.Watch(ctx)
		if err != nil {
			log.Printf("⚠️  poller: change notifications unavailable: %v\n", err)
		} else {
			notify = ch
		}
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.FetchNow(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-p.wake:
			p.FetchNow(ctx)

		case <-ticker.C:
			if p.Paused() {
				continue
			}
			p.FetchNow(ctx)

		case _, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
			if p.Paused() {
				continue
			}
			p.FetchNow(ctx)
		}
	}
}

// FetchNow fetches the current page synchronously and publishes the result.
func (p *Poller) FetchNow(ctx context.Context) storage.Snapshot {
	page := p.Page()

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	invs, err := p.source.Invocations(fetchCtx, backend.Query{
		LMPName:  p.cfg.LMPName,
		LMPID:    p.cfg.LMPID,
		Page:     page,
		PageSize: p.cfg.PageSize,
	})
	took := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return p.feed.Snapshot()
		}
		log.Printf("⚠️  poller: fetch of page %d failed: %v\n", page, err)
	} else if p.cfg.Verbose {
		log.Printf("🔄 poller: page %d -> %d invocations in %s\n", page, len(invs), took.Round(time.Millisecond))
	}

	// a page change while the fetch was in flight makes this result stale.
	// p.mu is held across the check and the publish so SetPage's Reset
	// cannot land in between.
	p.mu.Lock()
	defer p.mu.Unlock()
	if page != p.page {
		return p.feed.Snapshot()
	}
	return p.feed.Publish(page, p.cfg.PageSize, invs, took, err)
}

// Refresh requests an immediate fetch from the Run loop.
func (p *Poller) Refresh() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Page returns the zero-based page being polled.
func (p *Poller) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// SetPage switches the polled page. The feed drops back to loading and a
// fetch is requested. It reports whether the page changed.
func (p *Poller) SetPage(n int) bool {
	n = max(n, 0)

	p.mu.Lock()
	if n == p.page {
		p.mu.Unlock()
		return false
	}
	p.page = n
	p.feed.Reset()
	p.mu.Unlock()

	p.Refresh()
	return true
}

// Pause stops timer-driven fetches.
func (p *Poller) Pause() { p.setPaused(true) }

// Resume restarts timer-driven fetches and fetches right away.
func (p *Poller) Resume() {
	p.setPaused(false)
	p.Refresh()
}

// Toggle flips the paused flag and returns the new value.
func (p *Poller) Toggle() bool {
	p.mu.Lock()
	p.paused = !p.paused
	paused := p.paused
	p.mu.Unlock()

	if !paused {
		p.Refresh()
	}
	return paused
}

// Paused reports whether timer-driven fetches are paused.
func (p *Poller) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Poller) setPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
}
