package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tobert/trace-studio/internal/backend"
	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/storage"
)

type fakeSource struct {
	mu      sync.Mutex
	queries []backend.Query
	err     error
	notify  chan struct{}
}

func (f *fakeSource) Invocations(_ context.Context, q backend.Query) ([]invocation.Invocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return []invocation.Invocation{{ID: "p" + string(rune('0'+q.Page))}}, nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeSource) last() backend.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type notifyingSource struct {
	*fakeSource
}

func (n notifyingSource) Watch(ctx context.Context) (<-chan struct{}, error) {
	return n.notify, nil
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, storage.NewFeed(), Config{PageSize: 1})
	assert.Error(t, err)
	_, err = New(&fakeSource{}, nil, Config{PageSize: 1})
	assert.Error(t, err)
	_, err = New(&fakeSource{}, storage.NewFeed(), Config{})
	assert.Error(t, err)

	p, err := New(&fakeSource{}, storage.NewFeed(), Config{PageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, p.Interval())
}

func TestFetchNowPublishes(t *testing.T) {
	src := &fakeSource{}
	feed := storage.NewFeed()
	p, err := New(src, feed, Config{PageSize: 50, LMPName: "f"})
	require.NoError(t, err)

	snap := p.FetchNow(context.Background())
	assert.True(t, snap.Loaded)
	require.Len(t, snap.Invocations, 1)
	assert.Equal(t, backend.Query{LMPName: "f", Page: 0, PageSize: 50}, src.last())

	src.err = errors.New("boom")
	snap = p.FetchNow(context.Background())
	assert.Equal(t, "boom", snap.Err)
	assert.Len(t, snap.Invocations, 1, "last good page kept")
}

func TestSetPageResetsAndRefetches(t *testing.T) {
	src := &fakeSource{}
	feed := storage.NewFeed()
	p, err := New(src, feed, Config{PageSize: 10, Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.Eventually(t, func() bool { return feed.Snapshot().Loaded }, 2*time.Second, 5*time.Millisecond)

	assert.False(t, p.SetPage(0))
	assert.True(t, p.SetPage(2))
	assert.Equal(t, 2, p.Page())

	require.Eventually(t, func() bool {
		s := feed.Snapshot()
		return s.Loaded && s.Page == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, src.last().Page)

	p.SetPage(-4)
	assert.Equal(t, 0, p.Page())
}

func TestPauseSkipsTicks(t *testing.T) {
	src := &fakeSource{}
	p, err := New(src, storage.NewFeed(), Config{PageSize: 10, Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	p.Pause()
	assert.True(t, p.Paused())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	// the initial fetch always happens
	require.Eventually(t, func() bool { return src.calls() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, src.calls())

	assert.False(t, p.Toggle())
	require.Eventually(t, func() bool { return src.calls() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestNotifierTriggersFetch(t *testing.T) {
	src := notifyingSource{&fakeSource{notify: make(chan struct{}, 1)}}
	p, err := New(src, storage.NewFeed(), Config{PageSize: 10, Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.Eventually(t, func() bool { return src.calls() == 1 }, time.Second, 5*time.Millisecond)
	src.notify <- struct{}{}
	require.Eventually(t, func() bool { return src.calls() == 2 }, time.Second, 5*time.Millisecond)

	// notifications are ignored while paused
	p.Pause()
	src.notify <- struct{}{}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, src.calls())
}

// pageSwitchSource moves the poller to another page while a fetch is in flight.
type pageSwitchSource struct {
	p    *Poller
	next int
}

func (s *pageSwitchSource) Invocations(_ context.Context, q backend.Query) ([]invocation.Invocation, error) {
	if q.Page != s.next {
		s.p.SetPage(s.next)
	}
	return []invocation.Invocation{{ID: "page-" + string(rune('0'+q.Page))}}, nil
}

func TestFetchNowDropsStalePage(t *testing.T) {
	src := &pageSwitchSource{next: 2}
	feed := storage.NewFeed()
	p, err := New(src, feed, Config{PageSize: 10})
	require.NoError(t, err)
	src.p = p

	snap := p.FetchNow(context.Background())
	assert.False(t, snap.Loaded, "page 0 result must not land after the switch to page 2")
	assert.Empty(t, feed.Snapshot().Invocations)
	assert.Equal(t, 2, p.Page())

	snap = p.FetchNow(context.Background())
	assert.True(t, snap.Loaded)
	assert.Equal(t, 2, snap.Page)
	require.Len(t, snap.Invocations, 1)
	assert.Equal(t, "page-2", snap.Invocations[0].ID)
}
