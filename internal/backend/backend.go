// Package backend talks to the invocation store that the dashboard reads
// from. The store itself is external; this package only knows its HTTP and
// WebSocket surface.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/tobert/trace-studio/internal/invocation"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Query selects a page of root invocations, optionally for one LMP.
type Query struct {
	LMPName  string
	LMPID    string
	Page     int
	PageSize int
}

// Skip is the number of records before the page.
func (q Query) Skip() int { return max(q.Page, 0) * q.PageSize }

// Validate rejects queries that cannot be sent.
func (q Query) Validate() error {
	if q.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", q.PageSize)
	}
	if q.Page < 0 {
		return fmt.Errorf("page must not be negative, got %d", q.Page)
	}
	return nil
}

// Source returns pages of invocations.
type Source interface {
	Invocations(ctx context.Context, q Query) ([]invocation.Invocation, error)
}

// Notifier is implemented by sources that can signal store changes. Each
// value on the returned channel means "the store changed, fetch again".
// The channel is closed when ctx ends.
type Notifier interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.Code, e.Body)
}
