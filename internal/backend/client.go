package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/tobert/trace-studio/internal/invocation"
)

const (
	// DefaultTimeout bounds one request to the store.
	DefaultTimeout = 10 * time.Second

	// DefaultReconnectDelay is the pause between WebSocket reconnects.
	DefaultReconnectDelay = 3 * time.Second

	maxErrorBody = 512
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL        string // e.g. http://127.0.0.1:5555
	Timeout        time.Duration
	ReconnectDelay time.Duration
	HTTPClient     *http.Client
	Verbose        bool
}

// Client reads invocations over the store's HTTP API and watches its
// WebSocket for change notifications.
type Client struct {
	base           *url.URL
	http           *http.Client
	reconnectDelay time.Duration
	verbose        bool
}

// NewClient creates a client for the store at cfg.BaseURL.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend URL %q must be http or https", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	return &Client{
		base:           base,
		http:           httpClient,
		reconnectDelay: delay,
		verbose:        cfg.Verbose,
	}, nil
}

// BaseURL returns the store address.
func (c *Client) BaseURL() string { return c.base.String() }

// Invocations implements Source.
func (c *Client) Invocations(ctx context.Context, q Query) ([]invocation.Invocation, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("skip", strconv.Itoa(q.Skip()))
	params.Set("limit", strconv.Itoa(q.PageSize))
	if q.LMPName != "" {
		params.Set("lmp_name", q.LMPName)
	}
	if q.LMPID != "" {
		params.Set("lmp_id", q.LMPID)
	}

	var out []invocation.Invocation
	if err := c.getJSON(ctx, "/api/invocations", params, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []invocation.Invocation{}
	}
	return out, nil
}

// Invocation fetches a single record by id.
func (c *Client) Invocation(ctx context.Context, id string) (*invocation.Invocation, error) {
	var out invocation.Invocation
	if err := c.getJSON(ctx, "/api/invocation/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping checks that the store answers a one-row query.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Invocations(ctx, Query{PageSize: 1})
	return err
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, v any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// wsMessage is the store's change notification.
type wsMessage struct {
	Entity string `json:"entity"`
	ID     string `json:"id,omitempty"`
}

// Watch implements Notifier. It keeps a WebSocket open to {base}/ws and
// signals on every database update, reconnecting until ctx ends.
func (c *Client) Watch(ctx context.Context) (<-chan struct{}, error) {
	wsURL := *c.base
	switch c.base.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = c.base.Path + "/ws"

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for {
			err := c.watchOnce(ctx, wsURL.String(), out)
			if ctx.Err() != nil {
				return
			}
			if c.verbose {
				log.Printf("🔌 backend: websocket closed (%v), reconnecting in %s\n", err, c.reconnectDelay)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.reconnectDelay):
			}
		}
	}()
	return out, nil
}

func (c *Client) watchOnce(ctx context.Context, addr string, out chan<- struct{}) error {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	if c.verbose {
		log.Printf("🔌 backend: watching %s\n", addr)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg wsMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.Entity != "database_updated" {
			continue
		}
		select {
		case out <- struct{}{}:
		default:
		}
	}
}
