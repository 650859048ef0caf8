package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tobert/trace-studio/internal/invocation"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)

	_, err = NewClient(ClientConfig{BaseURL: "ftp://example.com"})
	assert.Error(t, err)

	c, err := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:5555/"})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5555", c.BaseURL())
}

func TestQuery(t *testing.T) {
	q := Query{Page: 3, PageSize: 50}
	assert.Equal(t, 150, q.Skip())
	assert.NoError(t, q.Validate())
	assert.Error(t, Query{PageSize: 0}.Validate())
	assert.Error(t, Query{Page: -1, PageSize: 5}.Validate())
}

func TestClientInvocations(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/invocations", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]invocation.Invocation{
			{ID: "a", LMP: &invocation.LMP{Name: "f"}, Uses: []invocation.Invocation{{ID: "b"}}},
		})
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	invs, err := c.Invocations(context.Background(), Query{Page: 2, PageSize: 10, LMPName: "f"})
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, "a", invs[0].ID)
	require.Len(t, invs[0].Uses, 1)
	assert.Equal(t, "limit=10&lmp_name=f&skip=20", gotQuery)
}

func TestClientEmptyAndErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok/api/invocations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("null"))
	})
	mux.HandleFunc("/broken/api/invocations", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database locked", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/garbage/api/invocations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()

	ok, _ := NewClient(ClientConfig{BaseURL: srv.URL + "/ok"})
	invs, err := ok.Invocations(ctx, Query{PageSize: 5})
	require.NoError(t, err)
	assert.NotNil(t, invs)
	assert.Empty(t, invs)
	assert.NoError(t, ok.Ping(ctx))

	broken, _ := NewClient(ClientConfig{BaseURL: srv.URL + "/broken"})
	_, err = broken.Invocations(ctx, Query{PageSize: 5})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, "database locked", se.Body)

	garbage, _ := NewClient(ClientConfig{BaseURL: srv.URL + "/garbage"})
	_, err = garbage.Invocations(ctx, Query{PageSize: 5})
	assert.ErrorContains(t, err, "failed to decode")

	_, err = ok.Invocation(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientWatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"entity":"heartbeat"}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`not json`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"entity":"database_updated","id":"x"}`))
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL, ReconnectDelay: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.Watch(ctx)
	require.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification")
	}

	cancel()
	for range ch {
	}
}
