package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newListener(t *testing.T, url string) *SocketListener {
	t.Helper()
	l, err := NewSocketListener(url, "alice", NewTracker(), discardLogger())
	require.NoError(t, err)
	return l
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestNewSocketListener_AddsIdentity(t *testing.T) {
	l := newListener(t, "ws://localhost:8080/ws")
	assert.Equal(t, "ws://localhost:8080/ws?identity=alice", l.url)
}

func TestSocketListener_Apply(t *testing.T) {
	l := newListener(t, "ws://localhost/ws")
	order := testOrder(t, "alice")

	c, ok, err := l.apply(realtime.EventOrderUpdated, mustJSON(t, order))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ChangeUpsert, c.Kind)

	_, ok, err = l.apply(realtime.EventOrderUpdated, mustJSON(t, order))
	require.NoError(t, err)
	assert.False(t, ok, "same version twice")

	require.NoError(t, order.Accept("1234", time.Now().UTC()))
	order.Version++
	token := "1234"
	c, ok, err = l.apply(realtime.EventOrderAccepted, mustJSON(t, realtime.AcceptedPayload{
		ID: order.ID, PickupToken: token, Status: order.Status.String(), Order: order,
	}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusAccepted, c.Order.Status)

	c, ok, err = l.apply(realtime.EventOrderDeleted, mustJSON(t, realtime.DeletedPayload{ID: order.ID}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ChangeRemoved, c.Kind)
	assert.Equal(t, 0, l.tracker.Len())
}

func TestSocketListener_ApplyIgnoresOtherOwnersAndUnknownEvents(t *testing.T) {
	l := newListener(t, "ws://localhost/ws")

	_, ok, err := l.apply(realtime.EventNewOrder, mustJSON(t, testOrder(t, "bob")))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.apply("joined", json.RawMessage(`{"room":"alice"}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = l.apply(realtime.EventOrderRejected, json.RawMessage(`{"id":"x"}`))
	assert.Error(t, err)
}

func TestSocketListener_Run(t *testing.T) {
	hub := realtime.NewHub(discardLogger())
	caller := func(r *http.Request) (realtime.Caller, bool) {
		identity := r.URL.Query().Get("identity")
		return realtime.Caller{Identity: identity}, identity != ""
	}
	srv := httptest.NewServer(realtime.NewHandler(hub, caller, discardLogger()))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	l := newListener(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		m       sync.Mutex
		changes []Change
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx, func(c Change) {
			m.Lock()
			defer m.Unlock()
			changes = append(changes, c)
		})
	}()

	require.Eventually(t, func() bool { return hub.Online("alice") }, 2*time.Second, 10*time.Millisecond)

	order := testOrder(t, "alice")
	realtime.NewRouter(hub, discardLogger()).Dispatch(domain.OrderUpdated{Order: order})

	require.Eventually(t, func() bool {
		m.Lock()
		defer m.Unlock()
		return len(changes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}
