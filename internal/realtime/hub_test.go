package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/marketlens/internal/contracts"
)

type fakeSub struct {
	id     string
	mu     sync.Mutex
	msgs   [][]byte
	full   bool
	closed bool
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) SendBytes(b []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.msgs = append(f.msgs, b)
	return true
}

func (f *fakeSub) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSub) last(t *testing.T) SnapshotMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.msgs)
	var m SnapshotMessage
	require.NoError(t, json.Unmarshal(f.msgs[len(f.msgs)-1], &m))
	return m
}

func collection() *contracts.SnapshotCollection {
	return contracts.NewSnapshotCollection(time.Now(), []contracts.StockSnapshot{
		{Symbol: "AAPL", Price: 190},
		{Symbol: "MSFT", Price: 410},
		{Symbol: "KO", Price: 60},
	})
}

func universe() []contracts.Symbol { return []contracts.Symbol{"AAPL", "MSFT", "KO"} }

func TestBroadcastAll(t *testing.T) {
	h := NewHub(universe(), zerolog.Nop())
	s := &fakeSub{id: "a"}
	h.Register(s)

	c := collection()
	h.Broadcast(c)

	m := s.last(t)
	assert.Equal(t, "snapshot", m.Type)
	assert.Equal(t, c.Epoch().String(), m.Epoch)
	assert.Len(t, m.Items, 3)
}

func TestSubscribeFilters(t *testing.T) {
	h := NewHub(universe(), zerolog.Nop())
	s := &fakeSub{id: "a"}
	h.Register(s)

	resp := h.Handle(s, Request{ID: "1", Action: ActionSubscribe, Symbols: []string{"msft", "NOPE"}})
	assert.Equal(t, "ack", resp.Type)
	assert.Equal(t, "1", resp.ID)

	h.Broadcast(collection())
	m := s.last(t)
	require.Len(t, m.Items, 1)
	assert.Equal(t, contracts.Symbol("MSFT"), m.Items[0].Symbol)

	resp = h.Handle(s, Request{Action: ActionUnsubscribe, Symbols: []string{"KO"}})
	assert.Equal(t, "error", resp.Type, "not subscribed")

	resp = h.Handle(s, Request{Action: ActionAll})
	assert.Equal(t, "ack", resp.Type)
	h.Broadcast(collection())
	assert.Len(t, s.last(t).Items, 3)
}

func TestHandleErrors(t *testing.T) {
	h := NewHub(universe(), zerolog.Nop())
	s := &fakeSub{id: "a"}

	assert.Equal(t, "error", h.Handle(s, Request{Action: ActionAll}).Type, "unregistered")

	h.Register(s)
	assert.Equal(t, "error", h.Handle(s, Request{Action: ActionSubscribe, Symbols: []string{"ZZZ"}}).Type)
	assert.Equal(t, "error", h.Handle(s, Request{Action: "dance"}).Type)
}

func TestRegisterReplaysLast(t *testing.T) {
	h := NewHub(universe(), zerolog.Nop())
	c := collection()
	h.Broadcast(c)

	s := &fakeSub{id: "late"}
	h.Register(s)
	assert.Equal(t, c.Epoch().String(), s.last(t).Epoch)
}

func TestSlowClientDoesNotBlock(t *testing.T) {
	h := NewHub(universe(), zerolog.Nop())
	slow := &fakeSub{id: "slow", full: true}
	fast := &fakeSub{id: "fast"}
	h.Register(slow)
	h.Register(fast)

	h.Broadcast(collection())
	assert.Len(t, fast.last(t).Items, 3)

	h.Unregister(slow)
	assert.True(t, slow.closed)
	assert.Equal(t, 1, h.Clients())
}

func TestServeWS(t *testing.T) {
	h := NewHub(universe(), zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(h, w, r)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{ID: "s1", Action: ActionSubscribe, Symbols: []string{"KO"}}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ack Response
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "ack", ack.Type)
	assert.Equal(t, "s1", ack.ID)

	h.Broadcast(collection())

	var m SnapshotMessage
	require.NoError(t, conn.ReadJSON(&m))
	require.Len(t, m.Items, 1)
	assert.Equal(t, contracts.Symbol("KO"), m.Items[0].Symbol)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var bad Response
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Equal(t, "error", bad.Type)
}
