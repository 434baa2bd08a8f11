package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wonny/marketlens/internal/contracts"
)

// Subscriber is one connected push client
type Subscriber interface {
	ID() string
	SendBytes(b []byte) bool
	Close()
}

// Hub fans refreshed snapshot collections out to subscribers.
// A subscriber with no symbol filter receives every item.
// ⭐ SSOT: 웹소켓 구독 상태는 이 허브에서만
type Hub struct {
	mu      sync.RWMutex
	filters map[Subscriber]map[contracts.Symbol]bool // nil = all
	last    *contracts.SnapshotCollection
	valid   map[contracts.Symbol]bool
	log     zerolog.Logger
}

// NewHub creates a hub; universe bounds what clients may subscribe to
func NewHub(universe []contracts.Symbol, log zerolog.Logger) *Hub {
	valid := make(map[contracts.Symbol]bool, len(universe))
	for _, s := range universe {
		valid[s] = true
	}
	return &Hub{
		filters: make(map[Subscriber]map[contracts.Symbol]bool),
		valid:   valid,
		log:     log.With().Str("component", "realtime.hub").Logger(),
	}
}

// Register adds a subscriber and replays the latest collection to it
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.filters[s] = nil
	last := h.last
	h.mu.Unlock()

	h.log.Debug().Str("client", s.ID()).Msg("client registered")
	if last != nil {
		h.send(s, last, nil)
	}
}

// Unregister removes a subscriber and closes it
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	_, ok := h.filters[s]
	delete(h.filters, s)
	h.mu.Unlock()

	if ok {
		s.Close()
		h.log.Debug().Str("client", s.ID()).Msg("client unregistered")
	}
}

// Clients returns the number of connected subscribers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.filters)
}

// Handle applies one client command and returns the reply
func (h *Hub) Handle(s Subscriber, req Request) Response {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.filters[s]; !ok {
		return Response{Type: "error", ID: req.ID, Message: "not registered"}
	}

	switch req.Action {
	case ActionAll:
		h.filters[s] = nil
		return Response{Type: "ack", ID: req.ID, Message: "receiving all symbols"}

	case ActionSubscribe:
		var added []contracts.Symbol
		for _, sym := range contracts.ParseSymbols(req.Symbols) {
			if !h.valid[sym] {
				continue
			}
			if h.filters[s] == nil {
				h.filters[s] = make(map[contracts.Symbol]bool)
			}
			h.filters[s][sym] = true
			added = append(added, sym)
		}
		if len(added) == 0 {
			return Response{Type: "error", ID: req.ID, Message: "no valid symbols provided"}
		}
		return Response{Type: "ack", ID: req.ID, Message: fmt.Sprintf("subscribed to %v", added)}

	case ActionUnsubscribe:
		f := h.filters[s]
		var removed []contracts.Symbol
		for _, sym := range contracts.ParseSymbols(req.Symbols) {
			if f[sym] {
				delete(f, sym)
				removed = append(removed, sym)
			}
		}
		if len(removed) == 0 {
			return Response{Type: "error", ID: req.ID, Message: fmt.Sprintf("not subscribed to %v", req.Symbols)}
		}
		return Response{Type: "ack", ID: req.ID, Message: fmt.Sprintf("unsubscribed from %v", removed)}

	default:
		return Response{Type: "error", ID: req.ID, Message: "unknown action: " + req.Action}
	}
}

// Broadcast pushes c to every subscriber; slow clients drop the message
func (h *Hub) Broadcast(c *contracts.SnapshotCollection) {
	h.mu.Lock()
	h.last = c
	targets := make(map[Subscriber]map[contracts.Symbol]bool, len(h.filters))
	for s, f := range h.filters {
		targets[s] = copyFilter(f)
	}
	h.mu.Unlock()

	dropped := 0
	for s, f := range targets {
		if !h.send(s, c, f) {
			dropped++
		}
	}
	if dropped > 0 {
		h.log.Warn().Int("dropped", dropped).Int("clients", len(targets)).Msg("slow clients skipped")
	}
}

func (h *Hub) send(s Subscriber, c *contracts.SnapshotCollection, filter map[contracts.Symbol]bool) bool {
	msg := SnapshotMessage{
		Type:      "snapshot",
		Epoch:     c.Epoch().String(),
		FetchedAt: c.FetchedAt(),
		Items:     make([]contracts.StockSnapshot, 0, c.Len()),
	}
	for _, item := range c.All() {
		if filter == nil || filter[item.Symbol] {
			msg.Items = append(msg.Items, item)
		}
	}

	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal snapshot message")
		return false
	}
	return s.SendBytes(b)
}

func copyFilter(f map[contracts.Symbol]bool) map[contracts.Symbol]bool {
	if f == nil {
		return nil
	}
	out := make(map[contracts.Symbol]bool, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
