package realtime

import (
	"time"

	"github.com/wonny/marketlens/internal/contracts"
)

// Client actions
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionAll         = "all" // drop the filter, receive every symbol
)

// Request is a client → server command
type Request struct {
	ID      string   `json:"id,omitempty"`
	Action  string   `json:"action"`
	Symbols []string `json:"symbols,omitempty"`
}

// Response acknowledges or rejects a Request
type Response struct {
	Type    string `json:"type"` // ack, error
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// SnapshotMessage is pushed after every snapshot refresh
// ⭐ SSOT: 푸시 메시지 구조는 여기서만
type SnapshotMessage struct {
	Type      string                    `json:"type"` // snapshot
	Epoch     string                    `json:"epoch"`
	FetchedAt time.Time                 `json:"fetched_at"`
	Items     []contracts.StockSnapshot `json:"items"`
}
