package contracts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UnknownSector is used when the upstream profile has no sector
const UnknownSector = "Unknown"

// QuoteBar is one trading session of one symbol
type QuoteBar struct {
	Date   time.Time `json:"date"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// BarPair is the latest session and the one before it
type BarPair struct {
	Latest QuoteBar `json:"latest"`
	Prior  QuoteBar `json:"prior"`
}

// Profile holds static per-symbol attributes from the quote source.
// Nil pointers mean the upstream did not report the field.
type Profile struct {
	Name          string   `json:"name"`
	Sector        string   `json:"sector"`
	MarketCap     float64  `json:"market_cap"`
	TrailingPE    *float64 `json:"trailing_pe,omitempty"`
	DividendYield *float64 `json:"dividend_yield,omitempty"` // as reported upstream
}

// StockSnapshot is the derived per-symbol metric record
// ⭐ SSOT: Change 는 전일 종가가 0/없음이면 nil (계산하지 않음)
type StockSnapshot struct {
	Symbol        Symbol    `json:"symbol"`
	Name          string    `json:"name"`
	Sector        string    `json:"sector"`
	Price         float64   `json:"price"`
	PriorClose    float64   `json:"prior_close"`
	Change        *float64  `json:"change"` // percent
	Volume        int64     `json:"volume"`
	MarketCap     float64   `json:"market_cap"`
	PERatio       *float64  `json:"pe_ratio"`
	DividendYield float64   `json:"dividend_yield"` // percent
	AsOf          time.Time `json:"as_of"`
}

// Clone returns a copy that shares no pointers with s
func (s StockSnapshot) Clone() StockSnapshot {
	out := s
	out.Change = copyFloat(s.Change)
	out.PERatio = copyFloat(s.PERatio)
	return out
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// SnapshotCollection is one fetch epoch of snapshots in arrival order.
// Immutable once built; accessors hand out copies.
type SnapshotCollection struct {
	epoch     uuid.UUID
	fetchedAt time.Time
	items     []StockSnapshot
	index     map[Symbol]int
}

// NewSnapshotCollection builds a collection, keeping the first snapshot per symbol
func NewSnapshotCollection(fetchedAt time.Time, items []StockSnapshot) *SnapshotCollection {
	c := &SnapshotCollection{
		epoch:     uuid.New(),
		fetchedAt: fetchedAt,
		items:     make([]StockSnapshot, 0, len(items)),
		index:     make(map[Symbol]int, len(items)),
	}
	for _, it := range items {
		if _, dup := c.index[it.Symbol]; dup {
			continue
		}
		c.index[it.Symbol] = len(c.items)
		c.items = append(c.items, it.Clone())
	}
	return c
}

// Epoch identifies the fetch that produced this collection
func (c *SnapshotCollection) Epoch() uuid.UUID { return c.epoch }

// FetchedAt is when the batch was assembled
func (c *SnapshotCollection) FetchedAt() time.Time { return c.fetchedAt }

// Len returns the number of snapshots
func (c *SnapshotCollection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// All returns a copy of every snapshot in arrival order
func (c *SnapshotCollection) All() []StockSnapshot {
	if c == nil {
		return nil
	}
	out := make([]StockSnapshot, len(c.items))
	for i, it := range c.items {
		out[i] = it.Clone()
	}
	return out
}

// Get looks up one symbol
func (c *SnapshotCollection) Get(sym Symbol) (StockSnapshot, bool) {
	if c == nil {
		return StockSnapshot{}, false
	}
	i, ok := c.index[sym]
	if !ok {
		return StockSnapshot{}, false
	}
	return c.items[i].Clone(), true
}

// Symbols returns the symbols present, in arrival order
func (c *SnapshotCollection) Symbols() []Symbol {
	if c == nil {
		return nil
	}
	out := make([]Symbol, len(c.items))
	for i, it := range c.items {
		out[i] = it.Symbol
	}
	return out
}

// MarshalJSON exposes the collection to API and recorder consumers
func (c *SnapshotCollection) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Epoch     uuid.UUID       `json:"epoch"`
		FetchedAt time.Time       `json:"fetched_at"`
		Count     int             `json:"count"`
		Items     []StockSnapshot `json:"items"`
	}{c.epoch, c.fetchedAt, len(c.items), c.items})
}
