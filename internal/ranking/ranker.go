package ranking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/marketlens/internal/contracts"
)

// Metric is a sortable snapshot field
type Metric string

const (
	MetricChange        Metric = "change"
	MetricVolume        Metric = "volume"
	MetricMarketCap     Metric = "market_cap"
	MetricPrice         Metric = "price"
	MetricDividendYield Metric = "dividend_yield"
	MetricPERatio       Metric = "pe_ratio"
)

// Order is the sort direction
type Order string

const (
	Desc Order = "desc" // top performers
	Asc  Order = "asc"  // bottom performers
)

// ParseMetric validates a metric name ("" means change)
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return MetricChange, nil
	case MetricChange, MetricVolume, MetricMarketCap, MetricPrice, MetricDividendYield, MetricPERatio:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown metric %q", contracts.ErrInvalidArgument, s)
}

// ParseOrder validates a direction ("" means desc)
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", Desc:
		return Desc, nil
	case Asc:
		return Asc, nil
	}
	return "", fmt.Errorf("%w: unknown order %q", contracts.ErrInvalidArgument, s)
}

// value extracts a metric; ok=false when the snapshot has no value for it
func value(s contracts.StockSnapshot, m Metric) (float64, bool) {
	switch m {
	case MetricChange:
		if s.Change == nil {
			return 0, false
		}
		return *s.Change, true
	case MetricVolume:
		return float64(s.Volume), true
	case MetricMarketCap:
		return s.MarketCap, true
	case MetricPrice:
		return s.Price, true
	case MetricDividendYield:
		return s.DividendYield, true
	case MetricPERatio:
		if s.PERatio == nil {
			return 0, false
		}
		return *s.PERatio, true
	}
	return 0, false
}

// Sorted returns every snapshot ordered by metric.
// Ties break by symbol ascending; snapshots without a value go last in either order.
func Sorted(c *contracts.SnapshotCollection, m Metric, o Order) []contracts.StockSnapshot {
	items := c.All()
	sort.SliceStable(items, func(i, j int) bool {
		vi, oki := value(items[i], m)
		vj, okj := value(items[j], m)
		if oki != okj {
			return oki
		}
		if oki && vi != vj {
			if o == Asc {
				return vi < vj
			}
			return vi > vj
		}
		return items[i].Symbol < items[j].Symbol
	})
	return items
}

// Rank returns the first n of Sorted, n clamped to [0, len]
func Rank(c *contracts.SnapshotCollection, n int, m Metric, o Order) []contracts.StockSnapshot {
	items := Sorted(c, m, o)
	return items[:clamp(n, len(items))]
}

// TopN returns the n best by metric
func TopN(c *contracts.SnapshotCollection, n int, m Metric) []contracts.StockSnapshot {
	return Rank(c, n, m, Desc)
}

// BottomN returns the n worst by metric
func BottomN(c *contracts.SnapshotCollection, n int, m Metric) []contracts.StockSnapshot {
	return Rank(c, n, m, Asc)
}

// MostActive returns the n highest-volume snapshots
func MostActive(c *contracts.SnapshotCollection, n int) []contracts.StockSnapshot {
	return Rank(c, n, MetricVolume, Desc)
}

func clamp(n, size int) int {
	if n < 0 {
		return 0
	}
	if n > size {
		return size
	}
	return n
}
