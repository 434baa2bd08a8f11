package ranking

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/wonny/marketlens/internal/contracts"
)

// Aggregates are market-wide figures over one collection
type Aggregates struct {
	Count          int     `json:"count"`
	TotalMarketCap float64 `json:"total_market_cap"`
	TotalVolume    int64   `json:"total_volume"`
	MeanChange     float64 `json:"mean_change"` // NaN when no snapshot has a change
	ChangeCount    int     `json:"change_count"`
	MeanPE         float64 `json:"mean_pe"` // NaN when no snapshot has a P/E
	PECount        int     `json:"pe_count"`
	Advancers      int     `json:"advancers"`
	Decliners      int     `json:"decliners"`
	Unchanged      int     `json:"unchanged"`
}

// Aggregate computes market-wide figures
func Aggregate(c *contracts.SnapshotCollection) Aggregates {
	var (
		a         Aggregates
		sumChange float64
		sumPE     float64
	)

	for _, s := range c.All() {
		a.Count++
		a.TotalMarketCap += s.MarketCap
		a.TotalVolume += s.Volume

		if s.Change != nil {
			a.ChangeCount++
			sumChange += *s.Change
			switch {
			case *s.Change > 0:
				a.Advancers++
			case *s.Change < 0:
				a.Decliners++
			default:
				a.Unchanged++
			}
		}
		if s.PERatio != nil {
			a.PECount++
			sumPE += *s.PERatio
		}
	}

	a.MeanChange = math.NaN()
	if a.ChangeCount > 0 {
		a.MeanChange = sumChange / float64(a.ChangeCount)
	}
	a.MeanPE = math.NaN()
	if a.PECount > 0 {
		a.MeanPE = sumPE / float64(a.PECount)
	}
	return a
}

// MarshalJSON renders undefined means as null rather than failing on NaN
func (a Aggregates) MarshalJSON() ([]byte, error) {
	type alias Aggregates
	return json.Marshal(struct {
		alias
		MeanChange *float64 `json:"mean_change"`
		MeanPE     *float64 `json:"mean_pe"`
	}{alias(a), nanToNil(a.MeanChange), nanToNil(a.MeanPE)})
}

func nanToNil(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

// SectorGroup is one slice of the market-cap distribution
type SectorGroup struct {
	Sector    string             `json:"sector"`
	MarketCap float64            `json:"market_cap"`
	Share     float64            `json:"share"` // of total market cap, 0..1
	Count     int                `json:"count"`
	Symbols   []contracts.Symbol `json:"symbols"`
}

// GroupBySector sums market cap per sector, largest first (ties by name)
func GroupBySector(c *contracts.SnapshotCollection) []SectorGroup {
	bySector := make(map[string]*SectorGroup)
	var total float64

	for _, s := range c.All() {
		g, ok := bySector[s.Sector]
		if !ok {
			g = &SectorGroup{Sector: s.Sector}
			bySector[s.Sector] = g
		}
		g.MarketCap += s.MarketCap
		g.Count++
		g.Symbols = append(g.Symbols, s.Symbol)
		total += s.MarketCap
	}

	out := make([]SectorGroup, 0, len(bySector))
	for _, g := range bySector {
		if total > 0 {
			g.Share = g.MarketCap / total
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketCap != out[j].MarketCap {
			return out[i].MarketCap > out[j].MarketCap
		}
		return out[i].Sector < out[j].Sector
	})
	return out
}

// Comparison puts two snapshots side by side
type Comparison struct {
	A     contracts.StockSnapshot `json:"a"`
	B     contracts.StockSnapshot `json:"b"`
	Diffs map[Metric]*float64     `json:"diffs"` // A minus B, nil when either side lacks the metric
}

// Compare builds a side-by-side view of two different symbols
func Compare(c *contracts.SnapshotCollection, a, b contracts.Symbol) (*Comparison, error) {
	if a == b {
		return nil, fmt.Errorf("%w: compare needs two different symbols", contracts.ErrInvalidArgument)
	}
	sa, ok := c.Get(a)
	if !ok {
		return nil, fmt.Errorf("%w: %s not in snapshot", contracts.ErrNotFound, a)
	}
	sb, ok := c.Get(b)
	if !ok {
		return nil, fmt.Errorf("%w: %s not in snapshot", contracts.ErrNotFound, b)
	}

	cmp := &Comparison{A: sa, B: sb, Diffs: make(map[Metric]*float64)}
	for _, m := range []Metric{MetricPrice, MetricChange, MetricVolume, MetricMarketCap, MetricPERatio, MetricDividendYield} {
		va, oka := value(sa, m)
		vb, okb := value(sb, m)
		if oka && okb {
			cmp.Diffs[m] = contracts.Float(va - vb)
		} else {
			cmp.Diffs[m] = nil
		}
	}
	return cmp, nil
}
