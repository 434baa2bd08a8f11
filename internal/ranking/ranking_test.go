package ranking

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/marketlens/internal/contracts"
)

func snap(sym string, change *float64, vol int64, mcap float64, sector string, pe *float64) contracts.StockSnapshot {
	return contracts.StockSnapshot{
		Symbol: contracts.Symbol(sym), Price: 100, Change: change, Volume: vol,
		MarketCap: mcap, Sector: sector, PERatio: pe,
	}
}

func collection(items ...contracts.StockSnapshot) *contracts.SnapshotCollection {
	return contracts.NewSnapshotCollection(time.Now(), items)
}

func symbols(items []contracts.StockSnapshot) []contracts.Symbol {
	out := make([]contracts.Symbol, len(items))
	for i, s := range items {
		out[i] = s.Symbol
	}
	return out
}

func sample() *contracts.SnapshotCollection {
	f := contracts.Float
	return collection(
		snap("MSFT", f(1.2), 300, 3e12, "Technology", f(35)),
		snap("AAPL", f(1.2), 500, 2.9e12, "Technology", f(30)),
		snap("KO", f(-0.4), 100, 2.6e11, "Consumer Defensive", f(24)),
		snap("JPM", f(2.5), 200, 5e11, "Financial Services", nil),
		snap("NEW", nil, 50, 0, contracts.UnknownSector, nil),
	)
}

func TestTopAndBottom(t *testing.T) {
	c := sample()

	assert.Equal(t, []contracts.Symbol{"JPM", "AAPL", "MSFT"}, symbols(TopN(c, 3, MetricChange)), "tie broken by symbol")
	assert.Equal(t, []contracts.Symbol{"KO", "AAPL", "MSFT"}, symbols(BottomN(c, 3, MetricChange)))
	assert.Equal(t, []contracts.Symbol{"AAPL", "MSFT"}, symbols(MostActive(c, 2)))
}

func TestRank_UndefinedChangeGoesLast(t *testing.T) {
	c := sample()
	assert.Equal(t, contracts.Symbol("NEW"), TopN(c, 5, MetricChange)[4].Symbol)
	assert.Equal(t, contracts.Symbol("NEW"), BottomN(c, 5, MetricChange)[4].Symbol)
}

func TestRank_ClampsN(t *testing.T) {
	c := sample()
	assert.Len(t, TopN(c, 100, MetricChange), 5)
	assert.Empty(t, TopN(c, -1, MetricChange))
	assert.Empty(t, TopN(collection(), 10, MetricChange))
}

func TestTopN_IsSortedPrefixOfPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := rng.Intn(30) + 1
		items := make([]contracts.StockSnapshot, n)
		for i := range items {
			// coarse values so ties are common
			items[i] = snap(fmt.Sprintf("S%02d", i), contracts.Float(float64(rng.Intn(7)-3)), 0, 0, "", nil)
		}
		rng.Shuffle(n, func(i, j int) { items[i], items[j] = items[j], items[i] })
		c := collection(items...)
		k := rng.Intn(n + 2)

		top := TopN(c, k, MetricChange)
		rest := Sorted(c, MetricChange, Desc)[len(top):]

		all := append(symbols(top), symbols(rest)...)
		want := c.Symbols()
		sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
		require.Equal(t, want, all, "top + complement must be a permutation")

		for i := 1; i < len(top); i++ {
			prev, cur := *top[i-1].Change, *top[i].Change
			require.GreaterOrEqual(t, prev, cur)
			if prev == cur {
				require.Less(t, top[i-1].Symbol, top[i].Symbol)
			}
		}
		for _, r := range rest {
			if len(top) > 0 {
				require.LessOrEqual(t, *r.Change, *top[len(top)-1].Change)
			}
		}
	}
}

func TestParse(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricChange, m)

	_, err = ParseMetric("alpha")
	assert.ErrorIs(t, err, contracts.ErrInvalidArgument)

	o, err := ParseOrder("ASC")
	require.NoError(t, err)
	assert.Equal(t, Asc, o)
}

func TestAggregate(t *testing.T) {
	a := Aggregate(sample())

	assert.Equal(t, 5, a.Count)
	assert.InDelta(t, 3e12+2.9e12+2.6e11+5e11, a.TotalMarketCap, 1)
	assert.Equal(t, int64(1150), a.TotalVolume)
	assert.Equal(t, 4, a.ChangeCount)
	assert.InDelta(t, (1.2+1.2-0.4+2.5)/4, a.MeanChange, 1e-12)
	assert.Equal(t, 3, a.PECount)
	assert.InDelta(t, (35+30+24)/3.0, a.MeanPE, 1e-12)
	assert.Equal(t, 3, a.Advancers)
	assert.Equal(t, 1, a.Decliners)
}

func TestAggregate_NoPEIsNaN(t *testing.T) {
	a := Aggregate(collection(snap("A", nil, 1, 1, "", nil)))
	assert.True(t, math.IsNaN(a.MeanPE))
	assert.True(t, math.IsNaN(a.MeanChange))

	raw, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"mean_pe":null`)
}

func TestGroupBySector(t *testing.T) {
	groups := GroupBySector(sample())

	require.Len(t, groups, 4)
	assert.Equal(t, "Technology", groups[0].Sector)
	assert.Equal(t, 2, groups[0].Count)
	assert.InDelta(t, 5.9e12, groups[0].MarketCap, 1)

	var share float64
	for _, g := range groups {
		share += g.Share
	}
	assert.InDelta(t, 1.0, share, 1e-9)
}

func TestCompare(t *testing.T) {
	c := sample()

	cmp, err := Compare(c, "AAPL", "KO")
	require.NoError(t, err)
	assert.InDelta(t, 1.6, *cmp.Diffs[MetricChange], 1e-9)
	assert.Nil(t, mustCompare(Compare(c, "AAPL", "JPM")).Diffs[MetricPERatio])

	_, err = Compare(c, "AAPL", "AAPL")
	assert.ErrorIs(t, err, contracts.ErrInvalidArgument)

	_, err = Compare(c, "AAPL", "NOPE")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func mustCompare(c *Comparison, err error) *Comparison {
	if err != nil {
		panic(err)
	}
	return c
}
