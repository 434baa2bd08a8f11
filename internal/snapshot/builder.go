package snapshot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/marketlens/internal/contracts"
)

// YieldUnit tells how the quote source reports dividend yield
type YieldUnit string

const (
	YieldFraction YieldUnit = "fraction" // 0.0051 → 0.51%
	YieldPercent  YieldUnit = "percent"  // already 0.51
)

// Config configures the builder
type Config struct {
	Concurrency int
	YieldUnit   YieldUnit
	Clock       func() time.Time
}

// DefaultConfig returns the defaults used by the service
func DefaultConfig() Config {
	return Config{
		Concurrency: 8,
		YieldUnit:   YieldFraction,
		Clock:       time.Now,
	}
}

// Report lists what one build produced
type Report struct {
	Requested int                         `json:"requested"`
	Built     int                         `json:"built"`
	Dropped   map[contracts.Symbol]string `json:"dropped,omitempty"`
	Took      time.Duration               `json:"took"`
}

// Builder turns raw quote bars into a SnapshotCollection
// ⭐ SSOT: 종목 단위 실패는 여기서 흡수, 배치 실패만 위로 전파
type Builder struct {
	source contracts.QuoteSource
	cfg    Config
	log    zerolog.Logger
}

// NewBuilder creates a snapshot builder
func NewBuilder(source contracts.QuoteSource, cfg Config, log zerolog.Logger) *Builder {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.YieldUnit == "" {
		cfg.YieldUnit = YieldFraction
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Builder{
		source: source,
		cfg:    cfg,
		log:    log.With().Str("component", "snapshot.builder").Logger(),
	}
}

// Build fetches and assembles snapshots for symbols
func (b *Builder) Build(ctx context.Context, symbols []contracts.Symbol) (*contracts.SnapshotCollection, error) {
	c, _, err := b.BuildWithReport(ctx, symbols)
	return c, err
}

// BuildWithReport is Build plus the per-symbol outcome
func (b *Builder) BuildWithReport(ctx context.Context, symbols []contracts.Symbol) (*contracts.SnapshotCollection, *Report, error) {
	start := b.cfg.Clock()
	symbols = dedupe(symbols)
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("%w: empty symbol universe", contracts.ErrInvalidArgument)
	}

	bars, err := b.source.FetchBars(ctx, symbols)
	if err != nil {
		b.log.Error().Err(err).Int("symbols", len(symbols)).Msg("batch quote fetch failed")
		return nil, nil, fmt.Errorf("fetch bars: %w", err)
	}

	// one slot per symbol; workers never share anything else
	slots := make([]*contracts.StockSnapshot, len(symbols))
	reasons := make([]error, len(symbols))

	var g errgroup.Group
	g.SetLimit(b.cfg.Concurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			pair, ok := bars[sym]
			if !ok {
				reasons[i] = &contracts.PartialDataError{Symbol: sym, Err: errors.New("missing from batch")}
				return nil
			}
			snap, err := b.buildOne(ctx, sym, pair)
			if err != nil {
				reasons[i] = &contracts.PartialDataError{Symbol: sym, Err: err}
				return nil
			}
			slots[i] = snap
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	report := &Report{Requested: len(symbols), Dropped: make(map[contracts.Symbol]string)}
	items := make([]contracts.StockSnapshot, 0, len(symbols))
	for i, s := range slots {
		if s == nil {
			report.Dropped[symbols[i]] = reasons[i].Error()
			b.log.Warn().Err(reasons[i]).Str("symbol", string(symbols[i])).Msg("symbol dropped from snapshot")
			continue
		}
		items = append(items, *s)
	}
	report.Built = len(items)
	report.Took = b.cfg.Clock().Sub(start)

	if len(items) == 0 {
		return nil, report, fmt.Errorf("%w: 0 of %d symbols", contracts.ErrEmptyResult, len(symbols))
	}

	c := contracts.NewSnapshotCollection(b.cfg.Clock(), items)
	b.log.Info().
		Str("epoch", c.Epoch().String()).
		Int("built", report.Built).
		Int("dropped", len(report.Dropped)).
		Dur("took", report.Took).
		Msg("snapshot built")

	return c, report, nil
}

func (b *Builder) buildOne(ctx context.Context, sym contracts.Symbol, pair contracts.BarPair) (*contracts.StockSnapshot, error) {
	price := pair.Latest.Close
	if !finite(price) || price <= 0 {
		return nil, fmt.Errorf("invalid latest close %v", price)
	}

	profile, err := b.source.FetchProfile(ctx, sym)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	if profile == nil {
		profile = &contracts.Profile{}
	}

	snap := &contracts.StockSnapshot{
		Symbol:     sym,
		Name:       profile.Name,
		Sector:     profile.Sector,
		Price:      price,
		PriorClose: pair.Prior.Close,
		Volume:     pair.Latest.Volume,
		AsOf:       pair.Latest.Date,
	}
	if snap.Name == "" {
		snap.Name = string(sym)
	}
	if snap.Sector == "" {
		snap.Sector = contracts.UnknownSector
	}
	if finite(profile.MarketCap) && profile.MarketCap > 0 {
		snap.MarketCap = profile.MarketCap
	}
	if profile.TrailingPE != nil && finite(*profile.TrailingPE) {
		snap.PERatio = contracts.Float(*profile.TrailingPE)
	}
	snap.DividendYield = b.yieldPercent(profile.DividendYield)

	if chg, ok := PercentChange(price, pair.Prior.Close); ok {
		snap.Change = contracts.Float(chg)
	}

	return snap, nil
}

func (b *Builder) yieldPercent(y *float64) float64 {
	if y == nil || !finite(*y) {
		return 0
	}
	if b.cfg.YieldUnit == YieldFraction {
		return *y * 100
	}
	return *y
}

// PercentChange is (latest-prior)/prior*100; undefined when prior is zero, negative or missing
func PercentChange(latest, prior float64) (float64, bool) {
	if !finite(latest) || !finite(prior) || prior <= 0 {
		return 0, false
	}
	return (latest - prior) / prior * 100, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func dedupe(symbols []contracts.Symbol) []contracts.Symbol {
	seen := make(map[contracts.Symbol]struct{}, len(symbols))
	out := make([]contracts.Symbol, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
