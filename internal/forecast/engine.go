package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/wonny/marketlens/internal/contracts"
)

// Engine fits a changepoint trend plus weekly/yearly seasonality per symbol
// ⭐ SSOT: 예측 생성은 이 엔진에서만 (결정적, 난수 없음)
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine creates a forecasting engine
func NewEngine(cfg Config, log zerolog.Logger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "forecast.engine").Logger(),
	}, nil
}

// MinObservations is the shortest history the engine accepts
func (e *Engine) MinObservations() int {
	return e.cfg.MinObservations
}

// TrainAndForecast fits history and extends it horizonDays trading days.
// The result holds every historical day followed by exactly horizonDays future days.
func (e *Engine) TrainAndForecast(ctx context.Context, history contracts.HistoricalSeries, horizonDays int) (*contracts.ForecastResult, error) {
	if horizonDays <= 0 {
		return nil, fmt.Errorf("%w: %d", contracts.ErrInvalidHorizon, horizonDays)
	}
	if err := history.Validate(); err != nil {
		return nil, err
	}
	n := history.Len()
	if n < e.cfg.MinObservations {
		return nil, &contracts.InsufficientDataError{Symbol: history.Symbol, Have: n, Need: e.cfg.MinObservations}
	}

	start := e.cfg.Clock()

	d, x, y, yScale := e.prepare(history)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := fit(d, x, y, yScale, e.cfg)
	if err != nil {
		e.log.Error().Err(err).Str("symbol", string(history.Symbol)).Msg("model fit failed")
		return nil, &contracts.TrainingError{Symbol: history.Symbol, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	last, _ := history.Last()
	future := NextTradingDays(last.Date, horizonDays)

	points := make([]contracts.ForecastPoint, 0, n+horizonDays)
	row := make([]float64, d.width())

	for _, obs := range history.Points {
		p := m.predict(dayNumber(obs.Date), row)
		pt := toPoint(obs.Date, p)
		pt.Observed = contracts.Float(obs.Close)
		points = append(points, pt)
	}
	for _, day := range future {
		points = append(points, toPoint(day, m.predict(dayNumber(day), row)))
	}

	for _, pt := range points {
		if !finite(pt.Yhat) || !finite(pt.Lower) || !finite(pt.Upper) || pt.Lower > pt.Yhat || pt.Yhat > pt.Upper {
			return nil, &contracts.TrainingError{
				Symbol: history.Symbol,
				Err:    fmt.Errorf("invalid prediction at %s", pt.Date.Format("2006-01-02")),
			}
		}
	}

	result := &contracts.ForecastResult{
		Symbol:       history.Symbol,
		Horizon:      horizonDays,
		GeneratedAt:  e.cfg.Clock(),
		LastObserved: last.Date,
		Points:       points,
		Model: contracts.ModelInfo{
			Observations:          n,
			Changepoints:          len(d.changepoints),
			WeeklySeasonality:     hasSeason(d, "weekly"),
			YearlySeasonality:     hasSeason(d, "yearly"),
			ChangepointPriorScale: e.cfg.ChangepointPriorScale,
			IntervalWidth:         e.cfg.IntervalWidth,
			ResidualStd:           m.sigma * yScale,
		},
	}

	e.log.Debug().
		Str("symbol", string(history.Symbol)).
		Int("observations", n).
		Int("horizon", horizonDays).
		Int("changepoints", len(d.changepoints)).
		Float64("residual_std", result.Model.ResidualStd).
		Dur("took", e.cfg.Clock().Sub(start)).
		Msg("forecast trained")

	return result, nil
}

// prepare builds the design and the scaled regression data
func (e *Engine) prepare(history contracts.HistoricalSeries) (*design, *mat.Dense, *mat.VecDense, float64) {
	n := history.Len()
	days := make([]float64, n)
	for i, p := range history.Points {
		days[i] = dayNumber(p.Date)
	}

	d := &design{origin: days[0], span: days[n-1] - days[0]}

	scaled := make([]float64, n)
	for i, day := range days {
		scaled[i] = d.scaled(day)
	}
	d.changepoints = placeChangepoints(scaled, e.cfg.Changepoints, e.cfg.ChangepointRange)

	if seasonalEnabled(e.cfg.Weekly, d.span, 7) {
		d.seasons = append(d.seasons, seasonality{name: "weekly", period: 7, order: e.cfg.WeeklyOrder})
	}
	if seasonalEnabled(e.cfg.Yearly, d.span, 365.25) {
		d.seasons = append(d.seasons, seasonality{name: "yearly", period: 365.25, order: e.cfg.YearlyOrder})
	}

	var yScale float64
	for _, p := range history.Points {
		yScale = math.Max(yScale, math.Abs(p.Close))
	}

	p := d.width()
	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, day := range days {
		d.row(day, x.RawRowView(i))
		y.SetVec(i, history.Points[i].Close/yScale)
	}

	return d, x, y, yScale
}

func toPoint(day time.Time, p prediction) contracts.ForecastPoint {
	return contracts.ForecastPoint{
		Date:   day,
		Yhat:   p.yhat,
		Lower:  p.yhat - p.half,
		Upper:  p.yhat + p.half,
		Trend:  p.trend,
		Weekly: p.weekly,
		Yearly: p.yearly,
	}
}

func hasSeason(d *design, name string) bool {
	for _, s := range d.seasons {
		if s.name == name {
			return true
		}
	}
	return false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
