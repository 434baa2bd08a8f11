package contracts

import "time"

// ForecastPoint is one day of the fitted-plus-forecast curve
type ForecastPoint struct {
	Date     time.Time `json:"date"`
	Yhat     float64   `json:"yhat"`
	Lower    float64   `json:"yhat_lower"`
	Upper    float64   `json:"yhat_upper"`
	Trend    float64   `json:"trend"`
	Weekly   float64   `json:"weekly"`
	Yearly   float64   `json:"yearly"`
	Observed *float64  `json:"observed,omitempty"` // nil for future days
}

// ModelInfo describes the fitted model
type ModelInfo struct {
	Observations          int     `json:"observations"`
	Changepoints          int     `json:"changepoints"`
	WeeklySeasonality     bool    `json:"weekly_seasonality"`
	YearlySeasonality     bool    `json:"yearly_seasonality"`
	ChangepointPriorScale float64 `json:"changepoint_prior_scale"`
	IntervalWidth         float64 `json:"interval_width"`
	ResidualStd           float64 `json:"residual_std"` // price units
}

// ForecastResult holds the full fitted series followed by Horizon future points
// ⭐ SSOT: 모든 점에서 Lower <= Yhat <= Upper
type ForecastResult struct {
	Symbol       Symbol          `json:"symbol"`
	Horizon      int             `json:"horizon"`
	GeneratedAt  time.Time       `json:"generated_at"`
	LastObserved time.Time       `json:"last_observed"`
	Points       []ForecastPoint `json:"points"`
	Model        ModelInfo       `json:"model"`
}

// Forecast returns exactly the last Horizon points (the future portion)
func (r *ForecastResult) Forecast() []ForecastPoint {
	n := r.Horizon
	if n > len(r.Points) {
		n = len(r.Points)
	}
	return append([]ForecastPoint(nil), r.Points[len(r.Points)-n:]...)
}

// Fitted returns the in-sample portion
func (r *ForecastResult) Fitted() []ForecastPoint {
	n := len(r.Points) - r.Horizon
	if n < 0 {
		n = 0
	}
	return append([]ForecastPoint(nil), r.Points[:n]...)
}

// Clone returns a deep copy; cached results are handed out through it
func (r *ForecastResult) Clone() *ForecastResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Points = make([]ForecastPoint, len(r.Points))
	for i, p := range r.Points {
		if p.Observed != nil {
			v := *p.Observed
			p.Observed = &v
		}
		out.Points[i] = p
	}
	return &out
}

// Final returns the last forecast point
func (r *ForecastResult) Final() (ForecastPoint, bool) {
	if len(r.Points) == 0 || r.Horizon <= 0 {
		return ForecastPoint{}, false
	}
	return r.Points[len(r.Points)-1], true
}

// 요약의 현재가 출처
const (
	PriceFromSnapshot  = "snapshot"
	PriceFromLastClose = "last_close"
)

// ForecastSummary is the headline view of a forecast
type ForecastSummary struct {
	Symbol         Symbol    `json:"symbol"`
	Horizon        int       `json:"horizon"`
	TargetDate     time.Time `json:"target_date"`
	CurrentPrice   float64   `json:"current_price"`
	PriceSource    string    `json:"price_source"` // PriceFromSnapshot | PriceFromLastClose
	PredictedPrice float64   `json:"predicted_price"`
	ChangePercent  *float64  `json:"change_percent"`
	Confidence     float64   `json:"confidence"` // ± half-width at the final point
	Lower          float64   `json:"lower"`
	Upper          float64   `json:"upper"`
}
