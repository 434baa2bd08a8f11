package contracts

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PricePoint is one daily close
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// HistoricalSeries is a per-symbol daily close series
// ⭐ SSOT: 날짜는 UTC 자정 기준, 엄격히 증가, 중복 없음
type HistoricalSeries struct {
	Symbol Symbol       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// DayOf truncates t to a naive (UTC midnight) trading day
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewHistoricalSeries normalizes raw points into a valid series.
// Dates are truncated to days, points sorted, non-finite or
// non-positive closes dropped, and the last value kept for a repeated day.
func NewHistoricalSeries(sym Symbol, raw []PricePoint) HistoricalSeries {
	pts := make([]PricePoint, 0, len(raw))
	for _, p := range raw {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close <= 0 {
			continue
		}
		pts = append(pts, PricePoint{Date: DayOf(p.Date), Close: p.Close})
	}

	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })

	out := pts[:0]
	for _, p := range pts {
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}

	return HistoricalSeries{Symbol: sym, Points: out}
}

// Validate checks ordering and uniqueness of days
func (h HistoricalSeries) Validate() error {
	for i := 1; i < len(h.Points); i++ {
		if !h.Points[i].Date.After(h.Points[i-1].Date) {
			return fmt.Errorf("%w: %s history not strictly increasing at %s",
				ErrInvalidArgument, h.Symbol, h.Points[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Len returns the number of observations
func (h HistoricalSeries) Len() int { return len(h.Points) }

// Last returns the most recent point
func (h HistoricalSeries) Last() (PricePoint, bool) {
	if len(h.Points) == 0 {
		return PricePoint{}, false
	}
	return h.Points[len(h.Points)-1], true
}

// Clone returns a deep copy
func (h HistoricalSeries) Clone() HistoricalSeries {
	return HistoricalSeries{Symbol: h.Symbol, Points: append([]PricePoint(nil), h.Points...)}
}
