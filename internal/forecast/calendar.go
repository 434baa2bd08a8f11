package forecast

import (
	"time"

	"github.com/wonny/marketlens/internal/contracts"
)

// IsTradingDay reports whether d falls Monday..Friday.
// Exchange holidays are not modelled.
func IsTradingDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextTradingDays returns the n trading days after last
func NextTradingDays(last time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := contracts.DayOf(last)
	for len(out) < n {
		d = d.AddDate(0, 0, 1)
		if IsTradingDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// dayNumber is days since the Unix epoch; seasonal phases are anchored to it
func dayNumber(d time.Time) float64 {
	return float64(d.Unix()) / 86400
}
