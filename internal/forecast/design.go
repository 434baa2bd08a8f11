package forecast

import (
	"math"
)

type seasonality struct {
	name   string
	period float64 // days
	order  int
}

// design maps a day to the regression row:
//
//	[1, s, (s-c_1)+ .. (s-c_S)+, sin/cos pairs per seasonality]
//
// s is time scaled so the first observation is 0 and the last is 1.
type design struct {
	origin       float64 // day number of the first observation
	span         float64 // days from first to last observation
	changepoints []float64
	seasons      []seasonality
}

const (
	colIntercept = 0
	colSlope     = 1
	colDeltas    = 2
)

func (d *design) width() int {
	w := colDeltas + len(d.changepoints)
	for _, s := range d.seasons {
		w += 2 * s.order
	}
	return w
}

func (d *design) scaled(day float64) float64 {
	return (day - d.origin) / d.span
}

// trendEnd is one past the last trend column
func (d *design) trendEnd() int {
	return colDeltas + len(d.changepoints)
}

// seasonRange returns the column range of seasonality i
func (d *design) seasonRange(i int) (int, int) {
	start := d.trendEnd()
	for j := 0; j < i; j++ {
		start += 2 * d.seasons[j].order
	}
	return start, start + 2*d.seasons[i].order
}

func (d *design) row(day float64, dst []float64) {
	s := d.scaled(day)
	dst[colIntercept] = 1
	dst[colSlope] = s
	for j, c := range d.changepoints {
		dst[colDeltas+j] = math.Max(s-c, 0)
	}

	off := d.trendEnd()
	for _, se := range d.seasons {
		for k := 1; k <= se.order; k++ {
			x := 2 * math.Pi * float64(k) * day / se.period
			dst[off] = math.Sin(x)
			dst[off+1] = math.Cos(x)
			off += 2
		}
	}
}

// placeChangepoints spreads up to n changepoints evenly over the first
// share of the observations, at observed (scaled) times.
func placeChangepoints(scaled []float64, n int, share float64) []float64 {
	histSize := int(math.Floor(float64(len(scaled)) * share))
	if n+1 > histSize {
		n = histSize - 1
	}
	if n <= 0 {
		return nil
	}

	out := make([]float64, 0, n)
	step := float64(histSize-1) / float64(n)
	for i := 1; i <= n; i++ {
		idx := int(math.Round(step * float64(i)))
		out = append(out, scaled[idx])
	}
	return out
}

// seasonalEnabled applies the toggle; auto requires two periods of history (5% slack)
func seasonalEnabled(t Toggle, spanDays, period float64) bool {
	switch t {
	case On:
		return true
	case Off:
		return false
	}
	return spanDays >= 2*period*0.95
}
