package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/marketlens/internal/contracts"
)

// FetchBars returns the two latest daily sessions per symbol.
// Symbols whose request fails are omitted; if none succeed the whole call fails.
func (c *Client) FetchBars(ctx context.Context, symbols []contracts.Symbol) (map[contracts.Symbol]contracts.BarPair, error) {
	var (
		mu   sync.Mutex
		out  = make(map[contracts.Symbol]contracts.BarPair, len(symbols))
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, sym := range symbols {
		g.Go(func() error {
			bars, err := c.chart(ctx, sym, url.Values{
				"range":    {"5d"},
				"interval": {"1d"},
			})
			if err == nil && len(bars) < 2 {
				err = malformed("bars", sym, "need 2 sessions, got %d", len(bars))
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				c.log.Warn().Err(err).Str("symbol", string(sym)).Msg("bars unavailable")
				return nil
			}
			n := len(bars)
			out[sym] = contracts.BarPair{Prior: bars[n-2], Latest: bars[n-1]}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, classify("bars", "", err)
	}
	if len(out) == 0 && len(symbols) > 0 {
		kind := contracts.ErrTransientFetch
		if allNotFound(errs) {
			kind = contracts.ErrNotFound
		}
		return nil, contracts.NewFetchError("bars", "", kind, errors.Join(errs...))
	}
	return out, nil
}

func allNotFound(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !errors.Is(err, contracts.ErrNotFound) {
			return false
		}
	}
	return true
}

// FetchHistory returns adjusted daily closes for the lookback window
func (c *Client) FetchHistory(ctx context.Context, sym contracts.Symbol, lookbackYears float64) (contracts.HistoricalSeries, error) {
	if lookbackYears <= 0 {
		return contracts.HistoricalSeries{}, fmt.Errorf("%w: lookback %v", contracts.ErrInvalidArgument, lookbackYears)
	}
	end := c.now()
	start := end.Add(-time.Duration(lookbackYears * 365.25 * 24 * float64(time.Hour)))

	bars, err := c.chart(ctx, sym, url.Values{
		"period1":  {fmt.Sprint(start.Unix())},
		"period2":  {fmt.Sprint(end.Unix())},
		"interval": {"1d"},
		"events":   {"div,split"},
	})
	if err != nil {
		return contracts.HistoricalSeries{}, err
	}

	pts := make([]contracts.PricePoint, len(bars))
	for i, b := range bars {
		pts[i] = contracts.PricePoint{Date: b.Date, Close: b.Close}
	}
	series := contracts.NewHistoricalSeries(sym, pts)
	if series.Len() == 0 {
		return series, contracts.NewFetchError("history", sym, contracts.ErrNotFound, errors.New("empty series"))
	}
	return series, nil
}

func (c *Client) chart(ctx context.Context, sym contracts.Symbol, params url.Values) ([]contracts.QuoteBar, error) {
	u := fmt.Sprintf("%s/%s?%s", strings.TrimRight(c.chartURL, "/"), url.PathEscape(string(sym)), params.Encode())

	body, err := c.http.GetBytes(ctx, u)
	if err != nil {
		return nil, classify("chart", sym, err)
	}
	return parseChart(body, sym)
}

// parseChart reads chart.result[0]; null closes (halted sessions) are skipped.
// Adjusted closes are preferred when present.
func parseChart(body []byte, sym contracts.Symbol) ([]contracts.QuoteBar, error) {
	if e := gjson.GetBytes(body, "chart.error"); e.Exists() && e.Type != gjson.Null {
		code := e.Get("code").String()
		if strings.EqualFold(code, "Not Found") {
			return nil, contracts.NewFetchError("chart", sym, contracts.ErrNotFound, errors.New(e.Get("description").String()))
		}
		return nil, malformed("chart", sym, "upstream error %s: %s", code, e.Get("description").String())
	}

	res := gjson.GetBytes(body, "chart.result.0")
	if !res.Exists() {
		return nil, malformed("chart", sym, "no chart.result")
	}

	stamps := res.Get("timestamp").Array()
	closes := res.Get("indicators.adjclose.0.adjclose").Array()
	if len(closes) == 0 {
		closes = res.Get("indicators.quote.0.close").Array()
	}
	volumes := res.Get("indicators.quote.0.volume").Array()

	loc := time.UTC
	if tz := res.Get("meta.exchangeTimezoneName").String(); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	bars := make([]contracts.QuoteBar, 0, len(stamps))
	for i, ts := range stamps {
		if i >= len(closes) || closes[i].Type == gjson.Null {
			continue
		}
		b := contracts.QuoteBar{
			Date:  contracts.DayOf(time.Unix(ts.Int(), 0).In(loc)),
			Close: closes[i].Float(),
		}
		if i < len(volumes) {
			b.Volume = volumes[i].Int()
		}
		bars = append(bars, b)
	}

	// range queries can repeat the live session as a trailing bar
	if n := len(bars); n >= 2 && bars[n-1].Date.Equal(bars[n-2].Date) {
		bars = append(bars[:n-2], bars[n-1])
	}

	return bars, nil
}
