package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/marketlens/internal/contracts"
	"github.com/wonny/marketlens/pkg/config"
	"github.com/wonny/marketlens/pkg/httputil"
)

// Client is the Yahoo Finance quote and history adapter
// ⭐ SSOT: Yahoo Finance 호출은 이 클라이언트에서만
type Client struct {
	http        *httputil.Client
	chartURL    string
	summaryURL  string
	profileURL  string
	concurrency int
	now         func() time.Time
	log         zerolog.Logger
}

var (
	_ contracts.QuoteSource   = (*Client)(nil)
	_ contracts.HistorySource = (*Client)(nil)
)

// NewClient creates a Yahoo Finance client
func NewClient(cfg config.YahooConfig, httpClient *httputil.Client, log zerolog.Logger) *Client {
	return &Client{
		http:        httpClient,
		chartURL:    cfg.ChartURL,
		summaryURL:  cfg.SummaryURL,
		profileURL:  cfg.ProfileURL,
		concurrency: 8,
		now:         time.Now,
		log:         log.With().Str("component", "external.yahoo").Logger(),
	}
}

// WithConcurrency bounds parallel per-symbol requests inside FetchBars
func (c *Client) WithConcurrency(n int) *Client {
	if n > 0 {
		c.concurrency = n
	}
	return c
}

// classify maps transport and HTTP failures onto the error taxonomy
func classify(op string, sym contracts.Symbol, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return contracts.NewFetchError(op, sym, contracts.ErrTimeout, err)
	}

	var se *httputil.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusNotFound:
			return contracts.NewFetchError(op, sym, contracts.ErrNotFound, err)
		case se.StatusCode == http.StatusTooManyRequests:
			return contracts.NewFetchError(op, sym, contracts.ErrTransientFetch, err)
		default:
			// 5xx, and 401/403 when the endpoint wants a session crumb
			return contracts.NewFetchError(op, sym, contracts.ErrUnavailable, err)
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return contracts.NewFetchError(op, sym, contracts.ErrTimeout, err)
	}
	return contracts.NewFetchError(op, sym, contracts.ErrTransientFetch, err)
}

// malformed is a 2xx response we could not use
func malformed(op string, sym contracts.Symbol, format string, args ...interface{}) error {
	return contracts.NewFetchError(op, sym, contracts.ErrUnavailable, fmt.Errorf(format, args...))
}
