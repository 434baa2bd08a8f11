package yahoo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/wonny/marketlens/internal/contracts"
)

const summaryModules = "price,summaryDetail,assetProfile"

// FetchProfile returns static attributes; quoteSummary first, the HTML profile page second
func (c *Client) FetchProfile(ctx context.Context, sym contracts.Symbol) (*contracts.Profile, error) {
	p, err := c.summary(ctx, sym)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, contracts.ErrTimeout) {
		return nil, err
	}

	c.log.Debug().Err(err).Str("symbol", string(sym)).Msg("quoteSummary failed, trying profile page")

	p, htmlErr := c.profilePage(ctx, sym)
	if htmlErr != nil {
		return nil, errors.Join(err, htmlErr)
	}
	return p, nil
}

func (c *Client) summary(ctx context.Context, sym contracts.Symbol) (*contracts.Profile, error) {
	u := fmt.Sprintf("%s/%s?%s", strings.TrimRight(c.summaryURL, "/"), url.PathEscape(string(sym)),
		url.Values{"modules": {summaryModules}}.Encode())

	body, err := c.http.GetBytes(ctx, u)
	if err != nil {
		return nil, classify("profile", sym, err)
	}
	return parseSummary(body, sym)
}

func parseSummary(body []byte, sym contracts.Symbol) (*contracts.Profile, error) {
	res := gjson.GetBytes(body, "quoteSummary.result.0")
	if !res.Exists() {
		desc := gjson.GetBytes(body, "quoteSummary.error.description").String()
		return nil, malformed("profile", sym, "no quoteSummary.result: %s", desc)
	}

	p := &contracts.Profile{
		Name:   firstString(res, "price.shortName", "price.longName"),
		Sector: res.Get("assetProfile.sector").String(),
	}
	if v := firstRaw(res, "summaryDetail.marketCap", "price.marketCap"); v.Exists() {
		p.MarketCap = v.Float()
	}
	if v := firstRaw(res, "summaryDetail.trailingPE"); v.Exists() {
		p.TrailingPE = contracts.Float(v.Float())
	}
	if v := firstRaw(res, "summaryDetail.dividendYield", "summaryDetail.trailingAnnualDividendYield"); v.Exists() {
		p.DividendYield = contracts.Float(v.Float())
	}
	return p, nil
}

// firstRaw returns the first numeric {raw: x} field that is present
func firstRaw(res gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		v := res.Get(p + ".raw")
		if v.Exists() && v.Type == gjson.Number {
			return v
		}
	}
	return gjson.Result{}
}

func firstString(res gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := strings.TrimSpace(res.Get(p).String()); s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) profilePage(ctx context.Context, sym contracts.Symbol) (*contracts.Profile, error) {
	u := fmt.Sprintf("%s/%s/profile", strings.TrimRight(c.profileURL, "/"), url.PathEscape(string(sym)))

	body, err := c.http.GetBytes(ctx, u)
	if err != nil {
		return nil, classify("profile", sym, err)
	}
	return parseProfileHTML(body, sym)
}

// parseProfileHTML takes the heading as name and the value following a "Sector" label.
// The page carries no valuation figures, so those stay unset.
func parseProfileHTML(body []byte, sym contracts.Symbol) (*contracts.Profile, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, malformed("profile", sym, "parse html: %v", err)
	}

	p := &contracts.Profile{}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		// "Apple Inc. (AAPL)" → "Apple Inc."
		p.Name = strings.TrimSpace(strings.TrimSuffix(h1, "("+string(sym)+")"))
	}

	doc.Find("dt, span, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.TrimSpace(s.Text())
		if !strings.HasPrefix(label, "Sector") {
			return true
		}
		if v := strings.TrimSpace(s.Next().Text()); v != "" {
			p.Sector = v
			return false
		}
		return true
	})

	if p.Name == "" && p.Sector == "" {
		return nil, malformed("profile", sym, "profile page has no name or sector")
	}
	return p, nil
}
