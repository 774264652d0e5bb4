package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"BarFeed/internal/domain/models"
	"BarFeed/internal/domain/repository"
	domsvc "BarFeed/internal/domain/service"
	xhttp "BarFeed/pkg/http"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo reads today's one-minute bars from the Yahoo Finance chart API and keeps
// only those inside the trading session.
type Yahoo struct {
	symbol  string
	session *domsvc.Session
	opts    options
}

var _ repository.Provider = (*Yahoo)(nil)

func NewYahoo(symbol string, session *domsvc.Session, opts ...Option) *Yahoo {
	return &Yahoo{symbol: symbol, session: session, opts: buildOptions(yahooBaseURL, opts)}
}

func (y *Yahoo) Name() string { return KindYahoo }

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *Yahoo) Fetch(ctx context.Context) ([]models.Bar, error) {
	var resp yahooChart
	err := y.opts.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    fmt.Sprintf("%s/v8/finance/chart/%s", y.opts.baseURL, url.PathEscape(y.symbol)),
		QueryParams: map[string][]string{
			"interval":       {"1m"},
			"range":          {"1d"},
			"includePrePost": {"false"},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("chart error %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, repository.ErrProviderEmpty
	}

	res := resp.Chart.Result[0]
	q := res.Indicators.Quote[0]
	bars := make([]models.Bar, 0, len(res.Timestamp))
	for i, sec := range res.Timestamp {
		open, high, low, closePx := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if open == nil || high == nil || low == nil || closePx == nil {
			continue
		}
		ts := time.Unix(sec, 0).UTC().Truncate(time.Minute)
		if y.session != nil && y.session.MarketState(ts) != models.MarketOpen {
			continue
		}
		vol := 0.0
		if v := at(q.Volume, i); v != nil {
			vol = *v
		}
		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      *open,
			High:      *high,
			Low:       *low,
			Close:     *closePx,
			Volume:    vol,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars in market session for %s: %w", y.symbol, repository.ErrProviderEmpty)
	}
	models.SortBars(bars)
	return bars, nil
}

func at(xs []*float64, i int) *float64 {
	if i >= len(xs) {
		return nil
	}
	return xs[i]
}
