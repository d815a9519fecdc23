package connector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"
)

// AlphaVantage is a bars-only fallback source. Books and chains are
// not offered on its API, so those fetchers return empty.
type AlphaVantage struct {
	apiKey  string
	baseURL string
	log     *logger.Logger
	rest    *xhttp.Client
}

func NewAlphaVantage(log *logger.Logger, apiKey, baseURL string, timeout time.Duration) *AlphaVantage {
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co"
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &AlphaVantage{
		apiKey:  apiKey,
		baseURL: baseURL,
		log:     log,
		rest:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (a *AlphaVantage) Name() string { return "alphavantage" }

func (a *AlphaVantage) Markets() []models.MarketType {
	return []models.MarketType{models.MarketStock, models.MarketCrypto}
}

func avInterval(tf drepo.Timeframe) (function, interval string) {
	switch tf {
	case drepo.TF1d:
		return "TIME_SERIES_DAILY", ""
	case drepo.TF1h:
		return "TIME_SERIES_INTRADAY", "60min"
	case drepo.TF15m:
		return "TIME_SERIES_INTRADAY", "15min"
	case drepo.TF5m:
		return "TIME_SERIES_INTRADAY", "5min"
	default:
		return "TIME_SERIES_INTRADAY", "1min"
	}
}

// GetBars fetches a time series and returns it oldest-first.
func (a *AlphaVantage) GetBars(ctx context.Context, symbol string, tf drepo.Timeframe, limit int) ([]models.Bar, error) {
	function, interval := avInterval(tf)
	params := map[string][]string{
		"function": {function},
		"symbol":   {symbol},
		"apikey":   {a.apiKey},
	}
	if interval != "" {
		params["interval"] = []string{interval}
	}

	var raw map[string]interface{}
	err := a.rest.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         a.baseURL + "/query",
		QueryParams: params,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("alphavantage query: %w", err)
	}

	series := findSeries(raw)
	if series == nil {
		// rate-limit note or unknown symbol; either way, no data
		return nil, nil
	}

	stamps := make([]string, 0, len(series))
	for ts := range series {
		stamps = append(stamps, ts)
	}
	sort.Strings(stamps)
	if limit > 0 && len(stamps) > limit {
		stamps = stamps[len(stamps)-limit:]
	}

	bars := make([]models.Bar, 0, len(stamps))
	for _, ts := range stamps {
		row, ok := series[ts].(map[string]interface{})
		if !ok {
			continue
		}
		t, err := time.Parse("2006-01-02 15:04:05", ts)
		if err != nil {
			if t, err = time.Parse("2006-01-02", ts); err != nil {
				continue
			}
		}
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Timeframe: string(tf),
			Open:      avFloat(row["1. open"]),
			High:      avFloat(row["2. high"]),
			Low:       avFloat(row["3. low"]),
			Close:     avFloat(row["4. close"]),
			Volume:    avFloat(row["5. volume"]),
			Timestamp: t,
		})
	}
	return bars, nil
}

func (a *AlphaVantage) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	return &models.OrderBook{Symbol: symbol}, nil
}

func (a *AlphaVantage) GetOptionChain(ctx context.Context, symbol string) (*models.OptionChain, error) {
	return &models.OptionChain{Symbol: symbol}, nil
}

// findSeries locates the "Time Series (...)" object in the response.
func findSeries(raw map[string]interface{}) map[string]interface{} {
	for k, v := range raw {
		if k == "Meta Data" || k == "Note" || k == "Information" || k == "Error Message" {
			continue
		}
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}

func avFloat(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

var _ drepo.Connector = (*AlphaVantage)(nil)
