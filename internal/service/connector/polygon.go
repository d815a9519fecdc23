package connector

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"
)

// Polygon serves stock (and crypto fallback) data over the Polygon.io
// REST API.
type Polygon struct {
	apiKey  string
	baseURL string
	log     *logger.Logger
	rest    *xhttp.Client
}

func NewPolygon(log *logger.Logger, apiKey, baseURL string, timeout time.Duration) *Polygon {
	if baseURL == "" {
		baseURL = "https://api.polygon.io"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Polygon{
		apiKey:  apiKey,
		baseURL: baseURL,
		log:     log,
		rest:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (p *Polygon) Name() string { return "polygon" }

func (p *Polygon) Markets() []models.MarketType {
	return []models.MarketType{models.MarketStock, models.MarketCrypto}
}

func polygonTimespan(tf drepo.Timeframe) (int, string) {
	switch tf {
	case drepo.TF1m:
		return 1, "minute"
	case drepo.TF5m:
		return 5, "minute"
	case drepo.TF15m:
		return 15, "minute"
	case drepo.TF1h:
		return 1, "hour"
	case drepo.TF1d:
		return 1, "day"
	}
	return 1, "minute"
}

type polygonAggs struct {
	Results []struct {
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
		T int64   `json:"t"` // ms
	} `json:"results"`
}

// GetBars fetches aggregates for the last day of the timeframe.
func (p *Polygon) GetBars(ctx context.Context, symbol string, tf drepo.Timeframe, limit int) ([]models.Bar, error) {
	if limit <= 0 {
		limit = 100
	}
	mult, span := polygonTimespan(tf)
	to := time.Now()
	from := to.Add(-24 * time.Hour)

	var out polygonAggs
	url := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		p.baseURL, symbol, mult, span,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	err := p.rest.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    url,
		QueryParams: map[string][]string{
			"limit":  {strconv.Itoa(limit)},
			"sort":   {"asc"},
			"apiKey": {p.apiKey},
		},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("polygon aggs: %w", err)
	}

	bars := make([]models.Bar, 0, len(out.Results))
	for _, r := range out.Results {
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Timeframe: string(tf),
			Open:      r.O,
			High:      r.H,
			Low:       r.L,
			Close:     r.C,
			Volume:    r.V,
			Timestamp: time.UnixMilli(r.T),
		})
	}
	return bars, nil
}

type polygonNBBO struct {
	Results struct {
		BidPrice float64 `json:"p"`
		BidSize  float64 `json:"s"`
		AskPrice float64 `json:"P"`
		AskSize  float64 `json:"S"`
		SipTime  int64   `json:"t"`
	} `json:"results"`
}

// GetOrderBook builds a one-level book from the latest NBBO quote;
// Polygon exposes no full stock depth on this tier.
func (p *Polygon) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	var out polygonNBBO
	err := p.rest.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         fmt.Sprintf("%s/v2/last/nbbo/%s", p.baseURL, symbol),
		QueryParams: map[string][]string{"apiKey": {p.apiKey}},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("polygon nbbo: %w", err)
	}

	book := &models.OrderBook{Symbol: symbol, Timestamp: time.Now()}
	if out.Results.BidPrice > 0 {
		book.Bids = []models.BookLevel{{Price: out.Results.BidPrice, Size: out.Results.BidSize}}
	}
	if out.Results.AskPrice > 0 {
		book.Asks = []models.BookLevel{{Price: out.Results.AskPrice, Size: out.Results.AskSize}}
	}
	return book, nil
}

type polygonChain struct {
	Results []struct {
		Details struct {
			Strike float64 `json:"strike_price"`
			Expiry string  `json:"expiration_date"`
			Type   string  `json:"contract_type"`
		} `json:"details"`
		Day struct {
			Volume float64 `json:"volume"`
		} `json:"day"`
		OpenInterest float64 `json:"open_interest"`
		IV           float64 `json:"implied_volatility"`
		Underlying   struct {
			Price float64 `json:"price"`
		} `json:"underlying_asset"`
	} `json:"results"`
}

// GetOptionChain fetches the option chain snapshot for an underlying.
func (p *Polygon) GetOptionChain(ctx context.Context, symbol string) (*models.OptionChain, error) {
	var out polygonChain
	err := p.rest.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    fmt.Sprintf("%s/v3/snapshot/options/%s", p.baseURL, symbol),
		QueryParams: map[string][]string{
			"limit":  {"250"},
			"apiKey": {p.apiKey},
		},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("polygon chain: %w", err)
	}

	chain := &models.OptionChain{Symbol: symbol, Timestamp: time.Now()}
	seen := make(map[string]struct{})
	for _, r := range out.Results {
		if chain.Underlying == 0 {
			chain.Underlying = r.Underlying.Price
		}
		if _, ok := seen[r.Details.Expiry]; !ok {
			seen[r.Details.Expiry] = struct{}{}
			chain.Expiries = append(chain.Expiries, r.Details.Expiry)
		}
		chain.Contracts = append(chain.Contracts, models.OptionContract{
			Expiry:       r.Details.Expiry,
			Strike:       r.Details.Strike,
			Type:         r.Details.Type,
			Volume:       r.Day.Volume,
			OpenInterest: r.OpenInterest,
			IV:           r.IV,
		})
	}
	return chain, nil
}

var _ drepo.Connector = (*Polygon)(nil)
