package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/datahub"

	"github.com/labstack/echo/v4"
)

type barsConnector struct {
	bars []models.Bar
}

func (c *barsConnector) Name() string { return "fake" }

func (c *barsConnector) Markets() []models.MarketType {
	return []models.MarketType{models.MarketStock}
}

func (c *barsConnector) GetBars(context.Context, string, drepo.Timeframe, int) ([]models.Bar, error) {
	return c.bars, nil
}

func (c *barsConnector) GetOrderBook(_ context.Context, symbol string, _ int) (*models.OrderBook, error) {
	return &models.OrderBook{Symbol: symbol}, nil
}

func (c *barsConnector) GetOptionChain(_ context.Context, symbol string) (*models.OptionChain, error) {
	return &models.OptionChain{Symbol: symbol}, nil
}

func newMarketAPI(t *testing.T, bars []models.Bar) *echo.Echo {
	t.Helper()
	hub := datahub.New(testLogger(t), nopMetrics{},
		[]drepo.Connector{&barsConnector{bars: bars}},
		map[models.MarketType][]string{models.MarketStock: {"fake"}})
	e := echo.New()
	NewMarketHandler(testLogger(t), hub).RegisterRoutes(e)
	return e
}

func minuteBars(n int, start time.Time) []models.Bar {
	out := make([]models.Bar, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Bar{
			Symbol:    "SPY",
			Timeframe: "1m",
			Close:     500 + float64(i),
			Timestamp: start.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestMarketBarsRequiresSymbol(t *testing.T) {
	e := newMarketAPI(t, nil)
	if env := decodeEnvelope(t, get(e, "/api/v1/market/bars")); env.Status != http.StatusBadRequest {
		t.Fatalf("want 400 in envelope, got %d", env.Status)
	}
}

func TestMarketBarsRangeClipping(t *testing.T) {
	start := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	e := newMarketAPI(t, minuteBars(10, start))

	env := decodeEnvelope(t, get(e, "/api/v1/market/bars?symbol=SPY&tf=1m"))
	var list struct {
		Rows  []models.Bar `json:"rows"`
		Total int64        `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("bars payload: %v", err)
	}
	if list.Total != 10 {
		t.Fatalf("unfiltered bars: %d", list.Total)
	}

	from := start.Add(3 * time.Minute).Format(time.RFC3339)
	to := start.Add(6 * time.Minute).Format(time.RFC3339)
	path := fmt.Sprintf("/api/v1/market/bars?symbol=SPY&tf=1m&from=%s&to=%s", from, to)
	env = decodeEnvelope(t, get(e, path))
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("clipped payload: %v", err)
	}
	if list.Total != 4 {
		t.Fatalf("want 4 bars in range, got %d", list.Total)
	}
	if !list.Rows[0].Timestamp.Equal(start.Add(3 * time.Minute)) {
		t.Fatalf("range start: %v", list.Rows[0].Timestamp)
	}
}

func TestMarketBookUnavailable(t *testing.T) {
	e := newMarketAPI(t, nil)
	env := decodeEnvelope(t, get(e, "/api/v1/market/book?symbol=SPY"))
	if env.Status != http.StatusServiceUnavailable {
		t.Fatalf("empty book should be 503 in envelope, got %d", env.Status)
	}
}
