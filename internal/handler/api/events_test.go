package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/repository"

	"github.com/labstack/echo/v4"
)

func newEventsAPI(t *testing.T) (*echo.Echo, *repository.Pool) {
	t.Helper()
	pool := repository.NewPool(testLogger(t), nopMetrics{})
	e := echo.New()
	NewEventsHandler(testLogger(t), pool).RegisterRoutes(e)
	return e, pool
}

func seedEvent(pool *repository.Pool, id, symbol string, cat models.EventCategory, pr models.EventPriority, ts time.Time) {
	pool.Add(&models.AIEvent{
		ID:        id,
		Category:  cat,
		Priority:  pr,
		Symbol:    symbol,
		Title:     id,
		Timestamp: ts,
		Expiry:    ts.Add(24 * time.Hour),
	})
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func listRows(t *testing.T, rec *httptest.ResponseRecorder) []*models.AIEvent {
	t.Helper()
	env := decodeEnvelope(t, rec)
	if env.Status != http.StatusOK {
		t.Fatalf("list status %d: %s", env.Status, rec.Body.String())
	}
	var list struct {
		Rows  []*models.AIEvent `json:"rows"`
		Total int64             `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("list payload: %v", err)
	}
	return list.Rows
}

func TestEventsListByIndex(t *testing.T) {
	e, pool := newEventsAPI(t)
	base := time.Now()
	seedEvent(pool, "w1", "BTCUSDT", models.CategoryWhaleAlert, models.PriorityHigh, base)
	seedEvent(pool, "w2", "BTCUSDT", models.CategoryWhaleAlert, models.PriorityUrgent, base.Add(time.Second))
	seedEvent(pool, "l1", "SPY", models.CategoryLiquiditySignal, models.PriorityLow, base.Add(2*time.Second))

	rows := listRows(t, get(e, "/api/v1/events?category=whale_alert"))
	if len(rows) != 2 || rows[0].ID != "w2" {
		t.Fatalf("category index: %+v", rows)
	}

	rows = listRows(t, get(e, "/api/v1/events?symbol=SPY"))
	if len(rows) != 1 || rows[0].ID != "l1" {
		t.Fatalf("symbol index: %+v", rows)
	}

	rows = listRows(t, get(e, "/api/v1/events?priority=4"))
	if len(rows) != 1 || rows[0].ID != "w2" {
		t.Fatalf("priority index: %+v", rows)
	}

	// Category outranks symbol when both are present.
	rows = listRows(t, get(e, "/api/v1/events?category=liquidity_signal&symbol=BTCUSDT"))
	if len(rows) != 1 || rows[0].ID != "l1" {
		t.Fatalf("index precedence: %+v", rows)
	}

	rows = listRows(t, get(e, "/api/v1/events"))
	if len(rows) != 3 || rows[0].ID != "l1" {
		t.Fatalf("default listing: %+v", rows)
	}

	rows = listRows(t, get(e, "/api/v1/events?limit=1"))
	if len(rows) != 1 {
		t.Fatalf("limit ignored: %+v", rows)
	}
}

func TestEventsListUnknownCategory(t *testing.T) {
	e, _ := newEventsAPI(t)
	rec := get(e, "/api/v1/events?category=bogus")
	if env := decodeEnvelope(t, rec); env.Status != http.StatusBadRequest {
		t.Fatalf("want 400 in envelope, got %d", env.Status)
	}
}

func TestEventsGet(t *testing.T) {
	e, pool := newEventsAPI(t)
	seedEvent(pool, "w1", "BTCUSDT", models.CategoryWhaleAlert, models.PriorityHigh, time.Now())

	env := decodeEnvelope(t, get(e, "/api/v1/events/w1"))
	if env.Status != http.StatusOK {
		t.Fatalf("get: %d", env.Status)
	}
	var got models.AIEvent
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("event payload: %v", err)
	}
	if got.ID != "w1" || got.Symbol != "BTCUSDT" {
		t.Fatalf("event mapping: %+v", got)
	}

	if env := decodeEnvelope(t, get(e, "/api/v1/events/missing")); env.Status != http.StatusNotFound {
		t.Fatalf("get unknown: %d", env.Status)
	}
}
