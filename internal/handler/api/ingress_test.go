package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/repository"
	"MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

type nopMetrics struct{}

func (nopMetrics) RecordEventEmitted(string)       {}
func (nopMetrics) RecordDelivery(string, string)   {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordCacheHit(string)           {}
func (nopMetrics) RecordCacheMiss(string)          {}
func (nopMetrics) RecordFailover(string, string)   {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func newIngress(t *testing.T) (*echo.Echo, *repository.Pool) {
	t.Helper()
	pool := repository.NewPool(testLogger(t), nopMetrics{})
	h := NewIngressHandler(testLogger(t), pool, map[string]IngressKey{
		"open":   {Source: "partner", Category: models.CategoryAIInsight},
		"signed": {Secret: "s3cret", Source: "tradingview", Category: models.CategoryTechnicalSignal},
	})
	e := echo.New()
	h.RegisterRoutes(e)
	return e, pool
}

func post(e *echo.Echo, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestIngressUnknownKey(t *testing.T) {
	e, _ := newIngress(t)
	rec := post(e, "/webhook/nope", `{"symbol":"SPY"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestIngressBadSignature(t *testing.T) {
	e, pool := newIngress(t)
	body := `{"symbol":"SPY"}`

	rec := post(e, "/webhook/signed", body, map[string]string{"X-Signature": "deadbeef"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong signature: want 401, got %d", rec.Code)
	}
	rec = post(e, "/webhook/signed", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: want 401, got %d", rec.Code)
	}
	if pool.Len() != 0 {
		t.Fatalf("rejected request produced an event")
	}
}

func TestIngressMalformedBody(t *testing.T) {
	e, _ := newIngress(t)

	if rec := post(e, "/webhook/open", `{not json`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed json: want 400, got %d", rec.Code)
	}
	if rec := post(e, "/webhook/open", `{"title":"no symbol"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing symbol: want 400, got %d", rec.Code)
	}
	if rec := post(e, "/webhook/open", `{"symbol":"SPY","category":"bogus"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown category: want 400, got %d", rec.Code)
	}
}

func TestIngressAcceptsSignedPayload(t *testing.T) {
	e, pool := newIngress(t)
	body := `{"symbol":"BTCUSDT","category":"whale_alert","priority":9,"title":"big print","metadata":{"value":2500000}}`

	rec := post(e, "/webhook/signed", body, map[string]string{"X-Signature": sign("s3cret", body)})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	events := pool.BySymbol("BTCUSDT", 10)
	if len(events) != 1 {
		t.Fatalf("event not pooled")
	}
	got := events[0]
	if got.Category != models.CategoryWhaleAlert || got.Source != "tradingview" {
		t.Fatalf("event mapping: %+v", got)
	}
	if got.Priority != models.PriorityCritical {
		t.Fatalf("priority 9 should clamp to critical, got %d", got.Priority)
	}
	if !strings.Contains(rec.Body.String(), got.ID) {
		t.Fatalf("response missing event id: %s", rec.Body.String())
	}
}

func TestIngressDefaultsFromKey(t *testing.T) {
	e, pool := newIngress(t)

	rec := post(e, "/webhook/open", `{"symbol":"AAPL"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	got := pool.BySymbol("AAPL", 1)[0]
	if got.Category != models.CategoryAIInsight {
		t.Fatalf("category should default from the key, got %s", got.Category)
	}
	if got.Title != "partner signal for AAPL" {
		t.Fatalf("default title: %q", got.Title)
	}
	if got.Priority != models.PriorityLow {
		t.Fatalf("absent priority should clamp to low, got %d", got.Priority)
	}
}

func TestIngressTradingViewAlert(t *testing.T) {
	e, pool := newIngress(t)
	body := `{"ticker":"TSLA","action":"BUY","price":250.5,"interval":"15m","message":"breakout"}`

	rec := post(e, "/webhook/signed", body, map[string]string{"X-Signature": sign("s3cret", body)})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	got := pool.BySymbol("TSLA", 1)[0]
	if got.Category != models.CategoryTechnicalSignal || got.Priority != models.PriorityMedium {
		t.Fatalf("alert mapping: %+v", got)
	}
	if got.Content != "breakout" {
		t.Fatalf("message not carried: %q", got.Content)
	}
	if action, _ := got.Metadata["action"].(string); action != "buy" {
		t.Fatalf("action metadata: %v", got.Metadata)
	}
	if price, _ := got.MetadataFloat("price"); price != 250.5 {
		t.Fatalf("price metadata: %v", got.Metadata)
	}
}

func TestIngressHealth(t *testing.T) {
	e, pool := newIngress(t)
	pool.Add(&models.AIEvent{Category: models.CategoryAIInsight, Priority: models.PriorityLow, Symbol: "SPY", Title: "x"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
		Events int    `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("health body: %v", err)
	}
	if resp.Status != "ok" || resp.Events != 1 {
		t.Fatalf("health payload: %+v", resp)
	}
}
