package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/repository"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// IngressKey authorizes one webhook source.
type IngressKey struct {
	Secret   string
	Source   string
	Category models.EventCategory
}

// IngressHandler accepts signed external webhooks and turns them into
// pooled events. Response ladder: unknown key 404, bad signature 401,
// malformed body 400, pool failure 500, otherwise 200.
type IngressHandler struct {
	logger *xlogger.Logger
	pool   *repository.Pool
	keys   map[string]IngressKey
}

func NewIngressHandler(logger *xlogger.Logger, pool *repository.Pool, keys map[string]IngressKey) *IngressHandler {
	return &IngressHandler{logger: logger, pool: pool, keys: keys}
}

func (h *IngressHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.POST("/webhook/:key", h.Receive)
}

func (h *IngressHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"events": h.pool.Len(),
	})
}

func (h *IngressHandler) Receive(c echo.Context) error {
	key := c.Param("key")
	ik, ok := h.keys[key]
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown key"})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	if ik.Secret != "" {
		if !verifySignature(ik.Secret, body, c.Request().Header.Get("X-Signature")) {
			h.logger.Warn("webhook signature mismatch", xlogger.String("key", key))
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		}
	}

	e, err := h.buildEvent(ik, body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if added := h.pool.Add(e); !added {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "event not admitted"})
	}

	h.logger.Info("webhook event ingested",
		xlogger.String("key", key),
		xlogger.String("event", e.ID),
		xlogger.String("symbol", e.Symbol))
	return xhttp.SuccessResponse(c, map[string]string{"event_id": e.ID})
}

// buildEvent maps the payload onto an event; TradingView alert bodies
// are recognized by their ticker field.
func (h *IngressHandler) buildEvent(ik IngressKey, body []byte) (*models.AIEvent, error) {
	var tv models.TradingViewAlert
	if err := json.Unmarshal(body, &tv); err != nil {
		return nil, fmt.Errorf("malformed json")
	}
	if tv.Ticker != "" {
		return tradingViewEvent(ik, tv), nil
	}

	var p models.WebhookIngressPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("malformed json")
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	category := ik.Category
	if p.Category != "" {
		c := models.EventCategory(p.Category)
		if !c.Valid() {
			return nil, fmt.Errorf("unknown category %q", p.Category)
		}
		category = c
	}
	if category == "" {
		category = models.CategoryAIInsight
	}
	priority := models.EventPriority(p.Priority).Clamp()
	title := p.Title
	if title == "" {
		title = fmt.Sprintf("%s signal for %s", ik.Source, p.Symbol)
	}

	return &models.AIEvent{
		Category: category,
		Priority: priority,
		Symbol:   p.Symbol,
		Title:    title,
		Content:  p.Content,
		Metadata: p.Metadata,
		Source:   ik.Source,
	}, nil
}

func tradingViewEvent(ik IngressKey, tv models.TradingViewAlert) *models.AIEvent {
	category := ik.Category
	if category == "" {
		category = models.CategoryTechnicalSignal
	}
	action := strings.ToLower(tv.Action)
	title := fmt.Sprintf("TradingView alert: %s %s", strings.ToUpper(action), tv.Ticker)
	if action == "" {
		title = fmt.Sprintf("TradingView alert: %s", tv.Ticker)
	}
	meta := map[string]interface{}{}
	if tv.Price > 0 {
		meta["price"] = tv.Price
	}
	if tv.Interval != "" {
		meta["interval"] = tv.Interval
	}
	if action != "" {
		meta["action"] = action
	}
	return &models.AIEvent{
		Category:  category,
		Priority:  models.PriorityMedium,
		Symbol:    tv.Ticker,
		Title:     title,
		Content:   tv.Message,
		Metadata:  meta,
		Source:    ik.Source,
		Timestamp: time.Now(),
	}
}

// verifySignature compares the hex HMAC-SHA256 of body in constant time.
func verifySignature(secret string, body []byte, got string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

var _ xhttp.Handler = (*IngressHandler)(nil)
