package repository

import (
	"fmt"
	"math"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
)

// Event constructors mirror how detectors describe what they saw; each
// builds, admits, and returns the event (nil when deduplicated).

// CreateLiquidityEvent records an order-flow imbalance signal.
// Priority scales with magnitude: >0.7 high, >0.4 medium, else low.
func (p *Pool) CreateLiquidityEvent(symbol string, imbalance float64, metadata map[string]interface{}) *models.AIEvent {
	mag := math.Abs(imbalance)
	priority := models.PriorityLow
	switch {
	case mag > 0.7:
		priority = models.PriorityHigh
	case mag > 0.4:
		priority = models.PriorityMedium
	}

	direction := "bullish"
	if imbalance < 0 {
		direction = "bearish"
	}

	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata["imbalance"] = imbalance

	e := &models.AIEvent{
		Category:  models.CategoryMarketImbalance,
		Priority:  priority,
		Symbol:    symbol,
		Title:     fmt.Sprintf("%s shows %.2f %s order imbalance", symbol, mag, direction),
		Content:   fmt.Sprintf("Order flow on %s is leaning %s with an imbalance of %.2f.", symbol, direction, imbalance),
		Metadata:  metadata,
		Source:    "liquidity_sniper",
		Timestamp: time.Now(),
	}
	if !p.Add(e) {
		return nil
	}
	return e
}

// CreateWhaleAlert records an outsized trade. Priority scales with
// notional value: >$5M urgent, >$1M high, else medium.
func (p *Pool) CreateWhaleAlert(symbol, side string, value, size, price float64, metadata map[string]interface{}) *models.AIEvent {
	priority := models.PriorityMedium
	switch {
	case value > 5_000_000:
		priority = models.PriorityUrgent
	case value > 1_000_000:
		priority = models.PriorityHigh
	}

	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata["value"] = value
	metadata["size"] = size
	metadata["price"] = price
	metadata["side"] = side

	e := &models.AIEvent{
		Category:  models.CategoryWhaleAlert,
		Priority:  priority,
		Symbol:    symbol,
		Title:     fmt.Sprintf("Whale Alert: %s %s $%.0f", strings.ToUpper(side), symbol, value),
		Content:   fmt.Sprintf("Large %s of %.4f %s at %.2f ($%.0f notional).", side, size, symbol, price, value),
		Metadata:  metadata,
		Source:    "whale_monitor",
		Timestamp: time.Now(),
	}
	if !p.Add(e) {
		return nil
	}
	return e
}

// CreateAIInsight records a synthesized insight event.
func (p *Pool) CreateAIInsight(symbol, title, content string, priority models.EventPriority, metadata map[string]interface{}) *models.AIEvent {
	e := &models.AIEvent{
		Category:  models.CategoryAIInsight,
		Priority:  priority.Clamp(),
		Symbol:    symbol,
		Title:     title,
		Content:   content,
		Metadata:  metadata,
		Source:    "ai_commander",
		Timestamp: time.Now(),
	}
	if !p.Add(e) {
		return nil
	}
	return e
}

// CreateOptionsAlert records an option chain anomaly.
func (p *Pool) CreateOptionsAlert(symbol, title, content string, priority models.EventPriority, metadata map[string]interface{}) *models.AIEvent {
	e := &models.AIEvent{
		Category:  models.CategoryOptionsAlert,
		Priority:  priority.Clamp(),
		Symbol:    symbol,
		Title:     title,
		Content:   content,
		Metadata:  metadata,
		Source:    "liquidity_sniper",
		Timestamp: time.Now(),
	}
	if !p.Add(e) {
		return nil
	}
	return e
}
