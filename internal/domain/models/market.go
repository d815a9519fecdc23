package models

import "time"

// MarketType splits symbols into connector fail-over groups.
type MarketType string

const (
	MarketStock  MarketType = "stock"
	MarketCrypto MarketType = "crypto"
)

// DataType identifies a kind of market data the hub serves.
type DataType string

const (
	DataTrade       DataType = "trade"
	DataOrderBook   DataType = "order_book"
	DataBars        DataType = "bars"
	DataOptionChain DataType = "option_chain"
)

// Trade is a single executed trade from a feed.
type Trade struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Side      string  `json:"side,omitempty"` // buy or sell when the feed provides it
	Timestamp int64   `json:"timestamp"`      // unix seconds
}

// Value returns the notional value of the trade.
func (t *Trade) Value() float64 { return t.Price * t.Size }

// Bar is one OHLCV candle.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a depth snapshot for a symbol.
type OrderBook struct {
	Symbol    string      `json:"symbol"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
}

// Empty reports whether the book carries no levels at all.
func (b *OrderBook) Empty() bool {
	return b == nil || (len(b.Bids) == 0 && len(b.Asks) == 0)
}

// MidPrice returns the mid of best bid and ask, or 0 when either side is empty.
func (b *OrderBook) MidPrice() float64 {
	if b == nil || len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2
}

// OptionContract is one strike row of an option chain.
type OptionContract struct {
	Expiry       string  `json:"expiry"`
	Strike       float64 `json:"strike"`
	Type         string  `json:"type"` // call or put
	Volume       float64 `json:"volume"`
	OpenInterest float64 `json:"open_interest"`
	IV           float64 `json:"iv"`
}

// OptionChain is a chain snapshot for an underlying.
type OptionChain struct {
	Symbol     string           `json:"symbol"`
	Underlying float64          `json:"underlying"`
	Expiries   []string         `json:"expiries"`
	Contracts  []OptionContract `json:"contracts"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Empty reports whether the chain carries no contracts.
func (c *OptionChain) Empty() bool {
	return c == nil || len(c.Contracts) == 0
}

// ByExpiry groups contracts for one expiry, preserving order.
func (c *OptionChain) ByExpiry(expiry string) []OptionContract {
	var out []OptionContract
	for _, oc := range c.Contracts {
		if oc.Expiry == expiry {
			out = append(out, oc)
		}
	}
	return out
}

// Update is a push-style market data delivery into the hub.
type Update struct {
	Type      DataType     `json:"type"`
	Symbol    string       `json:"symbol"`
	Source    string       `json:"source"`
	Trade     *Trade       `json:"trade,omitempty"`
	Book      *OrderBook   `json:"book,omitempty"`
	Bars      []Bar        `json:"bars,omitempty"`
	Chain     *OptionChain `json:"chain,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
