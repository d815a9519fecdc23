package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// Binance serves crypto market data: trades over the combined-streams
// WebSocket, books and bars over REST.
type Binance struct {
	wsURL          string
	restURL        string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	log  *logger.Logger
	rest *xhttp.Client

	conn      *websocket.Conn
	connected bool
}

// NewBinance creates the Binance connector for the given stream symbols.
func NewBinance(log *logger.Logger, wsURL, restURL string, symbols []string, reconnectDelay, pingInterval time.Duration) *Binance {
	if wsURL == "" {
		wsURL = "wss://stream.binance.com:9443/stream"
	}
	if restURL == "" {
		restURL = "https://api.binance.com"
	}
	if reconnectDelay == 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}
	return &Binance{
		wsURL:          wsURL,
		restURL:        restURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
		rest:           xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) Markets() []models.MarketType {
	return []models.MarketType{models.MarketCrypto}
}

// Connect dials the combined trade stream for all configured symbols.
func (b *Binance) Connect(ctx context.Context) error {
	streams := make([]string, len(b.symbols))
	for i, s := range b.symbols {
		streams[i] = strings.ToLower(s) + "@trade"
	}
	u := fmt.Sprintf("%s?streams=%s", b.wsURL, strings.Join(streams, "/"))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	b.conn = conn
	b.connected = true
	b.log.Info("binance stream connected", logger.Strings("symbols", b.symbols))
	return nil
}

type bnTradeFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		Event     string `json:"e"`
		Symbol    string `json:"s"`
		Price     string `json:"p"`
		Quantity  string `json:"q"`
		TradeTime int64  `json:"T"` // ms
		Maker     bool   `json:"m"` // buyer is maker
	} `json:"data"`
}

// Read streams trades and errors. Trades are dropped, never blocked
// on, when the consumer falls behind.
func (b *Binance) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, 1024)
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(b.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if b.conn != nil {
					_ = b.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(trades)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if b.conn == nil {
					errs <- fmt.Errorf("binance conn nil")
					return
				}
				_, raw, err := b.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("binance read: %w", err)
					return
				}
				var f bnTradeFrame
				if err := json.Unmarshal(raw, &f); err != nil || f.Data.Event != "trade" {
					continue
				}
				price, _ := strconv.ParseFloat(f.Data.Price, 64)
				size, _ := strconv.ParseFloat(f.Data.Quantity, 64)
				side := "buy"
				if f.Data.Maker { // buyer is maker: aggressor sold
					side = "sell"
				}
				t := &models.Trade{
					Symbol:    f.Data.Symbol,
					Price:     price,
					Size:      size,
					Side:      side,
					Timestamp: f.Data.TradeTime / 1000,
				}
				select {
				case trades <- t:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return trades, errs
}

// Reconnect closes and redials after the configured delay.
func (b *Binance) Reconnect(ctx context.Context) error {
	_ = b.Close()
	time.Sleep(b.reconnectDelay)
	return b.Connect(ctx)
}

func (b *Binance) Close() error {
	b.connected = false
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

func (b *Binance) IsConnected() bool { return b.connected }

// GetBars fetches klines over REST.
func (b *Binance) GetBars(ctx context.Context, symbol string, tf drepo.Timeframe, limit int) ([]models.Bar, error) {
	if limit <= 0 {
		limit = 100
	}
	var raw [][]interface{}
	err := b.rest.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    b.restURL + "/api/v3/klines",
		QueryParams: map[string][]string{
			"symbol":   {symbol},
			"interval": {string(tf)},
			"limit":    {strconv.Itoa(limit)},
		},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("binance klines: %w", err)
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		openTime, _ := k[0].(float64)
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Timeframe: string(tf),
			Open:      parseKlineFloat(k[1]),
			High:      parseKlineFloat(k[2]),
			Low:       parseKlineFloat(k[3]),
			Close:     parseKlineFloat(k[4]),
			Volume:    parseKlineFloat(k[5]),
			Timestamp: time.UnixMilli(int64(openTime)),
		})
	}
	return bars, nil
}

type bnDepth struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

// GetOrderBook fetches a depth snapshot over REST.
func (b *Binance) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	if depth <= 0 {
		depth = 20
	}
	var d bnDepth
	err := b.rest.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    b.restURL + "/api/v3/depth",
		QueryParams: map[string][]string{
			"symbol": {symbol},
			"limit":  {strconv.Itoa(depth)},
		},
	}, &d)
	if err != nil {
		return nil, fmt.Errorf("binance depth: %w", err)
	}

	book := &models.OrderBook{Symbol: symbol, Timestamp: time.Now()}
	for _, lv := range d.Bids {
		if l, ok := parseLevel(lv); ok {
			book.Bids = append(book.Bids, l)
		}
	}
	for _, lv := range d.Asks {
		if l, ok := parseLevel(lv); ok {
			book.Asks = append(book.Asks, l)
		}
	}
	return book, nil
}

// GetOptionChain returns empty: spot endpoints carry no chains.
func (b *Binance) GetOptionChain(ctx context.Context, symbol string) (*models.OptionChain, error) {
	return &models.OptionChain{Symbol: symbol}, nil
}

func parseLevel(lv []string) (models.BookLevel, bool) {
	if len(lv) < 2 {
		return models.BookLevel{}, false
	}
	price, err1 := strconv.ParseFloat(lv[0], 64)
	size, err2 := strconv.ParseFloat(lv[1], 64)
	if err1 != nil || err2 != nil {
		return models.BookLevel{}, false
	}
	return models.BookLevel{Price: price, Size: size}, true
}

func parseKlineFloat(v interface{}) float64 {
	switch x := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	case float64:
		return x
	}
	return 0
}

var _ drepo.StreamingConnector = (*Binance)(nil)
