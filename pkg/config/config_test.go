package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
environment: test
symbols:
  stocks: [SPY]
hub:
  sources:
    stock: [polygon]
`

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Dispatch.Interval != 10*time.Second || c.Dispatch.MaxPerMinute != 60 {
		t.Fatalf("dispatch defaults: %+v", c.Dispatch)
	}
	if c.Hub.TTL.OrderBook != 5*time.Second {
		t.Fatalf("ttl default: %v", c.Hub.TTL.OrderBook)
	}
	if c.Sniper.ImbalanceThreshold != 0.3 {
		t.Fatalf("sniper default: %v", c.Sniper.ImbalanceThreshold)
	}
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	bad := []string{
		`symbols: {stocks: [SPY]}`,
		`environment: test`,
		`
environment: test
symbols: {crypto: [BTCUSDT]}
`,
		`
environment: test
symbols: {stocks: [SPY]}
hub: {sources: {stock: [polygon]}}
kafka: {enabled: true}
`,
	}
	for i, body := range bad {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "pk_test")
	t.Setenv("SYMBOLS", "AAPL,TSLA")

	c, err := LoadWithEnv(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Connectors.Polygon.APIKey != "pk_test" {
		t.Fatalf("env api key not applied")
	}
	if len(c.Symbols.Stocks) != 2 || c.Symbols.Stocks[0] != "AAPL" {
		t.Fatalf("env symbols not applied: %v", c.Symbols.Stocks)
	}
}
