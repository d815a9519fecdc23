package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Logging struct {
		Level         string `yaml:"level"`
		Format        string `yaml:"format"`
		Output        string `yaml:"output"`
		CollectErrors bool   `yaml:"collect_errors"`
		CollectTopic  string `yaml:"collect_topic"`
	} `yaml:"logging"`
	Symbols struct {
		Stocks []string `yaml:"stocks"`
		Crypto []string `yaml:"crypto"`
	} `yaml:"symbols"`
	Hub struct {
		TTL struct {
			Bars        time.Duration `yaml:"bars"`
			OrderBook   time.Duration `yaml:"order_book"`
			OptionChain time.Duration `yaml:"option_chain"`
		} `yaml:"ttl"`
		// Ordered connector names per market type; first non-empty wins.
		Sources struct {
			Stock  []string `yaml:"stock"`
			Crypto []string `yaml:"crypto"`
		} `yaml:"sources"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"hub"`
	Connectors struct {
		Binance struct {
			WebSocketURL   string        `yaml:"websocket_url"`
			RestURL        string        `yaml:"rest_url"`
			ReconnectDelay time.Duration `yaml:"reconnect_delay"`
			PingInterval   time.Duration `yaml:"ping_interval"`
		} `yaml:"binance"`
		Polygon struct {
			APIKey  string        `yaml:"api_key"`
			BaseURL string        `yaml:"base_url"`
			Timeout time.Duration `yaml:"timeout"`
		} `yaml:"polygon"`
		AlphaVantage struct {
			APIKey  string        `yaml:"api_key"`
			BaseURL string        `yaml:"base_url"`
			Timeout time.Duration `yaml:"timeout"`
		} `yaml:"alphavantage"`
	} `yaml:"connectors"`
	Pipeline struct {
		MaxRPS     int `yaml:"max_rps"`
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"pipeline"`
	Sniper struct {
		WatchInterval      time.Duration `yaml:"watch_interval"`
		ImbalanceThreshold float64       `yaml:"imbalance_threshold"`
		VolumeThreshold    float64       `yaml:"volume_threshold"`
		OptionIVThreshold  float64       `yaml:"option_iv_threshold"`
		OptionExpiries     int           `yaml:"option_expiries"`
		SummaryInterval    time.Duration `yaml:"summary_interval"`
	} `yaml:"sniper"`
	Events struct {
		SnapshotPath  string        `yaml:"snapshot_path"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		DefaultTTL    time.Duration `yaml:"default_ttl"`
	} `yaml:"events"`
	Dispatch struct {
		Interval          time.Duration `yaml:"interval"`
		BatchLimit        int           `yaml:"batch_limit"`
		MinSendInterval   time.Duration `yaml:"min_send_interval"`
		MaxPerMinute      int           `yaml:"max_per_minute"`
		SubscriptionsPath string        `yaml:"subscriptions_path"`
	} `yaml:"dispatch"`
	Ingress struct {
		Keys []IngressKey `yaml:"keys"`
	} `yaml:"ingress"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		EventsTopic  string   `yaml:"events_topic"`
		TicksTopic   string   `yaml:"ticks_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
}

// IngressKey authorizes one webhook ingress path segment.
type IngressKey struct {
	Key      string `yaml:"key"`
	Secret   string `yaml:"secret"`
	Source   string `yaml:"source"`
	Category string `yaml:"category"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		c.Connectors.Polygon.APIKey = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		c.Connectors.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols.Stocks = strings.Split(v, ",")
	}
	if v := os.Getenv("CRYPTO_SYMBOLS"); v != "" {
		c.Symbols.Crypto = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Hub.Redis.Addr = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Hub.TTL.Bars == 0 {
		c.Hub.TTL.Bars = time.Minute
	}
	if c.Hub.TTL.OrderBook == 0 {
		c.Hub.TTL.OrderBook = 5 * time.Second
	}
	if c.Hub.TTL.OptionChain == 0 {
		c.Hub.TTL.OptionChain = time.Minute
	}
	if c.Sniper.WatchInterval == 0 {
		c.Sniper.WatchInterval = time.Minute
	}
	if c.Sniper.ImbalanceThreshold == 0 {
		c.Sniper.ImbalanceThreshold = 0.3
	}
	if c.Sniper.VolumeThreshold == 0 {
		c.Sniper.VolumeThreshold = 1.5
	}
	if c.Sniper.OptionIVThreshold == 0 {
		c.Sniper.OptionIVThreshold = 0.1
	}
	if c.Sniper.OptionExpiries == 0 {
		c.Sniper.OptionExpiries = 3
	}
	if c.Sniper.SummaryInterval == 0 {
		c.Sniper.SummaryInterval = time.Hour
	}
	if c.Events.SweepInterval == 0 {
		c.Events.SweepInterval = time.Hour
	}
	if c.Events.DefaultTTL == 0 {
		c.Events.DefaultTTL = 24 * time.Hour
	}
	if c.Dispatch.Interval == 0 {
		c.Dispatch.Interval = 10 * time.Second
	}
	if c.Dispatch.BatchLimit == 0 {
		c.Dispatch.BatchLimit = 20
	}
	if c.Dispatch.MinSendInterval == 0 {
		c.Dispatch.MinSendInterval = time.Second
	}
	if c.Dispatch.MaxPerMinute == 0 {
		c.Dispatch.MaxPerMinute = 60
	}
	if c.Pipeline.MaxRPS == 0 {
		c.Pipeline.MaxRPS = 50
	}
	if c.Pipeline.BufferSize == 0 {
		c.Pipeline.BufferSize = 2000
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Symbols.Stocks) == 0 && len(c.Symbols.Crypto) == 0 {
		return fmt.Errorf("symbols: at least one of stocks or crypto is required")
	}
	if len(c.Symbols.Crypto) > 0 && len(c.Hub.Sources.Crypto) == 0 {
		return fmt.Errorf("hub.sources.crypto is required when crypto symbols are configured")
	}
	if len(c.Symbols.Stocks) > 0 && len(c.Hub.Sources.Stock) == 0 {
		return fmt.Errorf("hub.sources.stock is required when stock symbols are configured")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Kafka.Enabled && c.Kafka.EventsTopic == "" {
		return fmt.Errorf("kafka.events_topic is required when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	for i, k := range c.Ingress.Keys {
		if k.Key == "" {
			return fmt.Errorf("ingress.keys[%d].key is required", i)
		}
	}
	return nil
}
