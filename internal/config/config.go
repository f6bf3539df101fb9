package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptowatch/internal/alphavantage"
	"cryptowatch/internal/binance"
	"cryptowatch/internal/etherscan"
	"cryptowatch/internal/market"

	"github.com/spf13/viper"
)

// LoopConfig tunes one refresh loop.
type LoopConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Workers      int           `mapstructure:"workers"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	RateWindow   int           `mapstructure:"rate_window"`
}

// RedisConfig configures the optional snapshot mirror. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Config holds all configuration for the cryptowatch service.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`
	LogFile    string `mapstructure:"log_file"`

	// Base URLs for API endpoints (configurable for testing)
	BinanceBaseURL      string `mapstructure:"binance_base_url"`
	AlphavantageBaseURL string `mapstructure:"alphavantage_base_url"`
	EtherscanBaseURL    string `mapstructure:"etherscan_base_url"`

	AlphavantageAPIKey string `mapstructure:"alphavantage_api_key"`
	EtherscanAPIKey    string `mapstructure:"etherscan_api_key"`

	// Items to fetch
	BinanceSymbols      []string `mapstructure:"binance_symbols"`
	BinanceTimeframes   []string `mapstructure:"binance_timeframes"`
	AlphavantageSymbols []string `mapstructure:"alphavantage_symbols"`
	EtherscanAddresses  []string `mapstructure:"etherscan_addresses"`
	EtherscanTxLimit    int      `mapstructure:"etherscan_tx_limit"`

	HTTPRetries int `mapstructure:"http_retries"`

	Prices       LoopConfig  `mapstructure:"prices"`
	Transactions LoopConfig  `mapstructure:"transactions"`
	Redis        RedisConfig `mapstructure:"redis"`
}

// DefaultBinanceSymbols are the pairs shown when nothing is configured.
var DefaultBinanceSymbols = []string{
	"BTC/USDT", "ETH/USDT", "BNB/USDT", "SOL/USDT", "XRP/USDT",
	"ADA/USDT", "DOGE/USDT", "DOT/USDT", "AVAX/USDT", "LINK/USDT",
}

// DefaultTimeframes are the kline intervals used for change columns.
var DefaultTimeframes = []string{"1m", "5m", "15m", "1h", "4h", "1d"}

// DefaultEtherscanAddresses is the wallet watched out of the box.
var DefaultEtherscanAddresses = []string{"0x3B2eb8CddE3bbCb184d418c0568De2Eb40C3BfE6"}

var validTimeframes = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	v.SetDefault("binance_base_url", binance.DefaultBaseURL)
	v.SetDefault("alphavantage_base_url", alphavantage.DefaultBaseURL)
	v.SetDefault("etherscan_base_url", etherscan.DefaultBaseURL)
	v.SetDefault("alphavantage_api_key", "")
	v.SetDefault("etherscan_api_key", "")

	v.SetDefault("binance_symbols", DefaultBinanceSymbols)
	v.SetDefault("binance_timeframes", DefaultTimeframes)
	v.SetDefault("alphavantage_symbols", []string{})
	v.SetDefault("etherscan_addresses", DefaultEtherscanAddresses)
	v.SetDefault("etherscan_tx_limit", etherscan.DefaultLimit)
	v.SetDefault("http_retries", 2)

	v.SetDefault("prices.interval", 5*time.Second)
	v.SetDefault("prices.workers", 10)
	v.SetDefault("prices.fetch_timeout", 3*time.Second)
	v.SetDefault("prices.rate_window", 10)

	v.SetDefault("transactions.interval", 30*time.Second)
	v.SetDefault("transactions.workers", 10)
	v.SetDefault("transactions.fetch_timeout", 10*time.Second)
	v.SetDefault("transactions.rate_window", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Minute)
}

// Load reads configuration from defaults, an optional YAML config file and
// environment variables. Environment variables take precedence over config
// file values. Nested keys use underscores, e.g. PRICES_INTERVAL=2s.
//
// When path is empty, config.yaml is looked up in the working directory and
// in $HOME/.cryptowatch and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind environment variables for API keys
	_ = v.BindEnv("etherscan_api_key", "ETHERSCAN_API_KEY")
	_ = v.BindEnv("alphavantage_api_key", "ALPHAVANTAGE_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.cryptowatch")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every problem found in c as a single error.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.ListenAddr == "" {
		add("listen_addr must not be empty")
	}

	for _, s := range c.BinanceSymbols {
		if _, err := market.ParsePair(s); err != nil {
			add("binance_symbols: %v", err)
		}
	}
	for _, tf := range c.BinanceTimeframes {
		if !validTimeframes[tf] {
			add("binance_timeframes: unsupported interval %q", tf)
		}
	}

	if len(c.AlphavantageSymbols) > 0 && c.AlphavantageAPIKey == "" {
		add("ALPHAVANTAGE_API_KEY is required when alphavantage_symbols is set")
	}
	if len(c.EtherscanAddresses) > 0 && c.EtherscanAPIKey == "" {
		add("ETHERSCAN_API_KEY is required when etherscan_addresses is set")
	}
	for _, addr := range c.EtherscanAddresses {
		if !etherscan.ValidAddress(addr) {
			add("etherscan_addresses: invalid address %q", addr)
		}
	}
	if c.EtherscanTxLimit < 1 || c.EtherscanTxLimit > 10000 {
		add("etherscan_tx_limit must be between 1 and 10000, got %d", c.EtherscanTxLimit)
	}
	if c.HTTPRetries < 0 {
		add("http_retries must not be negative, got %d", c.HTTPRetries)
	}

	validateLoop := func(name string, l LoopConfig) {
		if l.Interval <= 0 {
			add("%s.interval must be positive", name)
		}
		if l.Workers < 1 {
			add("%s.workers must be at least 1", name)
		}
		if l.FetchTimeout <= 0 {
			add("%s.fetch_timeout must be positive", name)
		}
		if l.RateWindow < 1 {
			add("%s.rate_window must be at least 1", name)
		}
	}
	validateLoop("prices", c.Prices)
	validateLoop("transactions", c.Transactions)

	if c.Redis.Enabled() && c.Redis.TTL <= 0 {
		add("redis.ttl must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
