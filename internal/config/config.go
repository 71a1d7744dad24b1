// Package config loads runtime configuration from file, environment and
// defaults. Precedence order, highest first: environment, config file,
// defaults. The config file can be TOML, JSON or YAML.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configFileName = "vote"
	envPrefix      = "VOTE"
)

// Config is the full runtime configuration.
type Config struct {
	UsedConfigFile string `mapstructure:"-"`

	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Clickhouse ClickhouseConfig `mapstructure:"clickhouse"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Solana     SolanaConfig     `mapstructure:"solana"`
	Vote       VoteConfig       `mapstructure:"vote"`
	Weight     WeightConfig     `mapstructure:"weight"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Pool       PoolConfig       `mapstructure:"pool"`
}

// ServerConfig groups HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig groups logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// DatabaseConfig groups Postgres settings. An empty URL selects the
// in-memory stores, which lose state on restart.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// ClickhouseConfig groups score history settings. Optional: an empty DSN
// disables the timeseries.
type ClickhouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// KafkaConfig groups the accepted-vote feed settings. Optional: no
// brokers disables the feed.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// SolanaConfig groups RPC node settings.
type SolanaConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
}

// VoteConfig groups what counts as a vote.
type VoteConfig struct {
	Mint   string `mapstructure:"mint"`
	Wallet string `mapstructure:"wallet"`

	// Voting window bounds, RFC 3339. Empty means unbounded.
	OpenTime  string `mapstructure:"open_time"`
	CloseTime string `mapstructure:"close_time"`
}

// Window parses the voting window bounds into unix ms, zero when unset.
func (v VoteConfig) Window() (open, close int64, err error) {
	if v.OpenTime != "" {
		t, err := time.Parse(time.RFC3339, v.OpenTime)
		if err != nil {
			return 0, 0, fmt.Errorf("vote.open_time: %w", err)
		}
		open = t.UnixMilli()
	}
	if v.CloseTime != "" {
		t, err := time.Parse(time.RFC3339, v.CloseTime)
		if err != nil {
			return 0, 0, fmt.Errorf("vote.close_time: %w", err)
		}
		close = t.UnixMilli()
	}
	if open > 0 && close > 0 && close < open {
		return 0, 0, fmt.Errorf("vote.close_time %s precedes vote.open_time %s", v.CloseTime, v.OpenTime)
	}
	return open, close, nil
}

// WeightConfig groups the anti-whale weighting parameters.
type WeightConfig struct {
	MinVote    float64 `mapstructure:"min_vote"`
	Multiplier float64 `mapstructure:"multiplier"`
	Cap        float64 `mapstructure:"cap"`
}

// ScoringConfig groups aggregation timing.
type ScoringConfig struct {
	Debounce          time.Duration `mapstructure:"debounce"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

// PoolConfig groups prize pool polling settings. Prices is a list, not a
// mint-keyed table: viper lowercases map keys, which would corrupt the
// case-sensitive base58 mint addresses.
type PoolConfig struct {
	Target       float64       `mapstructure:"target"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RecentLimit  int           `mapstructure:"recent_limit"`
	Prices       []PriceConfig `mapstructure:"prices"`
}

// PriceConfig is the operator-set conversion for one mint.
type PriceConfig struct {
	Mint   string  `mapstructure:"mint"`
	Symbol string  `mapstructure:"symbol"`
	Price  float64 `mapstructure:"price"`
}

// PriceMap keys the configured prices by mint, case preserved.
func (p PoolConfig) PriceMap() map[string]PriceConfig {
	out := make(map[string]PriceConfig, len(p.Prices))
	for _, price := range p.Prices {
		out[price.Mint] = price
	}
	return out
}

// Load reads configuration. file may be empty, in which case vote.toml
// (or .json/.yaml) is searched in the working directory; a missing file
// leaves defaults and environment in charge.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configFileName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.vote-tracker")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.UsedConfigFile = v.ConfigFileUsed()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Every key gets a default, empty included, so environment variables
	// bind even when the key is absent from the config file.
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.url", "")
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("vote.mint", "")
	v.SetDefault("vote.wallet", "")
	v.SetDefault("vote.open_time", "")
	v.SetDefault("vote.close_time", "")
	v.SetDefault("pool.target", 0.0)
	v.SetDefault("weight.min_vote", 1.0)
	v.SetDefault("weight.multiplier", 3.0)
	v.SetDefault("weight.cap", 10.0)
	v.SetDefault("scoring.debounce", 2*time.Second)
	v.SetDefault("scoring.reconcile_interval", 10*time.Minute)
	v.SetDefault("pool.poll_interval", time.Minute)
	v.SetDefault("pool.recent_limit", 10)
	v.SetDefault("kafka.topic", "votes.accepted")
}

func (c *Config) validate() error {
	if c.Vote.Mint == "" {
		return fmt.Errorf("vote.mint is required")
	}
	if c.Vote.Wallet == "" {
		return fmt.Errorf("vote.wallet is required")
	}
	if _, _, err := c.Vote.Window(); err != nil {
		return err
	}
	if c.Weight.Cap <= 0 {
		return fmt.Errorf("weight.cap must be positive")
	}
	if c.Scoring.Debounce <= 0 {
		return fmt.Errorf("scoring.debounce must be positive")
	}
	if c.Pool.PollInterval <= 0 {
		return fmt.Errorf("pool.poll_interval must be positive")
	}
	for i, price := range c.Pool.Prices {
		if price.Mint == "" {
			return fmt.Errorf("pool.prices[%d]: mint is required", i)
		}
	}
	return nil
}
