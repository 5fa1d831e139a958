package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"venue/domain/risk"
)

// Config is populated from the environment, with an optional .env file for
// local development.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	Instruments []string `env:"INSTRUMENTS" envSeparator:"," envDefault:"BTC-USD,ETH-USD"`

	WALDir         string `env:"WAL_DIR" envDefault:"data/wal"`
	WALSegmentSize int64  `env:"WAL_SEGMENT_SIZE" envDefault:"67108864"`
	WALSync        bool   `env:"WAL_SYNC" envDefault:"true"`

	SnapshotDir      string        `env:"SNAPSHOT_DIR" envDefault:"data/snapshots"`
	SnapshotInterval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"1m"`

	OutboxDir string `env:"OUTBOX_DIR" envDefault:"data/outbox"`

	KafkaBrokers      []string      `env:"KAFKA_BROKERS" envSeparator:","`
	TradeTopic        string        `env:"KAFKA_TRADE_TOPIC" envDefault:"venue.trades"`
	TickTopic         string        `env:"KAFKA_TICK_TOPIC" envDefault:"venue.ticks"`
	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" envDefault:"500ms"`

	MaxPosition           int64  `env:"RISK_MAX_POSITION" envDefault:"1000000"`
	MaxInstrumentNotional string `env:"RISK_MAX_INSTRUMENT_NOTIONAL" envDefault:"10000000"`
	MaxPortfolioNotional  string `env:"RISK_MAX_PORTFOLIO_NOTIONAL" envDefault:"50000000"`
	MaxSpreadRatio        string `env:"RISK_MAX_SPREAD_RATIO" envDefault:"0.05"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if len(cfg.Instruments) == 0 {
		return nil, fmt.Errorf("no instruments configured")
	}
	return cfg, nil
}

// KafkaEnabled reports whether a broker list was configured; without one
// the venue runs with the feed and tick publishers disabled.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// RiskLimits parses the decimal-valued limits. Kept as strings in the env
// layer so precision survives the trip.
func (c *Config) RiskLimits() (risk.Limits, error) {
	var l risk.Limits
	var err error

	l.MaxPosition = c.MaxPosition
	if l.MaxInstrumentNotional, err = decimal.NewFromString(c.MaxInstrumentNotional); err != nil {
		return l, fmt.Errorf("RISK_MAX_INSTRUMENT_NOTIONAL: %w", err)
	}
	if l.MaxPortfolioNotional, err = decimal.NewFromString(c.MaxPortfolioNotional); err != nil {
		return l, fmt.Errorf("RISK_MAX_PORTFOLIO_NOTIONAL: %w", err)
	}
	if l.MaxSpreadRatio, err = decimal.NewFromString(c.MaxSpreadRatio); err != nil {
		return l, fmt.Errorf("RISK_MAX_SPREAD_RATIO: %w", err)
	}
	return l, nil
}
