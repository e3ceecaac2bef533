package config

import (
	"time"

	"github.com/vietddude/txmonitor/internal/infra/redis"
	"github.com/vietddude/txmonitor/internal/infra/relay"
	"github.com/vietddude/txmonitor/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig    `yaml:"server"`
	Chains   []ChainConfig   `yaml:"chains"`
	Redis    redis.Config    `yaml:"redis"`
	Logging  LoggingConfig   `yaml:"logging"`
	Database postgres.Config `yaml:"database"`
}

// ServerConfig holds health/metrics server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds settings for one tracked chain.
type ChainConfig struct {
	ChainID      uint64   `yaml:"id"`
	Name         string   `yaml:"name"`
	NativeSymbol string   `yaml:"native_symbol"`
	Endpoints    []string `yaml:"endpoints"`

	// Confirmation wait tuning
	PollInterval time.Duration `yaml:"poll_interval"`
	WaitTimeout  time.Duration `yaml:"wait_timeout"`

	// Front-run event query tuning. BlockOffset corrects chains whose log
	// indexing lags the head.
	LogWindow   uint64 `yaml:"log_window"`
	BlockOffset int64  `yaml:"block_offset"`

	// Private relay, optional
	Relay *relay.Config `yaml:"relay"`

	// Transaction-execution service used for resubmission
	ExecutionServiceURL string `yaml:"execution_service_url"`

	MaxRetries      int64         `yaml:"max_retries"`
	RetentionPeriod time.Duration `yaml:"retention_period"` // 0 = keep forever

	Pools []PoolConfig `yaml:"pools"`
}

// PoolConfig describes one relayer pool served on this chain. Pools with
// UsePrivateRelay submit through the chain's private relay and are confirmed
// via its status channel.
type PoolConfig struct {
	Name            string `yaml:"name"`
	UsePrivateRelay bool   `yaml:"use_private_relay"`
}
