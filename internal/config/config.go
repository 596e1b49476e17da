// Package config defines the top-level configuration for the updown market
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by UPDOWN_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Keeper   KeeperConfig   `toml:"keeper"`
	Oracle   OracleConfig   `toml:"oracle"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Kafka    KafkaConfig    `toml:"kafka"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds the genesis market parameters. They seed the market on
// first boot only; afterwards the persisted snapshot wins and changes go
// through the admin setters.
type MarketConfig struct {
	MinBet         int64    `toml:"min_bet"`
	MaxBet         int64    `toml:"max_bet"` // 0 = unlimited
	FeeBps         int64    `toml:"fee_bps"`
	Interval       duration `toml:"interval"`
	CutoffLead     duration `toml:"cutoff_lead"`
	OutcomeMin     int64    `toml:"outcome_min"`
	OutcomeMax     int64    `toml:"outcome_max"`
	Owner          string   `toml:"owner"`
	Keeper         string   `toml:"keeper"`
	Treasury       string   `toml:"treasury"`
	GenesisOutcome int64    `toml:"genesis_outcome"` // baseline for round 1
}

// KeeperConfig holds the settlement worker parameters. Identity defaults to
// market.keeper when empty.
type KeeperConfig struct {
	Identity     string   `toml:"identity"`
	PollInterval duration `toml:"poll_interval"`
}

// OracleConfig selects and configures the outcome source.
type OracleConfig struct {
	// Source selects the outcome source: "chainlink", "http", "static".
	Source    string             `toml:"source"`
	Chainlink ChainlinkConfig    `toml:"chainlink"`
	HTTP      HTTPOracleConfig   `toml:"http"`
	Static    StaticOracleConfig `toml:"static"`
}

// ChainlinkConfig holds parameters for the Chainlink aggregator source.
type ChainlinkConfig struct {
	RPCURL     string   `toml:"rpc_url"`
	Aggregator string   `toml:"aggregator"`
	StaleAfter duration `toml:"stale_after"`
}

// HTTPOracleConfig holds parameters for the JSON ticker source.
type HTTPOracleConfig struct {
	URL   string `toml:"url"`
	Field string `toml:"field"`
}

// StaticOracleConfig holds parameters for the fixed-value dev source.
type StaticOracleConfig struct {
	Value int64 `toml:"value"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// KafkaConfig holds the optional Kafka event sink parameters.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// S3Config holds S3-compatible object storage parameters. Endpoint may stay
// empty for standard AWS S3; access_key/secret_key may stay empty to use the
// ambient AWS credential chain.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the cold-storage archiver parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters. The admin key may be given
// inline, or as an encrypted file plus password.
type ServerConfig struct {
	Port             int      `toml:"port"`
	CORSOrigins      []string `toml:"cors_origins"`
	AdminKey         string   `toml:"admin_key"`
	AdminKeyPath     string   `toml:"admin_key_path"`
	AdminKeyPassword string   `toml:"admin_key_password"`
	RateLimit        int      `toml:"rate_limit"` // public requests per client per window; 0 disables
	RateWindow       duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials. A channel is active
// when its credentials are set. The webhook secret may be given inline, or
// as an encrypted file plus password.
type NotifyConfig struct {
	TelegramToken         string   `toml:"telegram_token"`
	TelegramChatID        string   `toml:"telegram_chat_id"`
	DiscordWebhookURL     string   `toml:"discord_webhook_url"`
	WebhookURL            string   `toml:"webhook_url"`
	WebhookSecret         string   `toml:"webhook_secret"`
	WebhookSecretPath     string   `toml:"webhook_secret_path"`
	WebhookSecretPassword string   `toml:"webhook_secret_password"`
	Events                []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			MinBet:         100, // 1.00 in 2-decimal units
			MaxBet:         0,
			FeeBps:         200,
			Interval:       duration{5 * time.Minute},
			CutoffLead:     duration{30 * time.Second},
			OutcomeMin:     1,
			OutcomeMax:     100_000_000, // 1,000,000.00
			Owner:          "owner",
			Keeper:         "keeper",
			Treasury:       "treasury",
			GenesisOutcome: 10_000, // 100.00
		},
		Keeper: KeeperConfig{
			PollInterval: duration{2 * time.Second},
		},
		Oracle: OracleConfig{
			Source: "static",
			Chainlink: ChainlinkConfig{
				StaleAfter: duration{time.Hour},
			},
			HTTP: HTTPOracleConfig{
				Field: "price",
			},
			Static: StaticOracleConfig{
				Value: 10_000,
			},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "updown",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "updown.events",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "updown-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{6 * time.Hour},
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   60,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"round.settled", "settle.failed", "market.paused", "market.unpaused", "params.updated", "funds.rescued"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":  true,
	"keeper": true,
	"full":   true,
	"dev":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validOracleSources enumerates the accepted values for OracleConfig.Source.
var validOracleSources = map[string]bool{
	"chainlink": true,
	"http":      true,
	"static":    true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. Dev mode runs on in-memory
// stores, so the Postgres, Redis, and S3 sections are not checked there.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, keeper, full, dev)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market genesis parameters. The engine re-validates on boot; checking
	// here turns a crash loop into a config error at startup.
	if c.Market.MinBet <= 0 {
		errs = append(errs, "market: min_bet must be > 0")
	}
	if c.Market.MaxBet != 0 && c.Market.MaxBet < c.Market.MinBet {
		errs = append(errs, "market: max_bet must be 0 (unlimited) or >= min_bet")
	}
	if c.Market.FeeBps < 0 || c.Market.FeeBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("market: fee_bps must be in [0, 10000), got %d", c.Market.FeeBps))
	}
	if c.Market.Interval.Duration <= 0 {
		errs = append(errs, "market: interval must be positive")
	}
	if c.Market.CutoffLead.Duration < 0 || c.Market.CutoffLead.Duration >= c.Market.Interval.Duration {
		errs = append(errs, "market: cutoff_lead must be >= 0 and shorter than interval")
	}
	if c.Market.OutcomeMin >= c.Market.OutcomeMax {
		errs = append(errs, "market: outcome_min must be below outcome_max")
	}
	if c.Market.GenesisOutcome < c.Market.OutcomeMin || c.Market.GenesisOutcome > c.Market.OutcomeMax {
		errs = append(errs, fmt.Sprintf("market: genesis_outcome %d outside [outcome_min, outcome_max]", c.Market.GenesisOutcome))
	}
	if c.Market.Owner == "" {
		errs = append(errs, "market: owner must not be empty")
	}
	if c.Market.Keeper == "" {
		errs = append(errs, "market: keeper must not be empty")
	}
	if c.Market.Treasury == "" {
		errs = append(errs, "market: treasury must not be empty")
	}

	// Keeper worker checks apply in keeper, full, and dev modes.
	runsKeeper := mode == "keeper" || mode == "full" || mode == "dev"
	if runsKeeper {
		if c.Keeper.PollInterval.Duration <= 0 {
			errs = append(errs, "keeper: poll_interval must be positive")
		}

		source := strings.ToLower(c.Oracle.Source)
		if !validOracleSources[source] {
			errs = append(errs, fmt.Sprintf("oracle: unknown source %q (valid: chainlink, http, static)", c.Oracle.Source))
		}
		switch source {
		case "chainlink":
			if c.Oracle.Chainlink.RPCURL == "" {
				errs = append(errs, "oracle: chainlink.rpc_url is required for the chainlink source")
			}
			if c.Oracle.Chainlink.Aggregator == "" {
				errs = append(errs, "oracle: chainlink.aggregator is required for the chainlink source")
			}
		case "http":
			if c.Oracle.HTTP.URL == "" {
				errs = append(errs, "oracle: http.url is required for the http source")
			}
			if c.Oracle.HTTP.Field == "" {
				errs = append(errs, "oracle: http.field is required for the http source")
			}
		}
	}

	// Backing store checks apply to every mode except dev.
	if mode != "dev" && validModes[mode] {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}

		if c.Archive.Enabled {
			if c.S3.Bucket == "" {
				errs = append(errs, "s3: bucket must not be empty when the archiver is enabled")
			}
			if c.S3.Region == "" {
				errs = append(errs, "s3: region must not be empty when the archiver is enabled")
			}
			if c.Archive.Interval.Duration <= 0 {
				errs = append(errs, "archive: interval must be positive")
			}
			if c.Archive.RetentionDays < 1 {
				errs = append(errs, "archive: retention_days must be >= 1")
			}
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty when enabled")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty when enabled")
		}
	}

	// The server runs in every mode except keeper.
	if mode != "keeper" && validModes[mode] {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
		if c.Server.AdminKeyPath != "" && c.Server.AdminKeyPassword == "" {
			errs = append(errs, "server: admin_key_password is required when admin_key_path is set")
		}
		if mode != "dev" && c.Server.AdminKey == "" && c.Server.AdminKeyPath == "" {
			errs = append(errs, "server: either admin_key or admin_key_path must be set for mode "+mode)
		}
	}

	// Partial notify channel credentials are configuration mistakes.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.WebhookSecretPath != "" && c.Notify.WebhookSecretPassword == "" {
		errs = append(errs, "notify: webhook_secret_password is required when webhook_secret_path is set")
	}
	if c.Notify.WebhookURL != "" && c.Notify.WebhookSecret == "" && c.Notify.WebhookSecretPath == "" {
		errs = append(errs, "notify: webhook_secret or webhook_secret_path is required when webhook_url is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
