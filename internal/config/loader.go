package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies UPDOWN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known UPDOWN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setInt64(&cfg.Market.MinBet, "UPDOWN_MARKET_MIN_BET")
	setInt64(&cfg.Market.MaxBet, "UPDOWN_MARKET_MAX_BET")
	setInt64(&cfg.Market.FeeBps, "UPDOWN_MARKET_FEE_BPS")
	setDuration(&cfg.Market.Interval, "UPDOWN_MARKET_INTERVAL")
	setDuration(&cfg.Market.CutoffLead, "UPDOWN_MARKET_CUTOFF_LEAD")
	setInt64(&cfg.Market.OutcomeMin, "UPDOWN_MARKET_OUTCOME_MIN")
	setInt64(&cfg.Market.OutcomeMax, "UPDOWN_MARKET_OUTCOME_MAX")
	setStr(&cfg.Market.Owner, "UPDOWN_MARKET_OWNER")
	setStr(&cfg.Market.Keeper, "UPDOWN_MARKET_KEEPER")
	setStr(&cfg.Market.Treasury, "UPDOWN_MARKET_TREASURY")
	setInt64(&cfg.Market.GenesisOutcome, "UPDOWN_MARKET_GENESIS_OUTCOME")

	// ── Keeper ──
	setStr(&cfg.Keeper.Identity, "UPDOWN_KEEPER_IDENTITY")
	setDuration(&cfg.Keeper.PollInterval, "UPDOWN_KEEPER_POLL_INTERVAL")

	// ── Oracle ──
	setStr(&cfg.Oracle.Source, "UPDOWN_ORACLE_SOURCE")
	setStr(&cfg.Oracle.Chainlink.RPCURL, "UPDOWN_ORACLE_CHAINLINK_RPC_URL")
	setStr(&cfg.Oracle.Chainlink.Aggregator, "UPDOWN_ORACLE_CHAINLINK_AGGREGATOR")
	setDuration(&cfg.Oracle.Chainlink.StaleAfter, "UPDOWN_ORACLE_CHAINLINK_STALE_AFTER")
	setStr(&cfg.Oracle.HTTP.URL, "UPDOWN_ORACLE_HTTP_URL")
	setStr(&cfg.Oracle.HTTP.Field, "UPDOWN_ORACLE_HTTP_FIELD")
	setInt64(&cfg.Oracle.Static.Value, "UPDOWN_ORACLE_STATIC_VALUE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "UPDOWN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "UPDOWN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UPDOWN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UPDOWN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UPDOWN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UPDOWN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UPDOWN_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "UPDOWN_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "UPDOWN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "UPDOWN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "UPDOWN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "UPDOWN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UPDOWN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "UPDOWN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWN_REDIS_TLS_ENABLED")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "UPDOWN_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "UPDOWN_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "UPDOWN_KAFKA_TOPIC")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "UPDOWN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UPDOWN_S3_REGION")
	setStr(&cfg.S3.Bucket, "UPDOWN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "UPDOWN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UPDOWN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "UPDOWN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "UPDOWN_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "UPDOWN_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "UPDOWN_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "UPDOWN_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "UPDOWN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "UPDOWN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminKey, "UPDOWN_SERVER_ADMIN_KEY")
	setStr(&cfg.Server.AdminKeyPath, "UPDOWN_SERVER_ADMIN_KEY_PATH")
	setStr(&cfg.Server.AdminKeyPassword, "UPDOWN_SERVER_ADMIN_KEY_PASSWORD")
	setInt(&cfg.Server.RateLimit, "UPDOWN_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "UPDOWN_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "UPDOWN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "UPDOWN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "UPDOWN_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "UPDOWN_NOTIFY_WEBHOOK_SECRET")
	setStr(&cfg.Notify.WebhookSecretPath, "UPDOWN_NOTIFY_WEBHOOK_SECRET_PATH")
	setStr(&cfg.Notify.WebhookSecretPassword, "UPDOWN_NOTIFY_WEBHOOK_SECRET_PASSWORD")
	setStringSlice(&cfg.Notify.Events, "UPDOWN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "UPDOWN_MODE")
	setStr(&cfg.LogLevel, "UPDOWN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
