package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	s3blob "github.com/updownhq/updown/internal/blob/s3"
	"github.com/updownhq/updown/internal/cache/redis"
	"github.com/updownhq/updown/internal/config"
	"github.com/updownhq/updown/internal/crypto"
	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/events"
	"github.com/updownhq/updown/internal/metrics"
	"github.com/updownhq/updown/internal/notify"
	"github.com/updownhq/updown/internal/store/memory"
	"github.com/updownhq/updown/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function. Dev mode swaps Postgres and Redis for in-memory equivalents, so
// StateCache, Limiter, and Locks may be nil.
type Dependencies struct {
	// Stores
	Rounds domain.RoundStore
	Bets   domain.BetStore
	Claims domain.ClaimStore
	Params domain.ParamsStore
	Audit  domain.AuditStore

	// Value movement
	Bank  domain.Bank
	Admin domain.AccountAdmin

	// Cross-instance coordination
	StateCache domain.StateCache
	Limiter    domain.RateLimiter
	Locks      domain.LockManager
	Bus        domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Eventing and observability
	Events   domain.EventSink
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Notifier *notify.Notifier

	// Resolved secrets
	AdminKey string

	// Health probes for the /api/health endpoint, keyed by dependency name.
	HealthChecks map[string]func(ctx context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		HealthChecks: make(map[string]func(ctx context.Context) error),
	}

	// Archive stores, held concrete for the S3 archiver below.
	var (
		roundArchive s3blob.RoundArchiveStore
		betArchive   s3blob.BetArchiveStore
	)

	if strings.ToLower(cfg.Mode) == "dev" {
		store := memory.New()
		bank := memory.NewBank("escrow")
		deps.Rounds = store
		deps.Bets = store
		deps.Claims = store
		deps.Params = store
		deps.Audit = store
		deps.Bank = bank
		deps.Admin = bank
		deps.Bus = memory.NewSignalBus()
	} else {
		// --- PostgreSQL ---
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		rounds := postgres.NewRoundStore(pool)
		bets := postgres.NewBetStore(pool)
		deps.Rounds = rounds
		deps.Bets = bets
		deps.Claims = postgres.NewClaimStore(pool)
		deps.Params = postgres.NewParamsStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		bank := postgres.NewBank(pool, "escrow")
		deps.Bank = bank
		deps.Admin = bank
		roundArchive = rounds
		betArchive = bets
		deps.HealthChecks["postgres"] = pool.Ping

		// --- Redis ---
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.StateCache = redis.NewStateCache(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping

		// --- S3 blob storage (only when the archiver is on) ---
		if cfg.Archive.Enabled {
			s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
				Endpoint:       cfg.S3.Endpoint,
				Region:         cfg.S3.Region,
				Bucket:         cfg.S3.Bucket,
				AccessKey:      cfg.S3.AccessKey,
				SecretKey:      cfg.S3.SecretKey,
				UseSSL:         cfg.S3.UseSSL,
				ForcePathStyle: cfg.S3.ForcePathStyle,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: s3: %w", err)
			}
			closers = append(closers, func() { _ = s3Client.Close() })

			deps.BlobWriter = s3blob.NewWriter(s3Client)
			deps.BlobReader = s3blob.NewReader(s3Client)
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, roundArchive, betArchive, deps.Audit)
			deps.HealthChecks["s3"] = s3Client.Health
		}
	}

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	deps.Metrics = metrics.New(registry)
	deps.Gatherer = registry

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.WebhookURL != "" {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			Value:         cfg.Notify.WebhookSecret,
			EncryptedPath: cfg.Notify.WebhookSecretPath,
			Password:      cfg.Notify.WebhookSecretPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: webhook secret: %w", err)
		}
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL, secret))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Event fan-out ---
	sinks := []domain.EventSink{
		events.NewAuditSink(deps.Audit),
		events.NewMetricsSink(deps.Metrics),
		events.NewBusSink(deps.Bus),
		notify.NewAlertSink(deps.Notifier),
	}
	if cfg.Kafka.Enabled {
		kafkaSink := events.NewKafkaSink(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		closers = append(closers, func() { _ = kafkaSink.Close() })
		sinks = append(sinks, kafkaSink)
	}
	deps.Events = events.NewFanout(sinks...)

	// --- Admin key ---
	adminKey, err := crypto.LoadSecret(crypto.SecretConfig{
		Value:         cfg.Server.AdminKey,
		EncryptedPath: cfg.Server.AdminKeyPath,
		Password:      cfg.Server.AdminKeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: admin key: %w", err)
	}
	deps.AdminKey = adminKey

	return deps, cleanup, nil
}
