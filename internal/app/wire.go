package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/bondable/internal/blob/s3"
	"github.com/alanyoungcy/bondable/internal/cache/redis"
	"github.com/alanyoungcy/bondable/internal/config"
	"github.com/alanyoungcy/bondable/internal/crypto"
	"github.com/alanyoungcy/bondable/internal/custody/evm"
	"github.com/alanyoungcy/bondable/internal/domain"
	"github.com/alanyoungcy/bondable/internal/ledger"
	"github.com/alanyoungcy/bondable/internal/notify"
	"github.com/alanyoungcy/bondable/internal/service"
	"github.com/alanyoungcy/bondable/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Core
	Ledger *ledger.Ledger

	// Stores
	MarketStore  domain.MarketStore
	BalanceStore domain.BalanceStore
	EventStore   domain.EventStore

	// Redis (nil when disabled)
	MarketCache domain.MarketCache
	EventBus    domain.EventBus
	RateLimiter domain.RateLimiter

	// Services
	Markets *service.MarketService
	Bonds   *service.BondService
	Admin   *service.AdminService
	Relay   *service.EventRelay

	// Archival (nil unless S3 is enabled)
	Archiver domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Health probes
	PostgresPing func(ctx context.Context) error
	RedisPing    func(ctx context.Context) error
}

// systemClock implements domain.Clock with the wall clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// needsCustody reports whether the mode performs ledger operations and
// therefore needs the EVM custody provider.
func needsCustody(mode string) bool {
	return mode == "server" || mode == "full"
}

// needsS3 reports whether the mode requires object storage.
func needsS3(mode string, cfg *config.Config) bool {
	switch mode {
	case "archive":
		return true
	case "full":
		return cfg.S3.Enabled
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, mode string, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL: state mirror and event journal ---
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
	deps.PostgresPing = pgClient.Pool().Ping

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.BalanceStore = postgres.NewBalanceStore(pool)
	deps.EventStore = postgres.NewEventStore(pool)

	// --- Redis: market cache, event bus, rate limiter ---
	if cfg.Redis.Enabled {
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
		deps.RedisPing = redisClient.Ping

		deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.MarketCacheTTL.Duration)
		deps.EventBus = redis.NewEventBus(redisClient, logger)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Event relay: journal + bus + notifications ---
	deps.Relay = service.NewEventRelay(deps.EventStore, deps.EventBus, deps.Notifier, logger)

	// --- Custody and ledger (modes that execute operations) ---
	if needsCustody(mode) {
		key, err := crypto.ResolveKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		signer, err := crypto.NewSigner(key, cfg.Custody.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}

		custodian, err := evm.New(ctx, evm.Config{
			RPCURL:         cfg.Custody.RPCURL,
			GasLimit:       cfg.Custody.GasLimit,
			ReceiptTimeout: cfg.Custody.ReceiptTimeout.Duration,
		}, signer, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: custody: %w", err)
		}
		closers = append(closers, custodian.Close)

		deps.Ledger = ledger.New(cfg.AdminAddress(), systemClock{}, custodian, deps.Relay)
		if err := service.Restore(ctx, deps.Ledger, deps.MarketStore, deps.BalanceStore, logger); err != nil {
			cleanup()
			return nil, nil, err
		}

		deps.Markets = service.NewMarketService(deps.Ledger, deps.MarketStore, deps.MarketCache, logger)
		deps.Bonds = service.NewBondService(deps.Ledger, deps.MarketStore, deps.BalanceStore, deps.MarketCache, logger)
		deps.Admin = service.NewAdminService(deps.Ledger, logger)
	}

	// --- S3: event journal archival ---
	if needsS3(mode, cfg) {
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

		writer := s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewEventArchiver(writer, deps.MarketStore, deps.EventStore, cfg.S3.ArchivePrefix, logger)
	}

	return deps, cleanup, nil
}
