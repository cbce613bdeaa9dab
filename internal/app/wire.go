package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/cardclob/blackjackbot/internal/blob/s3"
	"github.com/cardclob/blackjackbot/internal/cache/redis"
	"github.com/cardclob/blackjackbot/internal/chain"
	"github.com/cardclob/blackjackbot/internal/config"
	"github.com/cardclob/blackjackbot/internal/crypto"
	"github.com/cardclob/blackjackbot/internal/domain"
	"github.com/cardclob/blackjackbot/internal/engine"
	"github.com/cardclob/blackjackbot/internal/notify"
	"github.com/cardclob/blackjackbot/internal/platform/exchange"
	"github.com/cardclob/blackjackbot/internal/store/memory"
	"github.com/cardclob/blackjackbot/internal/store/postgres"
)

// Dependencies bundles everything the operating modes need. Constructed by
// Wire, torn down by the returned cleanup function.
type Dependencies struct {
	Signer  *crypto.Signer
	Address string

	Exchange *exchange.Client
	Chain    domain.ChainAPI

	OrderStore  domain.OrderStore
	FillStore   domain.FillStore
	ReportStore domain.ReportStore

	SnapshotCache domain.SnapshotCache // nil without Redis
	SessionLock   domain.SessionLocker // nil without Redis
	Archiver      domain.ReportArchiver // nil without S3

	Notifier  *notify.Notifier
	Reporters []engine.Reporter
}

// Wire constructs the concrete dependency graph from the configuration. The
// chain parameters may be overridden by the venue's published config when
// exchange.fetch_remote_config is set.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- Signing key ---
	keyHex, err := crypto.LoadKey(crypto.KeySource{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: load signing key: %w", err))
	}

	// --- Exchange REST client ---
	deps.Exchange = exchange.NewClient(
		cfg.Exchange.BaseURL,
		cfg.Exchange.RequestTimeout.Duration,
		cfg.Exchange.RateLimitRPS,
	)

	// Venue-published chain parameters win over the local preset when the
	// operator opts in.
	chainCfg := cfg.Chain
	if cfg.Exchange.FetchRemoteConfig {
		remote, err := deps.Exchange.FetchRemoteConfig(ctx)
		if err != nil {
			return fail(fmt.Errorf("wire: fetch remote config: %w", err))
		}
		if remote.ChainID != 0 {
			chainCfg.ChainID = remote.ChainID
		}
		if remote.RPCURL != "" {
			chainCfg.RPCURL = remote.RPCURL
		}
		if remote.Contracts.Exchange != "" {
			chainCfg.ExchangeAddress = remote.Contracts.Exchange
		}
		if remote.Contracts.Vault != "" {
			chainCfg.VaultAddress = remote.Contracts.Vault
		}
		if remote.Contracts.USDC != "" {
			chainCfg.USDCAddress = remote.Contracts.USDC
		}
		logger.Info("remote config applied",
			slog.String("network", remote.Network),
			slog.Int64("chain_id", chainCfg.ChainID))
	}

	deps.Signer, err = crypto.NewSigner(keyHex, chainCfg.ChainID, chainCfg.ExchangeAddress)
	if err != nil {
		return fail(fmt.Errorf("wire: signer: %w", err))
	}
	deps.Address = deps.Signer.Address().Hex()

	// --- Chain adapter ---
	chainClient, err := chain.NewClient(
		chainCfg.RPCURL,
		keyHex,
		chainCfg.ChainID,
		chainCfg.VaultAddress,
		chainCfg.ExchangeAddress,
		chainCfg.USDCAddress,
		logger,
	)
	if err != nil {
		return fail(fmt.Errorf("wire: chain: %w", err))
	}
	deps.Chain = chainClient

	// --- Persistence ---
	if cfg.Postgres.Enabled {
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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.FillStore = postgres.NewFillStore(pool)
		deps.ReportStore = postgres.NewReportStore(pool)
	} else {
		logger.Warn("postgres disabled, using in-memory stores")
		deps.OrderStore = memory.NewOrderStore()
		deps.FillStore = memory.NewFillStore()
		deps.ReportStore = memory.NewReportStore()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
		deps.SessionLock = redis.NewSessionLock(redisClient)
	}

	// --- S3 report archive ---
	if cfg.S3.Enabled {
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewReportArchiver(s3Client, "reports", logger)
	}

	// --- Report sinks and alerts ---
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

	if cfg.Notify.Console {
		deps.Reporters = append(deps.Reporters, notify.NewConsole(cfg.Notify.ConsoleTable))
	} else {
		deps.Reporters = append(deps.Reporters, notify.NewSlogSink(logger))
	}
	if len(senders) > 0 {
		deps.Reporters = append(deps.Reporters, notify.NewReportPublisher(deps.Notifier))
	}

	return deps, cleanup, nil
}
