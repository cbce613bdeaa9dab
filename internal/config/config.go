// Package config defines the top-level configuration for the blackjack
// trading bot and provides validation, tier presets, and goal parsing.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BJBOT_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Exchange ExchangeConfig `toml:"exchange"`
	Chain    ChainConfig    `toml:"chain"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Engine   EngineConfig   `toml:"engine"`
	Risk     RiskConfig     `toml:"risk"`
	Goal     GoalConfig     `toml:"goal"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the trading wallet credentials. Either PrivateKey or the
// encrypted key pair must be set. WithdrawTo is the only address cashouts may
// target; it is deliberately config-only so runtime data can never redirect
// funds.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	WithdrawTo       string `toml:"withdraw_to"`
}

// ExchangeConfig holds the venue's REST and WebSocket endpoints.
type ExchangeConfig struct {
	BaseURL        string   `toml:"base_url"`
	WsURL          string   `toml:"ws_url"`
	RequestTimeout duration `toml:"request_timeout"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	// FetchRemoteConfig pulls contract addresses from GET /api/config at
	// startup, overriding the network preset.
	FetchRemoteConfig bool `toml:"fetch_remote_config"`
}

// ChainConfig holds the EVM network parameters. Network selects a built-in
// preset ("testnet" or "mainnet"); explicit fields override the preset.
type ChainConfig struct {
	Network         string `toml:"network"`
	ChainID         int64  `toml:"chain_id"`
	RPCURL          string `toml:"rpc_url"`
	ExchangeAddress string `toml:"exchange_address"`
	VaultAddress    string `toml:"vault_address"`
	USDCAddress     string `toml:"usdc_address"`
}

// PostgresConfig holds database connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the report
// archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds trading cycle parameters.
type EngineConfig struct {
	Heartbeat      duration `toml:"heartbeat"`
	SnapshotMaxAge duration `toml:"snapshot_max_age"`
	NetworkTimeout duration `toml:"network_timeout"`
	OrderExpiry    duration `toml:"order_expiry"`
	MaxMarkets     int      `toml:"max_markets"`
	// Signals is a comma-separated set of enabled signal kinds; empty
	// enables all of them.
	Signals        string   `toml:"signals"`
	MomentumWindow duration `toml:"momentum_window"`
	// SpreadImproveBps is how far inside the current best quotes spread
	// capture orders are posted.
	SpreadImproveBps int64 `toml:"spread_improve_bps"`
}

// RiskConfig holds the risk governor parameters. Tier selects a named preset;
// explicit non-zero fields override the preset values.
type RiskConfig struct {
	Tier             string  `toml:"tier"`
	MaxPositionUSDC  float64 `toml:"max_position_usdc"`
	MaxExposurePct   float64 `toml:"max_exposure_pct"`
	StopLossPct      float64 `toml:"stop_loss_pct"`
	DefaultOrderUSDC float64 `toml:"default_order_usdc"`
	MinEdgeBps       int64   `toml:"min_edge_bps"`
	StopLossPriority *bool   `toml:"stop_loss_priority"`
}

// GoalConfig holds the operator profit goal in structured form.
type GoalConfig struct {
	Mode       string  `toml:"mode"`
	AmountUSDC float64 `toml:"amount_usdc"`
	Multiple   float64 `toml:"multiple"`
	RateUSDC   float64 `toml:"rate_usdc_per_hour"`
	Deadline   string  `toml:"deadline"` // RFC 3339, optional
}

// NotifyConfig holds report sink configuration.
type NotifyConfig struct {
	Console           bool     `toml:"console"`
	ConsoleTable      bool     `toml:"console_table"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration to support TOML string decoding ("30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		Mode:     "trade",
		LogLevel: "info",
		Exchange: ExchangeConfig{
			RequestTimeout: duration{10 * time.Second},
			RateLimitRPS:   10,
		},
		Chain: ChainConfig{
			Network: "testnet",
		},
		Postgres: PostgresConfig{
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize:   4,
			MaxRetries: 3,
		},
		Engine: EngineConfig{
			Heartbeat:        duration{30 * time.Second},
			SnapshotMaxAge:   duration{30 * time.Second},
			NetworkTimeout:   duration{10 * time.Second},
			OrderExpiry:      duration{time.Hour},
			MaxMarkets:       16,
			MomentumWindow:   duration{60 * time.Second},
			SpreadImproveBps: 10,
		},
		Risk: RiskConfig{
			Tier: TierBalanced,
		},
		Goal: GoalConfig{
			Mode:       string(domain.GoalTargetAmount),
			AmountUSDC: 100,
		},
		Notify: NotifyConfig{
			Console: true,
		},
	}
}

// Validate checks the configuration for fatal problems: a missing signing
// key, incomplete risk limits, or unusable endpoints. The engine refuses to
// start any cycle on an invalid configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "trade", "observe", "reconcile":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		return fmt.Errorf("config: no signing key: set wallet.private_key or wallet.encrypted_key_path")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.PrivateKey == "" && c.Wallet.KeyPassword == "" {
		return fmt.Errorf("config: wallet.key_password required to decrypt %s", c.Wallet.EncryptedKeyPath)
	}

	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("config: exchange.base_url is required")
	}

	chain, err := c.Chain.Resolve()
	if err != nil {
		return err
	}
	c.Chain = chain

	limits, err := c.Risk.Limits()
	if err != nil {
		return err
	}
	if !limits.Valid() {
		return fmt.Errorf("config: incomplete risk limits for tier %q", c.Risk.Tier)
	}

	if _, err := c.Goal.Parse(); err != nil {
		return err
	}

	if c.Engine.Heartbeat.Duration <= 0 {
		return fmt.Errorf("config: engine.heartbeat must be positive")
	}
	if c.Engine.SnapshotMaxAge.Duration <= 0 {
		return fmt.Errorf("config: engine.snapshot_max_age must be positive")
	}

	if _, unknown := domain.ParseKindSet(c.Engine.Signals); len(unknown) > 0 {
		return fmt.Errorf("config: unknown signal kinds: %s", strings.Join(unknown, ", "))
	}

	return nil
}
