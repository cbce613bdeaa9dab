package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BJBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known BJBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "BJBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.PrivateKey, "PRIVATE_KEY") // agent.env compatibility
	setStr(&cfg.Wallet.EncryptedKeyPath, "BJBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "BJBOT_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.WithdrawTo, "BJBOT_WALLET_WITHDRAW_TO")
	setStr(&cfg.Wallet.WithdrawTo, "WITHDRAW_TO") // agent.env compatibility

	setStr(&cfg.Exchange.BaseURL, "BJBOT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.BaseURL, "EXCHANGE_URL") // agent.env compatibility
	setStr(&cfg.Exchange.WsURL, "BJBOT_EXCHANGE_WS_URL")

	setStr(&cfg.Chain.Network, "BJBOT_CHAIN_NETWORK")
	setStr(&cfg.Chain.Network, "NETWORK") // agent.env compatibility
	setInt64(&cfg.Chain.ChainID, "BJBOT_CHAIN_ID")
	setStr(&cfg.Chain.RPCURL, "BJBOT_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ExchangeAddress, "BJBOT_CHAIN_EXCHANGE_ADDRESS")
	setStr(&cfg.Chain.VaultAddress, "BJBOT_CHAIN_VAULT_ADDRESS")
	setStr(&cfg.Chain.USDCAddress, "BJBOT_CHAIN_USDC_ADDRESS")

	setBool(&cfg.Postgres.Enabled, "BJBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "BJBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BJBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BJBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BJBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BJBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BJBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BJBOT_POSTGRES_SSLMODE")

	setBool(&cfg.Redis.Enabled, "BJBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BJBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BJBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BJBOT_REDIS_DB")

	setBool(&cfg.S3.Enabled, "BJBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BJBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BJBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "BJBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BJBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BJBOT_S3_SECRET_KEY")

	setStr(&cfg.Risk.Tier, "BJBOT_RISK_TIER")
	setStr(&cfg.Engine.Signals, "BJBOT_ENGINE_SIGNALS")
	setStr(&cfg.Goal.Mode, "BJBOT_GOAL_MODE")

	setStr(&cfg.Notify.DiscordWebhookURL, "BJBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramToken, "BJBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BJBOT_NOTIFY_TELEGRAM_CHAT_ID")

	setStr(&cfg.Mode, "BJBOT_MODE")
	setStr(&cfg.LogLevel, "BJBOT_LOG_LEVEL")
}

func setStr(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
