package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardclob/blackjackbot/internal/domain"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0x" + "11" + "22334455667788990011223344556677889900112233445566778899001122"
	cfg.Exchange.BaseURL = "https://exchange.example.com"
	return &cfg
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	// Validation resolves the network preset in place.
	assert.Equal(t, int64(10143), cfg.Chain.ChainID)
	assert.NotEmpty(t, cfg.Chain.VaultAddress)
}

func TestValidate_Failures(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "yolo"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Wallet.PrivateKey = ""
	assert.Error(t, cfg.Validate(), "no signing key")

	cfg = validConfig()
	cfg.Exchange.BaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Engine.Signals = "arbitrage,card_counting"
	assert.Error(t, cfg.Validate(), "unknown signal kind")

	cfg = validConfig()
	cfg.Chain.Network = "devnet"
	assert.Error(t, cfg.Validate())
}

func TestRiskLimits_TierPresets(t *testing.T) {
	limits, err := RiskConfig{Tier: TierConservative}.Limits()
	require.NoError(t, err)
	assert.Equal(t, int64(25*domain.AmountScale), limits.MaxPositionUnits)
	assert.Equal(t, float64(40), limits.MaxExposurePct)
	assert.True(t, limits.StopLossPriority)

	// Blank tier falls back to balanced.
	limits, err = RiskConfig{}.Limits()
	require.NoError(t, err)
	assert.Equal(t, float64(70), limits.MaxExposurePct)

	_, err = RiskConfig{Tier: "reckless"}.Limits()
	assert.Error(t, err)
}

func TestRiskLimits_Overrides(t *testing.T) {
	off := false
	limits, err := RiskConfig{
		Tier:             TierBalanced,
		MaxPositionUSDC:  200,
		MinEdgeBps:       25,
		StopLossPriority: &off,
	}.Limits()
	require.NoError(t, err)

	assert.Equal(t, int64(200*domain.AmountScale), limits.MaxPositionUnits)
	assert.Equal(t, int64(25), limits.MinEdgeBps)
	assert.False(t, limits.StopLossPriority)
	// Untouched fields keep the preset.
	assert.Equal(t, float64(20), limits.StopLossPct)
}

func TestGoalConfig_Parse(t *testing.T) {
	goal, err := GoalConfig{Mode: "target_amount", AmountUSDC: 50, Deadline: "2026-09-01T12:00:00Z"}.Parse()
	require.NoError(t, err)
	assert.Equal(t, domain.GoalTargetAmount, goal.Mode)
	assert.Equal(t, int64(50*domain.AmountScale), goal.AmountUnits)
	require.NotNil(t, goal.Deadline)

	goal, err = GoalConfig{Mode: "target_multiple", Multiple: 2}.Parse()
	require.NoError(t, err)
	assert.Equal(t, float64(2), goal.Multiple)

	_, err = GoalConfig{Mode: "target_multiple", Multiple: 1}.Parse()
	assert.Error(t, err, "multiple must exceed 1")

	_, err = GoalConfig{Mode: "all_in"}.Parse()
	assert.Error(t, err)
}

func TestLoad_TOMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "observe"
log_level = "debug"

[exchange]
base_url = "https://exchange.example.com"
request_timeout = "5s"

[risk]
tier = "aggressive"

[goal]
mode = "target_amount"
amount_usdc = 25.0
`), 0o600))

	t.Setenv("BJBOT_WALLET_PRIVATE_KEY", "0xabc123")
	t.Setenv("BJBOT_MODE", "trade")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trade", cfg.Mode, "env wins over file")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0xabc123", cfg.Wallet.PrivateKey)
	assert.Equal(t, "aggressive", cfg.Risk.Tier)
	assert.Equal(t, 5.0, cfg.Exchange.RequestTimeout.Seconds())
	// Untouched sections keep defaults.
	assert.Equal(t, 16, cfg.Engine.MaxMarkets)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/secret"

	red := RedactedConfig(cfg)
	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.DiscordWebhookURL)
	// Original untouched.
	assert.NotEqual(t, "***", cfg.Wallet.PrivateKey)
}
