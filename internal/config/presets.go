package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// Risk tier names. A tier is just a named RiskLimits preset; explicit
// [risk] fields in the TOML file override individual preset values.
const (
	TierConservative = "conservative"
	TierBalanced     = "balanced"
	TierAggressive   = "aggressive"
)

// tierPresets maps tier names to their canonical limits, in display USDC.
var tierPresets = map[string]domain.RiskLimits{
	TierConservative: {
		MaxPositionUnits:  25 * domain.AmountScale,
		MaxExposurePct:    40,
		StopLossPct:       10,
		DefaultOrderUnits: 5 * domain.AmountScale,
		MinEdgeBps:        200,
		StopLossPriority:  true,
	},
	TierBalanced: {
		MaxPositionUnits:  50 * domain.AmountScale,
		MaxExposurePct:    70,
		StopLossPct:       20,
		DefaultOrderUnits: 10 * domain.AmountScale,
		MinEdgeBps:        100,
		StopLossPriority:  true,
	},
	TierAggressive: {
		MaxPositionUnits:  100 * domain.AmountScale,
		MaxExposurePct:    90,
		StopLossPct:       30,
		DefaultOrderUnits: 25 * domain.AmountScale,
		MinEdgeBps:        50,
		StopLossPriority:  true,
	},
}

// Limits resolves the risk tier preset and applies any explicit overrides,
// returning the single canonical RiskLimits record the governor reads.
func (r RiskConfig) Limits() (domain.RiskLimits, error) {
	tier := strings.ToLower(strings.TrimSpace(r.Tier))
	if tier == "" {
		tier = TierBalanced
	}
	limits, ok := tierPresets[tier]
	if !ok {
		return domain.RiskLimits{}, fmt.Errorf("config: unknown risk tier %q", r.Tier)
	}

	if r.MaxPositionUSDC > 0 {
		limits.MaxPositionUnits = domain.USDCToUnits(r.MaxPositionUSDC)
	}
	if r.MaxExposurePct > 0 {
		limits.MaxExposurePct = r.MaxExposurePct
	}
	if r.StopLossPct > 0 {
		limits.StopLossPct = r.StopLossPct
	}
	if r.DefaultOrderUSDC > 0 {
		limits.DefaultOrderUnits = domain.USDCToUnits(r.DefaultOrderUSDC)
	}
	if r.MinEdgeBps > 0 {
		limits.MinEdgeBps = r.MinEdgeBps
	}
	if r.StopLossPriority != nil {
		limits.StopLossPriority = *r.StopLossPriority
	}

	return limits, nil
}

// networkPresets are the built-in chain parameters per network.
var networkPresets = map[string]ChainConfig{
	"testnet": {
		Network:         "testnet",
		ChainID:         10143,
		RPCURL:          "https://testnet-rpc.monad.xyz",
		ExchangeAddress: "0xC628e81B506b572391669339c2AbaCFafa0d95dD",
		VaultAddress:    "0xd1a710199b84899856696Ce0AA30377fB7B485C3",
		USDCAddress:     "0xDE6498947808BCcD50F18785Cc3B0C472380C1fB",
	},
	"mainnet": {
		Network:         "mainnet",
		ChainID:         143,
		RPCURL:          "https://rpc.monad.xyz",
		ExchangeAddress: "0xC628e81B506b572391669339c2AbaCFafa0d95dD",
		VaultAddress:    "0xd1a710199b84899856696Ce0AA30377fB7B485C3",
		USDCAddress:     "0xDE6498947808BCcD50F18785Cc3B0C472380C1fB",
	},
}

// Resolve fills zero-valued chain fields from the selected network preset.
func (c ChainConfig) Resolve() (ChainConfig, error) {
	network := strings.ToLower(strings.TrimSpace(c.Network))
	if network == "" {
		network = "testnet"
	}
	preset, ok := networkPresets[network]
	if !ok {
		return ChainConfig{}, fmt.Errorf("config: unknown network %q", c.Network)
	}

	out := c
	out.Network = network
	if out.ChainID == 0 {
		out.ChainID = preset.ChainID
	}
	if out.RPCURL == "" {
		out.RPCURL = preset.RPCURL
	}
	if out.ExchangeAddress == "" {
		out.ExchangeAddress = preset.ExchangeAddress
	}
	if out.VaultAddress == "" {
		out.VaultAddress = preset.VaultAddress
	}
	if out.USDCAddress == "" {
		out.USDCAddress = preset.USDCAddress
	}
	return out, nil
}

// Parse converts the goal section into the structured domain.Goal record.
// The record is parsed once at session start; the governor and scheduler
// read only the record afterwards.
func (g GoalConfig) Parse() (domain.Goal, error) {
	mode := domain.GoalMode(strings.ToLower(strings.TrimSpace(g.Mode)))

	goal := domain.Goal{Mode: mode}
	switch mode {
	case domain.GoalTargetAmount:
		if g.AmountUSDC <= 0 {
			return domain.Goal{}, fmt.Errorf("config: goal.amount_usdc must be positive for mode %s", mode)
		}
		goal.AmountUnits = domain.USDCToUnits(g.AmountUSDC)
	case domain.GoalTargetMultiple:
		if g.Multiple <= 1 {
			return domain.Goal{}, fmt.Errorf("config: goal.multiple must exceed 1 for mode %s", mode)
		}
		goal.Multiple = g.Multiple
	case domain.GoalTargetRate:
		if g.RateUSDC <= 0 {
			return domain.Goal{}, fmt.Errorf("config: goal.rate_usdc_per_hour must be positive for mode %s", mode)
		}
		goal.RateUnits = domain.USDCToUnits(g.RateUSDC)
	default:
		return domain.Goal{}, fmt.Errorf("config: unknown goal mode %q", g.Mode)
	}

	if g.Deadline != "" {
		t, err := time.Parse(time.RFC3339, g.Deadline)
		if err != nil {
			return domain.Goal{}, fmt.Errorf("config: goal.deadline: %w", err)
		}
		goal.Deadline = &t
	}

	return goal, nil
}
