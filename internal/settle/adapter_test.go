package settle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardclob/blackjackbot/internal/domain"
	"github.com/cardclob/blackjackbot/internal/ledger"
)

const testAddress = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"

// scriptedChain returns canned balances and errors, and decrements the vault
// on claim like the real contract would.
type scriptedChain struct {
	vault       int64
	vaultErr    error
	shares      domain.SharePair
	txErr       error
	claimPayout int64
	claims      int
}

func (c *scriptedChain) VaultBalance(context.Context, string) (int64, error) {
	return c.vault, c.vaultErr
}

func (c *scriptedChain) WalletBalance(context.Context, string) (int64, error) { return 0, nil }

func (c *scriptedChain) Shares(context.Context, uint64, string) (domain.SharePair, error) {
	return c.shares, nil
}

func (c *scriptedChain) Deposit(context.Context, int64) (string, error) {
	return "0xdep", c.txErr
}

func (c *scriptedChain) Withdraw(context.Context, int64) (string, error) {
	return "0xwit", c.txErr
}

func (c *scriptedChain) Mint(context.Context, uint64, int64) (string, error) {
	return "0xmin", c.txErr
}

func (c *scriptedChain) Merge(context.Context, uint64, int64) (string, error) {
	return "0xmer", c.txErr
}

func (c *scriptedChain) Claim(context.Context, uint64) (string, error) {
	if c.txErr != nil {
		return "", c.txErr
	}
	c.claims++
	c.vault += c.claimPayout
	return "0xclm", nil
}

func (c *scriptedChain) Transfer(context.Context, string, int64) (string, error) {
	return "0xtrf", c.txErr
}

func newTestAdapter(chain domain.ChainAPI, l *ledger.Ledger) *Adapter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(chain, l, testAddress, logger)
}

func newTestLedger() *ledger.Ledger {
	return ledger.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDeposit(t *testing.T) {
	l := newTestLedger()
	l.SetBalances(50_000_000, 0)

	tx, err := newTestAdapter(&scriptedChain{}, l).Deposit(context.Background(), 20_000_000)
	require.NoError(t, err)
	assert.Equal(t, "0xdep", tx)

	view := l.View(nil, 1)
	assert.Equal(t, int64(30_000_000), view.WalletUnits)
	assert.Equal(t, int64(20_000_000), view.VaultUnits)
}

func TestDeposit_ChainFailureLeavesLedger(t *testing.T) {
	l := newTestLedger()
	l.SetBalances(50_000_000, 0)

	_, err := newTestAdapter(&scriptedChain{txErr: errors.New("revert")}, l).Deposit(context.Background(), 20_000_000)
	require.ErrorIs(t, err, domain.ErrSettlementFailed)

	view := l.View(nil, 1)
	assert.Equal(t, int64(50_000_000), view.WalletUnits)
	assert.Zero(t, view.VaultUnits)
}

func TestWithdraw_BeyondVault(t *testing.T) {
	l := newTestLedger()
	l.SetBalances(0, 10_000_000)

	_, err := newTestAdapter(&scriptedChain{vault: 10_000_000}, l).Withdraw(context.Background(), 20_000_000)
	require.ErrorIs(t, err, domain.ErrInsufficient)
}

func TestMint(t *testing.T) {
	l := newTestLedger()
	l.SetBalances(0, 50_000_000)

	tx, err := newTestAdapter(&scriptedChain{vault: 50_000_000}, l).Mint(context.Background(), 7, 10_000_000)
	require.NoError(t, err)
	assert.Equal(t, "0xmin", tx)

	yes := l.Position(domain.PositionKey{MarketID: 7, Outcome: domain.OutcomeYes})
	no := l.Position(domain.PositionKey{MarketID: 7, Outcome: domain.OutcomeNo})
	assert.Equal(t, int64(10_000_000), yes.Units)
	assert.Equal(t, int64(10_000_000), no.Units)
}

func TestMint_RejectsNonPositiveAmount(t *testing.T) {
	l := newTestLedger()
	l.SetBalances(0, 50_000_000)
	a := newTestAdapter(&scriptedChain{vault: 50_000_000}, l)

	for _, amount := range []int64{0, -10_000_000} {
		_, err := a.Mint(context.Background(), 7, amount)
		require.Error(t, err)
		_, err = a.Merge(context.Background(), 7, amount)
		require.Error(t, err)
	}

	view := l.View(nil, 1)
	assert.Equal(t, int64(50_000_000), view.VaultUnits)
	assert.Empty(t, l.Positions())
}

func TestMerge_RequiresHeldShares(t *testing.T) {
	l := newTestLedger()

	chain := &scriptedChain{shares: domain.SharePair{YesUnits: 5_000_000, NoUnits: 5_000_000}}
	_, err := newTestAdapter(chain, l).Merge(context.Background(), 7, 10_000_000)
	require.ErrorIs(t, err, domain.ErrInsufficient)
}

func TestClaim_FeeFromVaultDelta(t *testing.T) {
	l := newTestLedger()
	l.SetBalances(0, 100_000_000)
	require.NoError(t, l.Reserve(2_000_000))
	fill := domain.Fill{
		OrderID:     "order-1",
		MarketID:    7,
		Outcome:     domain.OutcomeYes,
		Side:        domain.OrderSideBuy,
		PriceBps:    4000,
		AmountUnits: 5_000_000,
		Timestamp:   time.Now().UTC(),
	}
	require.NoError(t, l.ApplyFill(fill))

	// 5 winning shares pay 4.95 USDC on chain: the 0.05 delta is the fee.
	chain := &scriptedChain{vault: 100_000_000, claimPayout: 4_950_000}
	tx, err := newTestAdapter(chain, l).Claim(context.Background(), 7, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, "0xclm", tx)
	assert.Equal(t, 1, chain.claims)

	view := l.View(nil, 1)
	assert.Equal(t, int64(102_950_000), view.VaultUnits)
	assert.Empty(t, l.Positions())
}

func TestClaim_NothingHeld(t *testing.T) {
	l := newTestLedger()
	_, err := newTestAdapter(&scriptedChain{}, l).Claim(context.Background(), 7, domain.OutcomeYes)
	require.ErrorIs(t, err, domain.ErrInsufficient)
}
