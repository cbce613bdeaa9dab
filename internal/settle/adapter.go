// Package settle executes on-chain settlement operations and books them into
// the ledger. An operation either confirms on chain and mutates the ledger,
// or fails and leaves the ledger untouched.
package settle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardclob/blackjackbot/internal/domain"
	"github.com/cardclob/blackjackbot/internal/ledger"
)

// Adapter wraps deposit, withdraw, mint, merge, and claim.
type Adapter struct {
	chain   domain.ChainAPI
	ledger  *ledger.Ledger
	address string
	logger  *slog.Logger
}

// New creates an Adapter for the given trader address.
func New(chain domain.ChainAPI, l *ledger.Ledger, address string, logger *slog.Logger) *Adapter {
	return &Adapter{
		chain:   chain,
		ledger:  l,
		address: address,
		logger:  logger.With(slog.String("component", "settle")),
	}
}

// Deposit moves collateral from the wallet into the vault.
func (a *Adapter) Deposit(ctx context.Context, amountUnits int64) (string, error) {
	txHash, err := a.chain.Deposit(ctx, amountUnits)
	if err != nil {
		return "", fmt.Errorf("settle: deposit: %w: %v", domain.ErrSettlementFailed, err)
	}
	a.ledger.ApplyDeposit(amountUnits)
	return txHash, nil
}

// Withdraw moves collateral from the vault back to the wallet.
func (a *Adapter) Withdraw(ctx context.Context, amountUnits int64) (string, error) {
	vault, err := a.chain.VaultBalance(ctx, a.address)
	if err != nil {
		return "", fmt.Errorf("settle: withdraw: %w: %v", domain.ErrSettlementFailed, err)
	}
	if amountUnits > vault {
		return "", fmt.Errorf("settle: withdraw %d: %w: vault holds %d", amountUnits, domain.ErrInsufficient, vault)
	}
	txHash, err := a.chain.Withdraw(ctx, amountUnits)
	if err != nil {
		return "", fmt.Errorf("settle: withdraw: %w: %v", domain.ErrSettlementFailed, err)
	}
	a.ledger.ApplyWithdraw(amountUnits)
	return txHash, nil
}

// Mint converts amountUnits of vault collateral into an equal YES and NO
// share set for the market.
func (a *Adapter) Mint(ctx context.Context, marketID uint64, amountUnits int64) (string, error) {
	if amountUnits <= 0 {
		return "", fmt.Errorf("settle: mint %d on market %d: amount must be positive", amountUnits, marketID)
	}
	vault, err := a.chain.VaultBalance(ctx, a.address)
	if err != nil {
		return "", fmt.Errorf("settle: mint: %w: %v", domain.ErrSettlementFailed, err)
	}
	if amountUnits > vault {
		return "", fmt.Errorf("settle: mint %d on market %d: %w: vault holds %d",
			amountUnits, marketID, domain.ErrInsufficient, vault)
	}

	txHash, err := a.chain.Mint(ctx, marketID, amountUnits)
	if err != nil {
		return "", fmt.Errorf("settle: mint market %d: %w: %v", marketID, domain.ErrSettlementFailed, err)
	}
	if err := a.ledger.ApplyMint(marketID, amountUnits, time.Now().UTC()); err != nil {
		return txHash, fmt.Errorf("settle: book mint: %w", err)
	}
	return txHash, nil
}

// Merge converts an equal YES and NO share set back into collateral. The $1
// parity invariant is checked before submission: shares not held cannot be
// merged.
func (a *Adapter) Merge(ctx context.Context, marketID uint64, amountUnits int64) (string, error) {
	if amountUnits <= 0 {
		return "", fmt.Errorf("settle: merge %d on market %d: amount must be positive", amountUnits, marketID)
	}
	shares, err := a.chain.Shares(ctx, marketID, a.address)
	if err != nil {
		return "", fmt.Errorf("settle: merge: %w: %v", domain.ErrSettlementFailed, err)
	}
	if shares.YesUnits < amountUnits || shares.NoUnits < amountUnits {
		return "", fmt.Errorf("settle: merge %d on market %d: %w: holding %d yes, %d no",
			amountUnits, marketID, domain.ErrInsufficient, shares.YesUnits, shares.NoUnits)
	}

	txHash, err := a.chain.Merge(ctx, marketID, amountUnits)
	if err != nil {
		return "", fmt.Errorf("settle: merge market %d: %w: %v", marketID, domain.ErrSettlementFailed, err)
	}
	if err := a.ledger.ApplyMerge(marketID, amountUnits, time.Now().UTC()); err != nil {
		return txHash, fmt.Errorf("settle: book merge: %w", err)
	}
	return txHash, nil
}

// Claim redeems the winning shares of a resolved market. The on-chain fee is
// derived from the confirmed vault delta so the ledger books the exact
// payout.
func (a *Adapter) Claim(ctx context.Context, marketID uint64, winner domain.Outcome) (string, error) {
	held := a.ledger.Position(domain.PositionKey{MarketID: marketID, Outcome: winner}).Units
	if held <= 0 {
		return "", fmt.Errorf("settle: claim market %d: %w: no winning shares held", marketID, domain.ErrInsufficient)
	}

	before, err := a.chain.VaultBalance(ctx, a.address)
	if err != nil {
		return "", fmt.Errorf("settle: claim: %w: %v", domain.ErrSettlementFailed, err)
	}

	txHash, err := a.chain.Claim(ctx, marketID)
	if err != nil {
		return "", fmt.Errorf("settle: claim market %d: %w: %v", marketID, domain.ErrSettlementFailed, err)
	}

	after, err := a.chain.VaultBalance(ctx, a.address)
	if err != nil {
		// The claim confirmed; book the full parity payout and let the next
		// reconciliation settle the fee difference.
		after = before + held
	}
	fee := held - (after - before)
	if fee < 0 {
		fee = 0
	}

	if err := a.ledger.ApplyClaim(marketID, winner, fee, time.Now().UTC()); err != nil {
		return txHash, fmt.Errorf("settle: book claim: %w", err)
	}
	a.logger.Info("claim settled",
		slog.Uint64("market_id", marketID),
		slog.String("winner", string(winner)),
		slog.Int64("shares", held),
		slog.Int64("fee_units", fee),
		slog.String("tx", txHash))
	return txHash, nil
}
