package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// Reconciler checks the ledger against its two authoritative sources: the
// venue's account state and the on-chain vault and share balances. A
// disagreement halts capital-committing actions on the affected market
// instead of silently trusting either side.
type Reconciler struct {
	ledger  *Ledger
	venue   domain.MarketDataAPI
	chain   domain.ChainAPI
	address string
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler for the given trader address.
func NewReconciler(l *Ledger, venue domain.MarketDataAPI, chain domain.ChainAPI, address string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		ledger:  l,
		venue:   venue,
		chain:   chain,
		address: address,
		logger:  logger.With(slog.String("component", "reconcile")),
	}
}

// Reconcile refreshes balances from chain and cross-checks every market the
// ledger or the venue knows a position on. Markets that disagree are halted
// and reported; markets that agree have any previous halt lifted. A total
// failure to read either source returns an error and changes nothing.
func (r *Reconciler) Reconcile(ctx context.Context) ([]domain.SkipReason, error) {
	state, err := r.venue.FetchState(ctx, r.address)
	if err != nil {
		return nil, fmt.Errorf("reconcile: venue state: %w", err)
	}
	wallet, err := r.chain.WalletBalance(ctx, r.address)
	if err != nil {
		return nil, fmt.Errorf("reconcile: wallet balance: %w", err)
	}
	vault, err := r.chain.VaultBalance(ctx, r.address)
	if err != nil {
		return nil, fmt.Errorf("reconcile: vault balance: %w", err)
	}

	// Chain balances are authoritative for collateral.
	r.ledger.SetBalances(wallet, vault)

	marketIDs := make(map[uint64]bool)
	for key := range r.ledger.Positions() {
		marketIDs[key.MarketID] = true
	}
	for id := range state.Positions {
		marketIDs[id] = true
	}

	var drifts []domain.SkipReason
	for id := range marketIDs {
		venuePair := state.Positions[id]
		chainPair, err := r.chain.Shares(ctx, id, r.address)
		if err != nil {
			drifts = append(drifts, domain.SkipReason{
				MarketID: id,
				Stage:    "reconcile",
				Reason:   fmt.Sprintf("chain shares unreadable: %v", err),
			})
			continue
		}

		if reason, drifted := r.checkMarket(id, venuePair, chainPair); drifted {
			r.ledger.Halt(id, reason)
			drifts = append(drifts, domain.SkipReason{
				MarketID: id,
				Stage:    "reconcile",
				Reason:   fmt.Sprintf("%s: %v", reason, domain.ErrReconciliationDrift),
			})
			continue
		}
		r.ledger.ClearHalt(id)
	}

	r.logger.Debug("reconciliation complete",
		slog.Int("markets", len(marketIDs)),
		slog.Int("drifts", len(drifts)))
	return drifts, nil
}

// checkMarket compares the three views of one market's holdings. The venue
// and chain must agree with each other and with the ledger.
func (r *Reconciler) checkMarket(marketID uint64, venuePair, chainPair domain.SharePair) (string, bool) {
	if venuePair != chainPair {
		return fmt.Sprintf("venue holds %d/%d, chain holds %d/%d",
			venuePair.YesUnits, venuePair.NoUnits, chainPair.YesUnits, chainPair.NoUnits), true
	}

	ledgerYes := r.ledger.Position(domain.PositionKey{MarketID: marketID, Outcome: domain.OutcomeYes}).Units
	ledgerNo := r.ledger.Position(domain.PositionKey{MarketID: marketID, Outcome: domain.OutcomeNo}).Units
	if ledgerYes != chainPair.YesUnits || ledgerNo != chainPair.NoUnits {
		return fmt.Sprintf("ledger holds %d/%d, chain holds %d/%d",
			ledgerYes, ledgerNo, chainPair.YesUnits, chainPair.NoUnits), true
	}
	return "", false
}
