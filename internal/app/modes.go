package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardclob/blackjackbot/internal/domain"
	"github.com/cardclob/blackjackbot/internal/engine"
	"github.com/cardclob/blackjackbot/internal/feed"
	"github.com/cardclob/blackjackbot/internal/ledger"
	"github.com/cardclob/blackjackbot/internal/notify"
	"github.com/cardclob/blackjackbot/internal/orders"
	"github.com/cardclob/blackjackbot/internal/risk"
	"github.com/cardclob/blackjackbot/internal/settle"
	"github.com/cardclob/blackjackbot/internal/signal"
	"github.com/cardclob/blackjackbot/internal/snapshot"
)

// sessionLockTTL bounds how long a crashed session keeps its wallet locked.
// Clean shutdowns release the lock immediately.
const sessionLockTTL = 12 * time.Hour

// TradeMode runs the trading session: heartbeat cycles plus the WebSocket
// event feed. With observe set, the full pipeline runs but no order, cancel,
// or settlement action reaches the venue or the chain.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies, observe bool) error {
	if deps.SessionLock != nil {
		unlock, err := deps.SessionLock.Acquire(ctx, strings.ToLower(deps.Address), sessionLockTTL)
		if err != nil {
			return fmt.Errorf("app: acquire session lock: %w", err)
		}
		defer unlock()
	}

	if err := a.readyCheck(ctx, deps); err != nil {
		return err
	}

	eng, err := a.buildEngine(deps, observe)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	engineCtx, stopFeed := context.WithCancel(gctx)

	if a.cfg.Exchange.WsURL != "" {
		eventFeed := feed.NewExchangeWSFeed(
			a.cfg.Exchange.WsURL,
			deps.Address,
			eng.OnFill,
			eng.OnPhaseChange,
			a.logger,
		)
		g.Go(func() error {
			err := eventFeed.Run(engineCtx)
			if engineCtx.Err() != nil {
				return nil
			}
			return err
		})
	} else {
		a.logger.Warn("no websocket url configured, fills arrive via status sync only")
	}

	var goalMet bool
	g.Go(func() error {
		defer stopFeed()
		if err := eng.Run(engineCtx); err != nil {
			return err
		}
		goalMet = eng.GoalAchieved()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if goalMet && !observe {
		return a.cashout(deps)
	}
	return nil
}

// ReconcileMode performs the preflight and one reconciliation pass, prints
// the resulting balances and positions, and exits. It is the operator's
// "where does my money stand" command.
func (a *App) ReconcileMode(ctx context.Context, deps *Dependencies) error {
	if err := a.readyCheck(ctx, deps); err != nil {
		return err
	}

	book := ledger.New(a.logger)
	reconciler := ledger.NewReconciler(book, deps.Exchange, deps.Chain, deps.Address, a.logger)

	drifts, err := reconciler.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("app: reconcile: %w", err)
	}
	for _, d := range drifts {
		a.logger.Warn("drift detected",
			slog.Uint64("market_id", d.MarketID),
			slog.String("reason", d.Reason))
	}

	view := book.View(nil, 0)
	a.logger.Info("account state",
		slog.Int64("wallet_units", view.WalletUnits),
		slog.Int64("vault_units", view.VaultUnits),
		slog.Int64("reserved_units", view.ReservedUnits),
		slog.Int64("position_value_units", view.PositionValueUnits),
		slog.Int64("total_units", view.TotalCapitalUnits()))
	for key, pos := range book.Positions() {
		a.logger.Info("position",
			slog.Uint64("market_id", key.MarketID),
			slog.String("outcome", string(key.Outcome)),
			slog.Int64("units", pos.Units),
			slog.Int64("avg_cost_bps", pos.AvgCostBps))
	}
	return nil
}

// readyCheck verifies the venue, the RPC node, and funding before any cycle
// runs. A session that cannot reach all three refuses to start.
func (a *App) readyCheck(ctx context.Context, deps *Dependencies) error {
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := deps.Exchange.Ping(checkCtx); err != nil {
		return fmt.Errorf("app: exchange unreachable: %w", err)
	}

	wallet, err := deps.Chain.WalletBalance(checkCtx, deps.Address)
	if err != nil {
		return fmt.Errorf("app: rpc unreachable: %w", err)
	}
	vault, err := deps.Chain.VaultBalance(checkCtx, deps.Address)
	if err != nil {
		return fmt.Errorf("app: vault read: %w", err)
	}

	a.logger.Info("preflight passed",
		slog.String("address", deps.Address),
		slog.Float64("wallet_usdc", domain.UnitsToUSDC(wallet)),
		slog.Float64("vault_usdc", domain.UnitsToUSDC(vault)))

	if wallet == 0 && vault == 0 {
		a.logger.Warn("account is unfunded, no orders can be placed")
	}
	return nil
}

// buildEngine assembles the cycle pipeline around the wired dependencies.
func (a *App) buildEngine(deps *Dependencies, observe bool) (*engine.Engine, error) {
	limits, err := a.cfg.Risk.Limits()
	if err != nil {
		return nil, err
	}
	goal, err := a.cfg.Goal.Parse()
	if err != nil {
		return nil, err
	}
	enabled, unknown := domain.ParseKindSet(a.cfg.Engine.Signals)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("app: unknown signal kinds: %s", strings.Join(unknown, ", "))
	}

	book := ledger.New(a.logger)
	reconciler := ledger.NewReconciler(book, deps.Exchange, deps.Chain, deps.Address, a.logger)

	aggregator := snapshot.New(
		deps.Exchange,
		deps.SnapshotCache,
		a.cfg.Engine.SnapshotMaxAge.Duration,
		a.cfg.Engine.NetworkTimeout.Duration,
		a.logger,
	)
	calc := signal.NewCalculator(
		enabled,
		nil, // venue-published fair price
		a.cfg.Engine.MomentumWindow.Duration,
		a.cfg.Engine.SpreadImproveBps,
		a.logger,
	)
	governor := risk.NewGovernor(limits, a.logger)
	manager := orders.NewManager(
		deps.Signer,
		deps.Exchange,
		deps.OrderStore,
		a.cfg.Engine.OrderExpiry.Duration,
		a.logger,
	)
	settler := settle.New(deps.Chain, book, deps.Address, a.logger)

	return engine.New(
		engine.Config{
			Heartbeat:  a.cfg.Engine.Heartbeat.Duration,
			MaxMarkets: a.cfg.Engine.MaxMarkets,
			Goal:       goal,
			Observe:    observe,
		},
		aggregator,
		calc,
		governor,
		manager,
		settler,
		book,
		reconciler,
		deps.FillStore,
		deps.ReportStore,
		deps.Archiver,
		deps.Reporters,
		a.logger,
	), nil
}

// cashout moves the session's funds to the operator's withdraw address after
// the goal is met. The destination comes from configuration only; nothing
// read at runtime can redirect it. No address configured means no transfer.
func (a *App) cashout(deps *Dependencies) error {
	withdrawTo := a.cfg.Wallet.WithdrawTo
	if withdrawTo == "" {
		a.logger.Info("goal met, no withdraw address configured, funds stay in place")
		return nil
	}

	// The parent context may already be cancelled; cashout gets its own.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	vault, err := deps.Chain.VaultBalance(ctx, deps.Address)
	if err != nil {
		return fmt.Errorf("app: cashout vault read: %w", err)
	}
	if vault > 0 {
		if _, err := deps.Chain.Withdraw(ctx, vault); err != nil {
			return fmt.Errorf("app: cashout withdraw: %w", err)
		}
	}

	wallet, err := deps.Chain.WalletBalance(ctx, deps.Address)
	if err != nil {
		return fmt.Errorf("app: cashout wallet read: %w", err)
	}
	if wallet == 0 {
		a.logger.Info("goal met, nothing to transfer")
		return nil
	}

	txHash, err := deps.Chain.Transfer(ctx, withdrawTo, wallet)
	if err != nil {
		return fmt.Errorf("app: cashout transfer: %w", err)
	}
	a.logger.Info("cashout complete",
		slog.String("to", withdrawTo),
		slog.Float64("amount_usdc", domain.UnitsToUSDC(wallet)),
		slog.String("tx", txHash))

	_ = deps.Notifier.Notify(ctx, notify.EventGoal, "Goal achieved",
		fmt.Sprintf("cashed out $%.2f to %s", domain.UnitsToUSDC(wallet), withdrawTo))
	return nil
}
