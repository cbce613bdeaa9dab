// Package feed runs the long-lived WebSocket subscription against the
// exchange and translates its wire events into domain callbacks for the
// engine.
package feed

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cardclob/blackjackbot/internal/domain"
	"github.com/cardclob/blackjackbot/internal/platform/exchange"
)

// FillHandler is called for each confirmed fill of the trader's own orders.
type FillHandler func(ctx context.Context, fill domain.Fill)

// PhaseHandler is called when a market transitions phase. winner is nil
// unless the market resolved.
type PhaseHandler func(ctx context.Context, marketID uint64, phase domain.MarketPhase, winner *domain.Outcome)

// ExchangeWSFeed connects to the exchange WebSocket, subscribes to market
// phase events and the trader's fills, and invokes the provided handlers on
// each event. It reconnects on disconnect.
type ExchangeWSFeed struct {
	wsURL     string
	trader    string
	onFill    FillHandler
	onPhase   PhaseHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewExchangeWSFeed creates a feed for the given trader address.
func NewExchangeWSFeed(wsURL, trader string, onFill FillHandler, onPhase PhaseHandler, logger *slog.Logger) *ExchangeWSFeed {
	return &ExchangeWSFeed{
		wsURL:   wsURL,
		trader:  trader,
		onFill:  onFill,
		onPhase: onPhase,
		logger:  logger.With(slog.String("component", "exchange_ws_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects, subscribes, and runs until ctx is cancelled. Reconnects with
// backoff on disconnect.
func (f *ExchangeWSFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("exchange ws disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *ExchangeWSFeed) runConnection(ctx context.Context) error {
	client := exchange.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnFill(func(ev exchange.Event) {
		if f.onFill == nil {
			return
		}
		f.onFill(context.Background(), fillFromEvent(ev))
	})
	client.OnPhaseChange(func(ev exchange.Event) {
		if f.onPhase == nil {
			return
		}
		var winner *domain.Outcome
		if ev.Winner != nil {
			w := domain.Outcome(*ev.Winner)
			winner = &w
		}
		f.onPhase(context.Background(), ev.MarketID, domain.MarketPhase(ev.Phase), winner)
	})

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := client.SubscribeMarkets(ctx, nil); err != nil {
		return err
	}
	if err := client.SubscribeFills(ctx, f.trader); err != nil {
		return err
	}
	f.logger.Info("exchange ws subscribed", slog.String("trader", f.trader))

	<-ctx.Done()
	return ctx.Err()
}

// Close stops the feed.
func (f *ExchangeWSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func fillFromEvent(ev exchange.Event) domain.Fill {
	side := domain.OrderSideSell
	if ev.IsBuy {
		side = domain.OrderSideBuy
	}
	outcome := domain.OutcomeNo
	if ev.IsYes {
		outcome = domain.OutcomeYes
	}
	amount, _ := strconv.ParseInt(ev.Amount, 10, 64)
	fee, _ := strconv.ParseInt(ev.Fee, 10, 64)
	return domain.Fill{
		OrderID:     ev.OrderID,
		MarketID:    ev.MarketID,
		Side:        side,
		Outcome:     outcome,
		PriceBps:    ev.Price,
		AmountUnits: amount,
		FeeUnits:    fee,
		Timestamp:   time.UnixMilli(ev.Timestamp),
	}
}
