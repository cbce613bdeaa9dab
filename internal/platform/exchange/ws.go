package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cardclob/blackjackbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// TradeHandler is called for every trade event on a subscribed market.
type TradeHandler func(Event)

// PhaseChangeHandler is called when a market transitions phase.
type PhaseChangeHandler func(Event)

// FillHandler is called when one of the trader's own orders fills.
type FillHandler func(Event)

// WSClient is a WebSocket client for the exchange's real-time event stream.
// It manages the connection lifecycle, subscriptions, and dispatches events
// to registered handlers.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscriptions to restore on reconnect.
	subscriptions []wsCommand

	// Handlers
	tradeHandlers []TradeHandler
	phaseHandlers []PhaseChangeHandler
	fillHandlers  []FillHandler
	handlerMu     sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// wsCommand is a subscribe/unsubscribe request sent over the socket.
type wsCommand struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Markets []uint64 `json:"markets,omitempty"`
	Trader  string   `json:"trader,omitempty"`
}

// NewWSClient creates a WebSocket client for the given endpoint, e.g.
// "wss://exchange.example.com/ws".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. Subscriptions made before a disconnect are restored.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("exchange/ws: client closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("exchange/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	for _, cmd := range w.subscriptions {
		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("exchange/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// SubscribeMarkets subscribes to trade and phase events for the given markets.
// An empty slice subscribes to all markets.
func (w *WSClient) SubscribeMarkets(ctx context.Context, marketIDs []uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("exchange/ws: not connected")
	}

	cmd := wsCommand{
		Type:    "subscribe",
		Channel: "markets",
		Markets: marketIDs,
	}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("exchange/ws: subscribe markets: %w", err)
	}
	w.subscriptions = append(w.subscriptions, cmd)
	return nil
}

// SubscribeFills subscribes to fill events for the given trader address.
func (w *WSClient) SubscribeFills(ctx context.Context, trader string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("exchange/ws: not connected")
	}

	cmd := wsCommand{
		Type:    "subscribe",
		Channel: "fills",
		Trader:  trader,
	}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("exchange/ws: subscribe fills: %w", err)
	}
	w.subscriptions = append(w.subscriptions, cmd)
	return nil
}

// Close shuts down the WebSocket connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// OnTrade registers a handler for trade events.
func (w *WSClient) OnTrade(handler TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.tradeHandlers = append(w.tradeHandlers, handler)
}

// OnPhaseChange registers a handler for market phase transitions.
func (w *WSClient) OnPhaseChange(handler PhaseChangeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.phaseHandlers = append(w.phaseHandlers, handler)
}

// OnFill registers a handler for the trader's own fill events.
func (w *WSClient) OnFill(handler FillHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.fillHandlers = append(w.fillHandlers, handler)
}

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads events from the WebSocket and dispatches them
// to the registered handlers. On disconnect it reconnects with exponential
// backoff.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw WebSocket message and routes it by event type.
// Unparseable messages are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}

	switch ev.Type {
	case "trade", "book_update":
		w.handlerMu.RLock()
		handlers := w.tradeHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(ev)
		}

	case "phase_change":
		if !domain.MarketPhase(ev.Phase).Known() {
			return
		}
		w.handlerMu.RLock()
		handlers := w.phaseHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(ev)
		}

	case "fill":
		w.handlerMu.RLock()
		handlers := w.fillHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(ev)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff. It blocks
// until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
