// Package exchange is the REST and WebSocket client for the blackjack
// exchange venue: market data reads, signed order submission and
// cancellation, and the account state feed the ledger reconciles against.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// Client is the REST client for the exchange API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Client for the given API root, e.g.
// "https://exchange.example.com". rps bounds the request rate; zero disables
// limiting.
func NewClient(baseURL string, timeout time.Duration, rps float64) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps) + 1
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// ListMarkets returns all markets the venue currently exposes.
func (c *Client) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/markets", nil)
	if err != nil {
		return nil, fmt.Errorf("exchange: list markets: %w", err)
	}

	var resp struct {
		Markets []apiMarket `json:"markets"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("exchange: decode markets: %w", err)
	}

	out := make([]domain.Market, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// FetchSnapshot assembles a consistent snapshot of one market from the
// fair-price, orderbook, and stats endpoints. Any failure maps to
// ErrSnapshotUnavailable so callers skip the market for the cycle instead of
// reading it as zero liquidity.
func (c *Client) FetchSnapshot(ctx context.Context, marketID uint64) (domain.Snapshot, error) {
	id := strconv.FormatUint(marketID, 10)

	fpBody, err := c.doRequest(ctx, http.MethodGet, "/api/fair-price/"+id, nil)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("exchange: fair price %d: %w: %v", marketID, domain.ErrSnapshotUnavailable, err)
	}
	var fp apiFairPrice
	if err := json.Unmarshal(fpBody, &fp); err != nil {
		return domain.Snapshot{}, fmt.Errorf("exchange: decode fair price %d: %w: %v", marketID, domain.ErrSnapshotUnavailable, err)
	}

	obBody, err := c.doRequest(ctx, http.MethodGet, "/api/orderbook/"+id, nil)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("exchange: orderbook %d: %w: %v", marketID, domain.ErrSnapshotUnavailable, err)
	}
	var ob apiOrderbook
	if err := json.Unmarshal(obBody, &ob); err != nil {
		return domain.Snapshot{}, fmt.Errorf("exchange: decode orderbook %d: %w: %v", marketID, domain.ErrSnapshotUnavailable, err)
	}

	statsBody, err := c.doRequest(ctx, http.MethodGet, "/api/market-stats/"+id, nil)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("exchange: market stats %d: %w: %v", marketID, domain.ErrSnapshotUnavailable, err)
	}
	var stats apiMarketStats
	if err := json.Unmarshal(statsBody, &stats); err != nil {
		return domain.Snapshot{}, fmt.Errorf("exchange: decode market stats %d: %w: %v", marketID, domain.ErrSnapshotUnavailable, err)
	}

	snap := domain.Snapshot{
		MarketID: marketID,
		HandID:   stats.HandID,
		Phase:    domain.MarketPhase(stats.Phase),
		Yes: domain.Quote{
			BidBps:        fp.YesBestBid,
			AskBps:        fp.YesBestAsk,
			BidDepthUnits: topDepth(ob.YesBids),
			AskDepthUnits: topDepth(ob.YesAsks),
		},
		No: domain.Quote{
			BidBps:        fp.NoBestBid,
			AskBps:        fp.NoBestAsk,
			BidDepthUnits: topDepth(ob.NoBids),
			AskDepthUnits: topDepth(ob.NoAsks),
		},
		FairYesBps:   fp.YesFairPrice,
		FairNoBps:    fp.NoFairPrice,
		HasLiquidity: fp.HasLiquidity,
		VolumeUnits:  parseUnits(stats.Volume),
		TradeCount:   stats.TradeCount,
		LastTradeBps: stats.LastTradePrice,
		RetrievedAt:  time.Now().UTC(),
	}
	if stats.Winner != nil {
		w := domain.Outcome(*stats.Winner)
		snap.Winner = &w
	}
	return snap, nil
}

// FetchState returns the venue's full account view for address.
func (c *Client) FetchState(ctx context.Context, address string) (domain.AccountState, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/state/"+address, nil)
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("exchange: fetch state: %w", err)
	}

	var st apiState
	if err := json.Unmarshal(body, &st); err != nil {
		return domain.AccountState{}, fmt.Errorf("exchange: decode state: %w", err)
	}

	out := domain.AccountState{
		Address: address,
		Balance: domain.Balance{
			AvailableUnits: parseUnits(st.Balance.Available),
			ReservedUnits:  parseUnits(st.Balance.Reserved),
		},
		Positions: make(map[uint64]domain.SharePair, len(st.Positions)),
	}
	for idStr, shares := range st.Positions {
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}
		out.Positions[id] = domain.SharePair{
			YesUnits: parseUnits(shares.Yes),
			NoUnits:  parseUnits(shares.No),
		}
	}
	for _, o := range st.OpenOrders {
		out.OpenOrders = append(out.OpenOrders, o.toDomain())
	}
	return out, nil
}

// SubmitOrder posts a signed order. A venue-side rejection returns
// ErrOrderRejected with the venue's reason; transport failures return the
// underlying error so the caller can query status before resubmitting.
func (c *Client) SubmitOrder(ctx context.Context, o domain.Order) (string, domain.OrderStatus, error) {
	if o.Signature == "" {
		return "", "", fmt.Errorf("exchange: %w: order not signed", domain.ErrInvalidOrder)
	}

	payload := map[string]any{
		"order": apiOrder{
			Trader:    o.Trader,
			MarketID:  o.MarketID,
			IsBuy:     o.Side == domain.OrderSideBuy,
			IsYes:     o.Outcome == domain.OutcomeYes,
			Price:     o.PriceBps,
			Amount:    strconv.FormatInt(o.AmountUnits, 10),
			Nonce:     o.NonceMs,
			Expiry:    o.ExpiryUnix,
			Signature: o.Signature,
		},
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/order", payload)
	if err != nil {
		return "", "", fmt.Errorf("exchange: submit order: %w", err)
	}

	var result apiOrderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", "", fmt.Errorf("exchange: decode order result: %w", err)
	}
	if !result.Success {
		return "", domain.OrderStatusRejected, fmt.Errorf("exchange: %w: %s", domain.ErrOrderRejected, result.ErrorMsg)
	}
	return result.OrderID, statusFromAPI(result.Status), nil
}

// CancelOrder cancels an order with a signed authorization. Cancelling an
// order that already reached a terminal state is a no-op: the venue's
// terminal status is returned without error.
func (c *Client) CancelOrder(ctx context.Context, venueID string, auth domain.CancelAuthorization) (domain.OrderStatus, error) {
	payload := map[string]any{
		"signature": auth.Signature,
		"message":   auth.Message,
		"timestamp": auth.TimestampMs,
	}

	body, err := c.doRequest(ctx, http.MethodDelete, "/api/order/"+venueID, payload)
	if err != nil {
		return "", fmt.Errorf("exchange: cancel order %s: %w", venueID, err)
	}

	var result apiCancelResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("exchange: decode cancel response: %w", err)
	}

	status := statusFromAPI(result.Status)
	if !result.Success && !status.Terminal() {
		return status, fmt.Errorf("exchange: cancel %s: %w: %s", venueID, domain.ErrOrderRejected, result.ErrorMsg)
	}
	return status, nil
}

// OrderStatus queries the current status and filled amount of an order. Used
// after a dropped submission response instead of a blind resubmit.
func (c *Client) OrderStatus(ctx context.Context, venueID string) (domain.OrderStatus, int64, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/order/"+venueID, nil)
	if err != nil {
		return "", 0, fmt.Errorf("exchange: order status %s: %w", venueID, err)
	}

	var o apiOrder
	if err := json.Unmarshal(body, &o); err != nil {
		return "", 0, fmt.Errorf("exchange: decode order %s: %w", venueID, err)
	}
	return statusFromAPI(o.Status), parseUnits(o.Filled), nil
}

// FetchRemoteConfig pulls the venue's published chain parameters.
func (c *Client) FetchRemoteConfig(ctx context.Context) (RemoteConfig, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/config", nil)
	if err != nil {
		return RemoteConfig{}, fmt.Errorf("exchange: fetch config: %w", err)
	}

	var cfg RemoteConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return RemoteConfig{}, fmt.Errorf("exchange: decode config: %w", err)
	}
	return cfg, nil
}

// Ping verifies the venue is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/markets", nil); err != nil {
		return fmt.Errorf("exchange: ping: %w", err)
	}
	return nil
}

// doRequest performs one rate-limited HTTP request and returns the raw
// response body. Non-2xx responses are returned as errors with the body
// included for diagnosis.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Compile-time interface checks.
var (
	_ domain.MarketDataAPI = (*Client)(nil)
	_ domain.OrderAPI      = (*Client)(nil)
)
