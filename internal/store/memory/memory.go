// Package memory provides map-backed store implementations used when the bot
// runs without Postgres. Nothing survives a restart; crash recovery then
// relies entirely on venue and chain reconciliation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// OrderStore keeps the order lifecycle in memory, keyed by client id.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.Order)}
}

func (s *OrderStore) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ClientID]; ok {
		return fmt.Errorf("memory: order %s: %w", o.ClientID, domain.ErrAlreadyExists)
	}
	s.orders[o.ClientID] = o
	return nil
}

func (s *OrderStore) UpdateStatus(_ context.Context, clientID string, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[clientID]
	if !ok {
		return fmt.Errorf("memory: order %s: %w", clientID, domain.ErrNotFound)
	}
	o.Status = status
	s.orders[clientID] = o
	return nil
}

func (s *OrderStore) SetVenueID(_ context.Context, clientID, venueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[clientID]
	if !ok {
		return fmt.Errorf("memory: order %s: %w", clientID, domain.ErrNotFound)
	}
	o.ID = venueID
	s.orders[clientID] = o
	return nil
}

func (s *OrderStore) RecordFill(_ context.Context, clientID string, filledUnits int64, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[clientID]
	if !ok {
		return fmt.Errorf("memory: order %s: %w", clientID, domain.ErrNotFound)
	}
	o.FilledUnits = filledUnits
	o.Status = status
	s.orders[clientID] = o
	return nil
}

func (s *OrderStore) GetByClientID(_ context.Context, clientID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[clientID]
	if !ok {
		return domain.Order{}, fmt.Errorf("memory: order %s: %w", clientID, domain.ErrNotFound)
	}
	return o, nil
}

func (s *OrderStore) ListLive(_ context.Context, marketID uint64) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var live []domain.Order
	for _, o := range s.orders {
		if o.MarketID == marketID && o.Status.Live() {
			live = append(live, o)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ClientID < live[j].ClientID })
	return live, nil
}

// FillStore keeps confirmed executions in memory.
type FillStore struct {
	mu    sync.RWMutex
	fills []domain.Fill
}

func NewFillStore() *FillStore {
	return &FillStore{}
}

func (s *FillStore) Record(_ context.Context, f domain.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills = append(s.fills, f)
	return nil
}

func (s *FillStore) ListByMarket(_ context.Context, marketID uint64) ([]domain.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Fill
	for _, f := range s.fills {
		if f.MarketID == marketID {
			out = append(out, f)
		}
	}
	return out, nil
}

// ReportStore keeps the most recent cycle reports in memory, bounded so a
// long session does not grow without limit.
type ReportStore struct {
	mu      sync.RWMutex
	reports []domain.CycleReport
	cap     int
}

func NewReportStore() *ReportStore {
	return &ReportStore{cap: 512}
}

func (s *ReportStore) Save(_ context.Context, r domain.CycleReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	if len(s.reports) > s.cap {
		s.reports = s.reports[len(s.reports)-s.cap:]
	}
	return nil
}

func (s *ReportStore) Recent(_ context.Context, limit int) ([]domain.CycleReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.reports) {
		limit = len(s.reports)
	}
	out := make([]domain.CycleReport, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.reports[len(s.reports)-1-i]
	}
	return out, nil
}

var (
	_ domain.OrderStore  = (*OrderStore)(nil)
	_ domain.FillStore   = (*FillStore)(nil)
	_ domain.ReportStore = (*ReportStore)(nil)
)
