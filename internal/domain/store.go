package domain

import "context"

// OrderStore persists the full order lifecycle for audit and crash recovery.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	UpdateStatus(ctx context.Context, clientID string, status OrderStatus) error
	SetVenueID(ctx context.Context, clientID, venueID string) error
	RecordFill(ctx context.Context, clientID string, filledUnits int64, status OrderStatus) error
	GetByClientID(ctx context.Context, clientID string) (Order, error)
	ListLive(ctx context.Context, marketID uint64) ([]Order, error)
}

// FillStore persists confirmed executions.
type FillStore interface {
	Record(ctx context.Context, f Fill) error
	ListByMarket(ctx context.Context, marketID uint64) ([]Fill, error)
}

// ReportStore persists per-cycle reports.
type ReportStore interface {
	Save(ctx context.Context, r CycleReport) error
	Recent(ctx context.Context, limit int) ([]CycleReport, error)
}
