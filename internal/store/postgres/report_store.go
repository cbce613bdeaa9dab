package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// ReportStore implements domain.ReportStore using PostgreSQL. The full report
// is stored as JSONB so the schema never lags the report shape.
type ReportStore struct {
	pool *pgxpool.Pool
}

// NewReportStore creates a ReportStore backed by the given connection pool.
func NewReportStore(pool *pgxpool.Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// Save upserts one cycle report.
func (s *ReportStore) Save(ctx context.Context, r domain.CycleReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: marshal report %d: %w", r.Cycle, err)
	}

	const query = `
		INSERT INTO cycle_reports (cycle, started_at, finished_at, report)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cycle) DO UPDATE
		SET started_at = EXCLUDED.started_at,
		    finished_at = EXCLUDED.finished_at,
		    report = EXCLUDED.report`

	if _, err := s.pool.Exec(ctx, query, r.Cycle, r.StartedAt, r.FinishedAt, payload); err != nil {
		return fmt.Errorf("postgres: save report %d: %w", r.Cycle, err)
	}
	return nil
}

// Recent returns the latest reports, newest first.
func (s *ReportStore) Recent(ctx context.Context, limit int) ([]domain.CycleReport, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT report FROM cycle_reports ORDER BY cycle DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent reports: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan report: %w", err)
		}
		var r domain.CycleReport
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("postgres: decode report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ domain.ReportStore = (*ReportStore)(nil)
