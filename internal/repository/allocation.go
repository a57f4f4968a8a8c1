package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/models"
)

// AllocationRepo keeps one allocation per calendar day.
type AllocationRepo struct {
	pool *pgxpool.Pool
}

func NewAllocationRepo(pool *pgxpool.Pool) *AllocationRepo {
	return &AllocationRepo{pool: pool}
}

// UpsertAllocation inserts the allocation for day or replaces the existing one.
func (r *AllocationRepo) UpsertAllocation(ctx context.Context, day date.Date, weights models.Weights, metrics models.Metrics) error {
	w, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	m, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO allocations (date, weights_json, metrics_json, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (date) DO UPDATE
		 SET weights_json = EXCLUDED.weights_json,
		     metrics_json = EXCLUDED.metrics_json,
		     updated_at   = NOW()`,
		day.Time(), json.RawMessage(w), json.RawMessage(m),
	)
	if err != nil {
		return fmt.Errorf("upsert allocation %s: %w", day, err)
	}
	return nil
}

// GetLatestAllocation returns the allocation with the greatest date, or
// (nil, nil) when none has been stored yet.
func (r *AllocationRepo) GetLatestAllocation(ctx context.Context) (*models.Allocation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT date, weights_json, metrics_json, updated_at
		 FROM allocations ORDER BY date DESC LIMIT 1`,
	)
	a, err := scanAllocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest allocation: %w", err)
	}
	return a, nil
}

// GetAllocationHistory returns every stored allocation, oldest first.
func (r *AllocationRepo) GetAllocationHistory(ctx context.Context) ([]models.Allocation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT date, weights_json, metrics_json, updated_at
		 FROM allocations ORDER BY date ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("allocation history: %w", err)
	}
	defer rows.Close()

	var out []models.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// --- scan helpers ---

func scanAllocation(row scannable) (*models.Allocation, error) {
	var (
		a       models.Allocation
		d       time.Time
		weights []byte
		metrics []byte
	)
	if err := row.Scan(&d, &weights, &metrics, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Date = date.FromTime(d)
	if err := json.Unmarshal(weights, &a.Weights); err != nil {
		return nil, fmt.Errorf("decode weights for %s: %w", a.Date, err)
	}
	if err := json.Unmarshal(metrics, &a.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics for %s: %w", a.Date, err)
	}
	return &a, nil
}
