package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/models"
)

// upsertBatchSize bounds the number of statements queued per round trip.
const upsertBatchSize = 500

// PriceRepo is the append-only store of daily adjusted closes.
type PriceRepo struct {
	pool *pgxpool.Pool
}

func NewPriceRepo(pool *pgxpool.Pool) *PriceRepo {
	return &PriceRepo{pool: pool}
}

// UpsertPrices inserts every point whose (date, ticker) is not stored yet and
// leaves existing rows untouched. It returns how many rows were inserted.
// All points are written in one transaction: on error nothing is committed.
func (r *PriceRepo) UpsertPrices(ctx context.Context, points []models.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		n, err := insertChunk(ctx, tx, points[start:end])
		if err != nil {
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func insertChunk(ctx context.Context, tx pgx.Tx, points []models.PricePoint) (int, error) {
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(
			`INSERT INTO prices (date, ticker, adj_close)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (date, ticker) DO NOTHING`,
			p.Date.Time(), p.Ticker, p.Price,
		)
	}

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for _, p := range points {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("insert %s/%s: %w", p.Date, p.Ticker, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	return inserted, nil
}

// QueryPrices returns every point dated on or after start (all points when
// start is nil) pivoted into a matrix. An empty store yields an empty matrix.
func (r *PriceRepo) QueryPrices(ctx context.Context, start *date.Date) (models.PriceMatrix, error) {
	query := `SELECT date, ticker, adj_close FROM prices`
	var args []any
	if start != nil {
		query += ` WHERE date >= $1`
		args = append(args, start.Time())
	}
	query += ` ORDER BY date ASC, ticker ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return models.PriceMatrix{}, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	points, err := collectPrices(rows)
	if err != nil {
		return models.PriceMatrix{}, fmt.Errorf("scan prices: %w", err)
	}
	return models.NewPriceMatrix(points), nil
}

// Tickers lists every ticker that has at least one stored price.
func (r *PriceRepo) Tickers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT ticker FROM prices ORDER BY ticker ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LatestDate returns the most recent stored date, or nil when the store is empty.
func (r *PriceRepo) LatestDate(ctx context.Context) (*date.Date, error) {
	var ts *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT MAX(date) FROM prices`).Scan(&ts); err != nil {
		return nil, err
	}
	if ts == nil {
		return nil, nil
	}
	d := date.FromTime(*ts)
	return &d, nil
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectPrices(rows rowsIter) ([]models.PricePoint, error) {
	var out []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		var d time.Time
		if err := rows.Scan(&d, &p.Ticker, &p.Price); err != nil {
			return nil, err
		}
		p.Date = date.FromTime(d)
		out = append(out, p)
	}
	return out, rows.Err()
}
