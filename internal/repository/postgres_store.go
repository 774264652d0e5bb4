package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"BarFeed/internal/domain/models"
	"BarFeed/internal/domain/repository"
	"BarFeed/pkg/postgres"
)

// PostgresBarStore implements BarStore on the bars_1m table. The (symbol, ts) primary
// key is what makes inserts at-most-once.
type PostgresBarStore struct {
	pool   *postgres.Pool
	symbol string
}

var _ repository.BarStore = (*PostgresBarStore)(nil)

func NewPostgresBarStore(pool *postgres.Pool, symbol string) *PostgresBarStore {
	return &PostgresBarStore{pool: pool, symbol: symbol}
}

const barColumns = `ts, open, high, low, close, volume, source`

func (s *PostgresBarStore) Latest(ctx context.Context) (*models.Bar, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+barColumns+` FROM bars_1m WHERE symbol = $1 ORDER BY ts DESC LIMIT 1`,
		s.symbol,
	)
	b, err := scanBar(row)
	if err != nil {
		if postgres.IsNotFoundError(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("query latest bar: %w", err)
	}
	return b, nil
}

func (s *PostgresBarStore) Since(ctx context.Context, from time.Time) ([]models.Bar, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+barColumns+` FROM bars_1m WHERE symbol = $1 AND ts >= $2 ORDER BY ts ASC`,
		s.symbol, from.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query bars since: %w", err)
	}
	return collectBars(rows)
}

func (s *PostgresBarStore) Recent(ctx context.Context, limit int) ([]models.Bar, error) {
	if limit <= 0 {
		return []models.Bar{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+barColumns+` FROM bars_1m WHERE symbol = $1 ORDER BY ts DESC LIMIT $2`,
		s.symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent bars: %w", err)
	}
	return collectBars(rows)
}

func (s *PostgresBarStore) CountSince(ctx context.Context, from time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bars_1m WHERE symbol = $1 AND ts >= $2`,
		s.symbol, from.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bars since: %w", err)
	}
	return n, nil
}

// InsertIgnoringConflicts writes all bars in one transaction. Rows whose (symbol, ts)
// already exists are skipped by ON CONFLICT DO NOTHING and not counted.
func (s *PostgresBarStore) InsertIgnoringConflicts(ctx context.Context, bars []models.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO bars_1m (symbol, ts, open, high, low, close, volume, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, ts) DO NOTHING
	`
	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(q, s.symbol, b.Minute(), b.Open, b.High, b.Low, b.Close, b.Volume, string(b.Provenance))
	}

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for range bars {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert bar: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

func (s *PostgresBarStore) Health(ctx context.Context) error {
	return s.pool.Health(ctx)
}

func scanBar(row pgx.Row) (*models.Bar, error) {
	var (
		b      models.Bar
		source string
	)
	if err := row.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &source); err != nil {
		return nil, err
	}
	b.Timestamp = b.Timestamp.UTC()
	b.Provenance = models.Provenance(source)
	return &b, nil
}

func collectBars(rows pgx.Rows) ([]models.Bar, error) {
	defer rows.Close()

	out := []models.Bar{}
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}
	return out, nil
}

// PostgresRunStore implements RunAuditStore on the ingestion_runs table.
type PostgresRunStore struct {
	pool   *postgres.Pool
	symbol string
}

var _ repository.RunAuditStore = (*PostgresRunStore)(nil)

func NewPostgresRunStore(pool *postgres.Pool, symbol string) *PostgresRunStore {
	return &PostgresRunStore{pool: pool, symbol: symbol}
}

// Save inserts the audit row. Saving an ID that already exists leaves the stored row untouched.
func (s *PostgresRunStore) Save(ctx context.Context, run *models.RunAudit) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingestion_runs (
			id, symbol, started_at, finished_at, provider_primary, provider_fallback,
			primary_ok, fallback_ok, primary_fetched, fallback_fetched,
			bars_saved, gaps_filled, outliers_rejected, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		run.ID, s.symbol, run.StartedAt, run.FinishedAt, run.ProviderPrimary, run.ProviderFallback,
		run.PrimaryOK, run.FallbackOK, run.PrimaryFetched, run.FallbackFetched,
		run.BarsSaved, run.GapsFilled, run.OutliersRejected, run.Notes,
	)
	if err != nil {
		if postgres.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert run audit: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) Last(ctx context.Context) (*models.RunAudit, error) {
	var r models.RunAudit
	err := s.pool.QueryRow(ctx, `
		SELECT id, symbol, started_at, finished_at, provider_primary, provider_fallback,
			primary_ok, fallback_ok, primary_fetched, fallback_fetched,
			bars_saved, gaps_filled, outliers_rejected, notes
		FROM ingestion_runs
		WHERE symbol = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, s.symbol).Scan(
		&r.ID, &r.Symbol, &r.StartedAt, &r.FinishedAt, &r.ProviderPrimary, &r.ProviderFallback,
		&r.PrimaryOK, &r.FallbackOK, &r.PrimaryFetched, &r.FallbackFetched,
		&r.BarsSaved, &r.GapsFilled, &r.OutliersRejected, &r.Notes,
	)
	if err != nil {
		if postgres.IsNotFoundError(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("query last run: %w", err)
	}
	r.StartedAt = r.StartedAt.UTC()
	if r.FinishedAt != nil {
		t := r.FinishedAt.UTC()
		r.FinishedAt = &t
	}
	return &r, nil
}
