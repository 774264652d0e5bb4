package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"BarFeed/internal/domain/models"
	"BarFeed/internal/domain/repository"
)

// ClickHouseSchema returns the DDL for the bar and run tables in database. Bars use a
// ReplacingMergeTree keyed on (symbol, ts) so a row that slips past the existence probe
// is collapsed at merge time. The version falls with insert time, so the first write
// survives. Reads use FINAL.
func ClickHouseSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.bars_1m (
			symbol LowCardinality(String),
			ts DateTime('UTC'),
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			source LowCardinality(String),
			inserted_at DateTime64(3, 'UTC') DEFAULT now64(3),
			first_write UInt64 MATERIALIZED toUInt64(4102444800000 - toUnixTimestamp64Milli(inserted_at))
		) ENGINE = ReplacingMergeTree(first_write)
		ORDER BY (symbol, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.ingestion_runs (
			id String,
			symbol LowCardinality(String),
			started_at DateTime64(3, 'UTC'),
			finished_at Nullable(DateTime64(3, 'UTC')),
			provider_primary String,
			provider_fallback String,
			primary_ok UInt8,
			fallback_ok UInt8,
			primary_fetched UInt32,
			fallback_fetched UInt32,
			bars_saved UInt32,
			gaps_filled UInt32,
			outliers_rejected UInt32,
			notes String
		) ENGINE = ReplacingMergeTree
		ORDER BY (symbol, started_at, id)`, database),
	}
}

// ClickHouseBarStore implements BarStore for ClickHouse.
type ClickHouseBarStore struct {
	db     *sql.DB
	table  string
	symbol string
}

var _ repository.BarStore = (*ClickHouseBarStore)(nil)

func NewClickHouseBarStore(db *sql.DB, database, symbol string) *ClickHouseBarStore {
	return &ClickHouseBarStore{db: db, table: database + ".bars_1m", symbol: symbol}
}

func (s *ClickHouseBarStore) Latest(ctx context.Context) (*models.Bar, error) {
	q := fmt.Sprintf("SELECT ts, open, high, low, close, volume, source FROM %s FINAL WHERE symbol = ? ORDER BY ts DESC LIMIT 1", s.table)
	bars, err := s.query(ctx, q, s.symbol)
	if err != nil {
		return nil, fmt.Errorf("query latest bar: %w", err)
	}
	if len(bars) == 0 {
		return nil, repository.ErrNotFound
	}
	return &bars[0], nil
}

func (s *ClickHouseBarStore) Since(ctx context.Context, from time.Time) ([]models.Bar, error) {
	q := fmt.Sprintf("SELECT ts, open, high, low, close, volume, source FROM %s FINAL WHERE symbol = ? AND ts >= ? ORDER BY ts ASC", s.table)
	bars, err := s.query(ctx, q, s.symbol, from.UTC())
	if err != nil {
		return nil, fmt.Errorf("query bars since: %w", err)
	}
	return bars, nil
}

func (s *ClickHouseBarStore) Recent(ctx context.Context, limit int) ([]models.Bar, error) {
	if limit <= 0 {
		return []models.Bar{}, nil
	}
	q := fmt.Sprintf("SELECT ts, open, high, low, close, volume, source FROM %s FINAL WHERE symbol = ? ORDER BY ts DESC LIMIT ?", s.table)
	bars, err := s.query(ctx, q, s.symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent bars: %w", err)
	}
	return bars, nil
}

func (s *ClickHouseBarStore) CountSince(ctx context.Context, from time.Time) (int, error) {
	q := fmt.Sprintf("SELECT count() FROM %s FINAL WHERE symbol = ? AND ts >= ?", s.table)
	var n uint64
	if err := s.db.QueryRowContext(ctx, q, s.symbol, from.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bars since: %w", err)
	}
	return int(n), nil
}

// InsertIgnoringConflicts probes which minutes of the batch already exist and inserts
// only the rest in one multi-row statement.
func (s *ClickHouseBarStore) InsertIgnoringConflicts(ctx context.Context, bars []models.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	minTs, maxTs := bars[0].Minute(), bars[0].Minute()
	for _, b := range bars[1:] {
		m := b.Minute()
		if m.Before(minTs) {
			minTs = m
		}
		if m.After(maxTs) {
			maxTs = m
		}
	}

	existing, err := s.existingMinutes(ctx, minTs, maxTs)
	if err != nil {
		return 0, err
	}

	values := make([]string, 0, len(bars))
	args := make([]interface{}, 0, len(bars)*8)
	for _, b := range bars {
		m := b.Minute()
		if existing[m.Unix()] {
			continue
		}
		existing[m.Unix()] = true
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, s.symbol, m, b.Open, b.High, b.Low, b.Close, b.Volume, string(b.Provenance))
	}
	if len(values) == 0 {
		return 0, nil
	}

	q := fmt.Sprintf("INSERT INTO %s (symbol, ts, open, high, low, close, volume, source) VALUES %s", s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return 0, fmt.Errorf("insert bars: %w", err)
	}
	return len(values), nil
}

func (s *ClickHouseBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseBarStore) existingMinutes(ctx context.Context, from, to time.Time) (map[int64]bool, error) {
	q := fmt.Sprintf("SELECT ts FROM %s FINAL WHERE symbol = ? AND ts >= ? AND ts <= ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, s.symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("probe existing bars: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan existing bar: %w", err)
		}
		out[ts.Unix()] = true
	}
	return out, rows.Err()
}

func (s *ClickHouseBarStore) query(ctx context.Context, q string, args ...interface{}) ([]models.Bar, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Bar{}
	for rows.Next() {
		var (
			b      models.Bar
			source string
		)
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &source); err != nil {
			return nil, err
		}
		b.Timestamp = b.Timestamp.UTC()
		b.Provenance = models.Provenance(source)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ClickHouseRunStore implements RunAuditStore for ClickHouse.
type ClickHouseRunStore struct {
	db     *sql.DB
	table  string
	symbol string
}

var _ repository.RunAuditStore = (*ClickHouseRunStore)(nil)

func NewClickHouseRunStore(db *sql.DB, database, symbol string) *ClickHouseRunStore {
	return &ClickHouseRunStore{db: db, table: database + ".ingestion_runs", symbol: symbol}
}

func (s *ClickHouseRunStore) Save(ctx context.Context, run *models.RunAudit) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, symbol, started_at, finished_at, provider_primary, provider_fallback,
		primary_ok, fallback_ok, primary_fetched, fallback_fetched, bars_saved, gaps_filled, outliers_rejected, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, q,
		run.ID, s.symbol, run.StartedAt, finished, run.ProviderPrimary, run.ProviderFallback,
		boolToUInt8(run.PrimaryOK), boolToUInt8(run.FallbackOK),
		uint32(run.PrimaryFetched), uint32(run.FallbackFetched),
		uint32(run.BarsSaved), uint32(run.GapsFilled), uint32(run.OutliersRejected), run.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert run audit: %w", err)
	}
	return nil
}

func (s *ClickHouseRunStore) Last(ctx context.Context) (*models.RunAudit, error) {
	q := fmt.Sprintf(`SELECT id, symbol, started_at, finished_at, provider_primary, provider_fallback,
		primary_ok, fallback_ok, primary_fetched, fallback_fetched, bars_saved, gaps_filled, outliers_rejected, notes
		FROM %s FINAL WHERE symbol = ? ORDER BY started_at DESC LIMIT 1`, s.table)

	var (
		r                                         models.RunAudit
		finished                                  sql.NullTime
		primaryOK, fallbackOK                     uint8
		primaryN, fallbackN, saved, gaps, outlier uint32
	)
	err := s.db.QueryRowContext(ctx, q, s.symbol).Scan(
		&r.ID, &r.Symbol, &r.StartedAt, &finished, &r.ProviderPrimary, &r.ProviderFallback,
		&primaryOK, &fallbackOK, &primaryN, &fallbackN, &saved, &gaps, &outlier, &r.Notes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("query last run: %w", err)
	}

	r.StartedAt = r.StartedAt.UTC()
	if finished.Valid {
		t := finished.Time.UTC()
		r.FinishedAt = &t
	}
	r.PrimaryOK, r.FallbackOK = primaryOK == 1, fallbackOK == 1
	r.PrimaryFetched, r.FallbackFetched = int(primaryN), int(fallbackN)
	r.BarsSaved, r.GapsFilled, r.OutliersRejected = int(saved), int(gaps), int(outlier)
	return &r, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
