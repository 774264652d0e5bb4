package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
)

const (
	DefaultCandlesLimit = 100
	MaxCandlesLimit     = 1000
)

// CandlesUseCase serves reads of the stored one-minute series.
type CandlesUseCase struct {
	symbol string
	store  domrepo.BarStore
}

func NewCandlesUseCase(symbol string, store domrepo.BarStore) *CandlesUseCase {
	return &CandlesUseCase{symbol: symbol, store: store}
}

type GetCandlesResult struct {
	Symbol  string       `json:"symbol"`
	Count   int          `json:"count"`
	Candles []models.Bar `json:"candles"`
}

// GetRecent returns up to limit bars, newest first. The limit is clamped to
// [1, MaxCandlesLimit]; zero selects DefaultCandlesLimit.
func (uc *CandlesUseCase) GetRecent(ctx context.Context, limit int) (*GetCandlesResult, error) {
	if limit <= 0 {
		limit = DefaultCandlesLimit
	}
	if limit > MaxCandlesLimit {
		limit = MaxCandlesLimit
	}

	candles, err := uc.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent candles: %w", err)
	}

	return &GetCandlesResult{
		Symbol:  uc.symbol,
		Count:   len(candles),
		Candles: candles,
	}, nil
}

const (
	QuoteOK     = "ok"
	QuoteNoData = "no_data"
)

type Quote struct {
	Symbol      string     `json:"symbol"`
	LastPrice   *float64   `json:"last_price"`
	LastBarTime *time.Time `json:"last_bar_time"`
	Status      string     `json:"status"`
}

// LatestQuote returns the close of the newest stored bar, or a no_data quote.
func (uc *CandlesUseCase) LatestQuote(ctx context.Context) (*Quote, error) {
	last, err := uc.store.Latest(ctx)
	if errors.Is(err, domrepo.ErrNotFound) {
		return &Quote{Symbol: uc.symbol, Status: QuoteNoData}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest bar: %w", err)
	}

	price := last.Close
	ts := last.Timestamp.UTC()
	return &Quote{
		Symbol:      uc.symbol,
		LastPrice:   &price,
		LastBarTime: &ts,
		Status:      QuoteOK,
	}, nil
}
