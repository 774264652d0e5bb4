package provider

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"BarFeed/internal/domain/models"
	"BarFeed/internal/domain/repository"
)

// Mock generates a random walk over the last five minutes, for local development.
type Mock struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

var _ repository.Provider = (*Mock)(nil)

func NewMock() *Mock {
	return NewMockWithSeed(time.Now().UnixNano(), time.Now)
}

// NewMockWithSeed makes the walk reproducible.
func NewMockWithSeed(seed int64, now func() time.Time) *Mock {
	return &Mock{rnd: rand.New(rand.NewSource(seed)), now: now}
}

func (m *Mock) Name() string { return KindMock }

func (m *Mock) Fetch(ctx context.Context) ([]models.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.now().UTC().Truncate(time.Minute)
	start := end.Add(-4 * time.Minute)
	price := 100 + m.rnd.Float64()*100

	bars := make([]models.Bar, 0, 5)
	for i := 0; i < 5; i++ {
		open := price
		closePx := open + (m.rnd.Float64()*3 - 1.5)
		high := max(open, closePx) + m.rnd.Float64()*0.8
		low := min(open, closePx) - m.rnd.Float64()*0.8
		bars = append(bars, models.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    m.rnd.Float64() * 1000,
		})
		price = closePx
	}
	return bars, nil
}
