package finnhub

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"BarFeed/internal/domain/models"
	"BarFeed/internal/domain/repository"
	"BarFeed/pkg/logger"
)

const defaultBufferMinutes = 120

// Aggregator folds trades into one-minute bars and keeps the most recent minutes.
type Aggregator struct {
	mu      sync.Mutex
	bars    map[int64]*models.Bar
	maxBars int
}

func NewAggregator(maxBars int) *Aggregator {
	if maxBars <= 0 {
		maxBars = defaultBufferMinutes
	}
	return &Aggregator{bars: make(map[int64]*models.Bar), maxBars: maxBars}
}

// Add merges a trade into the bar of its minute. Trades without a positive price are ignored.
func (a *Aggregator) Add(t Trade) {
	if t.Price <= 0 {
		return
	}
	minute := t.Time.UTC().Truncate(time.Minute)
	key := minute.Unix()

	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.bars[key]
	if !ok {
		a.bars[key] = &models.Bar{
			Timestamp: minute,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
			Close:     t.Price,
			Volume:    max(t.Volume, 0),
		}
		a.evict()
		return
	}
	b.High = max(b.High, t.Price)
	b.Low = min(b.Low, t.Price)
	// Trades can arrive out of order within a minute; close follows arrival.
	b.Close = t.Price
	b.Volume += max(t.Volume, 0)
}

func (a *Aggregator) evict() {
	if len(a.bars) <= a.maxBars {
		return
	}
	keys := make([]int64, 0, len(a.bars))
	for k := range a.bars {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys[:len(keys)-a.maxBars] {
		delete(a.bars, k)
	}
}

// Completed returns the bars of minutes that ended before now, oldest first.
func (a *Aggregator) Completed(now time.Time) []models.Bar {
	current := now.UTC().Truncate(time.Minute)

	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.Bar, 0, len(a.bars))
	for _, b := range a.bars {
		if b.Timestamp.Before(current) {
			out = append(out, *b)
		}
	}
	models.SortBars(out)
	return out
}

// Stream is a Provider fed by the Finnhub trade websocket. Run keeps the connection
// alive in the background and Fetch returns the completed minutes seen so far.
type Stream struct {
	symbol         string
	apiKey         string
	url            string
	reconnectDelay time.Duration
	log            *logger.Logger
	agg            *Aggregator
	now            func() time.Time
}

var _ repository.Provider = (*Stream)(nil)

type StreamOption func(*Stream)

func WithAPIKey(key string) StreamOption { return func(s *Stream) { s.apiKey = key } }

func WithURL(u string) StreamOption {
	return func(s *Stream) {
		if u != "" {
			s.url = u
		}
	}
}

func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

func WithLogger(l *logger.Logger) StreamOption {
	return func(s *Stream) {
		if l != nil {
			s.log = l
		}
	}
}

func WithBufferMinutes(n int) StreamOption {
	return func(s *Stream) { s.agg = NewAggregator(n) }
}

func NewStream(symbol string, opts ...StreamOption) *Stream {
	s := &Stream{
		symbol:         symbol,
		url:            defaultURL,
		reconnectDelay: 5 * time.Second,
		log:            logger.NewNop(),
		agg:            NewAggregator(defaultBufferMinutes),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) Name() string { return "finnhub_ws" }

// Fetch returns completed minutes currently buffered.
func (s *Stream) Fetch(ctx context.Context) ([]models.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars := s.agg.Completed(s.now())
	if len(bars) == 0 {
		return nil, fmt.Errorf("no completed minutes buffered: %w", repository.ErrProviderEmpty)
	}
	return bars, nil
}

// Run connects and reads until ctx is done, reconnecting after failures.
func (s *Stream) Run(ctx context.Context) error {
	for {
		client := NewClient(s.apiKey, s.url, []string{s.symbol}, 0)
		err := client.Connect(ctx)
		if err == nil {
			s.log.Info("finnhub stream connected", logger.String("symbol", s.symbol))
			err = client.Read(ctx, func(t Trade) {
				if t.Symbol == s.symbol {
					s.agg.Add(t)
				}
			})
			_ = client.Close()
		}
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("finnhub stream disconnected",
			logger.String("symbol", s.symbol),
			logger.Duration("retry_in_ms", s.reconnectDelay),
			logger.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}
