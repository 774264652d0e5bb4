package provider

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"BarFeed/internal/domain/models"
	"BarFeed/internal/domain/repository"
	xhttp "BarFeed/pkg/http"
)

const stooqBaseURL = "https://stooq.com"

// Stooq reads intraday bars from the Stooq CSV download endpoint. Stooq timestamps
// carry no zone and are read in the configured location.
type Stooq struct {
	symbol string
	opts   options
}

var _ repository.Provider = (*Stooq)(nil)

func NewStooq(symbol string, opts ...Option) *Stooq {
	return &Stooq{symbol: strings.ToLower(symbol), opts: buildOptions(stooqBaseURL, opts)}
}

func (s *Stooq) Name() string { return KindStooq }

func (s *Stooq) Fetch(ctx context.Context) ([]models.Bar, error) {
	var body []byte
	err := s.opts.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.opts.baseURL + "/q/d/l/",
		QueryParams: map[string][]string{
			"s": {s.symbol},
			"i": {"5"},
		},
	}, &body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty body: %w", repository.ErrProviderEmpty)
	}
	bars, err := parseStooqCSV(bytes.NewReader(body), s.opts.loc)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no usable rows: %w", repository.ErrProviderEmpty)
	}
	return bars, nil
}

// parseStooqCSV reads rows of Date,Time,Open,High,Low,Close,Volume. Rows without a
// date are skipped. Missing numeric fields read as zero.
func parseStooqCSV(r io.Reader, loc *time.Location) ([]models.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["date"]; !ok {
		// Stooq answers unknown symbols with a plain-text body such as "No data".
		return nil, fmt.Errorf("unexpected csv header %q", strings.Join(header, ","))
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var bars []models.Bar
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		date := field(rec, "date")
		if date == "" {
			continue
		}
		ts, err := parseStooqTime(date, field(rec, "time"), loc)
		if err != nil {
			return nil, err
		}
		bars = append(bars, models.Bar{
			Timestamp: ts.UTC().Truncate(time.Minute),
			Open:      parseFloat(field(rec, "open")),
			High:      parseFloat(field(rec, "high")),
			Low:       parseFloat(field(rec, "low")),
			Close:     parseFloat(field(rec, "close")),
			Volume:    parseFloat(field(rec, "volume")),
		})
	}
	models.SortBars(bars)
	return bars, nil
}

func parseStooqTime(date, clock string, loc *time.Location) (time.Time, error) {
	if clock == "" {
		return time.ParseInLocation("2006-01-02", date, loc)
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, date+" "+clock, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q %q", date, clock)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
