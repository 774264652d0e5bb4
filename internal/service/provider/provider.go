package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BarFeed/internal/domain/models"
	"BarFeed/internal/domain/repository"
	domsvc "BarFeed/internal/domain/service"
	"BarFeed/internal/service/finnhub"
	"BarFeed/internal/service/ratelimit"
	"BarFeed/pkg/config"
	xhttp "BarFeed/pkg/http"
	"BarFeed/pkg/logger"
)

// Provider kinds accepted in configuration.
const (
	KindYahoo     = "yahoo"
	KindStooq     = "stooq"
	KindFinnhubWS = "finnhub_ws"
	KindMock      = "mock"
)

const (
	userAgent = "Mozilla/5.0 (compatible; barfeed/1.0)"

	// maxResponseBytes bounds one upstream response; a full intraday chart is well below it.
	maxResponseBytes = 4 << 20
)

// Error tags a fetch failure with the provider that produced it.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string { return e.Provider + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err tagged with name. Errors already tagged are returned unchanged.
func Wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Provider: name, Err: err}
}

// Guarded rate-limits a provider and tags its errors with its name.
type Guarded struct {
	inner   repository.Provider
	limiter *ratelimit.Limiter
}

var _ repository.Provider = (*Guarded)(nil)

func Guard(p repository.Provider, limiter *ratelimit.Limiter) *Guarded {
	return &Guarded{inner: p, limiter: limiter}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) Fetch(ctx context.Context) ([]models.Bar, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, g.inner.Name()); err != nil {
			return nil, Wrap(g.inner.Name(), fmt.Errorf("rate limit: %w", err))
		}
	}
	bars, err := g.inner.Fetch(ctx)
	if err != nil {
		return nil, Wrap(g.inner.Name(), err)
	}
	return bars, nil
}

// Unwrap returns the guarded provider.
func (g *Guarded) Unwrap() repository.Provider { return g.inner }

// New builds the provider described by cfg, guarded by a per-provider rate limiter.
func New(cfg config.ProviderConfig, session *domsvc.Session, log *logger.Logger) (*Guarded, error) {
	var p repository.Provider
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := xhttp.NewClient(
		xhttp.WithTimeout(timeout),
		xhttp.WithUserAgent(userAgent),
		xhttp.WithMaxBody(maxResponseBytes),
	)

	switch cfg.Kind {
	case KindYahoo:
		p = NewYahoo(cfg.Symbol, session, WithBaseURL(cfg.BaseURL), WithHTTPClient(client))
	case KindStooq:
		p = NewStooq(cfg.Symbol, WithBaseURL(cfg.BaseURL), WithHTTPClient(client), WithLocation(session.Location()))
	case KindFinnhubWS:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %s: api_key is required", cfg.Kind)
		}
		p = finnhub.NewStream(cfg.Symbol,
			finnhub.WithAPIKey(cfg.APIKey),
			finnhub.WithURL(cfg.BaseURL),
			finnhub.WithLogger(log),
		)
	case KindMock:
		p = NewMock()
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}

	return Guard(p, ratelimit.New(cfg.RPS, 1)), nil
}

// Option configures the HTTP-backed providers.
type Option func(*options)

type options struct {
	baseURL string
	client  *xhttp.Client
	loc     *time.Location
}

func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
		}
	}
}

func WithHTTPClient(c *xhttp.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithLocation sets the zone used for upstream timestamps that carry none.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

func buildOptions(defaultURL string, opts []Option) options {
	o := options{baseURL: defaultURL, loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = xhttp.NewClient(xhttp.WithUserAgent(userAgent), xhttp.WithMaxBody(maxResponseBytes))
	}
	return o
}
