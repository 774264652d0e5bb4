package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	xhttp "BarFeed/pkg/http"
	applogger "BarFeed/pkg/logger"
)

// Version is stamped at build time with -ldflags "-X BarFeed/pkg/server.Version=...".
var Version = "dev"

const AppName = "barfeed"

// Runner is a background component that works until ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	log             *applogger.Logger
	scheduler       *Scheduler
	httpServer      *xhttp.Server
	runners         []Runner
	shutdownTimeout time.Duration
}

// New creates a new App instance with all dependencies.
func New(
	log *applogger.Logger,
	scheduler *Scheduler,
	httpServer *xhttp.Server,
	runners []Runner,
	shutdownTimeout time.Duration,
) *App {
	if log == nil {
		log = applogger.NewNop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &App{
		log:             log,
		scheduler:       scheduler,
		httpServer:      httpServer,
		runners:         runners,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts background runners, the scheduler and the HTTP server, and blocks
// until ctx is done or the HTTP server fails.
func (a *App) RunContext(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	// Streaming providers fill their buffers before the first tick.
	for _, r := range a.runners {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				a.log.Error("background runner error", applogger.Error(err))
			}
		}(r)
	}

	if a.scheduler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.scheduler.Run(ctx)
		}()
	}

	var (
		httpErr <-chan error
		runErr  error
	)
	if a.httpServer != nil {
		httpErr = a.httpServer.Start()
	}

	a.log.Info("app started",
		applogger.String("name", AppName),
		applogger.String("version", Version),
		applogger.Int("runners", len(a.runners)),
	)

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err, ok := <-httpErr:
		if ok && err != nil {
			a.log.Error("http server error", applogger.Error(err))
			runErr = err
		}
	}

	cancel()
	return errors.Join(runErr, a.shutdown(&wg))
}

// shutdown gracefully stops all services.
func (a *App) shutdown(wg *sync.WaitGroup) error {
	a.log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var err error
	if a.httpServer != nil {
		if serr := a.httpServer.Stop(shutdownCtx); serr != nil {
			a.log.Error("http shutdown error", applogger.Error(serr))
			err = serr
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.log.Warn("background workers did not stop in time")
	}

	a.log.Info("shutdown complete")
	return err
}
