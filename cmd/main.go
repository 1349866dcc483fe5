package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/okian/questlog/internal/adapters/http/api"
	"github.com/okian/questlog/internal/adapters/http/swagger"
	"github.com/okian/questlog/internal/adapters/repository"
	app "github.com/okian/questlog/internal/app"
	"github.com/okian/questlog/internal/config"
	"github.com/okian/questlog/internal/domain/progression"
	"github.com/okian/questlog/internal/domain/scoring"
	"github.com/okian/questlog/pkg/logger"
	"github.com/okian/questlog/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Get().Error(ctx, "failed to load config", logger.Error(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, nil); err != nil {
		logger.Get().Error(ctx, "questlog exited", logger.Error(err))
		os.Exit(1)
	}
}

// run serves the API until ctx is cancelled. When ln is nil it listens on
// cfg.Addr.
func run(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	registerRuntimeCollectors(metrics.GetRegistry())

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithEngine(scoring.NewEngine(
			scoring.WithTierPoints(cfg.TierPoints),
			scoring.WithMultipliers(cfg.PerformanceMultipliers),
		)),
		app.WithThresholds(progression.ThresholdTable(cfg.LevelThresholds)),
		app.WithSweepInterval(cfg.SweepInterval()),
		app.WithSweepConcurrency(cfg.SweepConcurrency),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	if ln == nil {
		if ln, err = net.Listen("tcp", cfg.Addr); err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(ctx, "starting HTTP server", logger.String("addr", ln.Addr().String()), logger.String("store", cfg.Store))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// newMux registers every route on a fresh mux.
func newMux(svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc, svc).Register(mux)
	return mux
}

// openStore builds the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	opts := []repository.Option{
		repository.WithLogger(log.Named("repository")),
		repository.WithMaxRetries(cfg.PersistenceMaxRetries),
		repository.WithRetryBackoff(cfg.RetryBackoff()),
	}
	switch cfg.Store {
	case config.StorePostgres:
		store, err := repository.OpenPostgres(ctx, cfg.DatabaseDSN, opts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	default:
		return repository.NewMemoryStore(opts...), nil
	}
}

// registerRuntimeCollectors adds Go runtime and process metrics to the
// custom registry. Repeated registration is ignored.
func registerRuntimeCollectors(reg prometheus.Registerer) {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				logger.Get().Warn(context.Background(), "register collector", logger.Error(err))
			}
		}
	}
}
