package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/elasticpool/internal/config"
	"github.com/vnykmshr/elasticpool/internal/logging"
	"github.com/vnykmshr/elasticpool/pkg/metrics"
	"github.com/vnykmshr/elasticpool/pkg/scheduling/statusboard"
	"github.com/vnykmshr/elasticpool/pkg/scheduling/workerpool"
)

const metricsShutdownTimeout = 5 * time.Second

// app holds what a command builds from the effective configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error

	// registry is nil unless metrics are served.
	registry *prometheus.Registry

	// rdb and board are nil unless a Redis address is configured.
	rdb   *redis.Client
	board *statusboard.Board

	// metricsAddr is the bound address once the metrics server listens.
	metricsAddr chan net.Addr
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, metricsAddr: make(chan net.Addr, 1)}

	if cfg.Log.File == "" {
		a.logger = logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
		a.closeLog = func() error { return nil }
	} else {
		a.logger, a.closeLog, err = logging.Open(cfg.Log.File, cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Metrics.Addr != "" {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Redis.Addr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.board, err = statusboard.New(statusboard.Config{
			Redis:        a.rdb,
			Key:          cfg.Redis.Key,
			KeyTTL:       cfg.Redis.KeyTTL,
			RedisTimeout: cfg.Redis.Timeout,
		})
		if err != nil {
			_ = a.rdb.Close()
			return nil, err
		}
	}

	return a, nil
}

// metricsConfig returns the metrics settings shared by the pool and writer.
func (a *app) metricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:   a.registry != nil,
		Registry:  a.registry,
		Namespace: a.cfg.Metrics.Namespace,
	}
}

// newPool creates the configured pool, reporting to the status board and
// Prometheus when those are enabled. hooks may adjust the config first.
func (a *app) newPool(hooks func(*workerpool.Config)) (workerpool.Pool, error) {
	cfg, err := a.cfg.Pool.WorkerPool(a.logger)
	if err != nil {
		return nil, err
	}
	if a.board != nil {
		cfg.Reporter = a.board
	}
	if hooks != nil {
		hooks(&cfg)
	}
	return workerpool.NewWithConfigAndMetrics(cfg, cfg.Name, a.metricsConfig())
}

// run calls work, serving /metrics alongside it when enabled. The server
// stops once work returns.
func (a *app) run(ctx context.Context, work func(ctx context.Context) error) error {
	if a.registry == nil {
		return work(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	g.Go(func() error {
		return a.serveMetrics(serveCtx)
	})
	g.Go(func() error {
		defer stopServing()
		return work(gctx)
	})
	return g.Wait()
}

// serveMetrics serves the registry until ctx is done.
func (a *app) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	ln, err := net.Listen("tcp", a.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Metrics.Addr, err)
	}
	a.metricsAddr <- ln.Addr()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// close withdraws pool from the status board, if named, and releases
// resources.
func (a *app) close(pool string) {
	if a.board != nil && pool != "" {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Redis.Timeout)
		if err := a.board.Remove(ctx, pool); err != nil {
			a.logger.Warn("failed to remove status", "pool", pool, "error", err)
		}
		cancel()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if err := a.closeLog(); err != nil {
		a.logger.Warn("failed to close log", "error", err)
	}
}
