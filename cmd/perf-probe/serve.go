package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	perf_probe "github.com/fllarpy/perf-probe"
	"github.com/fllarpy/perf-probe/config"
	sqlinstrumentation "github.com/fllarpy/perf-probe/instrumentation/sql"
	"github.com/fllarpy/perf-probe/internal/logging"
	"github.com/fllarpy/perf-probe/metrics"
	"github.com/fllarpy/perf-probe/nplusone"
	"github.com/fllarpy/perf-probe/profiling"
	"github.com/fllarpy/perf-probe/webapp"
)

const shutdownTimeout = 10 * time.Second

var serveFlags struct {
	configDir string
	envFile   string
	addr      string
	dev       bool

	cpuThreshold time.Duration
	cpuDuration  time.Duration
	cpuCooldown  time.Duration
	cpuDir       string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the profiled web application",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.configDir, "config", ".", "directory containing config.yaml")
	serveCmd.Flags().StringVar(&serveFlags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address, overrides ADDR")
	serveCmd.Flags().BoolVar(&serveFlags.dev, "dev", false, "human readable log output")
	serveCmd.Flags().DurationVar(&serveFlags.cpuThreshold, "cpu-profile-threshold", 0, "request duration that triggers a CPU profile, 0 disables")
	serveCmd.Flags().DurationVar(&serveFlags.cpuDuration, "cpu-profile-duration", 10*time.Second, "length of a triggered CPU profile")
	serveCmd.Flags().DurationVar(&serveFlags.cpuCooldown, "cpu-profile-cooldown", 5*time.Minute, "minimum time between profiles of one path")
	serveCmd.Flags().StringVar(&serveFlags.cpuDir, "cpu-profile-dir", "", "directory for CPU profiles, defaults to the temp dir")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(serveFlags.envFile); err == nil {
		if err := godotenv.Load(serveFlags.envFile); err != nil {
			return fmt.Errorf("load %s: %w", serveFlags.envFile, err)
		}
	}

	cfg, err := config.Load(serveFlags.configDir)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if serveFlags.addr != "" {
		cfg[config.Addr] = serveFlags.addr
	}

	logger, err := logging.New(cfg.String(config.LogLevel), serveFlags.dev)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(reg)

	tp, store := profiling.DefaultTracerProvider()
	router := newRouter(db, cfg.String(config.DBDriver), tp, store, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	app := webapp.New(router, webapp.WithConfig(cfg), webapp.WithLogger(logger))
	cpu := profiling.NewCPUProfiler(profiling.CPUProfileConfig{
		Threshold: serveFlags.cpuThreshold,
		Duration:  serveFlags.cpuDuration,
		Cooldown:  serveFlags.cpuCooldown,
		Dir:       serveFlags.cpuDir,
	}, logger)
	defer cpu.Wait()

	if _, err := perf_probe.New(app,
		perf_probe.WithMetrics(mt),
		perf_probe.WithMiddlewareOptions(profiling.WithCPUProfile(cpu)),
	); err != nil {
		return fmt.Errorf("profiler: %w", err)
	}
	if d := nplusone.NewDetector(cfg.Int(config.NPlusOneThreshold)); d != nil {
		app.AfterRequest(d.AfterRequest)
	}

	srv := &http.Server{
		Addr:              cfg.String(config.Addr),
		Handler:           app,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

// openDatabase opens the configured database through the recording driver
// and seeds the demo table.
func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	driver := cfg.String(config.DBDriver)
	db, err := sqlinstrumentation.Open(driver, cfg.String(config.DBDSN))
	if err != nil {
		return nil, err
	}
	if driver == "sqlite3" {
		// Every new connection to an in-memory database is a fresh database.
		db.SetMaxOpenConns(1)
	}

	if err := seed(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
