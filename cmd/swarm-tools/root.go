package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/feiskyer/swarm-tools/config"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath  string
	maxTurns    int
	metricsAddr string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:           "swarm-tools",
	Short:         "Tool-calling agents on Azure OpenAI",
	Long:          "swarm-tools runs a weather/time agent and an agent whose tools come from an OpenAPI document.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default ./"+config.DefaultPath+" if present)")
	rootCmd.PersistentFlags().IntVar(&maxTurns, "max-turns", 0, "maximum assistant turns per message (overrides config)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

// runtime bundles what every command needs.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if maxTurns > 0 {
		cfg.Agent.MaxTurns = maxTurns
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}, nil
}

// serveMetrics starts the metrics endpoint when --metrics-addr is set. The
// returned function shuts it down.
func (r *runtime) serveMetrics() func() {
	if metricsAddr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	r.logger.Info("serving metrics", zap.String("addr", metricsAddr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	switch cfg.Format {
	case "json":
		zc = zap.NewProductionConfig()
	case "", "console":
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
