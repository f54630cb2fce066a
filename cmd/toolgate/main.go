package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"toolgate/internal/app"
	"toolgate/internal/buildinfo"
	"toolgate/internal/domain"
	"toolgate/internal/infra/config"
	"toolgate/internal/infra/platform"
	"toolgate/internal/infra/telemetry"
)

type serverOptions struct {
	configPath           string
	token                string
	transport            string
	httpAddr             string
	observabilityAddr    string
	actors               []string
	allowUnauthenticated bool
	enableRentedActors   bool
	logger               *zap.Logger
}

func main() {
	opts := serverOptions{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:     "toolgate",
		Short:   "Tool registry and call dispatcher for remote actors over MCP",
		Version: buildinfo.Version,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg := zap.NewProductionConfig()
			// stdio transport owns stdout; logs go to stderr either way.
			cfg.OutputPaths = []string{"stderr"}
			log, err := cfg.Build()
			if err != nil {
				return err
			}
			opts.logger = log
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd.Flags(), &opts, &cfg)

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()
			return run(ctx, cfg, opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file (optional)")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "platform API token (overrides config and TOOLGATE_TOKEN)")
	root.PersistentFlags().StringVar(&opts.transport, "transport", "stdio", "transport (stdio or http)")
	root.PersistentFlags().StringVar(&opts.httpAddr, "http-addr", domain.DefaultHTTPListenAddress, "streamable HTTP listen address")
	root.PersistentFlags().StringVar(&opts.observabilityAddr, "observability-addr", domain.DefaultObservabilityListenAddress, "metrics listen address (empty disables)")
	root.PersistentFlags().StringSliceVar(&opts.actors, "actors", nil, "actors to load at startup (repeatable or comma separated)")
	root.PersistentFlags().BoolVar(&opts.allowUnauthenticated, "allow-unauthenticated", false, "serve pay-per-event tools without a token")
	root.PersistentFlags().BoolVar(&opts.enableRentedActors, "enable-rented-actors", false, "allow loading rental actors without entitlements")

	if err := root.Execute(); err != nil {
		opts.logger.Fatal("command failed", zap.Error(err))
	}
}

// applyFlagOverrides copies explicitly-set flags over the loaded config, so
// flag > env > file precedence holds.
func applyFlagOverrides(flags *pflag.FlagSet, opts *serverOptions, cfg *domain.Config) {
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "token":
			cfg.Token = opts.token
		case "transport":
			cfg.Transport = opts.transport
		case "http-addr":
			cfg.HTTPListenAddress = opts.httpAddr
		case "observability-addr":
			cfg.ObservabilityListenAddress = opts.observabilityAddr
		case "actors":
			cfg.Actors = opts.actors
		case "allow-unauthenticated":
			cfg.AllowUnauthenticated = opts.allowUnauthenticated
		case "enable-rented-actors":
			cfg.EnableRentedActors = opts.enableRentedActors
		}
	})
}

func run(ctx context.Context, cfg domain.Config, opts serverOptions) error {
	logger := opts.logger
	metrics := telemetry.NewPrometheusMetrics()
	api := platform.NewClient(cfg.PlatformBaseURL, logger)
	server := app.New(cfg, api, metrics, logger)

	if len(cfg.Actors) > 0 {
		if _, err := server.LoadActors(ctx, cfg.Token, cfg.Actors, nil); err != nil {
			logger.Warn("startup actor load failed", zap.Error(err))
		}
	}
	for _, endpoint := range cfg.ProxyServers {
		if err := server.ConnectProxy(ctx, endpoint); err != nil {
			logger.Warn("proxy server unavailable", zap.String("endpoint", endpoint), zap.Error(err))
		}
	}

	if opts.configPath != "" {
		err := config.Watch(ctx, opts.configPath, logger, func(next domain.Config) {
			if len(next.Actors) == 0 {
				return
			}
			if _, err := server.LoadActors(ctx, next.Token, next.Actors, nil); err != nil {
				logger.Warn("reload actor load failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("config watch unavailable", zap.Error(err))
		}
	}

	if cfg.ObservabilityListenAddress != "" {
		go serveObservability(ctx, cfg.ObservabilityListenAddress, metrics, logger)
	}

	switch cfg.Transport {
	case "http":
		return server.RunHTTP(ctx)
	default:
		err := server.RunStdio(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

func serveObservability(ctx context.Context, addr string, metrics *telemetry.PrometheusMetrics, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("address", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
