package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/chatwire/chatwire/pkg/api"
	"github.com/chatwire/chatwire/pkg/config"
	"github.com/chatwire/chatwire/pkg/observability"
	"github.com/chatwire/chatwire/pkg/session"
	"github.com/chatwire/chatwire/pkg/webhook"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "chatwire: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)
	logger.Infof("Starting chatwire gateway on %s:%s", cfg.Server.Host, cfg.Server.Port)

	ctx := context.Background()

	// Telemetry
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	var metrics *observability.Metrics
	promRegistry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(promRegistry)
	}

	// Redis backs distributed rate limiting; the gateway runs without it
	redisClient, err := connectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}

	// Delivery engine
	var limiter webhook.Limiter
	if cfg.Webhook.RateLimitEnabled {
		if redisClient != nil {
			limiter = webhook.NewRedisRateLimiter(redisClient, cfg.Webhook.RateLimitRequests, cfg.Webhook.RateLimitWindow, logger)
			logger.Info("Webhook rate limiting enabled (redis)")
		} else {
			limiter = webhook.NewRateLimiter(cfg.Webhook.RateLimitRequests, cfg.Webhook.RateLimitWindow)
			logger.Info("Webhook rate limiting enabled (in-memory)")
		}
	}

	history, err := webhook.NewHistory(cfg.Webhook.HistorySize)
	if err != nil {
		return fmt.Errorf("failed to create delivery history: %w", err)
	}

	dispatcher := webhook.NewDispatcher(webhook.Config{
		Secret:       cfg.Webhook.Secret,
		Timeout:      cfg.Webhook.DeliveryTimeout,
		MaxRetries:   cfg.Webhook.MaxRetries,
		TickInterval: cfg.Webhook.TickInterval,
		UserAgent:    cfg.Webhook.UserAgent,
	}, logger, metrics, limiter, history)
	dispatcher.Start(ctx)

	// Session registry backed by the simulated protocol client
	clientLog := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		clientLog.SetLevel(lvl)
	}
	registry := session.NewRegistry(session.SimulatedFactory(clientLog), dispatcher, logger, metrics)

	// API server
	apiServer := api.NewServer(registry, dispatcher, logger)
	mainSrv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(apiServer.Handler(), "chatwire-api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server on a separate port for probes
	checker := observability.NewHealthChecker(redisClient)
	checker.AddCheck("webhook_dispatcher", func(ctx context.Context) observability.DependencyStatus {
		return observability.DependencyStatus{
			Status:  observability.StatusHealthy,
			Message: fmt.Sprintf("%d tasks queued", dispatcher.QueueSize()),
		}
	})

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(promRegistry))
	}
	healthSrv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	// Periodic stats report
	reporter := cron.New()
	if schedule := cfg.Observability.StatsSchedule; schedule != "" {
		if _, err := reporter.AddFunc(schedule, func() {
			stats := dispatcher.Stats()
			logger.WithFields(map[string]interface{}{
				"queued":    stats.Queued,
				"delivered": stats.Delivered,
				"failed":    stats.Failed,
				"dropped":   stats.Dropped,
				"sessions":  registry.Count(),
			}).Info("Webhook delivery stats")
		}); err != nil {
			return fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
		}
		reporter.Start()
	}

	// Hot-reload the log level on config file changes
	var watcher *config.Watcher
	if configPath != "" {
		watcher, err = config.NewWatcher(configPath, logger, func(updated *config.Config) {
			level := observability.ParseLogLevel(updated.Observability.LogLevel)
			logger.SetLevel(level)
			logger.Infof("Log level set to %s", level)
		})
		if err != nil {
			logger.WithError(err).Warn("Config watcher unavailable, hot reload disabled")
		}
	}

	sm := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, mainSrv, healthSrv)
	sm.RegisterShutdownFunc("stats_reporter", func(ctx context.Context) error {
		reporter.Stop()
		return nil
	})
	if watcher != nil {
		sm.RegisterShutdownFunc("config_watcher", func(ctx context.Context) error {
			return watcher.Close()
		})
	}
	sm.RegisterShutdownFunc("session_registry", registry.Dispose)
	sm.RegisterShutdownFunc("webhook_dispatcher", dispatcher.Dispose)
	if redisClient != nil {
		sm.RegisterShutdownFunc("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if providers != nil {
		sm.RegisterShutdownFunc("telemetry", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	go serve(mainSrv, "api", logger)
	go serve(healthSrv, "health", logger)

	logger.Infof("Health endpoints on %s:%s", cfg.Server.Host, cfg.Server.HealthPort)
	return sm.WaitForShutdown()
}

func serve(srv *http.Server, name string, logger *observability.Logger) {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Errorf("%s server failed", name)
		os.Exit(1)
	}
}

// connectRedis dials Redis when a URL is configured. A failed ping is fatal
// here rather than at first use, so misconfiguration shows up at startup.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *observability.Logger) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Infof("Connected to redis at %s", opts.Addr)
	return client, nil
}
