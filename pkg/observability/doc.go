// Package observability provides structured logging, Prometheus metrics, health
// probes, graceful shutdown, and OpenTelemetry tracing for the gateway.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.Info("server started")
//
// Context-aware logging:
//
//	logger.WithField("session_id", id).Warn("client disconnected")
//	logger.WithError(err).Error("delivery failed")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
//	metrics.SessionsByStatus.WithLabelValues("connected").Set(3)
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(redisClient)
//	checker.AddCheck("delivery_queue", queueCheck)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Graceful Shutdown
//
//	manager := observability.NewShutdownManager(logger, server, 30*time.Second)
//	manager.RegisterShutdownFunc("dispatcher", dispatcher.Dispose)
//	manager.WaitForShutdown()
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
