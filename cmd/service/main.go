package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/esignworks/signflow/internal/cache"
	"github.com/esignworks/signflow/internal/circuitbreaker"
	"github.com/esignworks/signflow/internal/client"
	"github.com/esignworks/signflow/internal/config"
	"github.com/esignworks/signflow/internal/lifecycle"
	"github.com/esignworks/signflow/internal/observability"
	"github.com/esignworks/signflow/internal/service"
	"github.com/esignworks/signflow/internal/webhook"
)

// degradedMinSamples is the smallest number of recorded outcomes before the
// error-rate window can flag the service degraded.
const degradedMinSamples = 5

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	signClient, err := client.New(client.Config{
		RootURL:        cfg.RootURL,
		Username:       cfg.Username,
		Password:       cfg.Password,
		IntegratorKey:  cfg.IntegratorKey,
		AccountID:      cfg.AccountID,
		AppToken:       cfg.AppToken,
		OAuth2Token:    cfg.OAuth2Token,
		Timeout:        cfg.APITimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
	})
	if err != nil {
		logger.Fatal("docusign client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "docusign_api",
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("docusign_api", from.String(), to.String())
				observability.SetCircuitBreakerStateGauge("docusign_api", float64(to))
			},
		})
		signClient.SetCircuitBreaker(cb)
		observability.SetCircuitBreakerStateGauge("docusign_api", 0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}
	signingService := service.NewSigningService(signClient, cacheSvc, cfg.LoginCacheTTL, cfg.TemplateCacheTTL)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := signingService.ResolveAccount(startupCtx); err != nil {
		logger.Warn("account resolution deferred", zap.Error(err))
	} else {
		logger.Info("account resolved", zap.String("account_id", signClient.AccountID()))
	}
	startupCancel()

	healthConfig := &webhook.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		MinSamples:       degradedMinSamples,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := webhook.NewHandler(healthConfig, logger, cfg.CallbackToken)
	router := webhook.NewRouter(handler, logger, limiter)

	observability.RegisterRateLimitGauges(cfg.DegradedWindow)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := webhook.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(int(inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := webhook.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", webhook.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
