package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"aptos-x402-gateway/config"
	"aptos-x402-gateway/internal/adapter/facilitator"
	httpHandler "aptos-x402-gateway/internal/adapter/http/handler"
	memStorage "aptos-x402-gateway/internal/adapter/storage/memory"
	pgStorage "aptos-x402-gateway/internal/adapter/storage/postgres"
	redisStorage "aptos-x402-gateway/internal/adapter/storage/redis"
	"aptos-x402-gateway/internal/core/ports"
	"aptos-x402-gateway/internal/service"
	"aptos-x402-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("gateway", cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	network, err := cfg.Payment.NetworkName()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid payment network")
	}

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("network", string(network)).
		Str("facilitator", cfg.Facilitator.BaseURL).
		Msg("Starting x402 gateway")

	ctx := context.Background()

	resolver, err := service.NewRuleResolver(cfg.Payment.DomainRules())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid payment rules")
	}

	var opts []facilitator.Option
	if cfg.JWT.Secret != "" {
		opts = append(opts, facilitator.WithTokenService(service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)))
	} else {
		log.Warn().Msg("JWT secret not set, facilitator calls are unauthenticated")
	}
	verifier := facilitator.NewClient(facilitator.Config{
		BaseURL: cfg.Facilitator.BaseURL,
		Timeout: cfg.Facilitator.Timeout,
		Headers: cfg.Facilitator.Headers,
	}, log, opts...)

	deps := httpHandler.GatewayDeps{
		Resolver:       resolver,
		Verifier:       verifier,
		ReplayTTL:      cfg.Payment.ReplayTTL,
		Network:        network,
		TokenAddress:   cfg.Payment.Token,
		HealthCheckers: []ports.HealthChecker{verifier},
		Clock:          service.SystemClock{},
		Logger:         log,
	}

	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		deps.Replay = redisStorage.NewReplayGuard(rdb)
		deps.RateLimitStore = redisStorage.NewRateLimitStore(rdb)
		deps.HealthCheckers = append(deps.HealthCheckers, redisStorage.NewHealthCheck(rdb))
	} else {
		guard := memStorage.NewReplayGuard()
		go guard.Run(ctx)
		deps.Replay = guard
		log.Info().Msg("Redis disabled, using in-process replay guard without rate limiting")
	}

	var eventRepo ports.PaymentEventRepository
	if cfg.Database.Enabled {
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
		eventRepo = pgStorage.NewPaymentEventRepo(pool)
		deps.HealthCheckers = append(deps.HealthCheckers, pgStorage.NewHealthCheck(pool))
	}
	recorder := service.NewPaymentEventService(eventRepo, log)
	deps.Recorder = recorder

	router := httpHandler.NewGatewayRouter(deps)

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Int("rules", len(cfg.Payment.Rules)).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	recorder.Wait()

	log.Info().Msg("Server exited")
}
