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
	"aptos-x402-gateway/internal/adapter/aptos"
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

	log := logger.New("facilitator", cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	network, err := cfg.Payment.NetworkName()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid payment network")
	}

	ctx := context.Background()

	nodes := cfg.Aptos.NodeURLs
	if len(nodes) == 0 {
		nodes = aptos.DefaultNodeURLs(network)
	}
	node, err := aptos.NewClient(aptos.Config{
		Network:  network,
		NodeURLs: nodes,
		APIKey:   cfg.Aptos.APIKey,
		Timeout:  cfg.Aptos.Timeout,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Aptos client")
	}

	log.Info().
		Int("port", cfg.Facilitator.Port).
		Str("network", string(network)).
		Strs("nodes", nodes).
		Msg("Starting x402 facilitator")

	checkers := []ports.HealthChecker{node}
	opts := []service.VerificationOption{
		service.WithConfirmation(cfg.Facilitator.ConfirmTimeout, 0),
	}

	var rateLimitStore *redisStorage.RateLimitStore
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		opts = append(opts, service.WithReplayGuard(redisStorage.NewReplayGuard(rdb), cfg.Facilitator.TxHashTTL))
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	} else {
		guard := memStorage.NewReplayGuard()
		go guard.Run(ctx)
		opts = append(opts, service.WithReplayGuard(guard, cfg.Facilitator.TxHashTTL))
	}

	if cfg.Database.Enabled {
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
		opts = append(opts, service.WithSettlements(pgStorage.NewSettlementRepo(pool)))
		checkers = append(checkers, pgStorage.NewHealthCheck(pool))
	}

	verifier := service.NewVerificationService(node, network, log, opts...)

	var tokenSvc ports.TokenService
	if cfg.JWT.Secret != "" {
		tokenSvc = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	} else {
		log.Warn().Msg("JWT secret not set, facilitator API is unauthenticated")
	}

	var docs *httpHandler.APIDocs
	if cfg.Facilitator.DocsPath != "" {
		if spec, err := os.ReadFile(cfg.Facilitator.DocsPath); err == nil {
			docs = &httpHandler.APIDocs{Title: "x402 Facilitator API", Spec: spec}
			log.Info().Msg("OpenAPI spec loaded for Swagger UI at /docs")
		} else {
			log.Warn().Err(err).Msg("OpenAPI spec not found, /docs will be unavailable")
		}
	}

	router := httpHandler.NewFacilitatorRouter(httpHandler.FacilitatorDeps{
		Verifier:        verifier,
		TokenSvc:        tokenSvc,
		AllowedSubjects: cfg.Facilitator.AllowedSubjects,
		RateLimitStore:  rateLimitStore,
		HealthCheckers:  checkers,
		Docs:            docs,
		Logger:          log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Facilitator.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
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

	log.Info().Msg("Server exited")
}
