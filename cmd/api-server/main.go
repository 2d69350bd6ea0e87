package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/realisereallies/anime/internal/activity"
	"github.com/realisereallies/anime/internal/auth"
	"github.com/realisereallies/anime/internal/metrics"
	"github.com/realisereallies/anime/internal/ratelimit"
	"github.com/realisereallies/anime/internal/server"
	"github.com/realisereallies/anime/pkg/database"
	"github.com/realisereallies/anime/pkg/logger"
	"github.com/realisereallies/anime/pkg/utils"
)

func main() {
	if err := utils.LoadEnvFile(); err != nil {
		log.Fatal().Err(err).Msg("env file")
	}

	srvCfg := utils.LoadServerConfig()
	logger.Init("anime-api", srvCfg.Development)
	logger.SetLevel(srvCfg.LogLevel)
	if !srvCfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// no secret, no server
	authCfg, err := utils.LoadAuthConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("auth config")
	}
	tokens := auth.TokenService{
		Secret:   []byte(authCfg.JWTSecret),
		Issuer:   authCfg.JWTIssuer,
		Duration: authCfg.JWTDuration,
	}

	cfg := database.DefaultConfig()
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Path).Msg("db open failed")
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("db migrate failed")
	}

	rlCfg := utils.LoadRateLimitConfig()
	redisClient, err := ratelimit.Connect(context.Background(), rlCfg.RedisAddr)
	if err != nil {
		// limiter is optional; keep serving without it
		log.Warn().Err(err).Str("addr", rlCfg.RedisAddr).Msg("redis unavailable, rate limiting disabled")
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	reg := prometheus.NewRegistry()
	metrics.RegisterRuntime(reg)
	m := metrics.New(reg)

	hub := activity.NewHub()
	defer hub.Close()

	router := server.New(server.Deps{
		DB:       db,
		Tokens:   tokens,
		Hub:      hub,
		Limiter:  ratelimit.New(redisClient, rlCfg.PerMinute, time.Minute),
		Metrics:  m,
		Upgrader: activity.NewUpgrader(true),
	})

	httpSrv := &http.Server{
		Addr:              srvCfg.HTTPAddr,
		Handler:           server.WithCORS(router, srvCfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	var tcpSrv *activity.Server
	if srvCfg.TCPAddr != "" {
		tcpSrv = activity.NewServer(srvCfg.TCPAddr, hub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("addr", srvCfg.TCPAddr).Msg("TCP activity feed listening")
			if err := tcpSrv.Run(); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", srvCfg.HTTPAddr).Str("db", cfg.Path).Msg("HTTP API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	if tcpSrv != nil {
		if err := tcpSrv.Close(); err != nil {
			log.Error().Err(err).Msg("tcp shutdown error")
		}
	}

	wg.Wait()
	log.Info().Msg("servers stopped")
}
