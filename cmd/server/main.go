package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "usersvc/docs" // swagger docs

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"usersvc/internal/auth"
	"usersvc/internal/cache"
	"usersvc/internal/config"
	"usersvc/internal/db"
	"usersvc/internal/handler"
	"usersvc/internal/logger"
	"usersvc/internal/metrics"
	"usersvc/internal/repository"
	"usersvc/internal/router"
	"usersvc/internal/service"
)

const version = "1.0.0"

// @title User Accounts API
// @version 1.0
// @description User registration, login and profile management with JWT bearer authentication.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()
	log := logger.New(cfg.Environment, cfg.LogLevel, os.Stdout)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	gormDB, err := db.Open(cfg.DatabaseURL, db.Options{Verbose: cfg.IsDevelopment()})
	if err != nil {
		log.WithError(err).Fatal("database init")
	}
	if err := db.Migrate(gormDB); err != nil {
		log.WithError(err).Fatal("auto-migrate")
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cacheClient.Close()
	if cacheClient.Enabled() {
		if err := cacheClient.Ping(context.Background()); err != nil {
			log.WithError(err).Warn("redis unreachable, user lookups will hit the database")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize auth components
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	tokens, err := auth.NewTokenService(cfg.SecretKey, cfg.Algorithm, cfg.AccessTokenTTL())
	if err != nil {
		log.WithError(err).Fatal("token service init")
	}

	userRepo := repository.NewUserRepository(gormDB)

	// Initialize services
	authService := service.NewAuthService(userRepo, hasher, tokens, log, m)
	userService := service.NewUserService(userRepo, hasher, cacheClient, cfg.UserCacheTTL, log)
	guard := service.NewAccessGuard(userRepo, tokens, log, m)

	// A nil *cache.Client stored in the interface would not compare equal to nil.
	var cachePinger handler.Pinger
	if cacheClient.Enabled() {
		cachePinger = cacheClient
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, cfg, log, m, guard, router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		User:   handler.NewUserHandler(userService),
		Health: handler.NewHealthHandler(userRepo, cachePinger, version),
	})

	go func() {
		addr := ":" + cfg.ServerPort
		log.WithField("addr", addr).Info("server starting, swagger at /swagger/index.html")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown")
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
