package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/davidesantangelo/yll/config"
	db "github.com/davidesantangelo/yll/internal/database"
	"github.com/davidesantangelo/yll/internal/handler"
	"github.com/davidesantangelo/yll/internal/middleware"
	"github.com/davidesantangelo/yll/internal/probe"
	"github.com/davidesantangelo/yll/internal/repository"
	route "github.com/davidesantangelo/yll/internal/routes"
	"github.com/davidesantangelo/yll/internal/service"
	"github.com/davidesantangelo/yll/internal/tracing"
	"github.com/davidesantangelo/yll/internal/validate"
)

func main() {
	logger := zap.Must(zap.NewProduction())
	defer logger.Sync()

	zap.ReplaceGlobals(logger)

	secrets, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("error loading configuration", zap.Error(err))
	}

	shutdownTracer := tracing.InitTracer()
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	pgClient, err := db.NewPostgresClient(secrets)
	if err != nil {
		logger.Fatal("postgres failed to initialize", zap.Error(err))
	}
	defer pgClient.Close()
	logger.Info("postgres connection established")

	redisClient, err := db.NewRedisClient(secrets)
	if err != nil {
		logger.Fatal("redis failed to initialize", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("redis connection established")

	repo := repository.NewPostgresLinkRepository(pgClient)
	if err := repo.Migrate(context.Background()); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}

	validator := validate.NewValidator(probe.NewHTTPProber())
	linkService := service.NewLinkService(repo, validator)
	linkHandler := handler.NewLinkHandler(linkService, secrets.BaseURL)

	limiter := middleware.NewRateLimiter(
		middleware.NewRedisWindowCounter(redisClient),
		secrets.RateLimitRequests,
		secrets.RateLimitWindow,
	)

	r := route.SetupRouter(linkHandler, limiter)
	logger.Info("starting server", zap.String("addr", secrets.ListenAddr))
	if err := r.Run(secrets.ListenAddr); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}
}
