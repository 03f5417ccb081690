package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/planidocs/exchange-api/api/swagger"
	"github.com/planidocs/exchange-api/internal/handler"
	"github.com/planidocs/exchange-api/internal/middleware"
	"github.com/planidocs/exchange-api/internal/models"
	"github.com/planidocs/exchange-api/internal/repository"
	"github.com/planidocs/exchange-api/internal/service"
	"github.com/planidocs/exchange-api/pkg/cache"
	"github.com/planidocs/exchange-api/pkg/config"
	"github.com/planidocs/exchange-api/pkg/database"
	"github.com/planidocs/exchange-api/pkg/logger"
	corsmiddleware "github.com/planidocs/exchange-api/pkg/middleware/cors"
	reqidmiddleware "github.com/planidocs/exchange-api/pkg/middleware/requestid"
)

// @title Planidocs Exchange API
// @version 1.0.0
// @description Shift exchange and proposal transaction engine
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var cacheSvc *service.CacheService
	metrics := service.NewMetricsService()
	if cfg.Exchange.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, listing cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Exchange.ListingCacheTTL, logr, true)
		}
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	exchangeRepo := repository.NewExchangeRepository(db)
	directRepo := repository.NewDirectExchangeRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	planningRepo := repository.NewPlanningRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	transactor := repository.NewTransactor(db, cfg.Exchange.TxRetries)
	transactor.OnRetry(metrics.RecordTxRetry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier := service.NewNotifier(cfg.Notifications, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "exchange-api",
		Audience:           []string{"exchange-api"},
	})
	periodSvc := service.NewPeriodService(periodRepo, userRepo, metrics, validate, logr)
	marketplaceSvc := service.NewMarketplaceService(
		exchangeRepo, planningRepo, historyRepo, periodSvc, transactor,
		cacheSvc, userRepo, notifier, metrics, validate, logr,
	)
	directSvc := service.NewDirectExchangeService(
		directRepo, proposalRepo, planningRepo, historyRepo, periodSvc, transactor,
		userRepo, notifier, metrics, validate, logr,
	)
	planningSvc := service.NewPlanningService(planningRepo, userRepo, validate, logr)
	historySvc := service.NewHistoryService(historyRepo, logr)

	go sweepExpiredListings(ctx, marketplaceSvc, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	marketplaceHandler := handler.NewMarketplaceHandler(marketplaceSvc)
	directHandler := handler.NewDirectExchangeHandler(directSvc)
	periodHandler := handler.NewPeriodHandler(periodSvc)
	planningHandler := handler.NewPlanningHandler(planningSvc)
	historyHandler := handler.NewHistoryHandler(historySvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.POST("/auth/logout", authHandler.Logout)
		authed.POST("/auth/change-password", authHandler.ChangePassword)
		authed.GET("/auth/me", authHandler.Me)

		authed.GET("/exchanges", marketplaceHandler.List)
		authed.GET("/exchanges/:id", marketplaceHandler.Get)
		authed.POST("/exchanges", marketplaceHandler.Create)
		authed.POST("/exchanges/:id/interest", marketplaceHandler.ExpressInterest)
		authed.DELETE("/exchanges/:id", marketplaceHandler.Withdraw)

		authed.GET("/direct-exchanges", directHandler.List)
		authed.GET("/direct-exchanges/:id", directHandler.Get)
		authed.POST("/direct-exchanges", directHandler.Create)
		authed.DELETE("/direct-exchanges/:id", directHandler.Cancel)
		authed.POST("/direct-exchanges/:id/proposals", directHandler.CreateProposal)

		authed.GET("/proposals", directHandler.ListProposals)
		authed.POST("/proposals/:id/accept", directHandler.AcceptProposal)
		authed.POST("/proposals/:id/reject", directHandler.RejectProposal)
		authed.DELETE("/proposals/:id", directHandler.CancelProposal)

		authed.GET("/periods", periodHandler.List)
		authed.GET("/periods/active", periodHandler.GetActive)
		authed.GET("/periods/:id", periodHandler.Get)

		authed.GET("/planning", planningHandler.Mine)

		authed.GET("/history/me", historyHandler.Mine)
		authed.GET("/history/me/conflicts", historyHandler.MyConflicts)
	}

	admin := api.Group("")
	admin.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/exchanges/:id/validate", marketplaceHandler.Validate)
		admin.POST("/exchanges/:id/revert", marketplaceHandler.Revert)

		admin.POST("/periods", periodHandler.Create)
		admin.POST("/periods/:id/phase", periodHandler.AdvancePhase)
		admin.POST("/periods/:id/merge", periodHandler.Merge)

		admin.GET("/planning/:id", planningHandler.ForWorker)
		admin.POST("/planning/import", planningHandler.Import)

		admin.GET("/history", historyHandler.List)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// sweepExpiredListings marks past-dated open listings unavailable once an hour.
func sweepExpiredListings(ctx context.Context, svc *service.MarketplaceService, logr *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Truncate(24 * time.Hour)
			if _, err := svc.SweepUnavailable(ctx, cutoff); err != nil {
				logr.Warn("listing sweep failed", zap.Error(err))
			}
		}
	}
}
