package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/intentmarket/internal/api"
	"github.com/rongwang/intentmarket/internal/config"
	"github.com/rongwang/intentmarket/internal/repository"
	"github.com/rongwang/intentmarket/internal/scheduler"
	"github.com/rongwang/intentmarket/internal/service"
	"github.com/rongwang/intentmarket/internal/utils"
)

const rateLimiterMaxKeys = 10000

func main() {
	// Load configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := utils.NewLogger(cfg.Log.Level, cfg.Log.Format)

	// Create repository
	repo, closeRepo, err := setupRepository(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to set up %s store: %v", cfg.Store.Driver, err)
	}
	defer closeRepo()

	// Create service
	svc := service.NewDefaultService(repo, cfg.Auth.JWTSecret,
		service.WithLogger(logger),
		service.WithTokenDuration(cfg.Auth.TokenDuration),
	)

	// Create API handler
	handler := api.NewHandler(svc, logger)
	var limiter *api.RateLimiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = api.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
		handler.WithRateLimiter(limiter)
	}

	// Set up Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.RequestLogger(logger))
	router.Use(api.MetricsMiddleware())
	router.Use(api.JWTSecretMiddleware(cfg.Auth.JWTSecret))

	// Set up routes
	handler.SetupRoutes(router)

	// Background jobs
	var sweeper *scheduler.ExpirySweeper
	if cfg.Scheduler.Enabled {
		sweeper, err = scheduler.NewExpirySweeper(svc, cfg.Scheduler.ExpirySpec, cfg.Scheduler.SweepTimeout, logger)
		if err != nil {
			log.Fatalf("Failed to set up scheduler: %v", err)
		}
		sweeper.Start()
	}

	stopCleanup := make(chan struct{})
	if limiter != nil {
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					limiter.Cleanup(rateLimiterMaxKeys)
				case <-stopCleanup:
					return
				}
			}
		}()
	}

	// Start server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server on %s (store=%s)", serverAddr, cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	close(stopCleanup)
	if sweeper != nil {
		sweeper.Stop(ctx)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
}

// setupRepository builds the store selected by STORE_DRIVER and returns a
// func releasing its resources
func setupRepository(cfg *config.Config, logger *utils.Logger) (repository.Repository, func(), error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := config.SetupDatabase(cfg)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresRepository(db), func() { db.Close() }, nil

	case config.StoreDynamoDB:
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		client, err := config.NewDynamoDBClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewDynamoRepository(client, cfg.DynamoDB.TablePrefix)
		if cfg.DynamoDB.CreateTables {
			if err := repo.EnsureTables(ctx, client); err != nil {
				return nil, nil, err
			}
			logger.Info("DynamoDB tables ready (prefix=%q)", cfg.DynamoDB.TablePrefix)
		}
		return repo, func() {}, nil

	default:
		logger.Warn("Using in-memory store; data is lost on restart")
		return repository.NewMemoryRepository(), func() {}, nil
	}
}
