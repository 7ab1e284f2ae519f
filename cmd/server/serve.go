package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lounge_backend/internal/cache"
	"lounge_backend/internal/config"
	"lounge_backend/internal/database"
	"lounge_backend/internal/events"
	"lounge_backend/internal/router"
	"lounge_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

// openDB connects to the configured database and applies the schema when asked to.
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DB.Driver, cfg.DB.DSN())
	if err != nil {
		return nil, err
	}
	if cfg.DB.ApplySchema {
		if err := database.ApplySchema(db, cfg.DB.Driver); err != nil {
			db.Close()
			return nil, err
		}
		utils.LogInfo("Database schema applied", map[string]interface{}{"driver": cfg.DB.Driver})
	}
	return db, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	utils.InitLogger(cfg.Log.Level, cfg.Log.Pretty)

	if err := cfg.CheckAuth(); err != nil {
		utils.LogError(err, "Refusing to start")
		return err
	}
	if cfg.Auth.JWTSecret != "" {
		if err := utils.ConfigureJWT(cfg.Auth.JWTSecret); err != nil {
			return err
		}
	} else {
		utils.LogWarn("JWT_SECRET not set, using the development secret")
	}

	db, err := openDB(cfg)
	if err != nil {
		utils.LogError(err, "Failed to open database")
		return err
	}
	defer db.Close()
	utils.LogInfo("Database initialized", map[string]interface{}{"driver": cfg.DB.Driver})

	deps := router.Dependencies{
		DB:                 db,
		DiscardWindow:      cfg.Sessions.DiscardWindow,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
	}

	// Redis and Kafka are optional; the API runs without idempotency or receipts when they are absent.
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			utils.LogWarn("Redis unavailable, Idempotency-Key handling disabled", map[string]interface{}{"addr": cfg.Redis.Addr, "error": err.Error()})
		} else {
			defer rdb.Close()
			deps.Idempotency = cache.NewIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.ReceiptTopic)
		if err != nil {
			utils.LogWarn("Kafka unavailable, completed transactions will not be published", map[string]interface{}{"brokers": cfg.Kafka.Brokers, "error": err.Error()})
		} else {
			defer publisher.Close()
			deps.Publisher = publisher
		}
	}

	gin.SetMode(cfg.Server.GinMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.Setup(engine, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.LogInfo("Server starting", map[string]interface{}{"port": cfg.Server.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		utils.LogInfo("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		utils.LogError(err, "Server stopped with error")
		return err
	}
	return nil
}
