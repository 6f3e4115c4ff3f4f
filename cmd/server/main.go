package main

import (
	"context"   // Context for Redis operations and shutdown
	"errors"    // Server closed detection
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Signal handling
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"p2p_wallet/internal/api"       // HTTP handlers and router
	"p2p_wallet/internal/apikeys"   // Merchant API keys
	"p2p_wallet/internal/cards"     // Card registry
	"p2p_wallet/internal/cardvault" // External card vault client
	"p2p_wallet/internal/config"    // Configuration
	"p2p_wallet/internal/db"        // Database connection
	"p2p_wallet/internal/ledger"    // Transfer engine
	"p2p_wallet/internal/social"    // Friendships and blocks
	"p2p_wallet/internal/users"     // Identity store
	"p2p_wallet/internal/utils"     // Idempotency store

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Money JSON encoding
	"github.com/sirupsen/logrus"    // Logrus for structured logging
	"golang.org/x/sync/errgroup"    // Server and shutdown goroutines
)

const (
	idempotencyTTL  = 24 * time.Hour   // How long a transfer key is remembered
	shutdownTimeout = 10 * time.Second // Grace period for in-flight requests
)

// Main function to set up and run the server
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	// Setup logger
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode)
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	decimal.MarshalJSONWithoutQuotes = true // amounts are JSON numbers

	// Connect to the database and bring the schema up to date
	gdb, err := db.Open(cfg.DBDriver, cfg.DSN(), !cfg.IsProd)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		logrus.Fatalf("failed to migrate DB: %v", err)
	}

	// Setup Redis client, an empty address runs without cache and idempotency
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
	}

	// The vault is optional; without it cards are only checked locally
	var vault cards.Vault
	if cfg.CardVaultURL != "" {
		vault = cardvault.New(cfg.CardVaultURL, cfg.CardVaultTimeout)
	} else {
		logrus.Warn("CARD_VAULT_URL not set, cards are validated locally only")
	}

	usersSvc := users.NewService(gdb, redisClient, cfg.JWTSecret, cfg.JWTTTL())
	cardsSvc := cards.NewService(gdb, vault)
	socialSvc := social.NewService(gdb)
	router, err := api.NewRouter(api.Deps{
		DB:             gdb,
		Redis:          redisClient,
		Users:          usersSvc,
		Cards:          cardsSvc,
		Social:         socialSvc,
		Ledger:         ledger.New(gdb, socialSvc, cardsSvc),
		APIKeys:        apikeys.NewService(gdb),
		Idempotency:    utils.NewIdempotencyStore(redisClient, idempotencyTTL),
		JWTSecret:      cfg.JWTSecret,
		RequestTimeout: cfg.DBTimeout,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		logrus.Fatalf("failed to build router: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithField("port", cfg.AppPort).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logrus.Errorf("server stopped with error: %v", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
