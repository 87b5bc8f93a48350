package main

import (
	"context"
	"log"
	"time"

	"github.com/01moynul/storefront-golang/internal/auth"
	"github.com/01moynul/storefront-golang/internal/config"
	"github.com/01moynul/storefront-golang/internal/database"
	"github.com/01moynul/storefront-golang/internal/events"
	"github.com/01moynul/storefront-golang/internal/handlers"
	"github.com/01moynul/storefront-golang/internal/logging"
	"github.com/01moynul/storefront-golang/internal/payments"
	"github.com/01moynul/storefront-golang/internal/routes"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 0. --- Configuration (.env, config.yaml, STOREFRONT_* env) ---
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 1. --- Logger ---
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	gin.SetMode(cfg.Server.Mode)

	// 2. --- Database Connection + Schema ---
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := database.OpenDB(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}

	// 3. --- Event Publisher (optional) ---
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQP.URL != "" {
		amqpPublisher, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Queue, logger)
		if err != nil {
			logger.Fatal("failed to connect to event broker", zap.Error(err))
		}
		publisher = amqpPublisher
	}
	defer publisher.Close()

	// 4. --- Gateway Callbacks ---
	// No verifier talks to the gateway's status API yet, so callbacks are refused
	// and mpesa payments stay pending until an admin settles them.
	if cfg.Pesapal.ConsumerKey == "" || cfg.Pesapal.ConsumerSecret == "" {
		logger.Warn("pesapal consumer credentials are not set")
	}
	logger.Warn("pesapal callbacks are not verified; mpesa payments remain pending until settled by an admin")

	// --- Application Setup ---
	app := &handlers.Handlers{
		DB:     db,
		Log:    logger,
		Tokens: auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL),
		Cookie: auth.Cookie{
			Name:   cfg.Auth.CookieName,
			Secure: cfg.Auth.SecureCookie,
			TTL:    cfg.Auth.SessionTTL,
		},
		Gateway: payments.Gateway{
			PostURL:  cfg.Pesapal.PostURL,
			Currency: cfg.Pesapal.Currency,
		},
		Verifier:  payments.UnverifiedCallbacks{},
		Events:    publisher,
		UploadDir: cfg.Uploads.Dir,
		BaseURL:   cfg.Server.BaseURL,
	}

	// --- Router Setup ---
	router := routes.SetupRouter(app)

	// --- Start Server ---
	logger.Info("starting storefront server", zap.String("addr", cfg.Server.Addr))
	if err := router.Run(cfg.Server.Addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
