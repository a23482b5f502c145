package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"zenith-bot-go/internal/advisor"
	"zenith-bot-go/internal/binance"
	"zenith-bot-go/internal/capital"
	"zenith-bot-go/internal/config"
	"zenith-bot-go/internal/database"
	"zenith-bot-go/internal/engine"
	"zenith-bot-go/internal/logger"
	"zenith-bot-go/internal/scout"
	"zenith-bot-go/internal/session"
	"zenith-bot-go/internal/settings"
	"zenith-bot-go/internal/sniper"
	"zenith-bot-go/internal/trailing"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize Binance REST client
	restClient := binance.NewRestClient(&cfg.Binance, log)
	if _, err := restClient.GetServerTime(); err != nil {
		log.Fatal("Failed to connect to Binance API", zap.Error(err))
	}
	log.Info("Successfully connected to Binance API.")

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Wire the trading components
	store := settings.NewStore(db, log)
	sessions := session.NewManager(db, log)
	capitalMgr := capital.NewManager(db, log)
	adv := advisor.NewClient(&cfg.Advisor, log)
	sn := sniper.New(db, restClient, sessions, capitalMgr, log)
	sw := trailing.NewSweeper(db, restClient, sn, log)
	sc := scout.New(db, restClient, store, log, cfg.Trading.QuoteAsset)

	// Run the trading engine until shutdown
	eng := engine.New(db, restClient, adv, store, sc, sn, sw, sessions, capitalMgr, &cfg, log)
	eng.Run(ctx)

	log.Info("Bot has been shut down.")
}
