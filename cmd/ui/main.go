package main

import (
	"fmt"
	"net/http"
	"os"

	"zenith-bot-go/internal/advisor"
	"zenith-bot-go/internal/capital"
	"zenith-bot-go/internal/config"
	"zenith-bot-go/internal/database"
	"zenith-bot-go/internal/logger"
	"zenith-bot-go/internal/session"
	"zenith-bot-go/internal/settings"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Setup HTTP server
	mux := http.NewServeMux()

	store := settings.NewStore(db, log)
	sessions := session.NewManager(db, log)
	capitalMgr := capital.NewManager(db, log)
	adv := advisor.NewClient(&cfg.Advisor, log)
	apiHandler := NewAPIHandler(log, db, store, sessions, capitalMgr, adv, cfg.Trading.InitialCapital)

	// API endpoints
	mux.HandleFunc("/api/status", apiHandler.StatusHandler)
	mux.HandleFunc("/api/positions", apiHandler.PositionsHandler)
	mux.HandleFunc("/api/signals", apiHandler.SignalsHandler)
	mux.HandleFunc("/api/sessions", apiHandler.SessionsHandler)
	mux.HandleFunc("/api/config", apiHandler.ConfigHandler)
	mux.HandleFunc("/api/simulation/reset", apiHandler.ResetSimulationHandler)
	mux.HandleFunc("/api/capital/transfer", apiHandler.CapitalTransferHandler)
	mux.HandleFunc("/api/capital/settings", apiHandler.CapitalSettingsHandler)
	mux.HandleFunc("/api/report", apiHandler.ReportHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting web server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}
}
