package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"zenith-bot-go/internal/advisor"
	"zenith-bot-go/internal/capital"
	"zenith-bot-go/internal/models"
	"zenith-bot-go/internal/session"
	"zenith-bot-go/internal/settings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log            *zap.Logger
	db             *gorm.DB
	store          *settings.Store
	sessions       *session.Manager
	capital        *capital.Manager
	advisor        advisor.AdvisorInterface
	defaultBalance float64
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB, store *settings.Store,
	sessions *session.Manager, capitalMgr *capital.Manager, adv advisor.AdvisorInterface,
	defaultBalance float64) *APIHandler {
	return &APIHandler{
		log:            log,
		db:             db,
		store:          store,
		sessions:       sessions,
		capital:        capitalMgr,
		advisor:        adv,
		defaultBalance: defaultBalance,
	}
}

// StatusResponse is the structure for the /api/status endpoint.
type StatusResponse struct {
	Status        string  `json:"status"`
	StatusDetail  string  `json:"status_detail"`
	Mode          string  `json:"mode"`
	LastHeartbeat int64   `json:"last_heartbeat"`
	SimBalance    float64 `json:"sim_balance"`
	SimTotalPnL   float64 `json:"sim_total_pnl"`
	OpenPositions int64   `json:"open_positions"`
}

// StatusHandler reports the bot's liveness and headline numbers.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Load()

	heartbeat, _ := strconv.ParseInt(h.store.Get(settings.KeyLastHeartbeat, "0"), 10, 64)

	var wallet models.SimulationPortfolio
	if err := h.db.First(&wallet).Error; err != nil {
		h.log.Error("Failed to load simulation wallet", zap.Error(err))
	}

	var openCount int64
	h.db.Model(&models.Position{}).
		Where("is_open = ? AND is_sim = ?", true, snap.IsSim()).
		Count(&openCount)

	status := "RUNNING"
	if snap.Stopped {
		status = "STOPPED"
	}
	response := StatusResponse{
		Status:        status,
		StatusDetail:  h.store.Get(settings.KeyStatusDetail, ""),
		Mode:          snap.Mode,
		LastHeartbeat: heartbeat,
		SimBalance:    wallet.Balance,
		SimTotalPnL:   wallet.TotalPnL,
		OpenPositions: openCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// PositionsHandler returns open positions first, then recently closed ones.
func (h *APIHandler) PositionsHandler(w http.ResponseWriter, r *http.Request) {
	var positions []models.Position
	err := h.db.Order("is_open desc, created_at desc").Limit(200).Find(&positions).Error
	if err != nil {
		h.log.Error("Failed to get positions from database", zap.Error(err))
		http.Error(w, "Failed to get positions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(positions)
}

// SignalsHandler returns the most recent trade signals with their verdicts.
func (h *APIHandler) SignalsHandler(w http.ResponseWriter, r *http.Request) {
	var signals []models.TradeSignal
	if err := h.db.Order("created_at desc").Limit(200).Find(&signals).Error; err != nil {
		h.log.Error("Failed to get signals from database", zap.Error(err))
		http.Error(w, "Failed to get signals", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(signals)
}

// SessionsHandler returns all trading sessions, newest first.
func (h *APIHandler) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	var sessions []models.TradingSession
	if err := h.db.Order("created_at desc").Find(&sessions).Error; err != nil {
		h.log.Error("Failed to get sessions from database", zap.Error(err))
		http.Error(w, "Failed to get sessions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

// ConfigHandler serves the runtime config (GET) and applies edits (POST).
// Edits are picked up by the engine on its next cycle.
func (h *APIHandler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var rows []models.BotConfig
		if err := h.db.Order("key asc").Find(&rows).Error; err != nil {
			h.log.Error("Failed to get config from database", zap.Error(err))
			http.Error(w, "Failed to get config", http.StatusInternalServerError)
			return
		}
		out := make(map[string]string, len(rows))
		for _, row := range rows {
			out[row.Key] = row.Value
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)

	case http.MethodPost:
		var updates map[string]string
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		for key, value := range updates {
			if err := h.store.Set(key, value); err != nil {
				h.log.Error("Failed to update config key",
					zap.String("key", key), zap.Error(err))
				http.Error(w, "Failed to update config", http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ResetSimulationHandler ends the active paper session and starts a fresh one
// with a reset wallet. Balance defaults to the configured initial capital.
func (h *APIHandler) ResetSimulationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Balance float64 `json:"balance"`
		Name    string  `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Balance <= 0 {
		req.Balance = h.defaultBalance
	}

	sess, err := h.sessions.ResetSimulation(req.Balance, req.Name, h.store.SnapshotJSON())
	if err != nil {
		h.log.Error("Failed to reset simulation", zap.Error(err))
		http.Error(w, "Failed to reset simulation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess)
}

// CapitalTransferHandler moves funds between the trading capital and the
// profit reserve on operator request.
func (h *APIHandler) CapitalTransferHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Mode      string  `json:"mode"`
		Amount    float64 `json:"amount"`
		Direction string  `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Mode == "" {
		req.Mode = h.store.Load().Mode
	}

	if err := h.capital.ManualTransfer(req.Mode, req.Amount, req.Direction); err != nil {
		h.log.Warn("Manual transfer rejected", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CapitalSettingsHandler serves the capital allocation (GET) and updates the
// auto-transfer rule (POST). Omitted POST fields keep their current values.
func (h *APIHandler) CapitalSettingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		mode := r.URL.Query().Get("mode")
		if mode == "" {
			mode = h.store.Load().Mode
		}
		alloc, err := h.capital.Allocation(mode)
		if err != nil {
			h.log.Error("Failed to load capital allocation", zap.Error(err))
			http.Error(w, "Failed to load capital allocation", http.StatusInternalServerError)
			return
		}
		if alloc == nil {
			http.Error(w, "No allocation for mode", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(alloc)

	case http.MethodPost:
		var req struct {
			Mode               string   `json:"mode"`
			AutoTransfer       *bool    `json:"auto_transfer_enabled"`
			TransferThreshold  *float64 `json:"transfer_threshold"`
			TransferPercentage *float64 `json:"transfer_percentage"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Mode == "" {
			req.Mode = h.store.Load().Mode
		}
		err := h.capital.UpdateSettings(req.Mode, req.AutoTransfer, req.TransferThreshold, req.TransferPercentage)
		if err != nil {
			h.log.Error("Failed to update capital settings", zap.Error(err))
			http.Error(w, "Failed to update capital settings", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ReportHandler asks the advisor for a written review of the trades closed in
// the last N days (default 7).
func (h *APIHandler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid days parameter", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	since := time.Now().AddDate(0, 0, -days)
	var closed []models.Position
	err := h.db.Preload("Asset").
		Where("is_open = ? AND closed_at >= ?", false, since).
		Order("closed_at desc").Find(&closed).Error
	if err != nil {
		h.log.Error("Failed to load closed positions", zap.Error(err))
		http.Error(w, "Failed to load trade history", http.StatusInternalServerError)
		return
	}
	if len(closed) == 0 {
		http.Error(w, "No closed trades in the requested window", http.StatusNotFound)
		return
	}

	var sb strings.Builder
	for _, pos := range closed {
		fmt.Fprintf(&sb, "%s entry=%.6f exit=%.6f qty=%.6f pnl=%.2f reason=%s\n",
			pos.Asset.Symbol, pos.EntryAvg, pos.ExitPrice, pos.Quantity, pos.PnL, pos.ExitReason)
	}

	report, err := h.advisor.PerformanceReport(r.Context(), sb.String(), days)
	if err != nil {
		h.log.Error("Performance report failed", zap.Error(err))
		http.Error(w, "Performance report unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"report": report})
}
