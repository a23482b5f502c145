package scout

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"zenith-bot-go/internal/binance"
	"zenith-bot-go/internal/models"
	"zenith-bot-go/internal/settings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultTopN = 10

// Scout runs the farming phase: the radar ranks the exchange's quote-asset
// pairs by 24h volume, the screener filters them through the operator rules,
// and the survivors become the active candidate list for the sniping cycles.
type Scout struct {
	db     *gorm.DB
	client binance.RestClientInterface
	store  *settings.Store
	logger *zap.Logger
	quote  string
	topN   int
}

func New(db *gorm.DB, client binance.RestClientInterface, store *settings.Store, logger *zap.Logger, quoteAsset string) *Scout {
	return &Scout{
		db:     db,
		client: client,
		store:  store,
		logger: logger.Named("scout"),
		quote:  quoteAsset,
		topN:   defaultTopN,
	}
}

type candidate struct {
	symbol string
	volume float64
}

// Farm scans the market and persists the new candidate list. It returns the
// selected symbols so the caller can log or act on them immediately.
func (s *Scout) Farm(cfg settings.Snapshot) ([]string, error) {
	tickers, err := s.client.Get24hTickers()
	if err != nil {
		return nil, fmt.Errorf("market scan failed: %w", err)
	}

	candidates := s.radar(tickers)
	candidates, err = s.screen(candidates, cfg)
	if err != nil {
		return nil, err
	}
	if len(candidates) > s.topN {
		candidates = candidates[:s.topN]
	}

	symbols := make([]string, 0, len(candidates))
	for _, c := range candidates {
		symbols = append(symbols, c.symbol)
	}

	if err := s.store.Set(settings.KeyActiveCandidates, strings.Join(symbols, ",")); err != nil {
		return nil, fmt.Errorf("failed to persist candidate list: %w", err)
	}

	s.logger.Info("Farming complete",
		zap.Int("scanned", len(tickers)),
		zap.Strings("candidates", symbols))
	return symbols, nil
}

// radar keeps the tradeable quote-asset pairs and ranks them by 24h quote
// volume, highest first.
func (s *Scout) radar(tickers []binance.Ticker24h) []candidate {
	var out []candidate
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, s.quote) {
			continue
		}
		// Leveraged tokens track the underlying with decay, not price.
		if isLeveragedToken(t.Symbol, s.quote) {
			continue
		}
		vol, err := strconv.ParseFloat(t.QuoteVolume, 64)
		if err != nil || vol <= 0 {
			continue
		}
		out = append(out, candidate{symbol: t.Symbol, volume: vol})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].volume > out[j].volume
	})
	return out
}

// screen applies the operator rules: minimum volume, the asset blacklist and
// the configured trading universe.
func (s *Scout) screen(candidates []candidate, cfg settings.Snapshot) ([]candidate, error) {
	blacklisted, err := s.blacklist()
	if err != nil {
		return nil, err
	}
	universe := parseUniverse(cfg.Universe)

	var out []candidate
	for _, c := range candidates {
		if c.volume < cfg.MinVolume {
			continue
		}
		if blacklisted[c.symbol] {
			continue
		}
		if universe != nil && !universe[c.symbol] {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Candidates returns the currently stored candidate list.
func (s *Scout) Candidates() []string {
	raw := s.store.Get(settings.KeyActiveCandidates, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// blacklist returns the symbols an operator has marked untradeable.
func (s *Scout) blacklist() (map[string]bool, error) {
	var assets []models.Asset
	err := s.db.Where("status = ?", models.AssetStatusBlacklisted).Find(&assets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load blacklist: %w", err)
	}
	out := make(map[string]bool, len(assets))
	for _, a := range assets {
		out[a.Symbol] = true
	}
	return out, nil
}

// parseUniverse turns the TRADING_UNIVERSE setting into a whitelist set.
// "ALL" (or empty) means no restriction and returns nil.
func parseUniverse(raw string) map[string]bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "ALL") {
		return nil
	}
	out := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out[strings.ToUpper(p)] = true
		}
	}
	return out
}

func isLeveragedToken(symbol, quote string) bool {
	base := strings.TrimSuffix(symbol, quote)
	return strings.HasSuffix(base, "UP") || strings.HasSuffix(base, "DOWN") ||
		strings.HasSuffix(base, "BULL") || strings.HasSuffix(base, "BEAR")
}
