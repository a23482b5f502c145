package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"zenith-bot-go/internal/config"
	"zenith-bot-go/internal/indicator"
	"zenith-bot-go/internal/resilience"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionWait = "WAIT"
	ActionHold = "HOLD"
)

// Recommendation is the advisor's verdict for one symbol. The advisor is
// untrusted: malformed or missing responses always degrade to WAIT with
// confidence 0 instead of failing the cycle.
type Recommendation struct {
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	SentimentScore float64 `json:"sentiment_score"`
	Reasoning      string  `json:"reasoning"`
}

// Actionable reports whether the recommendation requests a trade.
func (r Recommendation) Actionable() bool {
	return r.Recommendation == ActionBuy || r.Recommendation == ActionSell
}

// safeDefault is what every failure path degrades to.
func safeDefault(reason string) Recommendation {
	return Recommendation{Recommendation: ActionWait, Confidence: 0, Reasoning: reason}
}

// AdvisorInterface defines the interface for the AI recommendation provider.
type AdvisorInterface interface {
	Recommend(ctx context.Context, symbol string, snap indicator.Snapshot) Recommendation
	PerformanceReport(ctx context.Context, tradeHistory string, days int) (string, error)
}

// Client calls an OpenAI-compatible chat completions endpoint and parses the
// strict-JSON verdict out of the reply.
type Client struct {
	client  *resty.Client
	model   string
	logger  *zap.Logger
	breaker *resilience.Breaker
}

var _ AdvisorInterface = (*Client)(nil)

// NewClient creates an advisor client with an explicit request timeout.
func NewClient(cfg *config.Advisor, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeader("Authorization", "Bearer "+cfg.ApiKey).
		SetHeader("Content-Type", "application/json")

	return &Client{
		client:  client,
		model:   cfg.Model,
		logger:  logger.Named("advisor"),
		breaker: resilience.NewBreaker("advisor", 3, 2*time.Minute),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func buildPrompt(symbol string, snap indicator.Snapshot) string {
	return fmt.Sprintf(`You are a senior crypto trader and risk analyst.
Analyze the following asset: %s.

Technical data:
close=%.6f rsi=%.2f ema_20=%.6f ema_50=%.6f macd=%.6f macd_signal=%.6f atr=%.6f

Task:
1. Evaluate the trend based on RSI, MACD and ATR.
2. Assign a sentiment score (-1.0 to 1.0).
3. Provide a confidence level (0-100).
4. Explain your reasoning concisely.

Output format: VALID JSON ONLY.
{"sentiment_score": float, "confidence": int, "reasoning": "string", "recommendation": "BUY" | "SELL" | "WAIT"}`,
		symbol, snap.Close, snap.RSI, snap.EMA20, snap.EMA50, snap.MACD, snap.MACDSignal, snap.ATR)
}

// Recommend asks the model for a verdict on one symbol.
func (c *Client) Recommend(ctx context.Context, symbol string, snap indicator.Snapshot) Recommendation {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(symbol, snap)},
		},
	}

	var reply chatResponse
	err := resilience.Do(ctx, c.breaker, 3, func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&reply).
			Post("/chat/completions")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("advisor request failed with status %s", resp.Status())
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("Advisor call failed, degrading to WAIT",
			zap.String("symbol", symbol), zap.Error(err))
		return safeDefault("advisor unavailable: " + err.Error())
	}

	if len(reply.Choices) == 0 {
		c.logger.Warn("Advisor returned no choices, degrading to WAIT", zap.String("symbol", symbol))
		return safeDefault("advisor returned empty response")
	}

	return Parse(reply.Choices[0].Message.Content)
}

// Parse decodes a model reply into a Recommendation. Markdown fences are
// stripped first; anything that does not decode into the expected shape
// degrades to WAIT.
func Parse(text string) Recommendation {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var rec Recommendation
	if err := json.Unmarshal([]byte(cleaned), &rec); err != nil {
		return safeDefault("unparseable advisor response")
	}

	rec.Recommendation = strings.ToUpper(strings.TrimSpace(rec.Recommendation))
	switch rec.Recommendation {
	case ActionBuy, ActionSell, ActionWait, ActionHold:
	default:
		return safeDefault("unknown recommendation " + rec.Recommendation)
	}

	if rec.Confidence < 0 || rec.Confidence > 100 {
		return safeDefault(fmt.Sprintf("confidence %.0f out of range", rec.Confidence))
	}

	return rec
}

// PerformanceReport asks the model to write a markdown review of recent
// trading activity. Used by the dashboard, never by the decision path.
func (c *Client) PerformanceReport(ctx context.Context, tradeHistory string, days int) (string, error) {
	prompt := fmt.Sprintf(`You are a portfolio manager writing a performance review.
Period: last %d days.

Trade history data:
%s

Task:
1. Summarize the overall trading activity.
2. Identify patterns in the decision making (why were certain trades rejected?).
3. Give constructive feedback on the strategy settings.

Output: Markdown formatted text.`, days, tradeHistory)

	body := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}

	var reply chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&reply).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("report request failed with status %s", resp.Status())
	}
	if len(reply.Choices) == 0 {
		return "", fmt.Errorf("report response contained no choices")
	}

	return reply.Choices[0].Message.Content, nil
}
