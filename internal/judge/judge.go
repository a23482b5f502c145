package judge

import (
	"fmt"

	"zenith-bot-go/internal/advisor"
	"zenith-bot-go/internal/indicator"
	"zenith-bot-go/internal/settings"
)

// PositionState is the open-position view for one (asset, scope) pair,
// gathered by the caller so Evaluate stays a pure function.
type PositionState struct {
	// OpenCount is the number of open positions in this scope (simulation or
	// live), across all assets.
	OpenCount int
	// HasOpen reports whether an open position exists for this asset in this
	// scope.
	HasOpen bool
}

// Evaluate applies the ordered guard sequence to an advisor recommendation.
// The first failing guard wins; every rejection names the guard and the
// numeric values involved. Evaluate performs no I/O: config and position
// state are snapshots taken by the orchestrator at the start of the cycle.
func Evaluate(rec advisor.Recommendation, snap indicator.Snapshot, balance float64, state PositionState, cfg settings.Snapshot) Decision {
	isBuy := rec.Recommendation == advisor.ActionBuy
	isSell := rec.Recommendation == advisor.ActionSell

	// 1. Position limit. SELL always bypasses: closing is always allowed.
	if isBuy && state.OpenCount >= cfg.MaxOpenPositions {
		return Rejected{ReasonText: fmt.Sprintf(
			"Position Limit: %d/%d open positions", state.OpenCount, cfg.MaxOpenPositions)}
	}

	// 2. Duplicate position: never double up on an asset.
	if isBuy && state.HasOpen {
		return Rejected{ReasonText: "Duplicate Veto: position already open for this asset"}
	}

	// 3. Nothing to sell.
	if isSell && !state.HasOpen {
		return Rejected{ReasonText: "No open position to sell for this asset"}
	}

	// 4. RSI veto, strict '>': a reading exactly at the threshold passes.
	if isBuy && snap.RSI > cfg.RSIThreshold {
		return Rejected{ReasonText: fmt.Sprintf(
			"Technical Veto: RSI %.1f > %g", snap.RSI, cfg.RSIThreshold)}
	}

	// 5. Trend veto (optional).
	if isBuy && cfg.EnableEMATrend && snap.Close < snap.EMA50 {
		return Rejected{ReasonText: fmt.Sprintf(
			"Trend Veto: price %.2f < EMA50 %.2f", snap.Close, snap.EMA50)}
	}

	// 6. Momentum veto (optional).
	if isBuy && cfg.EnableMACDMomentum && snap.MACD < snap.MACDSignal {
		return Rejected{ReasonText: fmt.Sprintf(
			"Momentum Veto: MACD %.4f < Signal %.4f", snap.MACD, snap.MACDSignal)}
	}

	// 7. Confidence, strict '<': exactly at the threshold passes.
	if rec.Confidence < cfg.ConfThreshold {
		return Rejected{ReasonText: fmt.Sprintf(
			"AI Uncertainty: %.0f%% < %g%%", rec.Confidence, cfg.ConfThreshold)}
	}

	// 8. Non-actionable.
	if !rec.Actionable() {
		return Rejected{ReasonText: fmt.Sprintf("AI Recommendation is %s", rec.Recommendation)}
	}

	if isSell {
		// Executor sells the tracked position quantity, not a judge-computed size.
		return Approved{Size: 0, ReasonText: fmt.Sprintf(
			"SELL approved (Conf: %.0f%%), closing tracked position", rec.Confidence)}
	}

	// 9. Sizing: the more conservative of the target allocation and the hard
	// risk cap.
	target := balance * cfg.PositionSizePct / 100
	riskCap := balance * cfg.MaxRiskPerTradePct / 100
	size := target
	if riskCap < size {
		size = riskCap
	}

	return Approved{
		Size: size,
		ReasonText: fmt.Sprintf(
			"AI Agreed (Conf: %.0f%%) + Tech Clean. Sizing: %.2f", rec.Confidence, size),
	}
}
