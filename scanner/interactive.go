package scanner

import (
	"context"
	"fmt"
	"time"

	"tradepulse/exchange"
	"tradepulse/llm"
	"tradepulse/logger"
	"tradepulse/types"
)

// ScanMarket is the interactive variant: discovery plus indicator snapshots,
// no model calls and no trading. The candidate table is truncated and
// reloaded with the fresh set.
func (s *Scanner) ScanMarket(ctx context.Context) ([]*types.Candidate, error) {
	snap := s.settings.Snapshot()
	d := s.discover(ctx, snap)

	candidates := make([]*types.Candidate, 0, len(d.symbols))
	for _, sym := range d.symbols {
		ind, err := s.market.Snapshot(ctx, sym, snap.ScanTimeframe, snap.VolumeAvgPeriod)
		if err != nil {
			logger.Debugf("📡 %s snapshot skipped: %v", sym, err)
			continue
		}
		candidates = append(candidates, &types.Candidate{
			Symbol:      sym,
			Price:       ind.Price,
			RSI:         ind.RSI,
			ADX:         ind.ADX,
			ATRPercent:  ind.ATRPercent,
			VolumeRatio: ind.VolumeRatio(),
			Sources:     d.sources[sym],
			CreatedAt:   time.Now(),
		})
	}

	if err := s.store.Candidate().ReplaceAll(candidates); err != nil {
		return nil, fmt.Errorf("persist candidates: %w", err)
	}
	logger.Infof("📡 Interactive scan: %d candidates stored", len(candidates))
	return candidates, nil
}

// AnalyzeCandidate runs the single-symbol model path on demand.
func (s *Scanner) AnalyzeCandidate(ctx context.Context, symbol string) (types.Recommendation, llm.Analysis, error) {
	symbol = exchange.Canon(symbol)
	snap := s.settings.Snapshot()

	ind, err := s.market.Snapshot(ctx, symbol, snap.ScanTimeframe, snap.VolumeAvgPeriod)
	if err != nil {
		return types.Recommendation{}, llm.Analysis{}, fmt.Errorf("snapshot %s: %w", symbol, err)
	}

	prompt, err := s.buildPrompt(ctx, symbol, ind, snap)
	if err != nil {
		return types.Recommendation{}, llm.Analysis{}, err
	}
	resp, err := s.llm.Ask(ctx, prompt)
	if err != nil {
		return types.Recommendation{}, llm.Analysis{}, fmt.Errorf("ask %s: %w", symbol, err)
	}

	analysis, rec := llm.ParseAnalysis(resp)
	return rec, analysis, nil
}

// OpenManual opens a trade on an arbitrary symbol after a fresh model pass.
// Unlike ConfirmCandidate it does not require a stored opportunity.
func (s *Scanner) OpenManual(ctx context.Context, symbol string) (*types.Position, error) {
	symbol = exchange.Canon(symbol)
	snap := s.settings.Snapshot()

	ind, err := s.market.Snapshot(ctx, symbol, snap.ScanTimeframe, snap.VolumeAvgPeriod)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", symbol, err)
	}

	rec, _, err := s.AnalyzeCandidate(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !rec.IsActionable() {
		return nil, fmt.Errorf("model answered %s for %s: %w", rec.Action, symbol, types.ErrNotSupported)
	}

	return s.trader.Open(ctx, symbol, rec, ind.ATR, ind.Price)
}

// ConfirmCandidate opens a trade from a stored opportunity after a fresh
// model pass.
func (s *Scanner) ConfirmCandidate(ctx context.Context, symbol string) (*types.Position, error) {
	symbol = exchange.Canon(symbol)
	cand, err := s.store.Candidate().Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("candidate %s: %w", symbol, err)
	}
	if cand == nil {
		return nil, fmt.Errorf("no stored candidate for %s: %w", symbol, types.ErrNotFound)
	}

	snap := s.settings.Snapshot()
	ind, err := s.market.Snapshot(ctx, symbol, snap.ScanTimeframe, snap.VolumeAvgPeriod)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", symbol, err)
	}

	rec, _, err := s.AnalyzeCandidate(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !rec.IsActionable() {
		return nil, fmt.Errorf("model answered %s for %s: %w", rec.Action, symbol, types.ErrNotSupported)
	}

	return s.trader.Open(ctx, symbol, rec, ind.ATR, ind.Price)
}
