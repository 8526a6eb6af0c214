// Package scanner finds trade candidates: discovery sources feed a cheap
// indicator pre-filter, survivors fan out to the model, and actionable
// answers either open trades directly or land as stored opportunities.
package scanner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tradepulse/discovery"
	"tradepulse/exchange"
	"tradepulse/indicator"
	"tradepulse/llm"
	"tradepulse/logger"
	"tradepulse/market"
	"tradepulse/settings"
	"tradepulse/store"
	"tradepulse/trader"
	"tradepulse/types"
)

const (
	analyzeConcurrency = 10
	prefilterBars      = 200
	prefilterMinBars   = 100
	fallbackTopVolume  = 20
)

type Scanner struct {
	ex        types.ExchangeAdapter
	market    *market.Data
	screener  *discovery.Screener
	trending  *discovery.Trending
	llm       types.LLMClient
	trader    *trader.Trader
	store     *store.Store
	settings  *settings.Service
	notifier  types.Notifier
	news      types.NewsProvider
	sentiment types.SentimentProvider
}

func New(ex types.ExchangeAdapter, md *market.Data, scr *discovery.Screener, tr *discovery.Trending,
	client types.LLMClient, t *trader.Trader, st *store.Store, svc *settings.Service, n types.Notifier) *Scanner {
	return &Scanner{
		ex: ex, market: md, screener: scr, trending: tr,
		llm: client, trader: t, store: st, settings: svc, notifier: n,
	}
}

// WithProviders attaches the optional news/sentiment enrichment sources.
func (s *Scanner) WithProviders(news types.NewsProvider, sentiment types.SentimentProvider) *Scanner {
	s.news = news
	s.sentiment = sentiment
	return s
}

// discovered is the ordered symbol set with per-symbol source labels.
type discovered struct {
	symbols []string
	sources map[string][]string
}

func (d *discovered) add(symbol, label string) {
	symbol = exchange.Canon(symbol)
	if symbol == "" {
		return
	}
	if _, seen := d.sources[symbol]; !seen {
		d.symbols = append(d.symbols, symbol)
	}
	d.sources[symbol] = append(d.sources[symbol], label)
}

// discover collects candidates from every source in priority order and
// subtracts the blacklist.
func (s *Scanner) discover(ctx context.Context, snap settings.Snapshot) discovered {
	d := discovered{sources: make(map[string][]string)}

	for _, base := range snap.Whitelist {
		d.add(base, "Whitelist")
	}

	liquid := s.liquidMovers(ctx, snap, &d)
	s.volumeSpikes(ctx, snap, liquid, &d)

	if s.screener != nil && s.screener.Enabled() {
		if hits, _ := s.screener.Fetch(ctx, liquid, snap.RSILower, snap.RSIUpper); len(hits) > 0 {
			for _, sym := range hits {
				d.add(sym, "Screener")
			}
		}
	}
	if s.trending != nil && s.trending.Enabled() {
		if hits, _ := s.trending.Fetch(ctx); len(hits) > 0 {
			listed := s.listedSet(ctx)
			for _, sym := range hits {
				if listed == nil || listed[exchange.Canon(sym)] {
					d.add(sym, "Trending")
				}
			}
		}
	}

	if len(snap.Blacklist) > 0 {
		banned := make(map[string]bool, len(snap.Blacklist))
		for _, b := range snap.Blacklist {
			banned[exchange.Base(b)] = true
		}
		kept := d.symbols[:0]
		for _, sym := range d.symbols {
			if banned[exchange.Base(sym)] {
				delete(d.sources, sym)
				continue
			}
			kept = append(kept, sym)
		}
		d.symbols = kept
	}
	return d
}

// liquidMovers adds the biggest movers above the volume floor and returns
// the liquid symbol set for the spike and screener sources. With the
// gainers/losers source off, the liquid set is still computed but no
// symbols are tagged.
func (s *Scanner) liquidMovers(ctx context.Context, snap settings.Snapshot, d *discovered) []string {
	tickers, err := s.ex.AllTickers(ctx)
	if err != nil {
		logger.Warnf("⚠️ ticker fetch failed, skipping mover source: %v", err)
		return nil
	}

	liquid := make([]types.Ticker, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		if t.QuoteVolume >= snap.ScanMinVolumeUSDT {
			liquid = append(liquid, t)
		}
	}

	if len(liquid) == 0 {
		// Nothing clears the floor: take the deepest books instead.
		sort.Slice(tickers, func(i, j int) bool { return tickers[i].QuoteVolume > tickers[j].QuoteVolume })
		n := fallbackTopVolume
		if len(tickers) < n {
			n = len(tickers)
		}
		var symbols []string
		for _, t := range tickers[:n] {
			if !strings.HasSuffix(t.Symbol, "USDT") {
				continue
			}
			if snap.UseGainersLosers {
				d.add(t.Symbol, "High Volume")
			}
			symbols = append(symbols, exchange.Canon(t.Symbol))
		}
		return symbols
	}

	sort.Slice(liquid, func(i, j int) bool {
		return math.Abs(liquid[i].PriceChangePercent) > math.Abs(liquid[j].PriceChangePercent)
	})

	symbols := make([]string, 0, len(liquid))
	for _, t := range liquid {
		symbols = append(symbols, exchange.Canon(t.Symbol))
	}
	n := snap.ScanTopN
	if n <= 0 || n > len(liquid) {
		n = len(liquid)
	}
	if snap.UseGainersLosers {
		for _, t := range liquid[:n] {
			d.add(t.Symbol, fmt.Sprintf("Top Mover (%+.1f%%)", t.PriceChangePercent))
		}
	}
	return symbols
}

// volumeSpikes tags liquid symbols whose last closed bar volume spikes over
// its average.
func (s *Scanner) volumeSpikes(ctx context.Context, snap settings.Snapshot, liquid []string, d *discovered) {
	if !snap.UseVolumeSpikeScan {
		return
	}
	period := snap.VolumeSpikePeriod
	if period <= 0 || snap.VolumeSpikeMultiplier <= 0 {
		return
	}

	for _, sym := range liquid {
		bars, err := s.market.Bars(ctx, sym, snap.VolumeSpikeTimeframe, period+2)
		if err != nil || len(bars) < period+2 {
			continue
		}
		// The exchange returns the open bar last: the one before it is the
		// last closed bar.
		closed := bars[len(bars)-2]
		window := bars[len(bars)-2-period : len(bars)-2]
		var sum float64
		for _, b := range window {
			sum += b.Volume
		}
		avg := sum / float64(period)
		if avg <= 0 {
			continue
		}
		if ratio := closed.Volume / avg; ratio >= snap.VolumeSpikeMultiplier {
			d.add(sym, fmt.Sprintf("Volume Spike (%.1fx)", ratio))
		}
	}
}

func (s *Scanner) listedSet(ctx context.Context) map[string]bool {
	tickers, err := s.ex.AllTickers(ctx)
	if err != nil {
		return nil
	}
	listed := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		listed[exchange.Canon(t.Symbol)] = true
	}
	return listed
}

// prefilter runs the cheap indicator gate over one symbol. A pass returns
// the snapshot used, so the fan-out reuses it for prompts and sizing.
func (s *Scanner) prefilter(ctx context.Context, symbol string, snap settings.Snapshot) (indicator.Snapshot, bool, error) {
	bars, err := s.market.Bars(ctx, symbol, snap.ScanTimeframe, prefilterBars)
	if err != nil {
		return indicator.Snapshot{}, false, err
	}
	if len(bars) < prefilterMinBars {
		return indicator.Snapshot{}, false, fmt.Errorf("%s: %d clean bars: %w", symbol, len(bars), types.ErrInsufficientData)
	}

	ind, err := indicator.Build(bars, snap.VolumeAvgPeriod)
	if err != nil {
		return indicator.Snapshot{}, false, err
	}

	rsiHit := ind.RSI < snap.RSILower || ind.RSI > snap.RSIUpper
	if !rsiHit || ind.ADX <= snap.ADXThreshold {
		return ind, false, nil
	}
	if snap.ATRThresholdPercent > 0 && ind.ATRPercent < snap.ATRThresholdPercent {
		return ind, false, nil
	}
	if snap.UseVolumeConfirm && ind.LastVolume < ind.VolumeEMA*snap.VolumeConfirmMult {
		return ind, false, nil
	}
	return ind, true, nil
}

// analyze builds the right prompt for the symbol and parses the answer.
func (s *Scanner) analyze(ctx context.Context, symbol string, ind indicator.Snapshot, snap settings.Snapshot) (types.Recommendation, error) {
	prompt, err := s.buildPrompt(ctx, symbol, ind, snap)
	if err != nil {
		return types.Recommendation{}, err
	}

	resp, err := s.llm.Ask(ctx, prompt)
	if err != nil {
		return types.Recommendation{}, fmt.Errorf("ask %s: %w", symbol, err)
	}
	_, rec := llm.ParseAnalysis(resp)
	return rec, nil
}

func (s *Scanner) buildPrompt(ctx context.Context, symbol string, ind indicator.Snapshot, snap settings.Snapshot) (string, error) {
	if (snap.UseNewsAnalysis && s.news != nil) || (snap.UseSentimentAnalysis && s.sentiment != nil) {
		var headlines []string
		var sentiment string
		if snap.UseNewsAnalysis && s.news != nil {
			headlines, _ = s.news.Headlines(ctx, symbol, 24*time.Hour)
		}
		if snap.UseSentimentAnalysis && s.sentiment != nil {
			sentiment, _ = s.sentiment.Sentiment(ctx, symbol)
		}
		return llm.HolisticPrompt(symbol, snap.ScanTimeframe, ind, headlines, sentiment), nil
	}

	if snap.UseMTAAnalysis && snap.ScanTimeframe != snap.MTATrendTimeframe {
		trend, err := s.market.Snapshot(ctx, symbol, snap.MTATrendTimeframe, snap.VolumeAvgPeriod)
		if err != nil {
			return "", fmt.Errorf("trend snapshot %s: %w", symbol, err)
		}
		return llm.MTAPrompt(symbol, snap.ScanTimeframe, ind, snap.MTATrendTimeframe, trend), nil
	}
	return llm.SinglePrompt(symbol, snap.ScanTimeframe, ind), nil
}

// Run executes one full proactive scan cycle.
func (s *Scanner) Run(ctx context.Context) types.ScanSummary {
	snap := s.settings.Snapshot()
	started := time.Now()

	d := s.discover(ctx, snap)
	summary := types.ScanSummary{Scanned: len(d.symbols)}
	logger.Infof("📡 Scan started: %d candidates from discovery", len(d.symbols))

	type survivor struct {
		symbol string
		ind    indicator.Snapshot
	}
	var survivors []survivor
	for _, sym := range d.symbols {
		ind, pass, err := s.prefilter(ctx, sym, snap)
		if err != nil {
			summary.Errors++
			summary.Details = append(summary.Details, fmt.Sprintf("%s prefilter: %v", sym, err))
			continue
		}
		if pass {
			survivors = append(survivors, survivor{symbol: sym, ind: ind})
		}
	}
	summary.Prefiltered = len(survivors)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(analyzeConcurrency)
	for _, sv := range survivors {
		sv := sv
		g.Go(func() error {
			rec, err := s.analyze(gctx, sv.symbol, sv.ind, snap)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Errors++
				summary.Details = append(summary.Details, fmt.Sprintf("%s analyze: %v", sv.symbol, err))
				return nil
			}
			summary.Analyzed++

			if !rec.IsActionable() {
				return nil
			}
			summary.Opportunities++

			if snap.ScanAutoConfirm {
				if _, err := s.trader.Open(ctx, sv.symbol, rec, sv.ind.ATR, sv.ind.Price); err != nil {
					summary.Errors++
					summary.Details = append(summary.Details, fmt.Sprintf("%s open: %v", sv.symbol, err))
					return nil
				}
				summary.AutoTrades++
				summary.Details = append(summary.Details, fmt.Sprintf("%s auto-opened %s", sv.symbol, rec.Action))
				return nil
			}

			s.storeOpportunity(sv.symbol, sv.ind, d.sources[sv.symbol])
			s.notifier.NotifyText(fmt.Sprintf("🔍 Fırsat: %s %s (RSI %.1f, ADX %.1f)\n%s",
				sv.symbol, rec.Action, sv.ind.RSI, sv.ind.ADX, rec.Reason))
			summary.Details = append(summary.Details, fmt.Sprintf("%s opportunity %s", sv.symbol, rec.Action))
			return nil
		})
	}
	g.Wait()

	detail := fmt.Sprintf("scanned=%d prefiltered=%d analyzed=%d opportunities=%d auto=%d errors=%d in %s",
		summary.Scanned, summary.Prefiltered, summary.Analyzed,
		summary.Opportunities, summary.AutoTrades, summary.Errors,
		time.Since(started).Round(time.Second))
	s.store.Event().Append(types.EventScan, "", detail)
	logger.Infof("📡 Scan complete: %s", detail)
	return summary
}

func (s *Scanner) storeOpportunity(symbol string, ind indicator.Snapshot, sources []string) {
	c := &types.Candidate{
		Symbol:      symbol,
		Price:       ind.Price,
		RSI:         ind.RSI,
		ADX:         ind.ADX,
		ATRPercent:  ind.ATRPercent,
		VolumeRatio: ind.VolumeRatio(),
		Sources:     sources,
		CreatedAt:   time.Now(),
	}
	existing, err := s.store.Candidate().All()
	if err != nil {
		logger.Warnf("⚠️ candidate load failed: %v", err)
		existing = nil
	}
	out := make([]*types.Candidate, 0, len(existing)+1)
	for _, e := range existing {
		if e.Symbol != symbol {
			out = append(out, e)
		}
	}
	out = append(out, c)
	if err := s.store.Candidate().ReplaceAll(out); err != nil {
		logger.Warnf("⚠️ candidate persist failed: %v", err)
	}
}
