package settings

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Snapshot is a consistent read of every trading setting. Each operation
// (open, tick, scan) takes one snapshot up front so a concurrent settings
// update cannot split its view.
type Snapshot struct {
	LiveTrading         bool
	VirtualBalance      float64
	Leverage            int
	MaxConcurrentTrades int
	DefaultOrderType    string

	RiskPerTradePercent      float64
	UseDynamicRisk           bool
	DynamicRiskBase          float64
	DynamicRiskLowVolThresh  float64
	DynamicRiskHighVolThresh float64
	DynamicRiskLowVolMult    float64
	DynamicRiskHighVolMult   float64
	ATRMultiplierSL          float64
	RiskRewardRatioTP        float64

	UseTrailingStop               bool
	TrailingStopActivationPercent float64
	UsePartialTP                  bool
	PartialTPTargetRR             float64
	PartialTPClosePercent         float64
	UseBailoutExit                bool
	BailoutArmLossPercent         float64
	BailoutRecoveryPercent        float64
	UseAIBailoutConfirmation      bool

	UseMTAAnalysis    bool
	MTATrendTimeframe string
	Timeframe         string

	ScanEnabled        bool
	ScanAutoConfirm    bool
	ScanTimeframe      string
	ScanMinVolumeUSDT  float64
	ScanTopN           int
	UseGainersLosers   bool
	UseVolumeSpikeScan bool
	Whitelist          []string
	Blacklist          []string

	VolumeSpikeTimeframe  string
	VolumeSpikeMultiplier float64
	VolumeSpikePeriod     int

	RSILower            float64
	RSIUpper            float64
	ADXThreshold        float64
	ATRThresholdPercent float64
	VolumeAvgPeriod     int
	UseVolumeConfirm    bool
	VolumeConfirmMult   float64

	UseNewsAnalysis      bool
	UseSentimentAnalysis bool
}

// Snapshot builds a consistent view of the trading settings.
func (s *Service) Snapshot() Snapshot {
	// Typed getters each take the read lock; values cannot interleave with
	// an Update because Update swaps the whole batch under the write lock
	// before returning.
	s.mu.RLock()
	defer s.mu.RUnlock()

	get := func(key string) string {
		if v, ok := s.cache[key]; ok {
			return v
		}
		return Defaults()[key]
	}

	return Snapshot{
		LiveTrading:         parseBool(get(KeyLiveTrading)),
		VirtualBalance:      parseFloat(get(KeyVirtualBalance)),
		Leverage:            parseInt(get(KeyLeverage)),
		MaxConcurrentTrades: parseInt(get(KeyMaxConcurrentTrades)),
		DefaultOrderType:    get(KeyDefaultOrderType),

		RiskPerTradePercent:      parseFloat(get(KeyRiskPerTradePercent)),
		UseDynamicRisk:           parseBool(get(KeyUseDynamicRisk)),
		DynamicRiskBase:          parseFloat(get(KeyDynamicRiskBase)),
		DynamicRiskLowVolThresh:  parseFloat(get(KeyDynamicRiskLowVolThresh)),
		DynamicRiskHighVolThresh: parseFloat(get(KeyDynamicRiskHighVolThresh)),
		DynamicRiskLowVolMult:    parseFloat(get(KeyDynamicRiskLowVolMult)),
		DynamicRiskHighVolMult:   parseFloat(get(KeyDynamicRiskHighVolMult)),
		ATRMultiplierSL:          parseFloat(get(KeyATRMultiplierSL)),
		RiskRewardRatioTP:        parseFloat(get(KeyRiskRewardRatioTP)),

		UseTrailingStop:               parseBool(get(KeyUseTrailingStop)),
		TrailingStopActivationPercent: parseFloat(get(KeyTrailingStopActivationPercent)),
		UsePartialTP:                  parseBool(get(KeyUsePartialTP)),
		PartialTPTargetRR:             parseFloat(get(KeyPartialTPTargetRR)),
		PartialTPClosePercent:         parseFloat(get(KeyPartialTPClosePercent)),
		UseBailoutExit:                parseBool(get(KeyUseBailoutExit)),
		BailoutArmLossPercent:         parseFloat(get(KeyBailoutArmLossPercent)),
		BailoutRecoveryPercent:        parseFloat(get(KeyBailoutRecoveryPercent)),
		UseAIBailoutConfirmation:      parseBool(get(KeyUseAIBailoutConfirmation)),

		UseMTAAnalysis:    parseBool(get(KeyUseMTAAnalysis)),
		MTATrendTimeframe: get(KeyMTATrendTimeframe),
		Timeframe:         get(KeyTimeframe),

		ScanEnabled:        parseBool(get(KeyScanEnabled)),
		ScanAutoConfirm:    parseBool(get(KeyScanAutoConfirm)),
		ScanTimeframe:      get(KeyScanTimeframe),
		ScanMinVolumeUSDT:  parseFloat(get(KeyScanMinVolumeUSDT)),
		ScanTopN:           parseInt(get(KeyScanTopN)),
		UseGainersLosers:   parseBool(get(KeyScanUseGainersLosers)),
		UseVolumeSpikeScan: parseBool(get(KeyScanUseVolumeSpike)),
		Whitelist:          parseList(get(KeyScanWhitelist)),
		Blacklist:          parseList(get(KeyScanBlacklist)),

		VolumeSpikeTimeframe:  get(KeyVolumeSpikeTimeframe),
		VolumeSpikeMultiplier: parseFloat(get(KeyVolumeSpikeMultiplier)),
		VolumeSpikePeriod:     parseInt(get(KeyVolumeSpikePeriod)),

		RSILower:            parseFloat(get(KeyScanRSILower)),
		RSIUpper:            parseFloat(get(KeyScanRSIUpper)),
		ADXThreshold:        parseFloat(get(KeyScanADXThreshold)),
		ATRThresholdPercent: parseFloat(get(KeyScanATRThresholdPct)),
		VolumeAvgPeriod:     parseInt(get(KeyVolumeAvgPeriod)),
		UseVolumeConfirm:    parseBool(get(KeyUseVolumeConfirmation)),
		VolumeConfirmMult:   parseFloat(get(KeyVolumeConfirmMultiplier)),

		UseNewsAnalysis:      parseBool(get(KeyUseNewsAnalysis)),
		UseSentimentAnalysis: parseBool(get(KeyUseSentimentAnalysis)),
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func parseInt(v string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(v))
	return n
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func parseList(v string) []string {
	var out []string
	json.Unmarshal([]byte(v), &out)
	return out
}
