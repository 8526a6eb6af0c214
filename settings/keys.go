package settings

// Setting keys. Values live in the settings table as TEXT; the kind table
// below drives validation and typed decoding.
const (
	KeyLiveTrading         = "LIVE_TRADING"
	KeyVirtualBalance      = "VIRTUAL_BALANCE"
	KeyLeverage            = "LEVERAGE"
	KeyMaxConcurrentTrades = "MAX_CONCURRENT_TRADES"
	KeyDefaultOrderType    = "DEFAULT_ORDER_TYPE"

	KeyRiskPerTradePercent      = "RISK_PER_TRADE_PERCENT"
	KeyUseDynamicRisk           = "USE_DYNAMIC_RISK"
	KeyDynamicRiskBase          = "DYNAMIC_RISK_BASE_RISK"
	KeyDynamicRiskLowVolThresh  = "DYNAMIC_RISK_LOW_VOL_THRESHOLD"
	KeyDynamicRiskHighVolThresh = "DYNAMIC_RISK_HIGH_VOL_THRESHOLD"
	KeyDynamicRiskLowVolMult    = "DYNAMIC_RISK_LOW_VOL_MULTIPLIER"
	KeyDynamicRiskHighVolMult   = "DYNAMIC_RISK_HIGH_VOL_MULTIPLIER"
	KeyATRMultiplierSL          = "ATR_MULTIPLIER_SL"
	KeyRiskRewardRatioTP        = "RISK_REWARD_RATIO_TP"

	KeyUseTrailingStop               = "USE_TRAILING_STOP"
	KeyTrailingStopActivationPercent = "TRAILING_STOP_ACTIVATION_PERCENT"
	KeyUsePartialTP                  = "USE_PARTIAL_TP"
	KeyPartialTPTargetRR             = "PARTIAL_TP_TARGET_RR"
	KeyPartialTPClosePercent         = "PARTIAL_TP_CLOSE_PERCENT"
	KeyUseBailoutExit                = "USE_BAILOUT_EXIT"
	KeyBailoutArmLossPercent         = "BAILOUT_ARM_LOSS_PERCENT"
	KeyBailoutRecoveryPercent        = "BAILOUT_RECOVERY_PERCENT"
	KeyUseAIBailoutConfirmation      = "USE_AI_BAILOUT_CONFIRMATION"

	KeyUseMTAAnalysis    = "USE_MTA_ANALYSIS"
	KeyMTATrendTimeframe = "MTA_TREND_TIMEFRAME"
	KeyTimeframe         = "TIMEFRAME"

	KeyPositionCheckIntervalSeconds = "POSITION_CHECK_INTERVAL_SECONDS"
	KeyPositionSyncIntervalSeconds  = "POSITION_SYNC_INTERVAL_SECONDS"
	KeyOrphanCheckIntervalSeconds   = "ORPHAN_ORDER_CHECK_INTERVAL_SECONDS"

	KeyScanEnabled          = "PROACTIVE_SCAN_ENABLED"
	KeyScanIntervalSeconds  = "PROACTIVE_SCAN_INTERVAL_SECONDS"
	KeyScanAutoConfirm      = "PROACTIVE_SCAN_AUTO_CONFIRM"
	KeyScanTimeframe        = "PROACTIVE_SCAN_TIMEFRAME"
	KeyScanMinVolumeUSDT    = "PROACTIVE_SCAN_MIN_VOLUME_USDT"
	KeyScanTopN             = "PROACTIVE_SCAN_TOP_N"
	KeyScanUseGainersLosers = "PROACTIVE_SCAN_USE_GAINERS_LOSERS"
	KeyScanUseVolumeSpike   = "PROACTIVE_SCAN_USE_VOLUME_SPIKE"
	KeyScanWhitelist        = "PROACTIVE_SCAN_WHITELIST"
	KeyScanBlacklist        = "PROACTIVE_SCAN_BLACKLIST"

	KeyVolumeSpikeTimeframe  = "VOLUME_SPIKE_TIMEFRAME"
	KeyVolumeSpikeMultiplier = "VOLUME_SPIKE_MULTIPLIER"
	KeyVolumeSpikePeriod     = "VOLUME_SPIKE_PERIOD"

	KeyScanRSILower           = "PROACTIVE_SCAN_RSI_LOWER"
	KeyScanRSIUpper           = "PROACTIVE_SCAN_RSI_UPPER"
	KeyScanADXThreshold       = "PROACTIVE_SCAN_ADX_THRESHOLD"
	KeyScanATRThresholdPct    = "PROACTIVE_SCAN_ATR_THRESHOLD_PERCENT"
	KeyVolumeAvgPeriod        = "VOLUME_AVG_PERIOD"
	KeyUseVolumeConfirmation  = "USE_VOLUME_CONFIRMATION"
	KeyVolumeConfirmMultiplier = "VOLUME_CONFIRM_MULTIPLIER"

	KeyGeminiModel          = "GEMINI_MODEL"
	KeyGeminiFallbackModels = "GEMINI_FALLBACK_MODELS"

	KeyUseNewsAnalysis      = "USE_NEWS_ANALYSIS"
	KeyUseSentimentAnalysis = "USE_SENTIMENT_ANALYSIS"

	KeyScreenerAPIURL  = "SCREENER_API_URL"
	KeyScreenerAPIKey  = "SCREENER_API_KEY"
	KeyTrendingAPIURL  = "TRENDING_API_URL"
	KeyTelegramEnabled = "TELEGRAM_ENABLED"
)

type kind int

const (
	kindStr kind = iota
	kindInt
	kindFloat
	kindBool
	kindList
)

var keyKinds = map[string]kind{
	KeyLiveTrading:         kindBool,
	KeyVirtualBalance:      kindFloat,
	KeyLeverage:            kindInt,
	KeyMaxConcurrentTrades: kindInt,
	KeyDefaultOrderType:    kindStr,

	KeyRiskPerTradePercent:      kindFloat,
	KeyUseDynamicRisk:           kindBool,
	KeyDynamicRiskBase:          kindFloat,
	KeyDynamicRiskLowVolThresh:  kindFloat,
	KeyDynamicRiskHighVolThresh: kindFloat,
	KeyDynamicRiskLowVolMult:    kindFloat,
	KeyDynamicRiskHighVolMult:   kindFloat,
	KeyATRMultiplierSL:          kindFloat,
	KeyRiskRewardRatioTP:        kindFloat,

	KeyUseTrailingStop:               kindBool,
	KeyTrailingStopActivationPercent: kindFloat,
	KeyUsePartialTP:                  kindBool,
	KeyPartialTPTargetRR:             kindFloat,
	KeyPartialTPClosePercent:         kindFloat,
	KeyUseBailoutExit:                kindBool,
	KeyBailoutArmLossPercent:         kindFloat,
	KeyBailoutRecoveryPercent:        kindFloat,
	KeyUseAIBailoutConfirmation:      kindBool,

	KeyUseMTAAnalysis:    kindBool,
	KeyMTATrendTimeframe: kindStr,
	KeyTimeframe:         kindStr,

	KeyPositionCheckIntervalSeconds: kindInt,
	KeyPositionSyncIntervalSeconds:  kindInt,
	KeyOrphanCheckIntervalSeconds:   kindInt,

	KeyScanEnabled:          kindBool,
	KeyScanIntervalSeconds:  kindInt,
	KeyScanAutoConfirm:      kindBool,
	KeyScanTimeframe:        kindStr,
	KeyScanMinVolumeUSDT:    kindFloat,
	KeyScanTopN:             kindInt,
	KeyScanUseGainersLosers: kindBool,
	KeyScanUseVolumeSpike:   kindBool,
	KeyScanWhitelist:        kindList,
	KeyScanBlacklist:        kindList,

	KeyVolumeSpikeTimeframe:  kindStr,
	KeyVolumeSpikeMultiplier: kindFloat,
	KeyVolumeSpikePeriod:     kindInt,

	KeyScanRSILower:            kindFloat,
	KeyScanRSIUpper:            kindFloat,
	KeyScanADXThreshold:        kindFloat,
	KeyScanATRThresholdPct:     kindFloat,
	KeyVolumeAvgPeriod:         kindInt,
	KeyUseVolumeConfirmation:   kindBool,
	KeyVolumeConfirmMultiplier: kindFloat,

	KeyGeminiModel:          kindStr,
	KeyGeminiFallbackModels: kindList,

	KeyUseNewsAnalysis:      kindBool,
	KeyUseSentimentAnalysis: kindBool,

	KeyScreenerAPIURL:  kindStr,
	KeyScreenerAPIKey:  kindStr,
	KeyTrendingAPIURL:  kindStr,
	KeyTelegramEnabled: kindBool,
}

// Defaults is the seed map applied insert-if-missing at boot.
func Defaults() map[string]string {
	return map[string]string{
		KeyLiveTrading:         "false",
		KeyVirtualBalance:      "10000",
		KeyLeverage:            "10",
		KeyMaxConcurrentTrades: "5",
		KeyDefaultOrderType:    "LIMIT",

		KeyRiskPerTradePercent:      "5",
		KeyUseDynamicRisk:           "true",
		KeyDynamicRiskBase:          "1.5",
		KeyDynamicRiskLowVolThresh:  "1.5",
		KeyDynamicRiskHighVolThresh: "4.0",
		KeyDynamicRiskLowVolMult:    "1.5",
		KeyDynamicRiskHighVolMult:   "0.75",
		KeyATRMultiplierSL:          "2.0",
		KeyRiskRewardRatioTP:        "2.0",

		KeyUseTrailingStop:               "true",
		KeyTrailingStopActivationPercent: "1.5",
		KeyUsePartialTP:                  "true",
		KeyPartialTPTargetRR:             "1.0",
		KeyPartialTPClosePercent:         "50",
		KeyUseBailoutExit:                "true",
		KeyBailoutArmLossPercent:         "-2.0",
		KeyBailoutRecoveryPercent:        "1.0",
		KeyUseAIBailoutConfirmation:      "true",

		KeyUseMTAAnalysis:    "true",
		KeyMTATrendTimeframe: "4h",
		KeyTimeframe:         "15m",

		KeyPositionCheckIntervalSeconds: "60",
		KeyPositionSyncIntervalSeconds:  "300",
		KeyOrphanCheckIntervalSeconds:   "300",

		KeyScanEnabled:          "false",
		KeyScanIntervalSeconds:  "900",
		KeyScanAutoConfirm:      "false",
		KeyScanTimeframe:        "15m",
		KeyScanMinVolumeUSDT:    "750000",
		KeyScanTopN:             "10",
		KeyScanUseGainersLosers: "true",
		KeyScanUseVolumeSpike:   "true",
		KeyScanWhitelist:        `["BTC","ETH","SOL"]`,
		KeyScanBlacklist:        `["SHIB","PEPE","MEME","DOGE"]`,

		KeyVolumeSpikeTimeframe:  "1h",
		KeyVolumeSpikeMultiplier: "5.0",
		KeyVolumeSpikePeriod:     "24",

		KeyScanRSILower:            "38",
		KeyScanRSIUpper:            "62",
		KeyScanADXThreshold:        "18",
		KeyScanATRThresholdPct:     "0.4",
		KeyVolumeAvgPeriod:         "20",
		KeyUseVolumeConfirmation:   "true",
		KeyVolumeConfirmMultiplier: "1.2",

		KeyGeminiModel:          "gemini-1.5-flash",
		KeyGeminiFallbackModels: `["gemini-1.5-flash-8b","gemini-1.0-pro"]`,

		KeyUseNewsAnalysis:      "false",
		KeyUseSentimentAnalysis: "false",

		KeyScreenerAPIURL:  "",
		KeyScreenerAPIKey:  "",
		KeyTrendingAPIURL:  "",
		KeyTelegramEnabled: "true",
	}
}
