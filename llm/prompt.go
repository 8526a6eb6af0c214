package llm

import (
	"fmt"
	"strings"

	"tradepulse/indicator"
	"tradepulse/types"
)

// Prompt builders. The decision vocabulary is AL (buy), SAT (sell), BEKLE
// (wait) for new trades and TUT (hold), KAPAT (close) for open positions;
// every prompt demands a JSON object so ParseAnalysis can decode it.

func indicatorBlock(snap indicator.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- RSI(14): %.4f\n", snap.RSI)
	fmt.Fprintf(&b, "- ADX(14): %.4f\n", snap.ADX)
	fmt.Fprintf(&b, "- ATR(14): %.4f (%%%.2f)\n", snap.ATR, snap.ATRPercent)
	fmt.Fprintf(&b, "- EMA(20): %.4f\n", snap.EMA20)
	fmt.Fprintf(&b, "- EMA(50): %.4f\n", snap.EMA50)
	fmt.Fprintf(&b, "- Bollinger(20,2): alt %.4f / orta %.4f / üst %.4f\n", snap.Bands.Lower, snap.Bands.Middle, snap.Bands.Upper)
	fmt.Fprintf(&b, "- MACD(12,26,9): %.4f / sinyal %.4f / histogram %.4f\n", snap.MACD.MACD, snap.MACD.Signal, snap.MACD.Histogram)
	fmt.Fprintf(&b, "- Stochastic(14,3,3): K %.2f / D %.2f\n", snap.Stoch.K, snap.Stoch.D)
	fmt.Fprintf(&b, "- Hacim: %.2f (EMA: %.2f)", snap.LastVolume, snap.VolumeEMA)
	return b.String()
}

func jsonFormat(symbol, timeframe, analysisType string, price float64, extra string) string {
	var b strings.Builder
	b.WriteString("## İSTENEN JSON ÇIKTI FORMATI:\n")
	b.WriteString("Kararını yalnızca aşağıdaki JSON nesnesi olarak sun. Başka hiçbir açıklama yapma.\n")
	b.WriteString("```json\n{\n")
	fmt.Fprintf(&b, "  \"symbol\": %q,\n", symbol)
	fmt.Fprintf(&b, "  \"timeframe\": %q,\n", timeframe)
	b.WriteString("  \"recommendation\": \"KARARIN\",\n")
	b.WriteString("  \"reason\": \"Kararının kısa ve net gerekçesi.\",\n")
	fmt.Fprintf(&b, "  \"analysis_type\": %q,\n", analysisType)
	if extra != "" {
		b.WriteString(extra)
	}
	fmt.Fprintf(&b, "  \"data\": { \"price\": %v }\n", price)
	b.WriteString("}\n```")
	return b.String()
}

// SinglePrompt asks for an AL/SAT/BEKLE decision from one timeframe.
func SinglePrompt(symbol, timeframe string, snap indicator.Snapshot) string {
	var b strings.Builder
	b.WriteString("Sen, uzman bir trading analistisin.\n")
	fmt.Fprintf(&b, "Aşağıda '%s' için '%s' zaman aralığında toplanmış veriler sunulmuştur.\n", symbol, timeframe)
	b.WriteString("GÖREVİN: Bu verileri analiz ederek 'AL', 'SAT' veya 'BEKLE' şeklinde net bir tavsiye kararı ver.\n\n")
	fmt.Fprintf(&b, "SAĞLANAN VERİLER:\n- Anlık Fiyat: %v\nTeknik Göstergeler:\n%s\n\n", snap.Price, indicatorBlock(snap))
	b.WriteString(jsonFormat(symbol, timeframe, "Single", snap.Price, ""))
	return b.String()
}

// MTAPrompt asks for a decision combining a trend timeframe with an entry
// timeframe. The stronger-ADX timeframe dominates; a much stronger entry
// signal against a weak trend may be read as a reversal.
func MTAPrompt(symbol, entryTF string, entry indicator.Snapshot, trendTF string, trend indicator.Snapshot) string {
	var b strings.Builder
	b.WriteString("Sen, Çoklu Zaman Aralığı (MTA) konusunda uzmanlaşmış, tecrübeli bir trading analistisin.\n")
	b.WriteString("Görevin, iki zaman aralığına ait veriyi birleştirerek net bir ticaret kararı ('AL', 'SAT' veya 'BEKLE') vermektir.\n\n")
	b.WriteString("## ANALİZ FELSEFEN:\n")
	fmt.Fprintf(&b, "1. Önce Ana Trendi Anla: '%s' verilerine bakarak ana trendin yönünü ve GÜCÜNÜ (ADX) belirle.\n", trendTF)
	b.WriteString("   - ADX < 20: Yönsüz piyasa. ADX 20-25: Zayıf trend. ADX > 25: Güçlü trend.\n")
	fmt.Fprintf(&b, "2. Giriş Sinyalini Değerlendir: '%s' sinyalini ve GÜCÜNÜ analiz et.\n", entryTF)
	b.WriteString("   - RSI < 30 veya > 70: Güçlü aşırı alım/satım sinyali. ADX > 40: Çok güçlü momentum.\n")
	b.WriteString("3. Sinyalleri Birlikte Yorumla: aynı yöndeyse güçlü teyit. Çelişki varsa sinyal güçlerini tart;\n")
	b.WriteString("   zayıf trend karşısında çok güçlü bir giriş sinyali TREND DÖNÜŞÜ potansiyeli olabilir.\n")
	b.WriteString("   Her iki sinyal de zayıfsa 'BEKLE' en doğrusudur.\n\n")
	fmt.Fprintf(&b, "## SAĞLANAN VERİLER:\n- Sembol: %s\n- Anlık Fiyat: %v\n\n", symbol, entry.Price)
	fmt.Fprintf(&b, "### Ana Trend Verileri (%s)\n%s\n\n", trendTF, indicatorBlock(trend))
	fmt.Fprintf(&b, "### Giriş Sinyali Verileri (%s)\n%s\n\n", entryTF, indicatorBlock(entry))
	extra := fmt.Sprintf("  \"trend_timeframe\": %q,\n", trendTF)
	b.WriteString(jsonFormat(symbol, entryTF, "MTA", entry.Price, extra))
	return b.String()
}

// HolisticPrompt layers news headlines and a sentiment reading on top of
// the technical picture.
func HolisticPrompt(symbol, timeframe string, snap indicator.Snapshot, headlines []string, sentiment string) string {
	var b strings.Builder
	b.WriteString("Sen, hem teknik hem de temel analizi birleştiren bütünsel bir trading analistisin.\n")
	fmt.Fprintf(&b, "GÖREVİN: '%s' için teknik göstergeleri, haber akışını ve piyasa duyarlılığını birlikte tartarak 'AL', 'SAT' veya 'BEKLE' kararı vermek.\n\n", symbol)
	fmt.Fprintf(&b, "## TEKNİK VERİLER (%s):\n- Anlık Fiyat: %v\n%s\n\n", timeframe, snap.Price, indicatorBlock(snap))
	if len(headlines) > 0 {
		b.WriteString("## SON HABERLER:\n")
		for _, h := range headlines {
			fmt.Fprintf(&b, "- %s\n", h)
		}
		b.WriteString("\n")
	}
	if sentiment != "" {
		fmt.Fprintf(&b, "## PİYASA DUYARLILIĞI:\n%s\n\n", sentiment)
	}
	b.WriteString("Haberler ve duyarlılık teknik sinyalle çelişiyorsa temkinli ol.\n\n")
	b.WriteString(jsonFormat(symbol, timeframe, "Holistic", snap.Price, ""))
	return b.String()
}

// ReanalysisPrompt asks TUT/KAPAT for an open position.
func ReanalysisPrompt(pos *types.Position, timeframe string, snap indicator.Snapshot) string {
	var b strings.Builder
	b.WriteString("Sen, tecrübeli bir pozisyon yöneticisisin.\n")
	b.WriteString("## Mevcut Pozisyon Bilgileri:\n")
	fmt.Fprintf(&b, "- Sembol: %s\n- Yön: %s\n- Giriş Fiyatı: %v\n- Anlık Fiyat: %v\n- PnL: %%%.2f\n\n",
		pos.Symbol, strings.ToUpper(pos.Side), pos.EntryPrice, snap.Price, pos.PnLPercent)
	fmt.Fprintf(&b, "## Güncel Teknik Veriler (%s):\n%s\n\n", timeframe, indicatorBlock(snap))
	b.WriteString("GÖREVİN: Pozisyonun devam edip etmeyeceğine karar ver: 'TUT' veya 'KAPAT'.\n\n")
	b.WriteString(jsonFormat(pos.Symbol, timeframe, "Reanalysis", snap.Price, ""))
	return b.String()
}

// BailoutPrompt asks TUT/KAPAT for a losing position that has bounced back
// to its recovery target.
func BailoutPrompt(pos *types.Position, timeframe string, snap indicator.Snapshot) string {
	var b strings.Builder
	b.WriteString("Sen, zarar yönetimi konusunda uzman bir risk yöneticisisin.\n")
	b.WriteString("Aşağıdaki pozisyon zarardayken dip seviyesinden toparlanarak kurtarma hedefine ulaştı.\n")
	b.WriteString("Bu, zararı küçükken kesmek için bir ÇIKIŞ FIRSATI olabilir; ya da toparlanma devam edebilir.\n\n")
	b.WriteString("## Pozisyon:\n")
	fmt.Fprintf(&b, "- Sembol: %s\n- Yön: %s\n- Giriş Fiyatı: %v\n- Anlık Fiyat: %v\n- PnL: %%%.2f\n- Görülen En Kötü Fiyat: %v\n\n",
		pos.Symbol, strings.ToUpper(pos.Side), pos.EntryPrice, snap.Price, pos.PnLPercent, pos.BailoutExtremum)
	fmt.Fprintf(&b, "## Güncel Teknik Veriler (%s):\n%s\n\n", timeframe, indicatorBlock(snap))
	b.WriteString("GÖREVİN: 'KAPAT' (zararı şimdi kes) veya 'TUT' (toparlanma güçlü, bekle) kararı ver.\n\n")
	b.WriteString(jsonFormat(pos.Symbol, timeframe, "Bailout", snap.Price, ""))
	return b.String()
}
