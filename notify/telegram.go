// Package notify pushes trade lifecycle messages to the operator. Sends
// never fail the calling trade path: errors are logged and swallowed, and a
// circuit breaker keeps a dead Telegram API from stalling the tick loops.
package notify

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker"

	"tradepulse/logger"
	"tradepulse/types"
)

// Telegram sends Markdown-formatted messages to one chat.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	breaker *gobreaker.CircuitBreaker
}

var _ types.Notifier = (*Telegram)(nil)

// NewTelegram connects the bot. An empty token or failed handshake returns
// an error; callers fall back to the Noop notifier.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token or chat id missing")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "telegram",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("⚠️ Telegram breaker %s → %s", from, to)
		},
	})

	logger.Infof("✅ Telegram notifier connected as @%s", bot.Self.UserName)
	return &Telegram{bot: bot, chatID: chatID, breaker: breaker}, nil
}

func (t *Telegram) send(text string) {
	_, err := t.breaker.Execute(func() (any, error) {
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		_, err := t.bot.Send(msg)
		return nil, err
	})
	if err != nil {
		logger.Warnf("⚠️ Telegram send failed: %v", err)
	}
}

func modePrefix(live bool) string {
	if live {
		return ""
	}
	return "[SIMULATION] "
}

func sideLabel(side string) (emoji, label string) {
	if side == types.SideBuy {
		return "📈", "LONG"
	}
	return "📉", "SHORT"
}

// NotifyTradeOpened announces a new position.
func (t *Telegram) NotifyTradeOpened(p types.Position, live bool) {
	emoji, label := sideLabel(p.Side)
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s *%s %s*\n", modePrefix(live), emoji, label, p.Symbol)
	fmt.Fprintf(&b, "Giriş: `%.4f`\n", p.EntryPrice)
	fmt.Fprintf(&b, "Miktar: `%.4f`\n", p.Amount)
	fmt.Fprintf(&b, "Kaldıraç: `%dx`\n", p.Leverage)
	fmt.Fprintf(&b, "SL: `%.4f` | TP: `%.4f`", p.StopLoss, p.TakeProfit)
	t.send(b.String())
}

// NotifyTradeClosed announces a close with its reason and realized PnL.
func (t *Telegram) NotifyTradeClosed(p types.Position, exitPrice, pnl float64, reason string, live bool) {
	emoji := "✅"
	if pnl < 0 {
		emoji = "❌"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s *%s kapatıldı* (%s)\n", modePrefix(live), emoji, p.Symbol, reason)
	fmt.Fprintf(&b, "Giriş: `%.4f` → Çıkış: `%.4f`\n", p.EntryPrice, exitPrice)
	fmt.Fprintf(&b, "P&L: `%+.2f USDT`", pnl)
	t.send(b.String())
}

// NotifyPartialClose announces a partial take-profit and the breakeven stop.
func (t *Telegram) NotifyPartialClose(p types.Position, closedQty, pnl float64, live bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s🎯 *%s kısmi kâr alındı*\n", modePrefix(live), p.Symbol)
	fmt.Fprintf(&b, "Kapatılan: `%.4f` | Kalan: `%.4f`\n", closedQty, p.Amount)
	fmt.Fprintf(&b, "P&L: `%+.2f USDT`\n", pnl)
	fmt.Fprintf(&b, "Yeni SL (başabaş): `%.4f`", p.StopLoss)
	t.send(b.String())
}

// NotifyText sends a pre-formatted message.
func (t *Telegram) NotifyText(text string) {
	t.send(text)
}

// Noop is the notifier used when Telegram is disabled or unconfigured.
type Noop struct{}

var _ types.Notifier = Noop{}

func (Noop) NotifyTradeOpened(p types.Position, live bool) {
	logger.Debugf("🔕 notify (off): opened %s", p.Symbol)
}

func (Noop) NotifyTradeClosed(p types.Position, exitPrice, pnl float64, reason string, live bool) {
	logger.Debugf("🔕 notify (off): closed %s (%s)", p.Symbol, reason)
}

func (Noop) NotifyPartialClose(p types.Position, closedQty, pnl float64, live bool) {
	logger.Debugf("🔕 notify (off): partial close %s", p.Symbol)
}

func (Noop) NotifyText(text string) {
	logger.Debugf("🔕 notify (off): %s", text)
}
