package market

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradepulse/cache"
	"tradepulse/exchange"
	"tradepulse/logger"
)

const (
	streamEndpoint = "wss://fstream.binance.com/stream"

	streamPriceTTL = 5 * time.Second
	readDeadline   = 90 * time.Second
	maxBackoff     = 30 * time.Second
)

// markPriceEvent is the payload of a combined-stream markPrice frame.
type markPriceEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Price  string `json:"p"`
	} `json:"data"`
}

// PriceStream keeps the shared price cache warm over the Binance futures
// combined websocket stream. It is a soft dependency: when the feed is down
// price reads fall through to REST tickers.
type PriceStream struct {
	cache *cache.Cache

	mu      sync.RWMutex
	conn    *websocket.Conn
	symbols []string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPriceStream builds the feed writing into the shared cache.
func NewPriceStream(c *cache.Cache) *PriceStream {
	return &PriceStream{
		cache:  c,
		stopCh: make(chan struct{}),
	}
}

// Start connects and begins the read loop. Symbols may be empty; Refresh
// subscribes later when the book changes.
func (p *PriceStream) Start(symbols []string) {
	p.mu.Lock()
	p.symbols = normalizeSymbols(symbols)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run()
	logger.Info("📡 Price stream started")
}

// Stop closes the feed and waits for the read loop.
func (p *PriceStream) Stop() {
	close(p.stopCh)
	p.mu.Lock()
	if p.conn != nil {
		p.conn.Close()
	}
	p.mu.Unlock()
	p.wg.Wait()
	logger.Info("🛑 Price stream stopped")
}

// Refresh replaces the subscribed symbol set. The simplest correct move on
// a combined stream is a reconnect with the new set.
func (p *PriceStream) Refresh(symbols []string) {
	next := normalizeSymbols(symbols)

	p.mu.Lock()
	same := equalSets(p.symbols, next)
	p.symbols = next
	conn := p.conn
	p.mu.Unlock()

	if same || conn == nil {
		return
	}
	// The read loop reconnects and resubscribes with the new set.
	conn.Close()
}

func (p *PriceStream) run() {
	defer p.wg.Done()

	backoff := time.Second
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if err := p.connect(); err != nil {
			logger.Warnf("⚠️ Price stream connect failed: %v (retry in %v)", err, backoff)
			select {
			case <-time.After(backoff):
			case <-p.stopCh:
				return
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		p.readLoop()
	}
}

func (p *PriceStream) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(streamEndpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", streamEndpoint, err)
	}

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	p.mu.Lock()
	p.conn = conn
	symbols := p.symbols
	p.mu.Unlock()

	if len(symbols) > 0 {
		if err := p.subscribe(conn, symbols); err != nil {
			conn.Close()
			return err
		}
	}
	logger.Debugf("📡 Price stream connected (%d symbols)", len(symbols))
	return nil
}

func (p *PriceStream) subscribe(conn *websocket.Conn, symbols []string) error {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@markPrice@1s"
	}
	msg := map[string]any{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     time.Now().UnixNano(),
	}
	return conn.WriteJSON(msg)
}

func (p *PriceStream) readLoop() {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-p.stopCh:
			default:
				logger.Debugf("📡 Price stream read failed, reconnecting: %v", err)
			}
			conn.Close()
			return
		}
		p.handleMessage(message)
	}
}

func (p *PriceStream) handleMessage(message []byte) {
	var evt markPriceEvent
	if err := json.Unmarshal(message, &evt); err != nil {
		return
	}
	if !strings.Contains(evt.Stream, "@markPrice") || evt.Data.Symbol == "" {
		return
	}
	price, err := strconv.ParseFloat(evt.Data.Price, 64)
	if err != nil || price <= 0 {
		return
	}
	p.cache.Set("price_"+evt.Data.Symbol, price, streamPriceTTL)
}

func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		w := exchange.Wire(s)
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}
