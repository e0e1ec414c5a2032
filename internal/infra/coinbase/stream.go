package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"watchlist_go/internal/domain"
	"watchlist_go/internal/infra"
	"watchlist_go/internal/service"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	streamHandshakeTimeout = 10 * time.Second
	streamReadTimeout      = 60 * time.Second
	streamWriteTimeout     = 5 * time.Second
)

// State is the connection state of the stream.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type channelSpec struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

type controlMessage struct {
	Type     string        `json:"type"`
	Channels []channelSpec `json:"channels"`
}

// tickerMessage is the subset of the ticker channel payload the watchlist uses.
type tickerMessage struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Open24h   string `json:"open_24h"`
	Message   string `json:"message"`
	Reason    string `json:"reason"`
}

// StreamWorker keeps one websocket open for every crypto asset in the registry.
// It implements domain.StreamSubscriber. Ticks are applied through the executor so they
// interleave with every other registry change.
type StreamWorker struct {
	url            string
	reconnectDelay time.Duration
	exec           service.Executor
	metrics        *infra.Metrics
	logger         *slog.Logger

	conn    *websocket.Conn
	state   State
	mu      sync.RWMutex
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewStreamWorker creates a worker for the feed at url. It does not connect until Connect.
func NewStreamWorker(url string, reconnectDelay time.Duration, exec service.Executor, metrics *infra.Metrics) *StreamWorker {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &StreamWorker{
		url:            url,
		reconnectDelay: reconnectDelay,
		exec:           exec,
		metrics:        metrics,
		logger:         slog.Default().With("module", "coinbase_stream"),
	}
}

// Connect starts the connection loop. It returns immediately; the loop runs until ctx is
// cancelled or Disconnect is called.
func (w *StreamWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.connectionLoop(ctx)

	return nil
}

// connectionLoop connects, reads until the connection drops, then waits a fixed delay.
// Subscriptions are rebuilt from the registry on every connect.
func (w *StreamWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stream connection loop stopped")
			return
		default:
		}

		w.runOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.reconnectDelay):
			w.metrics.RecordReconnect()
		}
	}
}

// runOnce is one connection and its read loop. A panic ends only this connection;
// the loop reconnects after the usual delay.
func (w *StreamWorker) runOnce(ctx context.Context) {
	defer w.closeConnection()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Stream panic recovered", slog.Any("panic", r))
		}
	}()

	w.setState(StateConnecting)
	if err := w.connect(ctx); err != nil {
		w.logger.Warn("Stream connection failed", slog.Any("error", err))
		return
	}
	w.readLoop(ctx)
}

func (w *StreamWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: streamHandshakeTimeout,
	}

	header := make(http.Header)
	header.Add("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, w.url, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	// Connected before the snapshot so assets added in between are subscribed by Subscribe.
	w.mu.Lock()
	w.conn = conn
	w.state = StateConnected
	w.mu.Unlock()
	w.metrics.SetStreamConnected(true)

	var symbols []string
	err = w.exec.Read(ctx, func(r *service.AssetRegistry) error {
		symbols = r.Symbols(domain.ClassCrypto)
		return nil
	})
	if err != nil {
		return fmt.Errorf("registry snapshot failed: %w", err)
	}

	for _, symbol := range symbols {
		if err := w.send("subscribe", symbol); err != nil {
			return fmt.Errorf("subscribe failed: %w", err)
		}
	}

	w.logger.Info("Stream connected", slog.Int("symbols", len(symbols)))
	return nil
}

// Subscribe starts ticks for a crypto symbol. Best effort: nothing is sent while disconnected
// and the next connect subscribes it anyway.
func (w *StreamWorker) Subscribe(symbol string) {
	if w.State() != StateConnected {
		return
	}
	if err := w.send("subscribe", symbol); err != nil {
		w.logger.Debug("Subscribe not delivered", slog.String("symbol", symbol), slog.Any("error", err))
	}
}

// Unsubscribe stops ticks for a crypto symbol. Best effort, like Subscribe.
func (w *StreamWorker) Unsubscribe(symbol string) {
	if w.State() != StateConnected {
		return
	}
	if err := w.send("unsubscribe", symbol); err != nil {
		w.logger.Debug("Unsubscribe not delivered", slog.String("symbol", symbol), slog.Any("error", err))
	}
}

func (w *StreamWorker) send(kind, symbol string) error {
	msg := controlMessage{
		Type: kind,
		Channels: []channelSpec{
			{Name: "ticker", ProductIDs: []string{ProductID(domain.CryptoBase(symbol))}},
		},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, b)
}

// threadSafeWrite sends a message to the WebSocket connection in a thread-safe manner
func (w *StreamWorker) threadSafeWrite(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}

	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteMessage(messageType, data)
}

func (w *StreamWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Warn("Stream read error", slog.Any("error", err))
			}
			return
		}

		w.handleMessage(ctx, message)
	}
}

func (w *StreamWorker) handleMessage(ctx context.Context, message []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		w.logger.Debug("Stream message parse error", slog.Any("error", err))
		return
	}

	switch msg.Type {
	case "ticker":
	case "error":
		w.logger.Warn("Stream error message", slog.String("message", msg.Message), slog.String("reason", msg.Reason))
		return
	default:
		return
	}
	if msg.ProductID == "" {
		return
	}

	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		w.logger.Debug("Stream tick without price", slog.String("product", msg.ProductID))
		return
	}
	open, err := decimal.NewFromString(msg.Open24h)
	if err != nil || open.IsZero() {
		w.logger.Debug("Stream tick without open price", slog.String("product", msg.ProductID))
		return
	}
	change := ChangePercent(price, open)
	symbol := SymbolFromProduct(msg.ProductID)

	err = w.exec.Do(ctx, func(r *service.AssetRegistry) error {
		if r.ApplyQuote(symbol, price, change) {
			w.metrics.RecordTick()
		}
		return nil
	})
	if err != nil {
		w.logger.Debug("Stream tick dropped", slog.String("symbol", symbol), slog.Any("error", err))
	}
}

// ChangePercent is the unrounded move from the session open: (price-open)/open*100.
func ChangePercent(price, open decimal.Decimal) decimal.Decimal {
	return price.Sub(open).Mul(decimal.NewFromInt(100)).Div(open)
}

func (w *StreamWorker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// closeConnection safely closes the WebSocket connection
func (w *StreamWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.state = StateDisconnected
	w.metrics.SetStreamConnected(false)
}

// Disconnect stops the loop and closes the connection.
func (w *StreamWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	w.logger.Info("Stream disconnected")
}

// State returns the current connection state.
func (w *StreamWorker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// IsConnected reports whether the stream is in StateConnected.
func (w *StreamWorker) IsConnected() bool {
	return w.State() == StateConnected
}
