package coinbase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"watchlist_go/internal/domain"
	"watchlist_go/internal/infra"
	"watchlist_go/internal/service"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *mapStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *mapStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// lockedExec serializes registry access with a mutex, standing in for the engine.
// panicDos makes that many Do calls panic before running fn.
type lockedExec struct {
	mu       sync.Mutex
	reg      *service.AssetRegistry
	dos      int
	reads    int
	panicDos int
}

func (e *lockedExec) Do(ctx context.Context, fn func(r *service.AssetRegistry) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dos++
	if e.panicDos > 0 {
		e.panicDos--
		panic("tick handler blew up")
	}
	return fn(e.reg)
}

func (e *lockedExec) Read(ctx context.Context, fn func(r *service.AssetRegistry) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reads++
	return fn(e.reg)
}

func (e *lockedExec) counts() (dos, reads int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dos, e.reads
}

func newExec(t *testing.T, assets ...*domain.Asset) *lockedExec {
	reg, err := service.LoadRegistry(&mapStore{data: map[string]string{}})
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range assets {
		if err := reg.Add(a); err != nil {
			t.Fatal(err)
		}
	}
	return &lockedExec{reg: reg}
}

// feedServer accepts websocket clients, records control messages and answers each subscribe
// with one tick. dropFirst closes the first connection right after its subscribes arrive.
type feedServer struct {
	*httptest.Server
	mu        sync.Mutex
	controls  []controlMessage
	conns     int
	dropFirst bool
}

func newFeedServer(t *testing.T, dropFirst bool) *feedServer {
	fs := &feedServer{dropFirst: dropFirst}
	upgrader := websocket.Upgrader{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		fs.mu.Lock()
		fs.conns++
		n := fs.conns
		fs.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			fs.mu.Lock()
			fs.controls = append(fs.controls, msg)
			fs.mu.Unlock()

			if fs.dropFirst && n == 1 {
				return
			}
			if msg.Type == "subscribe" {
				for _, id := range msg.Channels[0].ProductIDs {
					tick := `{"type":"ticker","product_id":"` + id + `","price":"50000","open_24h":"49000"}`
					conn.WriteMessage(websocket.TextMessage, []byte(tick))
				}
			}
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

func (fs *feedServer) count(kind string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := 0
	for _, c := range fs.controls {
		if c.Type == kind {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func priceOf(exec *lockedExec, symbol string) (price, change *decimal.Decimal) {
	exec.Read(context.Background(), func(r *service.AssetRegistry) error {
		if a, ok := r.Get(symbol); ok {
			price, change = a.LastPrice, a.LastChangePercent
		}
		return nil
	})
	return price, change
}

func TestStream_SubscribesAndAppliesTicks(t *testing.T) {
	fs := newFeedServer(t, false)
	exec := newExec(t,
		domain.NewAsset("BTC-CRYPTO", "Bitcoin", domain.ClassCrypto, 2),
		domain.NewAsset("AAPL", "Apple", domain.ClassStock, 2),
	)
	metrics := &infra.Metrics{}

	w := NewStreamWorker(fs.wsURL(), 50*time.Millisecond, exec, metrics)
	w.Connect(context.Background())
	defer w.Disconnect()

	waitFor(t, "tick applied", func() bool {
		p, _ := priceOf(exec, "BTC-CRYPTO")
		return p != nil
	})

	price, change := priceOf(exec, "BTC-CRYPTO")
	if !price.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("price = %s", price)
	}
	want := ChangePercent(decimal.NewFromInt(50000), decimal.NewFromInt(49000))
	if !change.Equal(want) {
		t.Errorf("change = %s, want %s", change, want)
	}
	if change.Equal(change.Round(2)) {
		t.Errorf("streamed change must not be rounded: %s", change)
	}

	if got := fs.count("subscribe"); got != 1 {
		t.Errorf("expected only the crypto asset subscribed, got %d", got)
	}
	if !w.IsConnected() || !metrics.Snapshot().StreamConnected {
		t.Error("expected connected state")
	}
	if metrics.Snapshot().TicksApplied == 0 {
		t.Error("tick not counted")
	}
}

func TestStream_ReconnectResubscribes(t *testing.T) {
	fs := newFeedServer(t, true)
	exec := newExec(t, domain.NewAsset("ETH-CRYPTO", "Ether", domain.ClassCrypto, 2))
	metrics := &infra.Metrics{}

	w := NewStreamWorker(fs.wsURL(), 50*time.Millisecond, exec, metrics)
	w.Connect(context.Background())
	defer w.Disconnect()

	waitFor(t, "resubscribe after drop", func() bool { return fs.count("subscribe") >= 2 })
	waitFor(t, "tick after reconnect", func() bool {
		p, _ := priceOf(exec, "ETH-CRYPTO")
		return p != nil
	})
	if metrics.Snapshot().Reconnects == 0 {
		t.Error("reconnect not counted")
	}
}

func TestStream_ConnectSnapshotDoesNotPublish(t *testing.T) {
	fs := newFeedServer(t, false)
	exec := newExec(t, domain.NewAsset("AAPL", "Apple", domain.ClassStock, 2))

	w := NewStreamWorker(fs.wsURL(), 50*time.Millisecond, exec, &infra.Metrics{})
	w.Connect(context.Background())
	defer w.Disconnect()

	waitFor(t, "connected", w.IsConnected)
	waitFor(t, "registry snapshot", func() bool {
		_, reads := exec.counts()
		return reads >= 1
	})
	if dos, _ := exec.counts(); dos != 0 {
		t.Errorf("snapshot went through Do %d times, want 0", dos)
	}
}

func TestStream_PanicInTickReconnects(t *testing.T) {
	fs := newFeedServer(t, false)
	exec := newExec(t, domain.NewAsset("BTC-CRYPTO", "Bitcoin", domain.ClassCrypto, 2))
	exec.panicDos = 1
	metrics := &infra.Metrics{}

	w := NewStreamWorker(fs.wsURL(), 50*time.Millisecond, exec, metrics)
	w.Connect(context.Background())
	defer w.Disconnect()

	waitFor(t, "resubscribe after panic", func() bool { return fs.count("subscribe") >= 2 })
	waitFor(t, "tick after panic", func() bool {
		p, _ := priceOf(exec, "BTC-CRYPTO")
		return p != nil
	})
	if metrics.Snapshot().Reconnects == 0 {
		t.Error("reconnect not counted")
	}
}

func TestStream_SubscribeAndUnsubscribeWhileConnected(t *testing.T) {
	fs := newFeedServer(t, false)
	exec := newExec(t)

	w := NewStreamWorker(fs.wsURL(), 50*time.Millisecond, exec, &infra.Metrics{})
	w.Connect(context.Background())
	defer w.Disconnect()

	waitFor(t, "connected", w.IsConnected)

	w.Subscribe("SOL-CRYPTO")
	w.Unsubscribe("SOL-CRYPTO")

	waitFor(t, "control messages", func() bool {
		return fs.count("subscribe") == 1 && fs.count("unsubscribe") == 1
	})

	fs.mu.Lock()
	last := fs.controls[len(fs.controls)-1]
	fs.mu.Unlock()
	if last.Channels[0].Name != "ticker" || last.Channels[0].ProductIDs[0] != "SOL-USD" {
		t.Errorf("unexpected unsubscribe payload: %+v", last)
	}
}

func TestStream_IgnoresUnknownProduct(t *testing.T) {
	exec := newExec(t, domain.NewAsset("BTC-CRYPTO", "Bitcoin", domain.ClassCrypto, 2))
	metrics := &infra.Metrics{}
	w := NewStreamWorker("ws://unused", time.Second, exec, metrics)

	w.handleMessage(context.Background(), []byte(`{"type":"ticker","product_id":"DOGE-USD","price":"0.1","open_24h":"0.1"}`))
	w.handleMessage(context.Background(), []byte(`{"type":"subscriptions","channels":[]}`))
	w.handleMessage(context.Background(), []byte(`not json`))

	if p, _ := priceOf(exec, "BTC-CRYPTO"); p != nil {
		t.Error("unrelated tick changed BTC")
	}
	if exec.reg.Has("DOGE-CRYPTO") {
		t.Error("tick resurrected an unknown symbol")
	}
	if metrics.Snapshot().TicksApplied != 0 {
		t.Error("ignored ticks must not be counted")
	}
}

func TestSubscribeWhileDisconnectedIsNoop(t *testing.T) {
	w := NewStreamWorker("ws://unused", time.Second, newExec(t), &infra.Metrics{})
	w.Subscribe("BTC-CRYPTO")
	w.Unsubscribe("BTC-CRYPTO")
	if w.State() != StateDisconnected {
		t.Errorf("state = %s", w.State())
	}
}

func TestChangePercent(t *testing.T) {
	got := ChangePercent(decimal.NewFromInt(50000), decimal.NewFromInt(49000))
	if !got.Round(4).Equal(decimal.RequireFromString("2.0408")) {
		t.Errorf("ChangePercent = %s", got)
	}
}
