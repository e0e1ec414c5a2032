package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"watchlist_go/internal/domain"
	"watchlist_go/internal/infra"
	"watchlist_go/internal/service"

	"github.com/gin-gonic/gin"
)

// Watchlist is the engine surface the HTTP handlers drive.
type Watchlist interface {
	AddAsset(ctx context.Context, symbol string, hint domain.AssetClass) error
	RemoveAsset(ctx context.Context, symbol string) error
	MoveUp(ctx context.Context, symbol string) error
	MoveDown(ctx context.Context, symbol string) error
	SetAmount(ctx context.Context, symbol, input string) error
	SetCash(ctx context.Context, input string) error
	SetMode(ctx context.Context, portfolio bool) error
	View(ctx context.Context) (service.WatchlistView, error)
}

// Message is what the websocket pushes: Type "update" carries a view, "notice" a notice.
type Message struct {
	Type   string                 `json:"type"`
	View   *service.WatchlistView `json:"view,omitempty"`
	Notice *service.Notice        `json:"notice,omitempty"`
}

// Server exposes the watchlist over REST and pushes live updates over a websocket hub.
type Server struct {
	addr     string
	watch    Watchlist
	notifier *service.Notifier
	metrics  *infra.Metrics
	router   *gin.Engine
	logger   *slog.Logger

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	hubDone    chan struct{}

	// Latest view, replayed to new clients
	latest     *Message
	stateMutex sync.RWMutex
}

// New builds the server and its routes. debug keeps gin's debug mode.
func New(addr string, watch Watchlist, notifier *service.Notifier, metrics *infra.Metrics, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:     addr,
		watch:    watch,
		notifier: notifier,
		metrics:  metrics,
		router:   router,
		logger:   slog.Default().With("module", "server"),
		clients:  make(map[*Client]struct{}),
		// Buffered so engine-side publishes never wait on the hub
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		hubDone:    make(chan struct{}),
	}

	// Local origins only
	s.router.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	api.GET("/watchlist", s.getWatchlist)
	api.POST("/assets", s.addAsset)
	api.DELETE("/assets/:symbol", s.removeAsset)
	api.POST("/assets/:symbol/up", s.moveUp)
	api.POST("/assets/:symbol/down", s.moveDown)
	api.PUT("/assets/:symbol/amount", s.setAmount)
	api.PUT("/cash", s.setCash)
	api.PUT("/mode", s.setMode)
	api.GET("/notice", s.getNotice)
	api.GET("/metrics", s.getMetrics)
	api.GET("/health", s.getHealth)

	s.router.GET("/ws", s.handleWebSocket)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// PublishView queues a view for every websocket client. It never blocks; under sustained
// overload older views are dropped, which is harmless since each view is complete.
func (s *Server) PublishView(view service.WatchlistView) {
	s.publish(Message{Type: "update", View: &view})
}

// PublishNotice queues a notice (or a clear, when Message is empty) for every client.
func (s *Server) PublishNotice(notice service.Notice) {
	s.publish(Message{Type: "notice", Notice: &notice})
}

func (s *Server) publish(msg Message) {
	select {
	case s.broadcast <- msg:
	default:
		s.logger.Warn("Broadcast queue full, dropping message", slog.String("type", msg.Type))
	}
}

// startHub runs the hub and forwards notices until ctx is cancelled.
func (s *Server) startHub(ctx context.Context) {
	go s.handleWebsockets(ctx)
	if s.notifier == nil {
		return
	}
	notices, cancel := s.notifier.Subscribe(16)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	go func() {
		for n := range notices {
			s.PublishNotice(n)
		}
	}()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.startHub(ctx)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", slog.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}
