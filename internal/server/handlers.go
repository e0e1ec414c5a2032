package server

import (
	"errors"
	"net/http"

	"watchlist_go/internal/domain"

	"github.com/gin-gonic/gin"
)

type addAssetRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Type   string `json:"type" binding:"required"`
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type cashRequest struct {
	Cash string `json:"cash" binding:"required"`
}

type modeRequest struct {
	Portfolio *bool `json:"portfolio" binding:"required"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var dup *domain.DuplicateSymbolError
	var nf *domain.NotFoundError
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &dup):
		return http.StatusConflict
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case domain.IsRetriable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"error":  domain.UserMessage(err),
		"detail": err.Error(),
	})
}

// respond answers a command with the view after it, or with the command's error.
func (s *Server) respond(c *gin.Context, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	s.getWatchlist(c)
}

func (s *Server) getWatchlist(c *gin.Context) {
	view, err := s.watch.View(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) addAsset(c *gin.Context) {
	var req addAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, &domain.ValidationError{Field: "symbol", Input: req.Symbol, Reason: err.Error()})
		return
	}
	s.respond(c, s.watch.AddAsset(c.Request.Context(), req.Symbol, domain.AssetClass(req.Type)))
}

func (s *Server) removeAsset(c *gin.Context) {
	s.respond(c, s.watch.RemoveAsset(c.Request.Context(), c.Param("symbol")))
}

func (s *Server) moveUp(c *gin.Context) {
	s.respond(c, s.watch.MoveUp(c.Request.Context(), c.Param("symbol")))
}

func (s *Server) moveDown(c *gin.Context) {
	s.respond(c, s.watch.MoveDown(c.Request.Context(), c.Param("symbol")))
}

func (s *Server) setAmount(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, &domain.ValidationError{Field: "amount", Reason: err.Error()})
		return
	}
	s.respond(c, s.watch.SetAmount(c.Request.Context(), c.Param("symbol"), req.Amount))
}

func (s *Server) setCash(c *gin.Context) {
	var req cashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, &domain.ValidationError{Field: "cash", Reason: err.Error()})
		return
	}
	s.respond(c, s.watch.SetCash(c.Request.Context(), req.Cash))
}

func (s *Server) setMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, &domain.ValidationError{Field: "mode", Reason: err.Error()})
		return
	}
	s.respond(c, s.watch.SetMode(c.Request.Context(), *req.Portfolio))
}

func (s *Server) getNotice(c *gin.Context) {
	if s.notifier == nil {
		c.JSON(http.StatusOK, gin.H{"message": ""})
		return
	}
	notice, _ := s.notifier.Current()
	c.JSON(http.StatusOK, notice)
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	hasView := s.latest != nil
	s.stateMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"stream":          s.metrics.Snapshot().StreamConnected,
		"has_pushed_view": hasView,
	})
}
