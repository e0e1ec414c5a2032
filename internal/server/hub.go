package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// handleWebsockets is the main Hub loop
func (s *Server) handleWebsockets(ctx context.Context) {
	defer close(s.hubDone)
	for {
		select {
		case <-ctx.Done():
			for client := range s.clients {
				delete(s.clients, client)
				close(client.send)
			}
			return

		case client := <-s.register:
			s.clients[client] = struct{}{}
			// Send the latest view on connect
			s.stateMutex.RLock()
			if s.latest != nil {
				client.send <- *s.latest
			}
			s.stateMutex.RUnlock()

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}

		case message := <-s.broadcast:
			if message.Type == "update" {
				s.stateMutex.Lock()
				m := message
				s.latest = &m
				s.stateMutex.Unlock()
			}

			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					// Slow client: drop it so the hub never blocks
					delete(s.clients, client)
					close(client.send)
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade websocket", slog.Any("error", err))
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan Message, 64),
	}

	// Seed a client that connects before the first publish.
	if view, err := s.watch.View(c.Request.Context()); err == nil {
		s.stateMutex.Lock()
		if s.latest == nil {
			s.latest = &Message{Type: "update", View: &view}
		}
		s.stateMutex.Unlock()
	}

	select {
	case s.register <- client:
	case <-s.hubDone:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
