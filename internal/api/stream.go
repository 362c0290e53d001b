package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 512
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

// wsConn is one dashboard websocket. Frames are queued by Send and written by a
// single writer goroutine; a full queue marks the client as dead.
type wsConn struct {
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	once         sync.Once
	writeTimeout time.Duration
	logger       *zerolog.Logger
}

func newWSConn(conn *websocket.Conn, buffer int, writeTimeout time.Duration, logger *zerolog.Logger) *wsConn {
	if buffer <= 0 {
		buffer = 64
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &wsConn{
		conn:         conn,
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

func (c *wsConn) Send(frame []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSlowConsumer
	}
}

func (c *wsConn) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("websocket write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readLoop drains client frames until the peer goes away.
func (c *wsConn) readLoop() {
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *HTTPServer) upgrader() websocket.Upgrader {
	origins := s.cfg.API.CORSOrigins
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 {
				return true
			}
			for _, allowed := range origins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	if err := authorize(r, restaurantID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if s.stream == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Str("restaurant_id", restaurantID).Msg("websocket upgrade failed")
		return
	}

	client := newWSConn(conn, s.cfg.FanOut.SendBuffer, s.cfg.FanOut.WriteTimeout, s.logger)
	go client.writeLoop()

	if err := s.stream.Subscribe(restaurantID, client); err != nil {
		s.logger.Warn().Err(err).Str("restaurant_id", restaurantID).Msg("stream subscribe failed")
		client.Close()
		return
	}
	s.logger.Info().Str("restaurant_id", restaurantID).Msg("dashboard connected")

	client.readLoop()

	s.stream.Unsubscribe(restaurantID, client)
	client.Close()
	s.logger.Info().Str("restaurant_id", restaurantID).Msg("dashboard disconnected")
}
