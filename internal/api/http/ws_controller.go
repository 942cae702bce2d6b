package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/meetsync/internal/domain"
	"github.com/immxrtalbeast/meetsync/internal/service"
	"github.com/immxrtalbeast/meetsync/lib/logger/sl"
)

var (
	ErrBackpressure = errors.New("send buffer full")
	ErrConnClosed   = errors.New("connection closed")
)

type WSConfig struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func (c WSConfig) withDefaults() WSConfig {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	return c
}

// wsConn adapts a websocket to service.Conn. Only writePump writes to the
// socket; Send just queues.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSConn(ws *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send queues n without blocking. A client that cannot keep up is
// disconnected.
func (c *wsConn) Send(n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.Close()
		return ErrBackpressure
	}
}

// Close signals writePump to send a close frame and release the socket.
func (c *wsConn) Close() {
	c.once.Do(func() { close(c.done) })
}

type WSController struct {
	events   service.EventRouter
	cfg      WSConfig
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSController(events service.EventRouter, cfg WSConfig, allowOrigin func(origin string) bool, log *slog.Logger) *WSController {
	if log == nil {
		log = slog.Default()
	}
	return &WSController{
		events: events,
		cfg:    cfg.withDefaults(),
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowOrigin == nil || allowOrigin(origin)
			},
		},
	}
}

func (c *WSController) Serve(ctx *gin.Context) {
	ws, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Warn("failed to upgrade connection", sl.Err(err))
		return
	}

	conn := newWSConn(ws, c.cfg.SendBuffer)
	reqCtx := ctx.Request.Context()

	go func() {
		select {
		case <-reqCtx.Done():
			conn.Close()
		case <-conn.done:
		}
	}()
	go c.writePump(conn)

	c.readPump(reqCtx, conn)
}

func (c *WSController) readPump(ctx context.Context, conn *wsConn) {
	log := c.log.With(slog.String("op", "http.ws.read"), slog.String("conn_id", conn.id))
	defer func() {
		c.events.Disconnect(context.WithoutCancel(ctx), conn)
		conn.Close()
		log.Debug("connection closed")
	}()

	conn.ws.SetReadLimit(c.cfg.ReadLimit)
	_ = conn.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	log.Debug("connection opened")
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("read failed", sl.Err(err))
			}
			return
		}

		var ev domain.InboundEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			_ = conn.Send(domain.ErrorNotification("malformed message", domain.CodeValidation))
			continue
		}
		c.events.HandleEvent(ctx, conn, ev)
	}
}

func (c *WSController) writePump(conn *wsConn) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		_ = conn.ws.Close()
	}()

	for {
		select {
		case <-conn.done:
			_ = conn.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait))
			return
		case data := <-conn.send:
			if err := conn.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("write failed", slog.String("conn_id", conn.id), sl.Err(err))
				return
			}
		case <-ticker.C:
			if err := conn.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				return
			}
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
