package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"live-poll-service/internal/domain"
)

// LiveOptions bound the per-connection queues and socket timeouts.
type LiveOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration
}

// DefaultLiveOptions mirrors the values in config/config.yaml.
func DefaultLiveOptions() LiveOptions {
	return LiveOptions{
		SendBuffer:   64,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  90 * time.Second,
	}
}

func (o LiveOptions) withDefaults() LiveOptions {
	d := DefaultLiveOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = d.PongTimeout
	}
	return o
}

// connection is one websocket client. It implements app.Subscriber: events are
// queued on send and written by a single writer goroutine.
type connection struct {
	id     string
	userID string
	ws     *websocket.Conn
	opts   LiveOptions
	logger *slog.Logger

	send      chan any
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(ws *websocket.Conn, userID string, opts LiveOptions, logger *slog.Logger) *connection {
	id := uuid.NewString()
	return &connection{
		id:     id,
		userID: userID,
		ws:     ws,
		opts:   opts,
		logger: logger.With("conn", id, "user", userID),
		send:   make(chan any, opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *connection) ID() string { return c.id }

func (c *connection) ParticipantID() string { return c.userID }

// Send queues a server event without blocking.
func (c *connection) Send(event domain.Event) bool {
	return c.enqueue(event)
}

func (c *connection) enqueue(msg any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close stops the writer, which then tears down the socket. Safe to call more than once.
func (c *connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *connection) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.logger.Warn("ws write failed", "err", err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ws ping failed", "err", err)
				return
			}
		case <-c.done:
			deadline := time.Now().Add(time.Second)
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

// readPump decodes client messages onto commands until the socket fails.
func (c *connection) readPump(commands chan<- inboundMessage) {
	defer close(commands)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("ws read failed", "err", err)
			}
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(errorMessage("bad_request", "invalid message"))
			continue
		}
		select {
		case commands <- msg:
		case <-c.done:
			return
		}
	}
}
