package transport

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/jacobdh/eventmq/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Routed pairs an inbound frame with the connection it arrived on, so
// replies can be addressed back to the caller.
type Routed struct {
	Sender string
	Frame  protocol.Frame
}

// Router is the administrative socket: many short-lived websocket
// clients funneled into one inbound queue, with reply-by-sender
// addressing.
type Router struct {
	queue  chan Routed
	logger zerolog.Logger

	mu    sync.Mutex
	conns map[string]*websocket.Conn
	wake  chan<- struct{}
}

// NewRouter returns an idle router; wire Handle into an echo route to
// accept connections.
func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		queue:  make(chan Routed, recvBuffer),
		logger: logger.With().Str("component", "transport").Str("socket", "admin").Logger(),
		conns:  make(map[string]*websocket.Conn),
	}
}

// Handle upgrades an admin connection and pumps its frames into the
// shared queue until the client goes away.
func (r *Router) Handle(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		r.logger.Error().Err(err).Msg("Admin websocket upgrade failed")
		return err
	}

	sender := uuid.New().String()
	r.mu.Lock()
	r.conns[sender] = ws
	r.mu.Unlock()
	r.logger.Debug().Str("sender", sender).Msg("Admin client connected")

	defer func() {
		r.mu.Lock()
		delete(r.conns, sender)
		r.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Warn().Err(err).Msg("Admin read error")
			}
			return nil
		}
		frame, err := protocol.Unmarshal(data)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Dropping undecodable admin frame")
			continue
		}
		r.Inject(sender, frame)
	}
}

// Inject queues a routed frame as if it had arrived on a connection.
func (r *Router) Inject(sender string, f protocol.Frame) {
	select {
	case r.queue <- Routed{Sender: sender, Frame: f}:
		r.signal()
	default:
		r.logger.Warn().Msg("Admin queue full, dropping frame")
	}
}

// RecvRouted pops one queued frame without blocking.
func (r *Router) RecvRouted() (Routed, bool) {
	select {
	case routed := <-r.queue:
		return routed, true
	default:
		return Routed{}, false
	}
}

// SendTo writes a frame back to the named connection.
func (r *Router) SendTo(sender string, f protocol.Frame) error {
	r.mu.Lock()
	ws, ok := r.conns[sender]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("admin connection %s is gone", sender)
	}
	data, err := protocol.Marshal(f)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// Pending implements Pollable.
func (r *Router) Pending() bool {
	return len(r.queue) > 0
}

// BindWake implements Pollable.
func (r *Router) BindWake(wake chan<- struct{}) {
	r.mu.Lock()
	r.wake = wake
	r.mu.Unlock()
}

func (r *Router) signal() {
	r.mu.Lock()
	wake := r.wake
	r.mu.Unlock()
	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

// Close drops every admin connection.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sender, ws := range r.conns {
		_ = ws.Close()
		delete(r.conns, sender)
	}
	return nil
}
