package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jacobdh/eventmq/internal/protocol"
)

const (
	writeTimeout = 5 * time.Second
	recvBuffer   = 256
)

// Socket is a bidirectional frame socket. Send must not block the
// dispatch loop; Recv never blocks.
type Socket interface {
	Send(f protocol.Frame) error
	Recv() (protocol.Frame, bool)
	Close() error
	Pollable
}

// Dealer is the broker-facing socket: a websocket client whose reader
// goroutine queues inbound frames for the loop to drain.
type Dealer struct {
	conn   *websocket.Conn
	queue  chan protocol.Frame
	logger zerolog.Logger

	writeMu sync.Mutex

	mu   sync.Mutex
	wake chan<- struct{}

	closeOnce sync.Once
}

// DialDealer connects to the broker.
func DialDealer(addr string, logger zerolog.Logger) (*Dealer, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial broker %s: %w", addr, err)
	}
	d := &Dealer{
		conn:   conn,
		queue:  make(chan protocol.Frame, recvBuffer),
		logger: logger.With().Str("component", "transport").Str("addr", addr).Logger(),
	}
	go d.readLoop()
	return d, nil
}

func (d *Dealer) readLoop() {
	for {
		_, data, err := d.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.logger.Info().Msg("Broker connection closed")
			} else {
				d.logger.Warn().Err(err).Msg("Broker read error")
			}
			return
		}
		frame, err := protocol.Unmarshal(data)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Dropping undecodable frame")
			continue
		}
		select {
		case d.queue <- frame:
			d.signal()
		default:
			d.logger.Warn().Msg("Inbound queue full, dropping frame")
		}
	}
}

// Send writes one frame with a bounded deadline.
func (d *Dealer) Send(f protocol.Frame) error {
	data, err := protocol.Marshal(f)
	if err != nil {
		return err
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_ = d.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return d.conn.WriteMessage(websocket.TextMessage, data)
}

// Recv pops one queued frame without blocking.
func (d *Dealer) Recv() (protocol.Frame, bool) {
	select {
	case f := <-d.queue:
		return f, true
	default:
		return nil, false
	}
}

// Pending implements Pollable.
func (d *Dealer) Pending() bool {
	return len(d.queue) > 0
}

// BindWake implements Pollable.
func (d *Dealer) BindWake(wake chan<- struct{}) {
	d.mu.Lock()
	d.wake = wake
	d.mu.Unlock()
}

func (d *Dealer) signal() {
	d.mu.Lock()
	wake := d.wake
	d.mu.Unlock()
	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

// Close tears the connection down.
func (d *Dealer) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.conn.Close()
	})
	return err
}
