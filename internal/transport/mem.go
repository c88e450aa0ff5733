package transport

import (
	"fmt"
	"sync"

	"github.com/jacobdh/eventmq/internal/protocol"
)

// memSocket is one end of an in-memory socket pair. It exists for
// tests and local wiring; frames sent on one end arrive on the other.
type memSocket struct {
	peer *memSocket

	mu     sync.Mutex
	queue  chan protocol.Frame
	wake   chan<- struct{}
	closed bool
}

// Pair returns two connected in-memory sockets.
func Pair() (Socket, Socket) {
	a := &memSocket{queue: make(chan protocol.Frame, recvBuffer)}
	b := &memSocket{queue: make(chan protocol.Frame, recvBuffer)}
	a.peer = b
	b.peer = a
	return a, b
}

func (m *memSocket) Send(f protocol.Frame) error {
	m.peer.mu.Lock()
	closed := m.peer.closed
	m.peer.mu.Unlock()
	if closed {
		return fmt.Errorf("peer closed")
	}
	select {
	case m.peer.queue <- f:
		m.peer.signal()
		return nil
	default:
		return fmt.Errorf("peer queue full")
	}
}

func (m *memSocket) Recv() (protocol.Frame, bool) {
	select {
	case f := <-m.queue:
		return f, true
	default:
		return nil, false
	}
}

func (m *memSocket) Pending() bool {
	return len(m.queue) > 0
}

func (m *memSocket) BindWake(wake chan<- struct{}) {
	m.mu.Lock()
	m.wake = wake
	m.mu.Unlock()
}

func (m *memSocket) signal() {
	m.mu.Lock()
	wake := m.wake
	m.mu.Unlock()
	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

func (m *memSocket) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
