package chat

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/pelusa-v/pelusa-chat/internal/identity"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	readLimit  = 64 << 10
)

type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateLive
	StateDisconnected
)

func (s State) String() string {
	return [...]string{"CONNECTING", "AUTHENTICATED", "LIVE", "DISCONNECTED"}[s]
}

type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// deadlineConn is satisfied by real websocket connections; fakes may skip it.
type deadlineConn interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
}

type Client struct {
	Handle   string
	Identity identity.Identity
	Conn     ConnLike
	Send     chan []byte

	state atomic.Int32

	mu   sync.Mutex
	acks map[string]chan bool

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn ConnLike, buffer int) *Client {
	return &Client{
		Handle: uuid.NewString(),
		Conn:   conn,
		Send:   make(chan []byte, buffer),
		acks:   map[string]chan bool{},
		done:   make(chan struct{}),
	}
}

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// markDisconnected reports whether this call moved the client to DISCONNECTED.
func (c *Client) markDisconnected() bool {
	for {
		cur := c.state.Load()
		if State(cur) == StateDisconnected {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(StateDisconnected)) {
			return true
		}
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.Conn.Close()
	})
}

// Notify queues a frame without waiting for the client. It reports false
// when the connection is closed or its buffer is full.
func (c *Client) Notify(out Outbound) bool {
	data, err := json.Marshal(out)
	if err != nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Deliver pushes a frame and waits for the client's ack until ctx ends.
func (c *Client) Deliver(ctx context.Context, out Outbound) AckResult {
	ackID := uuid.NewString()
	ch := make(chan bool, 1)

	c.mu.Lock()
	c.acks[ackID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.acks, ackID)
		c.mu.Unlock()
	}()

	out.AckID = ackID
	if !c.Notify(out) {
		return AckUndeliverable
	}
	select {
	case ok := <-ch:
		if ok {
			return AckConfirmed
		}
		return AckRejected
	case <-ctx.Done():
		return AckTimedOut
	case <-c.done:
		return AckUndeliverable
	}
}

func (c *Client) resolveAck(ackID string, ok bool) {
	c.mu.Lock()
	ch, found := c.acks[ackID]
	c.mu.Unlock()
	if !found {
		return
	}
	select {
	case ch <- ok:
	default:
	}
}

func (c *Client) ReadPump(onMessage func(data []byte)) {
	if dc, ok := c.Conn.(deadlineConn); ok {
		dc.SetReadLimit(readLimit)
		_ = dc.SetReadDeadline(time.Now().Add(pongWait))
		dc.SetPongHandler(func(string) error { return dc.SetReadDeadline(time.Now().Add(pongWait)) })
	}
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		onMessage(data)
	}
}

func (c *Client) WritePump() {
	dc, canPing := c.Conn.(deadlineConn)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data := <-c.Send:
			if canPing {
				_ = dc.SetWriteDeadline(time.Now().Add(writeWait))
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if !canPing {
				continue
			}
			_ = dc.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
