package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/youngleee/thesis/internal/domain/owner"
)

// State is a connection's lifecycle stage.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Client is one live connection. Transports read outbound frames from
// Outbound until Done is closed.
type Client struct {
	id    string
	owner owner.Owner
	state atomic.Int32
	send  chan []byte
	done  chan struct{}

	closeOnce sync.Once
	hub       atomic.Pointer[Hub]
}

// NewClient returns a connecting client with an outbound buffer of size
// buffer.
func NewClient(o owner.Owner, buffer int) *Client {
	if buffer < 1 {
		buffer = 1
	}
	return &Client{
		id:    uuid.NewString(),
		owner: o,
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }
func (c *Client) Owner() owner.Owner { return c.owner }
func (c *Client) State() State { return State(c.state.Load()) }
func (c *Client) Outbound() <-chan []byte { return c.send }
func (c *Client) Done() <-chan struct{} { return c.done }

// MarkOpen moves a connecting client to open. It reports false if the
// client was not connecting.
func (c *Client) MarkOpen() bool {
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// Send queues a frame. It reports false, without blocking, when the client
// is not open or its buffer is full.
func (c *Client) Send(frame []byte) bool {
	if c.State() != StateOpen {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close marks the client closed and removes it from its hub. It is safe to
// call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		if h := c.hub.Load(); h != nil {
			h.Unregister(c)
		}
	})
}
