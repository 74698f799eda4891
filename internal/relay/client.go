package relay

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/horgh/irc"
	"github.com/nullslate/relayd/internal/registry"
	"github.com/nullslate/relayd/internal/wire"
)

// outputQueueSize bounds how many not-yet-flushed lines a client may
// accumulate before it is considered dead. It mirrors the spec's fixed
// per-client output bound; unlike the teacher's 32768-message channel this
// is sized in raw lines against wire.MaxBufferSize, matching the bound the
// original design expressed as a byte count.
const outputQueueSize = wire.MaxBufferSize

// Client is one connection: its socket, its input/output framing, and its
// place in the registration state machine. A bounded channel does double
// duty as both the output buffer and the wake signal that had to be modeled
// explicitly in the original async design — a channel send already wakes
// the writer goroutine, so there is no separate notify handle here.
type Client struct {
	ID   registry.ClientID
	conn *conn

	in *wire.MessageBuffer

	out       chan string
	dead      int32 // atomic; 1 once the client is no longer usable
	closeCh   chan struct{}
	closeOnce sync.Once
	quitOnce  sync.Once // guards against broadcasting QUIT twice for one client

	stateMu sync.Mutex
	state   ClientState

	LastActivity int64 // unix seconds, atomic
}

// newClient wraps an accepted connection.
func newClient(id registry.ClientID, nc net.Conn, ioTimeout time.Duration) *Client {
	c := &Client{
		ID:      id,
		conn:    newConn(nc, ioTimeout),
		in:      wire.NewMessageBuffer(wire.MaxMessageSize),
		out:     make(chan string, outputQueueSize),
		closeCh: make(chan struct{}),
		state:   unknownState{},
	}
	c.touch()
	return c
}

func (c *Client) touch() {
	atomic.StoreInt64(&c.LastActivity, time.Now().Unix())
}

// State returns the client's current registration state.
func (c *Client) State() ClientState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// SetState installs a new registration state, as returned by a dispatcher
// handler.
func (c *Client) SetState(s ClientState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// IsDead reports whether the client's output queue has overflowed or its
// connection has otherwise been torn down.
func (c *Client) IsDead() bool {
	return atomic.LoadInt32(&c.dead) == 1
}

// markDead flags the client unusable and wakes the write loop, whether or
// not its output queue currently has anything pending.
func (c *Client) markDead() {
	atomic.StoreInt32(&c.dead, 1)
	c.closeOnce.Do(func() { close(c.closeCh) })
}

// Enqueue implements registry.Sender. It never blocks: a full queue marks
// the client dead instead of stalling whatever goroutine is broadcasting to
// it, the same non-blocking-send discipline the original design used for
// its own per-client queue.
func (c *Client) Enqueue(line string) bool {
	if c.IsDead() {
		return false
	}

	select {
	case c.out <- line:
		return true
	default:
		c.markDead()
		return false
	}
}

// SendMessage encodes and enqueues a protocol message.
func (c *Client) SendMessage(m irc.Message) bool {
	line, err := m.Encode()
	if err != nil && err != irc.ErrTruncated {
		log.Printf("client %d: unable to encode message: %s", c.ID, err)
		return false
	}
	return c.Enqueue(line)
}

// readLoop reads lines off the socket and hands each parsed message to
// handle, until the connection errors out or is closed from the write side.
func (c *Client) readLoop(handle func(*Client, irc.Message)) {
	for {
		line, err := c.conn.readLine()
		if err != nil {
			c.markDead()
			return
		}

		c.touch()

		if err := c.in.AppendString(line); err != nil {
			// A single oversized line; drop the connection rather than let a
			// client wedge its own input buffer forever.
			log.Printf("client %d: input buffer overflow: %s", c.ID, err)
			c.markDead()
			return
		}

		for c.in.HasDelimiter() {
			raw := c.in.ExtractLine()
			if raw == "" {
				continue
			}

			msg, err := irc.ParseMessage(raw + "\r\n")
			if err != nil {
				log.Printf("client %d: invalid message %q: %s", c.ID, raw, err)
				continue
			}

			handle(c, msg)
		}
	}
}

// writeLoop drains the output queue to the socket until readLoop (or the
// caller, on forced teardown) marks the client dead, or a write fails. It
// keeps draining pending lines after markDead so a final ERROR reply still
// has a chance to reach the client before the socket closes.
func (c *Client) writeLoop() {
Loop:
	for {
		select {
		case line := <-c.out:
			if err := c.conn.writeLine(line); err != nil {
				c.markDead()
				break Loop
			}
		case <-c.closeCh:
			// Flush whatever is already queued before giving up.
			for {
				select {
				case line := <-c.out:
					_ = c.conn.writeLine(line)
				default:
					break Loop
				}
			}
		}
	}

	if err := c.conn.Close(); err != nil {
		log.Printf("client %d: error closing connection: %s", c.ID, err)
	}
}
