package server

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codesync-dev/codesync/pkg/auth"
	"github.com/codesync-dev/codesync/pkg/protocol"
	"github.com/codesync-dev/codesync/pkg/room"
)

// connSeq issues process-unique connection keys.
var connSeq atomic.Uint64

// Conn is one upgraded client connection bound to a room. It owns a read
// loop that decodes and dispatches inbound messages, and a write pump
// that drains the bounded outbound queue. "On message / on close" are
// cases in those loops, not registered callbacks.
type Conn struct {
	key      string
	roomID   string
	identity auth.Identity

	sock *websocket.Conn
	room *room.Room

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	config  *Config
	logger  *slog.Logger
	metrics *room.Metrics
}

func newConn(sock *websocket.Conn, rm *room.Room, identity auth.Identity, config *Config, logger *slog.Logger, metrics *room.Metrics) *Conn {
	key := fmt.Sprintf("conn-%d", connSeq.Add(1))
	return &Conn{
		key:      key,
		roomID:   rm.ID(),
		identity: identity,
		sock:     sock,
		room:     rm,
		out:      make(chan []byte, config.SendQueueSize),
		done:     make(chan struct{}),
		config:   config,
		logger:   logger.With("conn", key, "room", rm.ID(), "uid", identity.UID),
		metrics:  metrics,
	}
}

// Key implements room.Member.
func (c *Conn) Key() string {
	return c.key
}

// RoomID returns the room this connection is bound to. It is set exactly
// once, before any message is processed.
func (c *Conn) RoomID() string {
	return c.roomID
}

// Identity returns the principal attached at upgrade time.
func (c *Conn) Identity() auth.Identity {
	return c.identity
}

// Send implements room.Member: it enqueues msg without blocking and
// reports false if the connection is closed or its queue is full. A slow
// peer only ever loses its own deliveries.
func (c *Conn) Send(msg []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

// start launches the connection's loops.
func (c *Conn) start() {
	go c.readLoop()
	go c.writePump()
}

// readLoop reads inbound messages sequentially until the connection
// closes. Malformed frames are logged and dropped: the connection stays
// open and room state is untouched.
func (c *Conn) readLoop() {
	defer func() {
		c.room.Leave(c)
		c.close()
	}()

	c.sock.SetReadLimit(c.config.MaxMessageSize)
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	for {
		c.sock.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, msg, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				c.logger.Error("read error", "error", err)
			}
			return
		}
		c.dispatch(msg)
	}
}

// dispatch decodes the message kind and hands the message to the room.
func (c *Conn) dispatch(msg []byte) {
	dec := protocol.NewDecoder(msg)
	kind, err := protocol.ReadMessageKind(dec)
	if err != nil {
		c.metrics.DecodeError()
		c.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	payload := msg[len(msg)-dec.Remaining():]

	switch kind {
	case protocol.KindSync:
		err = c.room.HandleSync(c, msg, payload)
	case protocol.KindAwareness:
		err = c.room.HandleAwareness(c, msg, payload)
	}
	if err != nil {
		c.metrics.DecodeError()
		c.logger.Warn("dropping malformed frame", "kind", kind.String(), "error", err)
	}
}

// writePump delivers queued messages and periodic pings until the
// connection closes.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.out:
			c.sock.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				c.logger.Debug("write error", "error", err)
				return
			}

		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// close tears down the transport. Safe to call from either loop.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.sock.Close()
		c.logger.Info("connection closed")
	})
}

var _ room.Member = (*Conn)(nil)
