package server

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 60 * time.Second
	sendBuffer   = 256
	readLimit    = 8 << 20
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

// conn is one websocket session. Send never blocks: messages queue in a
// buffered channel drained by writeLoop.
type conn struct {
	wc   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newConn(wc *websocket.Conn) *conn {
	wc.SetReadLimit(readLimit)
	return &conn{wc: wc, send: make(chan []byte, sendBuffer)}
}

// Send implements session.Conn.
func (c *conn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errSlowConsumer
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readLoop hands every data frame to fn until the peer goes away. A normal
// close returns nil.
func (c *conn) readLoop(fn func([]byte)) error {
	for {
		op, data, err := c.wc.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return err
			}
			return nil
		}
		if op != websocket.TextMessage && op != websocket.BinaryMessage {
			continue
		}
		fn(data)
	}
}

// writeLoop drains the send queue and keeps the connection alive with
// pings. It closes the socket when the queue is closed or a write fails.
func (c *conn) writeLoop() {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	defer c.wc.Close()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
				c.wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.wc.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-t.C:
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
