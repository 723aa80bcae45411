package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	errConnClosed = errors.New("connection closed")
	errSendFull   = errors.New("send buffer full")
)

// maxCloseReason is the largest close frame reason the protocol allows.
const maxCloseReason = 123

// wsConn is one client socket. Frames are queued on send and written by a
// single writer goroutine; a full queue drops the frame.
type wsConn struct {
	ws           *websocket.Conn
	log          zerolog.Logger
	send         chan []byte
	done         chan struct{}
	reason       string
	writeTimeout time.Duration
	code         int
	once         sync.Once
}

func newConn(ws *websocket.Conn, buffer int, writeTimeout time.Duration, l zerolog.Logger) *wsConn {
	if buffer < 1 {
		buffer = 64
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &wsConn{
		ws:           ws,
		log:          l,
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		code:         websocket.CloseNormalClosure,
	}
}

// Send queues frame without blocking.
func (c *wsConn) Send(frame []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.log.Warn().Msg("Send buffer full, frame dropped")
		return errSendFull
	}
}

// Close flushes queued frames and ends the connection with a normal closure.
func (c *wsConn) Close(reason string) {
	c.closeWith(websocket.CloseNormalClosure, reason)
}

func (c *wsConn) closeWith(code int, reason string) {
	c.once.Do(func() {
		if len(reason) > maxCloseReason {
			reason = reason[:maxCloseReason]
		}
		c.code = code
		c.reason = reason
		close(c.done)
	})
}

// closed reports whether Close was called.
func (c *wsConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// writePump owns all writes to the socket.
func (c *wsConn) writePump() {
	defer func() { _ = c.ws.Close() }()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				c.log.Debug().Err(err).Msg("Write failed")
				c.Close("write failed")
				return
			}

		case <-c.done:
		drain:
			for {
				select {
				case frame := <-c.send:
					if c.write(frame) != nil {
						return
					}
				default:
					break drain
				}
			}

			msg := websocket.FormatCloseMessage(c.code, c.reason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
			return
		}
	}
}

func (c *wsConn) write(frame []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}
