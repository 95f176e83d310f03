package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evsim/cpsim/core/logger"
	"github.com/evsim/cpsim/core/transport"
)

// conn wraps a websocket connection as a transport.Conn. A background
// ticker sends pings; writes are serialized since gorilla allows only
// one concurrent writer.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	closed  sync.Once
	log     logger.Logger
}

func newConn(ws *websocket.Conn, pingInterval time.Duration, log logger.Logger) *conn {
	c := &conn{ws: ws, done: make(chan struct{}), log: log}
	if pingInterval > 0 {
		go c.pingLoop(pingInterval)
	}
	return c
}

func (c *conn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debugf("ping failed: %v", err)
				return
			}
		}
	}
}

func (c *conn) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
	} else {
		_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *conn) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(deadline)
	} else {
		_ = c.ws.SetReadDeadline(time.Time{})
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, c.mapError(err)
	}
	return data, nil
}

func (c *conn) Close() error {
	var err error
	c.closed.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *conn) mapError(err error) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent) {
		return transport.ErrClosed
	}
	return err
}
