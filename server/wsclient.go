package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"

	"github.com/sentrycam/sentry-go/service/lgr"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 8
)

var (
	errClientClosed = xerrors.New("client closed")
	errClientStuck  = xerrors.New("client send buffer full")
)

type outMessage struct {
	kind int
	data []byte
}

// wsClient adapts one websocket connection to the hub. All writes funnel
// through a single pump goroutine; the gorilla connection allows only one
// concurrent writer.
type wsClient struct {
	id   string
	conn *websocket.Conn

	out  chan outMessage
	done chan struct{}
	once sync.Once
}

func newWSClient(id string, conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:   id,
		conn: conn,
		out:  make(chan outMessage, sendBufferSize),
		done: make(chan struct{}),
	}
}

// SendFrame queues a binary frame. A full buffer means the client is slower
// than the stream; the frame is dropped so the hub never blocks.
func (c *wsClient) SendFrame(data []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	case c.out <- outMessage{kind: websocket.BinaryMessage, data: data}:
		return nil
	default:
		return nil
	}
}

// SendAlert queues a JSON text alert. Alerts are not droppable: a client
// that cannot take one is evicted.
func (c *wsClient) SendAlert(data []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	case c.out <- outMessage{kind: websocket.TextMessage, data: data}:
		return nil
	default:
		return errClientStuck
	}
}

func (c *wsClient) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}

// writePump serializes all outbound traffic and keeps the connection alive
// with pings. Runs until Close or a write failure.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
				lgr.Logger.Debug("client write failed",
					slog.String("client", c.id),
					slog.Any("error", err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
