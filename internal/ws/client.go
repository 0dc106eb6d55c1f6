package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
	sendBufferSize = 256
)

var ErrSendBufferFull = errors.New("send buffer full")

// Client is a websocket connection with a buffered outbound queue drained by
// its own write goroutine.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues an envelope. A client whose queue is full is closed.
func (c *Client) Send(envelope any) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return nil
	default:
		log.Printf("ws send buffer full, closing conn_id=%s", c.id)
		_ = c.Close()
		return ErrSendBufferFull
	}
}

func (c *Client) Ping() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
	return nil
}

func (c *Client) writePump() {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("ws write failed conn_id=%s: %v", c.id, err)
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
