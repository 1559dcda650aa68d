package main

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cgreenhalgh/timed-ticket-server/msg"
	"github.com/cgreenhalgh/timed-ticket-server/ticket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
)

// Client is a middleman between one websocket connection and the hub.
// It carries the per-connection authentication state the admission
// protocol acts on.
type Client struct {
	id string

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	sendWsMessage chan *msg.WsMessage

	// Closed (once) to make the write pump send a close frame and
	// tear the connection down.
	close     chan struct{}
	closeOnce sync.Once

	hub *Hub

	pingInterval time.Duration

	authenticated atomic.Bool

	// The verified ticket attached at admission. Written under the
	// authenticator's lock.
	ticketMu   sync.Mutex
	authTicket *ticket.Ticket

	logger *zap.SugaredLogger
}

func NewClient(id string, conn *websocket.Conn, hub *Hub, pingInterval time.Duration, logger *zap.SugaredLogger) *Client {
	return &Client{
		id:            id,
		conn:          conn,
		sendWsMessage: make(chan *msg.WsMessage, 64),
		close:         make(chan struct{}),
		hub:           hub,
		pingInterval:  pingInterval,
		logger:        logger,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Authenticated() bool {
	return c.authenticated.Load()
}

func (c *Client) SetAuthenticated(v bool) {
	c.authenticated.Store(v)
}

func (c *Client) SetTicket(t *ticket.Ticket) {
	c.ticketMu.Lock()
	defer c.ticketMu.Unlock()
	c.authTicket = t
}

func (c *Client) Ticket() *ticket.Ticket {
	c.ticketMu.Lock()
	defer c.ticketMu.Unlock()
	return c.authTicket
}

// Disconnect asks the write pump to close the connection. Safe to call
// from any goroutine, any number of times.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		close(c.close)
	})
}

func (c *Client) Run() {
	c.hub.register <- c
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	// Heartbeat. Close connection if client does not respond to ping
	// for too long.
	pongWait := c.pingInterval * 5 / 2
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		wsMessage := &msg.WsMessage{}
		if err := c.conn.ReadJSON(wsMessage); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Errorf("id[%v] read error: %v", c.id, err)
			} else {
				c.logger.Debugf("id[%v] read closing: %v", c.id, err)
			}
			return
		}

		c.hub.wsRequest <- &ClientRequest{client: c, wsMessage: wsMessage}
	}
}

func (c *Client) writePump() {
	pingTicker := time.NewTicker(c.pingInterval)

	defer func() {
		pingTicker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case wsMessage := <-c.sendWsMessage:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(wsMessage); err != nil {
				c.logger.Errorf("id[%v] WriteJSON err: %v", c.id, err)
				return
			}

		case <-c.close:
			// Best effort; the connection is going away either way.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugf("id[%v] ping err: %v", c.id, err)
				return
			}
		}
	}
}
