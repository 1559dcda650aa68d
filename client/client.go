package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cgreenhalgh/timed-ticket-server/msg"
	"github.com/cgreenhalgh/timed-ticket-server/ticket"
)

// State is the client's view of the admission exchange.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateVerifying
	StateAdmitted
	StateRejected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateVerifying:
		return "verifying"
	case StateAdmitted:
		return "admitted"
	case StateRejected:
		return "rejected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Client dials the server, presents a ticket, and tracks the admission
// state. One Client per join attempt.
type Client struct {
	serverURL string
	eventName string

	// SelfSignKey, when set (dev setups where the client holds the
	// signing key), makes a rejection log a self-signed replacement
	// ticket string as a debugging aid.
	SelfSignKey string

	logger *zap.SugaredLogger

	mu            sync.Mutex
	state         State
	reason        string
	authenticated bool
	conn          *websocket.Conn
}

func NewClient(serverURL, eventName string, logger *zap.SugaredLogger) *Client {
	return &Client{
		serverURL: serverURL,
		eventName: eventName,
		logger:    logger,
	}
}

// State returns the current admission state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reason returns the rejection reason, if any.
func (c *Client) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Authenticated reports whether the server has admitted this client.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

func (c *Client) setState(state State, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.reason = reason
}

// Join prechecks the ticket locally, dials the server, sends the
// ticket and waits for the admission response. A precheck failure
// short-circuits to rejected without a round trip.
func (c *Client) Join(ctx context.Context, rawTicket string) error {
	if status, _ := Precheck(rawTicket, c.eventName, time.Now()); status != StatusOK {
		c.setState(StateRejected, status.String())
		c.logger.Errorf("ticket precheck failed: %v", status)
		return fmt.Errorf("ticket precheck failed: %v", status)
	}

	c.setState(StateConnecting, "")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		c.setState(StateDisconnected, "connect failed")
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	rawEvent, err := json.Marshal(&msg.AuthRequestClientEvent{TicketString: rawTicket})
	if err != nil {
		conn.Close()
		c.setState(StateDisconnected, "encode failed")
		return err
	}
	if err := conn.WriteJSON(&msg.WsMessage{EventCode: msg.AuthRequestCode, EventData: rawEvent}); err != nil {
		conn.Close()
		c.setState(StateDisconnected, "send failed")
		return err
	}
	c.setState(StateVerifying, "")

	for {
		wsMessage := &msg.WsMessage{}
		if err := conn.ReadJSON(wsMessage); err != nil {
			conn.Close()
			c.setState(StateDisconnected, "connection closed")
			return err
		}
		if wsMessage.EventCode != msg.AuthResponseCode {
			c.logger.Debugf("ignoring eventCode[%v] while verifying", wsMessage.EventCode)
			continue
		}

		event := &msg.AuthResponseServerEvent{}
		if err := json.Unmarshal(wsMessage.EventData, event); err != nil {
			conn.Close()
			c.setState(StateDisconnected, "bad response")
			return err
		}
		return c.onAuthResponse(event, rawTicket)
	}
}

func (c *Client) onAuthResponse(event *msg.AuthResponseServerEvent, rawTicket string) error {
	if event.Code == msg.CodeSuccess {
		c.logger.Infof("admitted: %v", event.Message)
		c.mu.Lock()
		c.authenticated = true
		c.state = StateAdmitted
		c.mu.Unlock()

		go c.readUntilClosed()
		return nil
	}

	c.logger.Errorf("rejected code[%v]: %v", event.Code, event.Message)
	c.mu.Lock()
	c.authenticated = false
	c.state = StateRejected
	c.reason = event.Message
	conn := c.conn
	c.mu.Unlock()
	conn.Close()

	c.logSelfSign(rawTicket)
	return fmt.Errorf("rejected code[%v]: %v", event.Code, event.Message)
}

// readUntilClosed keeps draining the connection after admission so
// pings are answered and a server-side expiry shows up as a state
// change.
func (c *Client) readUntilClosed() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Infof("connection closed: %v", err)
			}
			break
		}
	}

	c.mu.Lock()
	c.authenticated = false
	c.state = StateDisconnected
	c.mu.Unlock()
}

// Leave closes the connection.
func (c *Client) Leave() {
	c.mu.Lock()
	conn := c.conn
	c.authenticated = false
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leaving"))
		conn.Close()
	}
}

// logSelfSign re-signs the rejected ticket locally when the client
// happens to hold the signing key, so dev setups can see what a valid
// ticket string would look like.
func (c *Client) logSelfSign(rawTicket string) {
	if c.SelfSignKey == "" {
		return
	}
	t, err := ticket.Parse(rawTicket)
	if err != nil {
		c.logger.Errorf("problem making self-sign ticket: %v", err)
		return
	}
	t.Sign(c.SelfSignKey)
	c.logger.Errorf("self-sign ticket: %v", t.String())
}
