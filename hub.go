package main

import (
	"encoding/json"
	"time"

	"github.com/emirpasic/gods/maps/hashmap"
	"go.uber.org/zap"

	"github.com/cgreenhalgh/timed-ticket-server/auth"
	"github.com/cgreenhalgh/timed-ticket-server/config"
	"github.com/cgreenhalgh/timed-ticket-server/infra"
	"github.com/cgreenhalgh/timed-ticket-server/msg"
	"github.com/cgreenhalgh/timed-ticket-server/seat"
)

type ClientRequest struct {
	client    *Client
	wsMessage *msg.WsMessage
}

// Hub owns the set of live connections and runs the admission exchange
// over them. All registry mutation happens on the hub goroutine (plus
// the authenticator's own timer firings, which the authenticator
// serializes itself), so no lock is needed on the client table.
type Hub struct {
	// Registered clients. Key value: client.id -> client.
	clients *hashmap.Map

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Ws messages from clients.
	wsRequest chan *ClientRequest

	authenticator *auth.Authenticator
	scheduler     auth.Scheduler
	notifier      *Notifier

	// Delay between an error response and the disconnect, so the
	// response gets delivered first.
	disconnectDelay time.Duration

	logger *zap.SugaredLogger
}

func ProvideHub(cfg *config.Config, authenticator *auth.Authenticator, notifier *Notifier, loggerFactory *infra.LoggerFactory) *Hub {
	return &Hub{
		clients:         hashmap.New(),
		register:        make(chan *Client, 1024),
		unregister:      make(chan *Client, 1024),
		wsRequest:       make(chan *ClientRequest, 1024),
		authenticator:   authenticator,
		scheduler:       auth.TimerScheduler{},
		notifier:        notifier,
		disconnectDelay: time.Duration(*cfg.DisconnectDelaySeconds) * time.Second,
		logger:          loggerFactory.Create("Hub").Sugar(),
	}
}

// Contains reports whether the connection is still registered. This is
// the presence check the registry reconciles against.
func (h *Hub) Contains(conn seat.Conn) bool {
	value, ok := h.clients.Get(conn.ID())
	return ok && value == interface{}(conn)
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.logger.Debugf("register client id[%v]", client.id)
			h.clients.Put(client.id, client)
			h.authenticator.OnConnect(client)

		case client := <-h.unregister:
			h.logger.Debugf("unregister client id[%v]", client.id)
			if _, ok := h.clients.Get(client.id); !ok {
				continue
			}
			h.clients.Remove(client.id)
			client.Disconnect()

		case req := <-h.wsRequest:
			switch req.wsMessage.EventCode {
			case msg.AuthRequestCode:
				event := &msg.AuthRequestClientEvent{}
				if err := json.Unmarshal(req.wsMessage.EventData, event); err != nil {
					h.logger.Errorf("id[%v] %v", req.client.id, err)
					continue
				}
				h.admit(req.client, event.TicketString)

			default:
				h.logger.Errorf("id[%v] invalid eventCode[%v]", req.client.id, req.wsMessage.EventCode)
			}
		}
	}
}

// admit runs one admission decision and delivers the outcome: the
// displaced holder (if any) is notified and scheduled for disconnect
// before the new claimant gets its response.
func (h *Hub) admit(client *Client, ticketString string) {
	outcome := h.authenticator.Admit(client, ticketString, h)

	if ev := outcome.Eviction; ev != nil {
		if evicted, ok := ev.Conn.(*Client); ok {
			h.sendResponse(evicted, ev.Code, ev.Message)
			evicted.SetAuthenticated(false)
			h.scheduler.Schedule(h.disconnectDelay, evicted.Disconnect)
			h.notifier.Evicted(ev.Message, evicted.ID())
		}
	}

	h.sendResponse(client, outcome.Code, outcome.Message)

	if !outcome.Admitted {
		client.SetAuthenticated(false)
		h.scheduler.Schedule(h.disconnectDelay, client.Disconnect)
		return
	}

	h.logger.Infof("admitted id[%v] seat[%v]", client.id, outcome.Seat)
	h.notifier.Admitted(outcome.Seat, client.ID())
}

func (h *Hub) sendResponse(client *Client, code byte, message string) {
	rawEvent, err := json.Marshal(&msg.AuthResponseServerEvent{
		Code:    code,
		Message: message,
	})
	if err != nil {
		h.logger.Errorf("cannot marshal AuthResponseServerEvent %v", err)
		return
	}

	wsMessage := &msg.WsMessage{
		EventCode: msg.AuthResponseCode,
		EventData: rawEvent,
	}

	select {
	case client.sendWsMessage <- wsMessage:
	default:
		h.logger.Warnf("id[%v] send channel full, dropping response", client.id)
	}
}
