// Package client is the client side of the admission protocol: local
// ticket prechecks, browser-URL ticket extraction, and a websocket
// client that presents a ticket and tracks the admission state.
package client

import (
	"time"

	"github.com/cgreenhalgh/timed-ticket-server/ticket"
)

// Status is the result of a local precheck, surfaced to the UI so a
// dead ticket never costs a network round trip. Format and time window
// only; the signature is the server's problem.
type Status int

const (
	StatusOK Status = iota
	StatusNoTicket
	StatusBadFormat
	StatusWrongEvent
	StatusNotStarted
	StatusFinished
	StatusNotCurrent
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoTicket:
		return "no ticket"
	case StatusBadFormat:
		return "badly formatted ticket"
	case StatusWrongEvent:
		return "ticket for wrong event"
	case StatusNotStarted:
		return "event not started"
	case StatusFinished:
		return "event finished"
	case StatusNotCurrent:
		return "ticket not current"
	default:
		return "unknown"
	}
}

// Precheck parses and time-checks a ticket string against the expected
// event. On StatusOK and the time-window statuses the parsed ticket is
// returned as well.
func Precheck(rawTicket, eventName string, now time.Time) (Status, *ticket.Ticket) {
	if rawTicket == "" {
		return StatusNoTicket, nil
	}

	t, err := ticket.Parse(rawTicket)
	if err != nil {
		return StatusBadFormat, nil
	}

	if t.ClientCurrentAndValid(eventName, now) {
		return StatusOK, t
	}

	// Work out the most useful reason to show.
	switch {
	case t.EventName != eventName:
		return StatusWrongEvent, t
	case t.Finished(now):
		return StatusFinished, t
	case t.SecondsUntilStart(now) > 0:
		return StatusNotStarted, t
	default:
		return StatusNotCurrent, t
	}
}
