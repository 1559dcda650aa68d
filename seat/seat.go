// Package seat holds the server-side seat table: numbered seats keyed
// by label plus an ordered overflow ("wildcard") sequence, with the
// precedence, capacity and eviction rules applied at admission time.
package seat

import (
	"github.com/cgreenhalgh/timed-ticket-server/ticket"
)

// Conn is the transport-side handle a seat assignment is bound to. The
// registry only reads identity and the authenticated flag; the
// authenticator drives the rest.
type Conn interface {
	ID() string
	Authenticated() bool
	SetAuthenticated(bool)
	SetTicket(*ticket.Ticket)
	Disconnect()
}

// Presence reports whether a connection is still in the transport's
// active set. Disconnect notifications can race with admission
// decisions, so the registry re-checks through this before any
// capacity-sensitive decision.
type Presence interface {
	Contains(Conn) bool
}

// Assignment is one occupied seat: the label, the ticket occupying it
// and the owning connection.
type Assignment struct {
	Seat     string
	Wildcard bool
	Ticket   *ticket.Ticket
	Conn     Conn
}

// Reject reasons. Precedence conflicts and capacity exhaustion are
// reported distinctly from credential problems.
const (
	ReasonSeatInUse = "seat temporarily in use"
	ReasonNoSpace   = "no space available"
)

// Result is the outcome of an assignment attempt. Reason is empty on
// success; Evicted, when non-nil, is a prior holder displaced to make
// room and must be notified for disconnection by the caller.
type Result struct {
	Assigned *Assignment
	Evicted  *Assignment
	Reason   string
}
