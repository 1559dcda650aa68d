// Package auth implements the server side of the admission protocol:
// it validates a presented ticket, drives the seat registry, and arms
// the authentication deadline and per-seat expiry monitors.
package auth

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cgreenhalgh/timed-ticket-server/msg"
	"github.com/cgreenhalgh/timed-ticket-server/seat"
	"github.com/cgreenhalgh/timed-ticket-server/ticket"
)

// Eviction is a prior seat holder displaced by an admission. The
// transport sends it the response and schedules its disconnect before
// completing the new assignment.
type Eviction struct {
	Conn    seat.Conn
	Code    byte
	Message string
}

// Outcome is the tagged result of one admission attempt. The caller
// (the transport hub) decides how to deliver it; the core never talks
// to the wire directly.
type Outcome struct {
	Admitted bool
	Seat     string
	Code     byte
	Message  string
	Eviction *Eviction
}

// Options are the admission-policy knobs.
type Options struct {
	EventName string

	// Key is the resolved signing secret. Empty means unsigned mode:
	// every ticket fails verification.
	Key string

	// Timeout disconnects a connection that has not authenticated.
	// 0 disables the deadline.
	Timeout time.Duration
}

// Authenticator ties ticket validation to seat registry mutation. A
// single mutex serializes admission decisions against expiry and
// deadline firings: check-then-act on a seat never interleaves.
type Authenticator struct {
	opts      Options
	registry  *seat.Registry
	scheduler Scheduler
	now       func() time.Time
	logger    *zap.SugaredLogger

	mu sync.Mutex
}

func NewAuthenticator(opts Options, registry *seat.Registry, scheduler Scheduler, logger *zap.SugaredLogger) *Authenticator {
	if opts.Key == "" {
		logger.Warnf("ticket signing secret not set, no ticket will verify")
	}
	return &Authenticator{
		opts:      opts,
		registry:  registry,
		scheduler: scheduler,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock overrides the time source. Tests only.
func (a *Authenticator) SetClock(now func() time.Time) {
	a.now = now
}

// OnConnect starts the authentication deadline for a new connection.
// If no successful admission happens before it fires, the connection
// is forced out. Not an error, just lifecycle.
func (a *Authenticator) OnConnect(conn seat.Conn) {
	if a.opts.Timeout <= 0 {
		return
	}
	a.logger.Debugf("auth countdown started conn[%v] timeout[%v]", conn.ID(), a.opts.Timeout)
	a.scheduler.Schedule(a.opts.Timeout, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if conn.Authenticated() {
			return
		}
		a.logger.Infof("auth timeout conn[%v]", conn.ID())
		conn.Disconnect()
	})
}

// Admit processes one ticket-bearing request. The registry is
// reconciled against the live connection set first, then the claim is
// routed to a numbered or wildcard assignment. On success the verified
// ticket becomes the connection's authentication context and an expiry
// monitor is armed for the seat.
func (a *Authenticator) Admit(conn seat.Conn, rawTicket string, presence seat.Presence) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, err := ticket.Parse(rawTicket)
	if err != nil {
		a.logger.Infof("conn[%v] unparseable ticket[%v]: %v", conn.ID(), rawTicket, err)
		return Outcome{Code: msg.CodeInvalid, Message: "Could not parse ticket"}
	}

	now := a.now()
	if !t.ServerCurrentAndValid(a.opts.EventName, now, a.opts.Key) {
		// Local logs may be detailed; the response never reveals
		// which check failed.
		a.logger.Infof("conn[%v] ticket not current/valid event[%v] seat[%v] now[%v]", conn.ID(), t.EventName, t.Seat, now)
		return Outcome{Code: msg.CodeInvalid, Message: "Invalid Credentials"}
	}

	if stale := a.registry.Reconcile(presence); len(stale) > 0 {
		a.logger.Infof("reconciled %d stale seat(s) before admission", len(stale))
	}

	var result seat.Result
	if t.IsWildcard() {
		result = a.registry.AssignWildcard(t, conn)
	} else {
		result = a.registry.AssignNumbered(t.Seat, t, conn)
	}

	outcome := Outcome{}
	if result.Evicted != nil && result.Evicted.Conn != nil {
		outcome.Eviction = &Eviction{
			Conn:    result.Evicted.Conn,
			Code:    msg.CodeSeatTaken,
			Message: fmt.Sprintf("Someone else has taken seat %v", result.Evicted.Seat),
		}
	}

	if result.Reason != "" {
		outcome.Code = msg.CodeInvalid
		outcome.Message = result.Reason
		return outcome
	}

	conn.SetTicket(t)
	conn.SetAuthenticated(true)

	outcome.Admitted = true
	outcome.Seat = result.Assigned.Seat
	outcome.Code = msg.CodeSuccess
	outcome.Message = "Success"

	a.armExpiry(result.Assigned, conn)
	return outcome
}

// armExpiry schedules the expiry monitor for a fresh assignment: one
// action that, unless superseded, ends the seat when the ticket's
// window does. The delay is clamped so an already-elapsed window
// expires immediately. Re-arming after a reassignment supersedes any
// prior monitor because the captured epoch has advanced.
func (a *Authenticator) armExpiry(assigned *seat.Assignment, conn seat.Conn) {
	now := a.now()
	delay := assigned.Ticket.Duration() - now.Sub(assigned.Ticket.StartTime)
	if delay < 0 {
		delay = 0
	}

	label := assigned.Seat
	epoch := a.registry.Epoch(label)
	a.logger.Debugf("expiry monitor armed seat[%v] conn[%v] epoch[%v] delay[%v]", label, conn.ID(), epoch, delay)

	a.scheduler.Schedule(delay, func() {
		a.expire(label, conn, epoch)
	})
}

func (a *Authenticator) expire(label string, conn seat.Conn, epoch uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.registry.ClearIf(label, conn, epoch) {
		// Seat was reassigned after this monitor was armed; the
		// current holder is somebody else's business.
		a.logger.Debugf("stale expiry monitor seat[%v] conn[%v] epoch[%v]", label, conn.ID(), epoch)
		return
	}

	a.logger.Infof("seat[%v] expired, disconnecting conn[%v]", label, conn.ID())
	conn.SetAuthenticated(false)
	conn.Disconnect()
}

// ShedWildcards force-evicts up to count wildcard holders from the
// long-duration end of the sequence, disconnecting each. Returns how
// many were shed and whether the full count was achieved.
func (a *Authenticator) ShedWildcards(count int) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	evicted, achieved := a.registry.EvictWildcards(count)
	for _, e := range evicted {
		if e.Conn != nil {
			a.logger.Infof("shed wildcard seat[%v] conn[%v]", e.Seat, e.Conn.ID())
			e.Conn.SetAuthenticated(false)
			e.Conn.Disconnect()
		}
	}
	return len(evicted), achieved
}

// Occupancy returns the current numbered and wildcard seat counts,
// serialized against admission.
func (a *Authenticator) Occupancy() (numbered, wildcard int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.NumberedCount(), a.registry.WildcardCount()
}
