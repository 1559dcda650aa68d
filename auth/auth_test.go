package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cgreenhalgh/timed-ticket-server/msg"
	"github.com/cgreenhalgh/timed-ticket-server/seat"
	"github.com/cgreenhalgh/timed-ticket-server/ticket"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeConn struct {
	id            string
	authenticated bool
	disconnected  bool
	authTicket    *ticket.Ticket
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Authenticated() bool { return c.authenticated }

func (c *fakeConn) SetAuthenticated(v bool) { c.authenticated = v }

func (c *fakeConn) SetTicket(t *ticket.Ticket) { c.authTicket = t }

func (c *fakeConn) Disconnect() { c.disconnected = true }

type allPresent struct{}

func (allPresent) Contains(seat.Conn) bool { return true }

type task struct {
	delay time.Duration
	fn    func()
}

// fakeScheduler records scheduled actions so tests can fire them in a
// chosen order.
type fakeScheduler struct {
	tasks []task
}

func (s *fakeScheduler) Schedule(d time.Duration, fn func()) {
	s.tasks = append(s.tasks, task{delay: d, fn: fn})
}

func (s *fakeScheduler) fire(i int) {
	s.tasks[i].fn()
}

func newTestAuthenticator(timeout time.Duration) (*Authenticator, *fakeScheduler, *seat.Registry) {
	logger := zap.NewNop().Sugar()
	registry := seat.NewRegistry(2, 2, logger)
	scheduler := &fakeScheduler{}
	a := NewAuthenticator(Options{
		EventName: "show1",
		Key:       "k",
		Timeout:   timeout,
	}, registry, scheduler, logger)
	a.SetClock(func() time.Time { return testStart.Add(1800 * time.Second) })
	return a, scheduler, registry
}

func mint(seatLabel string, durationSeconds float64) string {
	return ticket.MakeTicket("show1", testStart, durationSeconds, seatLabel, nil, "k")
}

func TestAdmitSuccess(t *testing.T) {
	a, scheduler, _ := newTestAuthenticator(0)
	conn := &fakeConn{id: "a"}

	outcome := a.Admit(conn, mint("5", 3600), allPresent{})
	assert.True(t, outcome.Admitted)
	assert.Equal(t, "5", outcome.Seat)
	assert.Equal(t, msg.CodeSuccess, outcome.Code)
	assert.Nil(t, outcome.Eviction)

	assert.True(t, conn.authenticated)
	require.NotNil(t, conn.authTicket, "verified ticket attached as auth context")
	assert.Equal(t, "5", conn.authTicket.Seat)

	// Expiry monitor armed for the window remainder.
	require.Len(t, scheduler.tasks, 1)
	assert.Equal(t, 1800*time.Second, scheduler.tasks[0].delay)
}

func TestAdmitUnparseableTicket(t *testing.T) {
	a, _, _ := newTestAuthenticator(0)
	conn := &fakeConn{id: "a"}

	outcome := a.Admit(conn, "not a ticket", allPresent{})
	assert.False(t, outcome.Admitted)
	assert.Equal(t, msg.CodeInvalid, outcome.Code)
	assert.Equal(t, "Could not parse ticket", outcome.Message)
	assert.False(t, conn.authenticated)
}

func TestAdmitInvalidCredentials(t *testing.T) {
	a, _, _ := newTestAuthenticator(0)

	cases := map[string]string{
		"wrong key":   ticket.MakeTicket("show1", testStart, 3600, "5", nil, "other"),
		"wrong event": ticket.MakeTicket("show2", testStart, 3600, "5", nil, "k"),
		"finished":    ticket.MakeTicket("show1", testStart, 600, "5", nil, "k"),
		"unsigned":    ticket.MakeTicket("show1", testStart, 3600, "5", nil, ""),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			outcome := a.Admit(&fakeConn{id: "a"}, raw, allPresent{})
			assert.False(t, outcome.Admitted)
			assert.Equal(t, msg.CodeInvalid, outcome.Code)
			// One generic message regardless of which check failed.
			assert.Equal(t, "Invalid Credentials", outcome.Message)
		})
	}
}

func TestAdmitTakeover(t *testing.T) {
	a, _, _ := newTestAuthenticator(0)
	holder := &fakeConn{id: "a"}
	require.True(t, a.Admit(holder, mint("5", 3600), allPresent{}).Admitted)

	claimant := &fakeConn{id: "b"}
	outcome := a.Admit(claimant, mint("5", 3000), allPresent{})
	assert.True(t, outcome.Admitted)
	require.NotNil(t, outcome.Eviction)
	assert.Equal(t, seat.Conn(holder), outcome.Eviction.Conn)
	assert.Equal(t, msg.CodeSeatTaken, outcome.Eviction.Code)
	assert.Contains(t, outcome.Eviction.Message, "seat 5")
}

func TestAdmitPrecedenceRejection(t *testing.T) {
	a, _, _ := newTestAuthenticator(0)
	holder := &fakeConn{id: "a"}
	require.True(t, a.Admit(holder, mint("5", 3000), allPresent{}).Admitted)

	outcome := a.Admit(&fakeConn{id: "b"}, mint("5", 3600), allPresent{})
	assert.False(t, outcome.Admitted)
	assert.Equal(t, msg.CodeInvalid, outcome.Code)
	assert.Equal(t, seat.ReasonSeatInUse, outcome.Message)
	assert.True(t, holder.authenticated, "holder keeps the seat")
}

func TestAdmitWildcard(t *testing.T) {
	a, _, _ := newTestAuthenticator(0)

	outcome := a.Admit(&fakeConn{id: "a"}, mint(ticket.Wildcard, 3600), allPresent{})
	assert.True(t, outcome.Admitted)
	assert.Equal(t, "*1", outcome.Seat)
}

func TestAdmitWildcardNoSpace(t *testing.T) {
	a, _, _ := newTestAuthenticator(0)
	require.True(t, a.Admit(&fakeConn{id: "a"}, mint(ticket.Wildcard, 2000), allPresent{}).Admitted)
	require.True(t, a.Admit(&fakeConn{id: "b"}, mint(ticket.Wildcard, 3000), allPresent{}).Admitted)

	// Longer than everybody already seated: nothing can be shed.
	outcome := a.Admit(&fakeConn{id: "c"}, mint(ticket.Wildcard, 4000), allPresent{})
	assert.False(t, outcome.Admitted)
	assert.Equal(t, seat.ReasonNoSpace, outcome.Message)

	// Shorter than the longest holder: the long session is shed.
	shorter := &fakeConn{id: "d"}
	outcome = a.Admit(shorter, mint(ticket.Wildcard, 1900), allPresent{})
	assert.True(t, outcome.Admitted)
	require.NotNil(t, outcome.Eviction)
	assert.Equal(t, "b", outcome.Eviction.Conn.ID())
}

func TestExpiryDisconnectsHolder(t *testing.T) {
	a, scheduler, registry := newTestAuthenticator(0)
	conn := &fakeConn{id: "a"}
	require.True(t, a.Admit(conn, mint("5", 3600), allPresent{}).Admitted)

	scheduler.fire(0)
	assert.True(t, conn.disconnected)
	assert.False(t, conn.authenticated)
	assert.Nil(t, registry.Holder("5"))
}

func TestExpiryRace(t *testing.T) {
	// Arm a monitor for X, reassign the seat to Y before it fires:
	// the stale monitor must leave Y alone.
	a, scheduler, registry := newTestAuthenticator(0)
	x := &fakeConn{id: "x"}
	require.True(t, a.Admit(x, mint("5", 3600), allPresent{}).Admitted)

	y := &fakeConn{id: "y"}
	require.True(t, a.Admit(y, mint("5", 3000), allPresent{}).Admitted)

	// Stale monitor for x fires.
	scheduler.fire(0)
	assert.False(t, y.disconnected)
	assert.True(t, y.authenticated)
	require.NotNil(t, registry.Holder("5"))
	assert.Equal(t, seat.Conn(y), registry.Holder("5").Conn)

	// y's own monitor still works.
	scheduler.fire(1)
	assert.True(t, y.disconnected)
	assert.Nil(t, registry.Holder("5"))
}

func TestExpiryDelayClampedAtWindowEnd(t *testing.T) {
	a, scheduler, _ := newTestAuthenticator(0)
	// The clock sits exactly at the end of the window: still current
	// (inclusive), but the monitor must fire immediately, not at a
	// negative delay.
	a.SetClock(func() time.Time { return testStart.Add(1800 * time.Second) })

	outcome := a.Admit(&fakeConn{id: "a"}, mint("5", 1800), allPresent{})
	require.True(t, outcome.Admitted)
	require.Len(t, scheduler.tasks, 1)
	assert.Equal(t, time.Duration(0), scheduler.tasks[0].delay)
}

func TestAuthTimeout(t *testing.T) {
	t.Run("unauthenticated connection is dropped", func(t *testing.T) {
		a, scheduler, _ := newTestAuthenticator(30 * time.Second)
		conn := &fakeConn{id: "a"}
		a.OnConnect(conn)

		require.Len(t, scheduler.tasks, 1)
		assert.Equal(t, 30*time.Second, scheduler.tasks[0].delay)

		scheduler.fire(0)
		assert.True(t, conn.disconnected)
	})

	t.Run("admitted connection is left alone", func(t *testing.T) {
		a, scheduler, _ := newTestAuthenticator(30 * time.Second)
		conn := &fakeConn{id: "a"}
		a.OnConnect(conn)
		require.True(t, a.Admit(conn, mint("5", 3600), allPresent{}).Admitted)

		scheduler.fire(0)
		assert.False(t, conn.disconnected)
	})

	t.Run("zero timeout disables the deadline", func(t *testing.T) {
		a, scheduler, _ := newTestAuthenticator(0)
		a.OnConnect(&fakeConn{id: "a"})
		assert.Empty(t, scheduler.tasks)
	})
}

func TestAdmitReconcilesStaleSeatsFirst(t *testing.T) {
	a, _, registry := newTestAuthenticator(0)
	ghost := &fakeConn{id: "ghost"}
	require.True(t, a.Admit(ghost, mint("5", 3600), allPresent{}).Admitted)
	require.NotNil(t, registry.Holder("5"))

	// The ghost dropped off the transport; its cached assignment must
	// not survive the next admission, so the new claim gets a fresh
	// seat rather than a takeover.
	ghost.SetAuthenticated(false)

	conn := &fakeConn{id: "b"}
	outcome := a.Admit(conn, mint("5", 3600), allPresent{})
	assert.True(t, outcome.Admitted)
	assert.Nil(t, outcome.Eviction)
	assert.Equal(t, seat.Conn(conn), registry.Holder("5").Conn)
}

func TestShedWildcards(t *testing.T) {
	a, _, registry := newTestAuthenticator(0)
	short := &fakeConn{id: "a"}
	long := &fakeConn{id: "b"}
	require.True(t, a.Admit(short, mint(ticket.Wildcard, 2000), allPresent{}).Admitted)
	require.True(t, a.Admit(long, mint(ticket.Wildcard, 3000), allPresent{}).Admitted)

	evicted, achieved := a.ShedWildcards(1)
	assert.Equal(t, 1, evicted)
	assert.True(t, achieved)

	// Long end goes first.
	assert.True(t, long.disconnected)
	assert.False(t, long.authenticated)
	assert.False(t, short.disconnected)
	assert.Equal(t, 1, registry.WildcardCount())

	evicted, achieved = a.ShedWildcards(5)
	assert.Equal(t, 1, evicted)
	assert.False(t, achieved)
	assert.True(t, short.disconnected)
}

func TestOccupancy(t *testing.T) {
	a, _, _ := newTestAuthenticator(0)
	require.True(t, a.Admit(&fakeConn{id: "a"}, mint("5", 3600), allPresent{}).Admitted)
	require.True(t, a.Admit(&fakeConn{id: "b"}, mint(ticket.Wildcard, 3600), allPresent{}).Admitted)

	numbered, wildcard := a.Occupancy()
	assert.Equal(t, 1, numbered)
	assert.Equal(t, 1, wildcard)
}
