package client

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgreenhalgh/timed-ticket-server/ticket"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func mint(eventName string, start time.Time, durationSeconds float64) string {
	return ticket.MakeTicket(eventName, start, durationSeconds, "5", nil, "k")
}

func TestPrecheck(t *testing.T) {
	now := testStart.Add(1800 * time.Second)

	cases := []struct {
		name      string
		rawTicket string
		status    Status
	}{
		{"ok", mint("show1", testStart, 3600), StatusOK},
		{"no ticket", "", StatusNoTicket},
		{"bad format", "x-ticket:nope", StatusBadFormat},
		{"wrong scheme", "hello world", StatusBadFormat},
		{"wrong event", mint("show2", testStart, 3600), StatusWrongEvent},
		{"not started", mint("show1", testStart.Add(time.Hour), 3600), StatusNotStarted},
		{"finished", mint("show1", testStart, 600), StatusFinished},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, parsed := Precheck(tc.rawTicket, "show1", now)
			assert.Equal(t, tc.status, status)
			if tc.status == StatusOK {
				require.NotNil(t, parsed)
				assert.Equal(t, "5", parsed.Seat)
			}
		})
	}
}

func TestPrecheckIgnoresSignature(t *testing.T) {
	// The precheck is purely local; an unsigned or badly-signed
	// ticket still passes so the server gets to make the real call.
	unsigned := ticket.MakeTicket("show1", testStart, 3600, "5", nil, "")
	status, _ := Precheck(unsigned, "show1", testStart.Add(time.Minute))
	assert.Equal(t, StatusOK, status)
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "no ticket", StatusNoTicket.String())
	assert.Equal(t, "event finished", StatusFinished.String())
}

func TestTicketFromURL(t *testing.T) {
	raw := mint("show1", testStart, 3600)

	t.Run("present", func(t *testing.T) {
		u := "https://example.com/play?ticket=" + url.QueryEscape(raw)
		got, err := TicketFromURL(u)
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	})

	t.Run("absent", func(t *testing.T) {
		got, err := TicketFromURL("https://example.com/play")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("other params", func(t *testing.T) {
		got, err := TicketFromURL("https://example.com/play?lang=en&ticket=abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", got)
	})
}
