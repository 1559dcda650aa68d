// Package ticket implements the signed, string-encoded timed ticket: a
// self-contained grant of one seat at one event for a bounded time window.
package ticket

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	// Scheme is the ticket scheme name (unofficial).
	Scheme = "x-ticket"

	// CurrentVersion is the only format version minted and accepted.
	CurrentVersion = "1"

	// Wildcard is the seat value that requests a server-assigned
	// overflow seat instead of a specific one.
	Wildcard = "*"

	// DefaultServerURLScheme is prepended to an embedded server URL
	// that carries no explicit scheme of its own.
	DefaultServerURLScheme = "https:"

	// DateFormat is the layout for startTime on the wire. Always
	// rendered in UTC, so the zone field comes out as a literal "Z".
	DateFormat = "20060102T150405Z0700"
)

// Ticket is the parsed, typed form of a ticket string. It is built once
// by an issuer (MakeTicket) or by Parse, and read-only after that apart
// from the check/valid fields set at signing time.
type Ticket struct {
	Version   string
	EventName string

	// StartTime is the UTC instant the grant window opens.
	StartTime time.Time

	// DurationSeconds is the length of the grant window. A decimal
	// number on the wire; an earlier format revision used minutes,
	// which this revision deliberately does not accept.
	DurationSeconds float64

	// Seat is a specific seat label, or Wildcard.
	Seat string

	// Check is the keyed integrity value. Empty only for an
	// intentionally unsigned ticket, which can never verify.
	Check string

	// ServerURL is an optional hint embedded in the ticket,
	// informational only.
	ServerURL *url.URL

	// Valid caches the most recent signature-check result. It is not
	// part of the ticket's identity and must not be trusted without
	// re-verification when the key may have changed.
	Valid bool
}

// Duration returns the grant window length as a time.Duration.
func (t *Ticket) Duration() time.Duration {
	return time.Duration(t.DurationSeconds * float64(time.Second))
}

// IsWildcard reports whether this ticket requests an overflow seat
// rather than a specific one.
func (t *Ticket) IsWildcard() bool {
	return t.Seat == Wildcard
}

// Current reports whether now falls inside the grant window, inclusive
// at both ends.
func (t *Ticket) Current(now time.Time) bool {
	elapsed := now.Sub(t.StartTime).Seconds()
	return elapsed >= 0 && elapsed <= t.DurationSeconds
}

// Finished reports whether the grant window has ended.
func (t *Ticket) Finished(now time.Time) bool {
	return now.Sub(t.StartTime).Seconds() >= t.DurationSeconds
}

// SecondsUntilStart returns the seconds remaining until the grant
// window opens, or 0 if it already has.
func (t *Ticket) SecondsUntilStart(now time.Time) float64 {
	if remain := t.StartTime.Sub(now).Seconds(); remain > 0 {
		return remain
	}
	return 0
}

// ClientCurrentAndValid is the client-side precheck: event name match
// plus time window. It deliberately skips the signature so an untrusted
// client holding only the ticket string can rule out obviously-dead
// tickets without a round trip.
func (t *Ticket) ClientCurrentAndValid(eventName string, now time.Time) bool {
	if t.EventName != eventName {
		return false
	}
	return t.Current(now)
}

// ServerCurrentAndValid is the authoritative server-side predicate:
// event name match, time window, and signature.
func (t *Ticket) ServerCurrentAndValid(eventName string, now time.Time, key string) bool {
	if t.EventName != eventName {
		return false
	}
	if !t.Current(now) {
		return false
	}
	return t.CheckValid(key)
}

// checkValue computes the keyed integrity value: HMAC-MD5 over the
// canonical encoded form (check forced empty, URL excluded), base64
// without trailing padding. Both sign and verify go through here, so
// the padding convention only has to be fixed in one place.
func (t *Ticket) checkValue(key string) string {
	canonical := fmt.Sprintf("%s:%s:%s:%s:%s:%s:",
		Scheme,
		escapeField(t.Version),
		escapeField(t.EventName),
		t.StartTime.UTC().Format(DateFormat),
		formatSeconds(t.DurationSeconds),
		escapeField(t.Seat))

	mac := hmac.New(md5.New, []byte(key))
	mac.Write([]byte(canonical))
	return base64.RawStdEncoding.EncodeToString(mac.Sum(nil))
}

// Sign sets the check value using key. An empty key produces an
// intentionally unsigned ticket (empty check, never valid).
func (t *Ticket) Sign(key string) {
	if key == "" {
		t.Check = ""
		t.Valid = false
		return
	}
	t.Check = t.checkValue(key)
	t.Valid = true
}

// CheckValid verifies the check value against key, updating the Valid
// cache. An empty key can never validate.
func (t *Ticket) CheckValid(key string) bool {
	if key == "" {
		t.Valid = false
		return false
	}
	t.Valid = hmac.Equal([]byte(t.Check), []byte(t.checkValue(key)))
	return t.Valid
}

// MakeTicket mints a signed ticket string for the given fields.
func MakeTicket(eventName string, startTime time.Time, durationSeconds float64, seatLabel string, serverURL *url.URL, key string) string {
	t := &Ticket{
		Version:         CurrentVersion,
		EventName:       eventName,
		StartTime:       startTime.UTC(),
		DurationSeconds: durationSeconds,
		Seat:            seatLabel,
		ServerURL:       serverURL,
	}
	t.Sign(key)
	return t.String()
}

// formatSeconds renders a duration for the wire: a plain decimal with
// no exponent and no trailing zeros, so integral values print as
// integers and the canonical signing string is stable.
func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}
