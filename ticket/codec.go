package ticket

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FormatError reports a ticket string that does not match the expected
// grammar, carrying the offending fragment. It is surfaced to the
// caller and never retried.
type FormatError struct {
	Fragment string
	Reason   string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %q", e.Reason, e.Fragment)
}

var (
	// Scheme and version first; version dispatch happens before the
	// rest of the grammar so an unsupported version fails distinctly
	// from a structural mismatch.
	prefixPattern = regexp.MustCompile(`^` + Scheme + `:([^:]+):(.*)$`)

	// eventName, startTime, duration, seat, check, optional
	// (scheme-prefixed) server URL. The check segment may be empty so
	// an intentionally unsigned ticket still round-trips.
	v1Pattern = regexp.MustCompile(`^([^:]+):([^:]+):([^:]+):([^:]+):([^:]*)(:([^:/]*:))?(.*)$`)
)

// Parse decodes a ticket string. Any deviation from the grammar, a bad
// date, a non-numeric duration or an unsupported version returns a
// *FormatError.
func Parse(s string) (*Ticket, error) {
	m := prefixPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, &FormatError{Fragment: s, Reason: fmt.Sprintf("not a valid %s", Scheme)}
	}

	version, err := unescapeField(m[1])
	if err != nil {
		return nil, &FormatError{Fragment: m[1], Reason: "bad version encoding"}
	}

	switch version {
	case "1":
		return parseVersion1(m[2])
	default:
		return nil, &FormatError{
			Fragment: version,
			Reason:   fmt.Sprintf("unsupported ticket version (currently %s)", CurrentVersion),
		}
	}
}

func parseVersion1(rest string) (*Ticket, error) {
	m := v1Pattern.FindStringSubmatch(rest)
	if m == nil {
		return nil, &FormatError{Fragment: rest, Reason: fmt.Sprintf("not a valid %s v%s", Scheme, CurrentVersion)}
	}

	t := &Ticket{Version: CurrentVersion}

	var err error
	if t.EventName, err = unescapeField(m[1]); err != nil {
		return nil, &FormatError{Fragment: m[1], Reason: "bad event name encoding"}
	}

	if t.StartTime, err = time.Parse(DateFormat, m[2]); err != nil {
		return nil, &FormatError{Fragment: m[2], Reason: "bad start time"}
	}
	t.StartTime = t.StartTime.UTC()

	if t.DurationSeconds, err = strconv.ParseFloat(m[3], 64); err != nil {
		return nil, &FormatError{Fragment: m[3], Reason: "bad duration"}
	}

	if t.Seat, err = unescapeField(m[4]); err != nil {
		return nil, &FormatError{Fragment: m[4], Reason: "bad seat encoding"}
	}

	if t.Check, err = unescapeField(m[5]); err != nil {
		return nil, &FormatError{Fragment: m[5], Reason: "bad check encoding"}
	}

	// Optional trailing URL, reconstituted with the default scheme
	// when no explicit one was embedded. In that case the grammar's
	// scheme group cannot match, so the separator colon lands at the
	// front of the trailing group and has to be stripped here.
	scheme := m[7]
	rawURL := m[8]
	if scheme == "" {
		scheme = DefaultServerURLScheme
		rawURL = strings.TrimPrefix(rawURL, ":")
	}
	if rawURL != "" {
		u, err := url.Parse(scheme + rawURL)
		if err != nil {
			return nil, &FormatError{Fragment: rawURL, Reason: "bad server url"}
		}
		t.ServerURL = u
	}

	return t, nil
}

// String encodes the ticket to its wire form. The optional server URL
// segment drops the default scheme and is omitted entirely when
// absent.
func (t *Ticket) String() string {
	basic := fmt.Sprintf("%s:%s:%s:%s:%s:%s:%s",
		Scheme,
		escapeField(t.Version),
		escapeField(t.EventName),
		t.StartTime.UTC().Format(DateFormat),
		formatSeconds(t.DurationSeconds),
		escapeField(t.Seat),
		escapeField(t.Check))

	if t.ServerURL == nil {
		return basic
	}
	u := t.ServerURL.String()
	u = strings.TrimPrefix(u, DefaultServerURLScheme)
	return basic + ":" + u
}

// escapeField percent-encodes a field so it can never contain a bare
// delimiter. Space becomes %20 rather than '+' so the encoded form is
// safe inside the colon-delimited grammar and in URLs alike.
func escapeField(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func unescapeField(s string) (string, error) {
	return url.PathUnescape(s)
}
