package client

import "net/url"

// TicketParam is the query parameter browser-hosted clients receive
// their ticket through.
const TicketParam = "ticket"

// TicketFromURL extracts the ticket string from a page URL at startup.
// Returns "" when the parameter is absent.
func TicketFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Query().Get(TicketParam), nil
}
