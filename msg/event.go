package msg

type EventCode uint

const (
	AuthRequestCode  EventCode = 1001
	AuthResponseCode EventCode = 1002
)

// Auth response codes. A closed set: anything other than CodeSuccess
// means the client should treat itself as rejected.
const (
	// CodeSuccess: admitted.
	CodeSuccess byte = 100

	// CodeInvalid: unparseable ticket, failed verification, or no
	// space available. Deliberately generic so the response does not
	// become an oracle for which check failed.
	CodeInvalid byte = 200

	// CodeSeatTaken: sent to a seat's prior holder when an
	// equal-or-shorter-duration claim takes the seat over.
	CodeSeatTaken byte = 201
)

// AuthRequestClientEvent carries the ticket string from client to
// server.
type AuthRequestClientEvent struct {
	TicketString string `json:"ticketString"`
}

// AuthResponseServerEvent is the admission decision sent back to a
// client, or the takeover notice sent to an evicted one.
type AuthResponseServerEvent struct {
	Code    byte   `json:"code"`
	Message string `json:"message"`
}
