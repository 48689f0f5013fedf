package wire

import "fmt"

// Result codes carried in the first slot of a failure envelope.
const (
	// CodeGeneric is the catch-all code for errors the calling side
	// raised without a structured code of their own.
	CodeGeneric = "error"

	// CodeUnavailable is a historical quirk: some hosts report a missing
	// capability as this code instead of returning a failure envelope.
	CodeUnavailable = "not-available"
)

// ConnectionError reports a transport-level failure on a channel: no
// handler registered, the link dropped, or a malformed envelope that
// indicates the two sides disagree about the contract. It is distinct
// from RemoteError, which carries a failure the other side chose to send.
type ConnectionError struct {
	Channel string
	Reason  string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("wire: channel %s: %s", e.Channel, e.Reason)
}

// RemoteError carries a structured failure raised by the other side of
// the barrier and decoded from a failure envelope.
type RemoteError struct {
	Code    string
	Message string
	Details any
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("wire: remote error %s", e.Code)
	}
	return fmt.Sprintf("wire: remote error %s: %s", e.Code, e.Message)
}

// protocolViolation builds the connection-class error used when a reply
// or argument list does not match the envelope convention. Shape
// mismatches mean the two sides were generated from different contracts,
// so they are never surfaced as remote application failures.
func protocolViolation(channel, format string, args ...any) *ConnectionError {
	return &ConnectionError{
		Channel: channel,
		Reason:  "protocol violation: " + fmt.Sprintf(format, args...),
	}
}
