package broker

import "errors"

var (
	ErrSessionNotFound = errors.New("broker: session not found")
	ErrBrokerStopped   = errors.New("broker: stopped")
)

// Wire-visible error reasons, sent verbatim in an error frame's message
// field. These intentionally match spec text so clients can match on them.
const (
	reasonSessionNotFound = "Session not found"
	reasonUnknownType     = "Unknown message type"
)
