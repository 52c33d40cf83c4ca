package messagebus

import (
	"time"

	"github.com/google/uuid"
)

// pubsubEnvelope is the payload-frame contents of a PUB/SUB message: a
// mapping carrying at least {topic, data, ts}. ID and Seq are
// supplemental, purely observational fields: ID gives each message a
// stable identifier for log correlation the way envelope.NewEnvelope
// does for every inter-agent message, and Seq is a monotonic counter
// shared by every publish in the process, across ports. Neither is
// inspected by the bus itself.
type pubsubEnvelope struct {
	ID    string      `json:"id" msgpack:"id"`
	Topic string      `json:"topic" msgpack:"topic"`
	Data  interface{} `json:"data" msgpack:"data"`
	TS    time.Time   `json:"ts" msgpack:"ts"`
	Seq   int64       `json:"seq,omitempty" msgpack:"seq,omitempty"`
}

// pushpullEnvelope is the single-frame payload for PUSH/PULL, {data,
// ts}, with the same supplemental ID as pubsubEnvelope.
type pushpullEnvelope struct {
	ID   string      `json:"id" msgpack:"id"`
	Data interface{} `json:"data" msgpack:"data"`
	TS   time.Time   `json:"ts" msgpack:"ts"`
}

// requestEnvelope is the single-frame payload convention for a REQ
// send, {data: <user>, ts: <send time>}, with the same supplemental ID
// as pubsubEnvelope.
type requestEnvelope struct {
	ID   string      `json:"id" msgpack:"id"`
	Data interface{} `json:"data" msgpack:"data"`
	TS   time.Time   `json:"ts" msgpack:"ts"`
}

// newMessageID stamps a fresh envelope identifier, the same role
// envelope.NewEnvelope's uuid.New().String() call plays upstream.
func newMessageID() string {
	return uuid.NewString()
}

// errorReply is the error-envelope shape ResponseLoop sends when a user
// handler panics or returns an error.
type errorReply struct {
	Error string `json:"error" msgpack:"error"`
}
