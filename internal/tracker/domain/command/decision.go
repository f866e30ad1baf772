package command

import (
	"errors"

	"github.com/quarryforge/quarry/internal/tracker/domain/event"
)

// Rejection codes shared across deciders.
const (
	// RejectionCodePayloadDecodeFailed indicates a command payload that could
	// not be decoded.
	RejectionCodePayloadDecodeFailed = "COMMAND_PAYLOAD_DECODE_FAILED"
	// RejectionCodeCommandTypeUnsupported indicates a command type no decider
	// handles.
	RejectionCodeCommandTypeUnsupported = "COMMAND_TYPE_UNSUPPORTED"
)

// Decision represents the pure outcome of handling a command.
type Decision struct {
	Events     []event.Event
	Rejections []Rejection
}

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code    string
	Message string
}

// Accept returns a decision that emits the provided events.
func Accept(events ...event.Event) Decision {
	return Decision{Events: append([]event.Event(nil), events...)}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// Rejected reports whether the decision declined the command.
func (d Decision) Rejected() bool {
	return len(d.Rejections) > 0
}

// Validate reports whether the decision carries events or rejections but not
// neither: an empty decision means a decider fell through without deciding.
func (d Decision) Validate() error {
	if len(d.Events) == 0 && len(d.Rejections) == 0 {
		return errors.New("decision must carry events or rejections")
	}
	return nil
}
