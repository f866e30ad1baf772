// Package command defines the command envelope and decision contract used
// across the write path.
//
// Commands express intent from API callers and tooling. Deciders evaluate
// them against folded work-item state and return a Decision: either the
// events to append or the rejections explaining why nothing may change.
package command

import (
	"time"

	"github.com/quarryforge/quarry/internal/tracker/domain/event"
)

// Type identifies the type of a work-item command.
type Type string

// Command is a requested mutation against one work item.
type Command struct {
	// Type identifies the command.
	Type Type
	// WorkItemID addresses the aggregate the command targets.
	WorkItemID string
	// ActorType identifies who issued the command.
	ActorType event.ActorType
	// ActorID is the issuing user's ID when ActorType is user.
	ActorID string
	// PayloadJSON holds command-specific parameters as JSON.
	PayloadJSON []byte
}

// NewEvent builds an event.Event by copying the shared envelope fields from a
// command. Callers supply the event-specific type, entity addressing, payload,
// and timestamp so deciders never hand-assemble envelopes.
func NewEvent(cmd Command, eventType event.Type, entityType, entityID string, payloadJSON []byte, now time.Time) event.Event {
	return event.Event{
		WorkItemID:  cmd.WorkItemID,
		Type:        eventType,
		Timestamp:   now,
		ActorType:   cmd.ActorType,
		ActorID:     cmd.ActorID,
		EntityType:  entityType,
		EntityID:    entityID,
		PayloadJSON: payloadJSON,
	}
}
