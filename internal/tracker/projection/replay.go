// Package projection derives read state from the event log: pure folds for
// request-time projections and a side-effecting applier that maintains
// query-friendly work-item rows.
package projection

import (
	"context"
	"fmt"

	"github.com/quarryforge/quarry/internal/tracker/domain/event"
	"github.com/quarryforge/quarry/internal/tracker/domain/workitem"
	"github.com/quarryforge/quarry/internal/tracker/storage"
)

const replayPageSize = 200

// ReplayOptions configures event replay behavior.
type ReplayOptions struct {
	AfterSeq uint64
	UntilSeq uint64
	Filter   func(event.Event) bool
}

// Replay pages through a work item's events in canonical order and hands
// each to apply. It returns the last sequence number visited.
func Replay(ctx context.Context, eventStore storage.EventStore, workItemID string, options ReplayOptions, apply func(event.Event) error) (uint64, error) {
	if eventStore == nil {
		return 0, fmt.Errorf("event store is not configured")
	}
	if workItemID == "" {
		return 0, fmt.Errorf("work item id is required")
	}

	lastSeq := options.AfterSeq
	for {
		events, err := eventStore.ListEvents(ctx, workItemID, lastSeq, replayPageSize)
		if err != nil {
			return lastSeq, err
		}
		if len(events) == 0 {
			return lastSeq, nil
		}
		for _, evt := range events {
			if options.UntilSeq > 0 && evt.Seq > options.UntilSeq {
				return lastSeq, nil
			}
			lastSeq = evt.Seq
			if options.Filter != nil && !options.Filter(evt) {
				continue
			}
			if err := apply(evt); err != nil {
				return lastSeq, err
			}
		}
	}
}

// Load folds a work item's full history into state and reports the last
// sequence number, so callers get both the projection and its watermark.
func Load(ctx context.Context, eventStore storage.EventStore, workItemID string) (workitem.State, uint64, error) {
	var state workitem.State
	lastSeq, err := Replay(ctx, eventStore, workItemID, ReplayOptions{}, func(evt event.Event) error {
		state = workitem.Fold(state, evt)
		return nil
	})
	if err != nil {
		return workitem.State{}, lastSeq, err
	}
	return state, lastSeq, nil
}
