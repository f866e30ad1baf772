package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/quarryforge/quarry/internal/tracker/domain/workitem"
	"github.com/quarryforge/quarry/internal/tracker/storage"
)

// Applier writes work-item read models derived from folded state.
//
// The applier is the side-effecting sibling of the pure fold: deciders emit
// events, the fold derives state, and the applier flattens that state into
// rows the listing API can query without replaying history.
type Applier struct {
	// WorkItems receives the derived rows.
	WorkItems storage.WorkItemStore
	clock     func() time.Time
}

// NewApplier creates an applier writing to the given store.
func NewApplier(workItems storage.WorkItemStore) *Applier {
	return &Applier{WorkItems: workItems, clock: time.Now}
}

// WithClock overrides the row-update timestamp source. Intended for tests.
func (a *Applier) WithClock(clock func() time.Time) *Applier {
	a.clock = clock
	return a
}

// ApplyState upserts the read-model row for one work item from its folded
// state and event watermark.
func (a *Applier) ApplyState(ctx context.Context, workItemID string, state workitem.State, lastSeq uint64) error {
	if a == nil || a.WorkItems == nil {
		return fmt.Errorf("work item store is not configured")
	}
	if !state.Created {
		return fmt.Errorf("work item %s has no created event", workItemID)
	}

	visible := 0
	for _, comment := range state.Comments {
		if comment.State != workitem.CommentDeleted {
			visible++
		}
	}

	now := a.clock().UTC()
	record := storage.WorkItemRecord{
		ID:           workItemID,
		RepositoryID: state.RepositoryID,
		LocalID:      state.LocalID,
		Kind:         state.Kind,
		Title:        state.Title,
		Lifecycle:    state.Lifecycle,
		Review:       state.Review,
		CommentCount: visible,
		LabelCount:   len(state.Labels),
		LastSeq:      lastSeq,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing, err := a.WorkItems.Get(ctx, workItemID); err == nil {
		record.CreatedAt = existing.CreatedAt
	}
	return a.WorkItems.Put(ctx, record)
}

// Rebuild replays a work item's history and re-derives its read model from
// scratch. Used after imports and for repair.
func (a *Applier) Rebuild(ctx context.Context, eventStore storage.EventStore, workItemID string) error {
	state, lastSeq, err := Load(ctx, eventStore, workItemID)
	if err != nil {
		return err
	}
	if !state.Created {
		return fmt.Errorf("work item %s has no events", workItemID)
	}
	return a.ApplyState(ctx, workItemID, state, lastSeq)
}
