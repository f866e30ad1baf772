package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/quarryforge/quarry/internal/tracker/domain/event"
	"github.com/quarryforge/quarry/internal/tracker/domain/workitem"
	"github.com/quarryforge/quarry/internal/tracker/storage"
)

var testBase = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

// memoryEventStore is an in-memory EventStore assigning sequence numbers on
// append, mirroring the sqlite store's contract.
type memoryEventStore struct {
	events map[string][]event.Event
}

func newMemoryEventStore() *memoryEventStore {
	return &memoryEventStore{events: make(map[string][]event.Event)}
}

func (m *memoryEventStore) AppendEvents(_ context.Context, workItemID string, events []event.Event) ([]event.Event, error) {
	appended := make([]event.Event, len(events))
	for i, evt := range events {
		seq := uint64(len(m.events[workItemID]) + 1)
		evt.WorkItemID = workItemID
		evt.Seq = seq
		evt.ID = fmt.Sprintf("evt-%d", seq)
		if evt.Timestamp.IsZero() {
			evt.Timestamp = testBase.Add(time.Duration(seq) * time.Second)
		}
		m.events[workItemID] = append(m.events[workItemID], evt)
		appended[i] = evt
	}
	return appended, nil
}

func (m *memoryEventStore) ListEvents(_ context.Context, workItemID string, afterSeq uint64, limit int) ([]event.Event, error) {
	var out []event.Event
	for _, evt := range m.events[workItemID] {
		if evt.Seq <= afterSeq {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memoryEventStore) LatestSeq(_ context.Context, workItemID string) (uint64, error) {
	return uint64(len(m.events[workItemID])), nil
}

var _ storage.EventStore = (*memoryEventStore)(nil)

func payload(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func seedIssue(t *testing.T, store *memoryEventStore, workItemID string) {
	t.Helper()
	_, err := store.AppendEvents(context.Background(), workItemID, []event.Event{{
		Type:      event.TypeIssueCreated,
		ActorType: event.ActorTypeUser,
		ActorID:   "alice",
		PayloadJSON: payload(t, event.IssueCreatedPayload{
			Title: "Bug", RepositoryID: "repo-1", LocalID: 7,
		}),
	}})
	if err != nil {
		t.Fatalf("seed issue: %v", err)
	}
}

func TestReplayPagesThroughHistory(t *testing.T) {
	store := newMemoryEventStore()
	ctx := context.Background()
	seedIssue(t, store, "wi-1")

	// Enough label churn to need three pages.
	total := replayPageSize*2 + 50
	for i := 0; i < total; i++ {
		eventType := event.TypeLabelAssigned
		if i%2 == 1 {
			eventType = event.TypeLabelUnassigned
		}
		if _, err := store.AppendEvents(ctx, "wi-1", []event.Event{{
			Type:        eventType,
			ActorType:   event.ActorTypeUser,
			ActorID:     "alice",
			PayloadJSON: payload(t, event.LabelPayload{LabelID: fmt.Sprintf("L%d", i/2)}),
		}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var visited int
	var prevSeq uint64
	lastSeq, err := Replay(ctx, store, "wi-1", ReplayOptions{}, func(evt event.Event) error {
		if evt.Seq <= prevSeq {
			t.Fatalf("replay out of order: seq %d after %d", evt.Seq, prevSeq)
		}
		prevSeq = evt.Seq
		visited++
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if visited != total+1 {
		t.Fatalf("visited %d events, want %d", visited, total+1)
	}
	if lastSeq != uint64(total+1) {
		t.Fatalf("lastSeq = %d, want %d", lastSeq, total+1)
	}
}

func TestReplayWindowAndFilter(t *testing.T) {
	store := newMemoryEventStore()
	ctx := context.Background()
	seedIssue(t, store, "wi-1")
	for _, labelID := range []string{"L1", "L2", "L3"} {
		if _, err := store.AppendEvents(ctx, "wi-1", []event.Event{{
			Type:        event.TypeLabelAssigned,
			ActorType:   event.ActorTypeUser,
			ActorID:     "alice",
			PayloadJSON: payload(t, event.LabelPayload{LabelID: labelID}),
		}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var seqs []uint64
	lastSeq, err := Replay(ctx, store, "wi-1", ReplayOptions{AfterSeq: 1, UntilSeq: 3}, func(evt event.Event) error {
		seqs = append(seqs, evt.Seq)
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 2 || seqs[1] != 3 {
		t.Fatalf("unexpected window: %v", seqs)
	}
	if lastSeq != 3 {
		t.Fatalf("lastSeq = %d, want 3", lastSeq)
	}

	var labelEvents int
	if _, err := Replay(ctx, store, "wi-1", ReplayOptions{
		Filter: func(evt event.Event) bool { return evt.Type.Domain() == "label" },
	}, func(event.Event) error {
		labelEvents++
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if labelEvents != 3 {
		t.Fatalf("filtered %d label events, want 3", labelEvents)
	}
}

func TestReplayRequiresStoreAndID(t *testing.T) {
	if _, err := Replay(context.Background(), nil, "wi-1", ReplayOptions{}, nil); err == nil {
		t.Fatal("expected error without a store")
	}
	if _, err := Replay(context.Background(), newMemoryEventStore(), "", ReplayOptions{}, nil); err == nil {
		t.Fatal("expected error without a work item id")
	}
}

func TestLoadFoldsHistory(t *testing.T) {
	store := newMemoryEventStore()
	ctx := context.Background()
	seedIssue(t, store, "wi-1")
	if _, err := store.AppendEvents(ctx, "wi-1", []event.Event{{
		Type:        event.TypeIssueClosed,
		ActorType:   event.ActorTypeUser,
		ActorID:     "alice",
		PayloadJSON: payload(t, event.IssueClosedPayload{Reason: "fixed"}),
	}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	state, lastSeq, err := Load(ctx, store, "wi-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Lifecycle != workitem.LifecycleClosed {
		t.Fatalf("expected closed, got %q", state.Lifecycle)
	}
	if lastSeq != 2 {
		t.Fatalf("lastSeq = %d, want 2", lastSeq)
	}

	empty, lastSeq, err := Load(ctx, store, "wi-missing")
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if empty.Created || lastSeq != 0 {
		t.Fatalf("expected zero state for missing item, got %+v seq=%d", empty, lastSeq)
	}
}
