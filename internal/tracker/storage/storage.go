// Package storage defines the persistence interfaces the tracker core
// depends on. The event store is the single serialization point for a work
// item's history; read-model stores hold derived listing rows.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/quarryforge/quarry/internal/tracker/domain/event"
	"github.com/quarryforge/quarry/internal/tracker/domain/workitem"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// EventStore persists the append-only event log per work item.
type EventStore interface {
	// AppendEvents atomically appends a command's events as one contiguous
	// group and returns them with store-assigned id, sequence, and
	// normalized timestamp. Either every event in the group is appended in
	// submission order or none is.
	AppendEvents(ctx context.Context, workItemID string, events []event.Event) ([]event.Event, error)
	// ListEvents returns events with Seq > afterSeq ordered by sequence
	// ascending, at most limit at a time. A limit of 0 means no bound.
	ListEvents(ctx context.Context, workItemID string, afterSeq uint64, limit int) ([]event.Event, error)
	// LatestSeq returns the latest event sequence number for a work item,
	// or 0 when no events exist.
	LatestSeq(ctx context.Context, workItemID string) (uint64, error)
}

// WorkItemRecord is the derived listing row maintained by the projection
// applier. It duplicates folded facts for query ergonomics and is never
// authoritative.
type WorkItemRecord struct {
	ID           string
	RepositoryID string
	LocalID      int64
	Kind         workitem.Kind
	Title        string
	Lifecycle    workitem.Lifecycle
	Review       workitem.ReviewStatus
	CommentCount int
	LabelCount   int
	LastSeq      uint64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WorkItemStore persists work-item read models.
type WorkItemStore interface {
	Put(ctx context.Context, record WorkItemRecord) error
	Get(ctx context.Context, id string) (WorkItemRecord, error)
	// List returns records for a repository ordered by LocalID ascending.
	// An empty repositoryID lists every record.
	List(ctx context.Context, repositoryID string, limit int) ([]WorkItemRecord, error)
}
