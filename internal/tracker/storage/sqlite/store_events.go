package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quarryforge/quarry/internal/tracker/domain/event"
)

// AppendEvents atomically appends a command's events as one contiguous group.
//
// The store is the single serialization point for a work item's history:
// sequence numbers are assigned inside the transaction, timestamps are
// normalized to the store clock, and either the whole group lands in
// submission order or none of it does. System-actor events carrying their
// own timestamp keep it, so backfilled histories retain source times.
func (s *Store) AppendEvents(ctx context.Context, workItemID string, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if workItemID == "" {
		return nil, fmt.Errorf("work item id is required")
	}
	if len(events) == 0 {
		return nil, nil
	}
	for _, evt := range events {
		if !evt.Type.IsValid() {
			return nil, fmt.Errorf("event type is required")
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq uint64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM events WHERE work_item_id = ?", workItemID,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("read latest seq: %w", err)
	}

	now := s.clock().UTC().Truncate(time.Millisecond)
	appended := make([]event.Event, 0, len(events))
	for _, evt := range events {
		seq++
		evt.WorkItemID = workItemID
		evt.Seq = seq
		if evt.ActorType == event.ActorTypeSystem && !evt.Timestamp.IsZero() {
			evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
		} else {
			evt.Timestamp = now
		}
		canonicalID, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate event id: %w", err)
		}
		evt.ID = canonicalID

		_, err = tx.ExecContext(ctx, `
INSERT INTO events (work_item_id, seq, id, timestamp, type, actor_type, actor_id, entity_type, entity_id, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			evt.WorkItemID, evt.Seq, evt.ID, toMillis(evt.Timestamp), string(evt.Type),
			string(evt.ActorType), evt.ActorID, evt.EntityType, evt.EntityID, evt.PayloadJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("insert event seq %d: %w", evt.Seq, err)
		}
		appended = append(appended, evt)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return appended, nil
}

// ListEvents returns events with Seq > afterSeq ordered by sequence ascending.
func (s *Store) ListEvents(ctx context.Context, workItemID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	query := `
SELECT work_item_id, seq, id, timestamp, type, actor_type, actor_id, entity_type, entity_id, payload
FROM events
WHERE work_item_id = ? AND seq > ?
ORDER BY seq ASC`
	args := []any{workItemID, afterSeq}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LatestSeq returns the latest event sequence number for a work item.
func (s *Store) LatestSeq(ctx context.Context, workItemID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var seq uint64
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM events WHERE work_item_id = ?", workItemID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read latest seq: %w", err)
	}
	return seq, nil
}

func scanEvent(rows *sql.Rows) (event.Event, error) {
	var (
		evt       event.Event
		timestamp int64
		eventType string
		actorType string
	)
	err := rows.Scan(
		&evt.WorkItemID, &evt.Seq, &evt.ID, &timestamp, &eventType,
		&actorType, &evt.ActorID, &evt.EntityType, &evt.EntityID, &evt.PayloadJSON,
	)
	if err != nil {
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	evt.Timestamp = fromMillis(timestamp)
	evt.Type = event.Type(eventType)
	evt.ActorType = event.ActorType(actorType)
	return evt, nil
}
