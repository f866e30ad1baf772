package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quarryforge/quarry/internal/tracker/domain/workitem"
	"github.com/quarryforge/quarry/internal/tracker/storage"
)

// Put upserts a work-item read-model row.
func (s *Store) Put(ctx context.Context, record storage.WorkItemRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if record.ID == "" {
		return fmt.Errorf("work item id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO work_items (id, repository_id, local_id, kind, title, lifecycle, review, comment_count, label_count, last_seq, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    repository_id = excluded.repository_id,
    local_id = excluded.local_id,
    kind = excluded.kind,
    title = excluded.title,
    lifecycle = excluded.lifecycle,
    review = excluded.review,
    comment_count = excluded.comment_count,
    label_count = excluded.label_count,
    last_seq = excluded.last_seq,
    updated_at = excluded.updated_at`,
		record.ID, record.RepositoryID, record.LocalID, string(record.Kind),
		record.Title, string(record.Lifecycle), string(record.Review),
		record.CommentCount, record.LabelCount, record.LastSeq,
		toMillis(record.CreatedAt), toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put work item: %w", err)
	}
	return nil
}

// Get returns one work-item read-model row.
func (s *Store) Get(ctx context.Context, itemID string) (storage.WorkItemRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.WorkItemRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.WorkItemRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, repository_id, local_id, kind, title, lifecycle, review, comment_count, label_count, last_seq, created_at, updated_at
FROM work_items
WHERE id = ?`, itemID)
	record, err := scanWorkItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.WorkItemRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.WorkItemRecord{}, fmt.Errorf("get work item: %w", err)
	}
	return record, nil
}

// List returns read-model rows for a repository ordered by local id.
func (s *Store) List(ctx context.Context, repositoryID string, limit int) ([]storage.WorkItemRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	query := `
SELECT id, repository_id, local_id, kind, title, lifecycle, review, comment_count, label_count, last_seq, created_at, updated_at
FROM work_items`
	var args []any
	if repositoryID != "" {
		query += " WHERE repository_id = ?"
		args = append(args, repositoryID)
	}
	query += " ORDER BY local_id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()

	var records []storage.WorkItemRecord
	for rows.Next() {
		record, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate work items: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(row rowScanner) (storage.WorkItemRecord, error) {
	var (
		record    storage.WorkItemRecord
		kind      string
		lifecycle string
		review    string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&record.ID, &record.RepositoryID, &record.LocalID, &kind, &record.Title,
		&lifecycle, &review, &record.CommentCount, &record.LabelCount,
		&record.LastSeq, &createdAt, &updatedAt,
	)
	if err != nil {
		return storage.WorkItemRecord{}, err
	}
	record.Kind = workitem.Kind(kind)
	record.Lifecycle = workitem.Lifecycle(lifecycle)
	record.Review = workitem.ReviewStatus(review)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
