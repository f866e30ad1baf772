package api

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/quarryforge/quarry/internal/tracker/domain/event"
	"github.com/quarryforge/quarry/internal/tracker/domain/workitem"
	"github.com/quarryforge/quarry/internal/tracker/storage"
)

// projectionResponse is the wire shape of a folded work item.
type projectionResponse struct {
	ID            string                 `json:"id"`
	Kind          string                 `json:"kind"`
	RepositoryID  string                 `json:"repository_id"`
	LocalID       int64                  `json:"local_id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description,omitempty"`
	BaseBranch    string                 `json:"base_branch,omitempty"`
	CompareBranch string                 `json:"compare_branch,omitempty"`
	Lifecycle     string                 `json:"lifecycle"`
	Review        string                 `json:"review,omitempty"`
	Labels        []string               `json:"labels"`
	Milestones    []string               `json:"milestones"`
	Assignees     []string               `json:"assignees"`
	Comments      []commentResponse      `json:"comments"`
	Conversations []conversationResponse `json:"conversations,omitempty"`
}

type commentResponse struct {
	ID        string         `json:"id"`
	AuthorID  string         `json:"author_id"`
	Text      string         `json:"text,omitempty"`
	State     string         `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	Topic     *event.Topic   `json:"topic,omitempty"`
	Reactions map[string]int `json:"reactions,omitempty"`
}

type conversationResponse struct {
	Topic      event.Topic `json:"topic"`
	Changes    string      `json:"changes,omitempty"`
	CommentIDs []string    `json:"comment_ids"`
	Resolved   bool        `json:"resolved"`
}

type recordResponse struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repository_id"`
	LocalID      int64     `json:"local_id"`
	Kind         string    `json:"kind"`
	Title        string    `json:"title"`
	Lifecycle    string    `json:"lifecycle"`
	Review       string    `json:"review,omitempty"`
	CommentCount int       `json:"comment_count"`
	LabelCount   int       `json:"label_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type eventResponse struct {
	ID         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	Timestamp  time.Time       `json:"timestamp"`
	Type       string          `json:"type"`
	ActorType  string          `json:"actor_type"`
	ActorID    string          `json:"actor_id,omitempty"`
	EntityType string          `json:"entity_type,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func renderProjection(workItemID string, state workitem.State) projectionResponse {
	resp := projectionResponse{
		ID:            workItemID,
		Kind:          string(state.Kind),
		RepositoryID:  state.RepositoryID,
		LocalID:       state.LocalID,
		Title:         state.Title,
		Description:   state.Description,
		BaseBranch:    state.BaseBranch,
		CompareBranch: state.CompareBranch,
		Lifecycle:     string(state.Lifecycle),
		Review:        string(state.Review),
		Labels:        sortedMembers(state.Labels),
		Milestones:    sortedMembers(state.Milestones),
		Assignees:     sortedMembers(state.Assignees),
		Comments:      make([]commentResponse, 0, len(state.Comments)),
	}
	for _, comment := range state.Comments {
		// Deleted comments leave the rendered view; their tombstone lives
		// only in the event log.
		if comment.State == workitem.CommentDeleted {
			continue
		}
		rendered := commentResponse{
			ID:        comment.ID,
			AuthorID:  comment.AuthorID,
			State:     string(comment.State),
			CreatedAt: comment.CreatedAt,
			Topic:     comment.Topic,
		}
		if comment.State != workitem.CommentHidden {
			rendered.Text = comment.Text
			if counts := comment.ReactionCounts(); len(counts) > 0 {
				rendered.Reactions = counts
			}
		}
		resp.Comments = append(resp.Comments, rendered)
	}
	for _, conv := range state.Conversations {
		resp.Conversations = append(resp.Conversations, conversationResponse{
			Topic:      conv.Topic,
			Changes:    conv.Changes,
			CommentIDs: conv.CommentIDs,
			Resolved:   conv.IsResolved(),
		})
	}
	return resp
}

func renderRecords(records []storage.WorkItemRecord) []recordResponse {
	out := make([]recordResponse, len(records))
	for i, record := range records {
		out[i] = recordResponse{
			ID:           record.ID,
			RepositoryID: record.RepositoryID,
			LocalID:      record.LocalID,
			Kind:         string(record.Kind),
			Title:        record.Title,
			Lifecycle:    string(record.Lifecycle),
			Review:       string(record.Review),
			CommentCount: record.CommentCount,
			LabelCount:   record.LabelCount,
			UpdatedAt:    record.UpdatedAt,
		}
	}
	return out
}

func renderEvent(evt event.Event) eventResponse {
	return eventResponse{
		ID:         evt.ID,
		Seq:        evt.Seq,
		Timestamp:  evt.Timestamp,
		Type:       string(evt.Type),
		ActorType:  string(evt.ActorType),
		ActorID:    evt.ActorID,
		EntityType: evt.EntityType,
		EntityID:   evt.EntityID,
		Payload:    json.RawMessage(evt.PayloadJSON),
	}
}

func sortedMembers(set map[string]struct{}) []string {
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	sort.Strings(members)
	return members
}
