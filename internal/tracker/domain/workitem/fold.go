package workitem

import (
	"encoding/json"

	"github.com/quarryforge/quarry/internal/tracker/domain/event"
)

// Fold applies a single event to work-item state and returns the next state.
//
// Fold is total: an event of an unrecognized type leaves state unchanged so
// newer writers never break older readers. It is pure and deterministic (no
// clock, no randomness) and incremental: folding a sequence event by event
// equals reducing it in one pass. Input state is never mutated; maps and
// slices are copied on write so callers may retain earlier states.
//
// Preconditions live in Decide, not here. The fold stays defensive: events
// that make no sense against current state (a reaction on an unknown
// comment, a resolve with no thread) are dropped without error.
func Fold(state State, evt event.Event) State {
	switch evt.Type {
	case event.TypeIssueCreated:
		var payload event.IssueCreatedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Created = true
		state.Kind = KindIssue
		state.RepositoryID = payload.RepositoryID
		state.LocalID = payload.LocalID
		state.Title = payload.Title
		state.Description = payload.Description
		state.Lifecycle = LifecycleOpen

	case event.TypeIssueUpdated:
		var payload event.IssueUpdatedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Title = payload.Title
		state.Description = payload.Description

	case event.TypeIssueClosed:
		state.Lifecycle = LifecycleClosed

	case event.TypeIssueReopened:
		state.Lifecycle = LifecycleReopened

	case event.TypePullRequestCreated:
		var payload event.PullRequestCreatedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Created = true
		state.Kind = KindPullRequest
		state.RepositoryID = payload.RepositoryID
		state.LocalID = payload.LocalID
		state.Title = payload.Title
		state.Description = payload.Description
		state.BaseBranch = payload.BaseBranch
		state.CompareBranch = payload.CompareBranch
		state.Lifecycle = LifecycleOpened
		state.Review = ReviewNone

	case event.TypePullRequestApproved:
		state.Review = ReviewApproved

	case event.TypePullRequestChangesRequired:
		state.Review = ReviewChangesRequired

	case event.TypePullRequestMerged:
		state.Lifecycle = LifecycleMerged

	case event.TypePullRequestCanceled:
		state.Lifecycle = LifecycleCanceled

	case event.TypeLabelAssigned:
		var payload event.LabelPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Labels = withMember(state.Labels, payload.LabelID)

	case event.TypeLabelUnassigned:
		var payload event.LabelPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Labels = withoutMember(state.Labels, payload.LabelID)

	case event.TypeMilestoneAssigned:
		var payload event.MilestonePayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Milestones = withMember(state.Milestones, payload.MilestoneID)

	case event.TypeMilestoneUnassigned:
		var payload event.MilestonePayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Milestones = withoutMember(state.Milestones, payload.MilestoneID)

	case event.TypeUserAssigned:
		var payload event.AssigneePayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Assignees = withMember(state.Assignees, payload.UserID)

	case event.TypeUserUnassigned:
		var payload event.AssigneePayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Assignees = withoutMember(state.Assignees, payload.UserID)

	case event.TypeCommentCreated:
		state = foldCommentCreated(state, evt)

	case event.TypeCommentUpdated:
		var payload event.CommentUpdatedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state = foldCommentChange(state, payload.CommentID, func(c Comment) Comment {
			c.Text = payload.Text
			return c
		})

	case event.TypeCommentHidden:
		var payload event.CommentStatePayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state = foldCommentChange(state, payload.CommentID, func(c Comment) Comment {
			if c.State == CommentExisting {
				c.State = CommentHidden
			}
			return c
		})

	case event.TypeCommentUnhidden:
		var payload event.CommentStatePayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state = foldCommentChange(state, payload.CommentID, func(c Comment) Comment {
			if c.State == CommentHidden {
				c.State = CommentExisting
			}
			return c
		})

	case event.TypeCommentDeleted:
		var payload event.CommentStatePayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state = foldCommentChange(state, payload.CommentID, func(c Comment) Comment {
			c.State = CommentDeleted
			return c
		})

	case event.TypeUserReacted, event.TypeUserUnreacted:
		state = foldReaction(state, evt)

	case event.TypeConversationResolved, event.TypeConversationUnresolved:
		state = foldConversationToggle(state, evt)
	}
	return state
}

// Reduce folds an ordered event sequence into state from scratch.
func Reduce(events []event.Event) State {
	var state State
	for _, evt := range events {
		state = Fold(state, evt)
	}
	return state
}

func foldCommentCreated(state State, evt event.Event) State {
	var payload event.CommentCreatedPayload
	_ = json.Unmarshal(evt.PayloadJSON, &payload)
	if payload.CommentID == "" {
		return state
	}
	if _, ok := state.Comment(payload.CommentID); ok {
		return state
	}

	comment := Comment{
		ID:        payload.CommentID,
		AuthorID:  evt.ActorID,
		Text:      payload.Text,
		State:     CommentExisting,
		CreatedAt: evt.Timestamp,
		Topic:     payload.Topic,
	}
	comments := make([]Comment, len(state.Comments), len(state.Comments)+1)
	copy(comments, state.Comments)
	state.Comments = append(comments, comment)

	// The first topic-carrying comment on a pull request opens the thread.
	if payload.Topic != nil && state.Kind == KindPullRequest {
		topic := *payload.Topic
		conversations := make([]Conversation, len(state.Conversations))
		copy(conversations, state.Conversations)
		found := false
		for i, conv := range conversations {
			if conv.Topic == topic {
				ids := make([]string, len(conv.CommentIDs), len(conv.CommentIDs)+1)
				copy(ids, conv.CommentIDs)
				conversations[i].CommentIDs = append(ids, payload.CommentID)
				found = true
				break
			}
		}
		if !found {
			conversations = append(conversations, Conversation{
				Topic:      topic,
				Changes:    payload.Changes,
				CommentIDs: []string{payload.CommentID},
			})
		}
		state.Conversations = conversations
	}
	return state
}

// foldCommentChange rewrites one comment through fn, copying the comment
// slice. Deletion is absorbing: a deleted comment never changes again.
func foldCommentChange(state State, commentID string, fn func(Comment) Comment) State {
	for i, c := range state.Comments {
		if c.ID != commentID {
			continue
		}
		if c.State == CommentDeleted {
			return state
		}
		comments := make([]Comment, len(state.Comments))
		copy(comments, state.Comments)
		comments[i] = fn(c)
		state.Comments = comments
		return state
	}
	return state
}

func foldReaction(state State, evt event.Event) State {
	var payload event.ReactionPayload
	_ = json.Unmarshal(evt.PayloadJSON, &payload)
	if payload.CommentID == "" || payload.Emoji == "" || evt.ActorID == "" {
		return state
	}
	for i, c := range state.Comments {
		if c.ID != payload.CommentID {
			continue
		}
		if c.State == CommentDeleted {
			return state
		}
		mark := c.Reactions[payload.Emoji][evt.ActorID]
		if !mark.supersededBy(evt.Timestamp, evt.Seq) {
			return state
		}

		reactions := make(map[string]map[string]Mark, len(c.Reactions)+1)
		for emoji, actors := range c.Reactions {
			reactions[emoji] = actors
		}
		actors := make(map[string]Mark, len(reactions[payload.Emoji])+1)
		for actor, m := range reactions[payload.Emoji] {
			actors[actor] = m
		}
		actors[evt.ActorID] = Mark{
			Timestamp: evt.Timestamp,
			Seq:       evt.Seq,
			Set:       evt.Type == event.TypeUserReacted,
		}
		reactions[payload.Emoji] = actors

		comments := make([]Comment, len(state.Comments))
		copy(comments, state.Comments)
		comments[i].Reactions = reactions
		state.Comments = comments
		return state
	}
	return state
}

func foldConversationToggle(state State, evt event.Event) State {
	var payload event.ConversationPayload
	_ = json.Unmarshal(evt.PayloadJSON, &payload)
	for i, conv := range state.Conversations {
		if conv.Topic != payload.Topic {
			continue
		}
		if !conv.Resolution.supersededBy(evt.Timestamp, evt.Seq) {
			return state
		}
		conversations := make([]Conversation, len(state.Conversations))
		copy(conversations, state.Conversations)
		conversations[i].Resolution = Mark{
			Timestamp: evt.Timestamp,
			Seq:       evt.Seq,
			Set:       evt.Type == event.TypeConversationResolved,
		}
		state.Conversations = conversations
		return state
	}
	return state
}

func withMember(set map[string]struct{}, id string) map[string]struct{} {
	if id == "" {
		return set
	}
	if _, ok := set[id]; ok {
		return set
	}
	next := make(map[string]struct{}, len(set)+1)
	for member := range set {
		next[member] = struct{}{}
	}
	next[id] = struct{}{}
	return next
}

func withoutMember(set map[string]struct{}, id string) map[string]struct{} {
	if _, ok := set[id]; !ok {
		return set
	}
	next := make(map[string]struct{}, len(set))
	for member := range set {
		if member != id {
			next[member] = struct{}{}
		}
	}
	return next
}
