package workitem

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/quarryforge/quarry/internal/tracker/domain/command"
	"github.com/quarryforge/quarry/internal/tracker/domain/event"
)

// Rejection codes for comment, reaction, and conversation commands.
const (
	RejectionCodeCommentIDRequired       = "COMMENT_ID_REQUIRED"
	RejectionCodeCommentExists           = "COMMENT_ALREADY_EXISTS"
	RejectionCodeCommentNotFound         = "COMMENT_NOT_FOUND"
	RejectionCodeCommentDeleted          = "COMMENT_DELETED"
	RejectionCodeCommentNotHidden        = "COMMENT_NOT_HIDDEN"
	RejectionCodeCommentAlreadyHidden    = "COMMENT_ALREADY_HIDDEN"
	RejectionCodeCommentTextEmpty        = "COMMENT_TEXT_EMPTY"
	RejectionCodeCommentActorForbidden   = "COMMENT_ACTOR_FORBIDDEN"
	RejectionCodeReactionEmojiEmpty      = "REACTION_EMOJI_EMPTY"
	RejectionCodeTopicUnsupported        = "CONVERSATION_TOPIC_UNSUPPORTED"
	RejectionCodeConversationNotFound    = "CONVERSATION_NOT_FOUND"
	RejectionCodeConversationResolved    = "CONVERSATION_ALREADY_RESOLVED"
	RejectionCodeConversationNotResolved = "CONVERSATION_NOT_RESOLVED"
)

// Discussion commands stay allowed after a work item reaches a terminal
// lifecycle state: review threads on merged pull requests remain living
// documents. Everything else in this file therefore checks comment state,
// never lifecycle.

func decideCreateComment(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload event.CommentCreatedPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	if payload.CommentID == "" {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeCommentIDRequired,
			Message: "comment id is required",
		})
	}
	if _, ok := state.Comment(payload.CommentID); ok {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeCommentExists,
			Message: "comment already exists",
		})
	}
	if strings.TrimSpace(payload.Text) == "" {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeCommentTextEmpty,
			Message: "comment text is required",
		})
	}
	if payload.Topic != nil && state.Kind != KindPullRequest {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeTopicUnsupported,
			Message: "review topics apply to pull requests",
		})
	}
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, event.TypeCommentCreated, "comment", payload.CommentID, payloadJSON, now().UTC(),
	))
}

func decideUpdateComment(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload event.CommentUpdatedPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	comment, decision, ok := requireLiveComment(state, payload.CommentID)
	if !ok {
		return decision
	}
	if strings.TrimSpace(payload.Text) == "" {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeCommentTextEmpty,
			Message: "comment text is required",
		})
	}
	if decision, ok := requireCommentActor(comment, cmd); !ok {
		return decision
	}
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, event.TypeCommentUpdated, "comment", comment.ID, payloadJSON, now().UTC(),
	))
}

func decideCommentVisibility(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload event.CommentStatePayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	comment, decision, ok := requireLiveComment(state, payload.CommentID)
	if !ok {
		return decision
	}

	if cmd.Type == CommandHideComment {
		if comment.State == CommentHidden {
			return command.Reject(command.Rejection{
				Code:    RejectionCodeCommentAlreadyHidden,
				Message: "comment is already hidden",
			})
		}
		payloadJSON, _ := json.Marshal(payload)
		return command.Accept(command.NewEvent(
			cmd, event.TypeCommentHidden, "comment", comment.ID, payloadJSON, now().UTC(),
		))
	}

	if comment.State != CommentHidden {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeCommentNotHidden,
			Message: "comment is not hidden",
		})
	}
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, event.TypeCommentUnhidden, "comment", comment.ID, payloadJSON, now().UTC(),
	))
}

func decideDeleteComment(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload event.CommentStatePayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	comment, decision, ok := requireLiveComment(state, payload.CommentID)
	if !ok {
		return decision
	}
	if decision, ok := requireCommentActor(comment, cmd); !ok {
		return decision
	}
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, event.TypeCommentDeleted, "comment", comment.ID, payloadJSON, now().UTC(),
	))
}

// decideToggleReaction emits user.reacted or user.unreacted depending on the
// actor's current latest-wins mark: the same rule the fold tallies with, so
// the UI toggle affordance and authoritative state always agree.
func decideToggleReaction(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload event.ReactionPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	comment, decision, ok := requireLiveComment(state, payload.CommentID)
	if !ok {
		return decision
	}
	if payload.Emoji == "" {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeReactionEmojiEmpty,
			Message: "reaction emoji is required",
		})
	}

	eventType := event.TypeUserReacted
	if comment.HasReacted(cmd.ActorID, payload.Emoji) {
		eventType = event.TypeUserUnreacted
	}
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, eventType, "comment", comment.ID, payloadJSON, now().UTC(),
	))
}

func decideConversation(state State, cmd command.Command, now func() time.Time) command.Decision {
	if decision, ok := requirePullRequest(state); !ok {
		return decision
	}
	var payload event.ConversationPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	conversation, ok := state.Conversation(payload.Topic)
	if !ok {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeConversationNotFound,
			Message: "conversation does not exist",
		})
	}

	resolve := cmd.Type == CommandResolveThread
	if resolve && conversation.IsResolved() {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeConversationResolved,
			Message: "conversation is already resolved",
		})
	}
	if !resolve && !conversation.IsResolved() {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeConversationNotResolved,
			Message: "conversation is not resolved",
		})
	}

	eventType := event.TypeConversationResolved
	if !resolve {
		eventType = event.TypeConversationUnresolved
	}
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, eventType, "conversation", payload.Topic.EntityID(), payloadJSON, now().UTC(),
	))
}

func requireLiveComment(state State, commentID string) (Comment, command.Decision, bool) {
	if commentID == "" {
		return Comment{}, command.Reject(command.Rejection{
			Code:    RejectionCodeCommentIDRequired,
			Message: "comment id is required",
		}), false
	}
	comment, ok := state.Comment(commentID)
	if !ok {
		return Comment{}, command.Reject(command.Rejection{
			Code:    RejectionCodeCommentNotFound,
			Message: "comment does not exist",
		}), false
	}
	if comment.State == CommentDeleted {
		return Comment{}, command.Reject(command.Rejection{
			Code:    RejectionCodeCommentDeleted,
			Message: "comment is deleted",
		}), false
	}
	return comment, command.Decision{}, true
}

// requireCommentActor restricts edits and deletes to the comment's author.
// System actors (moderation, import) bypass the check.
func requireCommentActor(comment Comment, cmd command.Command) (command.Decision, bool) {
	if cmd.ActorType == event.ActorTypeSystem {
		return command.Decision{}, true
	}
	if cmd.ActorID != comment.AuthorID {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeCommentActorForbidden,
			Message: "only the comment author may modify it",
		}), false
	}
	return command.Decision{}, true
}
