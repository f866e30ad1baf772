package event

import (
	"strings"
	"time"
)

// Type identifies the type of a work-item event.
type Type string

// Issue lifecycle events.
const (
	// TypeIssueCreated records the creation of an issue.
	TypeIssueCreated Type = "issue.created"
	// TypeIssueUpdated records updates to issue title or description.
	TypeIssueUpdated Type = "issue.updated"
	// TypeIssueClosed records an issue being closed.
	TypeIssueClosed Type = "issue.closed"
	// TypeIssueReopened records a closed issue being reopened.
	TypeIssueReopened Type = "issue.reopened"
)

// Pull request lifecycle events.
const (
	// TypePullRequestCreated records the creation of a pull request.
	TypePullRequestCreated Type = "pullrequest.created"
	// TypePullRequestApproved records a review approval.
	TypePullRequestApproved Type = "pullrequest.approved"
	// TypePullRequestChangesRequired records a review requesting changes.
	TypePullRequestChangesRequired Type = "pullrequest.changes_required"
	// TypePullRequestMerged records the terminal merge of a pull request.
	TypePullRequestMerged Type = "pullrequest.merged"
	// TypePullRequestCanceled records the terminal cancelation of a pull request.
	TypePullRequestCanceled Type = "pullrequest.canceled"
)

// Membership events (labels, milestones, assignees).
const (
	// TypeLabelAssigned records a label being attached to a work item.
	TypeLabelAssigned Type = "label.assigned"
	// TypeLabelUnassigned records a label being detached from a work item.
	TypeLabelUnassigned Type = "label.unassigned"
	// TypeMilestoneAssigned records a milestone being attached to a work item.
	TypeMilestoneAssigned Type = "milestone.assigned"
	// TypeMilestoneUnassigned records a milestone being detached from a work item.
	TypeMilestoneUnassigned Type = "milestone.unassigned"
	// TypeUserAssigned records a user being assigned to a work item.
	TypeUserAssigned Type = "user.assigned"
	// TypeUserUnassigned records a user being unassigned from a work item.
	TypeUserUnassigned Type = "user.unassigned"
)

// Comment events.
const (
	// TypeCommentCreated records a new comment. Comments carrying a topic
	// open a review conversation on pull requests.
	TypeCommentCreated Type = "comment.created"
	// TypeCommentUpdated records a comment body edit.
	TypeCommentUpdated Type = "comment.updated"
	// TypeCommentHidden records a comment being hidden by a moderator.
	TypeCommentHidden Type = "comment.hidden"
	// TypeCommentUnhidden records a hidden comment being restored.
	TypeCommentUnhidden Type = "comment.unhidden"
	// TypeCommentDeleted records a comment deletion. Deletion is terminal.
	TypeCommentDeleted Type = "comment.deleted"
)

// Reaction events.
const (
	// TypeUserReacted records an actor adding an emoji reaction to a comment.
	TypeUserReacted Type = "user.reacted"
	// TypeUserUnreacted records an actor withdrawing an emoji reaction.
	TypeUserUnreacted Type = "user.unreacted"
)

// Conversation events (pull request review threads).
const (
	// TypeConversationResolved records a review conversation being resolved.
	TypeConversationResolved Type = "conversation.resolved"
	// TypeConversationUnresolved records a review conversation being reopened.
	TypeConversationUnresolved Type = "conversation.unresolved"
)

// ActorType identifies who or what triggered an event.
type ActorType string

const (
	// ActorTypeSystem indicates the event was triggered by the system.
	ActorTypeSystem ActorType = "system"
	// ActorTypeUser indicates the event was triggered by a forge user.
	ActorTypeUser ActorType = "user"
)

// Event represents an immutable entry in a work item's event log.
//
// Seq and ID are assigned by storage on append; the canonical order of a
// work item's history is (Timestamp, Seq). Client-produced events carry a
// provisional local id and client timestamp until the store acknowledges
// them.
type Event struct {
	// WorkItemID is the aggregate this event belongs to.
	WorkItemID string
	// Seq is the event sequence number within the work item (starts at 1).
	// Assigned by storage on append.
	Seq uint64
	// ID is the canonical event identifier. Assigned by storage on append.
	ID string
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// ActorType identifies who triggered the event.
	ActorType ActorType
	// ActorID is the user ID when ActorType is user.
	ActorID string
	// EntityType is the kind of entity affected (workitem, comment, conversation).
	EntityType string
	// EntityID is the ID of the entity affected.
	EntityID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "issue", "comment").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// Before reports whether e precedes other in canonical order.
//
// Canonical order is (Timestamp, Seq): the store-assigned sequence number
// breaks timestamp ties so replays are deterministic even when two events
// share a millisecond.
func (e Event) Before(other Event) bool {
	if e.Timestamp.Equal(other.Timestamp) {
		return e.Seq < other.Seq
	}
	return e.Timestamp.Before(other.Timestamp)
}
