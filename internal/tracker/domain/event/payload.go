package event

import "fmt"

// IssueCreatedPayload captures the payload for issue.created events.
type IssueCreatedPayload struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	RepositoryID string `json:"repository_id"`
	LocalID      int64  `json:"local_id"`
}

// IssueUpdatedPayload captures the payload for issue.updated events.
// Both fields are written wholesale; the fold does not merge.
type IssueUpdatedPayload struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// IssueClosedPayload captures the payload for issue.closed events.
type IssueClosedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// IssueReopenedPayload captures the payload for issue.reopened events.
type IssueReopenedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// PullRequestCreatedPayload captures the payload for pullrequest.created events.
type PullRequestCreatedPayload struct {
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	RepositoryID  string `json:"repository_id"`
	LocalID       int64  `json:"local_id"`
	BaseBranch    string `json:"base_branch"`
	CompareBranch string `json:"compare_branch"`
}

// PullRequestReviewPayload captures the payload for pullrequest.approved and
// pullrequest.changes_required events.
type PullRequestReviewPayload struct {
	Comment string `json:"comment,omitempty"`
}

// PullRequestMergedPayload captures the payload for pullrequest.merged events.
type PullRequestMergedPayload struct {
	MergeCommit string `json:"merge_commit,omitempty"`
}

// PullRequestCanceledPayload captures the payload for pullrequest.canceled events.
type PullRequestCanceledPayload struct {
	Reason string `json:"reason,omitempty"`
}

// LabelPayload captures the payload for label.assigned and label.unassigned events.
type LabelPayload struct {
	LabelID string `json:"label_id"`
}

// MilestonePayload captures the payload for milestone.assigned and
// milestone.unassigned events.
type MilestonePayload struct {
	MilestoneID string `json:"milestone_id"`
}

// AssigneePayload captures the payload for user.assigned and user.unassigned events.
type AssigneePayload struct {
	UserID string `json:"user_id"`
}

// Topic identifies the diff location a review conversation is anchored to.
type Topic struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

// EntityID returns the envelope entity address for the topic, "path:line".
// A file can anchor several threads, so the path alone is not unique.
func (t Topic) EntityID() string {
	return fmt.Sprintf("%s:%d", t.Path, t.Line)
}

// CommentCreatedPayload captures the payload for comment.created events.
//
// Topic and Changes are set only for pull request review comments; the first
// comment carrying a topic implicitly opens the conversation for that topic.
type CommentCreatedPayload struct {
	CommentID string `json:"comment_id"`
	Text      string `json:"text"`
	Topic     *Topic `json:"topic,omitempty"`
	Changes   string `json:"changes,omitempty"`
}

// CommentUpdatedPayload captures the payload for comment.updated events.
type CommentUpdatedPayload struct {
	CommentID string `json:"comment_id"`
	Text      string `json:"text"`
}

// CommentStatePayload captures the payload for comment.hidden,
// comment.unhidden, and comment.deleted events.
type CommentStatePayload struct {
	CommentID string `json:"comment_id"`
	Reason    string `json:"reason,omitempty"`
}

// ReactionPayload captures the payload for user.reacted and user.unreacted events.
type ReactionPayload struct {
	CommentID string `json:"comment_id"`
	Emoji     string `json:"emoji"`
}

// ConversationPayload captures the payload for conversation.resolved and
// conversation.unresolved events.
type ConversationPayload struct {
	Topic Topic `json:"topic"`
}
