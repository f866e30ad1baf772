package workitem

import (
	"time"

	"github.com/quarryforge/quarry/internal/tracker/domain/event"
)

// Kind distinguishes the two work-item aggregates.
type Kind string

const (
	// KindIssue marks an issue work item.
	KindIssue Kind = "issue"
	// KindPullRequest marks a pull request work item.
	KindPullRequest Kind = "pull_request"
)

// Lifecycle is the folded lifecycle state of a work item.
//
// Open and Reopened answer "is open" identically but stay distinct because
// history rendering narrates "opened" and "reopened" differently.
type Lifecycle string

const (
	// LifecycleOpen is the initial issue state.
	LifecycleOpen Lifecycle = "open"
	// LifecycleClosed marks a closed issue.
	LifecycleClosed Lifecycle = "closed"
	// LifecycleReopened marks an issue reopened after a close.
	LifecycleReopened Lifecycle = "reopened"
	// LifecycleOpened is the initial pull request state.
	LifecycleOpened Lifecycle = "opened"
	// LifecycleMerged is the terminal merged pull request state.
	LifecycleMerged Lifecycle = "merged"
	// LifecycleCanceled is the terminal canceled pull request state.
	LifecycleCanceled Lifecycle = "canceled"
)

// ReviewStatus is the non-terminal review annotation on a pull request.
type ReviewStatus string

const (
	// ReviewNone means no review verdict has been recorded.
	ReviewNone ReviewStatus = ""
	// ReviewApproved means the latest review verdict approved the changes.
	ReviewApproved ReviewStatus = "approved"
	// ReviewChangesRequired means the latest review verdict requested changes.
	ReviewChangesRequired ReviewStatus = "changes_required"
)

// CommentState is the folded lifecycle state of a comment.
type CommentState string

const (
	// CommentExisting is a visible comment.
	CommentExisting CommentState = "existing"
	// CommentHidden is a moderator-hidden comment; reversible by unhide.
	CommentHidden CommentState = "hidden"
	// CommentDeleted is terminal; no event transitions out of it.
	CommentDeleted CommentState = "deleted"
)

// Mark records the latest event observed for a toggle-style fact.
//
// Toggle facts (actor reacted with emoji, conversation resolved) are never
// stored as booleans; they are resolved last-writer-wins from the canonical
// (Timestamp, Seq) order of the opposing event pair.
type Mark struct {
	// Timestamp of the latest toggle event for the fact.
	Timestamp time.Time
	// Seq of the latest toggle event; breaks timestamp ties.
	Seq uint64
	// Set is true when the latest event asserts the fact.
	Set bool
}

// supersededBy reports whether an event at (ts, seq) is at least as new as
// the mark in canonical order. Folding a sequence already sorted by
// (Timestamp, Seq) with this rule yields last-writer-wins.
func (m Mark) supersededBy(ts time.Time, seq uint64) bool {
	if ts.Equal(m.Timestamp) {
		return seq >= m.Seq
	}
	return ts.After(m.Timestamp)
}

// Comment is one folded comment with its reaction marks.
type Comment struct {
	ID        string
	AuthorID  string
	Text      string
	State     CommentState
	CreatedAt time.Time
	// Topic anchors pull request review comments to a diff location.
	Topic *event.Topic
	// Reactions maps emoji to per-actor latest toggle marks.
	Reactions map[string]map[string]Mark
}

// HasReacted reports whether the actor's latest reaction toggle for the
// emoji asserts a reaction.
func (c Comment) HasReacted(actorID, emoji string) bool {
	return c.Reactions[emoji][actorID].Set
}

// ReactionCounts tallies, per emoji, the actors whose latest toggle is a
// reaction. The tally is computed, never stored.
func (c Comment) ReactionCounts() map[string]int {
	counts := make(map[string]int)
	for emoji, actors := range c.Reactions {
		for _, mark := range actors {
			if mark.Set {
				counts[emoji]++
			}
		}
	}
	return counts
}

// Conversation is a pull request review thread scoped to one topic.
type Conversation struct {
	Topic event.Topic
	// Changes is the diff hunk the thread refers to.
	Changes string
	// CommentIDs are the thread's comments in creation order.
	CommentIDs []string
	// Resolution is the latest resolve/unresolve toggle mark.
	Resolution Mark
}

// IsResolved reports whether the latest resolution toggle resolved the thread.
func (c Conversation) IsResolved() bool {
	return c.Resolution.Set
}

// State captures the folded state of one work item.
//
// State is the projection: derived, never separately authored. For every
// prefix of the event log, State equals the fold of that prefix.
type State struct {
	// Created is set by the first *.created event.
	Created bool
	Kind    Kind

	RepositoryID string
	LocalID      int64

	Title       string
	Description string

	// BaseBranch and CompareBranch are set for pull requests only.
	BaseBranch    string
	CompareBranch string

	Lifecycle Lifecycle
	Review    ReviewStatus

	Labels     map[string]struct{}
	Milestones map[string]struct{}
	Assignees  map[string]struct{}

	// Comments in creation order.
	Comments []Comment
	// Conversations in thread-opening order; pull requests only.
	Conversations []Conversation
}

// IsOpen reports whether the work item accepts lifecycle-gated mutations.
func (s State) IsOpen() bool {
	switch s.Lifecycle {
	case LifecycleOpen, LifecycleReopened, LifecycleOpened:
		return true
	}
	return false
}

// IsTerminal reports whether the work item reached a state no event may
// transition out of.
func (s State) IsTerminal() bool {
	return s.Lifecycle == LifecycleMerged || s.Lifecycle == LifecycleCanceled
}

// Comment returns the comment with the given id, if present.
func (s State) Comment(id string) (Comment, bool) {
	for _, c := range s.Comments {
		if c.ID == id {
			return c, true
		}
	}
	return Comment{}, false
}

// Conversation returns the thread for the given topic, if present.
func (s State) Conversation(topic event.Topic) (Conversation, bool) {
	for _, c := range s.Conversations {
		if c.Topic == topic {
			return c, true
		}
	}
	return Conversation{}, false
}
