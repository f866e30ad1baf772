package importer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/quarryforge/quarry/internal/tracker/domain/event"
)

// WorkItemID derives the tracker aggregate id for a GitHub issue or pull
// request. Deterministic, so re-imports address the same work item.
func WorkItemID(repositoryID string, number int) string {
	return fmt.Sprintf("gh:%s#%d", repositoryID, number)
}

// CommentID derives the tracker comment id for a GitHub comment.
func CommentID(commentID int64) string {
	return fmt.Sprintf("ghc:%d", commentID)
}

// reactionEmoji maps GitHub reaction content names to the emoji tokens the
// tracker stores. Unknown content passes through unchanged.
var reactionEmoji = map[string]string{
	"+1":       "+1",
	"-1":       "-1",
	"laugh":    "laugh",
	"confused": "confused",
	"heart":    "heart",
	"hooray":   "hooray",
	"rocket":   "rocket",
	"eyes":     "eyes",
}

func actorLogin(user *github.User) string {
	return user.GetLogin()
}

func marshalPayload(v any) []byte {
	payload, _ := json.Marshal(v)
	return payload
}

// importEvent builds a backfilled event: recorded by the system on behalf of
// the forge user in actorID, carrying the source timestamp so the store
// preserves it instead of stamping import time.
func importEvent(workItemID string, eventType event.Type, actorID, entityType, entityID string, at time.Time, payload any) event.Event {
	return event.Event{
		WorkItemID:  workItemID,
		Type:        eventType,
		ActorType:   event.ActorTypeSystem,
		ActorID:     actorID,
		EntityType:  entityType,
		EntityID:    entityID,
		Timestamp:   at.UTC(),
		PayloadJSON: marshalPayload(payload),
	}
}

// IssueEvents converts one GitHub issue into its tracker event sequence:
// creation, labels, assignees, milestone, and terminal lifecycle. Pull
// requests are detected via the issues API link and enriched from pr when
// provided.
func IssueEvents(repositoryID string, issue *github.Issue, pr *github.PullRequest) []event.Event {
	number := issue.GetNumber()
	workItemID := WorkItemID(repositoryID, number)
	author := actorLogin(issue.User)
	createdAt := issue.GetCreatedAt().Time

	var events []event.Event
	if issue.IsPullRequest() {
		events = append(events, importEvent(workItemID, event.TypePullRequestCreated, author, "workitem", workItemID, createdAt,
			event.PullRequestCreatedPayload{
				Title:         issue.GetTitle(),
				Description:   issue.GetBody(),
				RepositoryID:  repositoryID,
				LocalID:       int64(number),
				BaseBranch:    pr.GetBase().GetRef(),
				CompareBranch: pr.GetHead().GetRef(),
			}))
	} else {
		events = append(events, importEvent(workItemID, event.TypeIssueCreated, author, "workitem", workItemID, createdAt,
			event.IssueCreatedPayload{
				Title:        issue.GetTitle(),
				Description:  issue.GetBody(),
				RepositoryID: repositoryID,
				LocalID:      int64(number),
			}))
	}

	// The issues API exposes current labels, assignees, and milestone without
	// assignment times; the creation time stands in.
	for _, label := range issue.Labels {
		name := label.GetName()
		if name == "" {
			continue
		}
		events = append(events, importEvent(workItemID, event.TypeLabelAssigned, author, "label", name, createdAt,
			event.LabelPayload{LabelID: name}))
	}
	for _, assignee := range issue.Assignees {
		login := assignee.GetLogin()
		if login == "" {
			continue
		}
		events = append(events, importEvent(workItemID, event.TypeUserAssigned, author, "assignee", login, createdAt,
			event.AssigneePayload{UserID: login}))
	}
	if milestone := issue.GetMilestone().GetTitle(); milestone != "" {
		events = append(events, importEvent(workItemID, event.TypeMilestoneAssigned, author, "milestone", milestone, createdAt,
			event.MilestonePayload{MilestoneID: milestone}))
	}

	if issue.GetState() == "closed" {
		closedAt := issue.GetClosedAt().Time
		switch {
		case issue.IsPullRequest() && pr.GetMerged():
			events = append(events, importEvent(workItemID, event.TypePullRequestMerged, author, "workitem", workItemID, pr.GetMergedAt().Time,
				event.PullRequestMergedPayload{MergeCommit: pr.GetMergeCommitSHA()}))
		case issue.IsPullRequest():
			events = append(events, importEvent(workItemID, event.TypePullRequestCanceled, author, "workitem", workItemID, closedAt,
				event.PullRequestCanceledPayload{}))
		default:
			events = append(events, importEvent(workItemID, event.TypeIssueClosed, author, "workitem", workItemID, closedAt,
				event.IssueClosedPayload{Reason: issue.GetStateReason()}))
		}
	}
	return events
}

// CommentEvents converts one GitHub comment and its reactions into tracker
// events. Empty comment bodies are skipped; the decider rejects them.
func CommentEvents(repositoryID string, number int, comment *github.IssueComment, reactions []*github.Reaction) []event.Event {
	if comment.GetBody() == "" {
		return nil
	}
	workItemID := WorkItemID(repositoryID, number)
	commentID := CommentID(comment.GetID())
	createdAt := comment.GetCreatedAt().Time

	events := []event.Event{
		importEvent(workItemID, event.TypeCommentCreated, actorLogin(comment.User), "comment", commentID, createdAt,
			event.CommentCreatedPayload{CommentID: commentID, Text: comment.GetBody()}),
	}
	// Reactions carry no timestamp of their own; the comment's stands in.
	for _, reaction := range reactions {
		actor := actorLogin(reaction.User)
		content := reaction.GetContent()
		if actor == "" || content == "" {
			continue
		}
		emoji, ok := reactionEmoji[content]
		if !ok {
			emoji = content
		}
		events = append(events, importEvent(workItemID, event.TypeUserReacted, actor, "comment", commentID, createdAt,
			event.ReactionPayload{CommentID: commentID, Emoji: emoji}))
	}
	return events
}
