package workitem

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/quarryforge/quarry/internal/tracker/domain/command"
	"github.com/quarryforge/quarry/internal/tracker/domain/event"
)

// Command types handled by the work-item decider.
const (
	CommandCreateIssue       command.Type = "issue.create"
	CommandCloseIssue        command.Type = "issue.close"
	CommandReopenIssue       command.Type = "issue.reopen"
	CommandCreatePullRequest command.Type = "pullrequest.create"
	CommandApprove           command.Type = "pullrequest.approve"
	CommandRequireChanges    command.Type = "pullrequest.require_changes"
	CommandMerge             command.Type = "pullrequest.merge"
	CommandCancel            command.Type = "pullrequest.cancel"
	CommandUpdate            command.Type = "workitem.update"
	CommandAssignLabel       command.Type = "label.assign"
	CommandUnassignLabel     command.Type = "label.unassign"
	CommandAssignMilestone   command.Type = "milestone.assign"
	CommandUnassignMilestone command.Type = "milestone.unassign"
	CommandAssignUser        command.Type = "user.assign"
	CommandUnassignUser      command.Type = "user.unassign"
	CommandCreateComment     command.Type = "comment.create"
	CommandUpdateComment     command.Type = "comment.update"
	CommandHideComment       command.Type = "comment.hide"
	CommandUnhideComment     command.Type = "comment.unhide"
	CommandDeleteComment     command.Type = "comment.delete"
	CommandToggleReaction    command.Type = "reaction.toggle"
	CommandResolveThread     command.Type = "conversation.resolve"
	CommandUnresolveThread   command.Type = "conversation.unresolve"
)

// Rejection codes returned by the work-item decider.
const (
	RejectionCodeAlreadyExists   = "WORKITEM_ALREADY_EXISTS"
	RejectionCodeNotCreated      = "WORKITEM_NOT_CREATED"
	RejectionCodeTitleEmpty      = "WORKITEM_TITLE_EMPTY"
	RejectionCodeTerminal        = "WORKITEM_TERMINAL"
	RejectionCodeKindMismatch    = "WORKITEM_KIND_MISMATCH"
	RejectionCodeBranchEmpty     = "PULLREQUEST_BRANCH_EMPTY"
	RejectionCodeAlreadyClosed   = "ISSUE_ALREADY_CLOSED"
	RejectionCodeNotClosed       = "ISSUE_NOT_CLOSED"
	RejectionCodeChangesRequired = "PULLREQUEST_CHANGES_REQUIRED"
)

// Decide returns the decision for a work-item command against current state.
//
// Decide is the single gatekeeper of preconditions: the fold stays total and
// defensive while every "may this happen" question is answered here, against
// folded state rather than caller-supplied flags. Both the authoritative
// engine and the optimistic client session call this same function, so the
// two can never disagree about what a command is allowed to do.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}

	switch cmd.Type {
	case CommandCreateIssue, CommandCreatePullRequest:
		return decideCreate(state, cmd, now)
	}

	if !state.Created {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeNotCreated,
			Message: "work item does not exist",
		})
	}

	switch cmd.Type {
	case CommandUpdate:
		return decideUpdate(state, cmd, now)
	case CommandCloseIssue:
		return decideClose(state, cmd, now)
	case CommandReopenIssue:
		return decideReopen(state, cmd, now)
	case CommandApprove, CommandRequireChanges:
		return decideReview(state, cmd, now)
	case CommandMerge:
		return decideMerge(state, cmd, now)
	case CommandCancel:
		return decideCancel(state, cmd, now)
	case CommandAssignLabel, CommandUnassignLabel,
		CommandAssignMilestone, CommandUnassignMilestone,
		CommandAssignUser, CommandUnassignUser:
		return decideMembership(state, cmd, now)
	case CommandCreateComment:
		return decideCreateComment(state, cmd, now)
	case CommandUpdateComment:
		return decideUpdateComment(state, cmd, now)
	case CommandHideComment, CommandUnhideComment:
		return decideCommentVisibility(state, cmd, now)
	case CommandDeleteComment:
		return decideDeleteComment(state, cmd, now)
	case CommandToggleReaction:
		return decideToggleReaction(state, cmd, now)
	case CommandResolveThread, CommandUnresolveThread:
		return decideConversation(state, cmd, now)
	}

	return command.Reject(command.Rejection{
		Code:    command.RejectionCodeCommandTypeUnsupported,
		Message: "command type is not supported",
	})
}

func decideCreate(state State, cmd command.Command, now func() time.Time) command.Decision {
	if state.Created {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeAlreadyExists,
			Message: "work item already exists",
		})
	}

	if cmd.Type == CommandCreateIssue {
		var payload event.IssueCreatedPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		payload.Title = strings.TrimSpace(payload.Title)
		if payload.Title == "" {
			return command.Reject(command.Rejection{
				Code:    RejectionCodeTitleEmpty,
				Message: "title is required",
			})
		}
		payloadJSON, _ := json.Marshal(payload)
		return command.Accept(command.NewEvent(
			cmd, event.TypeIssueCreated, "workitem", cmd.WorkItemID, payloadJSON, now().UTC(),
		))
	}

	var payload event.PullRequestCreatedPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payload.Title = strings.TrimSpace(payload.Title)
	if payload.Title == "" {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeTitleEmpty,
			Message: "title is required",
		})
	}
	if strings.TrimSpace(payload.BaseBranch) == "" || strings.TrimSpace(payload.CompareBranch) == "" {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeBranchEmpty,
			Message: "base and compare branches are required",
		})
	}
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, event.TypePullRequestCreated, "workitem", cmd.WorkItemID, payloadJSON, now().UTC(),
	))
}

func decideUpdate(state State, cmd command.Command, now func() time.Time) command.Decision {
	if state.IsTerminal() {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeTerminal,
			Message: "work item is in a terminal state",
		})
	}
	var payload event.IssueUpdatedPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payload.Title = strings.TrimSpace(payload.Title)
	if payload.Title == "" {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeTitleEmpty,
			Message: "title is required",
		})
	}
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, event.TypeIssueUpdated, "workitem", cmd.WorkItemID, payloadJSON, now().UTC(),
	))
}

func decideClose(state State, cmd command.Command, now func() time.Time) command.Decision {
	if state.Kind != KindIssue {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeKindMismatch,
			Message: "close applies to issues",
		})
	}
	if state.Lifecycle == LifecycleClosed {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeAlreadyClosed,
			Message: "issue is already closed",
		})
	}
	var payload event.IssueClosedPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, event.TypeIssueClosed, "workitem", cmd.WorkItemID, payloadJSON, now().UTC(),
	))
}

func decideReopen(state State, cmd command.Command, now func() time.Time) command.Decision {
	if state.Kind != KindIssue {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeKindMismatch,
			Message: "reopen applies to issues",
		})
	}
	if state.Lifecycle != LifecycleClosed {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeNotClosed,
			Message: "issue is not closed",
		})
	}
	var payload event.IssueReopenedPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, event.TypeIssueReopened, "workitem", cmd.WorkItemID, payloadJSON, now().UTC(),
	))
}

func decideReview(state State, cmd command.Command, now func() time.Time) command.Decision {
	if decision, ok := requirePullRequest(state); !ok {
		return decision
	}
	if state.IsTerminal() {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeTerminal,
			Message: "pull request is in a terminal state",
		})
	}
	eventType := event.TypePullRequestApproved
	if cmd.Type == CommandRequireChanges {
		eventType = event.TypePullRequestChangesRequired
	}
	var payload event.PullRequestReviewPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, eventType, "workitem", cmd.WorkItemID, payloadJSON, now().UTC(),
	))
}

func decideMerge(state State, cmd command.Command, now func() time.Time) command.Decision {
	if decision, ok := requirePullRequest(state); !ok {
		return decision
	}
	if state.IsTerminal() {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeTerminal,
			Message: "pull request is in a terminal state",
		})
	}
	if state.Review == ReviewChangesRequired {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeChangesRequired,
			Message: "pull request has changes required",
		})
	}
	var payload event.PullRequestMergedPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, event.TypePullRequestMerged, "workitem", cmd.WorkItemID, payloadJSON, now().UTC(),
	))
}

func decideCancel(state State, cmd command.Command, now func() time.Time) command.Decision {
	if decision, ok := requirePullRequest(state); !ok {
		return decision
	}
	if state.IsTerminal() {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeTerminal,
			Message: "pull request is in a terminal state",
		})
	}
	var payload event.PullRequestCanceledPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(
		cmd, event.TypePullRequestCanceled, "workitem", cmd.WorkItemID, payloadJSON, now().UTC(),
	))
}

func requirePullRequest(state State) (command.Decision, bool) {
	if state.Kind != KindPullRequest {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeKindMismatch,
			Message: "command applies to pull requests",
		}), false
	}
	return command.Decision{}, true
}
