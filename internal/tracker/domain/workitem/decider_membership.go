package workitem

import (
	"encoding/json"
	"time"

	"github.com/quarryforge/quarry/internal/tracker/domain/command"
	"github.com/quarryforge/quarry/internal/tracker/domain/event"
)

// Rejection codes for label, milestone, and assignee membership commands.
const (
	RejectionCodeLabelAlreadyAssigned     = "LABEL_ALREADY_ASSIGNED"
	RejectionCodeLabelNotAssigned         = "LABEL_NOT_ASSIGNED"
	RejectionCodeLabelEmpty               = "LABEL_ID_EMPTY"
	RejectionCodeMilestoneAlreadyAssigned = "MILESTONE_ALREADY_ASSIGNED"
	RejectionCodeMilestoneNotAssigned     = "MILESTONE_NOT_ASSIGNED"
	RejectionCodeMilestoneEmpty           = "MILESTONE_ID_EMPTY"
	RejectionCodeUserAlreadyAssigned      = "USER_ALREADY_ASSIGNED"
	RejectionCodeUserNotAssigned          = "USER_NOT_ASSIGNED"
	RejectionCodeUserEmpty                = "USER_ID_EMPTY"
)

// decideMembership handles the six set-membership commands. Duplicate assigns
// and absent unassigns are rejected, not silently dropped: the same decision
// runs client-side and server-side, so history never accumulates
// duplicate-looking membership events.
func decideMembership(state State, cmd command.Command, now func() time.Time) command.Decision {
	if state.IsTerminal() {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeTerminal,
			Message: "work item is in a terminal state",
		})
	}

	switch cmd.Type {
	case CommandAssignLabel, CommandUnassignLabel:
		var payload event.LabelPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		return decideSetChange(state, cmd, now, setChange{
			id:           payload.LabelID,
			members:      state.Labels,
			assign:       cmd.Type == CommandAssignLabel,
			assignType:   event.TypeLabelAssigned,
			unassignType: event.TypeLabelUnassigned,
			entityType:   "label",
			emptyCode:    RejectionCodeLabelEmpty,
			presentCode:  RejectionCodeLabelAlreadyAssigned,
			absentCode:   RejectionCodeLabelNotAssigned,
		})
	case CommandAssignMilestone, CommandUnassignMilestone:
		var payload event.MilestonePayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		return decideSetChange(state, cmd, now, setChange{
			id:           payload.MilestoneID,
			members:      state.Milestones,
			assign:       cmd.Type == CommandAssignMilestone,
			assignType:   event.TypeMilestoneAssigned,
			unassignType: event.TypeMilestoneUnassigned,
			entityType:   "milestone",
			emptyCode:    RejectionCodeMilestoneEmpty,
			presentCode:  RejectionCodeMilestoneAlreadyAssigned,
			absentCode:   RejectionCodeMilestoneNotAssigned,
		})
	default:
		var payload event.AssigneePayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		return decideSetChange(state, cmd, now, setChange{
			id:           payload.UserID,
			members:      state.Assignees,
			assign:       cmd.Type == CommandAssignUser,
			assignType:   event.TypeUserAssigned,
			unassignType: event.TypeUserUnassigned,
			entityType:   "assignee",
			emptyCode:    RejectionCodeUserEmpty,
			presentCode:  RejectionCodeUserAlreadyAssigned,
			absentCode:   RejectionCodeUserNotAssigned,
		})
	}
}

type setChange struct {
	id           string
	members      map[string]struct{}
	assign       bool
	assignType   event.Type
	unassignType event.Type
	entityType   string
	emptyCode    string
	presentCode  string
	absentCode   string
}

func decideSetChange(state State, cmd command.Command, now func() time.Time, change setChange) command.Decision {
	if change.id == "" {
		return command.Reject(command.Rejection{
			Code:    change.emptyCode,
			Message: change.entityType + " id is required",
		})
	}
	_, present := change.members[change.id]
	if change.assign && present {
		return command.Reject(command.Rejection{
			Code:    change.presentCode,
			Message: change.entityType + " is already assigned",
		})
	}
	if !change.assign && !present {
		return command.Reject(command.Rejection{
			Code:    change.absentCode,
			Message: change.entityType + " is not assigned",
		})
	}

	eventType := change.assignType
	if !change.assign {
		eventType = change.unassignType
	}
	return command.Accept(command.NewEvent(
		cmd, eventType, change.entityType, change.id, cmd.PayloadJSON, now().UTC(),
	))
}
