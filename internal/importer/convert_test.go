package importer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/quarryforge/quarry/internal/tracker/domain/event"
	"github.com/quarryforge/quarry/internal/tracker/domain/workitem"
)

var (
	ghOpenedAt = time.Date(2023, 6, 1, 9, 30, 0, 0, time.UTC)
	ghClosedAt = time.Date(2023, 6, 5, 17, 15, 0, 0, time.UTC)
)

func ghIssue(number int, state string) *github.Issue {
	issue := &github.Issue{
		Number:    github.Int(number),
		State:     github.String(state),
		Title:     github.String("Bug"),
		Body:      github.String("crash on save"),
		User:      &github.User{Login: github.String("alice")},
		CreatedAt: &github.Timestamp{Time: ghOpenedAt},
	}
	if state == "closed" {
		issue.ClosedAt = &github.Timestamp{Time: ghClosedAt}
	}
	return issue
}

func TestIssueEvents(t *testing.T) {
	issue := ghIssue(7, "closed")
	issue.StateReason = github.String("completed")
	issue.Labels = []*github.Label{
		{Name: github.String("bug")},
		{Name: github.String("p1")},
	}
	issue.Assignees = []*github.User{{Login: github.String("bob")}}
	issue.Milestone = &github.Milestone{Title: github.String("v1.0")}

	events := IssueEvents("acme/widgets", issue, nil)
	types := make([]event.Type, len(events))
	for i, evt := range events {
		types[i] = evt.Type
	}
	want := []event.Type{
		event.TypeIssueCreated,
		event.TypeLabelAssigned,
		event.TypeLabelAssigned,
		event.TypeUserAssigned,
		event.TypeMilestoneAssigned,
		event.TypeIssueClosed,
	}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d = %q, want %q", i, types[i], want[i])
		}
	}

	if events[0].WorkItemID != "gh:acme/widgets#7" {
		t.Fatalf("unexpected work item id: %q", events[0].WorkItemID)
	}
	if events[0].ActorID != "alice" {
		t.Fatalf("unexpected actor: %q", events[0].ActorID)
	}
	if events[0].ActorType != event.ActorTypeSystem {
		t.Fatalf("backfilled event actor type = %q, want %q", events[0].ActorType, event.ActorTypeSystem)
	}
	if !events[0].Timestamp.Equal(ghOpenedAt) {
		t.Fatalf("created timestamp = %v, want %v", events[0].Timestamp, ghOpenedAt)
	}
	if last := events[len(events)-1]; !last.Timestamp.Equal(ghClosedAt) {
		t.Fatalf("closed timestamp = %v, want %v", last.Timestamp, ghClosedAt)
	}

	var created event.IssueCreatedPayload
	if err := json.Unmarshal(events[0].PayloadJSON, &created); err != nil {
		t.Fatalf("unmarshal created payload: %v", err)
	}
	if created.Title != "Bug" || created.RepositoryID != "acme/widgets" || created.LocalID != 7 {
		t.Fatalf("unexpected created payload: %+v", created)
	}

	var closed event.IssueClosedPayload
	if err := json.Unmarshal(events[len(events)-1].PayloadJSON, &closed); err != nil {
		t.Fatalf("unmarshal closed payload: %v", err)
	}
	if closed.Reason != "completed" {
		t.Fatalf("unexpected close reason: %q", closed.Reason)
	}

	// The converted sequence folds into the expected projection.
	for i := range events {
		events[i].Seq = uint64(i + 1)
	}
	state := workitem.Reduce(events)
	if state.Lifecycle != workitem.LifecycleClosed {
		t.Fatalf("expected closed, got %q", state.Lifecycle)
	}
	if len(state.Labels) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(state.Labels))
	}
}

func TestIssueEventsMergedPullRequest(t *testing.T) {
	issue := ghIssue(8, "closed")
	issue.PullRequestLinks = &github.PullRequestLinks{URL: github.String("https://api.github.com/repos/acme/widgets/pulls/8")}
	pr := &github.PullRequest{
		Merged:         github.Bool(true),
		MergedAt:       &github.Timestamp{Time: ghClosedAt},
		MergeCommitSHA: github.String("abc123"),
		Base:           &github.PullRequestBranch{Ref: github.String("main")},
		Head:           &github.PullRequestBranch{Ref: github.String("fix/crash")},
	}

	events := IssueEvents("acme/widgets", issue, pr)
	if events[0].Type != event.TypePullRequestCreated {
		t.Fatalf("expected pullrequest.created first, got %q", events[0].Type)
	}
	var created event.PullRequestCreatedPayload
	if err := json.Unmarshal(events[0].PayloadJSON, &created); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if created.BaseBranch != "main" || created.CompareBranch != "fix/crash" {
		t.Fatalf("unexpected branches: %+v", created)
	}

	last := events[len(events)-1]
	if last.Type != event.TypePullRequestMerged {
		t.Fatalf("expected pullrequest.merged last, got %q", last.Type)
	}
	if !last.Timestamp.Equal(ghClosedAt) {
		t.Fatalf("merged timestamp = %v, want %v", last.Timestamp, ghClosedAt)
	}

	for i := range events {
		events[i].Seq = uint64(i + 1)
	}
	state := workitem.Reduce(events)
	if state.Lifecycle != workitem.LifecycleMerged {
		t.Fatalf("expected merged, got %q", state.Lifecycle)
	}
}

func TestIssueEventsClosedUnmergedPullRequest(t *testing.T) {
	issue := ghIssue(9, "closed")
	issue.PullRequestLinks = &github.PullRequestLinks{URL: github.String("https://api.github.com/repos/acme/widgets/pulls/9")}
	pr := &github.PullRequest{
		Merged: github.Bool(false),
		Base:   &github.PullRequestBranch{Ref: github.String("main")},
		Head:   &github.PullRequestBranch{Ref: github.String("stale")},
	}

	events := IssueEvents("acme/widgets", issue, pr)
	last := events[len(events)-1]
	if last.Type != event.TypePullRequestCanceled {
		t.Fatalf("expected pullrequest.canceled, got %q", last.Type)
	}
}

func TestCommentEvents(t *testing.T) {
	commentedAt := time.Date(2023, 6, 2, 11, 0, 0, 0, time.UTC)
	comment := &github.IssueComment{
		ID:        github.Int64(42),
		Body:      github.String("same here"),
		User:      &github.User{Login: github.String("bob")},
		CreatedAt: &github.Timestamp{Time: commentedAt},
	}
	reactions := []*github.Reaction{
		{User: &github.User{Login: github.String("carol")}, Content: github.String("+1")},
		{User: &github.User{Login: github.String("dave")}, Content: github.String("heart")},
		{Content: github.String("+1")}, // anonymous, dropped
	}

	events := CommentEvents("acme/widgets", 7, comment, reactions)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != event.TypeCommentCreated {
		t.Fatalf("expected comment.created, got %q", events[0].Type)
	}

	var created event.CommentCreatedPayload
	if err := json.Unmarshal(events[0].PayloadJSON, &created); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if created.CommentID != "ghc:42" || created.Text != "same here" {
		t.Fatalf("unexpected payload: %+v", created)
	}
	if !events[0].Timestamp.Equal(commentedAt) {
		t.Fatalf("comment timestamp = %v, want %v", events[0].Timestamp, commentedAt)
	}

	var reaction event.ReactionPayload
	if err := json.Unmarshal(events[1].PayloadJSON, &reaction); err != nil {
		t.Fatalf("unmarshal reaction: %v", err)
	}
	if reaction.Emoji != "+1" || events[1].ActorID != "carol" {
		t.Fatalf("unexpected reaction: %+v actor=%q", reaction, events[1].ActorID)
	}
}

func TestCommentEventsSkipsEmptyBody(t *testing.T) {
	comment := &github.IssueComment{ID: github.Int64(43), User: &github.User{Login: github.String("bob")}}
	if events := CommentEvents("acme/widgets", 7, comment, nil); events != nil {
		t.Fatalf("expected nil, got %v", events)
	}
}
