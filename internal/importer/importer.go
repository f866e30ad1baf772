package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/rs/zerolog"

	"github.com/quarryforge/quarry/internal/tracker/projection"
	"github.com/quarryforge/quarry/internal/tracker/storage"
)

// Importer drives a repository backfill: list, convert, append, project.
type Importer struct {
	GitHub    GitHub
	Events    storage.EventStore
	WorkItems storage.WorkItemStore
	Log       zerolog.Logger
}

// New creates an importer.
func New(gh GitHub, events storage.EventStore, workItems storage.WorkItemStore, log zerolog.Logger) *Importer {
	return &Importer{GitHub: gh, Events: events, WorkItems: workItems, Log: log}
}

// Stats summarizes one import run.
type Stats struct {
	WorkItems int
	Events    int
	Skipped   int
}

// ImportRepository imports all issues and pull requests of owner/repo
// updated since the given time. Work items that already have events are
// skipped; re-import is not incremental per item.
func (imp *Importer) ImportRepository(ctx context.Context, owner, repo string, since time.Time) (Stats, error) {
	var stats Stats
	repositoryID := fmt.Sprintf("%s/%s", owner, repo)

	issues, err := imp.GitHub.ListIssues(ctx, owner, repo, since)
	if err != nil {
		return stats, fmt.Errorf("list issues for %s: %w", repositoryID, err)
	}
	imp.Log.Info().Str("repository", repositoryID).Int("issues", len(issues)).Msg("import started")

	applier := projection.NewApplier(imp.WorkItems)
	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		appended, err := imp.importIssue(ctx, applier, repositoryID, owner, repo, issue)
		if err != nil {
			return stats, err
		}
		if appended == 0 {
			stats.Skipped++
			continue
		}
		stats.WorkItems++
		stats.Events += appended
	}

	imp.Log.Info().
		Str("repository", repositoryID).
		Int("workitems", stats.WorkItems).
		Int("events", stats.Events).
		Int("skipped", stats.Skipped).
		Msg("import finished")
	return stats, nil
}

func (imp *Importer) importIssue(ctx context.Context, applier *projection.Applier, repositoryID, owner, repo string, issue *github.Issue) (int, error) {
	number := issue.GetNumber()
	workItemID := WorkItemID(repositoryID, number)

	seq, err := imp.Events.LatestSeq(ctx, workItemID)
	if err != nil {
		return 0, fmt.Errorf("check %s: %w", workItemID, err)
	}
	if seq > 0 {
		imp.Log.Debug().Str("workitem", workItemID).Msg("already imported; skipping")
		return 0, nil
	}

	var pr *github.PullRequest
	if issue.IsPullRequest() {
		pr, err = imp.GitHub.GetPullRequest(ctx, owner, repo, number)
		if err != nil {
			return 0, fmt.Errorf("get pull request %s: %w", workItemID, err)
		}
	}

	events := IssueEvents(repositoryID, issue, pr)
	if issue.GetComments() > 0 {
		comments, err := imp.GitHub.ListComments(ctx, owner, repo, number)
		if err != nil {
			return 0, fmt.Errorf("list comments for %s: %w", workItemID, err)
		}
		for _, comment := range comments {
			var reactions []*github.Reaction
			if comment.GetReactions().GetTotalCount() > 0 {
				reactions, err = imp.GitHub.ListCommentReactions(ctx, owner, repo, comment.GetID())
				if err != nil {
					return 0, fmt.Errorf("list reactions for %s: %w", workItemID, err)
				}
			}
			events = append(events, CommentEvents(repositoryID, number, comment, reactions)...)
		}
	}

	appended, err := imp.Events.AppendEvents(ctx, workItemID, events)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", workItemID, err)
	}
	if err := applier.Rebuild(ctx, imp.Events, workItemID); err != nil {
		imp.Log.Warn().Err(err).Str("workitem", workItemID).Msg("read model update failed; row can be rebuilt from the log")
	}
	return len(appended), nil
}
