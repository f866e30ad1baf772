// Package engine drives the authoritative write path: load history, fold,
// decide, append, project. It is the server-side counterpart of the
// optimistic reconcile.Session.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quarryforge/quarry/internal/errors"
	"github.com/quarryforge/quarry/internal/id"
	"github.com/quarryforge/quarry/internal/tracker/domain/command"
	"github.com/quarryforge/quarry/internal/tracker/domain/event"
	"github.com/quarryforge/quarry/internal/tracker/domain/workitem"
	"github.com/quarryforge/quarry/internal/tracker/projection"
	"github.com/quarryforge/quarry/internal/tracker/storage"
)

const tracerName = "quarry/tracker/engine"

// StateProjector receives folded state after a successful append so read
// models can track the log. Projection failures never fail the command; the
// event log is authoritative and rows can be rebuilt.
type StateProjector interface {
	ApplyState(ctx context.Context, workItemID string, state workitem.State, lastSeq uint64) error
}

// Engine validates commands against folded state and appends the resulting
// events.
type Engine struct {
	Events    storage.EventStore
	Projector StateProjector
	Log       zerolog.Logger
	Now       func() time.Time
	NewID     func() (string, error)
}

// New creates an engine with default clock and id generation.
func New(events storage.EventStore, projector StateProjector, log zerolog.Logger) *Engine {
	return &Engine{
		Events:    events,
		Projector: projector,
		Log:       log,
		Now:       time.Now,
		NewID:     id.New,
	}
}

// Dispatch validates and executes one command, returning the projection
// folded over the post-append history.
func (e *Engine) Dispatch(ctx context.Context, cmd command.Command) (workitem.State, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.dispatch",
		trace.WithAttributes(
			attribute.String("command.type", string(cmd.Type)),
			attribute.String("workitem.id", cmd.WorkItemID),
		),
	)
	defer span.End()

	cmd, err := e.normalize(cmd)
	if err != nil {
		return workitem.State{}, err
	}

	state, _, err := projection.Load(ctx, e.Events, cmd.WorkItemID)
	if err != nil {
		return workitem.State{}, errors.Wrap(errors.CodeStoreFailure, "load events", err)
	}

	decision := workitem.Decide(state, cmd, e.Now)
	if decision.Rejected() {
		rejection := decision.Rejections[0]
		e.Log.Debug().
			Str("command", string(cmd.Type)).
			Str("workitem", cmd.WorkItemID).
			Str("code", rejection.Code).
			Msg("command rejected")
		return state, errors.Validation(rejection.Code, rejection.Message)
	}

	canonical, err := e.Events.AppendEvents(ctx, cmd.WorkItemID, decision.Events)
	if err != nil {
		return state, errors.Wrap(errors.CodeStoreFailure, "append events", err)
	}

	var lastSeq uint64
	for _, evt := range canonical {
		state = workitem.Fold(state, evt)
		lastSeq = evt.Seq
	}

	if e.Projector != nil {
		if err := e.Projector.ApplyState(ctx, cmd.WorkItemID, state, lastSeq); err != nil {
			e.Log.Warn().Err(err).
				Str("workitem", cmd.WorkItemID).
				Msg("read model update failed; row can be rebuilt from the log")
		}
	}

	e.Log.Info().
		Str("command", string(cmd.Type)).
		Str("workitem", cmd.WorkItemID).
		Int("events", len(canonical)).
		Uint64("seq", lastSeq).
		Msg("command applied")
	return state, nil
}

// Projection folds and returns a work item's current state.
func (e *Engine) Projection(ctx context.Context, workItemID string) (workitem.State, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.projection",
		trace.WithAttributes(attribute.String("workitem.id", workItemID)),
	)
	defer span.End()

	state, _, err := projection.Load(ctx, e.Events, workItemID)
	if err != nil {
		return workitem.State{}, errors.Wrap(errors.CodeStoreFailure, "load events", err)
	}
	if !state.Created {
		return workitem.State{}, errors.New(errors.CodeNotFound, "work item not found")
	}
	return state, nil
}

// History returns a work item's full event log in canonical order.
func (e *Engine) History(ctx context.Context, workItemID string) ([]event.Event, error) {
	var events []event.Event
	_, err := projection.Replay(ctx, e.Events, workItemID, projection.ReplayOptions{}, func(evt event.Event) error {
		events = append(events, evt)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeStoreFailure, "load events", err)
	}
	if len(events) == 0 {
		return nil, errors.New(errors.CodeNotFound, "work item not found")
	}
	return events, nil
}

// normalize fills in server-generated identifiers: the aggregate id for
// create commands and the comment id for new comments, so deciders always
// see a fully-addressed command.
func (e *Engine) normalize(cmd command.Command) (command.Command, error) {
	newID := e.NewID
	if newID == nil {
		newID = id.New
	}

	switch cmd.Type {
	case workitem.CommandCreateIssue, workitem.CommandCreatePullRequest:
		if cmd.WorkItemID == "" {
			generated, err := newID()
			if err != nil {
				return cmd, errors.Wrap(errors.CodeUnknown, "generate work item id", err)
			}
			cmd.WorkItemID = generated
		}
	case workitem.CommandCreateComment:
		var payload event.CommentCreatedPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		if payload.CommentID == "" {
			generated, err := newID()
			if err != nil {
				return cmd, errors.Wrap(errors.CodeUnknown, "generate comment id", err)
			}
			payload.CommentID = generated
			payloadJSON, _ := json.Marshal(payload)
			cmd.PayloadJSON = payloadJSON
		}
	}

	if cmd.WorkItemID == "" {
		return cmd, errors.New(errors.CodeNotFound, "work item id is required")
	}
	return cmd, nil
}
