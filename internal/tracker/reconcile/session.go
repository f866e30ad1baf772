// Package reconcile implements the optimistic-update protocol between a
// client-held projection and the authoritative event store.
//
// A Session owns one work item's view: the last-confirmed event log plus a
// queue of speculative event groups for in-flight commands. Commands apply
// to the local projection immediately; when the store acknowledges, the
// speculative group is replaced by the canonical events and the projection
// is re-derived from the full authoritative order. On failure the group is
// discarded and the projection reverts, leaving no residue.
//
// A Session is owned by a single view; it is not safe for concurrent use.
package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/quarryforge/quarry/internal/errors"
	"github.com/quarryforge/quarry/internal/id"
	"github.com/quarryforge/quarry/internal/tracker/domain/command"
	"github.com/quarryforge/quarry/internal/tracker/domain/event"
	"github.com/quarryforge/quarry/internal/tracker/domain/workitem"
	"github.com/quarryforge/quarry/internal/tracker/storage"
)

// Status tracks the lifecycle of one in-flight command.
type Status string

const (
	// StatusPending means the command applied speculatively and awaits the
	// store's acknowledgement.
	StatusPending Status = "pending"
	// StatusConfirmed means the canonical events replaced the speculative
	// ones.
	StatusConfirmed Status = "confirmed"
	// StatusFailed means the speculative events were discarded.
	StatusFailed Status = "failed"
)

// Pending is the handle for one speculatively applied command.
type Pending struct {
	// Command is the staged command; revalidation re-decides it.
	Command command.Command
	// Events are the speculative events (local ids, client timestamps,
	// zero Seq) until confirmation replaces them.
	Events []event.Event

	status Status
	reason *command.Rejection
}

// Status reports the current reconciliation state of the command.
func (p *Pending) Status() Status {
	return p.status
}

// Reason returns the rejection that failed the command during revalidation,
// if any.
func (p *Pending) Reason() *command.Rejection {
	return p.reason
}

// Session reconciles one work item's local projection with the event store.
type Session struct {
	store      storage.EventStore
	workItemID string

	confirmed   []event.Event
	speculative []*Pending
	state       workitem.State

	now   func() time.Time
	newID func() (string, error)
}

// NewSession creates a session for one work item. The store may be nil when
// the caller drives Confirm and Fail itself.
func NewSession(store storage.EventStore, workItemID string) *Session {
	return &Session{
		store:      store,
		workItemID: workItemID,
		now:        time.Now,
		newID:      id.New,
	}
}

// WithClock overrides the speculative timestamp source. Intended for tests.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// Seed replaces the confirmed log with events fetched elsewhere and
// re-derives the projection. Any speculative state is discarded.
func (s *Session) Seed(events []event.Event) {
	s.confirmed = append([]event.Event(nil), events...)
	s.speculative = nil
	s.refold()
}

// Refresh refetches the authoritative log from the store. Pending commands
// are revalidated against the refreshed projection.
func (s *Session) Refresh(ctx context.Context) error {
	if s.store == nil {
		return errors.New(errors.CodeStoreFailure, "event store is not configured")
	}
	events, err := s.store.ListEvents(ctx, s.workItemID, 0, 0)
	if err != nil {
		return errors.Wrap(errors.CodeStoreFailure, "fetch events", err)
	}
	s.confirmed = events
	s.refold()
	return nil
}

// Projection returns the current local projection: the fold of the
// confirmed log plus all speculative events in staging order.
func (s *Session) Projection() workitem.State {
	return s.state
}

// Confirmed returns the projection derived from confirmed events only.
func (s *Session) Confirmed() workitem.State {
	return workitem.Reduce(s.confirmed)
}

// Stage validates a command against the local projection and, when
// accepted, applies its events speculatively. The returned handle resolves
// through Confirm or Fail.
func (s *Session) Stage(cmd command.Command) (*Pending, error) {
	if cmd.WorkItemID == "" {
		cmd.WorkItemID = s.workItemID
	}

	decision := workitem.Decide(s.state, cmd, s.now)
	if decision.Rejected() {
		rejection := decision.Rejections[0]
		return nil, errors.Validation(rejection.Code, rejection.Message)
	}

	events, err := s.localize(decision.Events)
	if err != nil {
		return nil, err
	}
	pending := &Pending{Command: cmd, Events: events, status: StatusPending}
	s.speculative = append(s.speculative, pending)
	for _, evt := range events {
		s.state = workitem.Fold(s.state, evt)
	}
	return pending, nil
}

// Confirm replaces a pending command's speculative events with the
// store-acknowledged canonical ones and re-derives the projection from the
// authoritative order. Later pending commands are revalidated: the
// authoritative order may differ from what they were decided against.
func (s *Session) Confirm(pending *Pending, canonical []event.Event) {
	if !s.resolve(pending, StatusConfirmed) {
		return
	}
	pending.Events = append([]event.Event(nil), canonical...)
	s.confirmed = append(s.confirmed, canonical...)
	s.refold()
}

// Fail discards a pending command's speculative events and reverts the
// projection to the last-confirmed state plus remaining speculative
// commands.
func (s *Session) Fail(pending *Pending) {
	if !s.resolve(pending, StatusFailed) {
		return
	}
	s.refold()
}

// Dispatch runs the full optimistic cycle for one command: stage, forward
// to the store, then confirm or roll back. The returned projection reflects
// the authoritative outcome.
func (s *Session) Dispatch(ctx context.Context, cmd command.Command) (workitem.State, error) {
	if s.store == nil {
		return s.state, errors.New(errors.CodeStoreFailure, "event store is not configured")
	}

	pending, err := s.Stage(cmd)
	if err != nil {
		return s.state, err
	}

	canonical, err := s.store.AppendEvents(ctx, s.workItemID, pending.Events)
	if err != nil {
		s.Fail(pending)
		return s.state, errors.Wrap(errors.CodeStoreFailure, "append events", err)
	}
	s.Confirm(pending, canonical)
	return s.state, nil
}

// resolve removes the pending entry from the speculative queue and stamps
// its terminal status. It reports false when the handle is unknown or
// already resolved.
func (s *Session) resolve(pending *Pending, status Status) bool {
	if pending == nil || pending.status != StatusPending {
		return false
	}
	for i, candidate := range s.speculative {
		if candidate == pending {
			s.speculative = append(s.speculative[:i], s.speculative[i+1:]...)
			pending.status = status
			return true
		}
	}
	return false
}

// refold sorts the confirmed log into canonical (Timestamp, Seq) order,
// re-derives the projection, then re-decides every remaining pending command
// in staging order. A pending command the new state rejects is dropped and
// marked failed with the rejection; one still accepted has its speculative
// events regenerated, since the decision may differ against the new state.
func (s *Session) refold() {
	sort.SliceStable(s.confirmed, func(i, j int) bool {
		return s.confirmed[i].Before(s.confirmed[j])
	})
	s.state = workitem.Reduce(s.confirmed)

	remaining := s.speculative[:0]
	for _, pending := range s.speculative {
		decision := workitem.Decide(s.state, pending.Command, s.now)
		if decision.Rejected() {
			rejection := decision.Rejections[0]
			pending.status = StatusFailed
			pending.reason = &rejection
			continue
		}
		events, err := s.localize(decision.Events)
		if err != nil {
			pending.status = StatusFailed
			pending.reason = &command.Rejection{
				Code:    "LOCAL_ID_GENERATION_FAILED",
				Message: err.Error(),
			}
			continue
		}
		pending.Events = events
		for _, evt := range events {
			s.state = workitem.Fold(s.state, evt)
		}
		remaining = append(remaining, pending)
	}
	s.speculative = remaining
}

// localize stamps decided events with provisional local ids. Seq stays zero
// until the store assigns the canonical one.
func (s *Session) localize(events []event.Event) ([]event.Event, error) {
	localized := make([]event.Event, len(events))
	for i, evt := range events {
		localID, err := s.newID()
		if err != nil {
			return nil, errors.Wrap(errors.CodeUnknown, "generate local event id", err)
		}
		evt.ID = "local-" + localID
		localized[i] = evt
	}
	return localized, nil
}
