// Package workitem holds the work-item aggregate: the fold that derives
// state from an event log and the deciders that validate commands against
// that state.
//
// A work item is one issue or pull request. Its authoritative record is an
// append-only event log; every displayed fact (title, lifecycle, label sets,
// comment threads, reaction tallies) is a deterministic fold over that log.
//
// # Fold
//
// Fold is total, pure, and incremental: unrecognized event types are no-ops,
// the same sequence always folds to the same state, and folding events one
// at a time equals reducing the sequence in one pass. This is what lets an
// optimistic client apply a speculative event instantly and the server
// re-derive identical state after the store assigns the canonical order.
//
// # Decide
//
// All preconditions live in Decide, which maps (state, command) to either
// events or rejections. The fold never errors; the decider is the only place
// a mutation can be refused.
//
// # Toggle facts
//
// Reactions and conversation resolution are last-writer-wins over opposing
// event pairs, ordered by (Timestamp, Seq). They are computed from marks in
// the folded state, never stored as booleans.
package workitem
