/*
Copyright (C) 2026  Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package register implements the replicated multi-value register with
// local undo/redo described in the project's design documents: a
// Lamport-ordered operation graph, a causal-readiness lobby, an MVR
// resolver that walks heads through Restore operations to terminal Sets,
// and per-actor undo/redo stacks that never touch another actor's
// operations.
//
// The package is deliberately a dependency-free library: wire transport,
// durable persistence and any higher-level data type built on top of the
// register all live outside it, in sibling packages.
package register

// Replica is the engine's single exported type: one actor's view of the
// replicated register, plus that actor's own undo/redo history.
//
// A Replica is not safe for concurrent use. Its methods form a single
// synchronous call chain (admit -> resolve -> update register -> drain
// lobby, per the design notes); callers that feed it from more than one
// goroutine (a transport reader and a local UI, say) must serialize their
// calls themselves, the way the rest of this module's packages funnel
// concurrent input through a single apply-loop goroutine.
type Replica[V any] struct {
	actor string

	clock    *lamportClock
	graph    *graphStore[V]
	lobby    *lobby[V]
	cache    *resolutionCache[V]
	resolver *resolver[V]
	stacks   *actorStacks[V]

	values []TerminalHead[V] // last resolved terminal-head list

	broadcast func(*Operation[V])

	useCache    bool
	cacheBudget int64
}

// Option configures a Replica at construction time.
type Option[V any] func(*Replica[V])

// WithCache enables the resolution cache (§4.7): memoised terminal-head
// lists for Restore nodes, keyed by their own OpId.
func WithCache[V any]() Option[V] {
	return func(r *Replica[V]) { r.useCache = true }
}

// WithCacheBudget overrides the resolution cache's eviction budget, in
// estimated bytes of retained trace memory. Only meaningful together with
// WithCache.
func WithCacheBudget[V any](bytes int64) Option[V] {
	return func(r *Replica[V]) { r.cacheBudget = bytes }
}

// WithBroadcast registers a fire-and-forget hook invoked with every
// operation this Replica locally originates (Set/Delete/Undo/Redo). The
// journal and replication packages use this to persist and propagate
// local operations without the engine importing either.
func WithBroadcast[V any](fn func(*Operation[V])) Option[V] {
	return func(r *Replica[V]) { r.broadcast = fn }
}

// NewReplica creates an empty replica for the given actor id.
func NewReplica[V any](actor string, opts ...Option[V]) *Replica[V] {
	r := &Replica[V]{
		actor:  actor,
		clock:  newLamportClock(actor),
		graph:  newGraphStore[V](),
		lobby:  newLobby[V](),
		stacks: newActorStacks[V](),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = newResolutionCache[V](r.useCache, r.cacheBudget)
	r.resolver = newResolver(r.graph, r.cache)
	r.refresh()
	return r
}

// Apply admits a batch of operations, local or remote. Nil entries are
// skipped. Applying an already-applied OpId is a silent no-op
// (idempotence); an operation whose predecessors are missing is deferred
// to the lobby until they arrive. The only error this can return is
// InvariantViolationError, surfaced when a Restore's anchor cannot be
// found in the applied set at resolution time.
func (r *Replica[V]) Apply(ops []*Operation[V]) error {
	for _, op := range ops {
		if err := r.applyOne(op); err != nil {
			return err
		}
	}
	return nil
}

func (r *Replica[V]) applyOne(op *Operation[V]) error {
	if op == nil {
		return nil
	}
	if r.graph.isApplied(op.ID) {
		return nil // AlreadyApplied: silent
	}
	if !r.graph.ready(op) {
		r.lobby.hold(op) // NotCausallyReady: silent
		return nil
	}
	return r.admit(op)
}

// admit inserts op, re-resolves the register, and drains the lobby to a
// fixed point. It recovers an InvariantViolationError panicked out of the
// resolver and returns it as a normal error, matching this package's
// policy of panicking deep inside a component and recovering at the
// outer entry point.
func (r *Replica[V]) admit(op *Operation[V]) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = e
				return
			}
			panic(rec)
		}
	}()

	r.insertAndRefresh(op)
	r.lobby.drain(r.graph, func(ready *Operation[V]) {
		r.insertAndRefresh(ready)
	})
	return nil
}

func (r *Replica[V]) insertAndRefresh(op *Operation[V]) {
	r.graph.insert(op)
	r.clock.Sync(op.ID.Counter)
	r.refresh()
}

func (r *Replica[V]) refresh() {
	r.values = r.resolver.resolve(r.graph.headList())
}

// Get returns the MVR's current ordered values. A delete contributes no
// value; concurrently-held values may repeat a duplicate terminal set
// reached via more than one resolution path (never deduplicated).
func (r *Replica[V]) Get() []V {
	out := make([]V, 0, len(r.values))
	for _, t := range r.values {
		if t.Op.HasValue {
			out = append(out, t.Op.Value)
		}
	}
	return out
}

// TerminalHeads returns the resolver's full output for the current
// heads: introspection for tests and benchmarks.
func (r *Replica[V]) TerminalHeads() []TerminalHead[V] {
	out := make([]TerminalHead[V], len(r.values))
	copy(out, r.values)
	return out
}

// Set generates a Set operation, applies it locally, pushes it onto this
// actor's undo stack, clears the redo stack, and returns it for
// broadcast.
func (r *Replica[V]) Set(value V) *Operation[V] {
	op := newSet(r.clock.Tick(), r.graph.headList(), value, true)
	r.admitLocal(op)
	r.stacks.pushUndo(op)
	r.stacks.clearRedo()
	return op
}

// Delete is Set-with-no-value. It is a no-op (returns nil, no operation
// is generated) when the register currently holds no values.
func (r *Replica[V]) Delete() *Operation[V] {
	if len(r.Get()) == 0 {
		return nil
	}
	var zero V
	op := newSet(r.clock.Tick(), r.graph.headList(), zero, false)
	r.admitLocal(op)
	r.stacks.pushUndo(op)
	r.stacks.clearRedo()
	return op
}

// Undo pops this actor's undo stack and emits a Restore anchored at the
// popped operation, pushing that Restore onto the redo stack. Returns
// nil if the undo stack is empty.
func (r *Replica[V]) Undo() *Operation[V] {
	anchor, ok := r.stacks.popUndo()
	if !ok {
		return nil
	}
	op := newRestore(r.clock.Tick(), r.graph.headList(), anchor.ID)
	r.admitLocal(op)
	r.stacks.pushRedo(op)
	return op
}

// Redo pops this actor's redo stack and emits a new Restore anchored at
// the popped Restore, resolving it down to its terminal Set (§4.6) and
// pushing that terminal onto the undo stack so the next Undo reverts the
// just-redone value. Returns nil if the redo stack is empty.
func (r *Replica[V]) Redo() *Operation[V] {
	prior, ok := r.stacks.popRedo()
	if !ok {
		return nil
	}
	op := newRestore(r.clock.Tick(), r.graph.headList(), prior.ID)
	r.admitLocal(op)
	terminal := resolveToTerminal(r.graph, op.Anchor)
	r.stacks.pushUndo(terminal)
	return op
}

func (r *Replica[V]) admitLocal(op *Operation[V]) {
	if err := r.applyOne(op); err != nil {
		// A freshly generated op's preds are exactly the current heads
		// and its Restore anchors (if any) are always this actor's own
		// already-applied operations: this branch indicates a bug in
		// operation generation, not a legitimate runtime condition.
		panic(err)
	}
	if r.broadcast != nil {
		r.broadcast(op)
	}
}

// UndoStack returns a snapshot of this actor's undo stack, oldest first.
func (r *Replica[V]) UndoStack() []*Operation[V] {
	return snapshot(r.stacks.undo)
}

// RedoStack returns a snapshot of this actor's redo stack, oldest first.
func (r *Replica[V]) RedoStack() []*Operation[V] {
	return snapshot(r.stacks.redo)
}

// Actor returns this replica's actor id.
func (r *Replica[V]) Actor() string {
	return r.actor
}
