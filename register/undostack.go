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
package register

// actorStacks holds one actor's own undo/redo history. Both stacks only
// ever contain operations this actor itself authored (enforced by
// construction: only Replica.Set/Delete/Undo/Redo push onto them, and
// those are the only places that generate this actor's operations).
type actorStacks[V any] struct {
	undo []*Operation[V] // terminal Set/Delete ops, and resolved redo anchors
	redo []*Operation[V] // Restore ops emitted by Undo
}

func newActorStacks[V any]() *actorStacks[V] {
	return &actorStacks[V]{}
}

func (s *actorStacks[V]) pushUndo(op *Operation[V]) {
	s.undo = append(s.undo, op)
}

func (s *actorStacks[V]) popUndo() (*Operation[V], bool) {
	if len(s.undo) == 0 {
		return nil, false
	}
	n := len(s.undo) - 1
	op := s.undo[n]
	s.undo = s.undo[:n]
	return op, true
}

func (s *actorStacks[V]) pushRedo(op *Operation[V]) {
	s.redo = append(s.redo, op)
}

func (s *actorStacks[V]) popRedo() (*Operation[V], bool) {
	if len(s.redo) == 0 {
		return nil, false
	}
	n := len(s.redo) - 1
	op := s.redo[n]
	s.redo = s.redo[:n]
	return op, true
}

func (s *actorStacks[V]) clearRedo() {
	s.redo = nil
}

// snapshot returns copies so callers cannot mutate engine state through
// the slices returned by Replica.UndoStack/RedoStack.
func snapshot[V any](stack []*Operation[V]) []*Operation[V] {
	out := make([]*Operation[V], len(stack))
	copy(out, stack)
	return out
}

// resolveToTerminal follows a chain of Restore anchors down to the
// terminal Set they ultimately revert to (§4.6). By the stack discipline
// in Replica.Redo, this converges within two hops: a redo's anchor is
// always a Restore emitted by a prior Undo, whose own anchor is a Set.
func resolveToTerminal[V any](g *graphStore[V], start OpId) *Operation[V] {
	id := start
	for {
		op := g.lookup(id)
		if op == nil {
			panic(&InvariantViolationError{Anchor: id})
		}
		if op.Kind == KindSet {
			return op
		}
		id = op.Anchor
	}
}
