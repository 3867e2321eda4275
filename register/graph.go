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

import "github.com/google/btree"

// graphStore is the append-only store of applied operations. It never
// removes an entry once inserted; "removing a head" only means the OpId
// leaves the heads index because something now causally follows it.
//
// heads is kept in a google/btree ordered set (the same structure the
// teacher's storage/index.go builds delta indexes with) rather than a
// plain map, so introspection (TerminalHeads, the CLI's "heads" command)
// gets a stable, sorted enumeration for free instead of re-sorting on
// every call.
type graphStore[V any] struct {
	applied map[OpId]*Operation[V]
	heads   *btree.BTreeG[OpId]
	lastOp  *OpId
}

func newGraphStore[V any]() *graphStore[V] {
	return &graphStore[V]{
		applied: make(map[OpId]*Operation[V]),
		heads:   btree.NewG(32, OpId.Less),
	}
}

func (g *graphStore[V]) isApplied(id OpId) bool {
	_, ok := g.applied[id]
	return ok
}

func (g *graphStore[V]) lookup(id OpId) *Operation[V] {
	return g.applied[id]
}

// ready reports whether every predecessor of op is already applied.
func (g *graphStore[V]) ready(op *Operation[V]) bool {
	for _, p := range op.Preds {
		if !g.isApplied(p) {
			return false
		}
	}
	return true
}

// insert admits an already-ready operation into the graph. Callers (the
// lobby) must have verified readiness and non-duplication first; insert
// does not re-check them, mirroring that the graph store is a dumb,
// trusted arena and the lobby is where causal policy lives.
func (g *graphStore[V]) insert(op *Operation[V]) {
	g.applied[op.ID] = op
	for _, p := range op.Preds {
		g.heads.Delete(p)
	}
	g.heads.ReplaceOrInsert(op.ID)
	if g.lastOp == nil || g.lastOp.Less(op.ID) {
		id := op.ID
		g.lastOp = &id
	}
}

// headList returns the current heads in ascending OpId order.
func (g *graphStore[V]) headList() []OpId {
	out := make([]OpId, 0, g.heads.Len())
	g.heads.Ascend(func(id OpId) bool {
		out = append(out, id)
		return true
	})
	return out
}
