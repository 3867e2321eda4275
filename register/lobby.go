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

// lobby buffers operations whose predecessors have not all been applied
// yet. It is re-scanned to a fixed point every time the graph admits a
// new operation, since admitting one op can make several lobby entries
// ready at once (a burst of out-of-order delivery settling all at once).
type lobby[V any] struct {
	pending map[OpId]*Operation[V]
}

func newLobby[V any]() *lobby[V] {
	return &lobby[V]{pending: make(map[OpId]*Operation[V])}
}

func (l *lobby[V]) hold(op *Operation[V]) {
	if _, ok := l.pending[op.ID]; !ok {
		l.pending[op.ID] = op
	}
}

// drain admits every lobby entry that has become ready, in a fixed-point
// loop: admitting one entry can free up others. admit is called once per
// newly-ready operation, in graph order (see graph.insert); the order in
// which multiple simultaneously-ready entries are admitted is otherwise
// unspecified, as the spec allows, since convergence does not depend on
// it.
func (l *lobby[V]) drain(g *graphStore[V], admit func(*Operation[V])) {
	for {
		var readyOp *Operation[V]
		for id, op := range l.pending {
			if g.ready(op) {
				readyOp = op
				_ = id
				break
			}
		}
		if readyOp == nil {
			return
		}
		delete(l.pending, readyOp.ID)
		admit(readyOp)
	}
}
