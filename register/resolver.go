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

// TerminalHead is one resolved path from a head down to a terminal Set
// operation, with the trace of OpIds visited along the way.
type TerminalHead[V any] struct {
	Op    *Operation[V]
	Trace []OpId
	Depth int
}

// resolver walks the operation graph from the current heads through
// Restore operations down to terminal Set operations. It is the
// centrepiece of the engine: the register's visible value list is always
// exactly resolve(graph.headList()) projected onto present values.
type resolver[V any] struct {
	graph *graphStore[V]
	cache *resolutionCache[V]
}

func newResolver[V any](g *graphStore[V], c *resolutionCache[V]) *resolver[V] {
	return &resolver[V]{graph: g, cache: c}
}

// resolve computes the ordered terminal-head list for the given heads,
// sorted descending by the opIdTrace comparator with ties resolved by
// stable-sort insertion order.
func (r *resolver[V]) resolve(heads []OpId) []TerminalHead[V] {
	var results []TerminalHead[V]
	for _, h := range heads {
		results = append(results, r.walk(h, nil, 0)...)
	}
	stableSortDescending(results)
	return results
}

// walk resolves a single node reached via trace/depth (the path taken to
// get here, not yet including opId). It returns the full, reconstructed
// terminal-head list: every returned Trace starts at the original head.
func (r *resolver[V]) walk(opId OpId, trace []OpId, depth int) []TerminalHead[V] {
	newTrace := appendOpId(trace, opId)
	newDepth := depth + 1

	op := r.graph.lookup(opId)
	if op == nil {
		panic(&InvariantViolationError{Anchor: opId})
	}

	if op.Kind == KindSet {
		return []TerminalHead[V]{{Op: op, Trace: newTrace, Depth: newDepth}}
	}

	// Restore: resolve relative to this restore node (cached by its own
	// OpId), then splice the relative result onto our own prefix so every
	// returned trace remains a full head-to-terminal path.
	rel := r.resolveRestoreRelative(op)
	out := make([]TerminalHead[V], 0, len(rel))
	for _, c := range rel {
		out = append(out, TerminalHead[V]{
			Op:    c.Op,
			Trace: append(append([]OpId{}, trace...), c.Trace...),
			Depth: depth + c.Depth,
		})
	}
	return out
}

// resolveRestoreRelative returns the terminal-head list for a Restore op
// as if the Restore were itself the head of its own resolution: every
// returned Trace starts with r.ID. This is exactly what gets memoised in
// the resolution cache (§4.7), so a cache hit anywhere in the graph that
// reaches the same Restore can splice in the identical relative result.
func (r *resolver[V]) resolveRestoreRelative(restore *Operation[V]) []TerminalHead[V] {
	if cached, ok := r.cache.get(restore.ID); ok {
		return cached
	}

	// The lobby admits a Restore once its Preds are applied and never looks
	// at its Anchor, so a Restore whose anchor is unknown is not deferred;
	// a missing anchor is only detected here, at resolution time.
	anchor := r.graph.lookup(restore.Anchor)
	if anchor == nil {
		panic(&InvariantViolationError{Restore: restore.ID, Anchor: restore.Anchor})
	}

	var out []TerminalHead[V]
	for _, p := range anchor.Preds {
		out = append(out, r.walk(p, []OpId{restore.ID}, 1)...)
	}
	r.cache.put(restore.ID, out)
	return out
}

func appendOpId(trace []OpId, id OpId) []OpId {
	out := make([]OpId, len(trace)+1)
	copy(out, trace)
	out[len(trace)] = id
	return out
}

// compareTraces implements the opIdTrace comparator (§4.4): compare
// element-wise over the shared prefix; if that prefix is fully equal the
// traces are equal for sorting purposes regardless of length. This
// coarser-than-lexicographic rule is what makes splicing a
// cache-truncated trace into a longer reconstructed trace sound: once the
// overlapping region matches, the two are indistinguishable to the sort.
func compareTraces(a, b []OpId) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// stableSortDescending sorts results so the largest OpId at the earliest
// differing trace position comes first, preserving insertion order among
// ties (insertion sort is naturally stable and results lists are small
// relative to the whole operation graph).
func stableSortDescending[V any](results []TerminalHead[V]) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && compareTraces(results[j].Trace, results[j-1].Trace) > 0; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
