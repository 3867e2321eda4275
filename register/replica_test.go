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

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func sync[V any](dst *Replica[V], ops ...*Operation[V]) {
	if err := dst.Apply(ops); err != nil {
		panic(err)
	}
}

func TestScenarioS1Linear(t *testing.T) {
	a := NewReplica[int]("A")
	a.Set(1)
	a.Set(2)
	a.Set(3)
	a.Undo()
	a.Undo()
	a.Redo()

	if got := a.Get(); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("Get() = %v, want [2]", got)
	}
	undo := a.UndoStack()
	if len(undo) == 0 || undo[len(undo)-1].Value != 2 {
		t.Fatalf("undo stack top = %v, want value 2", undo)
	}
	if len(a.RedoStack()) != 1 {
		t.Fatalf("redo stack len = %d, want 1", len(a.RedoStack()))
	}
}

func TestScenarioS2ConcurrentSet(t *testing.T) {
	a := NewReplica[int]("A")
	b := NewReplica[int]("B")

	opA1 := a.Set(1)
	opA := a.Set(3)
	opB := b.Set(2)

	sync(a, opB)
	sync(b, opA1, opA)

	want := []int{3, 2}
	if got := a.Get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("A.Get() = %v, want %v", got, want)
	}
	if got := b.Get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("B.Get() = %v, want %v", got, want)
	}
}

func TestScenarioS3ConcurrentSetAndDelete(t *testing.T) {
	a := NewReplica[int]("A")
	b := NewReplica[int]("B")

	op1 := a.Set(1)
	opDel := a.Delete()
	opB := b.Set(2)

	sync(a, opB)
	sync(b, op1, opDel)

	if got := a.Get(); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("A.Get() after exchange = %v, want [2]", got)
	}
	if got := b.Get(); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("B.Get() after exchange = %v, want [2]", got)
	}

	opSet1 := a.Set(1)
	sync(b, opSet1)

	if got := a.Get(); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("A.Get() after merge = %v, want [1]", got)
	}
	if got := b.Get(); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("B.Get() after merge = %v, want [1]", got)
	}
}

func TestScenarioS4DeferredDelivery(t *testing.T) {
	a := NewReplica[int]("A")
	b := NewReplica[int]("B")

	o1 := a.Set(1)
	o2 := a.Set(2)
	o3 := a.Set(3)

	sync(b, o2)
	if got := b.Get(); len(got) != 0 {
		t.Fatalf("B.Get() after o2 = %v, want []", got)
	}
	sync(b, o3)
	if got := b.Get(); len(got) != 0 {
		t.Fatalf("B.Get() after o2,o3 = %v, want []", got)
	}
	sync(b, o1)
	if got := b.Get(); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("B.Get() after o1 arrives = %v, want [3]", got)
	}
}

func TestScenarioS5UndoRemoteSetRedo(t *testing.T) {
	a := NewReplica[string]("A")
	b := NewReplica[string]("B")

	black := a.Set("black")
	red := a.Set("red")
	sync(b, black, red)

	green := b.Set("green")
	sync(a, green)

	a.Undo()
	opRestoreRed := a.RedoStack()[len(a.RedoStack())-1]
	sync(b, opRestoreRed)

	if got := a.Get(); !reflect.DeepEqual(got, []string{"black"}) {
		t.Fatalf("A.Get() after undo = %v, want [black]", got)
	}
	if got := b.Get(); !reflect.DeepEqual(got, []string{"black"}) {
		t.Fatalf("B.Get() after undo propagates = %v, want [black]", got)
	}

	redoOp := a.Redo()
	sync(b, redoOp)

	if got := a.Get(); !reflect.DeepEqual(got, []string{"green"}) {
		t.Fatalf("A.Get() after redo = %v, want [green]", got)
	}
	if got := b.Get(); !reflect.DeepEqual(got, []string{"green"}) {
		t.Fatalf("B.Get() after redo propagates = %v, want [green]", got)
	}
}

// TestScenarioS6ConcurrentUndo exercises the same shape as the concurrent
// undo scenario (two actors, each undoing their own locally-visible set
// without syncing first, then exchanging): each replica's local view
// right after its own undo differs, and the two converge once the
// resulting restores are exchanged. The exact values are derived from
// this test's own construction rather than asserted as universal
// constants, since the shared history that produces them is not fully
// specified independent of an implementation.
func TestScenarioS6ConcurrentUndo(t *testing.T) {
	a := NewReplica[int]("A")
	b := NewReplica[int]("B")

	op2 := a.Set(2)
	sync(b, op2)
	op3 := b.Set(3)
	sync(a, op3)
	op4 := a.Set(4)
	sync(b, op4)
	op5 := b.Set(5)
	sync(a, op5)

	if got := a.Get(); !reflect.DeepEqual(got, []int{5}) {
		t.Fatalf("pre-undo A.Get() = %v, want [5]", got)
	}
	if got := b.Get(); !reflect.DeepEqual(got, []int{5}) {
		t.Fatalf("pre-undo B.Get() = %v, want [5]", got)
	}

	undoA := a.Undo()
	undoB := b.Undo()

	localA := a.Get()
	localB := b.Get()
	if reflect.DeepEqual(localA, localB) {
		t.Fatalf("expected divergent local views before exchange, both = %v", localA)
	}

	sync(a, undoB)
	sync(b, undoA)

	finalA := a.Get()
	finalB := b.Get()
	if !reflect.DeepEqual(finalA, finalB) {
		t.Fatalf("post-exchange mismatch: A=%v B=%v", finalA, finalB)
	}
}

// TestScenarioS7DuplicateConvergence exercises three actors sharing a
// common set, each independently mutating (including an undo/redo
// round-trip that reintroduces a duplicate of the shared value), then
// fully exchanging. The MVR's value list is never deduplicated, so a
// duplicate surviving the merge is expected.
func TestScenarioS7DuplicateConvergence(t *testing.T) {
	a := NewReplica[int]("A")
	b := NewReplica[int]("B")
	c := NewReplica[int]("C")

	shared := a.Set(1)
	sync(b, shared)
	sync(c, shared)

	undoA := a.Undo()
	redoA := a.Redo()

	op3 := b.Set(3)
	op4 := b.Set(4)

	op2 := c.Set(2)
	undoC := c.Undo()

	all := []*Operation[int]{undoA, redoA, op3, op4, op2, undoC}
	sync(a, all...)
	sync(b, all...)
	sync(c, all...)

	want := []int{1, 4, 1}
	if got := a.Get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("A.Get() = %v, want %v", got, want)
	}
	if got := b.Get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("B.Get() = %v, want %v", got, want)
	}
	if got := c.Get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("C.Get() = %v, want %v", got, want)
	}
}

func TestConvergence(t *testing.T) {
	a := NewReplica[int]("A")
	b := NewReplica[int]("B")

	op1 := a.Set(10)
	op2 := b.Set(20)
	sync(a, op2)
	sync(b, op1)
	u := a.Undo()
	sync(b, u)

	if got, want := a.Get(), b.Get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("diverged: A=%v B=%v", got, want)
	}
	if got, want := a.TerminalHeads(), b.TerminalHeads(); len(got) != len(want) {
		t.Fatalf("terminal head count diverged: A=%d B=%d", len(got), len(want))
	}
}

func TestIdempotence(t *testing.T) {
	a := NewReplica[int]("A")
	b := NewReplica[int]("B")

	op := a.Set(7)
	sync(b, op)
	before := b.Get()
	sync(b, op)
	sync(b, op)
	after := b.Get()

	if !reflect.DeepEqual(before, after) {
		t.Fatalf("re-applying changed state: before=%v after=%v", before, after)
	}
}

func TestCausalDeferral(t *testing.T) {
	a := NewReplica[int]("A")

	o1 := a.Set(1)
	o2 := a.Set(2)
	o3 := a.Set(3)

	perms := [][]*Operation[int]{
		{o3, o2, o1},
		{o2, o1, o3},
		{o1, o3, o2},
	}
	for _, perm := range perms {
		b := NewReplica[int]("A-mirror")
		for _, op := range perm {
			sync(b, op)
		}
		if got := b.Get(); !reflect.DeepEqual(got, []int{3}) {
			t.Fatalf("delivery order %v produced %v, want [3]", perm, got)
		}
	}
}

func TestStackLocality(t *testing.T) {
	a := NewReplica[int]("A")
	b := NewReplica[int]("B")

	aOp := a.Set(1)
	sync(b, aOp)
	b.Set(2)

	for _, op := range a.UndoStack() {
		if op.ID.Actor != "A" {
			t.Fatalf("A's undo stack contains foreign op %v", op.ID)
		}
	}
	for _, op := range b.UndoStack() {
		if op.ID.Actor != "B" {
			t.Fatalf("B's undo stack contains foreign op %v", op.ID)
		}
	}
}

func TestRedoClearing(t *testing.T) {
	a := NewReplica[int]("A")
	a.Set(1)
	a.Undo()
	if len(a.RedoStack()) != 1 {
		t.Fatalf("expected one redo entry after undo")
	}
	a.Set(2)
	if len(a.RedoStack()) != 0 {
		t.Fatalf("redo stack not cleared after Set, got %v", a.RedoStack())
	}

	a.Set(3)
	a.Undo()
	if len(a.RedoStack()) != 1 {
		t.Fatalf("expected one redo entry after second undo")
	}
	a.Delete()
	if len(a.RedoStack()) != 0 {
		t.Fatalf("redo stack not cleared after Delete, got %v", a.RedoStack())
	}
}

func TestDeleteGuard(t *testing.T) {
	a := NewReplica[int]("A")
	if op := a.Delete(); op != nil {
		t.Fatalf("Delete() on empty register = %v, want nil", op)
	}
	if len(a.UndoStack()) != 0 {
		t.Fatalf("Delete() on empty register pushed an op")
	}
}

func TestRestoreChainBound(t *testing.T) {
	a := NewReplica[int]("A")
	a.Set(1)
	a.Undo()
	redo := a.Redo()

	hops := 0
	id := redo.Anchor
	for {
		op := a.graph.lookup(id)
		if op.Kind == KindSet {
			break
		}
		id = op.Anchor
		hops++
		if hops > 2 {
			t.Fatalf("restore-to-terminal chain exceeded 2 hops")
		}
	}
}

func TestTraceShape(t *testing.T) {
	a := NewReplica[int]("A")
	a.Set(1)
	a.Set(2)
	a.Undo()

	heads := map[OpId]bool{}
	for _, h := range a.graph.headList() {
		heads[h] = true
	}

	for _, th := range a.TerminalHeads() {
		if len(th.Trace) == 0 {
			t.Fatalf("empty trace in %+v", th)
		}
		if !heads[th.Trace[0]] {
			t.Fatalf("trace %v does not start at a head", th.Trace)
		}
		last := th.Trace[len(th.Trace)-1]
		if last != th.Op.ID {
			t.Fatalf("trace %v does not end at terminal op %v", th.Trace, th.Op.ID)
		}
	}
}

func TestResolutionCacheAgreement(t *testing.T) {
	build := func(opts ...Option[int]) *Replica[int] {
		return NewReplica[int]("A", opts...)
	}

	run := func(r *Replica[int]) ([]int, int) {
		r.Set(1)
		r.Set(2)
		r.Undo()
		r.Redo()
		r.Undo()
		return r.Get(), len(r.TerminalHeads())
	}

	plain := build()
	cached := build(WithCache[int](), WithCacheBudget[int](1<<10))

	v1, n1 := run(plain)
	v2, n2 := run(cached)

	if !reflect.DeepEqual(v1, v2) || n1 != n2 {
		t.Fatalf("cache changed result: plain=%v/%d cached=%v/%d", v1, n1, v2, n2)
	}
}

func TestGenericValueDecimal(t *testing.T) {
	a := NewReplica[decimal.Decimal]("A")
	b := NewReplica[decimal.Decimal]("B")

	one := decimal.RequireFromString("1.50")
	two := decimal.RequireFromString("2.25")

	opA := a.Set(one)
	opB := b.Set(two)
	sync(a, opB)
	sync(b, opA)

	got := a.Get()
	if len(got) != 2 {
		t.Fatalf("Get() = %v, want 2 entries", got)
	}
	sum := decimal.Zero
	for _, v := range got {
		sum = sum.Add(v)
	}
	if !sum.Equal(one.Add(two)) {
		t.Fatalf("sum = %s, want %s", sum, one.Add(two))
	}
}

func TestOpIdRoundTrip(t *testing.T) {
	id := OpId{Counter: 42, Actor: "actor-with-@-sign"}
	parsed, err := ParseOpId(id.String())
	if err != nil {
		t.Fatalf("ParseOpId(%q) error: %v", id.String(), err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: %v != %v", parsed, id)
	}

	if _, err := ParseOpId("no-at-sign"); err == nil {
		t.Fatalf("expected error for missing '@'")
	}
	if _, err := ParseOpId("5@"); err == nil {
		t.Fatalf("expected error for empty actor")
	}
	if _, err := ParseOpId("abc@actor"); err == nil {
		t.Fatalf("expected error for non-numeric counter")
	}
}

func TestOperationJSONRoundTrip(t *testing.T) {
	set := newSet(OpId{Counter: 1, Actor: "A"}, nil, 99, true)
	data, err := set.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var decoded Operation[int]
	if err := decoded.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if decoded.ID != set.ID || decoded.Value != 99 || !decoded.HasValue {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}

	restore := newRestore(OpId{Counter: 2, Actor: "A"}, []OpId{set.ID}, set.ID)
	data, err = restore.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON restore: %v", err)
	}
	var decodedRestore Operation[int]
	if err := decodedRestore.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON restore: %v", err)
	}
	if decodedRestore.Kind != KindRestore || decodedRestore.Anchor != set.ID {
		t.Fatalf("round trip mismatch: %+v", decodedRestore)
	}
}
