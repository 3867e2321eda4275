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
	"strconv"
	"strings"
)

// OpId is a Lamport timestamp: a monotonic per-actor counter plus the
// actor's own id. It is the sole identity of an Operation and totally
// orders the operation graph.
type OpId struct {
	Counter uint64
	Actor   string
}

// Less orders by counter first, breaking ties lexicographically on actor.
func (a OpId) Less(b OpId) bool {
	if a.Counter != b.Counter {
		return a.Counter < b.Counter
	}
	return a.Actor < b.Actor
}

// Compare returns -1, 0 or 1 the way slices.SortFunc comparators expect.
func (a OpId) Compare(b OpId) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

// String is the canonical wire form "counter@actor".
func (id OpId) String() string {
	return strconv.FormatUint(id.Counter, 10) + "@" + id.Actor
}

// ParseOpId parses the canonical "counter@actor" wire form. The actor may
// itself contain "@"; only the first separator is significant.
func ParseOpId(s string) (OpId, error) {
	idx := strings.IndexByte(s, '@')
	if idx < 0 {
		return OpId{}, &MalformedOpIdError{Input: s, Cause: "missing '@'"}
	}
	counterPart, actor := s[:idx], s[idx+1:]
	if actor == "" {
		return OpId{}, &MalformedOpIdError{Input: s, Cause: "empty actor"}
	}
	counter, err := strconv.ParseUint(counterPart, 10, 64)
	if err != nil {
		return OpId{}, &MalformedOpIdError{Input: s, Cause: "counter is not a non-negative integer"}
	}
	return OpId{Counter: counter, Actor: actor}, nil
}

// MarshalJSON encodes an OpId as its canonical wire string.
func (id OpId) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON decodes the canonical wire string form.
func (id *OpId) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseOpId(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// sortOpIds sorts a slice of OpIds ascending, in place, and returns it.
func sortOpIds(ids []OpId) []OpId {
	// insertion sort: predecessor sets are small in practice (one per
	// concurrently-held head at generation time), and this keeps the
	// canonical form deterministic without pulling in sort.Slice's
	// reflection-driven swap for every Operation constructed.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j].Less(ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}
