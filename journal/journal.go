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

// Package journal provides pluggable durable persistence for a register
// replica's applied-operation stream, structured exactly like memcp's
// storage.PersistenceEngine: a small interface, several independent
// backends, and a BackendRegistry keyed by name so main.go can select one
// from configuration without the journal package knowing about any of
// them directly.
//
// The unit of persistence is one already-JSON-encoded operation frame; a
// Journal never parses the value type V itself, exactly as FileStorage
// never understands a column's value type. register.Operation[V] owns
// its own wire format (see register/operation.go); this package only
// shuttles bytes. AppendOp/ReplayInto provide the generic, typed
// convenience wrapper around that.
package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/launix-de/replicated-register/register"
)

// Journal is a durable, append-only store of operation frames for one
// replica's stream. Frames are whole JSON documents, one per operation
// (register.Operation[V].MarshalJSON's output).
type Journal interface {
	Append(frame []byte) error
	// Operations replays every previously appended frame, oldest first,
	// over a channel that is closed once replay completes or ctx is
	// cancelled.
	Operations(ctx context.Context) (<-chan []byte, error)
	Sync() error
	Close() error
}

// Factory builds a Journal from its backend-specific JSON configuration.
type Factory func(raw json.RawMessage) (Journal, error)

// BackendRegistry maps a backend name (as selected in config.Settings) to
// its Factory. Backends register themselves from an init() the way
// memcp's persistence backends register into storage.BackendRegistry.
var BackendRegistry = make(map[string]Factory)

// Open looks up name in BackendRegistry and constructs a Journal from
// raw. It panics if name was never registered. Neither config.Load nor
// frontend.Run checks the name against the registry beforehand, so an
// unknown journal_backend setting reaches this panic.
func Open(name string, raw json.RawMessage) (Journal, error) {
	factory, ok := BackendRegistry[name]
	if !ok {
		panic(fmt.Sprintf("journal: backend %q is not registered in this build", name))
	}
	return factory(raw)
}

// AppendOp marshals op through its wire format and appends the resulting
// frame to j.
func AppendOp[V any](j Journal, op *register.Operation[V]) error {
	frame, err := op.MarshalJSON()
	if err != nil {
		return fmt.Errorf("journal: marshal operation: %w", err)
	}
	return j.Append(frame)
}

// ReplayInto replays every frame in j through r.Apply, in the order the
// backend returns them. It is how a Replica is rehydrated at startup.
func ReplayInto[V any](ctx context.Context, j Journal, r *register.Replica[V]) error {
	frames, err := j.Operations(ctx)
	if err != nil {
		return fmt.Errorf("journal: open replay stream: %w", err)
	}
	for frame := range frames {
		var op register.Operation[V]
		if err := op.UnmarshalJSON(frame); err != nil {
			return fmt.Errorf("journal: decode replayed frame: %w", err)
		}
		if err := r.Apply([]*register.Operation[V]{&op}); err != nil {
			return fmt.Errorf("journal: apply replayed operation %s: %w", op.ID, err)
		}
	}
	return nil
}
