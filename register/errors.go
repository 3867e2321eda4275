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

import "fmt"

// InvariantViolationError means a Restore's anchor could not be resolved
// against the applied set. It indicates the sender broke causal delivery:
// an anchor must always be causally prior to the Restore that names it.
type InvariantViolationError struct {
	Restore OpId
	Anchor  OpId
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("register: restore %s anchors %s which is not applied", e.Restore, e.Anchor)
}

// MalformedOpIdError means an OpId's wire form could not be parsed.
type MalformedOpIdError struct {
	Input string
	Cause string
}

func (e *MalformedOpIdError) Error() string {
	return fmt.Sprintf("register: malformed opid %q: %s", e.Input, e.Cause)
}
