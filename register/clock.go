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

// lamportClock is a per-replica, per-actor monotonic counter. It never
// advances on its own initiative: Tick only peeks at what the next local
// operation's counter would be, and Sync pulls the counter forward after
// an operation (local or remote) with a higher counter has been applied.
type lamportClock struct {
	actor   string
	counter uint64
}

func newLamportClock(actor string) *lamportClock {
	return &lamportClock{actor: actor}
}

// Tick returns the OpId the next locally-generated operation would carry,
// without incrementing anything. Call Sync after the operation is applied.
func (c *lamportClock) Tick() OpId {
	return OpId{Counter: c.counter + 1, Actor: c.actor}
}

// Sync advances the counter to at least remote, so that operations
// generated after observing remote's effects carry a strictly later OpId.
func (c *lamportClock) Sync(remote uint64) {
	if remote > c.counter {
		c.counter = remote
	}
}
