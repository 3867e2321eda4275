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
package replication

import (
	"log"

	"github.com/jtolds/gls"
)

// mgr tags every per-peer goroutine with its session id and remote address,
// the same goroutine-local-storage idiom the teacher uses in storage/scan.go
// and storage/partition.go (gls.Go spawning worker goroutines), applied here
// to logging instead of to a shard worker pool.
var mgr = gls.NewContextManager()

const (
	ctxKeyPeerID = "peer_id"
	ctxKeyRemote = "peer_remote"
)

func withPeerContext(id, remote string, fn func()) {
	mgr.SetValues(gls.Values{ctxKeyPeerID: id, ctxKeyRemote: remote}, fn)
}

func logf(format string, args ...any) {
	id, _ := mgr.GetValue(ctxKeyPeerID)
	remote, _ := mgr.GetValue(ctxKeyRemote)
	if id == nil {
		log.Printf(format, args...)
		return
	}
	log.Printf("[peer %v %v] "+format, append([]any{id, remote}, args...)...)
}
