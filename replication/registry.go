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
	"sync"

	"github.com/gorilla/websocket"

	NonLockingReadMap "github.com/launix-de/NonLockingReadMap"
)

// connectedPeer is one live websocket connection, registered under its
// session id. Reads happen on a dedicated goroutine; writes are
// mutex-serialized the same way the teacher's websocket send callback in
// scm/network.go guards ws.WriteMessage with a sendmutex.
type connectedPeer struct {
	id      string
	remote  string
	conn    *websocket.Conn
	writeMu *sync.Mutex
}

func newConnectedPeer(id, remote string, conn *websocket.Conn) *connectedPeer {
	return &connectedPeer{id: id, remote: remote, conn: conn, writeMu: &sync.Mutex{}}
}

// GetKey and ComputeSize satisfy NonLockingReadMap.KeyGetter on the value
// type itself (the generic constraint is checked against T, not *T), making
// the hub's peer table a read-optimized structure: broadcasts (frequent
// reads of the full peer set) never block on a connect/disconnect (rare
// writes).
func (p connectedPeer) GetKey() string { return p.id }
func (p connectedPeer) ComputeSize() uint {
	return 64 + uint(len(p.id)) + uint(len(p.remote))
}

func (p *connectedPeer) send(frame []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (p *connectedPeer) close() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.Close()
}

func newPeerRegistry() NonLockingReadMap.NonLockingReadMap[connectedPeer, string] {
	return NonLockingReadMap.New[connectedPeer, string]()
}
