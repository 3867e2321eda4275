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

// Package replication ships Operations between Replicas over websocket
// connections. It never resolves, undoes, or interprets an Operation; it
// only decodes frames off the wire, hands them to Replica.Apply one at a
// time, and re-encodes locally produced Operations for every connected
// peer.
package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jtolds/gls"
	"golang.org/x/sync/errgroup"

	"github.com/launix-de/replicated-register/register"
)

type inboundFrame[V any] struct {
	op *register.Operation[V]
}

// Hub owns one Replica and every websocket connection replicating it. All
// remote Operations funnel through a single apply-loop goroutine so
// Replica.Apply, which is not safe for concurrent callers, only ever sees
// one caller at a time (see the engine's concurrency notes).
type Hub[V any] struct {
	replica *register.Replica[V]
	peers   peerRegistry

	inbound chan inboundFrame[V]
	done    chan struct{}
	closeOnce sync.Once

	upgrader  websocket.Upgrader
	onApplied func(*register.Operation[V])
}

type peerRegistry = interface {
	GetAll() []*connectedPeer
	Set(*connectedPeer) *connectedPeer
	Remove(string) *connectedPeer
}

// Option configures a Hub at construction time.
type Option[V any] func(*Hub[V])

// WithOnApplied registers a callback invoked after a remote Operation has
// been accepted into the Replica, the call site a durable journal should
// hook into for remote-origin ops (see the journal package's broadcast
// wiring contract).
func WithOnApplied[V any](fn func(*register.Operation[V])) Option[V] {
	return func(h *Hub[V]) { h.onApplied = fn }
}

// NewHub starts the Hub's apply-loop goroutine and returns immediately.
func NewHub[V any](replica *register.Replica[V], opts ...Option[V]) *Hub[V] {
	registry := newPeerRegistry()
	h := &Hub[V]{
		replica: replica,
		peers:   &registry,
		inbound: make(chan inboundFrame[V], 64),
		done:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	h.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	for _, opt := range opts {
		opt(h)
	}
	go h.applyLoop()
	return h
}

func (h *Hub[V]) applyLoop() {
	for {
		select {
		case <-h.done:
			return
		case f, ok := <-h.inbound:
			if !ok {
				return
			}
			if err := h.replica.Apply([]*register.Operation[V]{f.op}); err != nil {
				logf("rejecting remote operation %s: %v", f.op.ID, err)
				continue
			}
			if h.onApplied != nil {
				h.onApplied(f.op)
			}
		}
	}
}

// Upgrade promotes an inbound HTTP request to a websocket peer connection,
// the server side of replication, grounded on the single
// websocket.Upgrader call site in the teacher's scm/network.go.
func (h *Hub[V]) Upgrade(w http.ResponseWriter, r *http.Request) (*Peer[V], error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("replication: upgrade: %w", err)
	}
	return h.adopt(conn, r.RemoteAddr), nil
}

// Dial opens the client side of a replication link to another replica's
// Hub.
func (h *Hub[V]) Dial(ctx context.Context, url string) (*Peer[V], error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("replication: dial %s: %w", url, err)
	}
	return h.adopt(conn, url), nil
}

func (h *Hub[V]) adopt(conn *websocket.Conn, remote string) *Peer[V] {
	id := uuid.NewString()
	cp := newConnectedPeer(id, remote, conn)
	h.peers.Set(cp)
	gls.Go(func() {
		withPeerContext(id, remote, func() { h.readLoop(cp) })
	})
	return &Peer[V]{id: id, remote: remote, hub: h}
}

func (h *Hub[V]) readLoop(cp *connectedPeer) {
	defer func() {
		if r := recover(); r != nil {
			logf("panic in replication read loop: %v", r)
		}
		h.peers.Remove(cp.id)
		cp.close()
	}()
	for {
		messageType, msg, err := cp.conn.ReadMessage()
		if err != nil {
			if _, ok := err.(*websocket.CloseError); ok {
				logf("peer disconnected")
			} else {
				logf("read error: %v", err)
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		raw, err := decompressFrame(msg)
		if err != nil {
			logf("dropping malformed frame: %v", err)
			continue
		}
		op := new(register.Operation[V])
		if err := json.Unmarshal(raw, op); err != nil {
			logf("dropping undecodable operation: %v", err)
			continue
		}
		select {
		case h.inbound <- inboundFrame[V]{op: op}:
		case <-h.done:
			return
		}
	}
}

// Broadcast encodes op and writes it to every connected peer concurrently,
// returning the first write error encountered without aborting the others
// — a slow or dead peer never blocks delivery to the rest.
func (h *Hub[V]) Broadcast(op *register.Operation[V]) error {
	raw, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("replication: marshal operation %s: %w", op.ID, err)
	}
	frame := compressFrame(raw)

	var g errgroup.Group
	for _, p := range h.peers.GetAll() {
		p := p
		g.Go(func() error {
			if err := p.send(frame); err != nil {
				return fmt.Errorf("replication: sending to peer %s: %w", p.id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Peers lists the currently connected peers as "id@remote".
func (h *Hub[V]) Peers() []string {
	all := h.peers.GetAll()
	ids := make([]string, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.id+"@"+p.remote)
	}
	return ids
}

// Close stops the apply loop and closes every connection.
func (h *Hub[V]) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	var firstErr error
	for _, p := range h.peers.GetAll() {
		if err := p.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Peer is a handle to one replication link, returned from Upgrade/Dial so
// callers can identify connections in logs and the operator REPL's "peers"
// command.
type Peer[V any] struct {
	id     string
	remote string
	hub    *Hub[V]
}

func (p *Peer[V]) ID() string     { return p.id }
func (p *Peer[V]) Remote() string { return p.remote }
