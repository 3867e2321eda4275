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
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/launix-de/replicated-register/register"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestHubBroadcastRoundTrip(t *testing.T) {
	var hubA *Hub[int]
	replicaA := register.NewReplica[int]("A", register.WithBroadcast(func(op *register.Operation[int]) {
		hubA.Broadcast(op)
	}))
	hubA = NewHub[int](replicaA)
	defer hubA.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := hubA.Upgrade(w, r); err != nil {
			t.Errorf("server upgrade: %v", err)
		}
	}))
	defer server.Close()

	replicaB := register.NewReplica[int]("B")
	hubB := NewHub[int](replicaB)
	defer hubB.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	if _, err := hubB.Dial(context.Background(), wsURL); err != nil {
		t.Fatalf("client dial: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(hubA.Peers()) == 1 })

	replicaA.Set(42)

	waitFor(t, time.Second, func() bool {
		return reflect.DeepEqual(replicaB.Get(), []int{42})
	})
}

func TestHubOnAppliedFiresForRemoteOps(t *testing.T) {
	var hubA *Hub[string]
	replicaA := register.NewReplica[string]("A", register.WithBroadcast(func(op *register.Operation[string]) {
		hubA.Broadcast(op)
	}))
	hubA = NewHub[string](replicaA)
	defer hubA.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hubA.Upgrade(w, r)
	}))
	defer server.Close()

	applied := make(chan *register.Operation[string], 4)
	replicaB := register.NewReplica[string]("B")
	hubB := NewHub[string](replicaB, WithOnApplied(func(op *register.Operation[string]) {
		applied <- op
	}))
	defer hubB.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	if _, err := hubB.Dial(context.Background(), wsURL); err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(hubA.Peers()) == 1 })

	replicaA.Set("hello")

	select {
	case op := <-applied:
		if !op.HasValue || op.Value != "hello" {
			t.Fatalf("unexpected applied op: %+v", op)
		}
	case <-time.After(time.Second):
		t.Fatal("onApplied callback never fired")
	}
}
