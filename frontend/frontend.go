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

// Package frontend wires a register.Replica, a journal backend and a
// replication hub together behind an interactive REPL, the same role
// main.go plays for memcp: load settings, open persistence, hand off to
// scm.Repl. Both the module's root main.go and cmd/registerctl/main.go
// call Run so there is exactly one place this wiring is written.
package frontend

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/dc0d/onexit"

	"github.com/launix-de/replicated-register/config"
	"github.com/launix-de/replicated-register/journal"
	"github.com/launix-de/replicated-register/register"
	"github.com/launix-de/replicated-register/replication"
)

// Run parses args, brings a replica online (replaying its journal,
// connecting configured peers, optionally listening for inbound
// connections) and then blocks in the operator REPL until it exits.
func Run(args []string) error {
	fs := flag.NewFlagSet("registerctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a node config JSON file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("frontend: loading config: %w", err)
	}

	j, err := journal.Open(cfg.JournalBackend, journalConfigFor(cfg))
	if err != nil {
		return fmt.Errorf("frontend: opening journal %q: %w", cfg.JournalBackend, err)
	}
	defer j.Close()

	var hub *replication.Hub[string]
	opts := []register.Option[string]{
		register.WithBroadcast[string](func(op *register.Operation[string]) {
			if err := journal.AppendOp(j, op); err != nil {
				log.Printf("frontend: journaling local operation %s: %v", op.ID, err)
			}
			if hub != nil {
				if err := hub.Broadcast(op); err != nil {
					log.Printf("frontend: broadcasting operation %s: %v", op.ID, err)
				}
			}
		}),
	}
	if cfg.CacheEnabled {
		opts = append(opts, register.WithCache[string]())
		if cfg.CacheBudgetBytes > 0 {
			opts = append(opts, register.WithCacheBudget[string](cfg.CacheBudgetBytes))
		}
	}
	replica := register.NewReplica[string](cfg.Actor, opts...)

	if err := journal.ReplayInto(context.Background(), j, replica); err != nil {
		return fmt.Errorf("frontend: replaying journal: %w", err)
	}

	hub = replication.NewHub[string](replica, replication.WithOnApplied(func(op *register.Operation[string]) {
		if err := journal.AppendOp(j, op); err != nil {
			log.Printf("frontend: journaling remote operation %s: %v", op.ID, err)
		}
	}))
	defer hub.Close()

	var server *http.Server
	if cfg.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			if _, err := hub.Upgrade(w, r); err != nil {
				log.Printf("frontend: upgrading %s: %v", r.RemoteAddr, err)
			}
		})
		server = &http.Server{Addr: cfg.ListenAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("frontend: listener on %s stopped: %v", cfg.ListenAddr, err)
			}
		}()
		defer server.Close()
	}

	for _, peer := range cfg.Peers {
		if _, err := hub.Dial(context.Background(), peer); err != nil {
			log.Printf("frontend: connecting to %s: %v", peer, err)
		}
	}

	onexit.Register(func() {
		if err := j.Sync(); err != nil {
			log.Printf("frontend: final journal sync: %v", err)
		}
		hub.Close()
	})

	if *configPath != "" {
		if _, err := config.Watch(*configPath, func(updated *config.Settings) {
			dialNewPeers(hub, updated.Peers)
		}); err != nil {
			log.Printf("frontend: watching %s: %v", *configPath, err)
		}
	}

	return repl(replica, hub)
}

// dialNewPeers connects to any address in want that isn't already among
// the hub's connected peers, the reaction a hot-reloaded peer list needs
// without tearing down existing links.
func dialNewPeers(hub *replication.Hub[string], want []string) {
	connected := hub.Peers()
	for _, addr := range want {
		already := false
		for _, p := range connected {
			if strings.HasSuffix(p, "@"+addr) {
				already = true
				break
			}
		}
		if already {
			continue
		}
		if _, err := hub.Dial(context.Background(), addr); err != nil {
			log.Printf("frontend: connecting to %s: %v", addr, err)
		}
	}
}

func loadConfig(path string) (*config.Settings, error) {
	if path == "" {
		return config.ResolvedDefaults()
	}
	return config.Load(path)
}

// journalConfigFor returns the operator-supplied backend config verbatim,
// or synthesizes a minimal one from the resolved settings when the config
// file leaves journal_config empty.
func journalConfigFor(cfg *config.Settings) json.RawMessage {
	if len(cfg.JournalConfig) > 0 {
		return cfg.JournalConfig
	}
	switch cfg.JournalBackend {
	case "file":
		raw, _ := json.Marshal(map[string]any{
			"dir":               cfg.Actor + "-journal",
			"max_segment_bytes": cfg.JournalSegmentBytes,
		})
		return raw
	default:
		return json.RawMessage(`{}`)
	}
}
