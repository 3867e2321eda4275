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

// Package config loads and hot-reloads a registerctl node's settings from a
// flat JSON file, the same shape as storage.SettingsT: one struct, package
// defaults, an explicit reload step.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	units "github.com/docker/go-units"
)

// Settings is a registerctl node's full configuration. Byte-size fields are
// accepted as human-readable strings ("64MB", "1GiB") and resolved into the
// *Bytes fields the journal and register packages actually consume.
type Settings struct {
	Actor      string   `json:"actor"`
	ListenAddr string   `json:"listen_addr"`
	Peers      []string `json:"peers"`

	CacheEnabled bool   `json:"cache_enabled"`
	CacheBudget  string `json:"cache_budget"`

	JournalBackend     string          `json:"journal_backend"`
	JournalConfig      json.RawMessage `json:"journal_config"`
	JournalSegmentSize string          `json:"journal_segment_size"`

	CacheBudgetBytes    int64 `json:"-"`
	JournalSegmentBytes int64 `json:"-"`
}

// Defaults mirrors storage.Settings: a package-level value callers can copy
// and override rather than re-declaring every field.
var Defaults = Settings{
	Actor:              "local",
	ListenAddr:         ":4000",
	CacheEnabled:       false,
	CacheBudget:        "16MB",
	JournalBackend:     "file",
	JournalSegmentSize: "64MB",
}

// Load reads path, applies it over Defaults, and resolves byte-size fields.
func Load(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	s := Defaults
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := s.resolveSizes(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ResolvedDefaults returns Defaults with its byte-size fields resolved, for
// callers that run without a config file on disk.
func ResolvedDefaults() (*Settings, error) {
	s := Defaults
	if err := s.resolveSizes(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) resolveSizes() error {
	if s.CacheBudget != "" {
		n, err := units.RAMInBytes(s.CacheBudget)
		if err != nil {
			return fmt.Errorf("config: cache_budget %q: %w", s.CacheBudget, err)
		}
		s.CacheBudgetBytes = n
	}
	if s.JournalSegmentSize != "" {
		n, err := units.RAMInBytes(s.JournalSegmentSize)
		if err != nil {
			return fmt.Errorf("config: journal_segment_size %q: %w", s.JournalSegmentSize, err)
		}
		s.JournalSegmentBytes = n
	}
	return nil
}
