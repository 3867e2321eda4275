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

import "time"

// resolutionCache memoises the resolver's output for a Restore node,
// keyed by the Restore's own OpId (see resolver.go for what is stored).
// Eviction follows the same budget-then-reclaim-to-75%-oldest-first
// policy as the teacher's storage.CacheManager (storage/cache.go), but
// without that type's channel-owned goroutine: a Replica's engine state,
// cache included, is only ever touched from the single call stack under
// Apply/Set/Delete/Undo/Redo (spec §5), so there is no concurrent caller
// to serialize against and a worker goroutine would just be overhead.
type resolutionCache[V any] struct {
	enabled bool
	budget  int64
	used    int64

	entries  map[OpId]cacheEntry[V]
	lastUsed map[OpId]time.Time
}

type cacheEntry[V any] struct {
	results []TerminalHead[V]
	size    int64
}

const defaultCacheBudget = 8 << 20 // 8 MiB of estimated trace memory

func newResolutionCache[V any](enabled bool, budget int64) *resolutionCache[V] {
	if budget <= 0 {
		budget = defaultCacheBudget
	}
	return &resolutionCache[V]{
		enabled:  enabled,
		budget:   budget,
		entries:  make(map[OpId]cacheEntry[V]),
		lastUsed: make(map[OpId]time.Time),
	}
}

func (c *resolutionCache[V]) get(id OpId) ([]TerminalHead[V], bool) {
	if c == nil || !c.enabled {
		return nil, false
	}
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	c.lastUsed[id] = time.Now()
	return e.results, true
}

func (c *resolutionCache[V]) put(id OpId, results []TerminalHead[V]) {
	if c == nil || !c.enabled {
		return
	}
	if _, ok := c.entries[id]; ok {
		return // cache entries are immutable once written (§4.7)
	}
	size := estimateSize(results)
	c.entries[id] = cacheEntry[V]{results: results, size: size}
	c.lastUsed[id] = time.Now()
	c.used += size
	if c.used > c.budget {
		c.evict()
	}
}

// evict drops the least-recently-resolved entries until usage is back
// under 75% of budget, matching storage.CacheManager.cleanup's target.
func (c *resolutionCache[V]) evict() {
	target := c.budget * 75 / 100
	type aged struct {
		id OpId
		t  time.Time
	}
	ordered := make([]aged, 0, len(c.entries))
	for id := range c.entries {
		ordered = append(ordered, aged{id, c.lastUsed[id]})
	}
	// insertion sort by age ascending: cache sizes stay small relative to
	// the operation graph itself, so an O(n^2) sort is not worth the
	// import of sort.Slice's reflection-driven comparator here.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].t.Before(ordered[j-1].t); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	for _, a := range ordered {
		if c.used <= target {
			return
		}
		c.used -= c.entries[a.id].size
		delete(c.entries, a.id)
		delete(c.lastUsed, a.id)
	}
}

func estimateSize[V any](results []TerminalHead[V]) int64 {
	var n int64
	for _, r := range results {
		n += int64(len(r.Trace))*24 + 48
	}
	return n
}
