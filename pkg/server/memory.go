package server

import (
	"math/rand"

	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/object"
)

// estimateUsedMemory approximates resident dataset size; there is no real
// allocator-level accounting in a garbage-collected runtime, so this sums
// per-key and per-value size estimates instead (§4.7's "used" figure).
func estimateUsedMemory(s *Server) int64 {
	var total int64
	for _, db := range s.databases() {
		db.ForEach(func(key string, v *object.Value) {
			total += int64(len(key))
			if v.Storage == object.StorageMemory {
				total += int64(approxValueSize(v))
			}
		})
	}
	metrics.UsedMemoryBytes.Set(float64(total))
	return total
}

// freeMemoryIfNeeded implements §4.7: while used > max, try to evict. The
// free-list-entry step of the original has no analog in a GC'd runtime, so
// eviction here goes straight to sampling keys with expiries and dropping
// the one with the earliest expire, across up to 3 sampled candidates per
// DB, repeating until under budget or nothing more can be evicted.
func freeMemoryIfNeeded(s *Server) {
	if s.Config.MaxMemory <= 0 {
		return
	}
	for estimateUsedMemory(s) > s.Config.MaxMemory {
		evictedAny := false
		for _, db := range s.databases() {
			if evictOneExpiringKey(db) {
				evictedAny = true
				metrics.EvictedKeysTotal.Inc()
			}
		}
		if !evictedAny {
			return
		}
	}
}

func evictOneExpiringKey(db *dbase.Database) bool {
	keys := db.Keys()
	if len(keys) == 0 {
		return false
	}
	rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	sampleSize := 3
	if sampleSize > len(keys) {
		sampleSize = len(keys)
	}

	bestKey := ""
	var bestExpire int64
	found := false
	for _, k := range keys[:sampleSize] {
		exp, ok := db.TTL(k)
		if !ok {
			continue
		}
		if !found || exp < bestExpire {
			bestKey, bestExpire, found = k, exp, true
		}
	}
	if !found {
		return false
	}
	return db.Delete(bestKey)
}
