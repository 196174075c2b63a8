// Package dbase implements the per-database structures of §3.2: the
// keyspace, the expires index, blocking-key waiters (BLPOP/BRPOP), VM
// swap-in waiters, and WATCH tracking, plus incremental rehashing and the
// active expiration cycle (§4.3).
package dbase

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/object"
)

// BlockWaiter is a client suspended on BLPOP/BRPOP for a key. Ch receives the
// popped value directly when a push satisfies the wait (rendezvous, §9);
// it is closed with no send if the waiter's deadline passes first.
type BlockWaiter struct {
	ClientID uint64
	Ch       chan []byte
}

// IOWaiter is a client suspended on a swapped-in key becoming resident again.
type IOWaiter struct {
	ClientID uint64
	Ch       chan struct{}
}

// Database is one numbered logical database (§3.2).
type Database struct {
	ID int

	mu      sync.Mutex
	ks      *keyspace
	expires map[string]int64 // key -> absolute unix seconds; subset of keyspace

	blockingKeys map[string][]*BlockWaiter
	ioKeys       map[string][]*IOWaiter
	watchedKeys  map[string]map[uint64]struct{} // key -> set of watching client IDs

	statExpired uint64
}

func New(id int) *Database {
	return &Database{
		ID:           id,
		ks:           newKeyspace(),
		expires:      make(map[string]int64),
		blockingKeys: make(map[string][]*BlockWaiter),
		ioKeys:       make(map[string][]*IOWaiter),
		watchedKeys:  make(map[string]map[uint64]struct{}),
	}
}

// Lookup implements the read-lookup policy of §4.3: expire check first,
// then plain presence. Returns (nil, false) for a missing or just-expired key.
func (d *Database) Lookup(key string) (*object.Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookupLocked(key)
}

func (d *Database) lookupLocked(key string) (*object.Value, bool) {
	if exp, ok := d.expires[key]; ok && time.Now().Unix() > exp {
		d.expireKeyLocked(key)
		return nil, false
	}
	return d.ks.Get(key)
}

// LookupForWrite implements the write-lookup policy: expire-aware deletion
// AND marks any watchers of the key dirty-cas (§4.3, §4.11), because a
// write handler is about to decide the key's fate regardless of whether it
// currently exists.
func (d *Database) LookupForWrite(key string, dirtyCAS func(clientID uint64)) (*object.Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.lookupLocked(key)
	d.touchWatchersLocked(key, dirtyCAS)
	return v, ok
}

// Set stores v under key, clearing any expiry (callers that want to keep an
// expiry must re-set it with Expire after Set).
func (d *Database) Set(key string, v *object.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ks.Set(key, v)
	delete(d.expires, key)
}

// SetKeepTTL stores v under key without touching any existing expiry.
func (d *Database) SetKeepTTL(key string, v *object.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ks.Set(key, v)
}

// Delete removes key (and any expiry), reporting whether it existed.
func (d *Database) Delete(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.expires, key)
	return d.ks.Delete(key)
}

func (d *Database) Exists(key string) bool {
	_, ok := d.Lookup(key)
	return ok
}

func (d *Database) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ks.Len()
}

// Keys returns every live (non-expired) key. Used by KEYS/SCAN-equivalent
// commands and RDB save; expensive, caller's responsibility to use sparingly.
func (d *Database) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now().Unix()
	var out []string
	d.ks.ForEach(func(key string, _ *object.Value) {
		if exp, ok := d.expires[key]; ok && now > exp {
			return
		}
		out = append(out, key)
	})
	return out
}

// ForEach walks every live key/value pair (used by RDB save and DEBUG DIGEST).
func (d *Database) ForEach(fn func(key string, v *object.Value)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now().Unix()
	d.ks.ForEach(func(key string, v *object.Value) {
		if exp, ok := d.expires[key]; ok && now > exp {
			return
		}
		fn(key, v)
	})
}

// Expire sets key's absolute expiry (unix seconds). Caller must have already
// verified key exists.
func (d *Database) Expire(key string, at int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expires[key] = at
}

// Persist removes key's expiry, reporting whether one was set.
func (d *Database) Persist(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.expires[key]; !ok {
		return false
	}
	delete(d.expires, key)
	return true
}

// TTL returns key's absolute expiry and whether one is set.
func (d *Database) TTL(key string) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.expires[key]
	return exp, ok
}

func (d *Database) ExpiresCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.expires)
}

func (d *Database) expireKeyLocked(key string) {
	d.ks.Delete(key)
	delete(d.expires, key)
	d.statExpired++
}

// ActiveExpireCycle implements §4.3's adaptive sampling: sample up to 10
// random expired candidates, repeating while at least 25% of the sample was
// actually expired. dirtyCAS marks any watcher of an expired key.
func (d *Database) ActiveExpireCycle(dirtyCAS func(clientID uint64)) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := 0
	for {
		keys := make([]string, 0, len(d.expires))
		for k := range d.expires {
			keys = append(keys, k)
		}
		if len(keys) == 0 {
			return total
		}
		sampleSize := 10
		if sampleSize > len(keys) {
			sampleSize = len(keys)
		}
		rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
		sample := keys[:sampleSize]

		now := time.Now().Unix()
		expiredInSample := 0
		for _, k := range sample {
			if exp := d.expires[k]; now > exp {
				d.expireKeyLocked(k)
				d.touchWatchersLocked(k, dirtyCAS)
				expiredInSample++
				total++
			}
		}
		if float64(expiredInSample) < 0.25*float64(sampleSize) {
			return total
		}
	}
}

// RehashStep advances incremental rehashing of the keyspace by up to n buckets.
func (d *Database) RehashStep(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ks.Step(n)
}

func (d *Database) Rehashing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ks.Rehashing()
}

// FlushAll clears every key and marks every watcher dirty-cas (§4.3, §4.11).
func (d *Database) FlushAll(dirtyCAS func(clientID uint64)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, watchers := range d.watchedKeys {
		for id := range watchers {
			dirtyCAS(id)
		}
		_ = key
	}
	d.ks.Clear()
	d.expires = make(map[string]int64)
}

// ---- WATCH tracking (§4.11) ----

func (d *Database) Watch(key string, clientID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.watchedKeys[key]
	if !ok {
		set = make(map[uint64]struct{})
		d.watchedKeys[key] = set
	}
	set[clientID] = struct{}{}
}

func (d *Database) UnwatchAll(clientID uint64, keys []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, key := range keys {
		if set, ok := d.watchedKeys[key]; ok {
			delete(set, clientID)
			if len(set) == 0 {
				delete(d.watchedKeys, key)
			}
		}
	}
}

func (d *Database) touchWatchersLocked(key string, dirtyCAS func(clientID uint64)) {
	set, ok := d.watchedKeys[key]
	if !ok || dirtyCAS == nil {
		return
	}
	for id := range set {
		dirtyCAS(id)
	}
}

// TouchWatchers marks every watcher of key dirty-cas without performing a lookup.
func (d *Database) TouchWatchers(key string, dirtyCAS func(clientID uint64)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touchWatchersLocked(key, dirtyCAS)
}

// ---- Blocking keys (BLPOP/BRPOP, §9) ----

// AddBlockWaiter registers a waiter for key, to be woken in FIFO order by
// the next push against that key.
func (d *Database) AddBlockWaiter(key string, w *BlockWaiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blockingKeys[key] = append(d.blockingKeys[key], w)
}

// RemoveBlockWaiter removes w from key's waiter list (used on timeout).
func (d *Database) RemoveBlockWaiter(key string, w *BlockWaiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.blockingKeys[key]
	for i, x := range list {
		if x == w {
			d.blockingKeys[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(d.blockingKeys[key]) == 0 {
		delete(d.blockingKeys, key)
	}
}

// PopBlockWaiter dequeues the oldest waiter for key, if any, for the pushing
// command to hand the value to directly.
func (d *Database) PopBlockWaiter(key string) (*BlockWaiter, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.blockingKeys[key]
	if len(list) == 0 {
		return nil, false
	}
	w := list[0]
	d.blockingKeys[key] = list[1:]
	if len(d.blockingKeys[key]) == 0 {
		delete(d.blockingKeys, key)
	}
	return w, true
}

// ---- VM swap-in waiters (§4.9) ----

func (d *Database) AddIOWaiter(key string, w *IOWaiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ioKeys[key] = append(d.ioKeys[key], w)
}

// ResumeIOWaiters wakes and clears every waiter on key (called once swap-in completes).
func (d *Database) ResumeIOWaiters(key string) {
	d.mu.Lock()
	waiters := d.ioKeys[key]
	delete(d.ioKeys, key)
	d.mu.Unlock()
	for _, w := range waiters {
		close(w.Ch)
	}
}

func (d *Database) HasIOWaiters(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ioKeys[key]) > 0
}
