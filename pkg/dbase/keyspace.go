package dbase

import "github.com/cuemby/burrow/pkg/object"

// keyspace is the key→Value mapping for one Database. It models incremental
// rehashing (§4.3, §9) as two backing tables plus a migration cursor: once
// rehashing is "active" a bounded number of buckets migrate from the old
// table into the new one on every Step, and every read/write opportunistically
// migrates the bucket it touches first (matching a real incremental-rehash
// dict's per-operation migration step).
type keyspace struct {
	main      map[string]*object.Value
	old       map[string]*object.Value // non-nil only while rehashing
	oldKeys   []string                 // snapshot of old's keys, consumed by Step
	rehashing bool
}

func newKeyspace() *keyspace {
	return &keyspace{main: make(map[string]*object.Value)}
}

func (k *keyspace) Len() int {
	return len(k.main) + len(k.old)
}

func (k *keyspace) Get(key string) (*object.Value, bool) {
	if v, ok := k.main[key]; ok {
		return v, true
	}
	if k.old != nil {
		if v, ok := k.old[key]; ok {
			k.migrateKey(key, v)
			return v, true
		}
	}
	return nil, false
}

func (k *keyspace) Set(key string, v *object.Value) {
	if k.old != nil {
		delete(k.old, key)
	}
	k.main[key] = v
	k.maybeStartRehash()
}

func (k *keyspace) Delete(key string) bool {
	if _, ok := k.main[key]; ok {
		delete(k.main, key)
		return true
	}
	if k.old != nil {
		if _, ok := k.old[key]; ok {
			delete(k.old, key)
			return true
		}
	}
	return false
}

func (k *keyspace) Has(key string) bool {
	_, ok := k.Get(key)
	return ok
}

// ForEach walks every live key across both tables.
func (k *keyspace) ForEach(fn func(key string, v *object.Value)) {
	for key, v := range k.main {
		fn(key, v)
	}
	if k.old != nil {
		for key, v := range k.old {
			fn(key, v)
		}
	}
}

func (k *keyspace) Clear() {
	k.main = make(map[string]*object.Value)
	k.old = nil
	k.oldKeys = nil
	k.rehashing = false
}

// maybeStartRehash begins a rehash pass once the table has grown enough to
// make incremental migration worthwhile. A real dict triggers this on
// load-factor; here it is approximated by table size, which is sufficient to
// exercise the migration machinery under test.
func (k *keyspace) maybeStartRehash() {
	if k.rehashing || len(k.main) < 4 {
		return
	}
	k.rehashing = true
	k.old = k.main
	k.main = make(map[string]*object.Value, len(k.old))
	k.oldKeys = make([]string, 0, len(k.old))
	for key := range k.old {
		k.oldKeys = append(k.oldKeys, key)
	}
}

func (k *keyspace) migrateKey(key string, v *object.Value) {
	if k.old == nil {
		return
	}
	delete(k.old, key)
	k.main[key] = v
	if len(k.old) == 0 {
		k.finishRehash()
	}
}

func (k *keyspace) finishRehash() {
	k.old = nil
	k.oldKeys = nil
	k.rehashing = false
}

// Step advances rehashing by moving up to n buckets from old into main,
// called from the cron tick (§4.3: "≈1 ms per iteration").
func (k *keyspace) Step(n int) {
	if !k.rehashing {
		return
	}
	for n > 0 && len(k.oldKeys) > 0 {
		key := k.oldKeys[len(k.oldKeys)-1]
		k.oldKeys = k.oldKeys[:len(k.oldKeys)-1]
		if v, ok := k.old[key]; ok {
			k.migrateKey(key, v)
		}
		n--
	}
	if len(k.oldKeys) == 0 && k.rehashing {
		k.finishRehash()
	}
}

func (k *keyspace) Rehashing() bool { return k.rehashing }
