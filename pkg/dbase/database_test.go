package dbase

import (
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiresSubsetOfKeyspaceInvariant(t *testing.T) {
	db := New(0)
	db.Set("a", object.NewStringValue([]byte("1")))
	db.Expire("a", time.Now().Add(time.Hour).Unix())

	db.Expire("a", time.Now().Add(-time.Hour).Unix())
	_, ok := db.Lookup("a")
	assert.False(t, ok, "expired key must read as missing")

	_, ok = db.TTL("a")
	assert.False(t, ok, "expiring the key must remove it from the expires index too")
}

func TestActiveExpireCycleRemovesExpiredKeys(t *testing.T) {
	db := New(0)
	for i := 0; i < 5; i++ {
		key := string(rune('a' + i))
		db.Set(key, object.NewStringValue([]byte("v")))
		db.Expire(key, time.Now().Add(-time.Minute).Unix())
	}
	n := db.ActiveExpireCycle(func(uint64) {})
	assert.Equal(t, 5, n)
	assert.Equal(t, 0, db.Len())
}

func TestWatchersMarkedDirtyOnWrite(t *testing.T) {
	db := New(0)
	db.Set("k", object.NewStringValue([]byte("1")))
	db.Watch("k", 42)

	var dirtied []uint64
	db.LookupForWrite("k", func(id uint64) { dirtied = append(dirtied, id) })

	require.Len(t, dirtied, 1)
	assert.Equal(t, uint64(42), dirtied[0])
}

func TestFlushAllMarksWatchersDirty(t *testing.T) {
	db := New(0)
	db.Set("k", object.NewStringValue([]byte("1")))
	db.Watch("k", 7)

	var dirtied []uint64
	db.FlushAll(func(id uint64) { dirtied = append(dirtied, id) })

	assert.Contains(t, dirtied, uint64(7))
	assert.Equal(t, 0, db.Len())
}

func TestBlockingWaiterRendezvous(t *testing.T) {
	db := New(0)
	w := &BlockWaiter{ClientID: 1, Ch: make(chan []byte, 1)}
	db.AddBlockWaiter("q", w)

	got, ok := db.PopBlockWaiter("q")
	require.True(t, ok)
	got.Ch <- []byte("value")
	assert.Equal(t, "value", string(<-got.Ch))
}

func TestIncrementalRehashMigratesAllKeys(t *testing.T) {
	db := New(0)
	for i := 0; i < 20; i++ {
		db.Set(string(rune('a'+i)), object.NewStringValue([]byte("v")))
	}
	require.True(t, db.Rehashing(), "inserting past the threshold should start a rehash pass")

	for db.Rehashing() {
		db.RehashStep(3)
	}
	assert.Equal(t, 20, db.Len())
	for i := 0; i < 20; i++ {
		_, ok := db.Lookup(string(rune('a' + i)))
		assert.True(t, ok)
	}
}
