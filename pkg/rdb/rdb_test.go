package rdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.rdb")

	db0 := dbase.New(0)
	db0.Set("str", object.NewStringValue([]byte("hello")))
	db0.Set("int", object.NewStringValue([]byte("12345")))
	db0.Set("big", object.NewStringValue([]byte("this is a string longer than twenty bytes so it is eligible for compression")))

	l := object.NewEmpty(object.TypeList)
	l.List.PushRight([]byte("a"))
	l.List.PushRight([]byte("b"))
	l.List.PushRight([]byte("c"))
	db0.Set("list", l)

	s := object.NewEmpty(object.TypeSet)
	s.Set.Add([]byte("x"))
	s.Set.Add([]byte("y"))
	db0.Set("set", s)

	z := object.NewEmpty(object.TypeZSet)
	z.ZSet.Add(1.5, []byte("a"))
	z.ZSet.Add(2.5, []byte("b"))
	db0.Set("zset", z)

	h := object.NewEmpty(object.TypeHash)
	h.Hash.Set([]byte("f1"), []byte("v1"), 128, 64)
	db0.Set("hash", h)

	db0.Expire("str", time.Now().Add(time.Hour).Unix())

	require.NoError(t, Save(path, []*dbase.Database{db0}))

	loaded := dbase.New(0)
	dbs := map[int]*dbase.Database{0: loaded}
	require.NoError(t, Load(path, func(id int) *dbase.Database { return dbs[id] }))

	v, ok := loaded.Lookup("str")
	require.True(t, ok)
	assert.Equal(t, "hello", string(v.Str.Bytes()))

	v, ok = loaded.Lookup("int")
	require.True(t, ok)
	n, isInt := v.Str.Int()
	assert.True(t, isInt)
	assert.Equal(t, int64(12345), n)

	v, ok = loaded.Lookup("big")
	require.True(t, ok)
	assert.Contains(t, string(v.Str.Bytes()), "longer than twenty bytes")

	v, ok = loaded.Lookup("list")
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, v.List.Range(0, -1))

	v, ok = loaded.Lookup("set")
	require.True(t, ok)
	assert.Equal(t, 2, v.Set.Len())

	v, ok = loaded.Lookup("zset")
	require.True(t, ok)
	score, ok := v.ZSet.Score([]byte("b"))
	require.True(t, ok)
	assert.Equal(t, 2.5, score)

	v, ok = loaded.Lookup("hash")
	require.True(t, ok)
	val, ok := v.Hash.Get([]byte("f1"))
	require.True(t, ok)
	assert.Equal(t, "v1", string(val))

	_, ok = loaded.TTL("str")
	assert.True(t, ok, "expire must survive the round trip")
}

func TestSaveLoadEmptyDatabasesSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.rdb")

	db0 := dbase.New(0)
	db1 := dbase.New(1)
	db1.Set("only", object.NewStringValue([]byte("here")))

	require.NoError(t, Save(path, []*dbase.Database{db0, db1}))

	loaded0 := dbase.New(0)
	loaded1 := dbase.New(1)
	dbs := map[int]*dbase.Database{0: loaded0, 1: loaded1}
	require.NoError(t, Load(path, func(id int) *dbase.Database { return dbs[id] }))

	assert.Equal(t, 0, loaded0.Len())
	_, ok := loaded1.Lookup("only")
	assert.True(t, ok)
}

func TestAnyTriggers(t *testing.T) {
	rules := []config.SaveRule{{Seconds: 900, Changes: 1}, {Seconds: 300, Changes: 10}, {Seconds: 60, Changes: 10000}}
	assert.True(t, AnyTriggers(rules, 1, 901))
	assert.False(t, AnyTriggers(rules, 1, 899))
	assert.True(t, AnyTriggers(rules, 10, 301))
	assert.False(t, AnyTriggers(rules, 10000, 30))
}
