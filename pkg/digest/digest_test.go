package digest

import (
	"testing"

	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDigestIsOrderIndependent(t *testing.T) {
	a := object.NewEmpty(object.TypeSet)
	a.Set.Add([]byte("x"))
	a.Set.Add([]byte("y"))
	a.Set.Add([]byte("z"))

	b := object.NewEmpty(object.TypeSet)
	b.Set.Add([]byte("z"))
	b.Set.Add([]byte("x"))
	b.Set.Add([]byte("y"))

	assert.Equal(t, Value(a), Value(b), "set digest must not depend on insertion order")
}

func TestHashDigestIsOrderIndependent(t *testing.T) {
	a := object.NewEmpty(object.TypeHash)
	a.Hash.Set([]byte("f1"), []byte("v1"), 128, 64)
	a.Hash.Set([]byte("f2"), []byte("v2"), 128, 64)

	b := object.NewEmpty(object.TypeHash)
	b.Hash.Set([]byte("f2"), []byte("v2"), 128, 64)
	b.Hash.Set([]byte("f1"), []byte("v1"), 128, 64)

	assert.Equal(t, Value(a), Value(b))
}

func TestListDigestIsOrderSensitive(t *testing.T) {
	a := object.NewEmpty(object.TypeList)
	a.List.PushRight([]byte("1"))
	a.List.PushRight([]byte("2"))

	b := object.NewEmpty(object.TypeList)
	b.List.PushRight([]byte("2"))
	b.List.PushRight([]byte("1"))

	assert.NotEqual(t, Value(a), Value(b), "list digest must depend on element order")
}

func TestListDigestIsDeterministic(t *testing.T) {
	a := object.NewEmpty(object.TypeList)
	a.List.PushRight([]byte("1"))
	a.List.PushRight([]byte("2"))
	a.List.PushRight([]byte("3"))

	b := object.NewEmpty(object.TypeList)
	b.List.PushRight([]byte("1"))
	b.List.PushRight([]byte("2"))
	b.List.PushRight([]byte("3"))

	assert.Equal(t, Value(a), Value(b))
}

func TestDatasetDigestEqualAcrossEquivalentLayout(t *testing.T) {
	db1 := dbase.New(0)
	db1.Set("s", object.NewStringValue([]byte("v")))
	s1 := object.NewEmpty(object.TypeSet)
	s1.Set.Add([]byte("a"))
	s1.Set.Add([]byte("b"))
	db1.Set("set", s1)

	db2 := dbase.New(0)
	s2 := object.NewEmpty(object.TypeSet)
	s2.Set.Add([]byte("b"))
	s2.Set.Add([]byte("a"))
	db2.Set("set", s2)
	db2.Set("s", object.NewStringValue([]byte("v")))

	require.Equal(t, Dataset([]*dbase.Database{db1}), Dataset([]*dbase.Database{db2}))
}

func TestDatasetDigestChangesWithData(t *testing.T) {
	db1 := dbase.New(0)
	db1.Set("k", object.NewStringValue([]byte("1")))

	db2 := dbase.New(0)
	db2.Set("k", object.NewStringValue([]byte("2")))

	assert.NotEqual(t, Dataset([]*dbase.Database{db1}), Dataset([]*dbase.Database{db2}))
}
