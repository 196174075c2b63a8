package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedIntegersAreInterned(t *testing.T) {
	a := NewStringValue([]byte("42"))
	b := NewStringValue([]byte("42"))
	assert.True(t, a.IsShared())
	assert.Same(t, a, b)
}

func TestStringEncodingSelection(t *testing.T) {
	raw := NewStringValue([]byte("hello"))
	assert.Equal(t, EncRaw, raw.Encoding)

	bigInt := NewStringValue([]byte("12345678901234"))
	assert.Equal(t, EncInt, bigInt.Encoding)
	assert.False(t, bigInt.IsShared())

	leadingZero := NewStringValue([]byte("007"))
	assert.Equal(t, EncRaw, leadingZero.Encoding, "leading zeros are not a canonical int form")
}

func TestCompareAndEqualStringObjects(t *testing.T) {
	a := NewStringValue([]byte("abc"))
	b := NewStringValue([]byte("abd"))
	assert.Less(t, CompareStringObjects(a, b), 0)

	x := NewIntValue(10500)
	y := NewStringValue([]byte("10500"))
	assert.True(t, EqualStringObjects(x, y))
}

func TestHashPromotionIsOneWay(t *testing.T) {
	h := NewHash()
	for i := 0; i < 5; i++ {
		h.Set([]byte{byte('a' + i)}, []byte("v"), 4, 64)
	}
	require.Equal(t, EncHashTable, h.Encoding(), "5th entry with max=4 must promote")

	h.Delete([]byte{'a'})
	h.Delete([]byte{'b'})
	assert.Equal(t, EncHashTable, h.Encoding(), "promotion must not revert on shrink")
}

func TestHashValueLengthPromotes(t *testing.T) {
	h := NewHash()
	h.Set([]byte("f"), make([]byte, 100), 64, 10)
	assert.Equal(t, EncHashTable, h.Encoding())
}

func TestListPushPopOrder(t *testing.T) {
	l := NewList()
	l.PushLeft([]byte("a"))
	l.PushLeft([]byte("b"))
	l.PushRight([]byte("c"))
	got := l.Range(0, -1)
	want := []string{"b", "a", "c"}
	for i, w := range want {
		assert.Equal(t, w, string(got[i]))
	}

	v, ok := l.PopLeft()
	assert.True(t, ok)
	assert.Equal(t, "b", string(v))
	assert.Equal(t, 2, l.Len())
}

func TestListRemoveCount(t *testing.T) {
	l := NewList()
	for _, s := range []string{"a", "b", "a", "c", "a"} {
		l.PushRight([]byte(s))
	}
	removed := l.RemoveCount(2, []byte("a"))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 3, l.Len())
}

func TestSetOps(t *testing.T) {
	s1 := NewSet()
	s1.Add([]byte("a"))
	s1.Add([]byte("b"))
	s2 := NewSet()
	s2.Add([]byte("b"))
	s2.Add([]byte("c"))

	assert.Equal(t, 3, Union(s1, s2).Len())
	assert.Equal(t, 1, Inter(s1, s2).Len())
	assert.Equal(t, 1, Diff(s1, s2).Len())
}

func TestSkiplistSpanInvariant(t *testing.T) {
	sl := NewSkiplist()
	members := []string{"a", "b", "c", "d", "e", "f", "g"}
	for i, m := range members {
		sl.Insert(float64(i), []byte(m))
	}
	assert.Equal(t, uint64(len(members)), sl.spanSum())

	sl.Delete(2, []byte("c"))
	assert.Equal(t, uint64(len(members)-1), sl.spanSum())
	assert.Equal(t, len(members)-1, sl.Len())
}

func TestSkiplistRankAndByRank(t *testing.T) {
	sl := NewSkiplist()
	sl.Insert(1, []byte("a"))
	sl.Insert(2, []byte("b"))
	sl.Insert(3, []byte("c"))

	assert.Equal(t, 1, sl.Rank(2, []byte("b")))
	node := sl.ByRank(2)
	require.NotNil(t, node)
	assert.Equal(t, "c", string(node.member))
}

func TestZSetMappingSkiplistConsistency(t *testing.T) {
	z := NewZSet()
	z.Add(1, []byte("a"))
	z.Add(2, []byte("b"))
	z.Add(3, []byte("c"))
	z.Add(5, []byte("a")) // update

	assert.Equal(t, 3, z.Len())
	score, ok := z.Score([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, float64(5), score)

	members := z.RangeByRank(0, -1)
	assert.Equal(t, 3, len(members))
	assert.Equal(t, "b", string(members[0].Member))
	assert.Equal(t, "c", string(members[1].Member))
	assert.Equal(t, "a", string(members[2].Member))
}

func TestZSetRangeByScoreOpenInterval(t *testing.T) {
	z := NewZSet()
	z.Add(1, []byte("a"))
	z.Add(2, []byte("b"))
	z.Add(3, []byte("c"))

	members := z.RangeByScore(ScoreRange{Min: 1, Max: 3, MinExcl: true})
	require.Len(t, members, 2)
	assert.Equal(t, "b", string(members[0].Member))
	assert.Equal(t, "c", string(members[1].Member))
}
