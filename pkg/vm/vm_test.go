package vm

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitmapAllocFreeRoundTrip(t *testing.T) {
	b := NewBitmap(16, 1)

	p1, err := b.Alloc(3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, b.UsedPages())

	p2, err := b.Alloc(2)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
	assert.EqualValues(t, 5, b.UsedPages())

	b.Free(p1, 3)
	assert.EqualValues(t, 2, b.UsedPages())
}

func TestBitmapAllocExhausted(t *testing.T) {
	b := NewBitmap(4, 1)
	_, err := b.Alloc(4)
	require.NoError(t, err)
	_, err = b.Alloc(1)
	assert.Error(t, err)
}

func TestBitmapJumpsCursorPeriodically(t *testing.T) {
	b := NewBitmap(1024, 7)
	b.jumpEvery = 2
	for i := 0; i < 10; i++ {
		_, err := b.Alloc(1)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 10, b.UsedPages())
}

func TestPoolRunsJobAndDeliversResult(t *testing.T) {
	p := NewPool(2)
	done := make(chan struct{})
	p.Submit(Job{
		Type: JobLoad,
		Key:  "k",
		Run: func() (interface{}, error) {
			return "value", nil
		},
	})
	go func() {
		res := <-p.Results
		assert.Equal(t, "value", res.Value)
		assert.NoError(t, res.Err)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job result")
	}
}

func TestPoolWorkerExitsWhenIdle(t *testing.T) {
	p := NewPool(1)
	p.Submit(Job{Run: func() (interface{}, error) { return nil, nil }})
	<-p.Results
	time.Sleep(idleTimeout * 2)
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()
	assert.EqualValues(t, 0, workers)
}

func TestBlockingRunsSynchronously(t *testing.T) {
	res := Blocking(Job{Run: func() (interface{}, error) { return 42, nil }})
	assert.Equal(t, 42, res.Value)
	assert.NoError(t, res.Err)
}

func TestIndexPutGetDelete(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	coords := object.VMCoords{Page: 3, UsedPages: 2, ATime: 100}
	require.NoError(t, idx.Put("foo", coords))

	got, found, err := idx.Get("foo")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, coords, got)

	require.NoError(t, idx.Delete("foo"))
	_, found, err = idx.Get("foo")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEngineSwapOutSwapInRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(filepath.Join(dir, "swap.dat"), 64, 64, 0, filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer e.Close()
	assert.True(t, e.Blocking())

	v := object.NewStringValue([]byte("hello world"))
	coords, err := e.SwapOut("mykey", v)
	require.NoError(t, err)
	assert.Equal(t, 1, e.SwappedCount())

	got, err := e.SwapIn("mykey", 0, coords)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got.Str.Bytes()))
	assert.Equal(t, 0, e.SwappedCount())
}

func TestEngineReattachesToExistingIndex(t *testing.T) {
	dir := t.TempDir()
	swapPath := filepath.Join(dir, "swap.dat")
	indexPath := filepath.Join(dir, "index.db")

	e1, err := Open(swapPath, 64, 64, 0, indexPath)
	require.NoError(t, err)
	v := object.NewStringValue([]byte("x"))
	_, err = e1.SwapOut("k1", v)
	require.NoError(t, err)
	require.NoError(t, e1.Close())

	e2, err := Open(swapPath, 64, 64, 0, indexPath)
	require.NoError(t, err)
	defer e2.Close()
	assert.EqualValues(t, 1, e2.pages.UsedPages())
}

func TestSelectSwapCandidatePrefersOlderLargerValue(t *testing.T) {
	db := dbase.New(0)
	object.Now = func() int64 { return 1000 }
	young := object.NewStringValue([]byte("a"))
	young.VM.ATime = 990
	db.Set("young", young)

	old := object.NewStringValue([]byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	old.VM.ATime = 100
	db.Set("old", old)

	approxSize := func(v *object.Value) int {
		if v.Str != nil {
			return v.Str.Len()
		}
		return 1
	}

	best, ok := SelectSwapCandidate(db, 5, approxSize)
	require.True(t, ok)
	assert.Equal(t, "old", best)
}
