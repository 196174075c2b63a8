package aof

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBgRewriteEmitsMinimalCommandsAndRenames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")
	require.NoError(t, os.WriteFile(path, []byte("stale contents that should be replaced\n"), 0o644))

	db := dbase.New(0)
	db.Set("str", object.NewStringValue([]byte("v")))
	l := object.NewEmpty(object.TypeList)
	l.List.PushRight([]byte("x"))
	db.Set("list", l)
	db.Expire("str", time.Now().Add(time.Hour).Unix())

	rw := NewRewriter()
	done := make(chan error, 1)
	require.NoError(t, rw.Begin(path, []*dbase.Database{db}, func(err error) { done <- err }))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("rewrite did not complete")
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.NotContains(t, content, "stale contents")
	assert.True(t, strings.Contains(content, "SET") || strings.Contains(content, "RPUSH"))
	assert.Contains(t, content, "EXPIREAT")
}

func TestRewriteRejectsConcurrentRun(t *testing.T) {
	rw := NewRewriter()
	rw.running = true
	err := rw.Begin("/tmp/unused.aof", nil, func(error) {})
	assert.Error(t, err)
}

func TestObserveNoOpWhenNotRunning(t *testing.T) {
	rw := NewRewriter()
	rw.Observe(0, [][]byte{[]byte("SET"), []byte("a"), []byte("b")})
	assert.Empty(t, rw.diff)
}
