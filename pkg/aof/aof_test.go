package aof

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendEmitsSelectOnlyOnDBChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")
	w, err := Open(path, config.FsyncAlways)
	require.NoError(t, err)

	require.NoError(t, w.Append(0, [][]byte{[]byte("SET"), []byte("a"), []byte("1")}))
	require.NoError(t, w.Append(0, [][]byte{[]byte("SET"), []byte("b"), []byte("2")}))
	require.NoError(t, w.Append(1, [][]byte{[]byte("SET"), []byte("c"), []byte("3")}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Equal(t, 2, countOccurrences(content, "SELECT"), "one SELECT for db0, one for db1")
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
		}
	}
	return count
}

func TestTransformExpireToExpireAt(t *testing.T) {
	now := time.Unix(1000, 0)
	out := Transform([][]byte{[]byte("EXPIRE"), []byte("k"), []byte("10")}, now)
	require.Len(t, out, 1)
	assert.Equal(t, "EXPIREAT", string(out[0][0]))
	assert.Equal(t, "1010", string(out[0][2]))
}

func TestTransformSetexSplitsIntoSetAndExpireAt(t *testing.T) {
	now := time.Unix(1000, 0)
	out := Transform([][]byte{[]byte("SETEX"), []byte("k"), []byte("60"), []byte("v")}, now)
	require.Len(t, out, 2)
	assert.Equal(t, "SET", string(out[0][0]))
	assert.Equal(t, "v", string(out[0][2]))
	assert.Equal(t, "EXPIREAT", string(out[1][0]))
	assert.Equal(t, "1060", string(out[1][2]))
}

func TestTransformPassesThroughOrdinaryCommands(t *testing.T) {
	out := Transform([][]byte{[]byte("SET"), []byte("k"), []byte("v")}, time.Now())
	require.Len(t, out, 1)
	assert.Equal(t, [][]byte{[]byte("SET"), []byte("k"), []byte("v")}, out[0])
}

func TestAppendTransactionWrapsInMultiExec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")
	w, err := Open(path, config.FsyncAlways)
	require.NoError(t, err)

	require.NoError(t, w.AppendTransaction(0, [][][]byte{
		{[]byte("SET"), []byte("a"), []byte("1")},
		{[]byte("SET"), []byte("b"), []byte("2")},
	}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "MULTI")
	assert.Contains(t, content, "EXEC")
}
