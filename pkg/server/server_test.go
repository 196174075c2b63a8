package server

import (
	"bufio"
	"net"
	"testing"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	cfg := config.Default()
	cfg.Databases = 4
	s := New(cfg)
	clientConn, _ := net.Pipe()
	c := newClient(1, clientConn, s)
	c.authenticated = true
	return s, c
}

func exec(t *testing.T, s *Server, c *Client, argv ...string) string {
	t.Helper()
	var raw [][]byte
	for _, a := range argv {
		raw = append(raw, []byte(a))
	}
	name := upper(string(raw[0]))
	cmd, ok := commandTable[name]
	require.True(t, ok, "command %s not registered", name)
	buf := &bufioBuffer{}
	w := bufio.NewWriter(buf)
	s.runCommand(c, cmd, raw, w)
	w.Flush()
	return buf.String()
}

// bufioBuffer is a minimal io.Writer + String() helper so tests can assert
// on the raw RESP bytes a handler wrote without pulling in bytes.Buffer's
// full API surface across every assertion.
type bufioBuffer struct{ data []byte }

func (b *bufioBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
func (b *bufioBuffer) String() string { return string(b.data) }

func TestSetGetRoundTrip(t *testing.T) {
	s, c := newTestServer(t)
	assert.Equal(t, "+OK\r\n", exec(t, s, c, "SET", "foo", "bar"))
	assert.Equal(t, "$3\r\nbar\r\n", exec(t, s, c, "GET", "foo"))
}

func TestSetNXOnlyWhenAbsent(t *testing.T) {
	s, c := newTestServer(t)
	assert.Equal(t, ":1\r\n", exec(t, s, c, "SETNX", "k", "v1"))
	assert.Equal(t, ":0\r\n", exec(t, s, c, "SETNX", "k", "v2"))
	assert.Equal(t, "$2\r\nv1\r\n", exec(t, s, c, "GET", "k"))
}

func TestDelAndExists(t *testing.T) {
	s, c := newTestServer(t)
	exec(t, s, c, "SET", "a", "1")
	exec(t, s, c, "SET", "b", "2")
	assert.Equal(t, ":1\r\n", exec(t, s, c, "EXISTS", "a"))
	assert.Equal(t, ":2\r\n", exec(t, s, c, "DEL", "a", "b"))
	assert.Equal(t, ":0\r\n", exec(t, s, c, "EXISTS", "a"))
}

func TestTypeReportsEncodingFamily(t *testing.T) {
	s, c := newTestServer(t)
	exec(t, s, c, "SET", "str", "hi")
	exec(t, s, c, "LPUSH", "list", "x")
	assert.Equal(t, "+string\r\n", exec(t, s, c, "TYPE", "str"))
	assert.Equal(t, "+list\r\n", exec(t, s, c, "TYPE", "list"))
	assert.Equal(t, "+none\r\n", exec(t, s, c, "TYPE", "missing"))
}

func TestExpireMakesKeyInvisible(t *testing.T) {
	s, c := newTestServer(t)
	exec(t, s, c, "SET", "k", "v")
	assert.Equal(t, ":1\r\n", exec(t, s, c, "EXPIRE", "k", "-1"))
	assert.Equal(t, ":0\r\n", exec(t, s, c, "EXISTS", "k"))
}

func TestMultiExecQueuesThenRunsAtomically(t *testing.T) {
	s, c := newTestServer(t)

	c.inMulti = true
	buf := &bufioBuffer{}
	w := bufio.NewWriter(buf)
	c.multiQueue = append(c.multiQueue, [][]byte{[]byte("SET"), []byte("tx"), []byte("1")})
	c.multiQueue = append(c.multiQueue, [][]byte{[]byte("INCR"), []byte("tx")})

	execCmd := commandTable["EXEC"]
	require.NotNil(t, execCmd)
	execCmd.fn(s, c, [][]byte{[]byte("EXEC")}, w)
	w.Flush()

	assert.False(t, c.inMulti)
	assert.Equal(t, "$1\r\n2\r\n", exec(t, s, c, "GET", "tx"))
}

func TestDispatchRejectsUnknownCommand(t *testing.T) {
	s, c := newTestServer(t)
	buf := &bufioBuffer{}
	w := bufio.NewWriter(buf)
	c.writer = w
	cont := s.dispatch(c, [][]byte{[]byte("NOTACOMMAND")})
	assert.True(t, cont)
	assert.Contains(t, buf.String(), "ERR unknown command")
}

func TestDispatchEnforcesArity(t *testing.T) {
	s, c := newTestServer(t)
	buf := &bufioBuffer{}
	w := bufio.NewWriter(buf)
	c.writer = w
	s.dispatch(c, [][]byte{[]byte("GET")})
	assert.Contains(t, buf.String(), "wrong number of arguments")
}

func TestZrevrankMirrorsZrank(t *testing.T) {
	s, c := newTestServer(t)
	exec(t, s, c, "ZADD", "Z", "1", "a", "2", "b", "3", "c")
	assert.Equal(t, ":0\r\n", exec(t, s, c, "ZRANK", "Z", "a"))
	assert.Equal(t, ":1\r\n", exec(t, s, c, "ZREVRANK", "Z", "b"))
	assert.Equal(t, ":0\r\n", exec(t, s, c, "ZREVRANK", "Z", "c"))
}

func TestSetexAndPsetexExpire(t *testing.T) {
	s, c := newTestServer(t)
	assert.Equal(t, "+OK\r\n", exec(t, s, c, "SETEX", "k", "100", "v"))
	assert.Equal(t, "$1\r\nv\r\n", exec(t, s, c, "GET", "k"))
	exec(t, s, c, "PSETEX", "k2", "-1", "v2")
	assert.Equal(t, ":0\r\n", exec(t, s, c, "EXISTS", "k2"))
}

func TestMoveRelocatesKeyAcrossDatabases(t *testing.T) {
	s, c := newTestServer(t)
	exec(t, s, c, "SET", "k", "v")
	assert.Equal(t, ":1\r\n", exec(t, s, c, "MOVE", "k", "1"))
	assert.Equal(t, ":0\r\n", exec(t, s, c, "EXISTS", "k"))

	c.dbIndex = 1
	c.db = s.db(1)
	assert.Equal(t, "$1\r\nv\r\n", exec(t, s, c, "GET", "k"))
}

func TestMoveMissingSourceIsError(t *testing.T) {
	s, c := newTestServer(t)
	buf := &bufioBuffer{}
	w := bufio.NewWriter(buf)
	cmd := commandTable["MOVE"]
	cmd.fn(s, c, [][]byte{[]byte("MOVE"), []byte("missing"), []byte("1")}, w)
	w.Flush()
	assert.Contains(t, buf.String(), "ERR no such key")
}

func TestZunionstoreTreatsSetMembersAsScoreOne(t *testing.T) {
	s, c := newTestServer(t)
	exec(t, s, c, "SADD", "S", "a", "b")
	exec(t, s, c, "ZADD", "Z", "5", "b", "5", "c")
	assert.Equal(t, ":3\r\n", exec(t, s, c, "ZUNIONSTORE", "dest", "2", "S", "Z"))
	assert.Equal(t, "$1\r\n6\r\n", exec(t, s, c, "ZSCORE", "dest", "b"))
	assert.Equal(t, "$1\r\n1\r\n", exec(t, s, c, "ZSCORE", "dest", "a"))
}

func TestSortSkipsCoercionWhenByPatternHasNoStar(t *testing.T) {
	s, c := newTestServer(t)
	exec(t, s, c, "RPUSH", "L", "foo", "bar", "baz")
	out := exec(t, s, c, "SORT", "L", "BY", "nosort", "GET", "#")
	assert.Equal(t, "*3\r\n$3\r\nfoo\r\n$3\r\nbar\r\n$3\r\nbaz\r\n", out)
}

func TestPingTimesOutWhenCmdMuHeld(t *testing.T) {
	s, _ := newTestServer(t)
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	_, ok := s.Ping(1)
	assert.False(t, ok)
}
