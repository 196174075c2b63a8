package replication

import (
	"bufio"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplicaLinkBuffersUntilOnline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	link := NewReplicaLink(server)
	require.Equal(t, StateWaitBGSaveStart, link.State())

	errCh := make(chan error, 1)
	go func() { errCh <- link.Feed(0, []byte("*1\r\n$4\r\nPING\r\n")) }()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Feed should not block while buffering")
	}

	link.SetState(StateOnline)
	go func() {
		_ = link.FlushBuffer()
	}()

	buf := make([]byte, len("*1\r\n$4\r\nPING\r\n"))
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "*1\r\n$4\r\nPING\r\n", string(buf))
}

func TestCopyBufferFrom(t *testing.T) {
	s1, c1 := net.Pipe()
	s2, c2 := net.Pipe()
	defer s1.Close()
	defer c1.Close()
	defer s2.Close()
	defer c2.Close()

	a := NewReplicaLink(s1)
	b := NewReplicaLink(s2)
	a.Buffer([]byte("hello"))

	b.CopyBufferFrom(a)
	assert.Len(t, b.buffer, 1)
	assert.Equal(t, "hello", string(b.buffer[0]))
}

func TestHandshakeReceivesRDBAndTransitionsToConnected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	payload := "REDIS0001\xFF"
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		_, _ = r.ReadString('\n') // SYNC

		_, _ = conn.Write([]byte("$" + strconv.Itoa(len(payload)) + "\r\n"))
		_, _ = conn.Write([]byte(payload))
	}()

	dir := t.TempDir()
	rdbPath := filepath.Join(dir, "dump.rdb")

	c := NewClient()
	r, err := c.Handshake(ln.Addr().String(), "", rdbPath, 2*time.Second)
	require.NoError(t, err)
	_ = r

	assert.Equal(t, StateConnected, c.State())

	data, err := os.ReadFile(rdbPath)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}
