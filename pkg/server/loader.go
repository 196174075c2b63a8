package server

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cuemby/burrow/pkg/aof"
)

// newInternalClient builds a *Client with no underlying connection, used for
// the two places §4.6/§4.8 call for "a synthetic no-reply client": AOF
// replay at startup and applying a primary's replicated command stream.
// Ordinary command handlers write their reply through the w *bufio.Writer
// passed alongside argv; the exceptions are SYNC, which writes to c.conn,
// and pub/sub message pushes, which write to c.writer, and those paths
// need a client with a real connection.
func newInternalClient(s *Server, dbIndex int) *Client {
	return &Client{
		server:        s,
		db:            s.db(dbIndex),
		dbIndex:       dbIndex,
		authenticated: true,
		subChannels:   make(map[string]bool),
		subPatterns:   make(map[string]bool),
	}
}

// loadAOF replays the append-only file into the dataset at startup (§4.6:
// "prefer AOF replay if enabled").
func (s *Server) loadAOF(path string) error {
	c := newInternalClient(s, 0)
	return aof.Load(path, func(dbIndex int, argv [][]byte) error {
		if dbIndex != c.dbIndex {
			c.dbIndex = dbIndex
			c.db = s.db(dbIndex)
		}
		name := string(argv[0])
		cmd, ok := commandTable[upper(name)]
		if !ok {
			return fmt.Errorf("unknown command %q in AOF", name)
		}
		cmd.fn(s, c, argv, bufio.NewWriter(io.Discard))
		return nil
	})
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'a' <= c && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
