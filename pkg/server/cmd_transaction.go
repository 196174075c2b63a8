package server

import (
	"bufio"
	"strings"
)

func registerTransactionCommands() {
	register(
		&command{name: "MULTI", arity: 1, fn: cmdMulti},
		&command{name: "EXEC", arity: 1, fn: cmdExec},
		&command{name: "DISCARD", arity: 1, fn: cmdDiscard},
		&command{name: "WATCH", arity: -2, fn: cmdWatch},
		&command{name: "UNWATCH", arity: 1, fn: cmdUnwatch},
	)
}

func cmdMulti(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	if c.inMulti {
		writeError(w, "ERR MULTI calls can not be nested")
		return
	}
	c.inMulti = true
	c.multiQueue = nil
	writeStatus(w, "OK")
}

func cmdDiscard(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	if !c.inMulti {
		writeError(w, "ERR DISCARD without MULTI")
		return
	}
	c.inMulti = false
	c.multiQueue = nil
	c.dirtyCAS = false
	c.unwatchAll()
	writeStatus(w, "OK")
}

// cmdExec runs every buffered command in order and assembles one multi-bulk
// reply from their individual encoded replies (§4.11). If any watched key
// changed since WATCH, the transaction aborts with a nil array instead.
func cmdExec(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	if !c.inMulti {
		writeError(w, "ERR EXEC without MULTI")
		return
	}
	queue := c.multiQueue
	c.inMulti = false
	c.multiQueue = nil
	aborted := c.dirtyCAS
	c.dirtyCAS = false
	c.unwatchAll()

	if aborted {
		writeNilArray(w)
		return
	}

	// Bracket the queued commands in the AOF/replica feed: a MULTI marker
	// goes out now, and the dirty bump makes runCommand feed EXEC afterwards.
	s.feedAfterWrite(c.dbIndex, [][]byte{[]byte("MULTI")})
	s.bumpDirty(1)

	writeArrayHeader(w, len(queue))
	for _, cmdArgv := range queue {
		name := strings.ToUpper(string(cmdArgv[0]))
		cmd, ok := commandTable[name]
		if !ok {
			writeError(w, "ERR unknown command '"+name+"'")
			continue
		}
		raw := s.runBuffered(c, cmd, cmdArgv)
		w.Write(raw)
	}
}

func cmdWatch(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	if c.inMulti {
		writeError(w, "ERR WATCH inside MULTI is not allowed")
		return
	}
	for _, k := range argv[1:] {
		key := string(k)
		c.db.Watch(key, c.id)
		c.watched = append(c.watched, watchKey{db: c.dbIndex, key: key})
	}
	writeStatus(w, "OK")
}

func cmdUnwatch(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	c.unwatchAll()
	writeStatus(w, "OK")
}
