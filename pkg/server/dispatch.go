package server

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/cuemby/burrow/pkg/metrics"
)

// dispatch runs the execution sequence of §4.5 for one already-parsed
// request. It returns false when the connection should close (QUIT);
// protocol-level aborts are handled by serveConn before dispatch is reached.
func (s *Server) dispatch(c *Client, argv [][]byte) bool {
	name := strings.ToUpper(string(argv[0]))

	if name == "QUIT" {
		c.replyMu.Lock()
		writeStatus(c.writer, "OK")
		c.writer.Flush()
		c.replyMu.Unlock()
		return false
	}

	// Serialize the rest of execution against every other client's command
	// (§5's single logical "main thread" for state mutations).
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	// Step 1: evict before running, if maxmemory is configured.
	freeMemoryIfNeeded(s)

	cmd, ok := commandTable[name]
	if !ok {
		c.replyMu.Lock()
		writeError(c.writer, "ERR unknown command '"+name+"'")
		c.writer.Flush()
		c.replyMu.Unlock()
		return true
	}
	if !cmd.checkArity(len(argv)) {
		c.replyMu.Lock()
		writeError(c.writer, "ERR wrong number of arguments for '"+strings.ToLower(name)+"' command")
		c.writer.Flush()
		c.replyMu.Unlock()
		return true
	}

	// Step 6: auth gate.
	if s.Config.RequirePass != "" && !c.authenticated && name != "AUTH" {
		c.replyMu.Lock()
		writeError(c.writer, "ERR operation not permitted")
		c.writer.Flush()
		c.replyMu.Unlock()
		return true
	}

	// Step 7: DENYOOM.
	if cmd.denyOOM && s.Config.MaxMemory > 0 && estimateUsedMemory(s) > s.Config.MaxMemory {
		c.replyMu.Lock()
		writeError(c.writer, "ERR command not allowed when used memory > 'maxmemory'")
		c.writer.Flush()
		c.replyMu.Unlock()
		return true
	}

	// Step 8: pub/sub restriction.
	if c.inPubSubMode() && name != "SUBSCRIBE" && name != "UNSUBSCRIBE" && name != "PSUBSCRIBE" && name != "PUNSUBSCRIBE" {
		c.replyMu.Lock()
		writeError(c.writer, "ERR only (P)SUBSCRIBE / (P)UNSUBSCRIBE / QUIT allowed in this context")
		c.writer.Flush()
		c.replyMu.Unlock()
		return true
	}

	// Step 9: MULTI queuing.
	if c.inMulti && name != "EXEC" && name != "DISCARD" && name != "MULTI" && name != "WATCH" {
		c.multiQueue = append(c.multiQueue, argv)
		c.replyMu.Lock()
		writeStatus(c.writer, "QUEUED")
		c.writer.Flush()
		c.replyMu.Unlock()
		return true
	}

	s.runCommand(c, cmd, argv, c.writer)
	c.replyMu.Lock()
	c.writer.Flush()
	c.replyMu.Unlock()
	return true
}

// runCommand executes cmd's handler (after the VM swap-in check of step 10)
// and performs step 11's post-write bookkeeping. Used both for top-level
// dispatch (w == c.writer) and for EXEC's per-queued-command sub-buffers.
func (s *Server) runCommand(c *Client, cmd *command, argv [][]byte, w *bufio.Writer) {
	// Step 10: VM swap-in preload for every key this command touches.
	if s.vmEngine != nil {
		for _, key := range cmd.keys(argv) {
			if _, _, err := s.resolveValue(c.db, c.dbIndex, key); err != nil {
				writeError(w, "ERR "+err.Error())
				return
			}
		}
	}

	s.dirtyMu.Lock()
	before := s.dirty
	s.dirtyMu.Unlock()

	cmd.fn(s, c, argv, w)
	s.statCommandsProcessed++
	metrics.CommandsProcessedTotal.WithLabelValues(strings.ToLower(cmd.name)).Inc()

	s.dirtyMu.Lock()
	delta := s.dirty - before
	s.dirtyMu.Unlock()

	if delta > 0 || cmd.forceReplication {
		s.feedAfterWrite(c.dbIndex, argv)
	}
}

// runBuffered runs cmd into a fresh buffer and returns its encoded reply,
// used by EXEC to assemble the outer multi-bulk of per-command replies.
func (s *Server) runBuffered(c *Client, cmd *command, argv [][]byte) []byte {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	s.runCommand(c, cmd, argv, w)
	w.Flush()
	return buf.Bytes()
}
