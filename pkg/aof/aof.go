// Package aof implements the append-only file: command logging, the three
// fsync policies, and BGREWRITEAOF (§4.6).
package aof

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/log"
)

// Writer appends commands to an AOF, tracking the selected database so
// SELECT is only emitted on change, and applying the configured fsync policy.
type Writer struct {
	mu sync.Mutex

	path   string
	file   *os.File
	buf    *bufio.Writer
	policy config.FsyncPolicy

	lastDB     int
	haveLastDB bool
	lastFsync  time.Time
}

// Open opens (creating if absent) the AOF at path for appending.
func Open(path string, policy config.FsyncPolicy) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("aof: open %s: %w", path, err)
	}
	return &Writer{path: path, file: f, buf: bufio.NewWriter(f), policy: policy, lastFsync: time.Now()}, nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Append writes one write command to the AOF in its logged form (see
// Transform: relative expires become absolute), each multi-bulk command
// prefixed by a SELECT if dbID differs from the last command written (§4.6).
func (w *Writer) Append(dbID int, args [][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, cmd := range Transform(args, time.Now()) {
		if err := w.appendLocked(dbID, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) appendLocked(dbID int, args [][]byte) error {
	if !w.haveLastDB || w.lastDB != dbID {
		if err := writeMultiBulk(w.buf, [][]byte{[]byte("SELECT"), []byte(strconv.Itoa(dbID))}); err != nil {
			return err
		}
		w.lastDB = dbID
		w.haveLastDB = true
	}
	if err := writeMultiBulk(w.buf, args); err != nil {
		return err
	}
	return w.maybeFsyncLocked()
}

// AppendTransaction writes a MULTI/.../EXEC block as one atomic unit
// (§4.6, §4.11). pkg/server does not call it: EXEC's MULTI marker, queued
// commands and EXEC each reach the AOF through Append.
func (w *Writer) AppendTransaction(dbID int, commands [][][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.appendLocked(dbID, [][]byte{[]byte("MULTI")}); err != nil {
		return err
	}
	for _, cmd := range commands {
		if err := w.appendLocked(dbID, cmd); err != nil {
			return err
		}
	}
	return w.appendLocked(dbID, [][]byte{[]byte("EXEC")})
}

func (w *Writer) maybeFsyncLocked() error {
	switch w.policy {
	case config.FsyncAlways:
		if err := w.buf.Flush(); err != nil {
			return err
		}
		return w.file.Sync()
	case config.FsyncEverysec:
		return nil // flushed by Tick, not per-write
	default: // FsyncNo
		return nil
	}
}

// Tick is driven by the maintenance ticker (§4.1's beforeSleep-equivalent):
// under "everysec", fsync at most once per second.
func (w *Writer) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.policy != config.FsyncEverysec {
		return
	}
	if time.Since(w.lastFsync) < time.Second {
		return
	}
	if err := w.buf.Flush(); err != nil {
		log.Errorf("aof: flush on tick", err)
		return
	}
	if err := w.file.Sync(); err != nil {
		log.Errorf("aof: fsync on tick", err)
		return
	}
	w.lastFsync = time.Now()
}

// writeMultiBulk encodes args as a RESP multi-bulk array, the wire form
// every write command is logged in (§4.6).
func writeMultiBulk(w io.Writer, args [][]byte) error {
	if _, err := fmt.Fprintf(w, "*%d\r\n", len(args)); err != nil {
		return err
	}
	for _, a := range args {
		if _, err := fmt.Fprintf(w, "$%d\r\n", len(a)); err != nil {
			return err
		}
		if _, err := w.Write(a); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
	}
	return nil
}
