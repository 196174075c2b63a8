package server

import (
	"bufio"
	"errors"
	"reflect"
	"strconv"
	"time"

	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/object"
)

var errWrongType = errors.New(wrongTypeErr)

func registerListCommands() {
	register(
		&command{name: "LPUSH", arity: -3, fn: cmdLpush, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "RPUSH", arity: -3, fn: cmdRpush, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "LPOP", arity: 2, fn: cmdLpop, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "RPOP", arity: 2, fn: cmdRpop, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "LLEN", arity: 2, fn: cmdLlen, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "LRANGE", arity: 4, fn: cmdLrange, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "LINDEX", arity: 3, fn: cmdLindex, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "LSET", arity: 4, fn: cmdLset, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "LINSERT", arity: 5, fn: cmdLinsert, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "LTRIM", arity: 4, fn: cmdLtrim, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "LREM", arity: 4, fn: cmdLrem, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "BLPOP", arity: -3, fn: cmdBlpop, firstKey: 1, lastKey: -2, keyStep: 1, write: true},
		&command{name: "BRPOP", arity: -3, fn: cmdBrpop, firstKey: 1, lastKey: -2, keyStep: 1, write: true},
	)
}

func getListForWrite(s *Server, c *Client, key string) (*object.Value, error) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, key)
	if err != nil {
		return nil, err
	}
	if !found {
		v = object.NewEmpty(object.TypeList)
		c.db.Set(key, v)
	} else if v.Type != object.TypeList {
		return nil, errWrongType
	}
	return v, nil
}

func cmdLpush(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, err := getListForWrite(s, c, string(argv[1]))
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	for _, val := range argv[2:] {
		v.List.PushLeft(val)
		if waiter, ok := c.db.PopBlockWaiter(string(argv[1])); ok {
			popped, _ := v.List.PopRight()
			waiter.Ch <- popped
			continue
		}
	}
	s.bumpDirty(int64(len(argv) - 2))
	writeInt(w, int64(v.List.Len()))
}

func cmdRpush(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, err := getListForWrite(s, c, string(argv[1]))
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	for _, val := range argv[2:] {
		if waiter, ok := c.db.PopBlockWaiter(string(argv[1])); ok {
			waiter.Ch <- val
			continue
		}
		v.List.PushRight(val)
	}
	s.bumpDirty(int64(len(argv) - 2))
	writeInt(w, int64(v.List.Len()))
}

func cmdLpop(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeList, false)
	if !ok {
		return
	}
	val, ok := v.List.PopLeft()
	if !ok {
		writeNilBulk(w)
		return
	}
	s.bumpDirty(1)
	writeBulk(w, val)
}

func cmdRpop(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeList, false)
	if !ok {
		return
	}
	val, ok := v.List.PopRight()
	if !ok {
		writeNilBulk(w)
		return
	}
	s.bumpDirty(1)
	writeBulk(w, val)
}

func cmdLlen(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeInt(w, 0)
		return
	}
	if v.Type != object.TypeList {
		writeError(w, wrongTypeErr)
		return
	}
	writeInt(w, int64(v.List.Len()))
}

func cmdLrange(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeArrayHeader(w, 0)
		return
	}
	if v.Type != object.TypeList {
		writeError(w, wrongTypeErr)
		return
	}
	start, _ := strconv.Atoi(string(argv[2]))
	stop, _ := strconv.Atoi(string(argv[3]))
	writeBulkStrings(w, v.List.Range(start, stop))
}

func cmdLindex(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeList, false)
	if !ok {
		return
	}
	idx, _ := strconv.Atoi(string(argv[2]))
	val, ok := v.List.Index(idx)
	if !ok {
		writeNilBulk(w)
		return
	}
	writeBulk(w, val)
}

func cmdLset(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeList, false)
	if !ok {
		writeError(w, "ERR no such key")
		return
	}
	idx, _ := strconv.Atoi(string(argv[2]))
	if !v.List.Set(idx, argv[3]) {
		writeError(w, "ERR index out of range")
		return
	}
	s.bumpDirty(1)
	writeStatus(w, "OK")
}

func cmdLinsert(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeList, false)
	if !ok {
		writeInt(w, 0)
		return
	}
	before := string(argv[2])
	var n int
	switch before {
	case "BEFORE", "before":
		n = v.List.InsertBefore(argv[3], argv[4])
	case "AFTER", "after":
		n = v.List.InsertAfter(argv[3], argv[4])
	default:
		writeError(w, "ERR syntax error")
		return
	}
	if n >= 0 {
		s.bumpDirty(1)
	}
	writeInt(w, int64(n))
}

func cmdLtrim(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeList, false)
	if !ok {
		writeStatus(w, "OK")
		return
	}
	start, _ := strconv.Atoi(string(argv[2]))
	stop, _ := strconv.Atoi(string(argv[3]))
	v.List.Trim(start, stop)
	s.bumpDirty(1)
	writeStatus(w, "OK")
}

func cmdLrem(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeList, false)
	if !ok {
		writeInt(w, 0)
		return
	}
	count, _ := strconv.Atoi(string(argv[2]))
	n := v.List.RemoveCount(count, argv[3])
	if n > 0 {
		s.bumpDirty(int64(n))
	}
	writeInt(w, int64(n))
}

// cmdBlpop and cmdBrpop implement BLPOP/BRPOP (§9): pop immediately if the
// list is non-empty, otherwise register a BlockWaiter and block this
// client's own goroutine until a push satisfies it or the deadline passes.
func cmdBlpop(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	blockingPop(s, c, w, argv, true)
}

func cmdBrpop(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	blockingPop(s, c, w, argv, false)
}

func blockingPop(s *Server, c *Client, w *bufio.Writer, argv [][]byte, left bool) {
	keys := make([]string, len(argv)-2)
	for i := 1; i < len(argv)-1; i++ {
		keys[i-1] = string(argv[i])
	}
	timeoutSec, ok := parseFloat(argv[len(argv)-1])
	if !ok || timeoutSec < 0 {
		writeError(w, "ERR timeout is not a float or out of range")
		return
	}

	for _, key := range keys {
		v, found, err := s.resolveValue(c.db, c.dbIndex, key)
		if err != nil {
			writeError(w, "ERR "+err.Error())
			return
		}
		if !found || v.Type != object.TypeList || v.List.Len() == 0 {
			continue
		}
		var val []byte
		if left {
			val, _ = v.List.PopLeft()
		} else {
			val, _ = v.List.PopRight()
		}
		s.bumpDirty(1)
		writeArrayHeader(w, 2)
		writeBulk(w, []byte(key))
		writeBulk(w, val)
		return
	}

	// One BlockWaiter per key so the satisfying key can be identified by
	// which channel fires; reflect.Select handles the dynamic fan-in since
	// BLPOP/BRPOP accept an arbitrary number of keys.
	waiters := make([]*dbase.BlockWaiter, len(keys))
	for i, key := range keys {
		waiters[i] = &dbase.BlockWaiter{ClientID: c.id, Ch: make(chan []byte, 1)}
		c.db.AddBlockWaiter(key, waiters[i])
	}
	cleanup := func() {
		for i, key := range keys {
			c.db.RemoveBlockWaiter(key, waiters[i])
		}
	}

	cases := make([]reflect.SelectCase, 0, len(waiters)+1)
	for _, waiter := range waiters {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(waiter.Ch)})
	}
	if timeoutSec > 0 {
		timer := time.NewTimer(time.Duration(timeoutSec * float64(time.Second)))
		defer timer.Stop()
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)})
	}

	chosen, recv, recvOK := reflect.Select(cases)
	cleanup()
	if chosen == len(keys) || !recvOK {
		writeNilArray(w)
		return
	}
	val := recv.Bytes()
	s.bumpDirty(1)
	writeArrayHeader(w, 2)
	writeBulk(w, []byte(keys[chosen]))
	writeBulk(w, val)
}
