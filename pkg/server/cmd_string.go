package server

import (
	"bufio"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/object"
)

func registerStringCommands() {
	register(
		&command{name: "GET", arity: 2, fn: cmdGet, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "SET", arity: -3, fn: cmdSet, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "SETNX", arity: 3, fn: cmdSetNX, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "SETEX", arity: 4, fn: cmdSetex, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "PSETEX", arity: 4, fn: cmdPsetex, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "GETSET", arity: 3, fn: cmdGetSet, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "APPEND", arity: 3, fn: cmdAppend, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "STRLEN", arity: 2, fn: cmdStrlen, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "INCR", arity: 2, fn: cmdIncr, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "DECR", arity: 2, fn: cmdDecr, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "INCRBY", arity: 3, fn: cmdIncrBy, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "DECRBY", arity: 3, fn: cmdDecrBy, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "INCRBYFLOAT", arity: 3, fn: cmdIncrByFloat, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "MGET", arity: -2, fn: cmdMget, firstKey: 1, lastKey: -1, keyStep: 1},
		&command{name: "MSET", arity: -3, fn: cmdMset, firstKey: 1, lastKey: -1, keyStep: 2, write: true, denyOOM: true},
		&command{name: "GETRANGE", arity: 4, fn: cmdGetrange, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "SUBSTR", arity: 4, fn: cmdGetrange, firstKey: 1, lastKey: 1, keyStep: 1},
	)
}

func cmdGet(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeString, false)
	if !ok {
		return
	}
	writeBulk(w, v.Str.Bytes())
}

// cmdSet implements SET key value [EX sec|PX ms] [NX|XX] (§4.2's encoding
// selection happens inside NewStringValue).
func cmdSet(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	key, val := string(argv[1]), argv[2]

	var expireAt int64
	hasExpire := false
	nx, xx := false, false

	for i := 3; i < len(argv); i++ {
		opt := strings.ToUpper(string(argv[i]))
		switch opt {
		case "EX", "PX":
			if i+1 >= len(argv) {
				writeError(w, "ERR syntax error")
				return
			}
			n, ok := parseInt(argv[i+1])
			if !ok {
				writeError(w, "ERR value is not an integer or out of range")
				return
			}
			if opt == "EX" {
				expireAt = time.Now().Unix() + n
			} else {
				expireAt = time.Now().Unix() + n/1000
			}
			hasExpire = true
			i++
		case "NX":
			nx = true
		case "XX":
			xx = true
		default:
			writeError(w, "ERR syntax error")
			return
		}
	}

	exists := c.db.Exists(key)
	if nx && exists {
		writeNilBulk(w)
		return
	}
	if xx && !exists {
		writeNilBulk(w)
		return
	}

	c.db.Set(key, object.NewStringValue(val))
	if hasExpire {
		c.db.Expire(key, expireAt)
	}
	s.bumpDirty(1)
	writeStatus(w, "OK")
}

func cmdSetNX(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	key := string(argv[1])
	if c.db.Exists(key) {
		writeInt(w, 0)
		return
	}
	c.db.Set(key, object.NewStringValue(argv[2]))
	s.bumpDirty(1)
	writeInt(w, 1)
}

// cmdSetex implements SETEX key seconds value: SET plus an absolute expiry,
// logged to the AOF as the SET+EXPIREAT pair pkg/aof.Transform produces
// (§4.6).
func cmdSetex(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	n, ok := parseInt(argv[2])
	if !ok || n <= 0 {
		writeError(w, "ERR invalid expire time in 'setex' command")
		return
	}
	key := string(argv[1])
	c.db.Set(key, object.NewStringValue(argv[3]))
	c.db.Expire(key, time.Now().Unix()+n)
	s.bumpDirty(1)
	writeStatus(w, "OK")
}

// cmdPsetex is SETEX with a millisecond expiry.
func cmdPsetex(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	n, ok := parseInt(argv[2])
	if !ok || n <= 0 {
		writeError(w, "ERR invalid expire time in 'psetex' command")
		return
	}
	key := string(argv[1])
	c.db.Set(key, object.NewStringValue(argv[3]))
	c.db.Expire(key, time.Now().Unix()+n/1000)
	s.bumpDirty(1)
	writeStatus(w, "OK")
}

func cmdGetSet(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	key := string(argv[1])
	old, found, err := s.resolveValue(c.db, c.dbIndex, key)
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if found && old.Type != object.TypeString {
		writeError(w, wrongTypeErr)
		return
	}
	c.db.Set(key, object.NewStringValue(argv[2]))
	s.bumpDirty(1)
	if !found {
		writeNilBulk(w)
		return
	}
	writeBulk(w, old.Str.Bytes())
}

func cmdAppend(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	key := string(argv[1])
	v, found, err := s.resolveValue(c.db, c.dbIndex, key)
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if found && v.Type != object.TypeString {
		writeError(w, wrongTypeErr)
		return
	}
	var newVal []byte
	if found {
		newVal = append(append([]byte(nil), v.Str.Bytes()...), argv[2]...)
	} else {
		newVal = append([]byte(nil), argv[2]...)
	}
	c.db.SetKeepTTL(key, object.NewStringValue(newVal))
	s.bumpDirty(1)
	writeInt(w, int64(len(newVal)))
}

func cmdStrlen(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeInt(w, 0)
		return
	}
	if v.Type != object.TypeString {
		writeError(w, wrongTypeErr)
		return
	}
	writeInt(w, int64(v.Str.Len()))
}

func cmdIncr(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	incrByHelper(s, c, w, string(argv[1]), 1)
}

func cmdDecr(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	incrByHelper(s, c, w, string(argv[1]), -1)
}

func cmdIncrBy(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	n, ok := parseInt(argv[2])
	if !ok {
		writeError(w, "ERR value is not an integer or out of range")
		return
	}
	incrByHelper(s, c, w, string(argv[1]), n)
}

func cmdDecrBy(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	n, ok := parseInt(argv[2])
	if !ok {
		writeError(w, "ERR value is not an integer or out of range")
		return
	}
	incrByHelper(s, c, w, string(argv[1]), -n)
}

func incrByHelper(s *Server, c *Client, w *bufio.Writer, key string, delta int64) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, key)
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	var cur int64
	if found {
		if v.Type != object.TypeString {
			writeError(w, wrongTypeErr)
			return
		}
		n, ok := v.Str.Int()
		if !ok {
			n, ok = parseInt(v.Str.Bytes())
			if !ok {
				writeError(w, "ERR value is not an integer or out of range")
				return
			}
		}
		cur = n
	}
	next := cur + delta
	c.db.SetKeepTTL(key, object.NewIntValue(next))
	s.bumpDirty(1)
	writeInt(w, next)
}

func cmdIncrByFloat(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	delta, ok := parseFloat(argv[2])
	if !ok {
		writeError(w, "ERR value is not a valid float")
		return
	}
	key := string(argv[1])
	v, found, err := s.resolveValue(c.db, c.dbIndex, key)
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	var cur float64
	if found {
		if v.Type != object.TypeString {
			writeError(w, wrongTypeErr)
			return
		}
		f, ok := parseFloat(v.Str.Bytes())
		if !ok {
			writeError(w, "ERR value is not a valid float")
			return
		}
		cur = f
	}
	next := cur + delta
	result := formatFloat(next)
	c.db.SetKeepTTL(key, object.NewStringValue([]byte(result)))
	s.bumpDirty(1)
	writeBulk(w, []byte(result))
}

func cmdMget(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	writeArrayHeader(w, len(argv)-1)
	for _, k := range argv[1:] {
		v, found, err := s.resolveValue(c.db, c.dbIndex, string(k))
		if err != nil || !found || v.Type != object.TypeString {
			writeNilBulk(w)
			continue
		}
		writeBulk(w, v.Str.Bytes())
	}
}

func cmdMset(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	if (len(argv)-1)%2 != 0 {
		writeError(w, "ERR wrong number of arguments for 'mset' command")
		return
	}
	for i := 1; i < len(argv); i += 2 {
		c.db.Set(string(argv[i]), object.NewStringValue(argv[i+1]))
	}
	s.bumpDirty(int64((len(argv) - 1) / 2))
	writeStatus(w, "OK")
}

func cmdGetrange(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeBulk(w, []byte{})
		return
	}
	if v.Type != object.TypeString {
		writeError(w, wrongTypeErr)
		return
	}
	start, err1 := strconv.Atoi(string(argv[2]))
	stop, err2 := strconv.Atoi(string(argv[3]))
	if err1 != nil || err2 != nil {
		writeError(w, "ERR value is not an integer or out of range")
		return
	}
	b := v.Str.Bytes()
	n := len(b)
	start = clampIndex(start, n)
	stop = clampIndex(stop, n)
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		writeNilBulk(w)
		return
	}
	writeBulk(w, b[start:stop+1])
}

func clampIndex(i, n int) int {
	if i < 0 {
		i = n + i
	}
	if i < 0 {
		i = 0
	}
	return i
}
