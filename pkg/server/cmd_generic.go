package server

import (
	"bufio"
	"math/rand"
	"strconv"
	"time"

	"github.com/cuemby/burrow/pkg/pubsub"
)

func registerGenericCommands() {
	register(
		&command{name: "DEL", arity: -2, fn: cmdDel, firstKey: 1, lastKey: -1, keyStep: 1, write: true},
		&command{name: "EXISTS", arity: -2, fn: cmdExists, firstKey: 1, lastKey: -1, keyStep: 1},
		&command{name: "TYPE", arity: 2, fn: cmdType, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "EXPIRE", arity: 3, fn: cmdExpire, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "PEXPIRE", arity: 3, fn: cmdPexpire, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "EXPIREAT", arity: 3, fn: cmdExpireAt, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "PEXPIREAT", arity: 3, fn: cmdPexpireAt, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "PERSIST", arity: 2, fn: cmdPersist, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "TTL", arity: 2, fn: cmdTTL, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "PTTL", arity: 2, fn: cmdPTTL, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "KEYS", arity: 2, fn: cmdKeys},
		&command{name: "RENAME", arity: 3, fn: cmdRename, firstKey: 1, lastKey: 2, keyStep: 1, write: true},
		&command{name: "RENAMENX", arity: 3, fn: cmdRenameNX, firstKey: 1, lastKey: 2, keyStep: 1, write: true},
		&command{name: "MOVE", arity: 3, fn: cmdMove, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "FLUSHDB", arity: 1, fn: cmdFlushDB, write: true},
		&command{name: "FLUSHALL", arity: 1, fn: cmdFlushAll, write: true},
		&command{name: "SELECT", arity: 2, fn: cmdSelect},
		&command{name: "RANDOMKEY", arity: 1, fn: cmdRandomKey},
		&command{name: "DBSIZE", arity: 1, fn: cmdDBSize},
	)
}

func cmdDel(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	var n int64
	for _, k := range argv[1:] {
		if c.db.Delete(string(k)) {
			n++
		}
	}
	s.bumpDirty(n)
	writeInt(w, n)
}

func cmdExists(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	var n int64
	for _, k := range argv[1:] {
		if c.db.Exists(string(k)) {
			n++
		}
	}
	writeInt(w, n)
}

func cmdType(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeStatus(w, "none")
		return
	}
	writeStatus(w, v.Type.String())
}

func cmdExpire(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	n, ok := parseInt(argv[2])
	if !ok {
		writeError(w, "ERR value is not an integer or out of range")
		return
	}
	expireHelper(s, c, w, string(argv[1]), time.Now().Unix()+n)
}

func cmdPexpire(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	n, ok := parseInt(argv[2])
	if !ok {
		writeError(w, "ERR value is not an integer or out of range")
		return
	}
	expireHelper(s, c, w, string(argv[1]), time.Now().Unix()+n/1000)
}

func cmdExpireAt(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	n, ok := parseInt(argv[2])
	if !ok {
		writeError(w, "ERR value is not an integer or out of range")
		return
	}
	expireHelper(s, c, w, string(argv[1]), n)
}

func cmdPexpireAt(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	n, ok := parseInt(argv[2])
	if !ok {
		writeError(w, "ERR value is not an integer or out of range")
		return
	}
	expireHelper(s, c, w, string(argv[1]), n/1000)
}

func expireHelper(s *Server, c *Client, w *bufio.Writer, key string, at int64) {
	if !c.db.Exists(key) {
		writeInt(w, 0)
		return
	}
	c.db.Expire(key, at)
	s.bumpDirty(1)
	writeInt(w, 1)
}

func cmdPersist(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	ok := c.db.Persist(string(argv[1]))
	if ok {
		s.bumpDirty(1)
	}
	writeInt(w, boolInt(ok))
}

func cmdTTL(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	key := string(argv[1])
	if !c.db.Exists(key) {
		writeInt(w, -2)
		return
	}
	exp, ok := c.db.TTL(key)
	if !ok {
		writeInt(w, -1)
		return
	}
	writeInt(w, exp-time.Now().Unix())
}

func cmdPTTL(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	key := string(argv[1])
	if !c.db.Exists(key) {
		writeInt(w, -2)
		return
	}
	exp, ok := c.db.TTL(key)
	if !ok {
		writeInt(w, -1)
		return
	}
	writeInt(w, (exp-time.Now().Unix())*1000)
}

func cmdKeys(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	pattern := string(argv[1])
	var out []string
	for _, k := range c.db.Keys() {
		if pubsub.GlobMatch(pattern, k) {
			out = append(out, k)
		}
	}
	writeSimpleStrings(w, out)
}

func cmdRename(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	src, dst := string(argv[1]), string(argv[2])
	v, found, err := s.resolveValue(c.db, c.dbIndex, src)
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeError(w, "ERR no such key")
		return
	}
	c.db.Delete(src)
	c.db.Set(dst, v)
	s.bumpDirty(1)
	writeStatus(w, "OK")
}

func cmdRenameNX(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	src, dst := string(argv[1]), string(argv[2])
	v, found, err := s.resolveValue(c.db, c.dbIndex, src)
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeError(w, "ERR no such key")
		return
	}
	if c.db.Exists(dst) {
		writeInt(w, 0)
		return
	}
	c.db.Delete(src)
	c.db.Set(dst, v)
	s.bumpDirty(1)
	writeInt(w, 1)
}

// cmdMove implements MOVE key db: relocates a key into another database,
// failing with "no such key" when absent (§7's error taxonomy groups this
// with RENAME's missing-source case) and returning 0 without moving
// anything when the destination already holds the key.
func cmdMove(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	dst, err := strconv.Atoi(string(argv[2]))
	if err != nil || dst < 0 || dst >= s.Config.Databases {
		writeError(w, "ERR DB index is out of range")
		return
	}
	if dst == c.dbIndex {
		writeError(w, "ERR source and destination objects are the same")
		return
	}
	key := string(argv[1])
	v, found, err := s.resolveValue(c.db, c.dbIndex, key)
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeError(w, "ERR no such key")
		return
	}
	destDB := s.db(dst)
	if destDB.Exists(key) {
		writeInt(w, 0)
		return
	}
	c.db.Delete(key)
	destDB.Set(key, v)
	s.bumpDirty(1)
	writeInt(w, 1)
}

func cmdFlushDB(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	c.db.FlushAll(s.dirtyCASByID)
	s.bumpDirty(1)
	writeStatus(w, "OK")
}

func cmdFlushAll(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	for _, db := range s.databases() {
		db.FlushAll(s.dirtyCASByID)
	}
	s.bumpDirty(1)
	writeStatus(w, "OK")
}

func cmdSelect(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	n, err := strconv.Atoi(string(argv[1]))
	if err != nil || n < 0 || n >= s.Config.Databases {
		writeError(w, "ERR DB index is out of range")
		return
	}
	c.dbIndex = n
	c.db = s.db(n)
	writeStatus(w, "OK")
}

func cmdRandomKey(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	keys := c.db.Keys()
	if len(keys) == 0 {
		writeNilBulk(w)
		return
	}
	writeBulk(w, []byte(keys[rand.Intn(len(keys))]))
}

func cmdDBSize(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	writeInt(w, int64(c.db.Len()))
}
