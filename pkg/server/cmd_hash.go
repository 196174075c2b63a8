package server

import (
	"bufio"
	"strconv"

	"github.com/cuemby/burrow/pkg/object"
)

func registerHashCommands() {
	register(
		&command{name: "HSET", arity: 4, fn: cmdHset, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "HSETNX", arity: 4, fn: cmdHsetNX, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "HGET", arity: 3, fn: cmdHget, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "HDEL", arity: -3, fn: cmdHdel, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "HEXISTS", arity: 3, fn: cmdHexists, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "HLEN", arity: 2, fn: cmdHlen, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "HGETALL", arity: 2, fn: cmdHgetall, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "HKEYS", arity: 2, fn: cmdHkeys, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "HVALS", arity: 2, fn: cmdHvals, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "HMSET", arity: -4, fn: cmdHmset, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "HMGET", arity: -3, fn: cmdHmget, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "HINCRBY", arity: 4, fn: cmdHincrby, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
	)
}

func getHashForWrite(s *Server, c *Client, key string) (*object.Value, error) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, key)
	if err != nil {
		return nil, err
	}
	if !found {
		v = object.NewEmpty(object.TypeHash)
		c.db.Set(key, v)
	} else if v.Type != object.TypeHash {
		return nil, errWrongType
	}
	return v, nil
}

func cmdHset(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, err := getHashForWrite(s, c, string(argv[1]))
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	created := v.Hash.Set(argv[2], argv[3], s.Config.HashMaxZipmapEntries, s.Config.HashMaxZipmapValue)
	s.bumpDirty(1)
	writeInt(w, boolInt(created))
}

func cmdHsetNX(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, err := getHashForWrite(s, c, string(argv[1]))
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	if v.Hash.Has(argv[2]) {
		writeInt(w, 0)
		return
	}
	v.Hash.Set(argv[2], argv[3], s.Config.HashMaxZipmapEntries, s.Config.HashMaxZipmapValue)
	s.bumpDirty(1)
	writeInt(w, 1)
}

func cmdHget(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeNilBulk(w)
		return
	}
	if v.Type != object.TypeHash {
		writeError(w, wrongTypeErr)
		return
	}
	val, ok := v.Hash.Get(argv[2])
	if !ok {
		writeNilBulk(w)
		return
	}
	writeBulk(w, val)
}

func cmdHdel(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeHash, false)
	if !ok {
		writeInt(w, 0)
		return
	}
	var n int64
	for _, f := range argv[2:] {
		if v.Hash.Delete(f) {
			n++
		}
	}
	if n > 0 {
		s.bumpDirty(n)
	}
	writeInt(w, n)
}

func cmdHexists(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeInt(w, 0)
		return
	}
	if v.Type != object.TypeHash {
		writeError(w, wrongTypeErr)
		return
	}
	writeInt(w, boolInt(v.Hash.Has(argv[2])))
}

func cmdHlen(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeInt(w, 0)
		return
	}
	if v.Type != object.TypeHash {
		writeError(w, wrongTypeErr)
		return
	}
	writeInt(w, int64(v.Hash.Len()))
}

func cmdHgetall(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeArrayHeader(w, 0)
		return
	}
	if v.Type != object.TypeHash {
		writeError(w, wrongTypeErr)
		return
	}
	writeArrayHeader(w, v.Hash.Len()*2)
	v.Hash.ForEach(func(field, value []byte) {
		writeBulk(w, field)
		writeBulk(w, value)
	})
}

func cmdHkeys(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeArrayHeader(w, 0)
		return
	}
	if v.Type != object.TypeHash {
		writeError(w, wrongTypeErr)
		return
	}
	writeArrayHeader(w, v.Hash.Len())
	v.Hash.ForEach(func(field, value []byte) {
		writeBulk(w, field)
	})
}

func cmdHvals(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeArrayHeader(w, 0)
		return
	}
	if v.Type != object.TypeHash {
		writeError(w, wrongTypeErr)
		return
	}
	writeArrayHeader(w, v.Hash.Len())
	v.Hash.ForEach(func(field, value []byte) {
		writeBulk(w, value)
	})
}

func cmdHmset(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	if (len(argv)-2)%2 != 0 {
		writeError(w, "ERR wrong number of arguments for 'hmset' command")
		return
	}
	v, err := getHashForWrite(s, c, string(argv[1]))
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	for i := 2; i < len(argv); i += 2 {
		v.Hash.Set(argv[i], argv[i+1], s.Config.HashMaxZipmapEntries, s.Config.HashMaxZipmapValue)
	}
	s.bumpDirty(1)
	writeStatus(w, "OK")
}

func cmdHmget(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	writeArrayHeader(w, len(argv)-2)
	if !found {
		for range argv[2:] {
			writeNilBulk(w)
		}
		return
	}
	if v.Type != object.TypeHash {
		for range argv[2:] {
			writeNilBulk(w)
		}
		return
	}
	for _, f := range argv[2:] {
		val, ok := v.Hash.Get(f)
		if !ok {
			writeNilBulk(w)
			continue
		}
		writeBulk(w, val)
	}
}

func cmdHincrby(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	delta, ok := parseInt(argv[3])
	if !ok {
		writeError(w, "ERR value is not an integer or out of range")
		return
	}
	v, err := getHashForWrite(s, c, string(argv[1]))
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	var cur int64
	if val, ok := v.Hash.Get(argv[2]); ok {
		n, ok := parseInt(val)
		if !ok {
			writeError(w, "ERR hash value is not an integer")
			return
		}
		cur = n
	}
	next := cur + delta
	v.Hash.Set(argv[2], []byte(strconv.FormatInt(next, 10)), s.Config.HashMaxZipmapEntries, s.Config.HashMaxZipmapValue)
	s.bumpDirty(1)
	writeInt(w, next)
}
