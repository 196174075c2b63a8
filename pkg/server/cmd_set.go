package server

import (
	"bufio"

	"github.com/cuemby/burrow/pkg/object"
)

func registerSetCommands() {
	register(
		&command{name: "SADD", arity: -3, fn: cmdSadd, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "SREM", arity: -3, fn: cmdSrem, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "SISMEMBER", arity: 3, fn: cmdSismember, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "SCARD", arity: 2, fn: cmdScard, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "SMEMBERS", arity: 2, fn: cmdSmembers, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "SUNION", arity: -2, fn: cmdSunion, firstKey: 1, lastKey: -1, keyStep: 1},
		&command{name: "SINTER", arity: -2, fn: cmdSinter, firstKey: 1, lastKey: -1, keyStep: 1},
		&command{name: "SDIFF", arity: -2, fn: cmdSdiff, firstKey: 1, lastKey: -1, keyStep: 1},
		&command{name: "SUNIONSTORE", arity: -3, fn: cmdSunionStore, firstKey: 1, lastKey: -1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "SINTERSTORE", arity: -3, fn: cmdSinterStore, firstKey: 1, lastKey: -1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "SDIFFSTORE", arity: -3, fn: cmdSdiffStore, firstKey: 1, lastKey: -1, keyStep: 1, write: true, denyOOM: true},
	)
}

func getSetForWrite(s *Server, c *Client, key string) (*object.Value, error) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, key)
	if err != nil {
		return nil, err
	}
	if !found {
		v = object.NewEmpty(object.TypeSet)
		c.db.Set(key, v)
	} else if v.Type != object.TypeSet {
		return nil, errWrongType
	}
	return v, nil
}

func cmdSadd(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, err := getSetForWrite(s, c, string(argv[1]))
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	var n int64
	for _, m := range argv[2:] {
		if v.Set.Add(m) {
			n++
		}
	}
	if n > 0 {
		s.bumpDirty(n)
	}
	writeInt(w, n)
}

func cmdSrem(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeSet, false)
	if !ok {
		writeInt(w, 0)
		return
	}
	var n int64
	for _, m := range argv[2:] {
		if v.Set.Remove(m) {
			n++
		}
	}
	if n > 0 {
		s.bumpDirty(n)
	}
	writeInt(w, n)
}

func cmdSismember(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeInt(w, 0)
		return
	}
	if v.Type != object.TypeSet {
		writeError(w, wrongTypeErr)
		return
	}
	writeInt(w, boolInt(v.Set.Has(argv[2])))
}

func cmdScard(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeInt(w, 0)
		return
	}
	if v.Type != object.TypeSet {
		writeError(w, wrongTypeErr)
		return
	}
	writeInt(w, int64(v.Set.Len()))
}

func cmdSmembers(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeArrayHeader(w, 0)
		return
	}
	if v.Type != object.TypeSet {
		writeError(w, wrongTypeErr)
		return
	}
	writeBulkStrings(w, v.Set.Members())
}

func loadSets(s *Server, c *Client, keys [][]byte) ([]*object.Set, error) {
	sets := make([]*object.Set, 0, len(keys))
	for _, k := range keys {
		v, found, err := s.resolveValue(c.db, c.dbIndex, string(k))
		if err != nil {
			return nil, err
		}
		if !found {
			sets = append(sets, object.NewSet())
			continue
		}
		if v.Type != object.TypeSet {
			return nil, errWrongType
		}
		sets = append(sets, v.Set)
	}
	return sets, nil
}

func cmdSunion(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	sets, err := loadSets(s, c, argv[1:])
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	writeBulkStrings(w, object.Union(sets...).Members())
}

func cmdSinter(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	sets, err := loadSets(s, c, argv[1:])
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	writeBulkStrings(w, object.Inter(sets...).Members())
}

func cmdSdiff(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	sets, err := loadSets(s, c, argv[1:])
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	writeBulkStrings(w, object.Diff(sets...).Members())
}

func storeSetResult(s *Server, c *Client, w *bufio.Writer, dst string, result *object.Set) {
	if result.Len() == 0 {
		c.db.Delete(dst)
	} else {
		v := object.NewEmpty(object.TypeSet)
		v.Set = result
		c.db.Set(dst, v)
	}
	s.bumpDirty(1)
	writeInt(w, int64(result.Len()))
}

func cmdSunionStore(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	sets, err := loadSets(s, c, argv[2:])
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	storeSetResult(s, c, w, string(argv[1]), object.Union(sets...))
}

func cmdSinterStore(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	sets, err := loadSets(s, c, argv[2:])
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	storeSetResult(s, c, w, string(argv[1]), object.Inter(sets...))
}

func cmdSdiffStore(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	sets, err := loadSets(s, c, argv[2:])
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	storeSetResult(s, c, w, string(argv[1]), object.Diff(sets...))
}
