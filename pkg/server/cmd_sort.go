package server

import (
	"bufio"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/object"
)

func registerSortCommand() {
	register(
		&command{name: "SORT", arity: -2, fn: cmdSort, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
	)
}

// cmdSort implements SORT key [BY pattern] [LIMIT off cnt] [GET pattern ...]
// [ASC|DESC] [ALPHA] [STORE dst], reading the source elements out of a
// LIST/SET/ZSET value (§4.12).
func cmdSort(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeArrayHeader(w, 0)
		return
	}

	var elements [][]byte
	switch v.Type {
	case object.TypeList:
		elements = v.List.Range(0, -1)
	case object.TypeSet:
		elements = v.Set.Members()
	case object.TypeZSet:
		for _, m := range v.ZSet.RangeByRank(0, -1) {
			elements = append(elements, m.Member)
		}
	default:
		writeError(w, wrongTypeErr)
		return
	}

	byPattern := ""
	getPatterns := []string{}
	alpha := false
	desc := false
	limitOff, limitCount := 0, -1
	storeDst := ""

	for i := 2; i < len(argv); i++ {
		opt := strings.ToUpper(string(argv[i]))
		switch opt {
		case "BY":
			i++
			if i >= len(argv) {
				writeError(w, "ERR syntax error")
				return
			}
			byPattern = string(argv[i])
		case "GET":
			i++
			if i >= len(argv) {
				writeError(w, "ERR syntax error")
				return
			}
			getPatterns = append(getPatterns, string(argv[i]))
		case "LIMIT":
			if i+2 >= len(argv) {
				writeError(w, "ERR syntax error")
				return
			}
			off, err1 := strconv.Atoi(string(argv[i+1]))
			cnt, err2 := strconv.Atoi(string(argv[i+2]))
			if err1 != nil || err2 != nil {
				writeError(w, "ERR value is not an integer or out of range")
				return
			}
			limitOff, limitCount = off, cnt
			i += 2
		case "ASC":
			desc = false
		case "DESC":
			desc = true
		case "ALPHA":
			alpha = true
		case "STORE":
			i++
			if i >= len(argv) {
				writeError(w, "ERR syntax error")
				return
			}
			storeDst = string(argv[i])
		default:
			writeError(w, "ERR syntax error")
			return
		}
	}

	// §4.12: a BY pattern with no "*" in it skips sorting entirely (the
	// elements come back in their source-container order); GET still runs.
	skipSort := byPattern != "" && !strings.Contains(byPattern, "*")

	type scored struct {
		elem  []byte
		key   []byte
		num   float64
		isNum bool
	}
	items := make([]scored, len(elements))
	for i, e := range elements {
		sortKey := e
		if byPattern != "" && !skipSort {
			sortKey = s.lookupByPattern(c, byPattern, e)
		}
		it := scored{elem: e, key: sortKey}
		if !skipSort && !alpha {
			n, ok := parseFloat(sortKey)
			it.num, it.isNum = n, ok
			if !ok {
				writeError(w, "ERR One or more scores can't be converted into double")
				return
			}
		}
		items[i] = it
	}

	if !skipSort {
		sort.SliceStable(items, func(i, j int) bool {
			var less bool
			if alpha {
				less = string(items[i].key) < string(items[j].key)
			} else {
				less = items[i].num < items[j].num
			}
			if desc {
				return !less
			}
			return less
		})
	}

	if limitOff > 0 || limitCount >= 0 {
		end := len(items)
		if limitCount >= 0 && limitOff+limitCount < end {
			end = limitOff + limitCount
		}
		if limitOff > len(items) {
			limitOff = len(items)
		}
		if end < limitOff {
			end = limitOff
		}
		items = items[limitOff:end]
	}

	var out [][]byte
	for _, it := range items {
		if len(getPatterns) == 0 {
			out = append(out, it.elem)
			continue
		}
		for _, gp := range getPatterns {
			if gp == "#" {
				out = append(out, it.elem)
				continue
			}
			out = append(out, s.lookupByPattern(c, gp, it.elem))
		}
	}

	if storeDst != "" {
		list := object.NewEmpty(object.TypeList)
		for _, b := range out {
			list.List.PushRight(b)
		}
		if len(out) == 0 {
			c.db.Delete(storeDst)
		} else {
			c.db.Set(storeDst, list)
		}
		s.bumpDirty(1)
		writeInt(w, int64(len(out)))
		return
	}

	writeBulkStrings(w, out)
}

// lookupByPattern substitutes the single "*" in pattern with elem and
// resolves the resulting key, supporting a trailing "->field" hash lookup
// (§4.12's BY/GET pattern dialect).
func (s *Server) lookupByPattern(c *Client, pattern string, elem []byte) []byte {
	key := strings.Replace(pattern, "*", string(elem), 1)
	field := ""
	if idx := strings.Index(key, "->"); idx >= 0 {
		field = key[idx+2:]
		key = key[:idx]
	}
	v, found, err := s.resolveValue(c.db, c.dbIndex, key)
	if err != nil || !found {
		return nil
	}
	if field != "" {
		if v.Type != object.TypeHash {
			return nil
		}
		val, _ := v.Hash.Get([]byte(field))
		return val
	}
	if v.Type != object.TypeString {
		return nil
	}
	return v.Str.Bytes()
}
