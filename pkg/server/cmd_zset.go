package server

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/object"
)

func registerZSetCommands() {
	register(
		&command{name: "ZADD", arity: -4, fn: cmdZadd, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "ZSCORE", arity: 3, fn: cmdZscore, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "ZREM", arity: -3, fn: cmdZrem, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "ZCARD", arity: 2, fn: cmdZcard, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "ZRANK", arity: 3, fn: cmdZrank, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "ZREVRANK", arity: 3, fn: cmdZrevrank, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "ZRANGE", arity: -4, fn: cmdZrange, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "ZREVRANGE", arity: -4, fn: cmdZrevrange, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "ZRANGEBYSCORE", arity: -4, fn: cmdZrangeByScore, firstKey: 1, lastKey: 1, keyStep: 1},
		&command{name: "ZINCRBY", arity: 4, fn: cmdZincrby, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "ZREMRANGEBYSCORE", arity: 4, fn: cmdZremrangeByScore, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "ZREMRANGEBYRANK", arity: 4, fn: cmdZremrangeByRank, firstKey: 1, lastKey: 1, keyStep: 1, write: true},
		&command{name: "ZUNIONSTORE", arity: -4, fn: cmdZunionStore, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
		&command{name: "ZINTERSTORE", arity: -4, fn: cmdZinterStore, firstKey: 1, lastKey: 1, keyStep: 1, write: true, denyOOM: true},
	)
}

func getZSetForWrite(s *Server, c *Client, key string) (*object.Value, error) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, key)
	if err != nil {
		return nil, err
	}
	if !found {
		v = object.NewEmpty(object.TypeZSet)
		c.db.Set(key, v)
	} else if v.Type != object.TypeZSet {
		return nil, errWrongType
	}
	return v, nil
}

func cmdZadd(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	if (len(argv)-2)%2 != 0 {
		writeError(w, "ERR syntax error")
		return
	}
	v, err := getZSetForWrite(s, c, string(argv[1]))
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	var added int64
	for i := 2; i < len(argv); i += 2 {
		score, ok := parseFloat(argv[i])
		if !ok {
			writeError(w, "ERR value is not a valid float")
			return
		}
		if v.ZSet.Add(score, argv[i+1]) {
			added++
		}
	}
	s.bumpDirty(1)
	writeInt(w, added)
}

func cmdZscore(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeNilBulk(w)
		return
	}
	if v.Type != object.TypeZSet {
		writeError(w, wrongTypeErr)
		return
	}
	score, ok := v.ZSet.Score(argv[2])
	if !ok {
		writeNilBulk(w)
		return
	}
	writeBulk(w, []byte(formatFloat(score)))
}

func cmdZrem(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeZSet, false)
	if !ok {
		writeInt(w, 0)
		return
	}
	var n int64
	for _, m := range argv[2:] {
		if v.ZSet.Remove(m) {
			n++
		}
	}
	if n > 0 {
		s.bumpDirty(n)
	}
	writeInt(w, n)
}

func cmdZcard(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeInt(w, 0)
		return
	}
	if v.Type != object.TypeZSet {
		writeError(w, wrongTypeErr)
		return
	}
	writeInt(w, int64(v.ZSet.Len()))
}

func cmdZrank(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeNilBulk(w)
		return
	}
	if v.Type != object.TypeZSet {
		writeError(w, wrongTypeErr)
		return
	}
	rank := v.ZSet.Rank(argv[2])
	if rank < 0 {
		writeNilBulk(w)
		return
	}
	writeInt(w, int64(rank))
}

// cmdZrevrank implements ZREVRANK: the member's rank counted from the
// highest score down, the mirror image of ZRANK.
func cmdZrevrank(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	if !found {
		writeNilBulk(w)
		return
	}
	if v.Type != object.TypeZSet {
		writeError(w, wrongTypeErr)
		return
	}
	rank := v.ZSet.Rank(argv[2])
	if rank < 0 {
		writeNilBulk(w)
		return
	}
	writeInt(w, int64(v.ZSet.Len()-1-rank))
}

func writeZMembers(w *bufio.Writer, members []object.ZMember, withScores bool) {
	if !withScores {
		writeArrayHeader(w, len(members))
		for _, m := range members {
			writeBulk(w, m.Member)
		}
		return
	}
	writeArrayHeader(w, len(members)*2)
	for _, m := range members {
		writeBulk(w, m.Member)
		writeBulk(w, []byte(formatFloat(m.Score)))
	}
}

func cmdZrange(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	zrangeHelper(s, c, w, argv, false)
}

func cmdZrevrange(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	zrangeHelper(s, c, w, argv, true)
}

func zrangeHelper(s *Server, c *Client, w *bufio.Writer, argv [][]byte, rev bool) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	withScores := len(argv) > 4 && strings.EqualFold(string(argv[4]), "WITHSCORES")
	if !found {
		writeArrayHeader(w, 0)
		return
	}
	if v.Type != object.TypeZSet {
		writeError(w, wrongTypeErr)
		return
	}
	start, _ := strconv.Atoi(string(argv[2]))
	stop, _ := strconv.Atoi(string(argv[3]))
	members := v.ZSet.RangeByRank(start, stop)
	if rev {
		for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
			members[i], members[j] = members[j], members[i]
		}
	}
	writeZMembers(w, members, withScores)
}

func parseScoreBound(b []byte) (float64, bool, error) {
	s := string(b)
	excl := false
	if strings.HasPrefix(s, "(") {
		excl = true
		s = s[1:]
	}
	switch s {
	case "-inf":
		return negInf, excl, nil
	case "+inf", "inf":
		return posInf, excl, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return f, excl, nil
}

const (
	posInf = float64(1) << 62
	negInf = -posInf
)

func cmdZrangeByScore(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[1]))
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	min, minExcl, err1 := parseScoreBound(argv[2])
	max, maxExcl, err2 := parseScoreBound(argv[3])
	if err1 != nil || err2 != nil {
		writeError(w, "ERR min or max is not a float")
		return
	}
	withScores := false
	for _, a := range argv[4:] {
		if strings.EqualFold(string(a), "WITHSCORES") {
			withScores = true
		}
	}
	if !found {
		writeArrayHeader(w, 0)
		return
	}
	if v.Type != object.TypeZSet {
		writeError(w, wrongTypeErr)
		return
	}
	members := v.ZSet.RangeByScore(object.ScoreRange{Min: min, Max: max, MinExcl: minExcl, MaxExcl: maxExcl})
	writeZMembers(w, members, withScores)
}

func cmdZincrby(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	delta, ok := parseFloat(argv[2])
	if !ok {
		writeError(w, "ERR value is not a valid float")
		return
	}
	v, err := getZSetForWrite(s, c, string(argv[1]))
	if err != nil {
		writeError(w, wrongTypeErr)
		return
	}
	next := v.ZSet.IncrBy(delta, argv[3])
	s.bumpDirty(1)
	writeBulk(w, []byte(formatFloat(next)))
}

func cmdZremrangeByScore(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeZSet, false)
	if !ok {
		writeInt(w, 0)
		return
	}
	min, minExcl, err1 := parseScoreBound(argv[2])
	max, maxExcl, err2 := parseScoreBound(argv[3])
	if err1 != nil || err2 != nil {
		writeError(w, "ERR min or max is not a float")
		return
	}
	n := v.ZSet.DeleteRangeByScore(object.ScoreRange{Min: min, Max: max, MinExcl: minExcl, MaxExcl: maxExcl})
	if n > 0 {
		s.bumpDirty(int64(n))
	}
	writeInt(w, int64(n))
}

func cmdZremrangeByRank(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	v, ok := s.lookupTyped(c, w, string(argv[1]), object.TypeZSet, false)
	if !ok {
		writeInt(w, 0)
		return
	}
	start, _ := strconv.Atoi(string(argv[2]))
	stop, _ := strconv.Atoi(string(argv[3]))
	n := v.ZSet.DeleteRangeByRank(start, stop)
	if n > 0 {
		s.bumpDirty(int64(n))
	}
	writeInt(w, int64(n))
}

// zstoreHelper implements the shared body of ZUNIONSTORE/ZINTERSTORE: collect
// numkeys source zsets, apply WEIGHTS and AGGREGATE (§4.4), and store the
// combined result at dst.
func zstoreHelper(s *Server, c *Client, w *bufio.Writer, argv [][]byte, union bool) {
	dst := string(argv[1])
	numkeys, err := strconv.Atoi(string(argv[2]))
	if err != nil || numkeys <= 0 || len(argv) < 3+numkeys {
		writeError(w, "ERR syntax error")
		return
	}
	keys := argv[3 : 3+numkeys]
	weights := make([]float64, numkeys)
	for i := range weights {
		weights[i] = 1
	}
	aggregate := "SUM"

	rest := argv[3+numkeys:]
	for i := 0; i < len(rest); i++ {
		opt := strings.ToUpper(string(rest[i]))
		switch opt {
		case "WEIGHTS":
			for j := 0; j < numkeys; j++ {
				i++
				if i >= len(rest) {
					writeError(w, "ERR syntax error")
					return
				}
				f, ok := parseFloat(rest[i])
				if !ok {
					writeError(w, "ERR weight value is not a float")
					return
				}
				weights[j] = f
			}
		case "AGGREGATE":
			i++
			if i >= len(rest) {
				writeError(w, "ERR syntax error")
				return
			}
			aggregate = strings.ToUpper(string(rest[i]))
		default:
			writeError(w, "ERR syntax error")
			return
		}
	}

	acc := make(map[string]float64)
	counts := make(map[string]int)
	for i, k := range keys {
		v, found, err := s.resolveValue(c.db, c.dbIndex, string(k))
		if err != nil {
			writeError(w, "ERR "+err.Error())
			return
		}
		if !found {
			continue
		}
		mix := func(member []byte, score float64) {
			weighted := score * weights[i]
			key := string(member)
			counts[key]++
			switch aggregate {
			case "MIN":
				if cur, ok := acc[key]; !ok || weighted < cur {
					acc[key] = weighted
				}
			case "MAX":
				if cur, ok := acc[key]; !ok || weighted > cur {
					acc[key] = weighted
				}
			default:
				acc[key] += weighted
			}
		}
		switch v.Type {
		case object.TypeZSet:
			v.ZSet.ForEach(mix)
		case object.TypeSet:
			// §4.4: a SET input is treated as a zset with every member
			// scored 1.0.
			v.Set.ForEach(func(member []byte) { mix(member, 1.0) })
		default:
			writeError(w, wrongTypeErr)
			return
		}
	}

	result := object.NewZSet()
	for member, score := range acc {
		if !union && counts[member] != len(keys) {
			continue
		}
		result.Add(score, []byte(member))
	}

	if result.Len() == 0 {
		c.db.Delete(dst)
	} else {
		v := object.NewEmpty(object.TypeZSet)
		v.ZSet = result
		c.db.Set(dst, v)
	}
	s.bumpDirty(1)
	writeInt(w, int64(result.Len()))
}

func cmdZunionStore(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	zstoreHelper(s, c, w, argv, true)
}

func cmdZinterStore(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	zstoreHelper(s, c, w, argv, false)
}
