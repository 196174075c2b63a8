package object

// ZSet backs a ZSET value: a member→score mapping kept mutually consistent
// with a Skiplist ordered by (score, member) (§3, §4.4).
type ZSet struct {
	scores map[string]float64
	sl     *Skiplist
}

func NewZSet() *ZSet {
	return &ZSet{scores: make(map[string]float64), sl: NewSkiplist()}
}

func (z *ZSet) Len() int { return len(z.scores) }

func (z *ZSet) Score(member []byte) (float64, bool) {
	s, ok := z.scores[string(member)]
	return s, ok
}

// Add inserts or updates member's score, keeping the skiplist in sync.
// Returns true if member was newly added.
func (z *ZSet) Add(score float64, member []byte) bool {
	if old, ok := z.scores[string(member)]; ok {
		if old == score {
			return false
		}
		z.sl.Delete(old, member)
		z.sl.Insert(score, member)
		z.scores[string(member)] = score
		return false
	}
	z.sl.Insert(score, member)
	z.scores[string(member)] = score
	return true
}

// IncrBy adds delta to member's current score (0 if absent) and returns the
// new score.
func (z *ZSet) IncrBy(delta float64, member []byte) float64 {
	cur, _ := z.scores[string(member)]
	newScore := cur + delta
	z.Add(newScore, member)
	return newScore
}

func (z *ZSet) Remove(member []byte) bool {
	score, ok := z.scores[string(member)]
	if !ok {
		return false
	}
	z.sl.Delete(score, member)
	delete(z.scores, string(member))
	return true
}

func (z *ZSet) Rank(member []byte) int {
	score, ok := z.scores[string(member)]
	if !ok {
		return -1
	}
	return z.sl.Rank(score, member)
}

// RangeByRank returns (score, member) pairs for ranks [start, stop] after
// normalizing negative/out-of-range indices the way LRANGE does.
func (z *ZSet) RangeByRank(start, stop int) []ZMember {
	n := z.Len()
	if n == 0 {
		return nil
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil
	}
	out := make([]ZMember, 0, stop-start+1)
	node := z.sl.ByRank(start)
	for i := start; i <= stop && node != nil; i++ {
		out = append(out, ZMember{Member: node.member, Score: node.score})
		node = node.level[0].forward
	}
	return out
}

// ZMember is a (member, score) pair returned by range queries.
type ZMember struct {
	Member []byte
	Score  float64
}

// ScoreRange describes an inclusive-or-exclusive [Min,Max] bound for
// ZRANGEBYSCORE (§4.4: bounds prefixed by '(' are open).
type ScoreRange struct {
	Min, Max         float64
	MinExcl, MaxExcl bool
}

// RangeByScore returns members with Min <= score <= Max (bounds adjusted for
// exclusivity), in ascending order.
func (z *ZSet) RangeByScore(r ScoreRange) []ZMember {
	var out []ZMember
	start := r.Min
	node := z.sl.FirstWithScoreGTE(start)
	for node != nil {
		if node.score > r.Max || (r.MaxExcl && node.score == r.Max) {
			break
		}
		if !(r.MinExcl && node.score == r.Min) {
			out = append(out, ZMember{Member: node.member, Score: node.score})
		}
		node = node.level[0].forward
	}
	return out
}

// DeleteRangeByScore removes every member in [r.Min, r.Max] and returns the count removed.
func (z *ZSet) DeleteRangeByScore(r ScoreRange) int {
	members := z.RangeByScore(r)
	for _, m := range members {
		z.Remove(m.Member)
	}
	return len(members)
}

// DeleteRangeByRank removes members in 0-based rank [start, stop] inclusive.
func (z *ZSet) DeleteRangeByRank(start, stop int) int {
	members := z.RangeByRank(start, stop)
	for _, m := range members {
		z.Remove(m.Member)
	}
	return len(members)
}

// ForEach walks members in skiplist (ascending score) order.
func (z *ZSet) ForEach(fn func(member []byte, score float64)) {
	z.sl.ForEach(fn)
}
