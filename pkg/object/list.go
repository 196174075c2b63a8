package object

// listNode is one element of the doubly linked sequence backing a LIST value.
type listNode struct {
	prev, next *listNode
	val        []byte
}

// List is the ordered sequence of STRING values backing a LIST value (§3).
type List struct {
	head, tail *listNode
	length     int
}

func NewList() *List {
	return &List{}
}

func (l *List) Len() int { return l.length }

func (l *List) PushLeft(val []byte) {
	n := &listNode{val: val}
	if l.head == nil {
		l.head, l.tail = n, n
	} else {
		n.next = l.head
		l.head.prev = n
		l.head = n
	}
	l.length++
}

func (l *List) PushRight(val []byte) {
	n := &listNode{val: val}
	if l.tail == nil {
		l.head, l.tail = n, n
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.length++
}

func (l *List) PopLeft() ([]byte, bool) {
	if l.head == nil {
		return nil, false
	}
	n := l.head
	l.remove(n)
	return n.val, true
}

func (l *List) PopRight() ([]byte, bool) {
	if l.tail == nil {
		return nil, false
	}
	n := l.tail
	l.remove(n)
	return n.val, true
}

func (l *List) remove(n *listNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.length--
}

// nodeAt returns the node at a 0-based index, negative indices counting
// from the tail, walking from whichever end is closer.
func (l *List) nodeAt(index int) *listNode {
	if index < 0 {
		index += l.length
	}
	if index < 0 || index >= l.length {
		return nil
	}
	if index <= l.length/2 {
		n := l.head
		for i := 0; i < index; i++ {
			n = n.next
		}
		return n
	}
	n := l.tail
	for i := l.length - 1; i > index; i-- {
		n = n.prev
	}
	return n
}

// Index returns the element at a 0-based (negative-from-tail) index.
func (l *List) Index(index int) ([]byte, bool) {
	n := l.nodeAt(index)
	if n == nil {
		return nil, false
	}
	return n.val, true
}

// Set overwrites the element at index, error semantics left to the caller.
func (l *List) Set(index int, val []byte) bool {
	n := l.nodeAt(index)
	if n == nil {
		return false
	}
	n.val = val
	return true
}

// InsertBefore/InsertAfter implement LINSERT relative to the first node whose
// value equals pivot; returns the new length, or -1 if pivot was not found.
func (l *List) InsertBefore(pivot, val []byte) int {
	return l.insert(pivot, val, true)
}

func (l *List) InsertAfter(pivot, val []byte) int {
	return l.insert(pivot, val, false)
}

func (l *List) insert(pivot, val []byte, before bool) int {
	for n := l.head; n != nil; n = n.next {
		if string(n.val) == string(pivot) {
			nn := &listNode{val: val}
			if before {
				nn.prev = n.prev
				nn.next = n
				if n.prev != nil {
					n.prev.next = nn
				} else {
					l.head = nn
				}
				n.prev = nn
			} else {
				nn.next = n.next
				nn.prev = n
				if n.next != nil {
					n.next.prev = nn
				} else {
					l.tail = nn
				}
				n.next = nn
			}
			l.length++
			return l.length
		}
	}
	return -1
}

// Range returns a slice of values in [start,stop] inclusive. Negative indices
// count from the tail, out-of-range bounds are clamped, and an empty range
// yields nil.
func (l *List) Range(start, stop int) [][]byte {
	if l.length == 0 {
		return nil
	}
	if start < 0 {
		start += l.length
	}
	if stop < 0 {
		stop += l.length
	}
	if start < 0 {
		start = 0
	}
	if stop >= l.length {
		stop = l.length - 1
	}
	if start > stop || start >= l.length {
		return nil
	}
	out := make([][]byte, 0, stop-start+1)
	n := l.nodeAt(start)
	for i := start; i <= stop && n != nil; i++ {
		out = append(out, n.val)
		n = n.next
	}
	return out
}

// Trim keeps only [start,stop] inclusive (post index-normalization), dropping
// everything else.
func (l *List) Trim(start, stop int) {
	kept := l.Range(start, stop)
	l.head, l.tail, l.length = nil, nil, 0
	for _, v := range kept {
		l.PushRight(v)
	}
}

// RemoveCount removes elements equal to val. count>0 scans head-to-tail
// removing up to count matches; count<0 scans tail-to-head; count==0 removes
// all matches. Returns the number removed.
func (l *List) RemoveCount(count int, val []byte) int {
	removed := 0
	if count >= 0 {
		n := l.head
		limit := count
		for n != nil {
			next := n.next
			if string(n.val) == string(val) {
				l.remove(n)
				removed++
				if limit > 0 && removed >= limit {
					break
				}
			}
			n = next
		}
	} else {
		n := l.tail
		limit := -count
		for n != nil {
			prev := n.prev
			if string(n.val) == string(val) {
				l.remove(n)
				removed++
				if removed >= limit {
					break
				}
			}
			n = prev
		}
	}
	return removed
}

// ForEach walks the list head to tail.
func (l *List) ForEach(fn func([]byte)) {
	for n := l.head; n != nil; n = n.next {
		fn(n.val)
	}
}
