package object

// hashEntry is one packed (field, value) pair, order-preserving.
type hashEntry struct {
	field []byte
	value []byte
}

// Hash backs a HASH value. It starts PACKEDMAP (an order-preserving slice)
// and promotes one-way to HASHTABLE once the configured thresholds are
// exceeded (§3, §4.2). The caller (pkg/server) supplies the thresholds from
// CONFIG so this package stays config-agnostic.
type Hash struct {
	encoding Encoding
	packed   []hashEntry // valid iff encoding == EncPackedMap
	table    map[string][]byte
}

func NewHash() *Hash {
	return &Hash{encoding: EncPackedMap}
}

func (h *Hash) Encoding() Encoding { return h.encoding }

func (h *Hash) Len() int {
	if h.encoding == EncPackedMap {
		return len(h.packed)
	}
	return len(h.table)
}

func (h *Hash) Get(field []byte) ([]byte, bool) {
	if h.encoding == EncPackedMap {
		for _, e := range h.packed {
			if string(e.field) == string(field) {
				return e.value, true
			}
		}
		return nil, false
	}
	v, ok := h.table[string(field)]
	return v, ok
}

func (h *Hash) Has(field []byte) bool {
	_, ok := h.Get(field)
	return ok
}

// Set upserts field=value, promoting to HASHTABLE when, after the write,
// entry count exceeds maxEntries or either field/value length exceeds
// maxValueLen. Returns whether the field was newly created.
func (h *Hash) Set(field, value []byte, maxEntries, maxValueLen int) bool {
	created := false
	if h.encoding == EncPackedMap {
		found := false
		for i, e := range h.packed {
			if string(e.field) == string(field) {
				h.packed[i].value = value
				found = true
				break
			}
		}
		if !found {
			h.packed = append(h.packed, hashEntry{field: field, value: value})
			created = true
		}
		if len(h.packed) > maxEntries || len(field) > maxValueLen || len(value) > maxValueLen {
			h.promote()
		}
		return created
	}

	if _, ok := h.table[string(field)]; !ok {
		created = true
	}
	h.table[string(field)] = value
	return created
}

// promote converts PACKEDMAP to HASHTABLE. One-way: never reverts (§3).
func (h *Hash) promote() {
	if h.encoding == EncHashTable {
		return
	}
	h.table = make(map[string][]byte, len(h.packed))
	for _, e := range h.packed {
		h.table[string(e.field)] = e.value
	}
	h.packed = nil
	h.encoding = EncHashTable
}

func (h *Hash) Delete(field []byte) bool {
	if h.encoding == EncPackedMap {
		for i, e := range h.packed {
			if string(e.field) == string(field) {
				h.packed = append(h.packed[:i], h.packed[i+1:]...)
				return true
			}
		}
		return false
	}
	if _, ok := h.table[string(field)]; !ok {
		return false
	}
	delete(h.table, string(field))
	return true
}

// ForEach walks fields in insertion order when PACKEDMAP, unspecified order
// when HASHTABLE.
func (h *Hash) ForEach(fn func(field, value []byte)) {
	if h.encoding == EncPackedMap {
		for _, e := range h.packed {
			fn(e.field, e.value)
		}
		return
	}
	for f, v := range h.table {
		fn([]byte(f), v)
	}
}

// MaxFieldValueLen returns the longest field or value byte length currently
// stored, used by tests to assert the PACKEDMAP threshold invariant.
func (h *Hash) MaxFieldValueLen() int {
	max := 0
	h.ForEach(func(field, value []byte) {
		if len(field) > max {
			max = len(field)
		}
		if len(value) > max {
			max = len(value)
		}
	})
	return max
}
