// Package object implements the value-type system: string, list, set, sorted
// set and hash values, their alternative encodings, and the shared small
// integer singletons (§3 of SPEC_FULL.md).
package object

import "time"

// Type is the logical value type of a Value.
type Type int

const (
	TypeString Type = iota
	TypeList
	TypeSet
	TypeZSet
	TypeHash
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeSet:
		return "set"
	case TypeZSet:
		return "zset"
	case TypeHash:
		return "hash"
	default:
		return "none"
	}
}

// Encoding is the physical representation backing a Value.
type Encoding int

const (
	EncRaw Encoding = iota
	EncInt
	EncPackedMap
	EncHashTable
)

func (e Encoding) String() string {
	switch e {
	case EncRaw:
		return "raw"
	case EncInt:
		return "int"
	case EncPackedMap:
		return "zipmap"
	case EncHashTable:
		return "hashtable"
	default:
		return "unknown"
	}
}

// Storage is the residency state of a Value under the VM subsystem.
type Storage int

const (
	StorageMemory Storage = iota
	StorageSwapped
	StorageSwappingOut
	StorageLoadingIn
)

// VMCoords records where a swapped value's bytes live on the swap file.
type VMCoords struct {
	Page      uint64
	UsedPages uint64
	ATime     int64 // unix seconds, last access
}

// Value is the sum-type container for every key's payload. Exactly one of
// Str/List/Set/ZSet/Hash is meaningful, selected by Type.
type Value struct {
	Type     Type
	Encoding Encoding
	Refcount uint32

	Str  *StringPayload
	List *List
	Set  *Set
	ZSet *ZSet
	Hash *Hash

	Storage     Storage
	SwappedType Type // valid only when Storage != StorageMemory
	VM          VMCoords

	shared bool // true for the interned small-integer singletons; never mutated or freed
}

// StringPayload holds a STRING value's bytes, with a fast-path int64 form
// when Encoding == EncInt.
type StringPayload struct {
	bytes []byte
	i     int64
}

// NewStringValue builds a STRING value, selecting RAW/INT encoding and
// substituting a shared singleton where applicable (§4.2).
func NewStringValue(b []byte) *Value {
	if n, ok := ParseCanonicalInt(b); ok {
		if shared, ok := SharedInt(n); ok {
			return shared
		}
		return &Value{Type: TypeString, Encoding: EncInt, Refcount: 1, Str: &StringPayload{i: n}}
	}
	return &Value{Type: TypeString, Encoding: EncRaw, Refcount: 1, Str: &StringPayload{bytes: append([]byte(nil), b...)}}
}

// NewIntValue builds a STRING value directly from an int64, used by INCR/DECR
// family commands that already hold the numeric result.
func NewIntValue(n int64) *Value {
	if shared, ok := SharedInt(n); ok {
		return shared
	}
	return &Value{Type: TypeString, Encoding: EncInt, Refcount: 1, Str: &StringPayload{i: n}}
}

// Bytes returns the string's canonical byte form regardless of encoding.
func (s *StringPayload) Bytes() []byte {
	if s.bytes != nil {
		return s.bytes
	}
	return FormatInt(s.i)
}

// Int returns the int64 value and whether the payload is INT-encoded.
func (s *StringPayload) Int() (int64, bool) {
	if s.bytes != nil {
		return 0, false
	}
	return s.i, true
}

// Len reports the byte length of the value's decoded form.
func (s *StringPayload) Len() int {
	return len(s.Bytes())
}

// NewEmpty constructs an empty container value of the given type.
func NewEmpty(t Type) *Value {
	switch t {
	case TypeList:
		return &Value{Type: TypeList, Encoding: EncRaw, Refcount: 1, List: NewList()}
	case TypeSet:
		return &Value{Type: TypeSet, Encoding: EncRaw, Refcount: 1, Set: NewSet()}
	case TypeZSet:
		return &Value{Type: TypeZSet, Encoding: EncRaw, Refcount: 1, ZSet: NewZSet()}
	case TypeHash:
		return &Value{Type: TypeHash, Encoding: EncPackedMap, Refcount: 1, Hash: NewHash()}
	default:
		panic("object: NewEmpty called with TypeString")
	}
}

// IsShared reports whether v is one of the immutable 0..9999 singletons.
func (v *Value) IsShared() bool { return v.shared }

// Now is the injected clock used for VM atime bookkeeping; tests may override it.
var Now = func() int64 { return time.Now().Unix() }
