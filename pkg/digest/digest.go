// Package digest implements the dataset hash behind DEBUG DIGEST (§4.13): a
// 160-bit value that is equal for two logically identical datasets
// regardless of storage layout, encoding, or key insertion order.
package digest

import (
	"crypto/sha1"
	"encoding/binary"

	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/object"
)

// Digest is a 160-bit SHA-1-sized accumulator, XOR-combined across keys and
// (for order-independent aggregates) across elements.
type Digest [sha1.Size]byte

func (d *Digest) xorWith(other [sha1.Size]byte) {
	for i := range d {
		d[i] ^= other[i]
	}
}

func sum(b []byte) [sha1.Size]byte {
	return sha1.Sum(b)
}

// Dataset computes the global digest across every database: for each DB the
// id is mixed in, then every key's digest is XORed into the running total.
func Dataset(dbs []*dbase.Database) Digest {
	var total Digest
	for _, db := range dbs {
		var dbMix [sha1.Size]byte
		binary.BigEndian.PutUint32(dbMix[:4], uint32(db.ID))
		total.xorWith(sum(dbMix[:]))

		db.ForEach(func(key string, v *object.Value) {
			kd := Key(key, v)
			total.xorWith(kd)
		})
	}
	return total
}

// Key computes one key's digest: XOR-mix of SHA1(key) and SHA1(type), then
// the value's own digest folded in via Value.
func Key(key string, v *object.Value) [sha1.Size]byte {
	var kd [sha1.Size]byte
	keyHash := sum([]byte(key))
	typeHash := sum([]byte(v.Type.String()))
	for i := range kd {
		kd[i] = keyHash[i] ^ typeHash[i]
	}
	valueHash := Value(v)
	for i := range kd {
		kd[i] ^= valueHash[i]
	}
	return kd
}

// Value computes a value's own digest: order-independent XOR-fold for
// SET/ZSET/HASH, feedback chaining for LIST, direct hash for STRING.
func Value(v *object.Value) [sha1.Size]byte {
	switch v.Type {
	case object.TypeString:
		return sum(v.Str.Bytes())

	case object.TypeList:
		var running [sha1.Size]byte
		v.List.ForEach(func(elem []byte) {
			mixed := make([]byte, 0, len(running)+len(elem))
			mixed = append(mixed, running[:]...)
			elemHash := sum(elem)
			for i := range running {
				mixed[i] = running[i] ^ elemHash[i]
			}
			running = sum(mixed)
		})
		return running

	case object.TypeSet:
		var acc [sha1.Size]byte
		v.Set.ForEach(func(member []byte) {
			h := sum(member)
			for i := range acc {
				acc[i] ^= h[i]
			}
		})
		return acc

	case object.TypeZSet:
		var acc [sha1.Size]byte
		v.ZSet.ForEach(func(member []byte, score float64) {
			buf := make([]byte, len(member)+8)
			copy(buf, member)
			binary.BigEndian.PutUint64(buf[len(member):], uint64(score*1e9))
			h := sum(buf)
			for i := range acc {
				acc[i] ^= h[i]
			}
		})
		return acc

	case object.TypeHash:
		var acc [sha1.Size]byte
		v.Hash.ForEach(func(field, value []byte) {
			buf := make([]byte, 0, len(field)+len(value)+1)
			buf = append(buf, field...)
			buf = append(buf, 0)
			buf = append(buf, value...)
			h := sum(buf)
			for i := range acc {
				acc[i] ^= h[i]
			}
		})
		return acc

	default:
		return [sha1.Size]byte{}
	}
}
