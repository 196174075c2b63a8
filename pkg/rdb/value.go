package rdb

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cuemby/burrow/pkg/object"
)

// TypeByte returns the key-type byte (§4.6) for v.
func TypeByte(v *object.Value) byte {
	switch v.Type {
	case object.TypeString:
		return TypeString
	case object.TypeList:
		return TypeList
	case object.TypeSet:
		return TypeSet
	case object.TypeZSet:
		return TypeZSet
	case object.TypeHash:
		return TypeHash
	default:
		panic(fmt.Sprintf("rdb: unknown value type %v", v.Type))
	}
}

// WriteValue writes v's value body per §4.6.
func WriteValue(w io.Writer, v *object.Value) error {
	switch v.Type {
	case object.TypeString:
		return writeString(w, v.Str.Bytes())

	case object.TypeList:
		elems := v.List.Range(0, -1)
		if err := writeLength(w, len(elems)); err != nil {
			return err
		}
		for _, e := range elems {
			if err := writeString(w, e); err != nil {
				return err
			}
		}
		return nil

	case object.TypeSet:
		members := v.Set.Members()
		if err := writeLength(w, len(members)); err != nil {
			return err
		}
		for _, m := range members {
			if err := writeString(w, m); err != nil {
				return err
			}
		}
		return nil

	case object.TypeZSet:
		if err := writeLength(w, v.ZSet.Len()); err != nil {
			return err
		}
		var werr error
		v.ZSet.ForEach(func(member []byte, score float64) {
			if werr != nil {
				return
			}
			if werr = writeString(w, member); werr != nil {
				return
			}
			werr = writeScore(w, score)
		})
		return werr

	case object.TypeHash:
		if err := writeLength(w, v.Hash.Len()); err != nil {
			return err
		}
		var werr error
		v.Hash.ForEach(func(field, value []byte) {
			if werr != nil {
				return
			}
			if werr = writeString(w, field); werr != nil {
				return
			}
			werr = writeString(w, value)
		})
		return werr

	default:
		return fmt.Errorf("rdb: cannot encode value type %v", v.Type)
	}
}

// ReadValue reads a value body of the given key-type byte.
func ReadValue(r *bufio.Reader, typeByte byte) (*object.Value, error) {
	switch typeByte {
	case TypeString:
		b, err := readString(r)
		if err != nil {
			return nil, err
		}
		return object.NewStringValue(b), nil

	case TypeList:
		n, _, _, err := readLength(r)
		if err != nil {
			return nil, err
		}
		v := object.NewEmpty(object.TypeList)
		for i := 0; i < n; i++ {
			elem, err := readString(r)
			if err != nil {
				return nil, err
			}
			v.List.PushRight(elem)
		}
		return v, nil

	case TypeSet:
		n, _, _, err := readLength(r)
		if err != nil {
			return nil, err
		}
		v := object.NewEmpty(object.TypeSet)
		for i := 0; i < n; i++ {
			member, err := readString(r)
			if err != nil {
				return nil, err
			}
			v.Set.Add(member)
		}
		return v, nil

	case TypeZSet:
		n, _, _, err := readLength(r)
		if err != nil {
			return nil, err
		}
		v := object.NewEmpty(object.TypeZSet)
		for i := 0; i < n; i++ {
			member, err := readString(r)
			if err != nil {
				return nil, err
			}
			score, err := readScore(r)
			if err != nil {
				return nil, err
			}
			v.ZSet.Add(score, member)
		}
		return v, nil

	case TypeHash:
		n, _, _, err := readLength(r)
		if err != nil {
			return nil, err
		}
		v := object.NewEmpty(object.TypeHash)
		for i := 0; i < n; i++ {
			field, err := readString(r)
			if err != nil {
				return nil, err
			}
			value, err := readString(r)
			if err != nil {
				return nil, err
			}
			v.Hash.Set(field, value, 1<<30, 1<<30)
		}
		return v, nil

	default:
		return nil, fmt.Errorf("rdb: unknown key-type byte %d", typeByte)
	}
}
