// Package rdb implements the binary snapshot format of §4.6: length
// encoding, per-type value bodies, the SAVE/BGSAVE triggers, and automatic
// save-rule evaluation.
package rdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/pierrec/lz4/v4"
)

// Magic is the file header: ASCII "REDIS" followed by a 4-digit version.
// Version "0001" is what this implementation writes and reads; there is no
// requirement to interoperate with a real redis-server RDB file (see
// DESIGN.md), so later-version fields the real format has grown are not
// modeled.
const (
	Magic   = "REDIS"
	Version = "0001"
)

// Key-type bytes (§4.6).
const (
	TypeString = 0
	TypeList   = 1
	TypeSet    = 2
	TypeZSet   = 3
	TypeHash   = 4
)

const (
	opExpireMS = 0xFD
	opSelectDB = 0xFE
	opEOF      = 0xFF
)

// length-encoding tag bits (first byte's high 2 bits).
const (
	len6Bit    = 0x00
	len14Bit   = 0x01
	len32Bit   = 0x02
	lenSpecial = 0x03
)

// special-encoding selectors (low 6 bits when lenSpecial).
const (
	encInt8  = 0
	encInt16 = 1
	encInt32 = 2
	encLZF   = 3
)

// lzfMinLen mirrors rdbcompression's real threshold: strings shorter than
// this are never worth compressing.
const lzfMinLen = 20

func writeLength(w io.Writer, n int) error {
	switch {
	case n < 1<<6:
		return writeByte(w, byte(len6Bit<<6)|byte(n))
	case n < 1<<14:
		if err := writeByte(w, byte(len14Bit<<6)|byte(n>>8)); err != nil {
			return err
		}
		return writeByte(w, byte(n))
	default:
		if err := writeByte(w, byte(len32Bit<<6)); err != nil {
			return err
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(n))
		_, err := w.Write(buf[:])
		return err
	}
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// readLength reads a length-encoded value. If the first byte selects the
// "special" tag, special reports true and selector selects the sub-encoding
// (encInt8/16/32/encLZF); n is meaningless in that case.
func readLength(r io.Reader) (n int, special bool, selector byte, err error) {
	var first [1]byte
	if _, err = io.ReadFull(r, first[:]); err != nil {
		return 0, false, 0, err
	}
	tag := first[0] >> 6
	switch tag {
	case len6Bit:
		return int(first[0] & 0x3F), false, 0, nil
	case len14Bit:
		var next [1]byte
		if _, err = io.ReadFull(r, next[:]); err != nil {
			return 0, false, 0, err
		}
		return int(first[0]&0x3F)<<8 | int(next[0]), false, 0, nil
	case len32Bit:
		var buf [4]byte
		if _, err = io.ReadFull(r, buf[:]); err != nil {
			return 0, false, 0, err
		}
		return int(binary.BigEndian.Uint32(buf[:])), false, 0, nil
	default: // lenSpecial
		return 0, true, first[0] & 0x3F, nil
	}
}

// writeString writes a length-encoded string, substituting the int8/16/32
// special encodings for canonical integer strings, and LZF-style
// compression (realized with lz4, see DESIGN.md) for longer strings.
func writeString(w io.Writer, b []byte) error {
	if n, err := strconv.ParseInt(string(b), 10, 64); err == nil && fitsCanonical(b, n) {
		switch {
		case n >= math.MinInt8 && n <= math.MaxInt8:
			if err := writeByte(w, byte(lenSpecial<<6)|encInt8); err != nil {
				return err
			}
			return writeByte(w, byte(int8(n)))
		case n >= math.MinInt16 && n <= math.MaxInt16:
			if err := writeByte(w, byte(lenSpecial<<6)|encInt16); err != nil {
				return err
			}
			var buf [2]byte
			binary.LittleEndian.PutUint16(buf[:], uint16(int16(n)))
			_, err := w.Write(buf[:])
			return err
		case n >= math.MinInt32 && n <= math.MaxInt32:
			if err := writeByte(w, byte(lenSpecial<<6)|encInt32); err != nil {
				return err
			}
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], uint32(int32(n)))
			_, err := w.Write(buf[:])
			return err
		}
	}

	if len(b) >= lzfMinLen {
		compressed := lz4.CompressBlockBound(len(b))
		buf := make([]byte, compressed)
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(b, buf)
		if err == nil && n > 0 && n < len(b) {
			if err := writeByte(w, byte(lenSpecial<<6)|encLZF); err != nil {
				return err
			}
			if err := writeLength(w, n); err != nil {
				return err
			}
			if err := writeLength(w, len(b)); err != nil {
				return err
			}
			_, err := w.Write(buf[:n])
			return err
		}
	}

	if err := writeLength(w, len(b)); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// fitsCanonical rejects numbers whose canonical decimal form doesn't
// round-trip exactly (leading zeros, "+1", etc.) so we never substitute an
// integer encoding for a string that wasn't already canonical.
func fitsCanonical(b []byte, n int64) bool {
	return string(b) == strconv.FormatInt(n, 10)
}

func readString(r io.Reader) ([]byte, error) {
	n, special, selector, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if !special {
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	switch selector {
	case encInt8:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(int64(int8(b[0])), 10)), nil
	case encInt16:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(b[:]))), 10)), nil
	case encInt32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(b[:]))), 10)), nil
	case encLZF:
		compressedLen, _, _, err := readLength(r)
		if err != nil {
			return nil, err
		}
		uncompressedLen, _, _, err := readLength(r)
		if err != nil {
			return nil, err
		}
		compressed := make([]byte, compressedLen)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return nil, err
		}
		out := make([]byte, uncompressedLen)
		n, err := lz4.UncompressBlock(compressed, out)
		if err != nil {
			return nil, fmt.Errorf("rdb: lz4 decompress: %w", err)
		}
		if n != uncompressedLen {
			return nil, fmt.Errorf("rdb: lz4 decompress: expected %d bytes, got %d", uncompressedLen, n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("rdb: unknown special string encoding %d", selector)
	}
}

// score sentinels for the ZSET value body's 8-bit-prefixed double (§4.6).
const (
	scoreNaN     = 253
	scorePlusInf = 254
	scoreMinusInf = 255
)

func writeScore(w io.Writer, score float64) error {
	switch {
	case math.IsNaN(score):
		return writeByte(w, scoreNaN)
	case math.IsInf(score, 1):
		return writeByte(w, scorePlusInf)
	case math.IsInf(score, -1):
		return writeByte(w, scoreMinusInf)
	default:
		s := strconv.FormatFloat(score, 'g', 17, 64)
		if err := writeByte(w, byte(len(s))); err != nil {
			return err
		}
		_, err := io.WriteString(w, s)
		return err
	}
}

func readScore(r *bufio.Reader) (float64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case scoreNaN:
		return math.NaN(), nil
	case scorePlusInf:
		return math.Inf(1), nil
	case scoreMinusInf:
		return math.Inf(-1), nil
	default:
		buf := make([]byte, b)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, err
		}
		return strconv.ParseFloat(string(buf), 64)
	}
}
