package rdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/log"
)

// Save writes every database's live keyspace to path, bit-exact to §4.6:
// magic+version header, per-db SELECT markers, optional per-key expire,
// key-type byte, key string, value body, terminator.
//
// Save always runs synchronously on the calling goroutine. SAVE (§4.6)
// blocks the command that invoked it for the duration, matching the
// original's foreground-save semantics; BGSAVE (see Background) instead
// runs this same function on a separate goroutine standing in for the
// forked child the original uses.
func Save(path string, dbs []*dbase.Database) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("rdb: create temp file: %w", err)
	}
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	if _, err = io.WriteString(w, Magic+Version); err != nil {
		return err
	}

	for _, db := range dbs {
		keys := db.Keys()
		if len(keys) == 0 {
			continue
		}
		if err = writeByte(w, opSelectDB); err != nil {
			return err
		}
		if err = writeLength(w, db.ID); err != nil {
			return err
		}
		for _, key := range keys {
			v, ok := db.Lookup(key)
			if !ok {
				continue
			}
			if exp, ok := db.TTL(key); ok {
				if err = writeByte(w, opExpireMS); err != nil {
					return err
				}
				var buf [4]byte
				binary.LittleEndian.PutUint32(buf[:], uint32(exp))
				if _, err = w.Write(buf[:]); err != nil {
					return err
				}
			}
			if err = writeByte(w, TypeByte(v)); err != nil {
				return err
			}
			if err = writeString(w, []byte(key)); err != nil {
				return err
			}
			if err = WriteValue(w, v); err != nil {
				return err
			}
		}
	}

	if err = writeByte(w, opEOF); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("rdb: flush: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("rdb: fsync: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("rdb: close: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rdb: rename into place: %w", err)
	}
	return nil
}

// Background runs Save on its own goroutine, standing in for the forked
// BGSAVE child (Go has no portable fork()). No copy-on-write or immutable
// snapshot is taken: Save walks the live databases, taking each Database's
// own lock per call, so writes that land during the walk may or may not be
// included in the file. onDone is called
// with the result once the goroutine finishes; the caller uses it to update
// last-save-time / dirty counters the way the parent process would upon
// reaping the child.
func Background(path string, dbs []*dbase.Database, onDone func(error)) {
	go func() {
		err := Save(path, dbs)
		if err != nil {
			log.Errorf("background save failed", err)
		}
		onDone(err)
	}()
}

// Load replays path's contents into dbs (indexed by ID), returning an error
// for any parse failure — loading is fatal on error per §4.6's "Loading".
func Load(path string, lookup func(id int) *dbase.Database) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("rdb: open: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header := make([]byte, len(Magic)+len(Version))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("rdb: read header: %w", err)
	}
	if string(header[:len(Magic)]) != Magic {
		return fmt.Errorf("rdb: bad magic %q", header[:len(Magic)])
	}

	var (
		current    *dbase.Database = lookup(0)
		pendingExp int64           = -1
	)

	for {
		opcode, err := r.ReadByte()
		if err == io.EOF {
			return fmt.Errorf("rdb: truncated file, missing terminator")
		}
		if err != nil {
			return fmt.Errorf("rdb: read opcode: %w", err)
		}

		switch opcode {
		case opEOF:
			return nil

		case opSelectDB:
			n, _, _, err := readLength(r)
			if err != nil {
				return fmt.Errorf("rdb: read db index: %w", err)
			}
			current = lookup(n)
			if current == nil {
				return fmt.Errorf("rdb: unknown database index %d", n)
			}

		case opExpireMS:
			var buf [4]byte
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return fmt.Errorf("rdb: read expire: %w", err)
			}
			pendingExp = int64(binary.LittleEndian.Uint32(buf[:]))

		default:
			key, err := readString(r)
			if err != nil {
				return fmt.Errorf("rdb: read key: %w", err)
			}
			v, err := ReadValue(r, opcode)
			if err != nil {
				return fmt.Errorf("rdb: read value for key %q: %w", key, err)
			}
			if current == nil {
				return fmt.Errorf("rdb: key %q before any SELECT", key)
			}
			current.Set(string(key), v)
			if pendingExp >= 0 {
				current.Expire(string(key), pendingExp)
				pendingExp = -1
			}
		}
	}
}

// Exists reports whether path names a readable file, used to decide whether
// to attempt Load on startup.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDir creates the parent directory of path if missing.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
