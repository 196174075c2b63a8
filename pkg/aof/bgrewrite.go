package aof

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/object"
)

// Rewriter regenerates the AOF from the live dataset (BGREWRITEAOF, §4.6):
// a goroutine stands in for the forked child, walking the dataset and
// emitting the minimal command sequence that reconstructs it, while Observe
// (called by the server after each Writer.Append) accumulates a diff buffer
// of commands appended concurrently.
// On success the diff buffer is appended to the new file and it is renamed
// over the live AOF; on failure the temp file is discarded. Only one
// rewrite may run at a time.
type Rewriter struct {
	mu      sync.Mutex
	running bool
	diff    [][2]interface{} // {dbID int, args [][]byte}
}

func NewRewriter() *Rewriter {
	return &Rewriter{}
}

func (rw *Rewriter) InProgress() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.running
}

// Begin starts a rewrite in the background. onDone reports success/failure
// so the caller can update state the way the parent does on reaping the
// child (fork simulated as a goroutine, per DESIGN.md's RDB/AOF note).
func (rw *Rewriter) Begin(path string, dbs []*dbase.Database, onDone func(error)) error {
	rw.mu.Lock()
	if rw.running {
		rw.mu.Unlock()
		return fmt.Errorf("aof: rewrite already in progress")
	}
	rw.running = true
	rw.diff = nil
	rw.mu.Unlock()

	go func() {
		err := rw.rewrite(path, dbs)
		rw.mu.Lock()
		rw.running = false
		rw.diff = nil
		rw.mu.Unlock()
		if err != nil {
			log.Errorf("aof: background rewrite failed", err)
		}
		onDone(err)
	}()
	return nil
}

// Observe records a command appended to the live AOF while a rewrite is in
// flight, so it can be replayed onto the new file once the walk completes.
func (rw *Rewriter) Observe(dbID int, args [][]byte) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if !rw.running {
		return
	}
	cp := make([][]byte, len(args))
	for i, a := range args {
		cp[i] = append([]byte(nil), a...)
	}
	rw.diff = append(rw.diff, [2]interface{}{dbID, cp})
}

func (rw *Rewriter) rewrite(path string, dbs []*dbase.Database) error {
	tmp := path + ".rewrite.tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("aof: create rewrite temp: %w", err)
	}
	w := bufio.NewWriter(f)

	lastDB := -1
	writeCmd := func(dbID int, args [][]byte) error {
		if dbID != lastDB {
			if err := writeMultiBulk(w, [][]byte{[]byte("SELECT"), []byte(strconv.Itoa(dbID))}); err != nil {
				return err
			}
			lastDB = dbID
		}
		return writeMultiBulk(w, args)
	}

	for _, db := range dbs {
		var werr error
		db.ForEach(func(key string, v *object.Value) {
			if werr != nil {
				return
			}
			werr = emitMinimalCommands(writeCmd, db.ID, key, v)
		})
		if werr != nil {
			f.Close()
			os.Remove(tmp)
			return werr
		}
	}

	// Emit EXPIREAT for every key with a TTL, after the value so SET/RPUSH/etc.
	// above don't need to interleave with per-key expire lookups.
	for _, db := range dbs {
		for _, key := range db.Keys() {
			if exp, ok := db.TTL(key); ok {
				if err := writeCmd(db.ID, [][]byte{[]byte("EXPIREAT"), []byte(key), []byte(strconv.FormatInt(exp, 10))}); err != nil {
					f.Close()
					os.Remove(tmp)
					return err
				}
			}
		}
	}

	rw.mu.Lock()
	diff := rw.diff
	rw.diff = nil
	rw.mu.Unlock()
	for _, entry := range diff {
		if err := writeCmd(entry[0].(int), entry[1].([][]byte)); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("aof: rename rewritten file: %w", err)
	}
	return nil
}

// emitMinimalCommands writes the minimal command sequence that reconstructs
// one key's value (§4.6): SET, RPUSH, SADD, ZADD, HSET.
func emitMinimalCommands(emit func(dbID int, args [][]byte) error, dbID int, key string, v *object.Value) error {
	switch v.Type {
	case object.TypeString:
		return emit(dbID, [][]byte{[]byte("SET"), []byte(key), v.Str.Bytes()})

	case object.TypeList:
		elems := v.List.Range(0, -1)
		if len(elems) == 0 {
			return nil
		}
		args := make([][]byte, 0, len(elems)+2)
		args = append(args, []byte("RPUSH"), []byte(key))
		args = append(args, elems...)
		return emit(dbID, args)

	case object.TypeSet:
		members := v.Set.Members()
		if len(members) == 0 {
			return nil
		}
		args := make([][]byte, 0, len(members)+2)
		args = append(args, []byte("SADD"), []byte(key))
		args = append(args, members...)
		return emit(dbID, args)

	case object.TypeZSet:
		if v.ZSet.Len() == 0 {
			return nil
		}
		args := [][]byte{[]byte("ZADD"), []byte(key)}
		var werr error
		v.ZSet.ForEach(func(member []byte, score float64) {
			if werr != nil {
				return
			}
			args = append(args, []byte(strconv.FormatFloat(score, 'g', 17, 64)), member)
		})
		if werr != nil {
			return werr
		}
		return emit(dbID, args)

	case object.TypeHash:
		// One HSET per field: the server's HSET takes a single field/value pair.
		var werr error
		v.Hash.ForEach(func(field, value []byte) {
			if werr != nil {
				return
			}
			werr = emit(dbID, [][]byte{[]byte("HSET"), []byte(key), field, value})
		})
		return werr

	default:
		return fmt.Errorf("aof: cannot emit commands for value type %v", v.Type)
	}
}
