package vm

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"

	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/object"
	"github.com/cuemby/burrow/pkg/rdb"
)

// Engine owns the swap file, page bitmap, and (optionally) the worker pool
// backing VM value-swapping (§4.9). Swapped values are stored using the
// same length-encoded value-body format pkg/rdb writes to snapshots, so
// swapping a value out or in is just WriteValue/ReadValue against an
// offset instead of the head of an RDB file.
type Engine struct {
	mu       sync.Mutex
	file     *os.File
	pages    *Bitmap
	pageSize int64
	pool     *Pool // nil in blocking mode
	index    *Index

	swappedCount int
}

// Open opens or creates the fixed-size swap file at path, sized for
// pageCount pages of pageSize bytes each (§4.9). maxThreads == 0 selects
// blocking mode; otherwise a worker pool of up to maxThreads is used.
func Open(path string, pageCount, pageSize int64, maxThreads int, indexPath string) (*Engine, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("vm: open swap file: %w", err)
	}
	if err := f.Truncate(pageCount * pageSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("vm: size swap file: %w", err)
	}

	idx, err := OpenIndex(indexPath)
	if err != nil {
		f.Close()
		return nil, err
	}

	e := &Engine{
		file:     f,
		pages:    NewBitmap(uint64(pageCount), 1),
		pageSize: pageSize,
		index:    idx,
	}
	if maxThreads > 0 {
		e.pool = NewPool(maxThreads)
	}

	// Reattach pages already marked used by a prior run (§4.9: "a restart
	// with vm-enabled yes can reattach to an existing swap file").
	if err := idx.ForEach(func(key string, coords object.VMCoords) {
		for p := coords.Page; p < coords.Page+coords.UsedPages; p++ {
			e.pages.set(p)
		}
	}); err != nil {
		f.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) Close() error {
	if err := e.index.Close(); err != nil {
		return err
	}
	return e.file.Close()
}

func (e *Engine) Blocking() bool { return e.pool == nil }

// SwapOut writes v to the swap file and returns the coordinates to store on
// the key's Value header; the caller frees the in-memory value afterward.
func (e *Engine) SwapOut(key string, v *object.Value) (object.VMCoords, error) {
	var w bytes.Buffer
	if err := rdb.WriteValue(&w, v); err != nil {
		return object.VMCoords{}, fmt.Errorf("vm: encode value for swap: %w", err)
	}
	buf := w.Bytes()

	pagesNeeded := (uint64(len(buf)) + uint64(e.pageSize) - 1) / uint64(e.pageSize)
	if pagesNeeded == 0 {
		pagesNeeded = 1
	}

	e.mu.Lock()
	base, err := e.pages.Alloc(pagesNeeded)
	if err != nil {
		e.mu.Unlock()
		return object.VMCoords{}, err
	}
	_, werr := e.file.WriteAt(buf, int64(base)*e.pageSize)
	e.swappedCount++
	e.mu.Unlock()
	if werr != nil {
		return object.VMCoords{}, fmt.Errorf("vm: write swap page: %w", werr)
	}

	coords := object.VMCoords{Page: base, UsedPages: pagesNeeded, ATime: object.Now()}
	if err := e.index.Put(key, coords); err != nil {
		log.Errorf("vm: index persist failed", err)
	}
	return coords, nil
}

// SwapIn reads back the value for coords/typeByte and frees its pages.
func (e *Engine) SwapIn(key string, typeByte byte, coords object.VMCoords) (*object.Value, error) {
	buf := make([]byte, coords.UsedPages*uint64(e.pageSize))
	e.mu.Lock()
	_, err := e.file.ReadAt(buf, int64(coords.Page)*e.pageSize)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("vm: read swap page: %w", err)
	}

	r := bufio.NewReader(bytes.NewReader(buf))
	v, err := rdb.ReadValue(r, typeByte)
	if err != nil {
		return nil, fmt.Errorf("vm: decode swapped value: %w", err)
	}

	e.mu.Lock()
	e.pages.Free(coords.Page, coords.UsedPages)
	e.swappedCount--
	e.mu.Unlock()
	if err := e.index.Delete(key); err != nil {
		log.Errorf("vm: index delete failed", err)
	}
	return v, nil
}

func (e *Engine) SwappedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.swappedCount
}

// SubmitDoSwap and SubmitLoad are the threaded-mode entry points (§4.9): they
// enqueue work on the pool and return immediately. The caller owns draining
// Pool.Results (by Job.Type/Job.Key) and resuming the waiting client once a
// matching result arrives; in blocking mode use SwapOut/SwapIn directly
// instead.
func (e *Engine) SubmitDoSwap(key string, v *object.Value) {
	e.pool.Submit(Job{
		Type: JobDoSwap,
		Key:  key,
		Run: func() (interface{}, error) {
			return e.SwapOut(key, v)
		},
	})
}

func (e *Engine) SubmitLoad(key string, typeByte byte, coords object.VMCoords) {
	e.pool.Submit(Job{
		Type: JobLoad,
		Key:  key,
		Run: func() (interface{}, error) {
			return e.SwapIn(key, typeByte, coords)
		},
	})
}

// Results exposes the underlying pool's completion channel for the caller's
// dispatch loop to drain, matching completions back to waiting clients by
// Job.Key/Job.Type.
func (e *Engine) Results() <-chan Result {
	return e.pool.Results
}

// SelectSwapCandidate implements §4.9's swap-out selection: sample up to 5
// keys per DB (here: one db at a time, caller aggregates across DBs), score
// each by age * log(1 + approx_size), and return the best (highest-scoring)
// candidate.
func SelectSwapCandidate(db *dbase.Database, sampleSize int, approxSize func(*object.Value) int) (string, bool) {
	keys := db.Keys()
	if len(keys) == 0 {
		return "", false
	}
	rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	if sampleSize > len(keys) {
		sampleSize = len(keys)
	}

	bestKey := ""
	bestScore := -1.0
	now := object.Now()
	for _, k := range keys[:sampleSize] {
		v, ok := db.Lookup(k)
		if !ok {
			continue
		}
		age := float64(now - v.VM.ATime)
		if age < 0 {
			age = 0
		}
		score := age * math.Log(1+float64(approxSize(v)))
		if score > bestScore {
			bestScore = score
			bestKey = k
		}
	}
	if bestKey == "" {
		return "", false
	}
	return bestKey, true
}
