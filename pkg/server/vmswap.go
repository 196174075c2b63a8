package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/object"
	"github.com/cuemby/burrow/pkg/rdb"
	"github.com/cuemby/burrow/pkg/vm"
)

// VM job keys are "<dbIndex>:<key>" so the single result-drain goroutine
// (vmResultLoop) can route a completed job back to the right database
// without the vm package needing to know about dbase.Database (§4.9).
func vmJobKey(dbIndex int, key string) string {
	return strconv.Itoa(dbIndex) + ":" + key
}

func parseVMJobKey(jobKey string) (int, string, bool) {
	idx := strings.IndexByte(jobKey, ':')
	if idx < 0 {
		return 0, "", false
	}
	dbIndex, err := strconv.Atoi(jobKey[:idx])
	if err != nil {
		return 0, "", false
	}
	return dbIndex, jobKey[idx+1:], true
}

// resolveValue returns the live value for key, transparently swapping it
// in if its residency is StorageSwapped (§4.9's object swap-in). In
// blocking mode this happens synchronously on the calling goroutine
// (itself already dedicated to this one client, per §4.1's per-connection
// goroutine model); in threaded mode the goroutine instead submits a LOAD
// job and rendezvous on an IOWaiter that vmResultLoop resolves.
//
// Both paths release cmdMu for the duration of the actual wait: the disk
// read (blocking mode) or the channel receive (threaded mode) isn't a state
// mutation itself, and holding the lock across it would stall every other
// client for the full swap-in latency, or deadlock threaded mode outright
// since vmResultLoop needs cmdMu to install the result this goroutine is
// waiting on.
func (s *Server) resolveValue(db *dbase.Database, dbIndex int, key string) (*object.Value, bool, error) {
	v, ok := db.Lookup(key)
	if !ok || v.Storage == object.StorageMemory {
		return v, ok, nil
	}

	if s.vmEngine.Blocking() {
		s.cmdMu.Unlock()
		loaded, err := s.vmEngine.SwapIn(key, rdb.TypeByte(&object.Value{Type: v.SwappedType}), v.VM)
		s.cmdMu.Lock()
		if err != nil {
			return nil, false, fmt.Errorf("server: swap-in %q: %w", key, err)
		}
		db.SetKeepTTL(key, loaded)
		return loaded, true, nil
	}

	waiter := &dbase.IOWaiter{ClientID: 0, Ch: make(chan struct{})}
	db.AddIOWaiter(key, waiter)
	s.vmEngine.SubmitLoad(vmJobKey(dbIndex, key), rdb.TypeByte(&object.Value{Type: v.SwappedType}), v.VM)
	s.cmdMu.Unlock()
	<-waiter.Ch
	s.cmdMu.Lock()

	loaded, ok := db.Lookup(key)
	if !ok {
		return nil, false, fmt.Errorf("server: key %q vanished during swap-in", key)
	}
	return loaded, true, nil
}

// vmResultLoop is the single consumer of the VM pool's completion channel
// (threaded mode only): it installs a loaded value back into its database
// and resumes every client blocked on that key (§4.9's "the main loop
// installs the value, frees pages, and resumes every waiting client").
func (s *Server) vmResultLoop() {
	for res := range s.vmEngine.Results() {
		dbIndex, key, ok := parseVMJobKey(res.Job.Key)
		if !ok {
			continue
		}
		db := s.db(dbIndex)
		s.cmdMu.Lock()
		if res.Err != nil {
			log.Errorf("vm job failed", res.Err)
			db.ResumeIOWaiters(key)
			s.cmdMu.Unlock()
			continue
		}
		if v, ok := res.Value.(*object.Value); ok {
			db.SetKeepTTL(key, v)
		}
		db.ResumeIOWaiters(key)
		s.cmdMu.Unlock()
	}
}

// maybeSwapOut implements §4.9's swap-out trigger: when used_memory exceeds
// vm_max_memory, sample candidates per DB and push the best one to disk.
func (s *Server) maybeSwapOut() {
	if s.vmEngine == nil || s.Config.VMMaxMemory <= 0 {
		return
	}
	if estimateUsedMemory(s) <= s.Config.VMMaxMemory {
		return
	}
	for _, db := range s.databases() {
		key, ok := vm.SelectSwapCandidate(db, 5, approxValueSize)
		if !ok {
			continue
		}
		v, ok := db.Lookup(key)
		if !ok || v.Storage != object.StorageMemory || v.IsShared() || v.Refcount > 1 {
			continue
		}
		coords, err := s.vmEngine.SwapOut(key, v)
		if err != nil {
			log.Errorf("swap-out failed", err)
			continue
		}
		placeholder := &object.Value{Type: v.Type, SwappedType: v.Type, Storage: object.StorageSwapped, VM: coords}
		db.SetKeepTTL(key, placeholder)
	}
}

func approxValueSize(v *object.Value) int {
	switch v.Type {
	case object.TypeString:
		return v.Str.Len()
	case object.TypeList:
		return v.List.Len() * 16
	case object.TypeSet:
		return v.Set.Len() * 16
	case object.TypeZSet:
		return v.ZSet.Len() * 24
	case object.TypeHash:
		return v.Hash.Len() * 24
	default:
		return 16
	}
}
