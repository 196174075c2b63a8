// Package server implements the command dispatch loop of §4.1/§4.5: a
// TCP accept loop handing each connection to its own goroutine, RESP
// protocol framing, the command table, and the ambient subsystems
// (persistence, replication, pub/sub, VM) every command handler can touch.
package server

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/aof"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/digest"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/pubsub"
	"github.com/cuemby/burrow/pkg/rdb"
	"github.com/cuemby/burrow/pkg/replication"
	"github.com/cuemby/burrow/pkg/vm"
	"github.com/google/uuid"
)

// Server holds every piece of global process state named in §3's "Global
// process state": the database set, client registry, pub/sub routing
// tables, persistence/replication/VM subsystem handles, and the dirty
// counter driving SAVE triggers and AOF/replica feed decisions.
type Server struct {
	Config *config.Config
	RunID  string

	dbsMu sync.RWMutex
	dbs   []*dbase.Database

	clientsMu sync.Mutex
	clients   map[uint64]*Client
	nextID    uint64
	monitors  map[uint64]*Client

	pubsub *pubsub.Registry

	// cmdMu serializes command execution (§5): every command's parse-to-feed
	// sequence runs with this held, so state mutations still happen on one
	// logical "main thread" even though each client owns its own goroutine
	// for socket I/O.
	cmdMu sync.Mutex

	dirtyMu      sync.Mutex
	dirty        int64
	lastSaveTime time.Time
	lastSaveDirty int64

	aofMu  sync.Mutex
	aofW   *aof.Writer
	rewriter *aof.Rewriter

	vmEngine *vm.Engine

	replMu    sync.Mutex
	replicas  []*replication.ReplicaLink
	replClient *replication.Client

	startTime time.Time

	statCommandsProcessed int64
	statExpiredKeys        int64
	statKeyspaceHits       int64
	statKeyspaceMisses     int64

	listener net.Listener
	quit     chan struct{}
}

// New builds a Server from cfg with `cfg.Databases` empty databases, ready
// to Run.
func New(cfg *config.Config) *Server {
	dbs := make([]*dbase.Database, cfg.Databases)
	for i := range dbs {
		dbs[i] = dbase.New(i)
	}
	return &Server{
		Config:    cfg,
		RunID:     strings.ReplaceAll(uuid.New().String(), "-", ""),
		dbs:       dbs,
		clients:   make(map[uint64]*Client),
		monitors:  make(map[uint64]*Client),
		pubsub:    pubsub.New(),
		startTime: time.Now(),
		quit:      make(chan struct{}),
	}
}

func (s *Server) db(i int) *dbase.Database {
	s.dbsMu.RLock()
	defer s.dbsMu.RUnlock()
	return s.dbs[i]
}

func (s *Server) databases() []*dbase.Database {
	s.dbsMu.RLock()
	defer s.dbsMu.RUnlock()
	return s.dbs
}

// --- metrics.Source ---

func (s *Server) ConnectedClients() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

func (s *Server) KeysByDB() map[int]int {
	out := make(map[int]int)
	for _, d := range s.databases() {
		out[d.ID] = d.Len()
	}
	return out
}

func (s *Server) ReplicaCount() int {
	s.replMu.Lock()
	defer s.replMu.Unlock()
	return len(s.replicas)
}

func (s *Server) DirtySinceSave() int64 {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	return s.dirty - s.lastSaveDirty
}

func (s *Server) SwappedObjects() int {
	if s.vmEngine == nil {
		return 0
	}
	return s.vmEngine.SwappedCount()
}

// Prepare opens the persistence subsystems named by cfg: loads an existing
// RDB file, opens the AOF if enabled, and opens the VM swap engine if
// enabled. Call once before Run.
func (s *Server) Prepare() error {
	rdbPath := s.rdbPath()

	// §4.6 "Loading": prefer AOF replay when enabled; otherwise load the RDB.
	if s.Config.AppendOnly && fileExists(s.Config.AppendFilename) {
		if err := s.loadAOF(s.Config.AppendFilename); err != nil {
			return fmt.Errorf("server: replay AOF: %w", err)
		}
		log.Info("replayed append-only file at startup")
	} else if rdb.Exists(rdbPath) {
		if err := rdb.Load(rdbPath, func(id int) *dbase.Database { return s.db(id) }); err != nil {
			return fmt.Errorf("server: load RDB: %w", err)
		}
		log.Info("loaded RDB snapshot at startup")
	}

	if s.Config.AppendOnly {
		w, err := aof.Open(s.Config.AppendFilename, s.Config.AppendFsync)
		if err != nil {
			return fmt.Errorf("server: open AOF: %w", err)
		}
		s.aofW = w
		s.rewriter = aof.NewRewriter()
	}

	if s.Config.VMEnabled {
		e, err := vm.Open(s.Config.VMSwapFile, s.Config.VMPages, s.Config.VMPageSize, s.Config.VMMaxThreads, s.Config.VMSwapFile+".index")
		if err != nil {
			return fmt.Errorf("server: open VM swap engine: %w", err)
		}
		s.vmEngine = e
		if !e.Blocking() {
			go s.vmResultLoop()
		}
	}

	if s.Config.SlaveOfHost != "" {
		s.startReplicaOf(s.Config.SlaveOfHost, s.Config.SlaveOfPort)
	}

	return nil
}

func (s *Server) rdbPath() string { return s.Config.DBFilename }

// Ping implements the liveness probe's self-check (§4.0 ambient
// Health/readiness): it attempts to acquire cmdMu within timeout, standing
// in for a full round trip through command dispatch without running one.
func (s *Server) Ping(timeout time.Duration) (time.Duration, bool) {
	start := time.Now()
	done := make(chan struct{})
	go func() {
		s.cmdMu.Lock()
		s.cmdMu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return time.Since(start), true
	case <-time.After(timeout):
		return timeout, false
	}
}

// Run starts the TCP accept loop and the maintenance ticker; it blocks
// until the listener is closed by Shutdown.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Bind, s.Config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln
	log.Info(fmt.Sprintf("burrow listening on %s", addr))

	go s.maintenanceLoop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}
		go s.serveConn(conn)
	}
}

// Shutdown implements §6 SIGTERM handling: stop accepting, optionally save,
// then let the caller exit.
func (s *Server) Shutdown(save bool) {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	if save {
		if err := rdb.Save(s.rdbPath(), s.databases()); err != nil {
			log.Errorf("shutdown save failed", err)
		}
	}
	if s.aofW != nil {
		s.aofW.Close()
	}
	if s.vmEngine != nil {
		s.vmEngine.Close()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	s.clientsMu.Lock()
	s.nextID++
	id := s.nextID
	c := newClient(id, conn, s)
	s.clients[id] = c
	s.clientsMu.Unlock()
	metrics.ConnectedClients.Set(float64(s.ConnectedClients()))

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, id)
		delete(s.monitors, id)
		s.clientsMu.Unlock()
		if c.replicaLink != nil {
			s.removeReplica(c.replicaLink)
		}
		c.close()
		metrics.ConnectedClients.Set(float64(s.ConnectedClients()))
	}()

	for {
		argv, err := readRequest(c.reader)
		if err != nil {
			return
		}
		if len(argv) == 0 {
			continue
		}
		c.touch()
		if !s.dispatch(c, argv) {
			return
		}
	}
}

// maintenanceLoop stands in for the `beforeSleep` hook of §4.1: once per
// tick it flushes the AOF per the fsync policy, runs active expiration and
// an incremental rehash step on each DB, and checks the configured save
// rules.
func (s *Server) maintenanceLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Server) tick() {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	if s.aofW != nil {
		s.aofW.Tick()
	}
	for _, d := range s.databases() {
		n := d.ActiveExpireCycle(s.dirtyCASByID)
		if n > 0 {
			s.statExpiredKeys += int64(n)
			s.bumpDirty(int64(n))
			metrics.ExpiredKeysTotal.Add(float64(n))
		}
		if s.Config.ActiveRehashing {
			d.RehashStep(1)
		}
	}
	s.maybeAutoSave()
}

func (s *Server) maybeAutoSave() {
	s.dirtyMu.Lock()
	dirty := s.dirty
	sinceLast := time.Since(s.lastSaveTime)
	lastDirty := s.lastSaveDirty
	s.dirtyMu.Unlock()

	if len(s.Config.Saves) == 0 {
		return
	}
	if rdb.AnyTriggers(s.Config.Saves, dirty-lastDirty, int64(sinceLast.Seconds())) {
		rdb.Background(s.rdbPath(), s.databases(), func(err error) {
			if err != nil {
				log.Errorf("background save failed", err)
				return
			}
			s.dirtyMu.Lock()
			s.lastSaveTime = time.Now()
			s.lastSaveDirty = dirty
			s.dirtyMu.Unlock()
		})
	}
}

func (s *Server) bumpDirty(n int64) {
	s.dirtyMu.Lock()
	s.dirty += n
	s.dirtyMu.Unlock()
}

// dirtyCASByID marks the client with this ID dirty-cas, used as the
// callback Database invariants require (§4.11) without Database importing
// pkg/server.
func (s *Server) dirtyCASByID(clientID uint64) {
	s.clientsMu.Lock()
	c, ok := s.clients[clientID]
	s.clientsMu.Unlock()
	if ok {
		c.markDirtyCAS(clientID)
	}
}

// feedAfterWrite implements step 11 of §4.5's execution sequence: append to
// AOF (if enabled), feed replicas, and feed MONITORs, whenever a handler's
// dirty delta is positive or it carries FORCE_REPLICATION.
func (s *Server) feedAfterWrite(dbIndex int, argv [][]byte) {
	if s.aofW != nil {
		if err := s.aofW.Append(dbIndex, argv); err != nil {
			log.Errorf("AOF append failed", err)
		}
		if s.rewriter != nil {
			s.rewriter.Observe(dbIndex, argv)
		}
	}
	s.feedReplicas(dbIndex, argv)
	s.feedMonitors(argv)
}

func (s *Server) feedReplicas(dbIndex int, argv [][]byte) {
	s.replMu.Lock()
	defer s.replMu.Unlock()
	raw := encodeMultiBulk(argv)
	for _, link := range s.replicas {
		if err := link.Feed(dbIndex, raw); err != nil {
			log.Errorf("replica feed failed", err)
		}
	}
}

func (s *Server) feedMonitors(argv [][]byte) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if len(s.monitors) == 0 {
		return
	}
	line := formatMonitorLine(argv)
	for _, c := range s.monitors {
		c.replyMu.Lock()
		writeStatus(c.writer, line)
		c.writer.Flush()
		c.replyMu.Unlock()
	}
}

func formatMonitorLine(argv [][]byte) string {
	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02T15:04:05.000"))
	for _, a := range argv {
		b.WriteByte(' ')
		b.WriteString(fmt.Sprintf("%q", a))
	}
	return b.String()
}

func encodeMultiBulk(argv [][]byte) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "*%d\r\n", len(argv))
	for _, a := range argv {
		fmt.Fprintf(&b, "$%d\r\n%s\r\n", len(a), a)
	}
	return []byte(b.String())
}

// datasetDigest implements DEBUG DIGEST (§4.13).
func (s *Server) datasetDigest() digest.Digest {
	return digest.Dataset(s.databases())
}
