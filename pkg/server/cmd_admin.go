package server

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/pubsub"
	"github.com/cuemby/burrow/pkg/rdb"
)

func registerAdminCommands() {
	register(
		&command{name: "INFO", arity: -1, fn: cmdInfo, admin: true},
		&command{name: "CONFIG", arity: -2, fn: cmdConfig, admin: true},
		&command{name: "DEBUG", arity: -2, fn: cmdDebug, admin: true},
		&command{name: "SAVE", arity: 1, fn: cmdSave, admin: true},
		&command{name: "BGSAVE", arity: 1, fn: cmdBgsave, admin: true},
		&command{name: "BGREWRITEAOF", arity: 1, fn: cmdBgrewriteaof, admin: true},
		&command{name: "LASTSAVE", arity: 1, fn: cmdLastsave, admin: true},
		&command{name: "SLAVEOF", arity: 3, fn: cmdSlaveof, admin: true},
		&command{name: "SHUTDOWN", arity: -1, fn: cmdShutdown, admin: true},
		&command{name: "MONITOR", arity: 1, fn: cmdMonitor, admin: true},
	)
}

// cmdInfo implements INFO (§4.13): a flat "section\r\nkey:value\r\n..." report
// built from the server's live counters.
func cmdInfo(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Server\r\nrun_id:%s\r\nuptime_in_seconds:%d\r\ntcp_port:%d\r\n", s.RunID, int(time.Since(s.startTime).Seconds()), s.Config.Port)
	fmt.Fprintf(&b, "# Clients\r\nconnected_clients:%d\r\n", s.ConnectedClients())
	fmt.Fprintf(&b, "# Memory\r\nused_memory:%d\r\nmaxmemory:%d\r\n", estimateUsedMemory(s), s.Config.MaxMemory)
	s.dirtyMu.Lock()
	dirty := s.dirty
	s.dirtyMu.Unlock()
	fmt.Fprintf(&b, "# Persistence\r\nrdb_changes_since_last_save:%d\r\naof_enabled:%d\r\n", dirty-s.lastSaveDirty, boolInt(s.aofW != nil))
	fmt.Fprintf(&b, "# Replication\r\nrole:%s\r\nconnected_slaves:%d\r\n", s.replicationRole(), s.ReplicaCount())
	fmt.Fprintf(&b, "# Stats\r\ntotal_commands_processed:%d\r\nexpired_keys:%d\r\n", s.statCommandsProcessed, s.statExpiredKeys)
	fmt.Fprintf(&b, "# Keyspace\r\n")
	for _, d := range s.databases() {
		if d.Len() > 0 {
			fmt.Fprintf(&b, "db%d:keys=%d,expires=%d\r\n", d.ID, d.Len(), d.ExpiresCount())
		}
	}
	writeBulk(w, []byte(b.String()))
}

func (s *Server) replicationRole() string {
	if s.replClient != nil {
		return "slave"
	}
	return "master"
}

// cmdConfig implements CONFIG GET/SET over the directive names recognized by
// pkg/config (§6), matched with the same glob dialect as KEYS.
func cmdConfig(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	sub := strings.ToUpper(string(argv[1]))
	switch sub {
	case "GET":
		if len(argv) != 3 {
			writeError(w, "ERR wrong number of arguments for 'config|get' command")
			return
		}
		pattern := string(argv[2])
		var out []string
		for name, val := range s.configDirectives() {
			if pubsub.GlobMatch(strings.ToLower(pattern), strings.ToLower(name)) {
				out = append(out, name, val)
			}
		}
		writeSimpleStrings(w, out)
	case "SET":
		if len(argv) != 4 {
			writeError(w, "ERR wrong number of arguments for 'config|set' command")
			return
		}
		if !s.setConfigDirective(string(argv[2]), string(argv[3])) {
			writeError(w, "ERR unsupported CONFIG parameter")
			return
		}
		writeStatus(w, "OK")
	default:
		writeError(w, "ERR unknown CONFIG subcommand")
	}
}

func (s *Server) configDirectives() map[string]string {
	cfg := s.Config
	return map[string]string{
		"maxmemory":               strconv.FormatInt(cfg.MaxMemory, 10),
		"maxclients":              strconv.Itoa(cfg.MaxClients),
		"timeout":                 strconv.Itoa(cfg.Timeout),
		"appendonly":              onOff(cfg.AppendOnly),
		"appendfsync":             string(cfg.AppendFsync),
		"dir":                     cfg.Dir,
		"dbfilename":              cfg.DBFilename,
		"requirepass":             cfg.RequirePass,
		"hash-max-zipmap-entries": strconv.Itoa(cfg.HashMaxZipmapEntries),
		"hash-max-zipmap-value":   strconv.Itoa(cfg.HashMaxZipmapValue),
	}
}

func (s *Server) setConfigDirective(name, value string) bool {
	switch strings.ToLower(name) {
	case "maxmemory":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false
		}
		s.Config.MaxMemory = n
	case "requirepass":
		s.Config.RequirePass = value
	case "appendfsync":
		s.Config.AppendFsync = config.FsyncPolicy(value)
	default:
		return false
	}
	return true
}

func onOff(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func cmdDebug(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	sub := strings.ToUpper(string(argv[1]))
	switch sub {
	case "DIGEST":
		d := s.datasetDigest()
		writeStatus(w, hex.EncodeToString(d[:]))
	case "OBJECT":
		if len(argv) != 3 {
			writeError(w, "ERR wrong number of arguments")
			return
		}
		v, found, err := s.resolveValue(c.db, c.dbIndex, string(argv[2]))
		if err != nil {
			writeError(w, "ERR "+err.Error())
			return
		}
		if !found {
			writeError(w, "ERR no such key")
			return
		}
		writeStatus(w, fmt.Sprintf("Value at:0x0 refcount:%d encoding:%s", v.Refcount, v.Encoding.String()))
	case "RELOAD":
		if err := rdb.Save(s.rdbPath(), s.databases()); err != nil {
			writeError(w, "ERR "+err.Error())
			return
		}
		for _, d := range s.databases() {
			d.FlushAll(s.dirtyCASByID)
		}
		if err := rdb.Load(s.rdbPath(), func(id int) *dbase.Database { return s.db(id) }); err != nil {
			log.Errorf("DEBUG RELOAD load failed", err)
		}
		writeStatus(w, "OK")
	case "SWAPOUT":
		if s.vmEngine == nil {
			writeError(w, "ERR VM is not enabled")
			return
		}
		s.maybeSwapOut()
		writeStatus(w, "OK")
	case "SLEEP":
		if len(argv) == 3 {
			if secs, ok := parseFloat(argv[2]); ok {
				time.Sleep(time.Duration(secs * float64(time.Second)))
			}
		}
		writeStatus(w, "OK")
	default:
		writeError(w, "ERR unknown DEBUG subcommand")
	}
}

func cmdSave(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	if err := rdb.Save(s.rdbPath(), s.databases()); err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	s.dirtyMu.Lock()
	s.lastSaveTime = time.Now()
	s.lastSaveDirty = s.dirty
	s.dirtyMu.Unlock()
	writeStatus(w, "OK")
}

func cmdBgsave(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	rdb.Background(s.rdbPath(), s.databases(), func(err error) {
		if err != nil {
			log.Errorf("BGSAVE failed", err)
			return
		}
		s.dirtyMu.Lock()
		s.lastSaveTime = time.Now()
		s.dirtyMu.Unlock()
	})
	writeStatus(w, "Background saving started")
}

func cmdBgrewriteaof(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	if s.rewriter == nil {
		writeError(w, "ERR appendonly is not enabled")
		return
	}
	if err := s.rewriter.Begin(s.Config.AppendFilename, s.databases(), func(err error) {
		if err != nil {
			log.Errorf("BGREWRITEAOF failed", err)
		}
	}); err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	writeStatus(w, "Background append only file rewriting started")
}

func cmdLastsave(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	s.dirtyMu.Lock()
	t := s.lastSaveTime
	s.dirtyMu.Unlock()
	writeInt(w, t.Unix())
}

func cmdSlaveof(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	host := string(argv[1])
	if strings.EqualFold(host, "no") && strings.EqualFold(string(argv[2]), "one") {
		s.replMu.Lock()
		if s.replClient != nil {
			s.replClient.Close()
			s.replClient = nil
		}
		s.replMu.Unlock()
		writeStatus(w, "OK")
		return
	}
	port, err := strconv.Atoi(string(argv[2]))
	if err != nil {
		writeError(w, "ERR invalid master port")
		return
	}
	s.Config.SlaveOfHost = host
	s.Config.SlaveOfPort = port
	s.startReplicaOf(host, port)
	writeStatus(w, "OK")
}

func cmdShutdown(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	save := len(s.Config.Saves) > 0
	for _, a := range argv[1:] {
		if strings.EqualFold(string(a), "NOSAVE") {
			save = false
		}
		if strings.EqualFold(string(a), "SAVE") {
			save = true
		}
	}
	s.Shutdown(save)
}

func cmdMonitor(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	c.isMonitor = true
	s.clientsMu.Lock()
	s.monitors[c.id] = c
	s.clientsMu.Unlock()
	writeStatus(w, "OK")
}
