// Package config parses the server's directive-based configuration file (§6).
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/log"
)

// FsyncPolicy controls how the append-only file is flushed to disk.
type FsyncPolicy string

const (
	FsyncNo        FsyncPolicy = "no"
	FsyncEverysec  FsyncPolicy = "everysec"
	FsyncAlways    FsyncPolicy = "always"
)

// SaveRule is one `save <seconds> <changes>` snapshotting rule.
type SaveRule struct {
	Seconds int
	Changes int
}

// Config holds every recognized directive plus its default value.
type Config struct {
	Port      int
	Bind      string
	Timeout   int
	Saves     []SaveRule
	Dir       string
	LogLevel  log.Level
	LogFile   string
	Databases int
	MaxClients int
	MaxMemory int64

	SlaveOfHost string
	SlaveOfPort int
	MasterAuth  string

	GlueOutputBuf    bool
	RDBCompression   bool
	ActiveRehashing  bool
	Daemonize        bool

	AppendOnly     bool
	AppendFilename string
	AppendFsync    FsyncPolicy

	RequirePass string
	PidFile     string
	DBFilename  string

	VMEnabled    bool
	VMSwapFile   string
	VMMaxMemory  int64
	VMPageSize   int64
	VMPages      int64
	VMMaxThreads int

	HashMaxZipmapEntries int
	HashMaxZipmapValue   int
}

// Default returns the built-in defaults, matching a bare `redis-server` with no config file.
func Default() *Config {
	return &Config{
		Port:                 6379,
		Bind:                 "0.0.0.0",
		Timeout:              0,
		Dir:                  ".",
		LogLevel:             log.NoticeLevel,
		LogFile:              "stdout",
		Databases:            16,
		MaxClients:           0,
		MaxMemory:            0,
		GlueOutputBuf:        true,
		RDBCompression:       true,
		ActiveRehashing:      true,
		AppendOnly:           false,
		AppendFilename:       "appendonly.aof",
		AppendFsync:          FsyncEverysec,
		DBFilename:           "dump.rdb",
		VMEnabled:            false,
		VMSwapFile:           "/tmp/burrow.swap",
		VMMaxMemory:          0,
		VMPageSize:           256,
		VMPages:              1048576,
		VMMaxThreads:         4,
		HashMaxZipmapEntries: 64,
		HashMaxZipmapValue:   512,
	}
}

// Load reads directives from path ("-" reads stdin) on top of Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	var r *os.File
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		r = f
	}

	if err := parseInto(cfg, r, 0); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseInto(cfg *Config, r *os.File, depth int) error {
	if depth > 16 {
		return fmt.Errorf("config include depth exceeded")
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		directive := strings.ToLower(fields[0])
		args := fields[1:]

		if directive == "include" {
			if len(args) != 1 {
				return fmt.Errorf("include: expected a path")
			}
			inc, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("include %s: %w", args[0], err)
			}
			err = parseInto(cfg, inc, depth+1)
			inc.Close()
			if err != nil {
				return err
			}
			continue
		}

		if err := applyDirective(cfg, directive, args); err != nil {
			return fmt.Errorf("line %q: %w", line, err)
		}
	}
	return scanner.Err()
}

func applyDirective(cfg *Config, directive string, args []string) error {
	switch directive {
	case "port":
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("invalid port")
		}
		cfg.Port = n
	case "bind":
		cfg.Bind = args[0]
	case "timeout":
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		cfg.Timeout = n
	case "save":
		if len(args) == 0 {
			cfg.Saves = nil
			return nil
		}
		sec, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		chg, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		cfg.Saves = append(cfg.Saves, SaveRule{Seconds: sec, Changes: chg})
	case "dir":
		cfg.Dir = args[0]
	case "loglevel":
		cfg.LogLevel = log.Level(args[0])
	case "logfile":
		cfg.LogFile = args[0]
	case "databases":
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		cfg.Databases = n
	case "maxclients":
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		cfg.MaxClients = n
	case "maxmemory":
		n, err := parseMemory(args[0])
		if err != nil {
			return err
		}
		cfg.MaxMemory = n
	case "slaveof", "replicaof":
		cfg.SlaveOfHost = args[0]
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		cfg.SlaveOfPort = n
	case "masterauth":
		cfg.MasterAuth = args[0]
	case "glueoutputbuf":
		cfg.GlueOutputBuf = parseBool(args[0])
	case "rdbcompression":
		cfg.RDBCompression = parseBool(args[0])
	case "activerehashing":
		cfg.ActiveRehashing = parseBool(args[0])
	case "daemonize":
		cfg.Daemonize = parseBool(args[0])
	case "appendonly":
		cfg.AppendOnly = parseBool(args[0])
	case "appendfilename":
		cfg.AppendFilename = args[0]
	case "appendfsync":
		cfg.AppendFsync = FsyncPolicy(args[0])
	case "requirepass":
		cfg.RequirePass = args[0]
	case "pidfile":
		cfg.PidFile = args[0]
	case "dbfilename":
		cfg.DBFilename = args[0]
	case "vm-enabled":
		cfg.VMEnabled = parseBool(args[0])
	case "vm-swap-file":
		cfg.VMSwapFile = args[0]
	case "vm-max-memory":
		n, err := parseMemory(args[0])
		if err != nil {
			return err
		}
		cfg.VMMaxMemory = n
	case "vm-page-size":
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return err
		}
		cfg.VMPageSize = n
	case "vm-pages":
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return err
		}
		cfg.VMPages = n
	case "vm-max-threads":
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		cfg.VMMaxThreads = n
	case "hash-max-zipmap-entries":
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		cfg.HashMaxZipmapEntries = n
	case "hash-max-zipmap-value":
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		cfg.HashMaxZipmapValue = n
	default:
		// Unknown directives are ignored rather than fatal: config files in the wild
		// carry directives future versions add.
		log.Warn(fmt.Sprintf("unknown config directive ignored: %s", directive))
	}
	return nil
}

func parseBool(s string) bool {
	return strings.EqualFold(s, "yes")
}

func parseMemory(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty memory value")
	}
	mult := int64(1)
	lower := strings.ToLower(s)
	for _, sm := range []struct {
		suffix string
		m      int64
	}{
		{"kb", 1024}, {"mb", 1024 * 1024}, {"gb", 1024 * 1024 * 1024},
		{"k", 1000}, {"m", 1000 * 1000}, {"g", 1000 * 1000 * 1000},
		{"b", 1},
	} {
		if strings.HasSuffix(lower, sm.suffix) {
			mult = sm.m
			s = s[:len(s)-len(sm.suffix)]
			break
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory value: %w", err)
	}
	return n * mult, nil
}
