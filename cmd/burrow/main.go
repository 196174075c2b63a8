// Command burrow is the server executable: it implements the CLI surface,
// signal handling, and boot sequence of §6.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/server"
)

var (
	// Version is set via -ldflags at build time, matching the teacher's
	// build-time version stamping (cmd/warren previously used the same
	// pattern for Version/Commit/BuildTime).
	Version = "dev"
	Commit  = "unknown"
)

const usage = `Usage: burrow [--metrics-addr ADDR] [/path/to/burrow.conf]

With no config path, starts with built-in defaults (not recommended for
production). Pass "-" to read the config from stdin.`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var metricsAddr string
	var positional []string

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-v" || a == "--version":
			fmt.Printf("burrow version %s (%s)\n", Version, Commit)
			return 0
		case a == "--help":
			fmt.Println(usage)
			return 1
		case a == "--metrics-addr":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--metrics-addr requires an address")
				return 1
			}
			metricsAddr = args[i+1]
			i++
		case strings.HasPrefix(a, "--metrics-addr="):
			metricsAddr = strings.TrimPrefix(a, "--metrics-addr=")
		default:
			positional = append(positional, a)
		}
	}

	if len(positional) > 1 {
		fmt.Fprintln(os.Stderr, usage)
		return 1
	}

	var cfg *config.Config
	if len(positional) == 1 {
		loaded, err := config.Load(positional[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "burrow: %v\n", err)
			return 1
		}
		cfg = loaded
	} else {
		fmt.Fprintln(os.Stderr, "Warning: no config file specified, using built-in defaults")
		cfg = config.Default()
	}

	log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: false, Output: logOutput(cfg.LogFile)})

	if cfg.Dir != "" && cfg.Dir != "." {
		if err := os.Chdir(cfg.Dir); err != nil {
			fmt.Fprintf(os.Stderr, "burrow: chdir %s: %v\n", cfg.Dir, err)
			return 1
		}
	}

	srv := server.New(cfg)
	if err := srv.Prepare(); err != nil {
		log.Errorf("burrow: failed to prepare server", err)
		return 1
	}
	metrics.SetPingFunc(srv.Ping)

	if metricsAddr != "" {
		startMetricsListener(metricsAddr)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	signal.Ignore(syscall.SIGHUP, syscall.SIGPIPE)

	select {
	case sig := <-sigCh:
		log.Info(fmt.Sprintf("received %s, shutting down", sig))
		srv.Shutdown(len(cfg.Saves) > 0)
	case err := <-errCh:
		if err != nil {
			log.Errorf("burrow: server loop exited", err)
			return 1
		}
	}
	return 0
}

func logOutput(logfile string) *os.File {
	if logfile == "" || logfile == "stdout" {
		return os.Stdout
	}
	f, err := os.OpenFile(logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "burrow: open logfile %s: %v\n", logfile, err)
		return os.Stdout
	}
	return f
}

// startMetricsListener serves /metrics (Prometheus) and /healthz (liveness)
// on a side HTTP listener that never touches command dispatch, mirroring
// the teacher's pattern of a separate observability port next to the main
// service port.
func startMetricsListener(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthzHandler(2*time.Second))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("metrics listener stopped", err)
		}
	}()
	log.Info(fmt.Sprintf("metrics listening on %s", addr))
}
