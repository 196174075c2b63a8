package replication

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/log"
)

// Client drives the replica side of the handshake of §4.8: connect, AUTH if
// required, SYNC, receive the RDB bulk transfer, then hand off to a command
// stream the caller applies in replica context.
type Client struct {
	mu    sync.Mutex
	state ReplicaState
	conn  net.Conn
}

func NewClient() *Client {
	return &Client{state: StateNone}
}

func (c *Client) State() ReplicaState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s ReplicaState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Handshake performs steps 1-5 of §4.8: connect, optional AUTH, SYNC, and
// streaming the RDB bulk transfer into rdbPath. It returns the buffered
// reader positioned right after the bulk payload, ready to read the
// primary's subsequent command stream.
func (c *Client) Handshake(addr, masterAuth, rdbPath string, dialTimeout time.Duration) (*bufio.Reader, error) {
	c.setState(StateConnect)

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		c.setState(StateNone)
		return nil, fmt.Errorf("replication: connect to primary: %w", err)
	}
	c.conn = conn
	r := bufio.NewReader(conn)

	if masterAuth != "" {
		if err := writeInline(conn, "AUTH", masterAuth); err != nil {
			return nil, err
		}
		if err := expectStatus(r); err != nil {
			return nil, fmt.Errorf("replication: AUTH rejected: %w", err)
		}
	}

	if err := writeInline(conn, "SYNC"); err != nil {
		return nil, err
	}

	n, err := readBulkHeader(r)
	if err != nil {
		return nil, fmt.Errorf("replication: read RDB bulk header: %w", err)
	}

	tmp := rdbPath + ".sync.tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("replication: create temp RDB: %w", err)
	}
	if _, err := io.CopyN(f, r, int64(n)); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("replication: read RDB bulk body: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, rdbPath); err != nil {
		return nil, fmt.Errorf("replication: rename synced RDB into place: %w", err)
	}

	c.setState(StateConnected)
	log.Info("replica handshake complete, entering CONNECTED")
	return r, nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func writeInline(w io.Writer, parts ...string) error {
	_, err := io.WriteString(w, strings.Join(parts, " ")+"\r\n")
	return err
}

func expectStatus(r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) == 0 || line[0] != '+' {
		return fmt.Errorf("expected status reply, got %q", line)
	}
	return nil
}

// readBulkHeader reads a `$<N>\r\n` line and returns N.
func readBulkHeader(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) == 0 || line[0] != '$' {
		return 0, fmt.Errorf("expected bulk header, got %q", line)
	}
	return strconv.Atoi(line[1:])
}
