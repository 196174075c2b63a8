// Package replication implements the primary/replica asynchronous
// streaming protocol of §4.8: the replica's connect/SYNC/load handshake,
// the primary's per-replica state machine, and the write-command feed.
//
// This is plain async primary/replica replication with no leader election
// or consensus — the teacher repository's pkg/raft (hashicorp/raft) solves
// a different problem (strongly-consistent cluster membership) and is not
// wired in here; see DESIGN.md.
package replication

import (
	"bufio"
	"fmt"
	"net"
	"sync"
)

// ReplicaState is the replica's own view of its link to the primary.
type ReplicaState int

const (
	StateNone ReplicaState = iota
	StateConnect
	StateConnected
)

func (s ReplicaState) String() string {
	switch s {
	case StateConnect:
		return "connect"
	case StateConnected:
		return "connected"
	default:
		return "none"
	}
}

// PrimaryReplicaState is the primary's view of one attached replica.
type PrimaryReplicaState int

const (
	StateWaitBGSaveStart PrimaryReplicaState = iota
	StateWaitBGSaveEnd
	StateSendBulk
	StateOnline
)

func (s PrimaryReplicaState) String() string {
	switch s {
	case StateWaitBGSaveStart:
		return "wait_bgsave_start"
	case StateWaitBGSaveEnd:
		return "wait_bgsave_end"
	case StateSendBulk:
		return "send_bulk"
	case StateOnline:
		return "online"
	default:
		return "unknown"
	}
}

// ReplicaLink is the primary's bookkeeping for one attached replica
// connection: its state, the buffered writes accumulated while an RDB
// transfer is in flight, and the last database SELECTed on its feed.
type ReplicaLink struct {
	mu sync.Mutex

	conn    net.Conn
	w       *bufio.Writer
	state   PrimaryReplicaState
	lastDB  int
	haveDB  bool
	buffer  [][]byte // raw RESP bytes buffered while waiting for BGSAVE/SEND_BULK
}

func NewReplicaLink(conn net.Conn) *ReplicaLink {
	return &ReplicaLink{conn: conn, w: bufio.NewWriter(conn), state: StateWaitBGSaveStart, lastDB: -1}
}

func (l *ReplicaLink) State() PrimaryReplicaState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *ReplicaLink) SetState(s PrimaryReplicaState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

// Buffer appends raw RESP bytes to be flushed by FlushBuffer once the
// replica is ONLINE; Feed buffers here while the link is not yet ONLINE.
func (l *ReplicaLink) Buffer(raw []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer = append(l.buffer, append([]byte(nil), raw...))
}

// CopyBufferFrom duplicates another replica's pending buffer, for a new SYNC
// that arrives while another replica is already WAIT_BGSAVE_END (§4.8).
// pkg/server does not call it: SYNC runs under cmdMu, so that case does not
// arise there.
func (l *ReplicaLink) CopyBufferFrom(other *ReplicaLink) {
	other.mu.Lock()
	cp := make([][]byte, len(other.buffer))
	copy(cp, other.buffer)
	other.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer = append(l.buffer, cp...)
}

// FlushBuffer writes every buffered command to the replica's connection and
// clears the buffer, called once the replica transitions to ONLINE.
func (l *ReplicaLink) FlushBuffer() error {
	l.mu.Lock()
	buffered := l.buffer
	l.buffer = nil
	l.mu.Unlock()

	for _, raw := range buffered {
		if _, err := l.w.Write(raw); err != nil {
			return fmt.Errorf("replication: flush buffered write: %w", err)
		}
	}
	return l.w.Flush()
}

// Feed sends one write command to the replica, prefixing SELECT when the
// tracked database changes, buffering instead if the replica hasn't reached
// ONLINE yet.
func (l *ReplicaLink) Feed(dbID int, raw []byte) error {
	l.mu.Lock()
	state := l.state
	l.mu.Unlock()

	if state != StateOnline {
		l.Buffer(raw)
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.haveDB || l.lastDB != dbID {
		if _, err := fmt.Fprintf(l.w, "*2\r\n$6\r\nSELECT\r\n$%d\r\n%d\r\n", len(fmt.Sprint(dbID)), dbID); err != nil {
			return err
		}
		l.lastDB = dbID
		l.haveDB = true
	}
	if _, err := l.w.Write(raw); err != nil {
		return err
	}
	return l.w.Flush()
}

func (l *ReplicaLink) Close() error {
	return l.conn.Close()
}
