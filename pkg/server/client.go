package server

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/dbase"
	"github.com/cuemby/burrow/pkg/replication"
)

// watchKey is one WATCH target (§4.11): a specific key in a specific DB.
type watchKey struct {
	db  int
	key string
}

// Client is one connected socket's state (§3 Client). Exactly one goroutine
// (its own) ever reads argv from it or runs its command handlers, so the
// ordering guarantee of §4.1 ("never interleave two clients' commands")
// holds per-goroutine without an explicit per-client lock on command
// execution; replyMu only serializes writes against PUBLISH/MONITOR feeds
// arriving from other clients' goroutines.
type Client struct {
	id     uint64
	conn   net.Conn
	server *Server

	reader *bufio.Reader
	replyMu sync.Mutex
	writer  *bufio.Writer

	db      *dbase.Database
	dbIndex int

	name            string
	authenticated   bool
	createdAt       time.Time
	lastInteraction time.Time

	inMulti    bool
	multiQueue [][][]byte
	dirtyCAS   bool
	watched    []watchKey

	subChannels map[string]bool
	subPatterns map[string]bool

	isMonitor   bool
	isReplica   bool
	replicaLink *replication.ReplicaLink

	closed bool
}

func newClient(id uint64, conn net.Conn, srv *Server) *Client {
	now := time.Now()
	return &Client{
		id:              id,
		conn:            conn,
		server:          srv,
		reader:          bufio.NewReaderSize(conn, 16*1024),
		writer:          bufio.NewWriterSize(conn, 16*1024),
		db:              srv.db(0),
		dbIndex:         0,
		createdAt:       now,
		lastInteraction: now,
		subChannels:     make(map[string]bool),
		subPatterns:     make(map[string]bool),
	}
}

func (c *Client) ID() uint64 { return c.id }

func (c *Client) inPubSubMode() bool {
	return len(c.subChannels) > 0 || len(c.subPatterns) > 0
}

func (c *Client) touch() { c.lastInteraction = time.Now() }

// markDirtyCAS implements the per-client half of WATCH/dirty-cas (§4.11):
// called by Database when a watched key (or a flushed DB) changes under the
// client's feet.
func (c *Client) markDirtyCAS(clientID uint64) {
	if clientID == c.id {
		c.dirtyCAS = true
	}
}

func (c *Client) unwatchAll() {
	byDB := make(map[int][]string)
	for _, w := range c.watched {
		byDB[w.db] = append(byDB[w.db], w.key)
	}
	for dbIdx, keys := range byDB {
		c.server.db(dbIdx).UnwatchAll(c.id, keys)
	}
	c.watched = nil
	c.dirtyCAS = false
}

// PushMessage implements pubsub.Receiver: frame and flush a `message`
// multi-bulk directly onto this client's own reply stream (§4.10).
func (c *Client) PushMessage(channel string, payload []byte) {
	c.replyMu.Lock()
	defer c.replyMu.Unlock()
	writeArrayHeader(c.writer, 3)
	writeBulk(c.writer, []byte("message"))
	writeBulk(c.writer, []byte(channel))
	writeBulk(c.writer, payload)
	c.writer.Flush()
}

// PushPMessage implements pubsub.Receiver for PSUBSCRIBE-matched deliveries.
func (c *Client) PushPMessage(pattern, channel string, payload []byte) {
	c.replyMu.Lock()
	defer c.replyMu.Unlock()
	writeArrayHeader(c.writer, 4)
	writeBulk(c.writer, []byte("pmessage"))
	writeBulk(c.writer, []byte(pattern))
	writeBulk(c.writer, []byte(channel))
	writeBulk(c.writer, payload)
	c.writer.Flush()
}

func (c *Client) close() {
	if c.closed {
		return
	}
	c.closed = true
	c.server.pubsub.Unsubscribe("", c)
	c.server.pubsub.PUnsubscribe("", c)
	c.unwatchAll()
	c.conn.Close()
}
