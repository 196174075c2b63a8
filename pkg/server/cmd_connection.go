package server

import (
	"bufio"
	"strconv"
	"strings"
)

func registerConnectionCommands() {
	register(
		&command{name: "PING", arity: -1, fn: cmdPing},
		&command{name: "ECHO", arity: 2, fn: cmdEcho},
		&command{name: "AUTH", arity: 2, fn: cmdAuth},
		&command{name: "CLIENT", arity: -2, fn: cmdClient, admin: true},
	)
}

func cmdPing(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	if len(argv) > 1 {
		writeBulk(w, argv[1])
		return
	}
	if c.inPubSubMode() {
		writeArrayHeader(w, 2)
		writeBulk(w, []byte("pong"))
		writeBulk(w, []byte{})
		return
	}
	writeStatus(w, "PONG")
}

func cmdEcho(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	writeBulk(w, argv[1])
}

func cmdAuth(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	if s.Config.RequirePass == "" {
		writeError(w, "ERR Client sent AUTH, but no password is set")
		return
	}
	if string(argv[1]) != s.Config.RequirePass {
		writeError(w, "ERR invalid password")
		return
	}
	c.authenticated = true
	writeStatus(w, "OK")
}

func cmdClient(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	sub := strings.ToUpper(string(argv[1]))
	switch sub {
	case "GETNAME":
		writeBulk(w, []byte(c.name))
	case "SETNAME":
		if len(argv) != 3 {
			writeError(w, "ERR wrong number of arguments for 'client|setname' command")
			return
		}
		c.name = string(argv[2])
		writeStatus(w, "OK")
	case "LIST":
		s.clientsMu.Lock()
		var b strings.Builder
		for _, other := range s.clients {
			b.WriteString(clientLine(other))
			b.WriteByte('\n')
		}
		s.clientsMu.Unlock()
		writeBulk(w, []byte(b.String()))
	default:
		writeError(w, "ERR unknown CLIENT subcommand")
	}
}

func clientLine(c *Client) string {
	return "id=" + strconv.FormatUint(c.id, 10) + " addr=" + c.conn.RemoteAddr().String() +
		" name=" + c.name + " db=" + strconv.Itoa(c.dbIndex)
}
