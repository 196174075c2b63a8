package server

import (
	"bufio"
	"strconv"

	"github.com/cuemby/burrow/pkg/object"
)

const wrongTypeErr = "WRONGTYPE Operation against a key holding the wrong kind of value"

// lookupTyped resolves key (swapping it in transparently) and verifies its
// type. On a lookup error or the wrong type it writes an error reply and
// returns ok=false; on a missing key it writes a nil bulk and returns
// ok=false, unless allowMissing, where it writes nothing and returns
// (nil, true).
func (s *Server) lookupTyped(c *Client, w *bufio.Writer, key string, want object.Type, allowMissing bool) (*object.Value, bool) {
	v, found, err := s.resolveValue(c.db, c.dbIndex, key)
	if err != nil {
		writeError(w, "ERR "+err.Error())
		return nil, false
	}
	if !found {
		if !allowMissing {
			writeNilBulk(w)
		}
		return nil, allowMissing
	}
	if v.Type != want {
		writeError(w, wrongTypeErr)
		return nil, false
	}
	return v, true
}

func parseInt(b []byte) (int64, bool) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	return n, err == nil
}

func parseFloat(b []byte) (float64, bool) {
	f, err := strconv.ParseFloat(string(b), 64)
	return f, err == nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
