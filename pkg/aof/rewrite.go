package aof

import (
	"strconv"
	"time"
)

// Transform rewrites a command's argv into its AOF-logged form (§4.6):
// EXPIRE becomes EXPIREAT and PEXPIRE becomes PEXPIREAT (absolute), SETEX is
// split into a SET followed by an EXPIREAT and PSETEX into a SET followed by
// a PEXPIREAT, and GETEX is dropped. now is injected for testability.
func Transform(args [][]byte, now time.Time) [][][]byte {
	if len(args) == 0 {
		return [][][]byte{args}
	}
	switch upper(args[0]) {
	case "EXPIRE":
		if len(args) != 3 {
			break
		}
		if n, err := strconv.ParseInt(string(args[2]), 10, 64); err == nil {
			return [][][]byte{{[]byte("EXPIREAT"), args[1], []byte(strconv.FormatInt(now.Unix()+n, 10))}}
		}
	case "PEXPIRE":
		if len(args) != 3 {
			break
		}
		if n, err := strconv.ParseInt(string(args[2]), 10, 64); err == nil {
			return [][][]byte{{[]byte("PEXPIREAT"), args[1], []byte(strconv.FormatInt(now.UnixMilli()+n, 10))}}
		}
	case "SETEX":
		if len(args) != 4 {
			break
		}
		if n, err := strconv.ParseInt(string(args[2]), 10, 64); err == nil {
			return [][][]byte{
				{[]byte("SET"), args[1], args[3]},
				{[]byte("EXPIREAT"), args[1], []byte(strconv.FormatInt(now.Unix()+n, 10))},
			}
		}
	case "PSETEX":
		if len(args) != 4 {
			break
		}
		if n, err := strconv.ParseInt(string(args[2]), 10, 64); err == nil {
			return [][][]byte{
				{[]byte("SET"), args[1], args[3]},
				{[]byte("PEXPIREAT"), args[1], []byte(strconv.FormatInt(now.UnixMilli()+n, 10))},
			}
		}
	case "GETEX":
		// GETEX's side effects (if any) are logged by the handler issuing an
		// explicit EXPIREAT/PERSIST instead; GETEX itself is never replayed.
		return nil
	}
	return [][][]byte{args}
}

func upper(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
