package server

import "bufio"

// handlerFunc executes one command, writing its reply to w. argv[0] is the
// command name itself.
type handlerFunc func(s *Server, c *Client, argv [][]byte, w *bufio.Writer)

// command is one command table entry (§4.5): arity (positive = exact
// count, negative = minimum |arity|), a key-range descriptor used by the VM
// preloader, and behavior flags.
type command struct {
	name  string
	arity int
	fn    handlerFunc

	firstKey, lastKey, keyStep int

	write            bool // dirty-tracking and AOF/replica feed candidate
	denyOOM          bool
	forceReplication bool
	admin            bool // allowed even while client not yet authenticated? no: still requires auth
}

func (cmd *command) checkArity(argc int) bool {
	if cmd.arity >= 0 {
		return argc == cmd.arity
	}
	return argc >= -cmd.arity
}

// keys returns the keys at the argv positions cmd touches, used for VM swap
// preloading (§4.5, §4.9).
func (cmd *command) keys(argv [][]byte) []string {
	if cmd.firstKey == 0 {
		return nil
	}
	last := cmd.lastKey
	if last < 0 {
		last = len(argv) + last
	}
	var out []string
	for i := cmd.firstKey; i <= last && i < len(argv); i += cmd.keyStep {
		out = append(out, string(argv[i]))
	}
	return out
}

var commandTable map[string]*command

func register(cmds ...*command) {
	if commandTable == nil {
		commandTable = make(map[string]*command)
	}
	for _, c := range cmds {
		commandTable[c.name] = c
	}
}

func init() {
	registerStringCommands()
	registerGenericCommands()
	registerListCommands()
	registerSetCommands()
	registerHashCommands()
	registerZSetCommands()
	registerTransactionCommands()
	registerPubSubCommands()
	registerConnectionCommands()
	registerAdminCommands()
	registerSortCommand()
	registerReplicationCommands()
}
