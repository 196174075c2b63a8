package server

import (
	"bufio"
	"strings"
)

func registerPubSubCommands() {
	register(
		&command{name: "SUBSCRIBE", arity: -2, fn: cmdSubscribe},
		&command{name: "UNSUBSCRIBE", arity: -1, fn: cmdUnsubscribe},
		&command{name: "PSUBSCRIBE", arity: -2, fn: cmdPsubscribe},
		&command{name: "PUNSUBSCRIBE", arity: -1, fn: cmdPunsubscribe},
		&command{name: "PUBLISH", arity: 3, fn: cmdPublish, forceReplication: true},
		&command{name: "PUBSUB", arity: -2, fn: cmdPubsub, admin: true},
	)
}

func (c *Client) subCount() int {
	return len(c.subChannels) + len(c.subPatterns)
}

func cmdSubscribe(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	for _, ch := range argv[1:] {
		channel := string(ch)
		if !c.subChannels[channel] {
			c.subChannels[channel] = true
			s.pubsub.Subscribe(channel, c)
		}
		writeArrayHeader(w, 3)
		writeBulk(w, []byte("subscribe"))
		writeBulk(w, []byte(channel))
		writeInt(w, int64(c.subCount()))
	}
}

func cmdUnsubscribe(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	channels := argv[1:]
	if len(channels) == 0 {
		for ch := range c.subChannels {
			channels = append(channels, []byte(ch))
		}
	}
	if len(channels) == 0 {
		writeArrayHeader(w, 3)
		writeBulk(w, []byte("unsubscribe"))
		writeNilBulk(w)
		writeInt(w, int64(c.subCount()))
		return
	}
	for _, ch := range channels {
		channel := string(ch)
		delete(c.subChannels, channel)
		s.pubsub.Unsubscribe(channel, c)
		writeArrayHeader(w, 3)
		writeBulk(w, []byte("unsubscribe"))
		writeBulk(w, []byte(channel))
		writeInt(w, int64(c.subCount()))
	}
}

func cmdPsubscribe(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	for _, p := range argv[1:] {
		pattern := string(p)
		if !c.subPatterns[pattern] {
			c.subPatterns[pattern] = true
			s.pubsub.PSubscribe(pattern, c)
		}
		writeArrayHeader(w, 3)
		writeBulk(w, []byte("psubscribe"))
		writeBulk(w, []byte(pattern))
		writeInt(w, int64(c.subCount()))
	}
}

func cmdPunsubscribe(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	patterns := argv[1:]
	if len(patterns) == 0 {
		for p := range c.subPatterns {
			patterns = append(patterns, []byte(p))
		}
	}
	if len(patterns) == 0 {
		writeArrayHeader(w, 3)
		writeBulk(w, []byte("punsubscribe"))
		writeNilBulk(w)
		writeInt(w, int64(c.subCount()))
		return
	}
	for _, p := range patterns {
		pattern := string(p)
		delete(c.subPatterns, pattern)
		s.pubsub.PUnsubscribe(pattern, c)
		writeArrayHeader(w, 3)
		writeBulk(w, []byte("punsubscribe"))
		writeBulk(w, []byte(pattern))
		writeInt(w, int64(c.subCount()))
	}
}

func cmdPublish(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	n := s.pubsub.Publish(string(argv[1]), argv[2])
	writeInt(w, int64(n))
}

func cmdPubsub(s *Server, c *Client, argv [][]byte, w *bufio.Writer) {
	sub := strings.ToUpper(string(argv[1]))
	switch sub {
	case "CHANNELS":
		pattern := ""
		if len(argv) > 2 {
			pattern = string(argv[2])
		}
		writeSimpleStrings(w, s.pubsub.ChannelsMatching(pattern))
	case "NUMSUB":
		writeArrayHeader(w, (len(argv)-2)*2)
		for _, ch := range argv[2:] {
			writeBulk(w, ch)
			writeInt(w, int64(s.pubsub.NumSub(string(ch))))
		}
	case "NUMPAT":
		writeInt(w, int64(s.pubsub.NumPat()))
	default:
		writeError(w, "ERR unknown PUBSUB subcommand")
	}
}
