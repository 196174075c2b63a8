// Package pubsub implements the publish/subscribe routing tables (§4.10),
// adapted from the teacher's pkg/events.Broker. The broker there fans a
// single event stream out to independently-polled subscriber channels;
// PUBLISH instead needs a precise synchronous recipient count and in-order
// delivery onto each matching client's own reply stream, so the registry
// below pushes directly to a Receiver rather than buffering onto a channel
// a consumer goroutine drains later.
package pubsub

import (
	"sync"

	"github.com/cuemby/burrow/pkg/log"
)

// Receiver is the minimal surface PUBLISH needs from a subscribed client:
// enqueue a pre-framed multi-bulk reply onto that client's own write path.
// pkg/server.Client implements this.
type Receiver interface {
	ID() uint64
	PushMessage(channel string, payload []byte)
	PushPMessage(pattern, channel string, payload []byte)
}

type patternSub struct {
	pattern  string
	receiver Receiver
}

// Registry holds the two global routing tables of §4.10.
type Registry struct {
	mu       sync.RWMutex
	channels map[string][]Receiver
	patterns []patternSub
}

func New() *Registry {
	return &Registry{channels: make(map[string][]Receiver)}
}

// Subscribe adds receiver to channel's subscriber list, returning the new
// per-channel subscriber count (informational only; the reply's "total
// subscriptions of this client" is tracked by the caller across channels+patterns).
func (r *Registry) Subscribe(channel string, receiver Receiver) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.channels[channel] {
		if existing.ID() == receiver.ID() {
			return len(r.channels[channel])
		}
	}
	r.channels[channel] = append(r.channels[channel], receiver)
	return len(r.channels[channel])
}

// Unsubscribe removes receiver from channel. If channel is "", removes from
// every channel the receiver is on, returning the removed channel names.
func (r *Registry) Unsubscribe(channel string, receiver Receiver) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	if channel != "" {
		if r.removeFromChannel(channel, receiver) {
			removed = append(removed, channel)
		}
		return removed
	}
	for ch := range r.channels {
		if r.removeFromChannel(ch, receiver) {
			removed = append(removed, ch)
		}
	}
	return removed
}

func (r *Registry) removeFromChannel(channel string, receiver Receiver) bool {
	list := r.channels[channel]
	for i, x := range list {
		if x.ID() == receiver.ID() {
			r.channels[channel] = append(list[:i], list[i+1:]...)
			if len(r.channels[channel]) == 0 {
				delete(r.channels, channel)
			}
			return true
		}
	}
	return false
}

// PSubscribe registers receiver against a glob pattern.
func (r *Registry) PSubscribe(pattern string, receiver Receiver) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, patternSub{pattern: pattern, receiver: receiver})
	return r.countPatterns(receiver)
}

// PUnsubscribe removes receiver's subscription to pattern ("" removes all of
// receiver's pattern subscriptions), returning the removed patterns.
func (r *Registry) PUnsubscribe(pattern string, receiver Receiver) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	kept := r.patterns[:0]
	for _, sub := range r.patterns {
		match := sub.receiver.ID() == receiver.ID() && (pattern == "" || sub.pattern == pattern)
		if match {
			removed = append(removed, sub.pattern)
			continue
		}
		kept = append(kept, sub)
	}
	r.patterns = kept
	return removed
}

func (r *Registry) countPatterns(receiver Receiver) int {
	n := 0
	for _, sub := range r.patterns {
		if sub.receiver.ID() == receiver.ID() {
			n++
		}
	}
	return n
}

// Publish pushes payload to every exact-channel subscriber and every
// pattern-matching subscriber, returning the total recipient count (§4.10).
func (r *Registry) Publish(channel string, payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, recv := range r.channels[channel] {
		recv.PushMessage(channel, payload)
		count++
	}
	for _, sub := range r.patterns {
		if GlobMatch(sub.pattern, channel) {
			sub.receiver.PushPMessage(sub.pattern, channel, payload)
			count++
		}
	}
	log.Debug("published message")
	return count
}

// ChannelsMatching returns channel names with at least one subscriber,
// filtered by an optional glob pattern ("" = all), for PUBSUB CHANNELS.
func (r *Registry) ChannelsMatching(pattern string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for ch := range r.channels {
		if pattern == "" || GlobMatch(pattern, ch) {
			out = append(out, ch)
		}
	}
	return out
}

func (r *Registry) NumSub(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

func (r *Registry) NumPat() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patterns)
}
