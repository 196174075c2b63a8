package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceiver struct {
	id       uint64
	messages [][2]string
	pmsgs    [][3]string
}

func (f *fakeReceiver) ID() uint64 { return f.id }
func (f *fakeReceiver) PushMessage(channel string, payload []byte) {
	f.messages = append(f.messages, [2]string{channel, string(payload)})
}
func (f *fakeReceiver) PushPMessage(pattern, channel string, payload []byte) {
	f.pmsgs = append(f.pmsgs, [3]string{pattern, channel, string(payload)})
}

func TestPublishFanOutExactAndPattern(t *testing.T) {
	reg := New()
	a := &fakeReceiver{id: 1}
	b := &fakeReceiver{id: 2}

	reg.Subscribe("news", a)
	reg.PSubscribe("news.*", b)

	n := reg.Publish("news", []byte("hello"))
	assert.Equal(t, 1, n, "exact match only; pattern news.* does not match bare 'news'")
	require.Len(t, a.messages, 1)
	assert.Equal(t, "hello", a.messages[0][1])

	n = reg.Publish("news.sports", []byte("goal"))
	assert.Equal(t, 1, n)
	require.Len(t, b.pmsgs, 1)
	assert.Equal(t, "news.*", b.pmsgs[0][0])
}

func TestUnsubscribeAll(t *testing.T) {
	reg := New()
	a := &fakeReceiver{id: 1}
	reg.Subscribe("a", a)
	reg.Subscribe("b", a)

	removed := reg.Unsubscribe("", a)
	assert.ElementsMatch(t, []string{"a", "b"}, removed)
	assert.Equal(t, 0, reg.NumSub("a"))
}

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "anything", true},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"h[ae]llo", "hello", true},
		{"h[^e]llo", "hello", false},
		{"h[a-c]llo", "hbllo", true},
		{"news.*", "news", false},
		{"news.*", "news.sports", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, GlobMatch(c.pattern, c.s), "pattern=%q s=%q", c.pattern, c.s)
	}
}
