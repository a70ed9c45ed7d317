package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGetRemove(t *testing.T) {
	store := NewStore(context.Background(), time.Hour)
	defer store.Close()

	sess := store.Create()
	require.NotEmpty(t, sess.Id)

	got, ok := store.Get(sess.Id)
	require.True(t, ok)
	assert.Same(t, sess, got)

	store.Remove(sess.Id)
	_, ok = store.Get(sess.Id)
	assert.False(t, ok)
}

func TestNextEventIDIsMonotonic(t *testing.T) {
	sess := newSession()
	assert.Equal(t, uint64(1), sess.NextEventID())
	assert.Equal(t, uint64(2), sess.NextEventID())
	assert.Equal(t, uint64(3), sess.NextEventID())
}

func TestReplayBufferDropsFromFront(t *testing.T) {
	sess := newSession()
	for i := 1; i <= ReplayBufferSize+10; i++ {
		sess.BufferMessage(BufferedMessage{EventID: uint64(i), Data: []byte("x")})
	}
	all := sess.MessagesAfter(0)
	assert.Len(t, all, ReplayBufferSize)
	assert.Equal(t, uint64(11), all[0].EventID)
}

func TestMessagesAfterReturnsSuffix(t *testing.T) {
	sess := newSession()
	for i := 1; i <= 5; i++ {
		sess.BufferMessage(BufferedMessage{EventID: uint64(i), Data: []byte("x")})
	}
	after := sess.MessagesAfter(3)
	require.Len(t, after, 2)
	assert.Equal(t, uint64(4), after[0].EventID)
	assert.Equal(t, uint64(5), after[1].EventID)
}

func TestMessagesAfterOlderThanBufferReturnsWhateverRemains(t *testing.T) {
	sess := newSession()
	for i := 1; i <= 3; i++ {
		sess.BufferMessage(BufferedMessage{EventID: uint64(i), Data: []byte("x")})
	}
	after := sess.MessagesAfter(0)
	assert.Len(t, after, 3)
}

func TestBindOutboundReplacesPriorChannel(t *testing.T) {
	sess := newSession()
	first := sess.BindOutbound()
	second := sess.BindOutbound()
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, sess.Outbound())
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	store := NewStore(context.Background(), time.Hour)
	defer store.Close()

	sess := store.Create()
	sess.mu.Lock()
	sess.lastActivity = time.Now().Add(-2 * time.Hour)
	sess.mu.Unlock()

	removed := store.Sweep(time.Hour)
	assert.Equal(t, 1, removed)

	_, ok := store.Get(sess.Id)
	assert.False(t, ok)
}
