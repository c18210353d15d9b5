package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, inbox *Inbox, wait time.Duration) ([]string, error) {
	t.Helper()
	var topics []string
	_, err := inbox.Poll(context.Background(), wait, func(msg InboundMessage) {
		topics = append(topics, msg.Topic+"="+string(msg.Payload))
	})
	return topics, err
}

func TestInboxDrainsInOrder(t *testing.T) {
	inbox := NewInbox(8)
	require.True(t, inbox.Push("/a", []byte("1")))
	require.True(t, inbox.Push("/b", []byte("2")))
	require.True(t, inbox.Push("/a", []byte("3")))
	assert.Equal(t, 3, inbox.Len())

	got, err := collect(t, inbox, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a=1", "/b=2", "/a=3"}, got)
	assert.Equal(t, 0, inbox.Len())
}

func TestInboxCopiesPayload(t *testing.T) {
	inbox := NewInbox(1)
	buf := []byte("5")
	inbox.Push("/a", buf)
	buf[0] = '6'

	got, err := collect(t, inbox, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a=5"}, got)
}

func TestInboxPollWithoutWait(t *testing.T) {
	inbox := NewInbox(1)

	start := time.Now()
	got, err := collect(t, inbox, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestInboxPollWaitTimesOut(t *testing.T) {
	inbox := NewInbox(1)

	start := time.Now()
	got, err := collect(t, inbox, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestInboxPollWaitsForMessage(t *testing.T) {
	inbox := NewInbox(4)

	go func() {
		time.Sleep(10 * time.Millisecond)
		inbox.Push("/late", []byte("x"))
	}()

	got, err := collect(t, inbox, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"/late=x"}, got)
}

func TestInboxFailure(t *testing.T) {
	inbox := NewInbox(4)
	inbox.Push("/a", []byte("1"))

	first := errors.New("subscribe failed")
	inbox.Fail(first)
	inbox.Fail(errors.New("second"))

	_, err := collect(t, inbox, 0)
	assert.Equal(t, first, err)

	// The failure is consumed, queued messages remain
	got, err := collect(t, inbox, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a=1"}, got)
}

func TestInboxContextCancel(t *testing.T) {
	inbox := NewInbox(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inbox.Poll(ctx, time.Second, func(InboundMessage) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInboxClose(t *testing.T) {
	inbox := NewInbox(1)
	require.True(t, inbox.Push("/a", []byte("1")))

	blocked := make(chan bool)
	go func() { blocked <- inbox.Push("/b", []byte("2")) }()

	inbox.Close()
	inbox.Close()

	assert.False(t, <-blocked)
	_, err := collect(t, inbox, 0)
	assert.ErrorIs(t, err, ErrInboxClosed)
}
