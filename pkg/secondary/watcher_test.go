package secondary

import (
	"context"
	"testing"
	"time"

	"chatsync/internal/retry"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, client *Client) *Watcher {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	cfg := retry.BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  2,
	}
	w := NewWatcher(client, 20*time.Millisecond, cfg, logger)
	// Observe rows inserted after test start.
	w.lastSeen = time.Now().UTC().Add(-time.Second)
	return w
}

func waitEvent(t *testing.T, events <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case evt := <-events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change event")
		return ChangeEvent{}
	}
}

func TestWatcher_InsertThenUpdate(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	w := newTestWatcher(t, client)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	_, err := client.InsertMessage(ctx, MessageRow{
		SenderID:    "b",
		RecipientID: "a",
		Content:     "hello",
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	evt := waitEvent(t, w.Events())
	assert.Equal(t, ChangeInsert, evt.Op)
	assert.Equal(t, "hello", evt.Row.Content)
	assert.False(t, evt.KnownPrev)

	// Flipping the read flag shows up as an update with the previous state.
	_, err = client.MarkMessagesRead(ctx, "a", "b")
	require.NoError(t, err)

	evt = waitEvent(t, w.Events())
	assert.Equal(t, ChangeUpdate, evt.Op)
	assert.True(t, evt.Row.IsRead)
	assert.True(t, evt.KnownPrev)
	assert.False(t, evt.WasRead)
}

func TestWatcher_StartStop(t *testing.T) {
	client := newTestClient(t)
	w := newTestWatcher(t, client)

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(context.Background()))

	w.Stop()
	assert.False(t, w.IsRunning())
	// Stopping twice is a no-op.
	w.Stop()
}
