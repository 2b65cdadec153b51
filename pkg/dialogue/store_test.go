package dialogue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSerializesPerChat(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	ctx1, sess, release1 := store.Acquire(ctx, 1)
	sess.State = StateWaitingName

	other := make(chan struct{})
	go func() {
		_, _, release := store.Acquire(ctx, 2)
		release()
		close(other)
	}()
	select {
	case <-other:
	case <-time.After(5 * time.Second):
		t.Fatal("a busy chat blocked another chat")
	}

	same := make(chan State, 1)
	go func() {
		_, s, release := store.Acquire(ctx, 1)
		same <- s.State
		release()
	}()
	select {
	case <-same:
		t.Fatal("second event for a busy chat did not wait")
	case <-time.After(50 * time.Millisecond):
	}

	assert.True(t, store.Cancel(1))
	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	release1()

	select {
	case st := <-same:
		assert.Equal(t, StateWaitingName, st, "the next event sees the session left by the previous one")
	case <-time.After(5 * time.Second):
		t.Fatal("chat was never released")
	}
	assert.Equal(t, 2, store.Len())
}

func TestStoreCancelIdleChat(t *testing.T) {
	store := NewStore()
	assert.False(t, store.Cancel(42))

	_, _, release := store.Acquire(context.Background(), 42)
	release()
	assert.False(t, store.Cancel(42), "nothing in flight after release")

	store.Drop(42)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, StateIdle, store.State(42))
}

func TestSessionReset(t *testing.T) {
	s := &Session{State: StateWaitingFeedback, Name: "Анна", Debited: true}
	s.Reset()
	require.Equal(t, StateIdle, s.State)
	assert.Empty(t, s.Name)
	assert.False(t, s.Debited)
	assert.Equal(t, "waiting_feedback", StateWaitingFeedback.String())
}
